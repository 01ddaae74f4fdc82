package stores

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrResetNotFound is returned when no live reset marker exists for the
	// principal. Expired, consumed, and never-issued markers are
	// indistinguishable.
	ErrResetNotFound = errors.New("reset marker not found")
	// ErrResetMismatch is returned when a live marker exists but was issued
	// for a different credential. The presented credential is a stale
	// issuance that a newer request superseded.
	ErrResetMismatch = errors.New("reset marker mismatch")
	// ErrResetUnavailable wraps Redis transport failures.
	ErrResetUnavailable = errors.New("reset store unavailable")
)

// ResetStore tracks at most one live password-reset marker per principal.
// Issuing a new marker supersedes any previous one, so only the most recent
// reset credential can ever be consumed.
type ResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewResetStore creates a [ResetStore] with the given key prefix.
func NewResetStore(redisClient redis.UniversalClient, prefix string) *ResetStore {
	if prefix == "" {
		prefix = "authcore"
	}
	return &ResetStore{redis: redisClient, prefix: prefix}
}

func (s *ResetStore) key(principalID string) string {
	return s.prefix + ":pr:" + principalID
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue records token as the principal's single live reset marker,
// replacing any previous marker unconditionally.
func (s *ResetStore) Issue(ctx context.Context, principalID, token string, ttl time.Duration) error {
	if principalID == "" || token == "" {
		return errors.New("principal id and token required")
	}
	if ttl <= 0 {
		return errors.New("non-positive reset marker ttl")
	}

	if err := s.redis.Set(ctx, s.key(principalID), digest(token), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
	return nil
}

// Consume atomically validates and deletes the principal's reset marker.
// Exactly one concurrent Consume of the same marker can succeed; the marker
// is gone afterwards regardless of how the race resolved.
func (s *ResetStore) Consume(ctx context.Context, principalID, token string) error {
	const maxRetries = 4
	key := s.key(principalID)
	provided := digest(token)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, key).Result()
			if err != nil {
				return err
			}

			if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
				return ErrResetMismatch
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		// The marker changed between read and delete; re-read and retry.
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return ErrResetNotFound
			case errors.Is(err, ErrResetMismatch):
				return ErrResetMismatch
			default:
				return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
			}
		}
		return nil
	}

	return ErrResetNotFound
}

// Invalidate removes any live marker for the principal without requiring
// the credential. Called when a password changes through another path.
func (s *ResetStore) Invalidate(ctx context.Context, principalID string) error {
	if err := s.redis.Del(ctx, s.key(principalID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetUnavailable, err)
	}
	return nil
}
