package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every Redis transport failure. Callers discriminate
// with errors.Is and decide fail-open or fail-closed themselves.
var ErrUnavailable = errors.New("revocation registry unavailable")

// revokeScript removes a marker and its index entry in one round trip and
// reports whether the marker existed. SREM runs unconditionally so a stale
// index entry is cleaned up even when the marker already expired.
const revokeScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var revokeLua = redis.NewScript(revokeScript)

// Store is the Redis-backed revocation registry. Presence of a marker key is
// the sole liveness signal; the marker value is an opaque issuance stamp and
// carries no meaning.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a registry [Store] backed by the given Redis client.
// prefix namespaces every registry key.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "authcore"
	}
	return &Store{redis: redis, prefix: prefix}
}

// TokenDigest returns the hex SHA-256 of a credential. The registry never
// stores credential literals; every key and set member uses this digest.
func TokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Store) markerKey(principalID, digest string) string {
	return s.prefix + ":rt:" + principalID + ":" + digest
}

func (s *Store) principalKey(principalID string) string {
	return s.prefix + ":rs:" + principalID
}

// Save registers a freshly issued refresh credential. The marker TTL matches
// the credential lifetime; the index set is re-stamped to at least the same
// horizon so it never outlives its last marker by more than one lifetime.
func (s *Store) Save(ctx context.Context, principalID, token string, ttl time.Duration) error {
	if principalID == "" || token == "" {
		return errors.New("principal id and token required")
	}
	if ttl <= 0 {
		return errors.New("non-positive marker ttl")
	}

	digest := TokenDigest(token)
	stamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.markerKey(principalID, digest), stamp, ttl)
		pipe.SAdd(ctx, s.principalKey(principalID), digest)
		pipe.Expire(ctx, s.principalKey(principalID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Validate reports whether a refresh credential is still live. A missing
// marker means revoked or expired; the registry cannot tell them apart and
// does not need to.
func (s *Store) Validate(ctx context.Context, principalID, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.markerKey(principalID, TokenDigest(token))).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// Rotate retires oldToken in favor of newToken. The new marker is written
// before the old one is deleted, so a crash between the two steps leaves the
// principal with an extra live credential rather than none.
func (s *Store) Rotate(ctx context.Context, principalID, oldToken, newToken string, ttl time.Duration) error {
	if err := s.Save(ctx, principalID, newToken, ttl); err != nil {
		return err
	}
	return s.Revoke(ctx, principalID, oldToken)
}

// Revoke removes a single credential's marker and index entry. Revoking a
// credential that is already dead is a no-op, not an error.
func (s *Store) Revoke(ctx context.Context, principalID, token string) error {
	digest := TokenDigest(token)
	err := revokeLua.Run(ctx, s.redis,
		[]string{s.markerKey(principalID, digest), s.principalKey(principalID)},
		digest,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RevokeAll kills every live credential of a principal. Markers found in the
// index are deleted in one grouped write along with the index itself.
//
// A credential saved between the index read and the delete phase survives
// this call. The race window is one round trip wide; callers that must close
// it (password change does) call RevokeAll before issuing new credentials.
func (s *Store) RevokeAll(ctx context.Context, principalID string) error {
	principalKey := s.principalKey(principalID)

	digests, err := s.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, digest := range digests {
			pipe.Del(ctx, s.markerKey(principalID, digest))
		}
		pipe.Del(ctx, principalKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// ActiveCount returns the number of index entries for a principal. Entries
// whose markers have expired are counted until the next Reconcile, so this
// is an upper bound, not an exact census.
func (s *Store) ActiveCount(ctx context.Context, principalID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// Reconcile prunes index entries whose markers have expired and re-stamps
// the index TTL to the longest surviving marker's remaining lifetime. An
// index with no surviving markers is deleted. Returns the number of entries
// pruned.
func (s *Store) Reconcile(ctx context.Context, principalID string) (int, error) {
	principalKey := s.principalKey(principalID)

	digests, err := s.redis.SMembers(ctx, principalKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(digests) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	ttlCmds := make([]*redis.DurationCmd, len(digests))
	for i, digest := range digests {
		ttlCmds[i] = pipe.PTTL(ctx, s.markerKey(principalID, digest))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var (
		dead    []interface{}
		longest time.Duration
	)
	for i, cmd := range ttlCmds {
		ttl, cmdErr := cmd.Result()
		if cmdErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, cmdErr)
		}
		// PTTL reports -2 for a missing key and -1 for a key without expiry.
		// Markers always carry expiry, so anything non-positive is dead.
		if ttl <= 0 {
			dead = append(dead, digests[i])
			continue
		}
		if ttl > longest {
			longest = ttl
		}
	}

	survivors := len(digests) - len(dead)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(dead) > 0 {
			pipe.SRem(ctx, principalKey, dead...)
		}
		if survivors == 0 {
			pipe.Del(ctx, principalKey)
		} else if longest > 0 {
			pipe.PExpire(ctx, principalKey, longest)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return len(dead), nil
}

// ScanPrincipals walks every principal index in the registry and invokes fn
// with each principal ID. This is an O(keyspace) sweep operation and must
// not run in request hot paths.
func (s *Store) ScanPrincipals(ctx context.Context, fn func(principalID string) error) error {
	pattern := s.prefix + ":rs:*"
	keyPrefix := s.prefix + ":rs:"

	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, key := range keys {
			if err := fn(strings.TrimPrefix(key, keyPrefix)); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
