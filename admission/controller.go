package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every Redis transport failure. Callers admit on it
// (fail open); the controller never converts unavailability into a denial.
var ErrUnavailable = errors.New("admission store unavailable")

// Purpose selects which window budget applies to a request.
type Purpose string

// The request classes with distinct budgets. Auth covers login and refresh,
// Create covers account creation, Reset covers password-reset requests, and
// General covers everything else.
const (
	PurposeGeneral Purpose = "general"
	PurposeAuth    Purpose = "auth"
	PurposeCreate  Purpose = "create"
	PurposeReset   Purpose = "reset"
)

// Reason labels why admission was denied.
type Reason string

// Denial reasons.
const (
	ReasonRateLimited       Reason = "rate_limited"
	ReasonTooManyConcurrent Reason = "too_many_concurrent"
)

// DeniedError is returned when a request is refused admission. RetryAfter is
// the remaining window (zero when unknown) and is safe to surface to clients.
type DeniedError struct {
	Reason     Reason
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return "admission denied: " + string(e.Reason)
}

// Budget is one fixed-window allowance.
type Budget struct {
	Max    int
	Window time.Duration
}

// Config tunes the controller. Every budget must be positive; a purpose
// without its own budget falls back to General.
type Config struct {
	General Budget
	Auth    Budget
	Create  Budget
	Reset   Budget

	// MaxConcurrent caps in-flight requests per key. Zero disables the cap.
	MaxConcurrent int

	// SlotTTL bounds how long a leaked concurrency slot can linger. The TTL
	// is re-stamped on every acquire, so it only fires for abandoned keys.
	SlotTTL time.Duration
}

// DefaultConfig returns conservative production budgets.
func DefaultConfig() Config {
	return Config{
		General:       Budget{Max: 100, Window: time.Minute},
		Auth:          Budget{Max: 10, Window: time.Minute},
		Create:        Budget{Max: 5, Window: time.Hour},
		Reset:         Budget{Max: 3, Window: time.Hour},
		MaxConcurrent: 10,
		SlotTTL:       time.Minute,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	for _, b := range []struct {
		name   string
		budget Budget
	}{
		{"general", c.General},
		{"auth", c.Auth},
		{"create", c.Create},
		{"reset", c.Reset},
	} {
		if b.budget.Max <= 0 || b.budget.Window <= 0 {
			return fmt.Errorf("admission: %s budget must have positive max and window", b.name)
		}
	}
	if c.MaxConcurrent < 0 {
		return errors.New("admission: negative concurrency cap")
	}
	if c.MaxConcurrent > 0 && c.SlotTTL <= 0 {
		return errors.New("admission: concurrency cap requires a positive slot TTL")
	}
	return nil
}

// releaseScript decrements a slot counter without ever going below zero and
// deletes the key when it reaches zero. Double releases and releases after
// TTL expiry are no-ops.
const releaseScript = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count > 1 then
  redis.call("DECR", KEYS[1])
elseif count == 1 then
  redis.call("DEL", KEYS[1])
end
return count
`

var releaseLua = redis.NewScript(releaseScript)

// Controller enforces the admission budgets. Safe for concurrent use.
type Controller struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// NewController validates cfg and returns a ready controller. prefix
// namespaces every admission key.
func NewController(redisClient redis.UniversalClient, prefix string, cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "authcore"
	}
	return &Controller{redis: redisClient, prefix: prefix, config: cfg}, nil
}

func (c *Controller) windowKey(key string, purpose Purpose) string {
	return c.prefix + ":adm:" + string(purpose) + ":" + key
}

func (c *Controller) slotKey(key string) string {
	return c.prefix + ":slot:" + key
}

func (c *Controller) budget(purpose Purpose) Budget {
	switch purpose {
	case PurposeAuth:
		return c.config.Auth
	case PurposeCreate:
		return c.config.Create
	case PurposeReset:
		return c.config.Reset
	default:
		return c.config.General
	}
}

// AllowRequest consumes one unit of the key's window budget for purpose.
// Returns nil when admitted, a [DeniedError] when the window is exhausted,
// and an [ErrUnavailable]-wrapped error on store failure.
//
// The counter is incremented before the limit check, so a denied request
// still burns budget. Retrying into a closed window keeps it closed.
func (c *Controller) AllowRequest(ctx context.Context, key string, purpose Purpose) error {
	if key == "" {
		return errors.New("admission key required")
	}

	budget := c.budget(purpose)
	windowKey := c.windowKey(key, purpose)

	count, err := c.redis.Incr(ctx, windowKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: the TTL starts at the first hit and never
	// slides. If the first hit's EXPIRE fails the counter has no TTL, so
	// delete it rather than leave an immortal window.
	if count == 1 {
		if err := c.redis.Expire(ctx, windowKey, budget.Window).Err(); err != nil {
			_ = c.redis.Del(ctx, windowKey).Err()
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(budget.Max) {
		return &DeniedError{Reason: ReasonRateLimited, RetryAfter: c.retryAfter(ctx, windowKey)}
	}

	return nil
}

// AcquireSlot reserves one concurrency slot for key. A reservation that
// lands above the cap is undone before the denial is returned, so a denied
// request never holds a slot. Callers must pair a successful acquire with
// exactly one [Controller.ReleaseSlot].
func (c *Controller) AcquireSlot(ctx context.Context, key string) error {
	if c.config.MaxConcurrent <= 0 {
		return nil
	}
	if key == "" {
		return errors.New("admission key required")
	}

	slotKey := c.slotKey(key)

	count, err := c.redis.Incr(ctx, slotKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := c.redis.Expire(ctx, slotKey, c.config.SlotTTL).Err(); err != nil {
		// The reservation stands but its TTL stamp failed. Undo and report;
		// an un-stamped counter could pin the key at the cap forever.
		_ = releaseLua.Run(ctx, c.redis, []string{slotKey}).Err()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count > int64(c.config.MaxConcurrent) {
		if err := releaseLua.Run(ctx, c.redis, []string{slotKey}).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return &DeniedError{Reason: ReasonTooManyConcurrent}
	}

	return nil
}

// ReleaseSlot returns a concurrency slot. Releasing more than acquired is a
// no-op; the counter never goes below zero.
func (c *Controller) ReleaseSlot(ctx context.Context, key string) error {
	if c.config.MaxConcurrent <= 0 {
		return nil
	}

	if err := releaseLua.Run(ctx, c.redis, []string{c.slotKey(key)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// InFlight returns the current slot count for key.
func (c *Controller) InFlight(ctx context.Context, key string) (int, error) {
	count, err := c.redis.Get(ctx, c.slotKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the key's window counter for purpose. Used by operators to
// unblock a principal without waiting out the window.
func (c *Controller) Reset(ctx context.Context, key string, purpose Purpose) error {
	if err := c.redis.Del(ctx, c.windowKey(key, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *Controller) retryAfter(ctx context.Context, windowKey string) time.Duration {
	ttl, err := c.redis.PTTL(ctx, windowKey).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}
