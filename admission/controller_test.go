package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testConfig() Config {
	return Config{
		General:       Budget{Max: 5, Window: time.Minute},
		Auth:          Budget{Max: 3, Window: time.Minute},
		Create:        Budget{Max: 2, Window: time.Hour},
		Reset:         Budget{Max: 2, Window: time.Hour},
		MaxConcurrent: 2,
		SlotTTL:       time.Minute,
	}
}

func newTestController(t *testing.T) (*Controller, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctrl, err := NewController(client, "authcore", testConfig())
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return ctrl, mr
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Max = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero budget max to be rejected")
	}

	cfg = testConfig()
	cfg.General.Window = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero window to be rejected")
	}

	cfg = testConfig()
	cfg.SlotTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected concurrency cap without slot TTL to be rejected")
	}
}

func TestAllowRequestWindow(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ctrl.AllowRequest(ctx, "u1", PurposeAuth); err != nil {
			t.Fatalf("request %d unexpectedly denied: %v", i+1, err)
		}
	}

	err := ctrl.AllowRequest(ctx, "u1", PurposeAuth)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != ReasonRateLimited {
		t.Fatalf("expected rate_limited reason, got %q", denied.Reason)
	}
	if denied.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %v", denied.RetryAfter)
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ctrl.AllowRequest(ctx, "u1", PurposeAuth); err != nil {
			t.Fatalf("auth request unexpectedly denied: %v", err)
		}
	}
	if err := ctrl.AllowRequest(ctx, "u1", PurposeAuth); err == nil {
		t.Fatal("expected auth window to be exhausted")
	}

	// A different purpose and a different key each get their own budget.
	if err := ctrl.AllowRequest(ctx, "u1", PurposeGeneral); err != nil {
		t.Fatalf("general request unexpectedly denied: %v", err)
	}
	if err := ctrl.AllowRequest(ctx, "u2", PurposeAuth); err != nil {
		t.Fatalf("other key unexpectedly denied: %v", err)
	}
}

func TestWindowResetsAfterTTL(t *testing.T) {
	ctrl, mr := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = ctrl.AllowRequest(ctx, "u1", PurposeAuth)
	}
	if err := ctrl.AllowRequest(ctx, "u1", PurposeAuth); err == nil {
		t.Fatal("expected window to be exhausted")
	}

	mr.FastForward(2 * time.Minute)

	if err := ctrl.AllowRequest(ctx, "u1", PurposeAuth); err != nil {
		t.Fatalf("expected fresh window after TTL, got %v", err)
	}
}

func TestDeniedRequestsBurnBudget(t *testing.T) {
	ctrl, mr := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = ctrl.AllowRequest(ctx, "u1", PurposeAuth)
	}

	// The window TTL was stamped on the first hit and does not slide, so
	// hammering a closed window does not extend it.
	ttl := mr.TTL("authcore:adm:auth:u1")
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected window TTL %v", ttl)
	}
}

func TestResetClearsWindow(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = ctrl.AllowRequest(ctx, "u1", PurposeAuth)
	}
	if err := ctrl.Reset(ctx, "u1", PurposeAuth); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := ctrl.AllowRequest(ctx, "u1", PurposeAuth); err != nil {
		t.Fatalf("expected fresh window after Reset, got %v", err)
	}
}

func TestConcurrencyCap(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	if err := ctrl.AcquireSlot(ctx, "u1"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := ctrl.AcquireSlot(ctx, "u1"); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	err := ctrl.AcquireSlot(ctx, "u1")
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Reason != ReasonTooManyConcurrent {
		t.Fatalf("expected too_many_concurrent denial, got %v", err)
	}

	// The denied acquire must not hold a slot: one release frees capacity.
	if err := ctrl.ReleaseSlot(ctx, "u1"); err != nil {
		t.Fatalf("ReleaseSlot failed: %v", err)
	}
	if err := ctrl.AcquireSlot(ctx, "u1"); err != nil {
		t.Fatalf("expected freed slot to be acquirable, got %v", err)
	}
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := ctrl.ReleaseSlot(ctx, "u1"); err != nil {
			t.Fatalf("ReleaseSlot failed: %v", err)
		}
	}

	// After spurious releases the full cap is still exactly MaxConcurrent.
	for i := 0; i < 2; i++ {
		if err := ctrl.AcquireSlot(ctx, "u1"); err != nil {
			t.Fatalf("acquire %d failed: %v", i+1, err)
		}
	}
	if err := ctrl.AcquireSlot(ctx, "u1"); err == nil {
		t.Fatal("expected cap to hold after spurious releases")
	}

	n, err := ctrl.InFlight(ctx, "u1")
	if err != nil {
		t.Fatalf("InFlight failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 in-flight, got %d", n)
	}
}

func TestLeakedSlotExpires(t *testing.T) {
	ctrl, mr := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := ctrl.AcquireSlot(ctx, "u1"); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
	}
	if err := ctrl.AcquireSlot(ctx, "u1"); err == nil {
		t.Fatal("expected cap to be reached")
	}

	// A crashed worker never releases; the slot TTL self-heals the key.
	mr.FastForward(2 * time.Minute)

	if err := ctrl.AcquireSlot(ctx, "u1"); err != nil {
		t.Fatalf("expected slots to expire, got %v", err)
	}
}

func TestUnavailableIsNotDenial(t *testing.T) {
	ctrl, mr := newTestController(t)
	ctx := context.Background()
	mr.Close()

	err := ctrl.AllowRequest(ctx, "u1", PurposeAuth)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var denied *DeniedError
	if errors.As(err, &denied) {
		t.Fatal("store failure must not read as a denial")
	}

	if err := ctrl.AcquireSlot(ctx, "u1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from AcquireSlot, got %v", err)
	}
}

func TestConcurrencyDisabled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.MaxConcurrent = 0
	cfg.SlotTTL = 0
	ctrl, err := NewController(client, "authcore", cfg)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if err := ctrl.AcquireSlot(ctx, "u1"); err != nil {
			t.Fatalf("expected disabled cap to always admit, got %v", err)
		}
	}
}
