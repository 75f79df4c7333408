package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*LoginLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewLoginLimiter(rdb, cfg), mr
}

func defaultTestConfig() Config {
	return Config{
		MaxAttempts:         3,
		Window:              time.Minute,
		BlockDuration:       10 * time.Minute,
		SuspiciousThreshold: 5,
		SuspiciousWindow:    time.Hour,
	}
}

func TestAllowUntilWindowExhausted(t *testing.T) {
	limiter, _ := newTestLimiter(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !allowed {
			t.Fatalf("attempt %d unexpectedly refused", i+1)
		}
		if err := limiter.Consume(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("Consume failed: %v", err)
		}
	}

	allowed, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if allowed {
		t.Fatal("expected refusal past the window budget")
	}
}

func TestBlockOutlivesWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = limiter.Consume(ctx, "1.2.3.4")
	}
	// This refusal arms the penalty block.
	if allowed, _ := limiter.Allow(ctx, "1.2.3.4"); allowed {
		t.Fatal("expected refusal")
	}

	// Window counter lapses, block does not.
	mr.FastForward(2 * time.Minute)
	if allowed, _ := limiter.Allow(ctx, "1.2.3.4"); allowed {
		t.Fatal("expected block to persist past the window")
	}

	mr.FastForward(10 * time.Minute)
	if allowed, _ := limiter.Allow(ctx, "1.2.3.4"); !allowed {
		t.Fatal("expected block to lapse")
	}
}

func TestResetClearsWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = limiter.Consume(ctx, "1.2.3.4")
	}
	if err := limiter.Reset(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	allowed, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !allowed {
		t.Fatal("expected a fresh window after reset")
	}
}

func TestAddressesAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = limiter.Consume(ctx, "1.2.3.4")
	}
	if allowed, _ := limiter.Allow(ctx, "1.2.3.4"); allowed {
		t.Fatal("expected refusal for the saturated address")
	}
	if allowed, _ := limiter.Allow(ctx, "5.6.7.8"); !allowed {
		t.Fatal("other addresses must be unaffected")
	}
}

func TestSuspicionThreshold(t *testing.T) {
	limiter, _ := newTestLimiter(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		flagged, err := limiter.RecordFailure(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
		if flagged {
			t.Fatalf("flagged at %d failures, threshold is 5", i+1)
		}
	}

	flagged, err := limiter.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !flagged {
		t.Fatal("expected flag at the threshold")
	}

	suspicious, err := limiter.IsSuspicious(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("IsSuspicious failed: %v", err)
	}
	if !suspicious {
		t.Fatal("expected IsSuspicious to agree")
	}
}

func TestSuspicionDecaysWithWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t, defaultTestConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = limiter.RecordFailure(ctx, "1.2.3.4")
	}
	mr.FastForward(2 * time.Hour)

	suspicious, err := limiter.IsSuspicious(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("IsSuspicious failed: %v", err)
	}
	if suspicious {
		t.Fatal("expected suspicion to decay after the window")
	}
}

func TestBackendFailureWrapped(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewLoginLimiter(rdb, defaultTestConfig())
	mr.Close()

	if _, err := limiter.Allow(context.Background(), "1.2.3.4"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("got %v, want ErrBackendUnavailable", err)
	}
}
