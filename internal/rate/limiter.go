// Package rate implements the fixed-window login limiter keyed by client
// IP, with a separate penalty block and a long-horizon suspicion counter.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable wraps any key-value store failure.
var ErrBackendUnavailable = errors.New("rate limiter backend unavailable")

const (
	windowPrefix     = "alw:"
	blockPrefix      = "alb:"
	suspiciousPrefix = "als:"
)

// Config bounds login attempts per source address.
type Config struct {
	// MaxAttempts is the number of attempts allowed inside Window.
	MaxAttempts int64
	// Window is the fixed counting window.
	Window time.Duration
	// BlockDuration is how long an address stays blocked after exceeding
	// MaxAttempts.
	BlockDuration time.Duration
	// SuspiciousThreshold is the failure count over SuspiciousWindow at
	// which an address is flagged.
	SuspiciousThreshold int64
	// SuspiciousWindow is the horizon for the suspicion counter.
	SuspiciousWindow time.Duration
}

// LoginLimiter enforces Config against the shared key-value store.
type LoginLimiter struct {
	client redis.UniversalClient
	config Config
}

// NewLoginLimiter wraps an existing Redis client.
func NewLoginLimiter(client redis.UniversalClient, cfg Config) *LoginLimiter {
	return &LoginLimiter{client: client, config: cfg}
}

// Allow reports whether ip may attempt a login right now. An attempt that
// finds the window exhausted arms the penalty block, which outlives the
// window itself.
func (l *LoginLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	blocked, err := l.client.Exists(ctx, blockPrefix+ip).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if blocked > 0 {
		return false, nil
	}

	count, err := l.client.Get(ctx, windowPrefix+ip).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count >= l.config.MaxAttempts {
		if err := l.client.Set(ctx, blockPrefix+ip, "1", l.config.BlockDuration).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return false, nil
	}
	return true, nil
}

// Consume records one attempt for ip.
func (l *LoginLimiter) Consume(ctx context.Context, ip string) error {
	_, err := incrementWithTTL(ctx, l.client, windowPrefix+ip, l.config.Window)
	return err
}

// Reset clears the window counter for ip after a successful login. The
// suspicion counter is left alone; it only decays with time.
func (l *LoginLimiter) Reset(ctx context.Context, ip string) error {
	if err := l.client.Del(ctx, windowPrefix+ip).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// RecordFailure bumps the long-horizon failure counter for ip and reports
// whether the address has crossed the suspicion threshold.
func (l *LoginLimiter) RecordFailure(ctx context.Context, ip string) (bool, error) {
	count, err := incrementWithTTL(ctx, l.client, suspiciousPrefix+ip, l.config.SuspiciousWindow)
	if err != nil {
		return false, err
	}
	return count >= l.config.SuspiciousThreshold, nil
}

// IsSuspicious reports whether ip currently sits at or above the suspicion
// threshold without recording anything.
func (l *LoginLimiter) IsSuspicious(ctx context.Context, ip string) (bool, error) {
	count, err := l.client.Get(ctx, suspiciousPrefix+ip).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return count >= l.config.SuspiciousThreshold, nil
}

// incrementWithTTL bumps key and arms its expiry only on the first hit of
// the window, so the window is fixed rather than sliding.
func incrementWithTTL(ctx context.Context, client redis.UniversalClient, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return count, nil
}
