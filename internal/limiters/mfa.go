// Package limiters holds the small per-user throttles that sit in front of
// verification code checks.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable wraps any key-value store failure.
var ErrBackendUnavailable = errors.New("mfa limiter backend unavailable")

const mfaAttemptPrefix = "amf:"

// MFALimiter bounds how often a single user may submit verification codes,
// independent of the per-IP login limiter. Keying by user stops distributed
// guessing that rotates source addresses.
type MFALimiter struct {
	client      redis.UniversalClient
	maxAttempts int64
	window      time.Duration
}

// NewMFALimiter wraps an existing Redis client.
func NewMFALimiter(client redis.UniversalClient, maxAttempts int64, window time.Duration) *MFALimiter {
	return &MFALimiter{client: client, maxAttempts: maxAttempts, window: window}
}

// Allow records one verification attempt for userID and reports whether it
// is within bounds. Counting before verifying means wrong and right guesses
// alike consume the budget.
func (l *MFALimiter) Allow(ctx context.Context, userID string) (bool, error) {
	key := mfaAttemptPrefix + userID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	return count <= l.maxAttempts, nil
}

// Reset clears the user's attempt counter after a successful verification.
func (l *MFALimiter) Reset(ctx context.Context, userID string) error {
	if err := l.client.Del(ctx, mfaAttemptPrefix+userID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
