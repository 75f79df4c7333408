package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSMSCodeNotFound = errors.New("sms code not found")
	ErrSMSCodeBackend  = errors.New("sms code backend unavailable")
)

// SMSCodeStore keeps the SHA-256 digest of each user's outstanding SMS
// login code. Only the digest is stored; expiry rides on the key's TTL so
// a code simply vanishes when its window closes.
type SMSCodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewSMSCodeStore wraps an existing Redis client. prefix defaults to
// "asc".
func NewSMSCodeStore(redisClient redis.UniversalClient, prefix string) *SMSCodeStore {
	if prefix == "" {
		prefix = "asc"
	}
	return &SMSCodeStore{redis: redisClient, prefix: prefix}
}

func (s *SMSCodeStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Save records digest as the user's current code. A prior unconsumed code
// is overwritten, so only the latest delivery verifies.
func (s *SMSCodeStore) Save(ctx context.Context, userID, digest string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(userID), digest, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSMSCodeBackend, err)
	}
	return nil
}

// Get returns the digest of the user's outstanding code, or
// ErrSMSCodeNotFound once it has expired or been consumed.
func (s *SMSCodeStore) Get(ctx context.Context, userID string) (string, error) {
	digest, err := s.redis.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSMSCodeNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrSMSCodeBackend, err)
	}
	return digest, nil
}

// Delete consumes the user's outstanding code.
func (s *SMSCodeStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSMSCodeBackend, err)
	}
	return nil
}
