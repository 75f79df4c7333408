package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrPendingTOTPNotFound = errors.New("pending totp enrollment not found")
	ErrPendingTOTPBackend  = errors.New("pending totp backend unavailable")
)

// PendingTOTP is an authenticator enrollment awaiting confirmation. The
// secret stays here until the user proves they captured it; only then does
// it move to the credential record.
type PendingTOTP struct {
	Secret           string   `json:"secret"`
	BackupCodeHashes []string `json:"backup_code_hashes"`
}

// PendingTOTPStore persists in-flight enrollments.
type PendingTOTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPendingTOTPStore wraps an existing Redis client. prefix defaults to
// "atp".
func NewPendingTOTPStore(redisClient redis.UniversalClient, prefix string) *PendingTOTPStore {
	if prefix == "" {
		prefix = "atp"
	}
	return &PendingTOTPStore{redis: redisClient, prefix: prefix}
}

func (s *PendingTOTPStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Save records the user's pending enrollment, replacing any earlier one.
func (s *PendingTOTPStore) Save(ctx context.Context, userID string, record *PendingTOTP, ttl time.Duration) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(userID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingTOTPBackend, err)
	}
	return nil
}

// Get returns the user's pending enrollment.
func (s *PendingTOTPStore) Get(ctx context.Context, userID string) (*PendingTOTP, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingTOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingTOTPBackend, err)
	}

	record := &PendingTOTP{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Delete removes the pending enrollment once confirmed or abandoned.
func (s *PendingTOTPStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingTOTPBackend, err)
	}
	return nil
}
