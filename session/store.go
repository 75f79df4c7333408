// Package session tracks refresh-token references and the token blacklist
// in the shared key-value store. Only SHA-256 digests of signed tokens ever
// touch the store; raw token material stays with the caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable wraps any backend failure from the key-value
	// store. Callers treat it as a dependency outage, not a verdict on the
	// token.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrNoReference is returned when a user has no active refresh
	// reference.
	ErrNoReference = errors.New("no refresh reference")
)

const (
	refreshPrefix   = "arf:"
	blacklistPrefix = "abl:"
)

// Store persists per-user refresh references and blacklisted token digests.
type Store struct {
	client redis.UniversalClient
}

// NewStore wraps an existing Redis client. The client's lifecycle belongs
// to the caller.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// SaveRefreshReference records digest as the user's single active refresh
// token, expiring with the token itself. An existing reference is
// overwritten, which retires the previously issued refresh token.
func (s *Store) SaveRefreshReference(ctx context.Context, userID, digest string, ttl time.Duration) error {
	if err := s.client.Set(ctx, refreshPrefix+userID, digest, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetRefreshReference returns the digest of the user's active refresh
// token, or ErrNoReference when none is stored.
func (s *Store) GetRefreshReference(ctx context.Context, userID string) (string, error) {
	digest, err := s.client.Get(ctx, refreshPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoReference
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return digest, nil
}

// DeleteRefreshReference drops the user's active refresh reference. Missing
// keys are not an error.
func (s *Store) DeleteRefreshReference(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, refreshPrefix+userID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Blacklist marks a token digest as revoked for ttl, which callers set to
// the token's remaining lifetime. Non-positive ttls are skipped since the
// token is already past expiry.
func (s *Store) Blacklist(ctx context.Context, digest string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, blacklistPrefix+digest, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether a token digest has been revoked.
func (s *Store) IsBlacklisted(ctx context.Context, digest string) (bool, error) {
	n, err := s.client.Exists(ctx, blacklistPrefix+digest).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
