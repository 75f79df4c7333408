package credential

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded, map-backed Store. It backs the test
// suite and the runnable example; production deployments use PostgresStore.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    map[string]*User{},
		byEmail: map[string]string{},
	}
}

// FindByEmail implements Store.
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

// FindByID implements Store.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

// Save implements Store. Writes are last-write-wins, matching the
// concurrency contract of the real store.
func (s *MemoryStore) Save(ctx context.Context, user *User) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneUser(user)
	stored.Email = NormalizeEmail(stored.Email)
	stored.UpdatedAt = time.Now()

	if prev, ok := s.byID[stored.ID]; ok && prev.Email != stored.Email {
		delete(s.byEmail, prev.Email)
	}
	s.byID[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID

	return cloneUser(stored), nil
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.LockoutUntil != nil {
		t := *u.LockoutUntil
		out.LockoutUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	if u.BackupCodeHashes != nil {
		out.BackupCodeHashes = append([]string(nil), u.BackupCodeHashes...)
	}
	return &out
}
