// Package credential defines the user-record contract the authentication
// core requires of the platform's relational user store, plus the bundled
// Postgres and in-memory implementations.
package credential

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by lookups when no user matches. It is a
// distinguishable result, not a backend failure, so callers can collapse it
// into a uniform "invalid credentials" response without leaking whether the
// email exists.
var ErrNotFound = errors.New("user not found")

// User is the identity record owned by the external credential store.
//
// TOTPSecret holds only the permanent TOTP secret. Transient SMS one-time
// codes are never written here; they live in the shared key-value store as
// dedicated challenge entries with their own issuance timestamps.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PhoneNumber  string
	PasswordHash string
	Role         string

	MFAEnabled       bool
	TOTPSecret       string
	BackupCodeHashes []string

	// TokenVersion is embedded in every refresh token; bumping it
	// invalidates all outstanding refresh tokens at once.
	TokenVersion int64

	LoginAttempts int
	LockoutUntil  *time.Time

	LastLogin     *time.Time
	LastIPAddress string
	UpdatedAt     time.Time
}

// Locked reports whether the account is under an active lockout at now.
func (u *User) Locked(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}

// Store is the credential-store adapter contract. Implementations must not
// have side effects beyond persistence.
type Store interface {
	// FindByEmail looks a user up by email, case-insensitively. Returns
	// ErrNotFound when no user matches.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByID looks a user up by its unique id. Returns ErrNotFound when
	// no user matches.
	FindByID(ctx context.Context, id string) (*User, error)
	// Save persists the full record and returns the stored state.
	Save(ctx context.Context, user *User) (*User, error)
}

// NormalizeEmail lowercases and trims an email before it is used as a
// lookup key. All Store implementations apply it on the query side as well.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
