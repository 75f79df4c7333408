package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, first_name, last_name, phone_number,
	password_hash, role, mfa_enabled, totp_secret, backup_code_hashes,
	token_version, login_attempts, lockout_until, last_login,
	last_ip_address, updated_at`

// PostgresStore is a pgx-backed Store over the platform's users table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on top of an existing pool. The
// pool's lifecycle belongs to the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// FindByEmail implements Store. The email column is stored lowercased, so a
// normalized equality match suffices for case-insensitive lookup.
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	return s.scanOne(s.pool.QueryRow(ctx, query, NormalizeEmail(email)))
}

// FindByID implements Store.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return s.scanOne(s.pool.QueryRow(ctx, query, id))
}

// Save implements Store. The record is written last-write-wins; only the
// columns this core owns are updated.
func (s *PostgresStore) Save(ctx context.Context, user *User) (*User, error) {
	query := fmt.Sprintf(`
		UPDATE users SET
			email = $2,
			first_name = $3,
			last_name = $4,
			phone_number = $5,
			password_hash = $6,
			role = $7,
			mfa_enabled = $8,
			totp_secret = $9,
			backup_code_hashes = $10,
			token_version = $11,
			login_attempts = $12,
			lockout_until = $13,
			last_login = $14,
			last_ip_address = $15,
			updated_at = $16
		WHERE id = $1
		RETURNING %s`, userColumns)

	row := s.pool.QueryRow(ctx, query,
		user.ID,
		NormalizeEmail(user.Email),
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.PasswordHash,
		user.Role,
		user.MFAEnabled,
		user.TOTPSecret,
		user.BackupCodeHashes,
		user.TokenVersion,
		user.LoginAttempts,
		user.LockoutUntil,
		user.LastLogin,
		user.LastIPAddress,
		time.Now().UTC(),
	)
	return s.scanOne(row)
}

func (s *PostgresStore) scanOne(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.PhoneNumber,
		&u.PasswordHash,
		&u.Role,
		&u.MFAEnabled,
		&u.TOTPSecret,
		&u.BackupCodeHashes,
		&u.TokenVersion,
		&u.LoginAttempts,
		&u.LockoutUntil,
		&u.LastLogin,
		&u.LastIPAddress,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("credential store query: %w", err)
	}
	return &u, nil
}
