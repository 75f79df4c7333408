package authcore

import (
	"errors"
	"time"

	"github.com/austa-platform/authcore/password"
)

// Config is the full engine configuration. Zero values are filled from
// defaultConfig by the builder, so callers only set what they change.
type Config struct {
	Tokens    TokenConfig
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	MFA       MFAConfig
	Breaker   BreakerConfig
	Audit     AuditConfig
	Password  password.Config
}

// TokenConfig governs token signing and lifetimes.
type TokenConfig struct {
	// SigningSecret is the HS256 key, at least 32 bytes.
	SigningSecret []byte
	Issuer        string
	Audience      string
	// Leeway tolerates clock drift when validating exp and iat.
	Leeway time.Duration
	// AccessTTLByRole maps each role to its access token lifetime.
	// Unknown roles fall back to DefaultAccessTTL.
	AccessTTLByRole  map[string]time.Duration
	DefaultAccessTTL time.Duration
	RefreshTTL       time.Duration
}

// RateLimitConfig bounds login attempts per source address.
type RateLimitConfig struct {
	MaxAttempts         int64
	Window              time.Duration
	BlockDuration       time.Duration
	SuspiciousThreshold int64
	SuspiciousWindow    time.Duration
}

// LockoutConfig governs per-account lockout after repeated password
// failures.
type LockoutConfig struct {
	// Threshold is the consecutive failure count that locks the account.
	Threshold int
	// Duration is how long the lock holds.
	Duration time.Duration
}

// MFAConfig governs second-factor challenges.
type MFAConfig struct {
	// ChallengeTTL bounds how long a login challenge stays redeemable.
	ChallengeTTL time.Duration
	// ChallengeMaxAttempts consumes the challenge after this many wrong
	// codes.
	ChallengeMaxAttempts int
	// SMSCodeTTL is the delivery-to-expiry window for SMS codes.
	SMSCodeTTL time.Duration
	// SMSCodeDigits is the length of generated SMS codes.
	SMSCodeDigits int
	// AttemptLimit and AttemptWindow throttle verification attempts per
	// user across all factors.
	AttemptLimit  int64
	AttemptWindow time.Duration
	// TOTPSkew is how many 30-second steps either side of now a TOTP
	// code may land in.
	TOTPSkew uint
	// PendingEnrollmentTTL bounds how long a provisioned TOTP secret
	// waits for confirmation before it is discarded.
	PendingEnrollmentTTL time.Duration
	// BackupCodeCount is how many recovery codes enrollment generates.
	BackupCodeCount int
}

// BreakerConfig tunes the circuit breakers guarding the credential store
// and the SMS provider.
type BreakerConfig struct {
	CallTimeout      time.Duration
	FailureThreshold float64
	MinRequests      uint32
	OpenTimeout      time.Duration
}

// AuditConfig governs asynchronous audit emission.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking callers when the
	// buffer is full.
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			Issuer: "authcore",
			Leeway: 30 * time.Second,
			AccessTTLByRole: map[string]time.Duration{
				RoleAdministrator:  15 * time.Minute,
				RoleUnderwriter:    15 * time.Minute,
				RoleBroker:         60 * time.Minute,
				RoleHRPersonnel:    60 * time.Minute,
				RoleParentGuardian: 30 * time.Minute,
				RoleBeneficiary:    5 * time.Minute,
			},
			DefaultAccessTTL: 15 * time.Minute,
			RefreshTTL:       7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:         5,
			Window:              5 * time.Minute,
			BlockDuration:       15 * time.Minute,
			SuspiciousThreshold: 20,
			SuspiciousWindow:    time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		MFA: MFAConfig{
			ChallengeTTL:         5 * time.Minute,
			ChallengeMaxAttempts: 5,
			SMSCodeTTL:           5 * time.Minute,
			SMSCodeDigits:        6,
			AttemptLimit:         5,
			AttemptWindow:        time.Minute,
			TOTPSkew:             1,
			PendingEnrollmentTTL: 10 * time.Minute,
			BackupCodeCount:      8,
		},
		Breaker: BreakerConfig{
			CallTimeout:      5 * time.Second,
			FailureThreshold: 0.5,
			MinRequests:      10,
			OpenTimeout:      30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Password: password.Config{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case len(c.Tokens.SigningSecret) < 32:
		return errors.New("tokens: signing secret must be at least 32 bytes")
	case c.Tokens.Issuer == "":
		return errors.New("tokens: issuer required")
	case c.Tokens.DefaultAccessTTL <= 0:
		return errors.New("tokens: default access ttl must be positive")
	case c.Tokens.RefreshTTL <= 0:
		return errors.New("tokens: refresh ttl must be positive")
	}
	for role, ttl := range c.Tokens.AccessTTLByRole {
		if ttl <= 0 {
			return errors.New("tokens: access ttl for role " + role + " must be positive")
		}
	}

	switch {
	case c.RateLimit.MaxAttempts <= 0:
		return errors.New("rate limit: max attempts must be positive")
	case c.RateLimit.Window <= 0:
		return errors.New("rate limit: window must be positive")
	case c.RateLimit.BlockDuration <= 0:
		return errors.New("rate limit: block duration must be positive")
	case c.RateLimit.SuspiciousThreshold <= 0:
		return errors.New("rate limit: suspicious threshold must be positive")
	case c.RateLimit.SuspiciousWindow <= 0:
		return errors.New("rate limit: suspicious window must be positive")
	}

	switch {
	case c.Lockout.Threshold <= 0:
		return errors.New("lockout: threshold must be positive")
	case c.Lockout.Duration <= 0:
		return errors.New("lockout: duration must be positive")
	}

	switch {
	case c.MFA.ChallengeTTL <= 0:
		return errors.New("mfa: challenge ttl must be positive")
	case c.MFA.ChallengeMaxAttempts <= 0:
		return errors.New("mfa: challenge max attempts must be positive")
	case c.MFA.SMSCodeTTL <= 0:
		return errors.New("mfa: sms code ttl must be positive")
	case c.MFA.SMSCodeDigits < 6 || c.MFA.SMSCodeDigits > 10:
		return errors.New("mfa: sms code digits must be between 6 and 10")
	case c.MFA.AttemptLimit <= 0:
		return errors.New("mfa: attempt limit must be positive")
	case c.MFA.AttemptWindow <= 0:
		return errors.New("mfa: attempt window must be positive")
	case c.MFA.PendingEnrollmentTTL <= 0:
		return errors.New("mfa: pending enrollment ttl must be positive")
	case c.MFA.BackupCodeCount <= 0:
		return errors.New("mfa: backup code count must be positive")
	}

	switch {
	case c.Breaker.CallTimeout <= 0:
		return errors.New("breaker: call timeout must be positive")
	case c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1:
		return errors.New("breaker: failure threshold must be in (0, 1]")
	case c.Breaker.MinRequests == 0:
		return errors.New("breaker: min requests must be positive")
	case c.Breaker.OpenTimeout <= 0:
		return errors.New("breaker: open timeout must be positive")
	}

	return nil
}

// AccessTTL returns the access token lifetime for role.
func (c *TokenConfig) AccessTTL(role string) time.Duration {
	if ttl, ok := c.AccessTTLByRole[role]; ok {
		return ttl
	}
	return c.DefaultAccessTTL
}
