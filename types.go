package authcore

import (
	"context"
	"time"

	"github.com/austa-platform/authcore/internal/audit"
)

// Platform roles. Session lifetimes and second-factor policy key off these.
const (
	RoleAdministrator  = "administrator"
	RoleUnderwriter    = "underwriter"
	RoleBroker         = "broker"
	RoleHRPersonnel    = "hr-personnel"
	RoleBeneficiary    = "beneficiary"
	RoleParentGuardian = "parent-guardian"
)

// MFAMethod identifies which second factor satisfied, or is expected to
// satisfy, a login challenge.
type MFAMethod string

const (
	// MethodTOTP is an authenticator-app time-based code.
	MethodTOTP MFAMethod = "totp"
	// MethodSMS is a one-time code delivered by text message.
	MethodSMS MFAMethod = "sms"
	// MethodBackupCode is a single-use recovery code.
	MethodBackupCode MFAMethod = "backup"
)

// TokenPair is one issuance event: an access token and the refresh token
// that can replace it.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
}

// UserProjection is the sanitized user view returned to callers. It never
// carries the password hash, TOTP secret, or backup codes.
type UserProjection struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	Role        string
	MFAEnabled  bool
	LastLogin   *time.Time
	PhoneNumber string
}

// LoginResult is the outcome of a successful first login step. Exactly one
// of two shapes comes back: tokens (MFARequired false) or a challenge
// (MFARequired true, empty tokens). No token is usable before the second
// factor completes.
type LoginResult struct {
	MFARequired bool
	// MFAChallenge is the opaque single-use handle the client passes to
	// VerifyMFA. Set only when MFARequired is true.
	MFAChallenge string
	// MFAMethods lists the factors that can complete the challenge.
	MFAMethods []MFAMethod
	Tokens     *TokenPair
	User       *UserProjection
}

// SessionInfo describes a validated access token.
type SessionInfo struct {
	UserID    string
	Role      string
	SessionID string
	ExpiresAt time.Time
}

// TOTPProvision is the setup material returned when a user enrolls an
// authenticator app. The secret is handed to the caller exactly once and
// only persisted after ConfirmTOTPSetup proves the user captured it.
type TOTPProvision struct {
	Secret      string
	OTPAuthURL  string
	BackupCodes []string
}

// SMSSender delivers one-time codes. Implementations wrap the platform's
// SMS provider; the engine guards every call with a circuit breaker.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}

// AuditEvent is re-exported so sinks can be implemented without importing
// the internal audit package.
type AuditEvent = audit.Event

// AuditSink receives audit events emitted by the engine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink
