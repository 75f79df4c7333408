package authcore

import "errors"

// Sentinel errors returned by Engine operations. Callers branch with
// errors.Is; anything not listed here is an internal failure.
//
// ErrInvalidCredentials deliberately covers both unknown emails and wrong
// passwords so responses never reveal whether an email is registered.
var (
	// ErrInvalidCredentials is returned when the email or password does
	// not check out.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while an account is under an active
	// lockout window.
	ErrAccountLocked = errors.New("account locked")

	// ErrRateLimited is returned when the source address has exhausted
	// its login attempt budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrSuspiciousActivity is returned when the source address has
	// accumulated enough failures to be flagged.
	ErrSuspiciousActivity = errors.New("suspicious activity detected")

	// ErrMFARequired signals that password verification succeeded but a
	// second factor must be completed before tokens are issued.
	ErrMFARequired = errors.New("mfa required")

	// ErrInvalidMFACode is returned for a wrong TOTP, SMS, or backup
	// code.
	ErrInvalidMFACode = errors.New("invalid mfa code")

	// ErrMFAThrottled is returned when the user has exceeded the
	// verification attempt budget.
	ErrMFAThrottled = errors.New("mfa attempts throttled")

	// ErrMFAChallengeInvalid is returned for an unknown or already
	// consumed login challenge.
	ErrMFAChallengeInvalid = errors.New("mfa challenge invalid")

	// ErrMFAChallengeExpired is returned when the login challenge's
	// window has closed; the client must restart the login.
	ErrMFAChallengeExpired = errors.New("mfa challenge expired")

	// ErrMFANotConfigured is returned when an operation needs a factor
	// the account has not set up.
	ErrMFANotConfigured = errors.New("mfa not configured")

	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned for malformed tokens, bad signatures,
	// and tokens whose session no longer exists.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenVersionMismatch is returned when a refresh token carries a
	// stale token version, meaning all sessions were invalidated after it
	// was issued.
	ErrTokenVersionMismatch = errors.New("token version mismatch")

	// ErrTokenBlacklisted is returned for tokens that were explicitly
	// revoked.
	ErrTokenBlacklisted = errors.New("token blacklisted")

	// ErrTokenReuse is returned when a refresh token that is not the
	// user's current one is presented, which indicates replay of a
	// rotated token.
	ErrTokenReuse = errors.New("refresh token reuse detected")

	// ErrUserNotFound is returned by operations addressed to a specific
	// user ID that does not exist. Login never returns it.
	ErrUserNotFound = errors.New("user not found")

	// ErrServiceUnavailable is returned when a dependency is down or its
	// circuit is open.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrEngineNotReady is returned when the builder was not given every
	// required dependency.
	ErrEngineNotReady = errors.New("engine not ready")
)
