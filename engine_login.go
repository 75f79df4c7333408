package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/austa-platform/authcore/credential"
	"github.com/austa-platform/authcore/internal"
	"github.com/austa-platform/authcore/internal/stores"
)

// unknownIP buckets logins whose context carries no client address.
const unknownIP = "unknown"

// Login performs the first authentication step: rate limiting, credential
// verification, and lockout accounting.
//
// When the account owes a second factor the result carries an opaque
// challenge instead of tokens; the client completes the login through
// VerifyMFA. Unknown emails and wrong passwords are indistinguishable from
// the outside.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	ip := clientIPFromContext(ctx)
	if ip == "" {
		ip = unknownIP
	}

	allowed, err := e.loginLimiter.Allow(ctx, ip)
	if err != nil {
		e.logger.Warn("login limiter failure", zap.Error(err))
		return nil, ErrServiceUnavailable
	}
	if !allowed {
		e.metrics.Inc(MetricLoginRateLimited)
		e.emitAudit(ctx, "login.rate_limited", "", "", false, ErrRateLimited, nil)
		return nil, ErrRateLimited
	}
	if err := e.loginLimiter.Consume(ctx, ip); err != nil {
		e.logger.Warn("login limiter failure", zap.Error(err))
		return nil, ErrServiceUnavailable
	}

	// Flagged addresses are turned away before any credential lookup.
	suspicious, err := e.loginLimiter.IsSuspicious(ctx, ip)
	if err != nil {
		e.logger.Warn("suspicion lookup failure", zap.Error(err))
		return nil, ErrServiceUnavailable
	}
	if suspicious {
		e.metrics.Inc(MetricLoginSuspicious)
		e.emitAudit(ctx, "login.suspicious", "", "", false, ErrSuspiciousActivity, nil)
		return nil, ErrSuspiciousActivity
	}

	user, err := e.findUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, e.failLogin(ctx, ip, "", ErrInvalidCredentials)
		}
		return nil, err
	}

	if user.Locked(time.Now()) {
		e.metrics.Inc(MetricAccountLocked)
		e.emitAudit(ctx, "login.locked", user.ID, "", false, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		e.logger.Error("password verification failure", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrServiceUnavailable
	}
	if !ok {
		if lockErr := e.recordPasswordFailure(ctx, user); lockErr != nil {
			return nil, lockErr
		}
		return nil, e.failLogin(ctx, ip, user.ID, ErrInvalidCredentials)
	}

	user.LoginAttempts = 0
	user.LockoutUntil = nil
	now := time.Now().UTC()
	user.LastLogin = &now
	user.LastIPAddress = ip
	if user, err = e.saveUser(ctx, user); err != nil {
		return nil, err
	}

	if err := e.loginLimiter.Reset(ctx, ip); err != nil {
		e.logger.Warn("login limiter reset failure", zap.Error(err))
	}

	methods := e.availableMFAMethods(user)
	if (user.MFAEnabled || MFARequiredForRole(user.Role)) && len(methods) > 0 {
		challengeID, err := e.issueChallenge(ctx, user)
		if err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricMFARequired)
		e.emitAudit(ctx, "login.mfa_required", user.ID, "", true, nil, nil)
		return &LoginResult{
			MFARequired:  true,
			MFAChallenge: challengeID,
			MFAMethods:   methods,
			User:         projectUser(user),
		}, nil
	}

	if MFARequiredForRole(user.Role) && len(methods) == 0 {
		// Policy demands a factor this account never enrolled; the login
		// proceeds but the gap is surfaced.
		e.emitAudit(ctx, "login.mfa_unenrolled", user.ID, "", true, nil,
			map[string]string{"role": user.Role})
		e.logger.Warn("mfa-required role has no enrolled factor",
			zap.String("user_id", user.ID), zap.String("role", user.Role))
	}

	pair, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, "login.success", user.ID, pair.SessionID, true, nil, nil)
	return &LoginResult{
		Tokens: pair,
		User:   projectUser(user),
	}, nil
}

// failLogin records a failed attempt against the source address and
// returns cause. Crossing the suspicion threshold is noted but does not
// change the response; the caller still sees the uniform failure.
func (e *Engine) failLogin(ctx context.Context, ip, userID string, cause error) error {
	e.metrics.Inc(MetricLoginFailure)

	flagged, err := e.loginLimiter.RecordFailure(ctx, ip)
	if err != nil {
		e.logger.Warn("suspicion counter failure", zap.Error(err))
	} else if flagged {
		e.metrics.Inc(MetricLoginSuspicious)
		e.emitAudit(ctx, "login.suspicious", userID, "", false, ErrSuspiciousActivity, nil)
		e.logger.Warn("suspicious login activity", zap.String("ip", ip))
	}

	e.emitAudit(ctx, "login.failure", userID, "", false, cause, nil)
	return cause
}

// recordPasswordFailure bumps the account's consecutive failure count and
// locks it at the threshold. The count survives the lockout; only a
// successful login clears it.
func (e *Engine) recordPasswordFailure(ctx context.Context, user *credential.User) error {
	user.LoginAttempts++
	if user.LoginAttempts >= e.config.Lockout.Threshold {
		until := time.Now().UTC().Add(e.config.Lockout.Duration)
		user.LockoutUntil = &until
		e.metrics.Inc(MetricAccountLocked)
		e.emitAudit(ctx, "account.locked", user.ID, "", false, ErrAccountLocked, nil)
		e.logger.Warn("account locked after repeated failures", zap.String("user_id", user.ID))
	}
	if _, err := e.saveUser(ctx, user); err != nil {
		return err
	}
	return nil
}

// availableMFAMethods lists the factors this account can actually
// complete. A role may mandate a second factor, but an account that never
// enrolled one has nothing to challenge.
func (e *Engine) availableMFAMethods(user *credential.User) []MFAMethod {
	var methods []MFAMethod
	if user.TOTPSecret != "" {
		methods = append(methods, MethodTOTP)
	}
	if user.PhoneNumber != "" && e.smsSender != nil {
		methods = append(methods, MethodSMS)
	}
	if len(user.BackupCodeHashes) > 0 {
		methods = append(methods, MethodBackupCode)
	}
	return methods
}

func (e *Engine) issueChallenge(ctx context.Context, user *credential.User) (string, error) {
	challengeID, err := internal.NewChallengeID()
	if err != nil {
		return "", ErrServiceUnavailable
	}
	record := &stores.LoginChallenge{
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(e.config.MFA.ChallengeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challengeID, record, e.config.MFA.ChallengeTTL); err != nil {
		e.logger.Warn("challenge store failure", zap.Error(err))
		return "", ErrServiceUnavailable
	}
	return challengeID, nil
}

// DetectSuspiciousActivity reports whether ip has accumulated enough
// recent login failures to be flagged.
func (e *Engine) DetectSuspiciousActivity(ctx context.Context, ip string) (bool, error) {
	suspicious, err := e.loginLimiter.IsSuspicious(ctx, ip)
	if err != nil {
		return false, ErrServiceUnavailable
	}
	return suspicious, nil
}
