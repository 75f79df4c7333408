package authcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/austa-platform/authcore/credential"
	"github.com/austa-platform/authcore/internal"
	"github.com/austa-platform/authcore/internal/breaker"
	"github.com/austa-platform/authcore/internal/stores"
)

// VerifyMFA completes a challenged login. On a correct code the challenge
// is consumed and a fresh token pair issued; wrong codes burn one of the
// challenge's attempts and, past the budget, the challenge itself.
func (e *Engine) VerifyMFA(ctx context.Context, challengeID string, method MFAMethod, code string) (*LoginResult, error) {
	challenge, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	allowed, err := e.mfaLimiter.Allow(ctx, challenge.UserID)
	if err != nil {
		e.logger.Warn("mfa limiter failure", zap.Error(err))
		return nil, ErrServiceUnavailable
	}
	if !allowed {
		e.metrics.Inc(MetricMFAThrottled)
		e.emitAudit(ctx, "mfa.throttled", challenge.UserID, "", false, ErrMFAThrottled, nil)
		return nil, ErrMFAThrottled
	}

	user, err := e.findUserByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrMFAChallengeInvalid
		}
		return nil, err
	}

	ok, usedBackup, err := e.verifyFactor(ctx, user, method, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		exceeded, recErr := e.challenges.RecordFailure(ctx, challengeID, e.config.MFA.ChallengeMaxAttempts)
		if recErr != nil && !errors.Is(recErr, stores.ErrChallengeNotFound) && !errors.Is(recErr, stores.ErrChallengeExpired) {
			e.logger.Warn("challenge failure accounting error", zap.Error(recErr))
		}
		e.metrics.Inc(MetricMFAFailure)
		metadata := map[string]string{"method": string(method)}
		if exceeded {
			metadata["challenge_consumed"] = "true"
		}
		e.emitAudit(ctx, "mfa.failure", user.ID, "", false, ErrInvalidMFACode, metadata)
		return nil, ErrInvalidMFACode
	}

	if usedBackup {
		if user, err = e.saveUser(ctx, user); err != nil {
			return nil, err
		}
		e.metrics.Inc(MetricBackupCodeUsed)
	}

	if _, err := e.challenges.Delete(ctx, challengeID); err != nil {
		return nil, ErrServiceUnavailable
	}
	if err := e.mfaLimiter.Reset(ctx, user.ID); err != nil {
		e.logger.Warn("mfa limiter reset failure", zap.Error(err))
	}

	pair, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricMFASuccess)
	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, "mfa.success", user.ID, pair.SessionID, true, nil, map[string]string{"method": string(method)})
	return &LoginResult{
		Tokens: pair,
		User:   projectUser(user),
	}, nil
}

// verifyFactor checks code for the given method. usedBackup reports that a
// recovery code was consumed off the user record, which the caller must
// persist.
func (e *Engine) verifyFactor(ctx context.Context, user *credential.User, method MFAMethod, code string) (ok, usedBackup bool, err error) {
	switch method {
	case MethodTOTP:
		if user.TOTPSecret == "" {
			return false, false, ErrMFANotConfigured
		}
		return e.totp.validate(user.TOTPSecret, code), false, nil

	case MethodSMS:
		digest, err := e.smsCodes.Get(ctx, user.ID)
		if err != nil {
			if errors.Is(err, stores.ErrSMSCodeNotFound) {
				return false, false, nil
			}
			return false, false, ErrServiceUnavailable
		}
		presented := internal.EncodeHash(internal.HashCode(code))
		if !internal.ConstantTimeEqualString(digest, presented) {
			return false, false, nil
		}
		if err := e.smsCodes.Delete(ctx, user.ID); err != nil {
			return false, false, ErrServiceUnavailable
		}
		return true, false, nil

	case MethodBackupCode:
		presented := internal.EncodeHash(internal.HashCode(code))
		for i, hash := range user.BackupCodeHashes {
			if internal.ConstantTimeEqualString(hash, presented) {
				user.BackupCodeHashes = append(user.BackupCodeHashes[:i], user.BackupCodeHashes[i+1:]...)
				return true, true, nil
			}
		}
		return false, false, nil

	default:
		return false, false, ErrMFANotConfigured
	}
}

// RequestSMSCode generates and delivers a one-time code for an open login
// challenge. A prior undelivered code is superseded.
func (e *Engine) RequestSMSCode(ctx context.Context, challengeID string) error {
	challenge, err := e.getChallenge(ctx, challengeID)
	if err != nil {
		return err
	}

	user, err := e.findUserByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrMFAChallengeInvalid
		}
		return err
	}
	if e.smsSender == nil || user.PhoneNumber == "" {
		return ErrMFANotConfigured
	}

	code, err := internal.NewOTP(e.config.MFA.SMSCodeDigits)
	if err != nil {
		return ErrServiceUnavailable
	}
	digest := internal.EncodeHash(internal.HashCode(code))
	if err := e.smsCodes.Save(ctx, user.ID, digest, e.config.MFA.SMSCodeTTL); err != nil {
		return ErrServiceUnavailable
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(e.config.MFA.SMSCodeTTL.Minutes()))
	_, err = breaker.Do(ctx, e.smsBreaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.smsSender.Send(ctx, user.PhoneNumber, message)
	})
	if err != nil {
		if errors.Is(err, breaker.ErrUnavailable) {
			e.metrics.Inc(MetricBreakerOpen)
		}
		e.logger.Warn("sms delivery failure", zap.String("user_id", user.ID), zap.Error(err))
		return ErrServiceUnavailable
	}

	e.metrics.Inc(MetricSMSCodeSent)
	e.emitAudit(ctx, "mfa.sms_sent", user.ID, "", true, nil, nil)
	return nil
}

func (e *Engine) getChallenge(ctx context.Context, challengeID string) (*stores.LoginChallenge, error) {
	challenge, err := e.challenges.Get(ctx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound):
			return nil, ErrMFAChallengeInvalid
		case errors.Is(err, stores.ErrChallengeExpired):
			return nil, ErrMFAChallengeExpired
		default:
			return nil, ErrServiceUnavailable
		}
	}
	return challenge, nil
}

// ProvisionTOTP starts authenticator enrollment for a user. The returned
// secret and recovery codes are shown exactly once; nothing touches the
// credential record until ConfirmTOTPSetup proves the user captured the
// secret.
func (e *Engine) ProvisionTOTP(ctx context.Context, userID string) (*TOTPProvision, error) {
	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	secret, url, err := e.totp.provision(user.Email)
	if err != nil {
		e.logger.Error("totp provisioning failure", zap.String("user_id", userID), zap.Error(err))
		return nil, ErrServiceUnavailable
	}

	backupCodes, err := generateBackupCodes(e.config.MFA.BackupCodeCount)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	hashes := make([]string, len(backupCodes))
	for i, bc := range backupCodes {
		hashes[i] = internal.EncodeHash(internal.HashCode(bc))
	}

	pending := &stores.PendingTOTP{
		Secret:           secret,
		BackupCodeHashes: hashes,
	}
	if err := e.pendingTOTP.Save(ctx, userID, pending, e.config.MFA.PendingEnrollmentTTL); err != nil {
		return nil, ErrServiceUnavailable
	}

	e.emitAudit(ctx, "mfa.totp_provisioned", userID, "", true, nil, nil)
	return &TOTPProvision{
		Secret:      secret,
		OTPAuthURL:  url,
		BackupCodes: backupCodes,
	}, nil
}

// ConfirmTOTPSetup finishes enrollment by validating a code against the
// pending secret, then persists the secret and recovery code hashes and
// enables the second factor.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) error {
	pending, err := e.pendingTOTP.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, stores.ErrPendingTOTPNotFound) {
			return ErrMFANotConfigured
		}
		return ErrServiceUnavailable
	}

	if !e.totp.validate(pending.Secret, code) {
		e.metrics.Inc(MetricMFAFailure)
		return ErrInvalidMFACode
	}

	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	user.TOTPSecret = pending.Secret
	user.BackupCodeHashes = pending.BackupCodeHashes
	user.MFAEnabled = true
	if _, err := e.saveUser(ctx, user); err != nil {
		return err
	}
	if err := e.pendingTOTP.Delete(ctx, userID); err != nil {
		e.logger.Warn("pending enrollment cleanup failure", zap.Error(err))
	}

	e.emitAudit(ctx, "mfa.totp_confirmed", userID, "", true, nil, nil)
	return nil
}
