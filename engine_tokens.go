package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/austa-platform/authcore/credential"
	"github.com/austa-platform/authcore/internal"
	"github.com/austa-platform/authcore/jwt"
	"github.com/austa-platform/authcore/session"
)

// issueTokens mints a fresh access/refresh pair for user and records the
// refresh token's digest as the user's single active reference. Issuing
// for a user who already holds a session retires the previous refresh
// token.
func (e *Engine) issueTokens(ctx context.Context, user *credential.User) (*TokenPair, error) {
	now := time.Now()
	sessionID := uuid.NewString()
	accessTTL := e.config.Tokens.AccessTTL(user.Role)
	refreshTTL := e.config.Tokens.RefreshTTL

	accessToken, err := e.tokens.MintAccess(user.ID, user.Role, sessionID, uuid.NewString(), accessTTL)
	if err != nil {
		e.logger.Error("access token mint failed", zap.Error(err))
		return nil, ErrServiceUnavailable
	}
	refreshToken, err := e.tokens.MintRefresh(user.ID, sessionID, uuid.NewString(), user.TokenVersion, refreshTTL)
	if err != nil {
		e.logger.Error("refresh token mint failed", zap.Error(err))
		return nil, ErrServiceUnavailable
	}

	digest := internal.EncodeHash(internal.HashToken(refreshToken))
	if err := e.sessions.SaveRefreshReference(ctx, user.ID, digest, refreshTTL); err != nil {
		e.logger.Warn("refresh reference write failed", zap.Error(err))
		return nil, ErrServiceUnavailable
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: now.Add(refreshTTL),
		SessionID:        sessionID,
	}, nil
}

// Refresh rotates a refresh token: the presented token is retired and a
// fresh pair is issued. Presenting a token that is not the user's current
// one is treated as replay; the active session is revoked and
// ErrTokenReuse returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	digest := internal.EncodeHash(internal.HashToken(refreshToken))
	blacklisted, err := e.sessions.IsBlacklisted(ctx, digest)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	if blacklisted {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, "token.refresh", claims.UserID, claims.SessionID, false, ErrTokenBlacklisted, nil)
		return nil, ErrTokenBlacklisted
	}

	user, err := e.findUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if user.TokenVersion != claims.TokenVersion {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, "token.refresh", user.ID, claims.SessionID, false, ErrTokenVersionMismatch, nil)
		return nil, ErrTokenVersionMismatch
	}

	stored, err := e.sessions.GetRefreshReference(ctx, user.ID)
	if err != nil {
		if errors.Is(err, session.ErrNoReference) {
			e.metrics.Inc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, ErrServiceUnavailable
	}
	if !internal.ConstantTimeEqualString(stored, digest) {
		// A rotated-out token came back. Someone is replaying it, or the
		// legitimate client lost the rotation race; either way the safe
		// move is to end the session.
		_ = e.sessions.DeleteRefreshReference(ctx, user.ID)
		e.metrics.Inc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, "token.reuse", user.ID, claims.SessionID, false, ErrTokenReuse, nil)
		e.logger.Warn("refresh token reuse detected", zap.String("user_id", user.ID))
		return nil, ErrTokenReuse
	}

	if err := e.sessions.Blacklist(ctx, digest, time.Until(claims.ExpiresAt.Time)); err != nil {
		return nil, ErrServiceUnavailable
	}

	pair, err := e.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, "token.refresh", user.ID, pair.SessionID, true, nil, nil)
	return pair, nil
}

// Logout revokes both tokens of a session. The access token is
// blacklisted for its remaining lifetime and the user's refresh reference
// is dropped, so neither token works afterwards. Already expired tokens
// are fine; logout is idempotent.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var userID, sessionID string

	if claims, err := e.tokens.ParseAccess(accessToken); err == nil {
		userID = claims.UserID
		sessionID = claims.SessionID
		digest := internal.EncodeHash(internal.HashToken(accessToken))
		if err := e.sessions.Blacklist(ctx, digest, time.Until(claims.ExpiresAt.Time)); err != nil {
			return ErrServiceUnavailable
		}
	}

	if claims, err := e.tokens.ParseRefresh(refreshToken); err == nil {
		if userID == "" {
			userID = claims.UserID
			sessionID = claims.SessionID
		}
		digest := internal.EncodeHash(internal.HashToken(refreshToken))
		if err := e.sessions.Blacklist(ctx, digest, time.Until(claims.ExpiresAt.Time)); err != nil {
			return ErrServiceUnavailable
		}
	}

	if userID == "" {
		return ErrTokenInvalid
	}

	if err := e.sessions.DeleteRefreshReference(ctx, userID); err != nil {
		return ErrServiceUnavailable
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, "session.logout", userID, sessionID, true, nil, nil)
	return nil
}

// ValidateSession checks an access token and returns the session it
// represents.
func (e *Engine) ValidateSession(ctx context.Context, accessToken string) (*SessionInfo, error) {
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		e.metrics.Inc(MetricValidateFailure)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	digest := internal.EncodeHash(internal.HashToken(accessToken))
	blacklisted, err := e.sessions.IsBlacklisted(ctx, digest)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	if blacklisted {
		e.metrics.Inc(MetricValidateFailure)
		return nil, ErrTokenBlacklisted
	}

	e.metrics.Inc(MetricValidateSuccess)
	return &SessionInfo{
		UserID:    claims.UserID,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ValidateRefreshToken checks a refresh token without rotating it:
// signature and expiry, the blacklist, and the user's current token
// version. A token that passes here would still be subject to the
// stored-reference check on an actual Refresh.
func (e *Engine) ValidateRefreshToken(ctx context.Context, refreshToken string) (*SessionInfo, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricValidateFailure)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	digest := internal.EncodeHash(internal.HashToken(refreshToken))
	blacklisted, err := e.sessions.IsBlacklisted(ctx, digest)
	if err != nil {
		return nil, ErrServiceUnavailable
	}
	if blacklisted {
		e.metrics.Inc(MetricValidateFailure)
		return nil, ErrTokenBlacklisted
	}

	user, err := e.findUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			e.metrics.Inc(MetricValidateFailure)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if user.TokenVersion != claims.TokenVersion {
		e.metrics.Inc(MetricValidateFailure)
		return nil, ErrTokenVersionMismatch
	}

	e.metrics.Inc(MetricValidateSuccess)
	return &SessionInfo{
		UserID:    claims.UserID,
		Role:      user.Role,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// InvalidateAllSessions bumps the user's token version, which rejects
// every outstanding refresh token at its next rotation, and drops the
// active refresh reference.
func (e *Engine) InvalidateAllSessions(ctx context.Context, userID string) error {
	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	user.TokenVersion++
	if _, err := e.saveUser(ctx, user); err != nil {
		return err
	}
	if err := e.sessions.DeleteRefreshReference(ctx, userID); err != nil {
		return ErrServiceUnavailable
	}

	e.metrics.Inc(MetricSessionsInvalidated)
	e.emitAudit(ctx, "session.invalidate_all", userID, "", true, nil, nil)
	return nil
}
