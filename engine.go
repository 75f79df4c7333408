package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/austa-platform/authcore/credential"
	"github.com/austa-platform/authcore/internal/breaker"
	"github.com/austa-platform/authcore/internal/limiters"
	"github.com/austa-platform/authcore/internal/rate"
	"github.com/austa-platform/authcore/internal/stores"
	"github.com/austa-platform/authcore/jwt"
	"github.com/austa-platform/authcore/password"
	"github.com/austa-platform/authcore/session"
)

// Engine is the authentication core. Construct one with New().Build() and
// share it; all methods are safe for concurrent use.
type Engine struct {
	config Config
	logger *zap.Logger

	credentials credential.Store
	smsSender   SMSSender

	credBreaker *breaker.Breaker
	smsBreaker  *breaker.Breaker

	hasher   *password.Hasher
	tokens   *jwt.Manager
	sessions *session.Store

	loginLimiter *rate.LoginLimiter
	mfaLimiter   *limiters.MFALimiter
	challenges   *stores.LoginChallengeStore
	smsCodes     *stores.SMSCodeStore
	pendingTOTP  *stores.PendingTOTPStore
	totp         *totpManager

	audit   *auditDispatcher
	metrics *Metrics
}

// Close flushes the audit queue. The Engine must not be used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// findUserByEmail routes the lookup through the credential-store breaker.
// A missing user passes through untouched so callers can fold it into
// their uniform failure response.
func (e *Engine) findUserByEmail(ctx context.Context, email string) (*credential.User, error) {
	user, err := breaker.Do(ctx, e.credBreaker, func(ctx context.Context) (*credential.User, error) {
		return e.credentials.FindByEmail(ctx, email)
	})
	if err != nil {
		return nil, e.mapStoreError(err)
	}
	return user, nil
}

func (e *Engine) findUserByID(ctx context.Context, id string) (*credential.User, error) {
	user, err := breaker.Do(ctx, e.credBreaker, func(ctx context.Context) (*credential.User, error) {
		return e.credentials.FindByID(ctx, id)
	})
	if err != nil {
		return nil, e.mapStoreError(err)
	}
	return user, nil
}

func (e *Engine) saveUser(ctx context.Context, user *credential.User) (*credential.User, error) {
	stored, err := breaker.Do(ctx, e.credBreaker, func(ctx context.Context) (*credential.User, error) {
		return e.credentials.Save(ctx, user)
	})
	if err != nil {
		return nil, e.mapStoreError(err)
	}
	return stored, nil
}

// mapStoreError normalizes dependency failures. credential.ErrNotFound is
// preserved; breaker rejections and everything else become
// ErrServiceUnavailable.
func (e *Engine) mapStoreError(err error) error {
	if errors.Is(err, credential.ErrNotFound) {
		return err
	}
	if errors.Is(err, breaker.ErrUnavailable) {
		e.metrics.Inc(MetricBreakerOpen)
	}
	e.logger.Warn("credential store failure", zap.Error(err))
	return ErrServiceUnavailable
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, sessionID string, success bool, failure error, metadata map[string]string) {
	if e.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	e.audit.Emit(ctx, event)
}

// projectUser strips secret material from a user record.
func projectUser(u *credential.User) *UserProjection {
	return &UserProjection{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		MFAEnabled:  u.MFAEnabled,
		LastLogin:   u.LastLogin,
		PhoneNumber: u.PhoneNumber,
	}
}
