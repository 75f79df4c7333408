package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
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

// Builder assembles an Engine. Configure it fluently, then call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials credential.Store
	smsSender   SMSSender
	auditSink   AuditSink
	logger      *zap.Logger

	built bool
}

// New returns a Builder preloaded with production defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithSigningSecret sets the HS256 token signing key without replacing the
// rest of the defaults.
func (b *Builder) WithSigningSecret(secret []byte) *Builder {
	b.config.Tokens.SigningSecret = secret
	return b
}

// WithRedis sets the shared key-value store client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the user record adapter. Required.
func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.credentials = store
	return b
}

// WithSMSSender sets the SMS delivery adapter. Optional; without it SMS
// challenges are rejected as not configured.
func (b *Builder) WithSMSSender(sender SMSSender) *Builder {
	b.smsSender = sender
	return b
}

// WithLogger sets the structured logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires the dependencies, and returns
// the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrEngineNotReady)
	}
	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client required", ErrEngineNotReady)
	}
	if b.credentials == nil {
		return nil, fmt.Errorf("%w: credential store required", ErrEngineNotReady)
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	tokens, err := jwt.NewManager(jwt.Config{
		SigningSecret: cfg.Tokens.SigningSecret,
		Issuer:        cfg.Tokens.Issuer,
		Audience:      cfg.Tokens.Audience,
		Leeway:        cfg.Tokens.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotReady, err)
	}

	onStateChange := func(name, from, to string) {
		logger.Warn("circuit breaker state change",
			zap.String("breaker", name),
			zap.String("from", from),
			zap.String("to", to),
		)
	}

	engine := &Engine{
		config:      cfg,
		logger:      logger,
		credentials: b.credentials,
		smsSender:   b.smsSender,
		hasher:      hasher,
		tokens:      tokens,
		sessions:    session.NewStore(b.redis),
		loginLimiter: rate.NewLoginLimiter(b.redis, rate.Config{
			MaxAttempts:         cfg.RateLimit.MaxAttempts,
			Window:              cfg.RateLimit.Window,
			BlockDuration:       cfg.RateLimit.BlockDuration,
			SuspiciousThreshold: cfg.RateLimit.SuspiciousThreshold,
			SuspiciousWindow:    cfg.RateLimit.SuspiciousWindow,
		}),
		mfaLimiter: limiters.NewMFALimiter(b.redis, cfg.MFA.AttemptLimit, cfg.MFA.AttemptWindow),
		challenges:  stores.NewLoginChallengeStore(b.redis, ""),
		smsCodes:    stores.NewSMSCodeStore(b.redis, ""),
		pendingTOTP: stores.NewPendingTOTPStore(b.redis, ""),
		totp:       newTOTPManager(cfg.Tokens.Issuer, cfg.MFA.TOTPSkew),
		credBreaker: breaker.New(breaker.Config{
			Name:             "credential-store",
			CallTimeout:      cfg.Breaker.CallTimeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			OnStateChange:    onStateChange,
			// Not-found is a healthy answer and a cancelled caller is
			// not a store fault; neither counts against the circuit.
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, credential.ErrNotFound) ||
					errors.Is(err, context.Canceled)
			},
		}),
		smsBreaker: breaker.New(breaker.Config{
			Name:             "sms-provider",
			CallTimeout:      cfg.Breaker.CallTimeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
			OnStateChange:    onStateChange,
		}),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics: newMetrics(),
	}

	b.built = true

	return engine, nil
}
