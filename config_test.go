package authcore

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.Tokens.SigningSecret = []byte("test-signing-secret-0123456789abcdef")
	return cfg
}

func TestDefaultConfigValidatesWithSecret(t *testing.T) {
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.Tokens.SigningSecret = []byte("short") }, "signing secret"},
		{"empty issuer", func(c *Config) { c.Tokens.Issuer = "" }, "issuer"},
		{"zero refresh ttl", func(c *Config) { c.Tokens.RefreshTTL = 0 }, "refresh ttl"},
		{"negative role ttl", func(c *Config) { c.Tokens.AccessTTLByRole[RoleBroker] = -time.Minute }, "access ttl"},
		{"zero max attempts", func(c *Config) { c.RateLimit.MaxAttempts = 0 }, "max attempts"},
		{"zero block duration", func(c *Config) { c.RateLimit.BlockDuration = 0 }, "block duration"},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "threshold"},
		{"zero challenge ttl", func(c *Config) { c.MFA.ChallengeTTL = 0 }, "challenge ttl"},
		{"short sms code", func(c *Config) { c.MFA.SMSCodeDigits = 4 }, "sms code digits"},
		{"bad breaker ratio", func(c *Config) { c.Breaker.FailureThreshold = 1.5 }, "failure threshold"},
		{"zero breaker sample", func(c *Config) { c.Breaker.MinRequests = 0 }, "min requests"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestAccessTTLFallsBackForUnknownRole(t *testing.T) {
	cfg := validTestConfig()
	if got := cfg.Tokens.AccessTTL("contractor"); got != cfg.Tokens.DefaultAccessTTL {
		t.Fatalf("got %v, want default %v", got, cfg.Tokens.DefaultAccessTTL)
	}
	if got := cfg.Tokens.AccessTTL(RoleBeneficiary); got != 5*time.Minute {
		t.Fatalf("beneficiary ttl = %v, want 5m", got)
	}
	if got := cfg.Tokens.AccessTTL(RoleAdministrator); got != 15*time.Minute {
		t.Fatalf("administrator ttl = %v, want 15m", got)
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	_, err := New().Build()
	if !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("got %v, want ErrEngineNotReady", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	env, done := newTestEngine(t, nil)
	defer done()

	b := New().
		WithConfig(validTestConfig()).
		WithRedis(env.rdb).
		WithCredentialStore(env.store)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("got %v, want ErrEngineNotReady on reuse", err)
	}
}
