package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/austa-platform/authcore/credential"
	"github.com/austa-platform/authcore/password"
)

const testPassword = "correct-horse-battery"

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Tokens.SigningSecret = []byte("test-signing-secret-0123456789abcdef")
	// Cheap hashing keeps the suite fast; production costs are covered by
	// config validation tests.
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

type testEnv struct {
	engine *Engine
	rdb    *redis.Client
	mr     *miniredis.Miniredis
	store  *credential.MemoryStore
}

// newTestEngine builds an engine over miniredis and a memory store. mutate
// may adjust the config before Build.
func newTestEngine(t *testing.T, mutate func(*Config)) (*testEnv, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := credential.NewMemoryStore()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	env := &testEnv{engine: engine, rdb: rdb, mr: mr, store: store}
	done := func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
	return env, done
}

func seedUser(t *testing.T, store *credential.MemoryStore, email, role string) *credential.User {
	t.Helper()

	hasher, err := password.New(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("password.New failed: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	user := &credential.User{
		ID:           "user-" + email,
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		PasswordHash: hash,
	}
	stored, err := store.Save(context.Background(), user)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return stored
}

// enrollTOTP runs the full provisioning flow and returns the confirmed
// secret plus the recovery codes.
func enrollTOTP(t *testing.T, engine *Engine, userID string) (string, []string) {
	t.Helper()

	provision, err := engine.ProvisionTOTP(context.Background(), userID)
	if err != nil {
		t.Fatalf("ProvisionTOTP failed: %v", err)
	}
	if provision.Secret == "" || provision.OTPAuthURL == "" {
		t.Fatal("expected non-empty provisioning material")
	}

	code := codeForNow(t, provision.Secret)
	if err := engine.ConfirmTOTPSetup(context.Background(), userID, code); err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	return provision.Secret, provision.BackupCodes
}

func codeForNow(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	return code
}

func codeForOffset(t *testing.T, secret string, steps int) string {
	t.Helper()
	at := time.Now().UTC().Add(time.Duration(steps) * 30 * time.Second)
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	return code
}

func ctxWithIP(ip string) context.Context {
	return WithClientIP(context.Background(), ip)
}
