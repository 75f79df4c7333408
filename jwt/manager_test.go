package jwt

import (
	"errors"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		SigningSecret: []byte("test-signing-secret-0123456789abcdef"),
		Issuer:        "authcore-test",
		Audience:      "austa-platform",
		Leeway:        time.Second,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := NewManager(Config{SigningSecret: []byte("short"), Issuer: "x"})
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager(t)

	token, err := m.MintAccess("u1", "underwriter", "s1", "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "underwriter" || claims.SessionID != "s1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID != "jti-1" {
		t.Fatalf("jti = %q, want jti-1", claims.ID)
	}
}

func TestRefreshTokenCarriesVersion(t *testing.T) {
	m := testManager(t)

	token, err := m.MintRefresh("u1", "s1", "jti-2", 7, time.Minute)
	if err != nil {
		t.Fatalf("MintRefresh failed: %v", err)
	}

	claims, err := m.ParseRefresh(token)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	if claims.TokenVersion != 7 {
		t.Fatalf("token version = %d, want 7", claims.TokenVersion)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m := testManager(t)

	refresh, err := m.MintRefresh("u1", "s1", "jti-r", 3, time.Minute)
	if err != nil {
		t.Fatalf("MintRefresh failed: %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token through ParseAccess: got %v, want ErrTokenInvalid", err)
	}

	access, err := m.MintAccess("u1", "broker", "s1", "jti-a", time.Minute)
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}
	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token through ParseRefresh: got %v, want ErrTokenInvalid", err)
	}
}

func TestExpiredTokenDistinguished(t *testing.T) {
	m := testManager(t)

	token, err := m.MintAccess("u1", "broker", "s1", "jti-3", -2*time.Minute)
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}

	_, err = m.ParseAccess(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestForeignSignatureRejected(t *testing.T) {
	m := testManager(t)
	other, err := NewManager(Config{
		SigningSecret: []byte("another-signing-secret-0123456789abc"),
		Issuer:        "authcore-test",
		Audience:      "austa-platform",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := other.MintAccess("u1", "broker", "s1", "jti-4", time.Minute)
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}

func TestWrongIssuerRejected(t *testing.T) {
	other, err := NewManager(Config{
		SigningSecret: []byte("test-signing-secret-0123456789abcdef"),
		Issuer:        "someone-else",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, err := other.MintAccess("u1", "broker", "s1", "jti-5", time.Minute)
	if err != nil {
		t.Fatalf("MintAccess failed: %v", err)
	}

	m := testManager(t)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("got %v, want ErrTokenInvalid", err)
	}
}
