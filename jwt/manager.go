// Package jwt signs and parses the access and refresh tokens minted by the
// session token manager. A single HS256 secret with service-level issuer
// and audience claims covers both token kinds; a typ claim keeps the two
// kinds apart so neither parse path accepts the other's tokens. Downstream
// services verify access tokens themselves with the same configuration.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned when a token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any token that fails signature,
	// issuer, audience, or claim validation.
	ErrTokenInvalid = errors.New("invalid token")
)

// typ claim values. Tokens without the right discriminator fail parsing
// regardless of signature.
const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Config defines the signing parameters fixed at service level.
type Config struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// AccessClaims is the claim set carried by access tokens. The jti lives in
// RegisteredClaims.ID; SessionID links the access token to the refresh
// token minted in the same issuance event.
type AccessClaims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by refresh tokens. TokenVersion is
// compared against the user's current version on rotation; a mismatch
// invalidates the token regardless of expiry.
type RefreshClaims struct {
	UserID       string `json:"uid"`
	SessionID    string `json:"sid"`
	TokenType    string `json:"typ"`
	TokenVersion int64  `json:"tv"`
	jwt.RegisteredClaims
}

// Manager mints and parses signed tokens. Instances are immutable and safe
// for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the signing configuration and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningSecret) < 32 {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer required")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// MintAccess signs an access token for the user with the given ttl.
func (m *Manager) MintAccess(userID, role, sessionID, jti string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:    userID,
		Role:      role,
		SessionID: sessionID,
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.SigningSecret)
}

// MintRefresh signs a refresh token embedding the user's current token
// version.
func (m *Manager) MintRefresh(userID, sessionID, jti string, tokenVersion int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID:       userID,
		SessionID:    sessionID,
		TokenType:    typeRefresh,
		TokenVersion: tokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.SigningSecret)
}

// ParseAccess validates an access token and returns its claims. Refresh
// tokens are rejected as invalid.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != typeAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh validates a refresh token and returns its claims. Access
// tokens are rejected as invalid.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != typeRefresh {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.config.SigningSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
