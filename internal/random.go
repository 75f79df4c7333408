package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const challengeIDSize = 16

// NewChallengeID returns a random, URL-safe identifier for MFA login
// challenges. The value is opaque to callers and carries no claims.
func NewChallengeID() (string, error) {
	var raw [challengeIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewOTP generates a numeric one-time code of the given length using
// crypto/rand. Digits outside 6..10 are rejected.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashToken returns the SHA-256 digest of a signed token string. Only the
// digest is ever persisted; the raw token never reaches the shared store.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// HashCode returns the SHA-256 digest of a one-time code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// EncodeHash renders a digest as lowercase hex for use in store keys.
func EncodeHash(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two digests without leaking timing.
func ConstantTimeEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// ConstantTimeEqualString compares two encoded digests without leaking
// timing.
func ConstantTimeEqualString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
