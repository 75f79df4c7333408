package authcore

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const backupCodeBytes = 5 // 10 hex characters per code

// totpManager generates and validates authenticator-app codes.
type totpManager struct {
	issuer string
	skew   uint
}

func newTOTPManager(issuer string, skew uint) *totpManager {
	return &totpManager{issuer: issuer, skew: skew}
}

// provision creates a fresh secret and the otpauth URL an authenticator
// app enrolls from.
func (m *totpManager) provision(accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// validate checks code against secret, tolerating the configured number of
// 30-second steps of clock drift either side of now.
func (m *totpManager) validate(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      m.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// generateBackupCodes returns count single-use recovery codes.
func generateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		raw := make([]byte, backupCodeBytes)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return nil, err
		}
		codes[i] = hex.EncodeToString(raw)
	}
	return codes, nil
}
