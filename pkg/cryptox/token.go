package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize160 is used for session, reset and verification request tokens.
	TokenSize160 = 20
	// RecoveryCodeSize gives a 16 character recovery code.
	RecoveryCodeSize = 10
	// OTPDigits is the length of emailed one-time codes.
	OTPDigits = 8
)

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateToken returns size random bytes as lowercase, unpadded base32.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return strings.ToLower(base32NoPad.EncodeToString(buf)), nil
}

// HashToken returns the hex encoded SHA-256 of token. Stored identifiers for
// sessions and reset sessions are derived this way so the raw token never
// reaches the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateOTP returns an OTPDigits long numeric one-time code.
func GenerateOTP() (string, error) {
	var sb strings.Builder
	sb.Grow(OTPDigits)
	ten := big.NewInt(10)
	for range OTPDigits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate one-time code: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// GenerateRecoveryCode returns a 16 character uppercase base32 code.
func GenerateRecoveryCode() (string, error) {
	buf := make([]byte, RecoveryCodeSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate recovery code: %w", err)
	}
	return base32NoPad.EncodeToString(buf), nil
}

// EqualStrings compares two secrets in constant time.
func EqualStrings(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
