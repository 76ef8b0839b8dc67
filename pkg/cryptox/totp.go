package cryptox

import (
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPKeySize is the raw key length stored per user.
const TOTPKeySize = 20

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPKey is a freshly generated authenticator key.
type TOTPKey struct {
	Raw []byte // 20 raw bytes, what gets encrypted and stored
	URL string // otpauth:// URL for QR rendering
}

// NewTOTPKey generates a random key and the matching provisioning URL.
func NewTOTPKey(issuer, account string) (TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpOpts.Period,
		SecretSize:  TOTPKeySize,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return TOTPKey{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	raw, err := base32NoPad.DecodeString(key.Secret())
	if err != nil {
		return TOTPKey{}, fmt.Errorf("failed to decode TOTP secret: %w", err)
	}

	return TOTPKey{Raw: raw, URL: key.URL()}, nil
}

// VerifyTOTP checks a 6 digit, 30 second code against a raw key, allowing one
// period of clock skew either side.
func VerifyTOTP(key []byte, code string, now time.Time) bool {
	if len(key) == 0 || len(code) != int(totpOpts.Digits) {
		return false
	}
	ok, err := totp.ValidateCustom(code, encodeTOTPSecret(key), now, totpOpts)
	return err == nil && ok
}

// GenerateTOTPCode returns the code for key at t. Used by tests and tooling.
func GenerateTOTPCode(key []byte, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(encodeTOTPSecret(key), t, totpOpts)
}

func encodeTOTPSecret(key []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(key)
}
