package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Layout of a sealed blob: [16-byte IV][ciphertext][16-byte GCM tag].
const (
	ivSize  = 16
	tagSize = 16

	// EncryptionKeySize is the AES-128 key length.
	EncryptionKeySize = 16
)

var (
	ErrInvalidCiphertext    = errors.New("cryptox: invalid ciphertext")
	ErrAuthenticationFailed = errors.New("cryptox: authentication failed")
)

// Cipher seals small secrets (recovery codes, TOTP keys) for storage at rest
// using AES-GCM with a 16-byte IV.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a raw AES key (16, 24 or 32 bytes).
func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: gcm}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	iv := make([]byte, ivSize, ivSize+len(plaintext)+tagSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	// Seal appends ciphertext and tag to iv.
	return c.aead.Seal(iv, iv, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Truncated input yields
// ErrInvalidCiphertext, anything failing the tag check ErrAuthenticationFailed.
func (c *Cipher) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < ivSize+tagSize {
		return nil, ErrInvalidCiphertext
	}

	iv, sealed := blob[:ivSize], blob[ivSize:]
	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func (c *Cipher) EncryptString(s string) ([]byte, error) {
	return c.Encrypt([]byte(s))
}

func (c *Cipher) DecryptToString(blob []byte) (string, error) {
	b, err := c.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadEncryptionKey loads the process-wide encryption key from:
//  1. the file at path (base64 encoded), if path is set
//  2. the AUTH_ENCRYPTION_KEY environment variable (base64 encoded)
//  3. a freshly generated key (development only, secrets will not survive a restart)
//
// The returned bool reports whether the key is ephemeral.
func LoadEncryptionKey(path string) ([]byte, bool, error) {
	var encoded string

	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read encryption key file: %w", err)
		}
		encoded = string(data)
	case os.Getenv("AUTH_ENCRYPTION_KEY") != "":
		encoded = os.Getenv("AUTH_ENCRYPTION_KEY")
	default:
		key := make([]byte, EncryptionKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, false, fmt.Errorf("failed to generate ephemeral encryption key: %w", err)
		}
		return key, true, nil
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, false, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, false, fmt.Errorf("encryption key must be 16, 24 or 32 bytes, got %d", len(key))
	}

	return key, false, nil
}
