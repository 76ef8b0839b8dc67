package cryptox_test

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()
	c, err := cryptox.NewCipher(bytes.Repeat([]byte{0x42}, cryptox.EncryptionKeySize))
	require.NoError(t, err)
	return c
}

func TestCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	inputs := map[string][]byte{
		"empty":         {},
		"recovery code": []byte("ABCDEFGHIJKLMNOP"),
		"totp key":      bytes.Repeat([]byte{0xff}, 20),
		"large":         bytes.Repeat([]byte("x"), 4096),
	}

	for name, plaintext := range inputs {
		t.Run(name, func(t *testing.T) {
			blob, err := c.Encrypt(plaintext)
			require.NoError(t, err)
			require.Len(t, blob, 16+len(plaintext)+16)

			out, err := c.Decrypt(blob)
			require.NoError(t, err)
			require.Equal(t, plaintext, out)
		})
	}
}

func TestCipherUsesFreshIV(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.EncryptString("same")
	require.NoError(t, err)
	b, err := c.EncryptString("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "multiple encryptions should produce different ciphertexts")

	s, err := c.DecryptToString(b)
	require.NoError(t, err)
	require.Equal(t, "same", s)
}

func TestCipherRejectsShortInput(t *testing.T) {
	c := newTestCipher(t)

	for _, n := range []int{0, 1, 16, 31} {
		_, err := c.Decrypt(make([]byte, n))
		require.ErrorIs(t, err, cryptox.ErrInvalidCiphertext)
	}
}

func TestCipherDetectsEveryBitFlip(t *testing.T) {
	c := newTestCipher(t)

	blob, err := c.EncryptString("recovery")
	require.NoError(t, err)

	for i := range len(blob) * 8 {
		tampered := bytes.Clone(blob)
		tampered[i/8] ^= 1 << (i % 8)

		_, err := c.Decrypt(tampered)
		require.ErrorIs(t, err, cryptox.ErrAuthenticationFailed, "bit %d", i)
	}
}

func TestCipherWrongKey(t *testing.T) {
	blob, err := newTestCipher(t).EncryptString("secret")
	require.NoError(t, err)

	other, err := cryptox.NewCipher(bytes.Repeat([]byte{0x01}, cryptox.EncryptionKeySize))
	require.NoError(t, err)

	_, err = other.Decrypt(blob)
	require.ErrorIs(t, err, cryptox.ErrAuthenticationFailed)
}

func TestNewCipherRejectsBadKey(t *testing.T) {
	_, err := cryptox.NewCipher([]byte("short"))
	require.Error(t, err)
}

func TestLoadEncryptionKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 16)
	encoded := base64.StdEncoding.EncodeToString(key)

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key")
		require.NoError(t, os.WriteFile(path, []byte(encoded+"\n"), 0o600))

		got, ephemeral, err := cryptox.LoadEncryptionKey(path)
		require.NoError(t, err)
		require.False(t, ephemeral)
		require.Equal(t, key, got)
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("AUTH_ENCRYPTION_KEY", encoded)

		got, ephemeral, err := cryptox.LoadEncryptionKey("")
		require.NoError(t, err)
		require.False(t, ephemeral)
		require.Equal(t, key, got)
	})

	t.Run("ephemeral fallback", func(t *testing.T) {
		t.Setenv("AUTH_ENCRYPTION_KEY", "")

		got, ephemeral, err := cryptox.LoadEncryptionKey("")
		require.NoError(t, err)
		require.True(t, ephemeral)
		require.Len(t, got, cryptox.EncryptionKeySize)
	})

	t.Run("rejects wrong length", func(t *testing.T) {
		t.Setenv("AUTH_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("nope")))

		_, _, err := cryptox.LoadEncryptionKey("")
		require.Error(t, err)
	})
}
