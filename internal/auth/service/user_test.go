package service

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func TestCreateUser_EncryptsSecrets(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()

	u, err := e.users.CreateUser(ctx, "Vault@Example.com", "vaulted", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "vault@example.com", u.Email)
	require.Equal(t, "plain:correct horse", u.PasswordHash)
	require.False(t, u.EmailVerified)

	code, err := e.users.GetRecoveryCode(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, code, 16)
	require.NotContains(t, string(u.RecoveryCode), code)

	key, err := e.users.TOTPKey(u)
	require.NoError(t, err)
	require.Nil(t, key)

	got, err := e.users.GetUserByEmail(ctx, " VAULT@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
}

func TestResetSecondFactorWithRecoveryCode(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()
	token, u := e.signup(t, "spend@example.com")
	e.enrollTOTP(t, token)

	code, err := e.users.GetRecoveryCode(ctx, u.ID)
	require.NoError(t, err)

	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		_, err := e.users.ResetSecondFactorWithRecoveryCode(ctx, tx, u.ID, "not-the-code")
		return err
	})
	require.ErrorIs(t, err, ErrIncorrectCode)

	var next string
	err = e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		next, err = e.users.ResetSecondFactorWithRecoveryCode(ctx, tx, u.ID, code)
		return err
	})
	require.NoError(t, err)

	after, err := e.users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, after.RegisteredTOTP())

	stored, err := e.users.GetRecoveryCode(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, next, stored)
}

func TestLimitsPrune(t *testing.T) {
	e := newEnv(t)

	require.True(t, e.limits.TOTP.Check("u1", 1))
	e.limits.Login.Increment("u1")
	require.True(t, e.limits.Signup.Check("203.0.113.1", 1))

	require.Zero(t, e.limits.Prune(time.Hour))
	e.clock.Advance(time.Hour)
	require.Equal(t, 3, e.limits.Prune(time.Hour))
}

func TestValidators(t *testing.T) {
	require.True(t, ValidEmail("a@b.co"))
	require.False(t, ValidEmail("a@b"))
	require.True(t, ValidUsername("abcd"))
	require.False(t, ValidUsername("abc"))
	require.False(t, ValidUsername("abcdefghijklmnopqrstuvwxyz012345"))
	require.True(t, ValidPassword("12345678"))
	require.False(t, ValidPassword("1234567"))
}
