package service

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestEmailVerification_ExpiryIssuesFreshCode(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()

	res, err := e.accounts.Signup(ctx, "198.51.100.1", "late@example.com", "latecomer", "correct horse")
	require.NoError(t, err)
	first := res.Verification

	wrong := "00000000"
	if first.Code == wrong {
		wrong = "11111111"
	}
	_, err = e.emails.Verify(ctx, res.User.ID, first.ID, wrong)
	require.ErrorIs(t, err, ErrIncorrectCode)

	e.clock.Advance(domain.EmailVerificationLifetime + time.Minute)
	sent := e.outbox.Len()

	fresh, err := e.emails.Verify(ctx, res.User.ID, first.ID, first.Code)
	require.ErrorIs(t, err, ErrCodeExpired)
	require.NotEqual(t, first.ID, fresh.ID)
	require.Equal(t, "late@example.com", fresh.Email)
	require.Equal(t, sent+1, e.outbox.Len())
	require.Equal(t, fresh.Code, e.outbox.Last(t).Code)

	// The old request is gone and its code is never accepted again.
	_, err = e.emails.GetUserRequest(ctx, res.User.ID, first.ID)
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = e.emails.Verify(ctx, res.User.ID, first.ID, first.Code)
	require.ErrorIs(t, err, ErrInvalidRequest)
	if first.Code != fresh.Code {
		_, err = e.emails.Verify(ctx, res.User.ID, fresh.ID, first.Code)
		require.ErrorIs(t, err, ErrIncorrectCode)
	}

	_, err = e.emails.Verify(ctx, res.User.ID, fresh.ID, fresh.Code)
	require.NoError(t, err)
	e.limits.EmailVerify.Reset(res.User.ID)

	u, err := e.users.GetUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	require.True(t, u.EmailVerified)

	state, err := e.emails.State(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EmailVerified{Email: "late@example.com"}, state)

	// Consumed requests cannot be replayed.
	_, err = e.emails.Verify(ctx, res.User.ID, fresh.ID, fresh.Code)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEmailVerification_RequestBoundToUser(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()

	alice, err := e.accounts.Signup(ctx, "198.51.100.1", "alice@example.com", "alice", "correct horse")
	require.NoError(t, err)
	bob, err := e.accounts.Signup(ctx, "198.51.100.1", "bob@example.com", "bobby", "correct horse")
	require.NoError(t, err)

	_, err = e.emails.Verify(ctx, bob.User.ID, alice.Verification.ID, alice.Verification.Code)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.emails.GetUserRequest(ctx, alice.User.ID, "")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEmailVerification_VerifyBucket(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()

	res, err := e.accounts.Signup(ctx, "198.51.100.1", "guess@example.com", "guesser", "correct horse")
	require.NoError(t, err)
	wrong := "12345678"
	if res.Verification.Code == wrong {
		wrong = "87654321"
	}

	for range 5 {
		_, err := e.emails.Verify(ctx, res.User.ID, res.Verification.ID, wrong)
		require.ErrorIs(t, err, ErrIncorrectCode)
	}
	_, err = e.emails.Verify(ctx, res.User.ID, res.Verification.ID, res.Verification.Code)
	require.ErrorIs(t, err, ErrRateLimited)

	e.clock.Advance(30 * time.Minute)
	// The window refilled, but the code expired meanwhile.
	_, err = e.emails.Verify(ctx, res.User.ID, res.Verification.ID, res.Verification.Code)
	require.ErrorIs(t, err, ErrCodeExpired)
}

func TestEmailVerification_Resend(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()

	res, err := e.accounts.Signup(ctx, "198.51.100.1", "again@example.com", "again", "correct horse")
	require.NoError(t, err)

	for range 3 {
		req, err := e.emails.Resend(ctx, res.User.ID, res.Verification.ID)
		require.NoError(t, err)
		require.Equal(t, "again@example.com", req.Email)
	}
	_, err = e.emails.Resend(ctx, res.User.ID, "")
	require.ErrorIs(t, err, ErrRateLimited)

	e.clock.Advance(10 * time.Minute)
	req, err := e.emails.Resend(ctx, res.User.ID, "")
	require.NoError(t, err)
	_, err = e.emails.Verify(ctx, res.User.ID, req.ID, req.Code)
	require.NoError(t, err)

	_, err = e.emails.Resend(ctx, res.User.ID, "")
	require.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestEmailVerification_ChangeEmail(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()
	_, u := e.signup(t, "old@example.com")
	e.signup(t, "taken@example.com")

	_, err := e.emails.RequestEmailChange(ctx, u.ID, "taken@example.com")
	require.ErrorIs(t, err, ErrEmailTaken)
	_, err = e.emails.RequestEmailChange(ctx, u.ID, "nope")
	require.ErrorIs(t, err, ErrInvalidEmail)

	// A reset in flight is cancelled by the change.
	resetToken, err := e.resets.CreateSession(ctx, "old@example.com")
	require.NoError(t, err)

	req, err := e.emails.RequestEmailChange(ctx, u.ID, "New@Example.com")
	require.NoError(t, err)
	require.Equal(t, "new@example.com", req.Email)

	unchanged, err := e.users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "old@example.com", unchanged.Email)

	_, err = e.emails.Verify(ctx, u.ID, req.ID, req.Code)
	require.NoError(t, err)

	changed, err := e.users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", changed.Email)
	require.True(t, changed.EmailVerified)

	_, _, err = e.store.PasswordResets().GetResetSession(ctx, cryptox.HashToken(resetToken))
	require.Error(t, err)
}
