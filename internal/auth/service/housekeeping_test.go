package service

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingCleanup(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()

	token, _ := e.signup(t, "tidy@example.com")
	_, err := e.resets.CreateSession(ctx, "tidy@example.com")
	require.NoError(t, err)
	_, _, _, err = e.accounts.Login(ctx, "tidy@example.com", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	hk := NewHousekeepingService(e.store, slogx.Discard(), time.Minute, e.limits)
	hk.Now = e.clock.Now

	hk.Cleanup(ctx)
	_, _, err = e.store.Sessions().GetSession(ctx, cryptox.HashToken(token))
	require.NoError(t, err)

	e.clock.Advance(domain.SessionLifetime + time.Second)
	hk.Cleanup(ctx)

	_, _, err = e.store.Sessions().GetSession(ctx, cryptox.HashToken(token))
	require.Error(t, err)
	n, err := e.store.PasswordResets().DeleteExpiredResetSessions(ctx, e.clock.Now())
	require.NoError(t, err)
	require.Zero(t, n)

	_, ok := e.limits.ResetCreate.Remaining("tidy@example.com")
	require.False(t, ok)
}

func TestHousekeepingKeepsExpiredVerificationRequests(t *testing.T) {
	e := newEnv(t)
	ctx := testCtx()

	res, err := e.accounts.Signup(ctx, "198.51.100.7", "tardy@example.com", "tardy", "correct horse")
	require.NoError(t, err)
	first := res.Verification

	hk := NewHousekeepingService(e.store, slogx.Discard(), time.Minute, e.limits)
	hk.Now = e.clock.Now

	e.clock.Advance(domain.EmailVerificationLifetime + time.Minute)
	hk.Cleanup(ctx)

	sent := e.outbox.Len()
	fresh, err := e.emails.Verify(ctx, res.User.ID, first.ID, first.Code)
	require.ErrorIs(t, err, ErrCodeExpired)
	require.Equal(t, sent+1, e.outbox.Len())
	require.Equal(t, fresh.Code, e.outbox.Last(t).Code)

	// Long abandoned requests do go eventually.
	e.clock.Advance(staleRequestAge + domain.EmailVerificationLifetime)
	hk.Cleanup(ctx)
	_, err = e.emails.GetUserRequest(ctx, res.User.ID, fresh.ID)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHousekeepingStartStop(t *testing.T) {
	e := newEnv(t)
	hk := NewHousekeepingService(e.store, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)

	hk.Start()
	hk.Stop()
}
