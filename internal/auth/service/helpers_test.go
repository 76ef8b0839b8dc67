package service

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/notify"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// outbox records notifications instead of sending them.
type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Notify(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) Last(t *testing.T) notify.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	return o.msgs[len(o.msgs)-1]
}

func (o *outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

// plainHasher keeps tests fast; argon2 has its own tests in cryptox.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Verify(password, hash string) (bool, error) {
	return cryptox.EqualStrings(hash, "plain:"+password), nil
}

type breachList map[string]bool

func (b breachList) IsBreached(_ context.Context, password string) (bool, error) {
	return b[password], nil
}

type env struct {
	clock    *fakeClock
	outbox   *outbox
	store    *sqlite.Store
	limits   *Limits
	users    *UserService
	sessions *SessionService
	emails   *EmailVerificationService
	resets   *PasswordResetService
	twoFA    *TwoFactorService
	accounts *AccountService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations())
	t.Cleanup(func() { _ = db.Close() })

	key := make([]byte, cryptox.EncryptionKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := cryptox.NewCipher(key)
	require.NoError(t, err)

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	box := &outbox{}
	limits := NewLimits(ratelimit.WithClock(clock.Now))

	e := &env{clock: clock, outbox: box, store: db, limits: limits}
	e.users = &UserService{
		Store:  db,
		Cipher: cipher,
		Hasher: plainHasher{},
		Breach: breachList{"password123": true},
		Now:    clock.Now,
	}
	e.sessions = &SessionService{Store: db, Now: clock.Now}
	e.emails = &EmailVerificationService{Store: db, Notifier: box, Limits: limits, Now: clock.Now}
	e.resets = &PasswordResetService{
		Store: db, Users: e.users, Sessions: e.sessions, Notifier: box, Limits: limits, Now: clock.Now,
	}
	e.twoFA = &TwoFactorService{Store: db, Users: e.users, Limits: limits, Issuer: "gatekeep", Now: clock.Now}
	e.accounts = &AccountService{
		Store: db, Users: e.users, Sessions: e.sessions, EmailVerifications: e.emails, Limits: limits,
	}
	return e
}

func testCtx() context.Context {
	return slogx.WithContext(context.Background(), slogx.Discard())
}

// signup creates a user with a verified email and returns a fresh session token.
func (e *env) signup(t *testing.T, email string) (string, domain.User) {
	t.Helper()
	ctx := testCtx()

	res, err := e.accounts.Signup(ctx, "203.0.113.7", email, "someone", "correct horse")
	require.NoError(t, err)
	_, err = e.emails.Verify(ctx, res.User.ID, res.Verification.ID, res.Verification.Code)
	require.NoError(t, err)

	_, u, err := e.sessions.ValidateSessionToken(ctx, res.SessionToken)
	require.NoError(t, err)
	return res.SessionToken, u
}

// enrollTOTP registers an authenticator for the session's user and returns the raw key.
func (e *env) enrollTOTP(t *testing.T, token string) []byte {
	t.Helper()
	ctx := testCtx()

	session, u, err := e.sessions.ValidateSessionToken(ctx, token)
	require.NoError(t, err)

	enrollment, err := e.twoFA.NewTOTPEnrollment(u)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(enrollment.URL, "otpauth://totp/"))

	key, err := base64.StdEncoding.DecodeString(enrollment.EncodedKey)
	require.NoError(t, err)

	code, err := cryptox.GenerateTOTPCode(key, e.clock.Now())
	require.NoError(t, err)

	_, err = e.twoFA.SetupTOTP(ctx, session, u, enrollment.EncodedKey, code)
	require.NoError(t, err)
	return key
}

func (e *env) totpCode(t *testing.T, key []byte) string {
	t.Helper()
	code, err := cryptox.GenerateTOTPCode(key, e.clock.Now())
	require.NoError(t, err)
	return code
}
