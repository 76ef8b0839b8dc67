package http_test

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	authhttp "github.com/aussiebroadwan/gatekeep/internal/auth/http"
	"github.com/aussiebroadwan/gatekeep/internal/auth/notify"
	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// outbox records notifications so tests can read the codes.
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

func (o *outbox) lastCode(t *testing.T, kind notify.Kind, email string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].Kind == kind && o.msgs[i].Email == email {
			return o.msgs[i].Code
		}
	}
	t.Fatalf("no %s message for %s", kind, email)
	return ""
}

type server struct {
	url    string
	outbox *outbox
}

// newServer serves the full router over httptest. limiter may be nil.
func newServer(t *testing.T, limiter *httpx.RateLimiter) *server {
	t.Helper()

	db, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations())
	t.Cleanup(func() { _ = db.Close() })

	key := make([]byte, cryptox.EncryptionKeySize)
	for i := range key {
		key[i] = byte(255 - i)
	}
	cipher, err := cryptox.NewCipher(key)
	require.NoError(t, err)

	box := &outbox{}
	limits := service.NewLimits()

	users := &service.UserService{Store: db, Cipher: cipher, Hasher: cryptox.Argon2Hasher{Pepper: "test-pepper"}}
	sessions := &service.SessionService{Store: db}
	emails := &service.EmailVerificationService{Store: db, Notifier: box, Limits: limits}

	logger := slogx.Discard()
	router := authhttp.NewRouter("test", db, box, httpx.CookieOptions{}, limiter, logger)
	router.Users = users
	router.Sessions = sessions
	router.EmailVerifications = emails
	router.Accounts = &service.AccountService{
		Store: db, Users: users, Sessions: sessions, EmailVerifications: emails, Limits: limits,
	}
	router.PasswordResets = &service.PasswordResetService{
		Store: db, Users: users, Sessions: sessions, Notifier: box, Limits: limits,
	}
	router.TwoFactor = &service.TwoFactorService{Store: db, Users: users, Limits: limits, Issuer: "gatekeep-test"}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &server{url: srv.URL, outbox: box}
}

func (s *server) client(t *testing.T) *authsdk.Client {
	t.Helper()
	c, err := authsdk.NewClient(s.url)
	require.NoError(t, err)
	return c
}

// verifiedUser signs up and verifies the email, returning the signed-in client.
func (s *server) verifiedUser(t *testing.T, email, password string) *authsdk.Client {
	t.Helper()
	ctx := t.Context()

	c := s.client(t)
	_, err := c.Signup(ctx, authsdk.SignupRequest{Email: email, Username: "someone", Password: password})
	require.NoError(t, err)
	require.NoError(t, c.VerifyEmail(ctx, s.outbox.lastCode(t, notify.KindEmailVerification, email)))
	return c
}

// registerTOTP enrolls an authenticator and returns the raw key and recovery code.
func registerTOTP(t *testing.T, c *authsdk.Client) ([]byte, string) {
	t.Helper()
	ctx := t.Context()

	enrollment, err := c.NewTOTPEnrollment(ctx)
	require.NoError(t, err)

	key, err := base64.StdEncoding.DecodeString(enrollment.EncodedKey)
	require.NoError(t, err)

	recovery, err := c.SetupTOTP(ctx, enrollment.EncodedKey, totpCode(t, key))
	require.NoError(t, err)
	require.NotEmpty(t, recovery)
	return key, recovery
}

func totpCode(t *testing.T, key []byte) string {
	t.Helper()
	code, err := cryptox.GenerateTOTPCode(key, time.Now())
	require.NoError(t, err)
	return code
}

func requireCode(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode, apiErr.Error())
	require.Equal(t, code, apiErr.Code)
}
