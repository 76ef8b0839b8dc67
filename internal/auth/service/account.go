package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/internal/auth/telemetry"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// AccountService covers sign up, sign in and password changes.
type AccountService struct {
	Store              store.Store
	Users              *UserService
	Sessions           *SessionService
	EmailVerifications *EmailVerificationService
	Limits             *Limits
	Metrics            *telemetry.Metrics
}

// SignupResult carries everything the caller needs to set cookies after a
// sign up.
type SignupResult struct {
	User         domain.User
	SessionToken string
	Session      domain.Session
	Verification domain.EmailVerificationRequest
}

// Signup creates the account, sends the first verification code and signs
// the user in. clientIP keys the sign up limiter.
func (s *AccountService) Signup(ctx context.Context, clientIP, email, username, password string) (SignupResult, error) {
	if !s.Limits.Signup.Check(clientIP, 1) {
		s.Metrics.RecordRateLimited(ctx, "signup")
		return SignupResult{}, &RateLimitError{Limiter: "signup"}
	}

	u, err := s.Users.CreateUser(ctx, email, username, password)
	if err != nil {
		return SignupResult{}, err
	}

	req, err := s.EmailVerifications.CreateRequest(ctx, u.ID, u.Email)
	if err != nil {
		return SignupResult{}, err
	}
	if err := s.EmailVerifications.SendRequest(ctx, req); err != nil {
		// The account exists; the user can ask for another code.
		slogx.FromContext(ctx).Warn("failed to send first verification email", "user_id", u.ID, "error", err)
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return SignupResult{}, err
	}
	session, err := s.Sessions.createSession(ctx, s.Store, token, u.ID, domain.SessionFlags{}, "signup")
	if err != nil {
		return SignupResult{}, err
	}

	return SignupResult{
		User:         u,
		SessionToken: token,
		Session:      session,
		Verification: req,
	}, nil
}

// Login checks the password under the per-user backoff throttler and issues
// a session that has not yet passed the second factor.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, domain.Session, domain.User, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return "", domain.Session{}, domain.User{}, ErrInvalidEmail
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.Session{}, domain.User{}, ErrInvalidCredentials
		}
		return "", domain.Session{}, domain.User{}, err
	}

	if err := s.checkPassword(ctx, u, password); err != nil {
		return "", domain.Session{}, domain.User{}, err
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return "", domain.Session{}, domain.User{}, err
	}
	session, err := s.Sessions.createSession(ctx, s.Store, token, u.ID, domain.SessionFlags{}, "login")
	if err != nil {
		return "", domain.Session{}, domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user logged in", "user_id", u.ID)
	return token, session, u, nil
}

// checkPassword runs a password attempt through the login throttler.
func (s *AccountService) checkPassword(ctx context.Context, u domain.User, password string) error {
	if !s.Limits.Login.Check(u.ID) {
		s.Metrics.RecordRateLimited(ctx, "login")
		return &RateLimitError{Limiter: "login", RetryAfter: s.Limits.Login.RetryAfter(u.ID)}
	}

	ok, err := s.Users.VerifyPassword(u, password)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.Limits.Login.Increment(u.ID)
		s.Metrics.RecordVerificationFailed(ctx, "password")
		return ErrInvalidCredentials
	}

	s.Limits.Login.Reset(u.ID)
	return nil
}

// ChangePassword replaces the password of a signed-in user. Other sessions
// are signed out; the calling session survives.
func (s *AccountService) ChangePassword(ctx context.Context, session domain.Session, u domain.User, current, next string) error {
	if !session.SecondFactorSatisfied(u) {
		return ErrTwoFactorRequired
	}

	if err := s.checkPassword(ctx, u, current); err != nil {
		return err
	}

	hash, err := s.Users.HashNewPassword(ctx, next)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Sessions().DeleteUserSessionsExcept(ctx, u.ID, session.ID); err != nil {
			return err
		}
		return tx.Users().UpdatePasswordHash(ctx, u.ID, hash)
	})
	if err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	slogx.FromContext(ctx).Info("password changed", "user_id", u.ID)
	return nil
}

func (s *AccountService) Logout(ctx context.Context, session domain.Session) error {
	return s.Sessions.InvalidateSession(ctx, session.ID)
}
