package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/notify"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/internal/auth/telemetry"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// PasswordResetService drives the reset flow: prove the email, prove the
// second factor when one is registered, then set a new password.
type PasswordResetService struct {
	Store    store.Store
	Users    *UserService
	Sessions *SessionService
	Notifier notify.Notifier
	Limits   *Limits
	Metrics  *telemetry.Metrics
	Now      func() time.Time
}

// CreateSession starts a reset for email and returns the client token. Unknown
// addresses get a token that resolves to nothing.
func (s *PasswordResetService) CreateSession(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return "", ErrInvalidEmail
	}

	if !s.Limits.ResetCreate.Check(email, 1) {
		s.Metrics.RecordRateLimited(ctx, "reset_create")
		return "", &RateLimitError{Limiter: "reset_create"}
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize160)
	if err != nil {
		return "", err
	}

	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Debug("password reset requested for unknown email")
		return token, nil
	}
	if err != nil {
		return "", err
	}

	code, err := cryptox.GenerateOTP()
	if err != nil {
		return "", err
	}

	prs := domain.PasswordResetSession{
		ID:        cryptox.HashToken(token),
		UserID:    u.ID,
		Email:     u.Email,
		Code:      code,
		ExpiresAt: nowOr(s.Now).Add(domain.PasswordResetLifetime),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PasswordResets().DeleteUserResetSessions(ctx, u.ID); err != nil {
			return err
		}
		return tx.PasswordResets().CreateResetSession(ctx, prs)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create reset session: %w", err)
	}

	err = s.Notifier.Notify(ctx, notify.Message{
		Kind:  notify.KindPasswordReset,
		Email: prs.Email,
		Code:  prs.Code,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send reset email: %w", err)
	}

	return token, nil
}

// ValidateSessionToken resolves a reset token. Expired sessions are deleted.
func (s *PasswordResetService) ValidateSessionToken(ctx context.Context, token string) (domain.PasswordResetSession, domain.User, error) {
	if token == "" {
		return domain.PasswordResetSession{}, domain.User{}, ErrInvalidResetSession
	}

	prs, u, err := s.Store.PasswordResets().GetResetSession(ctx, cryptox.HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PasswordResetSession{}, domain.User{}, ErrInvalidResetSession
		}
		return domain.PasswordResetSession{}, domain.User{}, err
	}

	if prs.Expired(nowOr(s.Now)) {
		if err := s.Store.PasswordResets().DeleteResetSession(ctx, prs.ID); err != nil {
			slogx.FromContext(ctx).Warn("failed to delete expired reset session", "error", err)
		}
		return domain.PasswordResetSession{}, domain.User{}, ErrInvalidResetSession
	}

	return prs, u, nil
}

// VerifyEmail proves ownership of the address with the emailed code. Returns
// ErrRestartRequired when the user's address changed since the reset began.
func (s *PasswordResetService) VerifyEmail(ctx context.Context, token, code string) error {
	prs, u, err := s.ValidateSessionToken(ctx, token)
	if err != nil {
		return err
	}
	if prs.EmailVerified {
		return ErrAlreadyVerified
	}

	if !s.Limits.ResetVerifyEmail.Check(u.ID, 1) {
		s.Metrics.RecordRateLimited(ctx, "reset_verify_email")
		return &RateLimitError{Limiter: "reset_verify_email"}
	}
	if !cryptox.EqualStrings(prs.Code, code) {
		s.Metrics.RecordVerificationFailed(ctx, "reset_code")
		return ErrIncorrectCode
	}
	s.Limits.ResetVerifyEmail.Reset(u.ID)

	var restart bool
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		flagged, err := tx.PasswordResets().SetEmailVerified(ctx, prs.ID)
		if err != nil {
			return err
		}
		if !flagged {
			return ErrAlreadyVerified
		}
		emailMatches, err := tx.Users().SetEmailVerifiedIfEmailMatches(ctx, u.ID, prs.Email)
		if err != nil {
			return err
		}
		if !emailMatches {
			// The address moved on, so the reset keeps none of the trust it gained.
			restart = true
			return tx.PasswordResets().DeleteUserResetSessions(ctx, u.ID)
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrAlreadyVerified):
		return err
	case err != nil:
		return fmt.Errorf("failed to verify reset email: %w", err)
	case restart:
		return ErrRestartRequired
	}
	return nil
}

// secondFactorPending checks that the reset is waiting on a second factor.
func secondFactorPending(prs domain.PasswordResetSession, u domain.User) error {
	switch {
	case !prs.EmailVerified:
		return ErrEmailNotVerified
	case !u.RegisteredTOTP():
		return ErrTwoFactorNotRegistered
	case prs.TwoFactorVerified:
		return ErrAlreadyVerified
	}
	return nil
}

// VerifyTOTP satisfies the second factor of the reset with an authenticator code.
func (s *PasswordResetService) VerifyTOTP(ctx context.Context, token, code string) error {
	prs, u, err := s.ValidateSessionToken(ctx, token)
	if err != nil {
		return err
	}
	if err := secondFactorPending(prs, u); err != nil {
		return err
	}

	if !s.Limits.TOTP.Check(u.ID, 1) {
		s.Metrics.RecordRateLimited(ctx, "totp")
		return &RateLimitError{Limiter: "totp"}
	}

	key, err := s.Users.TOTPKey(u)
	if err != nil {
		return err
	}
	if !cryptox.VerifyTOTP(key, code, nowOr(s.Now)) {
		s.Metrics.RecordVerificationFailed(ctx, "totp")
		return ErrIncorrectCode
	}
	s.Limits.TOTP.Reset(u.ID)

	if _, err := s.Store.PasswordResets().SetTwoFactorVerified(ctx, prs.ID); err != nil {
		return fmt.Errorf("failed to flag reset session: %w", err)
	}
	return nil
}

// VerifyRecoveryCode satisfies the second factor by spending the recovery
// code. The TOTP key is removed and the new recovery code is returned.
func (s *PasswordResetService) VerifyRecoveryCode(ctx context.Context, token, code string) (string, error) {
	prs, u, err := s.ValidateSessionToken(ctx, token)
	if err != nil {
		return "", err
	}
	if err := secondFactorPending(prs, u); err != nil {
		return "", err
	}

	if !s.Limits.Recovery.Check(u.ID, 1) {
		s.Metrics.RecordRateLimited(ctx, "recovery")
		return "", &RateLimitError{Limiter: "recovery"}
	}

	var next string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		next, err = s.Users.ResetSecondFactorWithRecoveryCode(ctx, tx, u.ID, code)
		if err != nil {
			return err
		}
		_, err = tx.PasswordResets().SetTwoFactorVerified(ctx, prs.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrIncorrectCode) {
			s.Metrics.RecordVerificationFailed(ctx, "recovery_code")
		}
		return "", err
	}

	s.Limits.Recovery.Reset(u.ID)
	s.Metrics.RecordRecoveryCodeUsed(ctx)
	slogx.FromContext(ctx).Info("second factor reset with recovery code", "user_id", u.ID)
	return next, nil
}

// UpdatePassword finishes the reset. Every session and reset session of the
// user is dropped and a single fresh session is returned with its token.
func (s *PasswordResetService) UpdatePassword(ctx context.Context, token, password string) (string, domain.Session, error) {
	prs, u, err := s.ValidateSessionToken(ctx, token)
	if err != nil {
		return "", domain.Session{}, err
	}

	switch prs.Stage(u) {
	case domain.ResetAwaitingEmail:
		return "", domain.Session{}, ErrEmailNotVerified
	case domain.ResetAwaitingSecondFactor:
		return "", domain.Session{}, ErrTwoFactorRequired
	}

	hash, err := s.Users.HashNewPassword(ctx, password)
	if err != nil {
		return "", domain.Session{}, err
	}

	sessionToken, err := GenerateSessionToken()
	if err != nil {
		return "", domain.Session{}, err
	}

	var session domain.Session
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed, err := tx.PasswordResets().ConsumeResetSession(ctx, prs.ID, nowOr(s.Now))
		if err != nil {
			return err
		}
		if !consumed {
			return ErrInvalidResetSession
		}
		if err := tx.PasswordResets().DeleteUserResetSessions(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.Sessions().DeleteUserSessions(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, hash); err != nil {
			return err
		}
		session, err = s.Sessions.createSession(ctx, tx, sessionToken, u.ID,
			domain.SessionFlags{TwoFactorVerified: true}, "password_reset")
		return err
	})
	if err != nil {
		return "", domain.Session{}, fmt.Errorf("failed to update password: %w", err)
	}

	slogx.FromContext(ctx).Info("password reset completed", "user_id", u.ID)
	return sessionToken, session, nil
}
