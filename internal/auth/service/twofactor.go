package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/internal/auth/telemetry"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// encodedTOTPKeyLen is the base64 length of a cryptox.TOTPKeySize key.
const encodedTOTPKeyLen = 28

// TwoFactorService manages the authenticator and recovery code of a
// signed-in user.
type TwoFactorService struct {
	Store   store.Store
	Users   *UserService
	Limits  *Limits
	Metrics *telemetry.Metrics
	Issuer  string // shown by authenticator apps
	Now     func() time.Time
}

// NewTOTPEnrollment generates a key for the client to render. Nothing is
// stored until SetupTOTP succeeds with the same key.
func (s *TwoFactorService) NewTOTPEnrollment(u domain.User) (domain.TOTPEnrollment, error) {
	key, err := cryptox.NewTOTPKey(s.Issuer, u.Username)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}
	return domain.TOTPEnrollment{
		EncodedKey: base64.StdEncoding.EncodeToString(key.Raw),
		URL:        key.URL,
	}, nil
}

// SetupTOTP registers (or replaces) the authenticator once code proves the
// client holds encodedKey. The recovery code is rotated and the new one is
// returned. Replacing an existing authenticator needs a 2FA verified session.
func (s *TwoFactorService) SetupTOTP(ctx context.Context, session domain.Session, u domain.User, encodedKey, code string) (string, error) {
	if !u.EmailVerified {
		return "", ErrEmailNotVerified
	}
	if !session.SecondFactorSatisfied(u) {
		return "", ErrTwoFactorRequired
	}

	if !s.Limits.TOTP.Check(u.ID, 2) {
		s.Metrics.RecordRateLimited(ctx, "totp")
		return "", &RateLimitError{Limiter: "totp"}
	}

	if len(encodedKey) != encodedTOTPKeyLen {
		return "", ErrInvalidTOTPKey
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != cryptox.TOTPKeySize {
		return "", ErrInvalidTOTPKey
	}

	if !cryptox.VerifyTOTP(key, code, nowOr(s.Now)) {
		s.Metrics.RecordVerificationFailed(ctx, "totp")
		return "", ErrIncorrectCode
	}

	encryptedKey, err := s.Users.Cipher.Encrypt(key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt TOTP key: %w", err)
	}
	recoveryCode, encryptedCode, err := s.Users.newRecoveryCode()
	if err != nil {
		return "", err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdateTOTPKey(ctx, u.ID, encryptedKey); err != nil {
			return err
		}
		if err := tx.Users().UpdateRecoveryCode(ctx, u.ID, encryptedCode); err != nil {
			return err
		}
		return setSessionAs2FAVerified(ctx, tx, session.ID)
	})
	if err != nil {
		return "", fmt.Errorf("failed to register authenticator: %w", err)
	}

	slogx.FromContext(ctx).Info("authenticator registered", "user_id", u.ID)
	return recoveryCode, nil
}

// VerifyTOTP upgrades the session after a correct authenticator code.
func (s *TwoFactorService) VerifyTOTP(ctx context.Context, session domain.Session, u domain.User, code string) error {
	switch {
	case !u.EmailVerified:
		return ErrEmailNotVerified
	case !u.RegisteredTOTP():
		return ErrTwoFactorNotRegistered
	case session.TwoFactorVerified:
		return ErrAlreadyVerified
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

	return setSessionAs2FAVerified(ctx, s.Store, session.ID)
}

// ResetWithRecoveryCode removes the authenticator by spending the recovery
// code and returns the replacement code. Sessions stay signed in but lose
// their second factor flag.
func (s *TwoFactorService) ResetWithRecoveryCode(ctx context.Context, session domain.Session, u domain.User, code string) (string, error) {
	switch {
	case !u.EmailVerified:
		return "", ErrEmailNotVerified
	case !u.RegisteredTOTP():
		return "", ErrTwoFactorNotRegistered
	}

	if !s.Limits.Recovery.Check(u.ID, 1) {
		s.Metrics.RecordRateLimited(ctx, "recovery")
		return "", &RateLimitError{Limiter: "recovery"}
	}

	var next string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		next, err = s.Users.ResetSecondFactorWithRecoveryCode(ctx, tx, u.ID, code)
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
	slogx.FromContext(ctx).Info("second factor reset with recovery code", "user_id", u.ID, "session_id", session.ID)
	return next, nil
}

func recoveryCodeAccess(session domain.Session, u domain.User) error {
	switch {
	case !u.EmailVerified:
		return ErrEmailNotVerified
	case !session.TwoFactorVerified:
		return ErrTwoFactorRequired
	}
	return nil
}

// RecoveryCode reveals the current recovery code to a 2FA verified session.
func (s *TwoFactorService) RecoveryCode(ctx context.Context, session domain.Session, u domain.User) (string, error) {
	if err := recoveryCodeAccess(session, u); err != nil {
		return "", err
	}
	return s.Users.Cipher.DecryptToString(u.RecoveryCode)
}

// RegenerateRecoveryCode replaces the recovery code for a 2FA verified session.
func (s *TwoFactorService) RegenerateRecoveryCode(ctx context.Context, session domain.Session, u domain.User) (string, error) {
	if err := recoveryCodeAccess(session, u); err != nil {
		return "", err
	}
	return s.Users.ResetRecoveryCode(ctx, u.ID)
}
