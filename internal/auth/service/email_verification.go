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

type EmailVerificationService struct {
	Store    store.Store
	Notifier notify.Notifier
	Limits   *Limits
	Metrics  *telemetry.Metrics
	Now      func() time.Time
}

// CreateRequest replaces any outstanding request of the user with a new one
// for email.
func (s *EmailVerificationService) CreateRequest(ctx context.Context, userID, email string) (domain.EmailVerificationRequest, error) {
	id, err := cryptox.GenerateToken(cryptox.TokenSize160)
	if err != nil {
		return domain.EmailVerificationRequest{}, err
	}
	code, err := cryptox.GenerateOTP()
	if err != nil {
		return domain.EmailVerificationRequest{}, err
	}

	req := domain.EmailVerificationRequest{
		ID:        id,
		UserID:    userID,
		Email:     email,
		Code:      code,
		ExpiresAt: nowOr(s.Now).Add(domain.EmailVerificationLifetime),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.EmailVerifications().DeleteUserRequests(ctx, userID); err != nil {
			return err
		}
		return tx.EmailVerifications().CreateRequest(ctx, req)
	})
	if err != nil {
		return domain.EmailVerificationRequest{}, fmt.Errorf("failed to create verification request: %w", err)
	}

	return req, nil
}

// SendRequest hands the code to the notifier.
func (s *EmailVerificationService) SendRequest(ctx context.Context, req domain.EmailVerificationRequest) error {
	err := s.Notifier.Notify(ctx, notify.Message{
		Kind:  notify.KindEmailVerification,
		Email: req.Email,
		Code:  req.Code,
	})
	if err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// GetUserRequest loads requestID and checks it belongs to userID. Any
// mismatch is reported as ErrInvalidRequest so the caller can drop its
// reference to the request.
func (s *EmailVerificationService) GetUserRequest(ctx context.Context, userID, requestID string) (domain.EmailVerificationRequest, error) {
	if requestID == "" {
		return domain.EmailVerificationRequest{}, ErrInvalidRequest
	}

	req, err := s.Store.EmailVerifications().GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.EmailVerificationRequest{}, ErrInvalidRequest
		}
		return domain.EmailVerificationRequest{}, err
	}
	if req.UserID != userID {
		return domain.EmailVerificationRequest{}, ErrInvalidRequest
	}
	return req, nil
}

// State reports where the user stands: an unexpired request in flight wins
// over the verified flag.
func (s *EmailVerificationService) State(ctx context.Context, userID string) (domain.EmailVerificationState, error) {
	req, err := s.Store.EmailVerifications().GetUserRequest(ctx, userID)
	switch {
	case err == nil && !req.Expired(nowOr(s.Now)):
		return domain.EmailPending{Request: req}, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.EmailVerified {
		return domain.EmailVerified{Email: u.Email}, nil
	}
	return domain.EmailUnverified{}, nil
}

// Verify checks code against the request. An expired request is replaced and
// the new one is sent and returned alongside ErrCodeExpired. On success the
// request is consumed, the address becomes the user's verified email and any
// password reset in flight is cancelled.
func (s *EmailVerificationService) Verify(ctx context.Context, userID, requestID, code string) (domain.EmailVerificationRequest, error) {
	if !s.Limits.EmailVerify.Check(userID, 1) {
		s.Metrics.RecordRateLimited(ctx, "email_verify")
		return domain.EmailVerificationRequest{}, &RateLimitError{Limiter: "email_verify"}
	}

	req, err := s.GetUserRequest(ctx, userID, requestID)
	if err != nil {
		return domain.EmailVerificationRequest{}, err
	}

	if req.Expired(nowOr(s.Now)) {
		fresh, err := s.CreateRequest(ctx, userID, req.Email)
		if err != nil {
			return domain.EmailVerificationRequest{}, err
		}
		if err := s.SendRequest(ctx, fresh); err != nil {
			return domain.EmailVerificationRequest{}, err
		}
		return fresh, ErrCodeExpired
	}

	if !cryptox.EqualStrings(req.Code, code) {
		s.Metrics.RecordVerificationFailed(ctx, "email_code")
		return domain.EmailVerificationRequest{}, ErrIncorrectCode
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed, err := tx.EmailVerifications().ConsumeRequest(ctx, req)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrInvalidRequest
		}
		if err := tx.Users().UpdateEmailAndSetVerified(ctx, userID, req.Email); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return err
		}
		return tx.PasswordResets().DeleteUserResetSessions(ctx, userID)
	})
	if err != nil {
		return domain.EmailVerificationRequest{}, err
	}

	slogx.FromContext(ctx).Info("email verified", "user_id", userID)
	return req, nil
}

// Resend issues a new code for the address of the current request, or for the
// user's own address when the request is gone.
func (s *EmailVerificationService) Resend(ctx context.Context, userID, requestID string) (domain.EmailVerificationRequest, error) {
	var email string

	req, err := s.GetUserRequest(ctx, userID, requestID)
	switch {
	case err == nil:
		email = req.Email
	case errors.Is(err, ErrInvalidRequest):
		u, err := s.Store.Users().GetUserByID(ctx, userID)
		if err != nil {
			return domain.EmailVerificationRequest{}, err
		}
		if u.EmailVerified {
			return domain.EmailVerificationRequest{}, ErrAlreadyVerified
		}
		email = u.Email
	default:
		return domain.EmailVerificationRequest{}, err
	}

	return s.issue(ctx, userID, email)
}

// RequestEmailChange starts verification of newEmail. The user's address only
// changes once the code is verified.
func (s *EmailVerificationService) RequestEmailChange(ctx context.Context, userID, newEmail string) (domain.EmailVerificationRequest, error) {
	newEmail = NormalizeEmail(newEmail)
	if !ValidEmail(newEmail) {
		return domain.EmailVerificationRequest{}, ErrInvalidEmail
	}

	available, err := s.Store.Users().IsEmailAvailable(ctx, newEmail)
	if err != nil {
		return domain.EmailVerificationRequest{}, err
	}
	if !available {
		return domain.EmailVerificationRequest{}, ErrEmailTaken
	}

	return s.issue(ctx, userID, newEmail)
}

func (s *EmailVerificationService) issue(ctx context.Context, userID, email string) (domain.EmailVerificationRequest, error) {
	if !s.Limits.SendVerification.Check(userID, 1) {
		s.Metrics.RecordRateLimited(ctx, "send_verification")
		return domain.EmailVerificationRequest{}, &RateLimitError{Limiter: "send_verification"}
	}

	req, err := s.CreateRequest(ctx, userID, email)
	if err != nil {
		return domain.EmailVerificationRequest{}, err
	}
	if err := s.SendRequest(ctx, req); err != nil {
		return domain.EmailVerificationRequest{}, err
	}
	return req, nil
}
