package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited        = errors.New("too_many_requests")
	ErrInvalidSession     = errors.New("invalid_session")
	ErrIncorrectCode      = errors.New("incorrect_code")
	ErrCodeExpired        = errors.New("code_expired")
	ErrInvalidCredentials = errors.New("invalid_credentials")

	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidUsername = errors.New("invalid_username")
	ErrInvalidPassword = errors.New("invalid_password")
	ErrWeakPassword    = errors.New("weak_password")
	ErrEmailTaken      = errors.New("email_taken")
	ErrInvalidTOTPKey  = errors.New("invalid_totp_key")

	ErrInvalidRequest      = errors.New("invalid_request")
	ErrInvalidResetSession = errors.New("invalid_reset_session")
	ErrAlreadyVerified     = errors.New("already_verified")
	ErrRestartRequired     = errors.New("restart_required")

	ErrEmailNotVerified       = errors.New("email_not_verified")
	ErrTwoFactorRequired      = errors.New("two_factor_required")
	ErrTwoFactorNotRegistered = errors.New("two_factor_not_registered")
)

// RateLimitError is returned when a limiter rejects the caller. It matches
// ErrRateLimited under errors.Is.
type RateLimitError struct {
	Limiter    string
	RetryAfter time.Duration // zero when unknown
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s limit, retry after %s", ErrRateLimited, e.Limiter, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s limit", ErrRateLimited, e.Limiter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
