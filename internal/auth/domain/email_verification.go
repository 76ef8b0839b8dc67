package domain

import "time"

const EmailVerificationLifetime = 10 * time.Minute

// EmailVerificationRequest proves ownership of Email for UserID. At most one
// exists per user; issuing a new one replaces the old.
type EmailVerificationRequest struct {
	ID        string
	UserID    string
	Email     string // candidate address, may differ from the user's current one
	Code      string
	ExpiresAt time.Time
}

func (r EmailVerificationRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// EmailVerificationState is one of EmailUnverified, EmailPending or
// EmailVerified.
type EmailVerificationState interface {
	emailVerificationState()
}

// EmailUnverified means the user has no verified email and nothing in flight.
type EmailUnverified struct{}

// EmailPending carries the outstanding, unexpired request.
type EmailPending struct {
	Request EmailVerificationRequest
}

// EmailVerified means the current address is verified and nothing is in flight.
type EmailVerified struct {
	Email string
}

func (EmailUnverified) emailVerificationState() {}
func (EmailPending) emailVerificationState()    {}
func (EmailVerified) emailVerificationState()   {}
