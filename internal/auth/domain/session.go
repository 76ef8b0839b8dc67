package domain

import "time"

// Session lifetime and the point at which validation slides it forward.
const (
	SessionLifetime     = 30 * 24 * time.Hour
	SessionRenewalAfter = 15 * 24 * time.Hour
)

// Session is a signed-in device. ID is the SHA-256 hex of the client-held
// token; the token itself is never stored.
type Session struct {
	ID                string
	UserID            string
	ExpiresAt         time.Time
	TwoFactorVerified bool
}

type SessionFlags struct {
	TwoFactorVerified bool
}

// Expired reports whether the session is no longer usable at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// DueForRenewal reports whether now falls in the last half of the lifetime.
func (s Session) DueForRenewal(now time.Time) bool {
	return !now.Before(s.ExpiresAt.Add(-SessionRenewalAfter))
}

// SecondFactorSatisfied reports whether this session may act on behalf of u
// for actions that require a second factor when one is registered.
func (s Session) SecondFactorSatisfied(u User) bool {
	return !u.RegisteredTOTP() || s.TwoFactorVerified
}
