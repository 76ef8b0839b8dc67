package domain

import "time"

const PasswordResetLifetime = 10 * time.Minute

// PasswordResetSession is a short lived, two stage credential. ID is the
// SHA-256 hex of the client-held token.
type PasswordResetSession struct {
	ID                string
	UserID            string
	Email             string
	Code              string
	ExpiresAt         time.Time
	EmailVerified     bool
	TwoFactorVerified bool
}

func (s PasswordResetSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type ResetStage int

const (
	ResetAwaitingEmail ResetStage = iota
	ResetAwaitingSecondFactor
	ResetReady
)

func (s ResetStage) String() string {
	switch s {
	case ResetAwaitingEmail:
		return "awaiting_email"
	case ResetAwaitingSecondFactor:
		return "awaiting_second_factor"
	case ResetReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Stage derives where the reset flow stands for the owning user u.
func (s PasswordResetSession) Stage(u User) ResetStage {
	switch {
	case !s.EmailVerified:
		return ResetAwaitingEmail
	case u.RegisteredTOTP() && !s.TwoFactorVerified:
		return ResetAwaitingSecondFactor
	default:
		return ResetReady
	}
}
