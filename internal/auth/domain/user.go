package domain

import "time"

type User struct {
	ID            string
	Email         string // unique, lowercased
	Username      string
	EmailVerified bool
	PasswordHash  string // argon2id PHC string
	RecoveryCode  []byte // encrypted
	TOTPKey       []byte // encrypted, nil when no authenticator is registered
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RegisteredTOTP reports whether the user has a second factor.
func (u User) RegisteredTOTP() bool {
	return len(u.TOTPKey) > 0
}
