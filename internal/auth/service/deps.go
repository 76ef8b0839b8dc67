package service

import (
	"context"
	"time"
)

// PasswordHasher is satisfied by cryptox.Argon2Hasher.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// BreachChecker reports whether a password appears in a known breach corpus.
// Satisfied by *pwned.Client.
type BreachChecker interface {
	IsBreached(ctx context.Context, password string) (bool, error)
}

func nowOr(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
