package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories per concern. A Tx is itself a Store, which keeps the
// same repository code usable inside and outside transactions.
type Store interface {
	Users() Users
	Sessions() Sessions
	EmailVerifications() EmailVerifications
	PasswordResets() PasswordResets

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn inside a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user. ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches on the lowercased email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// IsEmailAvailable reports whether no user owns email.
	IsEmailAvailable(ctx context.Context, email string) (bool, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// SetEmailVerifiedIfEmailMatches flags the email verified only while the
	// user's email still equals email. Reports whether a row changed.
	SetEmailVerifiedIfEmailMatches(ctx context.Context, userID, email string) (bool, error)

	// UpdateEmailAndSetVerified replaces the email and flags it verified.
	UpdateEmailAndSetVerified(ctx context.Context, userID, email string) error

	UpdateRecoveryCode(ctx context.Context, userID string, encrypted []byte) error

	// ReplaceRecoveryCodeAndClearTOTP swaps the recovery code and removes the
	// TOTP key, but only while the stored code still equals current. Reports
	// whether a row changed.
	ReplaceRecoveryCodeAndClearTOTP(ctx context.Context, userID string, current, next []byte) (bool, error)

	UpdateTOTPKey(ctx context.Context, userID string, encrypted []byte) error
}

type Sessions interface {
	// CreateSession inserts s. The two factor flag is only persisted when the
	// user has a TOTP key; the stored value is returned.
	CreateSession(ctx context.Context, s domain.Session) (domain.Session, error)

	// GetSession returns the session together with its user.
	GetSession(ctx context.Context, id string) (domain.Session, domain.User, error)

	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error

	// SetTwoFactorVerified flips the flag, conditional on the user having a
	// TOTP key. Reports whether a row changed.
	SetTwoFactorVerified(ctx context.Context, id string) (bool, error)

	// ClearUserTwoFactorVerified revokes the flag on every session of userID.
	ClearUserTwoFactorVerified(ctx context.Context, userID string) error

	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	DeleteUserSessionsExcept(ctx context.Context, userID, keepID string) error

	// DeleteExpiredSessions is housekeeping. Returns the number of rows removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type EmailVerifications interface {
	CreateRequest(ctx context.Context, r domain.EmailVerificationRequest) error
	GetRequest(ctx context.Context, id string) (domain.EmailVerificationRequest, error)
	GetUserRequest(ctx context.Context, userID string) (domain.EmailVerificationRequest, error)

	// ConsumeRequest deletes the request only if every field still matches.
	// Reports whether it was consumed.
	ConsumeRequest(ctx context.Context, r domain.EmailVerificationRequest) (bool, error)

	DeleteUserRequests(ctx context.Context, userID string) error
	DeleteExpiredRequests(ctx context.Context, now time.Time) (int64, error)
}

type PasswordResets interface {
	CreateResetSession(ctx context.Context, s domain.PasswordResetSession) error

	// GetResetSession returns the reset session together with its user.
	GetResetSession(ctx context.Context, id string) (domain.PasswordResetSession, domain.User, error)

	// SetEmailVerified flips the flag if not already set. Reports whether a row changed.
	SetEmailVerified(ctx context.Context, id string) (bool, error)

	// SetTwoFactorVerified flips the flag if not already set. Reports whether a row changed.
	SetTwoFactorVerified(ctx context.Context, id string) (bool, error)

	// ConsumeResetSession deletes an unexpired reset session whose email is
	// verified. Reports whether it was still there to consume.
	ConsumeResetSession(ctx context.Context, id string, now time.Time) (bool, error)

	DeleteResetSession(ctx context.Context, id string) error
	DeleteUserResetSessions(ctx context.Context, userID string) error
	DeleteExpiredResetSessions(ctx context.Context, now time.Time) (int64, error)
}
