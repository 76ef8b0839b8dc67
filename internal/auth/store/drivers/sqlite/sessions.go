package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
)

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) (domain.Session, error) {
	// The flag only sticks for users holding a TOTP key.
	var stored bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, two_factor_verified)
		 SELECT ?, u.id, ?, (? AND u.totp_key IS NOT NULL) FROM users u WHERE u.id = ?
		 RETURNING two_factor_verified`,
		s.ID, unix(s.ExpiresAt), boolInt(s.TwoFactorVerified), s.UserID,
	).Scan(&stored)
	if err != nil {
		return domain.Session{}, mapConstraint(mapNotFound(err))
	}
	s.TwoFactorVerified = stored
	return s, nil
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, domain.User, error) {
	var (
		s         domain.Session
		expiresAt int64
		u         userRow
	)
	dest := append([]any{&s.ID, &s.UserID, &expiresAt, &s.TwoFactorVerified}, u.dest()...)

	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.expires_at, s.two_factor_verified,
		        u.id, u.email, u.username, u.email_verified, u.password_hash,
		        u.recovery_code, u.totp_key, u.created_at, u.updated_at
		 FROM sessions s INNER JOIN users u ON u.id = s.user_id
		 WHERE s.id = ?`, id,
	).Scan(dest...)
	if err != nil {
		return domain.Session{}, domain.User{}, mapNotFound(err)
	}

	s.ExpiresAt = fromUnix(expiresAt)
	return s, u.domain(), nil
}

func (r *sessionsRepo) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE id = ?`, unix(expiresAt), id)
	return err
}

func (r *sessionsRepo) SetTwoFactorVerified(ctx context.Context, id string) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE sessions SET two_factor_verified = 1
		 WHERE id = ? AND EXISTS (
		     SELECT 1 FROM users u WHERE u.id = sessions.user_id AND u.totp_key IS NOT NULL
		 )`, id,
	))
}

func (r *sessionsRepo) ClearUserTwoFactorVerified(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET two_factor_verified = 0 WHERE user_id = ?`, userID)
	return err
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sessionsRepo) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

func (r *sessionsRepo) DeleteUserSessionsExcept(ctx context.Context, userID, keepID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND id != ?`, userID, keepID)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, unix(now)))
}
