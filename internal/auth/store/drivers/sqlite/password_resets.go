package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
)

type passwordResetsRepo struct {
	db dbtx
}

func (r *passwordResetsRepo) CreateResetSession(ctx context.Context, s domain.PasswordResetSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_sessions
		     (id, user_id, email, code, expires_at, email_verified, two_factor_verified)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Email, s.Code, unix(s.ExpiresAt),
		boolInt(s.EmailVerified), boolInt(s.TwoFactorVerified),
	)
	return mapConstraint(err)
}

func (r *passwordResetsRepo) GetResetSession(ctx context.Context, id string) (domain.PasswordResetSession, domain.User, error) {
	var (
		s         domain.PasswordResetSession
		expiresAt int64
		u         userRow
	)
	dest := append([]any{&s.ID, &s.UserID, &s.Email, &s.Code, &expiresAt, &s.EmailVerified, &s.TwoFactorVerified}, u.dest()...)

	err := r.db.QueryRowContext(ctx,
		`SELECT p.id, p.user_id, p.email, p.code, p.expires_at, p.email_verified, p.two_factor_verified,
		        u.id, u.email, u.username, u.email_verified, u.password_hash,
		        u.recovery_code, u.totp_key, u.created_at, u.updated_at
		 FROM password_reset_sessions p INNER JOIN users u ON u.id = p.user_id
		 WHERE p.id = ?`, id,
	).Scan(dest...)
	if err != nil {
		return domain.PasswordResetSession{}, domain.User{}, mapNotFound(err)
	}

	s.ExpiresAt = fromUnix(expiresAt)
	return s, u.domain(), nil
}

func (r *passwordResetsRepo) SetEmailVerified(ctx context.Context, id string) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE password_reset_sessions SET email_verified = 1 WHERE id = ? AND email_verified = 0`, id))
}

func (r *passwordResetsRepo) SetTwoFactorVerified(ctx context.Context, id string) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE password_reset_sessions SET two_factor_verified = 1 WHERE id = ? AND two_factor_verified = 0`, id))
}

func (r *passwordResetsRepo) ConsumeResetSession(ctx context.Context, id string, now time.Time) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM password_reset_sessions WHERE id = ? AND expires_at > ? AND email_verified = 1`,
		id, unix(now)))
}

func (r *passwordResetsRepo) DeleteResetSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_sessions WHERE id = ?`, id)
	return err
}

func (r *passwordResetsRepo) DeleteUserResetSessions(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_sessions WHERE user_id = ?`, userID)
	return err
}

func (r *passwordResetsRepo) DeleteExpiredResetSessions(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM password_reset_sessions WHERE expires_at <= ?`, unix(now)))
}
