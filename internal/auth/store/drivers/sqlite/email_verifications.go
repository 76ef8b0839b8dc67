package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
)

type emailVerificationsRepo struct {
	db dbtx
}

func (r *emailVerificationsRepo) CreateRequest(ctx context.Context, req domain.EmailVerificationRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_verification_requests (id, user_id, email, code, expires_at) VALUES (?, ?, ?, ?, ?)`,
		req.ID, req.UserID, req.Email, req.Code, unix(req.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *emailVerificationsRepo) get(ctx context.Context, where string, arg any) (domain.EmailVerificationRequest, error) {
	var (
		req       domain.EmailVerificationRequest
		expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, code, expires_at FROM email_verification_requests WHERE `+where, arg,
	).Scan(&req.ID, &req.UserID, &req.Email, &req.Code, &expiresAt)
	if err != nil {
		return domain.EmailVerificationRequest{}, mapNotFound(err)
	}
	req.ExpiresAt = fromUnix(expiresAt)
	return req, nil
}

func (r *emailVerificationsRepo) GetRequest(ctx context.Context, id string) (domain.EmailVerificationRequest, error) {
	return r.get(ctx, `id = ?`, id)
}

func (r *emailVerificationsRepo) GetUserRequest(ctx context.Context, userID string) (domain.EmailVerificationRequest, error) {
	return r.get(ctx, `user_id = ?`, userID)
}

func (r *emailVerificationsRepo) ConsumeRequest(ctx context.Context, req domain.EmailVerificationRequest) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM email_verification_requests
		 WHERE id = ? AND user_id = ? AND email = ? AND code = ?`,
		req.ID, req.UserID, req.Email, req.Code,
	))
}

func (r *emailVerificationsRepo) DeleteUserRequests(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_verification_requests WHERE user_id = ?`, userID)
	return err
}

func (r *emailVerificationsRepo) DeleteExpiredRequests(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM email_verification_requests WHERE expires_at <= ?`, unix(now)))
}
