package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
)

const userColumns = `id, email, username, email_verified, password_hash, recovery_code, totp_key, created_at, updated_at`

type usersRepo struct {
	db dbtx
}

type userRow struct {
	ID            string
	Email         string
	Username      string
	EmailVerified bool
	PasswordHash  string
	RecoveryCode  []byte
	TOTPKey       []byte // NULL scans to nil
	CreatedAt     int64
	UpdatedAt     int64
}

func (r *userRow) dest() []any {
	return []any{&r.ID, &r.Email, &r.Username, &r.EmailVerified, &r.PasswordHash,
		&r.RecoveryCode, &r.TOTPKey, &r.CreatedAt, &r.UpdatedAt}
}

func (r userRow) domain() domain.User {
	return domain.User{
		ID:            r.ID,
		Email:         r.Email,
		Username:      r.Username,
		EmailVerified: r.EmailVerified,
		PasswordHash:  r.PasswordHash,
		RecoveryCode:  r.RecoveryCode,
		TOTPKey:       r.TOTPKey,
		CreatedAt:     fromUnix(r.CreatedAt),
		UpdatedAt:     fromUnix(r.UpdatedAt),
	}
}

func (r *usersRepo) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	var row userRow
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).Scan(row.dest()...)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return row.domain(), nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	var totpKey any
	if len(u.TOTPKey) > 0 {
		totpKey = u.TOTPKey
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, boolInt(u.EmailVerified), u.PasswordHash,
		u.RecoveryCode, totpKey, unix(u.CreatedAt), unix(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `email = ?`, email)
}

func (r *usersRepo) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = ?, updated_at = unixepoch() WHERE id = ?`, hash, userID)
}

func (r *usersRepo) SetEmailVerifiedIfEmailMatches(ctx context.Context, userID, email string) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = 1, updated_at = unixepoch() WHERE id = ? AND email = ?`,
		userID, email,
	))
}

func (r *usersRepo) UpdateEmailAndSetVerified(ctx context.Context, userID, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = ?, email_verified = 1, updated_at = unixepoch() WHERE id = ?`,
		email, userID,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateRecoveryCode(ctx context.Context, userID string, encrypted []byte) error {
	return r.exec(ctx, `UPDATE users SET recovery_code = ?, updated_at = unixepoch() WHERE id = ?`, encrypted, userID)
}

func (r *usersRepo) ReplaceRecoveryCodeAndClearTOTP(ctx context.Context, userID string, current, next []byte) (bool, error) {
	return affected(r.db.ExecContext(ctx,
		`UPDATE users SET recovery_code = ?, totp_key = NULL, updated_at = unixepoch()
		 WHERE id = ? AND recovery_code = ?`,
		next, userID, current,
	))
}

func (r *usersRepo) UpdateTOTPKey(ctx context.Context, userID string, encrypted []byte) error {
	return r.exec(ctx, `UPDATE users SET totp_key = ?, updated_at = unixepoch() WHERE id = ?`, encrypted, userID)
}

// exec runs a single-row update and reports ErrNotFound when nothing matched.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	ok, err := affected(r.db.ExecContext(ctx, query, args...))
	if err != nil {
		return err
	}
	if !ok {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
