package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/idx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

type UserService struct {
	Store  store.Store
	Cipher *cryptox.Cipher
	Hasher PasswordHasher
	Breach BreachChecker // nil disables the breach check
	Now    func() time.Time
}

// CreateUser validates the input, hashes the password and stores the user
// with a freshly generated, encrypted recovery code.
func (s *UserService) CreateUser(ctx context.Context, email, username, password string) (domain.User, error) {
	email = NormalizeEmail(email)
	if !ValidEmail(email) {
		return domain.User{}, ErrInvalidEmail
	}
	if !ValidUsername(username) {
		return domain.User{}, ErrInvalidUsername
	}

	available, err := s.Store.Users().IsEmailAvailable(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to check email availability: %w", err)
	}
	if !available {
		return domain.User{}, ErrEmailTaken
	}

	hash, err := s.HashNewPassword(ctx, password)
	if err != nil {
		return domain.User{}, err
	}

	recoveryCode, err := cryptox.GenerateRecoveryCode()
	if err != nil {
		return domain.User{}, err
	}
	encrypted, err := s.Cipher.EncryptString(recoveryCode)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to encrypt recovery code: %w", err)
	}

	now := nowOr(s.Now).UTC().Truncate(time.Second)
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		RecoveryCode: encrypted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user created", "user_id", u.ID)
	return u, nil
}

// HashNewPassword enforces the length bounds and breach check on a password
// about to be set, then hashes it.
func (s *UserService) HashNewPassword(ctx context.Context, password string) (string, error) {
	if !ValidPassword(password) {
		return "", ErrInvalidPassword
	}

	if s.Breach != nil {
		breached, err := s.Breach.IsBreached(ctx, password)
		if err != nil {
			return "", fmt.Errorf("failed to check password strength: %w", err)
		}
		if breached {
			return "", ErrWeakPassword
		}
	}

	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// VerifyPassword reports whether password matches the user's stored hash.
func (s *UserService) VerifyPassword(u domain.User, password string) (bool, error) {
	return s.Hasher.Verify(password, u.PasswordHash)
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// GetUserByEmail normalizes email before the lookup.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.Store.Users().GetUserByEmail(ctx, NormalizeEmail(email))
}

// UpdatePassword replaces the password hash after the usual checks.
func (s *UserService) UpdatePassword(ctx context.Context, userID, password string) error {
	hash, err := s.HashNewPassword(ctx, password)
	if err != nil {
		return err
	}
	return s.Store.Users().UpdatePasswordHash(ctx, userID, hash)
}

func (s *UserService) GetRecoveryCode(ctx context.Context, userID string) (string, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return s.Cipher.DecryptToString(u.RecoveryCode)
}

// ResetRecoveryCode issues a new recovery code and returns it in plaintext.
func (s *UserService) ResetRecoveryCode(ctx context.Context, userID string) (string, error) {
	code, encrypted, err := s.newRecoveryCode()
	if err != nil {
		return "", err
	}
	if err := s.Store.Users().UpdateRecoveryCode(ctx, userID, encrypted); err != nil {
		return "", fmt.Errorf("failed to store recovery code: %w", err)
	}
	return code, nil
}

// TOTPKey decrypts the user's authenticator key, nil when none is registered.
func (s *UserService) TOTPKey(u domain.User) ([]byte, error) {
	if !u.RegisteredTOTP() {
		return nil, nil
	}
	key, err := s.Cipher.Decrypt(u.TOTPKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt TOTP key: %w", err)
	}
	return key, nil
}

func (s *UserService) UpdateTOTPKey(ctx context.Context, userID string, key []byte) error {
	encrypted, err := s.Cipher.Encrypt(key)
	if err != nil {
		return fmt.Errorf("failed to encrypt TOTP key: %w", err)
	}
	return s.Store.Users().UpdateTOTPKey(ctx, userID, encrypted)
}

// ResetSecondFactorWithRecoveryCode spends the recovery code: when code
// matches, the TOTP key is removed, the code is rotated and every session of
// the user loses its second factor flag. tx must be a transaction so the
// three writes land together. Returns the new code.
func (s *UserService) ResetSecondFactorWithRecoveryCode(ctx context.Context, tx store.Tx, userID, code string) (string, error) {
	u, err := tx.Users().GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	current, err := s.Cipher.DecryptToString(u.RecoveryCode)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt recovery code: %w", err)
	}
	if !cryptox.EqualStrings(current, code) {
		return "", ErrIncorrectCode
	}

	next, encrypted, err := s.newRecoveryCode()
	if err != nil {
		return "", err
	}

	// Conditional on the blob we just read, so a concurrent reset that got
	// there first turns this one into a miss.
	ok, err := tx.Users().ReplaceRecoveryCodeAndClearTOTP(ctx, userID, u.RecoveryCode, encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to replace recovery code: %w", err)
	}
	if !ok {
		return "", ErrIncorrectCode
	}

	if err := tx.Sessions().ClearUserTwoFactorVerified(ctx, userID); err != nil {
		return "", fmt.Errorf("failed to clear session flags: %w", err)
	}

	return next, nil
}

func (s *UserService) newRecoveryCode() (string, []byte, error) {
	code, err := cryptox.GenerateRecoveryCode()
	if err != nil {
		return "", nil, err
	}
	encrypted, err := s.Cipher.EncryptString(code)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encrypt recovery code: %w", err)
	}
	return code, encrypted, nil
}
