package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/store"
	"github.com/aussiebroadwan/gatekeep/internal/auth/telemetry"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// SessionService issues and validates opaque session tokens. Only the
// SHA-256 of a token is ever stored.
type SessionService struct {
	Store   store.Store
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

// GenerateSessionToken returns 160 random bits as lowercase base32.
func GenerateSessionToken() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize160)
}

// CreateSession stores a session for token. The returned session carries the
// two factor flag as persisted, which is false for users without TOTP.
func (s *SessionService) CreateSession(ctx context.Context, token, userID string, flags domain.SessionFlags) (domain.Session, error) {
	return s.createSession(ctx, s.Store, token, userID, flags, "login")
}

func (s *SessionService) createSession(ctx context.Context, st store.Store, token, userID string, flags domain.SessionFlags, reason string) (domain.Session, error) {
	session, err := st.Sessions().CreateSession(ctx, domain.Session{
		ID:                cryptox.HashToken(token),
		UserID:            userID,
		ExpiresAt:         nowOr(s.Now).Add(domain.SessionLifetime),
		TwoFactorVerified: flags.TwoFactorVerified,
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.Metrics.RecordSessionCreated(ctx, reason)
	return session, nil
}

// ValidateSessionToken resolves token to its session and user. Expired
// sessions are deleted. Sessions in the second half of their lifetime are
// extended by a full lifetime; younger sessions are not written to.
func (s *SessionService) ValidateSessionToken(ctx context.Context, token string) (domain.Session, domain.User, error) {
	if token == "" {
		return domain.Session{}, domain.User{}, ErrInvalidSession
	}

	session, user, err := s.Store.Sessions().GetSession(ctx, cryptox.HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, domain.User{}, ErrInvalidSession
		}
		return domain.Session{}, domain.User{}, fmt.Errorf("failed to load session: %w", err)
	}

	now := nowOr(s.Now)
	if session.Expired(now) {
		if err := s.Store.Sessions().DeleteSession(ctx, session.ID); err != nil {
			slogx.FromContext(ctx).Warn("failed to delete expired session", "error", err)
		}
		return domain.Session{}, domain.User{}, ErrInvalidSession
	}

	if session.DueForRenewal(now) {
		expiresAt := now.Add(domain.SessionLifetime)
		if err := s.Store.Sessions().UpdateSessionExpiry(ctx, session.ID, expiresAt); err != nil {
			return domain.Session{}, domain.User{}, fmt.Errorf("failed to renew session: %w", err)
		}
		session.ExpiresAt = expiresAt
		s.Metrics.RecordSessionRenewed(ctx)
	}

	return session, user, nil
}

func (s *SessionService) InvalidateSession(ctx context.Context, sessionID string) error {
	return s.Store.Sessions().DeleteSession(ctx, sessionID)
}

func (s *SessionService) InvalidateUserSessions(ctx context.Context, userID string) error {
	return s.Store.Sessions().DeleteUserSessions(ctx, userID)
}

func (s *SessionService) InvalidateUserSessionsExceptOne(ctx context.Context, userID, keepSessionID string) error {
	return s.Store.Sessions().DeleteUserSessionsExcept(ctx, userID, keepSessionID)
}

// SetSessionAs2FAVerified marks the session as having passed the second
// factor. Fails with ErrTwoFactorNotRegistered when the owner has no TOTP key.
func (s *SessionService) SetSessionAs2FAVerified(ctx context.Context, sessionID string) error {
	return setSessionAs2FAVerified(ctx, s.Store, sessionID)
}

func setSessionAs2FAVerified(ctx context.Context, st store.Store, sessionID string) error {
	ok, err := st.Sessions().SetTwoFactorVerified(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to flag session: %w", err)
	}
	if !ok {
		return ErrTwoFactorNotRegistered
	}
	return nil
}
