package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// authState is the signed-in session and its user.
type authState struct {
	Session domain.Session
	User    domain.User
}

type authCtxKey struct{}

func withAuth(ctx context.Context, a authState) context.Context {
	return context.WithValue(ctx, authCtxKey{}, a)
}

func authFromContext(ctx context.Context) (authState, bool) {
	a, ok := ctx.Value(authCtxKey{}).(authState)
	return a, ok
}

// loadSession resolves the session cookie. Invalid cookies are cleared and
// valid ones are rewritten so a renewed expiry reaches the client.
func (r *Router) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token := httpx.CookieValue(req, authsdk.SessionCookie)
		if token == "" {
			next.ServeHTTP(w, req)
			return
		}

		ctx := req.Context()
		session, user, err := r.Sessions.ValidateSessionToken(ctx, token)
		switch {
		case errors.Is(err, service.ErrInvalidSession):
			r.cookies.ClearCookie(w, authsdk.SessionCookie)
			next.ServeHTTP(w, req)
			return
		case err != nil:
			slogx.FromContext(ctx).Error("failed to validate session", "error", err)
			authsdk.ErrServerError.WriteError(w)
			return
		}

		r.cookies.SetCookie(w, authsdk.SessionCookie, token, session.ExpiresAt)

		ctx = httpx.WithUserID(ctx, user.ID)
		ctx = slogx.With(ctx, "user_id", user.ID)
		ctx = withAuth(ctx, authState{Session: session, User: user})
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

type authedHandlerFunc func(w http.ResponseWriter, r *http.Request, a authState)

// requireSession rejects requests without a valid session with 401.
func requireSession(h authedHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := authFromContext(r.Context())
		if !ok {
			authsdk.ErrUnauthorized.WriteError(w)
			return
		}
		h(w, r, a)
	})
}

// requireVerified is the gate for account settings: the email must be
// verified and the second factor passed when one is registered.
func requireVerified(a authState) error {
	if !a.User.EmailVerified {
		return service.ErrEmailNotVerified
	}
	if !a.Session.SecondFactorSatisfied(a.User) {
		return service.ErrTwoFactorRequired
	}
	return nil
}

func userView(u domain.User) authsdk.User {
	return authsdk.User{
		ID:             u.ID,
		Email:          u.Email,
		Username:       u.Username,
		EmailVerified:  u.EmailVerified,
		RegisteredTOTP: u.RegisteredTOTP(),
		CreatedAt:      u.CreatedAt,
	}
}

func sessionView(s domain.Session) authsdk.SessionInfo {
	return authsdk.SessionInfo{
		ExpiresAt:         s.ExpiresAt,
		TwoFactorVerified: s.TwoFactorVerified,
	}
}

func authResponse(s domain.Session, u domain.User) authsdk.AuthResponse {
	return authsdk.AuthResponse{
		User:              userView(u),
		Session:           sessionView(s),
		TwoFactorRequired: !s.SecondFactorSatisfied(u),
	}
}
