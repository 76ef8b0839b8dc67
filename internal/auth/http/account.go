package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
)

// AccountHandler handles sign up, sign in and the account itself.
type AccountHandler struct {
	Accounts           *service.AccountService
	EmailVerifications *service.EmailVerificationService
	Cookies            httpx.CookieOptions
}

// HandleSignup handles POST /v1/signup. It sets the session and
// email_verification cookies.
//
//	@Summary		Create an account
//	@Description	Creates the user, signs them in and sends the first email verification code. Sets the session and email_verification cookies.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.SignupRequest	true	"Request body"
//	@Success		201	{object}	authsdk.AuthResponse	"Signed in"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Invalid input or breached password"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Email already registered"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/signup [post]
func (h *AccountHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SignupRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Accounts.Signup(r.Context(), httpx.IPKeyExtractor(r), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.Cookies.SetCookie(w, authsdk.SessionCookie, res.SessionToken, res.Session.ExpiresAt)
	h.Cookies.SetCookie(w, authsdk.EmailVerificationCookie, res.Verification.ID, res.Verification.ExpiresAt)

	httpx.WriteJSON(w, http.StatusCreated, authResponse(res.Session, res.User))
}

// HandleLogin handles POST /v1/login.
//
//	@Summary		Sign in
//	@Description	Checks the password and issues a session cookie. Consecutive failures are throttled per account.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.LoginRequest	true	"Request body"
//	@Success		200	{object}	authsdk.AuthResponse	"Signed in"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Malformed body"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/login [post]
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token, session, user, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.Cookies.SetCookie(w, authsdk.SessionCookie, token, session.ExpiresAt)
	httpx.WriteJSON(w, http.StatusOK, authResponse(session, user))
}

// HandleLogout handles POST /v1/logout.
//
//	@Summary		Sign out
//	@Description	Invalidates the calling session and clears the cookies.
//	@Tags			Accounts
//	@Produce		json
//	@Success		204	"Signed out"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/logout [post]
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request, a authState) {
	if err := h.Accounts.Logout(r.Context(), a.Session); err != nil {
		writeError(w, r, err)
		return
	}

	h.Cookies.ClearCookie(w, authsdk.SessionCookie)
	h.Cookies.ClearCookie(w, authsdk.EmailVerificationCookie)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /v1/me.
//
//	@Summary		Current user
//	@Description	Returns the signed-in user, the session and the email verification state.
//	@Tags			Accounts
//	@Produce		json
//	@Success		200	{object}	authsdk.MeResponse	"Current user"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/me [get]
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request, a authState) {
	state, err := h.EmailVerifications.State(r.Context(), a.User.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{
		User:              userView(a.User),
		Session:           sessionView(a.Session),
		EmailVerification: verificationView(state),
	})
}

// HandleChangePassword handles POST /v1/password. Every other session of the
// user is signed out.
//
//	@Summary		Change password
//	@Description	Replaces the password after checking the current one. Every other session is signed out.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Request body"
//	@Success		204	"Password changed"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Invalid input or breached password"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Wrong current password or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or second factor required"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/password [post]
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request, a authState) {
	if err := requireVerified(a); err != nil {
		writeError(w, r, err)
		return
	}

	var req authsdk.ChangePasswordRequest
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Accounts.ChangePassword(r.Context(), a.Session, a.User, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func verificationView(state domain.EmailVerificationState) authsdk.EmailVerificationState {
	switch s := state.(type) {
	case domain.EmailPending:
		expires := s.Request.ExpiresAt
		return authsdk.EmailVerificationState{State: "pending", Email: s.Request.Email, ExpiresAt: &expires}
	case domain.EmailVerified:
		return authsdk.EmailVerificationState{State: "verified", Email: s.Email}
	default:
		return authsdk.EmailVerificationState{State: "unverified"}
	}
}
