package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
)

// PasswordResetHandler handles the password_reset_session cookie flows.
type PasswordResetHandler struct {
	PasswordResets *service.PasswordResetService
	Users          *service.UserService
	Cookies        httpx.CookieOptions
}

func (h *PasswordResetHandler) token(r *http.Request) string {
	return httpx.CookieValue(r, authsdk.PasswordResetSessionCookie)
}

// fail writes err and drops the reset cookie when the reset cannot continue.
func (h *PasswordResetHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrInvalidResetSession) || errors.Is(err, service.ErrRestartRequired) {
		h.Cookies.ClearCookie(w, authsdk.PasswordResetSessionCookie)
	}
	writeError(w, r, err)
}

// HandleCreate handles POST /v1/password-reset. The response is the same
// whether or not the address has an account.
//
//	@Summary		Start password reset
//	@Description	Sends a reset code and sets the password_reset_session cookie. Unknown addresses get the same response.
//	@Tags			Password reset
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.PasswordResetRequest	true	"Request body"
//	@Success		204	"Reset started"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Invalid email"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/password-reset [post]
func (h *PasswordResetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body authsdk.PasswordResetRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.PasswordResets.CreateSession(r.Context(), body.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.Cookies.SetCookie(w, authsdk.PasswordResetSessionCookie, token, time.Now().Add(domain.PasswordResetLifetime))
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyEmail handles POST /v1/password-reset/verify-email.
//
//	@Summary		Verify reset email
//	@Description	Checks the emailed reset code.
//	@Tags			Password reset
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.CodeRequest	true	"Request body"
//	@Success		204	"Email verified"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Incorrect code"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid reset session"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Already verified or restart required"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/password-reset/verify-email [post]
func (h *PasswordResetHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body authsdk.CodeRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.PasswordResets.VerifyEmail(r.Context(), h.token(r), body.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyTOTP handles POST /v1/password-reset/verify-2fa/totp.
//
//	@Summary		Verify reset second factor
//	@Description	Checks an authenticator code for the reset.
//	@Tags			Password reset
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.CodeRequest	true	"Request body"
//	@Success		204	"Second factor verified"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Incorrect code"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid reset session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or no authenticator registered"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Already verified"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/password-reset/verify-2fa/totp [post]
func (h *PasswordResetHandler) HandleVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	var body authsdk.CodeRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.PasswordResets.VerifyTOTP(r.Context(), h.token(r), body.Code); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyRecoveryCode handles POST /v1/password-reset/verify-2fa/recovery-code.
//
//	@Summary		Reset with recovery code
//	@Description	Spends the recovery code to satisfy the second factor. The authenticator is removed and a new recovery code is returned.
//	@Tags			Password reset
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.RecoveryCodeRequest	true	"Request body"
//	@Success		200	{object}	authsdk.RecoveryCodeResponse	"New recovery code"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Incorrect code"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid reset session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or no authenticator registered"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Already verified"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/password-reset/verify-2fa/recovery-code [post]
func (h *PasswordResetHandler) HandleVerifyRecoveryCode(w http.ResponseWriter, r *http.Request) {
	var body authsdk.RecoveryCodeRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	next, err := h.PasswordResets.VerifyRecoveryCode(r.Context(), h.token(r), body.RecoveryCode)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodeResponse{RecoveryCode: next})
}

// HandleUpdatePassword handles POST /v1/password-reset/update-password. It
// signs out every session and signs the caller in.
//
//	@Summary		Set new password
//	@Description	Finishes the reset. Every session of the user is signed out and a new one is issued.
//	@Tags			Password reset
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.NewPasswordRequest	true	"Request body"
//	@Success		200	{object}	authsdk.AuthResponse	"Signed in"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Invalid or breached password"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid reset session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or second factor required"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/password-reset/update-password [post]
func (h *PasswordResetHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var body authsdk.NewPasswordRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	token, session, err := h.PasswordResets.UpdatePassword(ctx, h.token(r), body.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.Cookies.ClearCookie(w, authsdk.PasswordResetSessionCookie)
	h.Cookies.SetCookie(w, authsdk.SessionCookie, token, session.ExpiresAt)

	user, err := h.Users.GetUserByID(ctx, session.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authResponse(session, user))
}
