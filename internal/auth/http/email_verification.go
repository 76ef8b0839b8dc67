package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeep/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
)

// EmailVerificationHandler handles the email_verification cookie flows. The
// cookie holds the id of the user's pending request.
type EmailVerificationHandler struct {
	EmailVerifications *service.EmailVerificationService
	Cookies            httpx.CookieOptions
}

func (h *EmailVerificationHandler) setRequestCookie(w http.ResponseWriter, req domain.EmailVerificationRequest) {
	h.Cookies.SetCookie(w, authsdk.EmailVerificationCookie, req.ID, req.ExpiresAt)
}

// HandleVerify handles POST /v1/email-verification/verify.
//
//	@Summary		Verify email
//	@Description	Checks the emailed code against the request named by the email_verification cookie. An expired request is replaced and a new code is sent.
//	@Tags			Email
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.CodeRequest	true	"Request body"
//	@Success		204	"Email verified"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Incorrect or expired code, or unknown request"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Second factor required"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Email taken by another account"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/email-verification/verify [post]
func (h *EmailVerificationHandler) HandleVerify(w http.ResponseWriter, r *http.Request, a authState) {
	if !a.Session.SecondFactorSatisfied(a.User) {
		writeError(w, r, service.ErrTwoFactorRequired)
		return
	}

	var body authsdk.CodeRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	requestID := httpx.CookieValue(r, authsdk.EmailVerificationCookie)
	req, err := h.EmailVerifications.Verify(r.Context(), a.User.ID, requestID, body.Code)
	switch {
	case errors.Is(err, service.ErrCodeExpired):
		h.setRequestCookie(w, req)
		writeError(w, r, err)
		return
	case errors.Is(err, service.ErrInvalidRequest):
		h.Cookies.ClearCookie(w, authsdk.EmailVerificationCookie)
		writeError(w, r, err)
		return
	case err != nil:
		writeError(w, r, err)
		return
	}

	h.Cookies.ClearCookie(w, authsdk.EmailVerificationCookie)
	w.WriteHeader(http.StatusNoContent)
}

// HandleResend handles POST /v1/email-verification/resend.
//
//	@Summary		Resend verification code
//	@Description	Issues and sends a new code for the pending address.
//	@Tags			Email
//	@Produce		json
//	@Success		200	{object}	authsdk.VerificationSentResponse	"Code sent"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Second factor required"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Already verified"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/email-verification/resend [post]
func (h *EmailVerificationHandler) HandleResend(w http.ResponseWriter, r *http.Request, a authState) {
	if !a.Session.SecondFactorSatisfied(a.User) {
		writeError(w, r, service.ErrTwoFactorRequired)
		return
	}

	requestID := httpx.CookieValue(r, authsdk.EmailVerificationCookie)
	req, err := h.EmailVerifications.Resend(r.Context(), a.User.ID, requestID)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyVerified) {
			h.Cookies.ClearCookie(w, authsdk.EmailVerificationCookie)
		}
		writeError(w, r, err)
		return
	}

	h.setRequestCookie(w, req)
	httpx.WriteJSON(w, http.StatusOK, authsdk.VerificationSentResponse{
		Email:     req.Email,
		ExpiresAt: req.ExpiresAt,
	})
}

// HandleChangeEmail handles POST /v1/email. The new address is only applied
// once verified.
//
//	@Summary		Change email
//	@Description	Sends a verification code to the new address. The address changes once the code is verified.
//	@Tags			Email
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.EmailChangeRequest	true	"Request body"
//	@Success		202	{object}	authsdk.VerificationSentResponse	"Code sent to the new address"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Invalid email"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or second factor required"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Email already registered"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/email [post]
func (h *EmailVerificationHandler) HandleChangeEmail(w http.ResponseWriter, r *http.Request, a authState) {
	if err := requireVerified(a); err != nil {
		writeError(w, r, err)
		return
	}

	var body authsdk.EmailChangeRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.EmailVerifications.RequestEmailChange(r.Context(), a.User.ID, body.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setRequestCookie(w, req)
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.VerificationSentResponse{
		Email:     req.Email,
		ExpiresAt: req.ExpiresAt,
	})
}
