package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
)

// TwoFactorHandler handles authenticator and recovery code endpoints.
type TwoFactorHandler struct {
	TwoFactor *service.TwoFactorService
}

// HandleEnroll handles GET /v1/2fa/totp/setup. Nothing is stored until the
// key is confirmed with HandleSetup.
//
//	@Summary		New authenticator key
//	@Description	Generates a TOTP key and otpauth URL. Nothing is stored until setup completes.
//	@Tags			Two factor
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollment	"Key and URL"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or second factor required"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/2fa/totp/setup [get]
func (h *TwoFactorHandler) HandleEnroll(w http.ResponseWriter, r *http.Request, a authState) {
	if err := requireVerified(a); err != nil {
		writeError(w, r, err)
		return
	}

	enrollment, err := h.TwoFactor.NewTOTPEnrollment(a.User)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollment{
		EncodedKey: enrollment.EncodedKey,
		URL:        enrollment.URL,
	})
}

// HandleSetup handles POST /v1/2fa/totp/setup.
//
//	@Summary		Register authenticator
//	@Description	Stores the key once a code from it verifies. Returns a new recovery code.
//	@Tags			Two factor
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.TOTPSetupRequest	true	"Request body"
//	@Success		200	{object}	authsdk.RecoveryCodeResponse	"Registered"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Incorrect code or malformed key"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or second factor required"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/2fa/totp/setup [post]
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request, a authState) {
	var body authsdk.TOTPSetupRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	code, err := h.TwoFactor.SetupTOTP(r.Context(), a.Session, a.User, body.EncodedKey, body.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodeResponse{RecoveryCode: code})
}

// HandleVerify handles POST /v1/2fa/totp/verify.
//
//	@Summary		Verify authenticator code
//	@Description	Marks the session as second factor verified.
//	@Tags			Two factor
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.CodeRequest	true	"Request body"
//	@Success		204	"Verified"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Incorrect code"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or no authenticator registered"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Already verified"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/2fa/totp/verify [post]
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request, a authState) {
	var body authsdk.CodeRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.TwoFactor.VerifyTOTP(r.Context(), a.Session, a.User, body.Code); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset handles POST /v1/2fa/reset.
//
//	@Summary		Remove authenticator
//	@Description	Spends the recovery code to remove the authenticator. Returns a new recovery code.
//	@Tags			Two factor
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.RecoveryCodeRequest	true	"Request body"
//	@Success		200	{object}	authsdk.RecoveryCodeResponse	"New recovery code"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Incorrect code"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or no authenticator registered"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited, see Retry-After"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/2fa/reset [post]
func (h *TwoFactorHandler) HandleReset(w http.ResponseWriter, r *http.Request, a authState) {
	var body authsdk.RecoveryCodeRequest
	if err := httpx.ReadJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	next, err := h.TwoFactor.ResetWithRecoveryCode(r.Context(), a.Session, a.User, body.RecoveryCode)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodeResponse{RecoveryCode: next})
}

// HandleRecoveryCode handles GET /v1/recovery-code.
//
//	@Summary		Show recovery code
//	@Description	Returns the current recovery code.
//	@Tags			Two factor
//	@Produce		json
//	@Success		200	{object}	authsdk.RecoveryCodeResponse	"Recovery code"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or second factor required"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/recovery-code [get]
func (h *TwoFactorHandler) HandleRecoveryCode(w http.ResponseWriter, r *http.Request, a authState) {
	code, err := h.TwoFactor.RecoveryCode(r.Context(), a.Session, a.User)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodeResponse{RecoveryCode: code})
}

// HandleRegenerateRecoveryCode handles POST /v1/recovery-code.
//
//	@Summary		Regenerate recovery code
//	@Description	Replaces the recovery code.
//	@Tags			Two factor
//	@Produce		json
//	@Success		200	{object}	authsdk.RecoveryCodeResponse	"New recovery code"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Missing or invalid session"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Email not verified or second factor required"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/v1/recovery-code [post]
func (h *TwoFactorHandler) HandleRegenerateRecoveryCode(w http.ResponseWriter, r *http.Request, a authState) {
	code, err := h.TwoFactor.RegenerateRecoveryCode(r.Context(), a.Session, a.User)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RecoveryCodeResponse{RecoveryCode: code})
}
