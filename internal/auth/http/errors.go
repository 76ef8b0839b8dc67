package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/gatekeep/internal/auth/service"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// serviceErrors maps service sentinels to responses. The sentinel text is the
// error code.
var serviceErrors = []struct {
	err         error
	status      int
	description string
}{
	{service.ErrInvalidSession, http.StatusUnauthorized, "no valid session"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid email or password"},
	{service.ErrIncorrectCode, http.StatusBadRequest, "incorrect code"},
	{service.ErrCodeExpired, http.StatusBadRequest, "the code expired; a new code was sent"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid email address"},
	{service.ErrInvalidUsername, http.StatusBadRequest, "username must be 4 to 31 characters"},
	{service.ErrInvalidPassword, http.StatusBadRequest, "password must be 8 to 255 characters"},
	{service.ErrWeakPassword, http.StatusBadRequest, "password appears in a known data breach"},
	{service.ErrEmailTaken, http.StatusConflict, "email is already used"},
	{service.ErrInvalidTOTPKey, http.StatusBadRequest, "invalid authenticator key"},
	{service.ErrInvalidRequest, http.StatusBadRequest, "no pending verification request"},
	{service.ErrInvalidResetSession, http.StatusUnauthorized, "no valid password reset session"},
	{service.ErrAlreadyVerified, http.StatusConflict, "already verified"},
	{service.ErrRestartRequired, http.StatusConflict, "the email address changed; start the reset again"},
	{service.ErrEmailNotVerified, http.StatusForbidden, "email is not verified"},
	{service.ErrTwoFactorRequired, http.StatusForbidden, "second factor verification required"},
	{service.ErrTwoFactorNotRegistered, http.StatusForbidden, "no authenticator registered"},
}

// writeError writes err as an API error. Unknown errors are logged and
// reported as server_error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *service.RateLimitError
	if errors.As(err, &rl) {
		authsdk.NewAPIError(http.StatusTooManyRequests, authsdk.ErrorCodeTooManyRequests, "too many requests").
			WithRetryAfter(rl.RetryAfter).
			WriteError(w)
		return
	}

	if errors.Is(err, httpx.ErrBadBody) {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			authsdk.NewAPIError(e.status, e.err.Error(), e.description).WriteError(w)
			return
		}
	}

	slogx.FromContext(r.Context()).Error("request failed", "error", err)
	authsdk.ErrServerError.WriteError(w)
}
