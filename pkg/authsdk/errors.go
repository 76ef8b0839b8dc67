package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
)

// Error codes returned by the service.
const (
	ErrorCodeInvalidRequest         = "invalid_request"
	ErrorCodeUnauthorized           = "unauthorized"
	ErrorCodeServerError            = "server_error"
	ErrorCodeTooManyRequests        = "too_many_requests"
	ErrorCodeRateLimitExceeded      = "rate_limit_exceeded"
	ErrorCodeInvalidCredentials     = "invalid_credentials"
	ErrorCodeIncorrectCode          = "incorrect_code"
	ErrorCodeCodeExpired            = "code_expired"
	ErrorCodeInvalidEmail           = "invalid_email"
	ErrorCodeInvalidUsername        = "invalid_username"
	ErrorCodeInvalidPassword        = "invalid_password"
	ErrorCodeWeakPassword           = "weak_password"
	ErrorCodeEmailTaken             = "email_taken"
	ErrorCodeInvalidTOTPKey         = "invalid_totp_key"
	ErrorCodeInvalidResetSession    = "invalid_reset_session"
	ErrorCodeAlreadyVerified        = "already_verified"
	ErrorCodeRestartRequired        = "restart_required"
	ErrorCodeEmailNotVerified       = "email_not_verified"
	ErrorCodeTwoFactorRequired      = "two_factor_required"
	ErrorCodeTwoFactorNotRegistered = "two_factor_not_registered"
)

// APIError is a non-2xx response from the service. It is used by the server
// to write errors and by the client to report them.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description"`

	// RetryAfter is parsed from the Retry-After header on 429 responses.
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// WithRetryAfter returns a copy of e carrying d.
func (e *APIError) WithRetryAfter(d time.Duration) *APIError {
	c := *e
	c.RetryAfter = d
	return &c
}

func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required fields",
	}

	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "no valid session",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// IsCode reports whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Error
		apiErr.Description = errResp.ErrorDescription
	} else {
		apiErr.Code = ErrorCodeServerError
		apiErr.Description = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
