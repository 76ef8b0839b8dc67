package authsdk

import "time"

// ============================================================================
// Accounts
// ============================================================================

type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// User is the public view of an account.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	EmailVerified  bool      `json:"email_verified"`
	RegisteredTOTP bool      `json:"registered_totp"`
	CreatedAt      time.Time `json:"created_at"`
}

// SessionInfo describes the calling session.
type SessionInfo struct {
	ExpiresAt         time.Time `json:"expires_at"`
	TwoFactorVerified bool      `json:"two_factor_verified"`
}

// EmailVerificationState is "unverified", "pending" or "verified". Email is
// the pending or verified address.
type EmailVerificationState struct {
	State     string     `json:"state"`
	Email     string     `json:"email,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type MeResponse struct {
	User              User                   `json:"user"`
	Session           SessionInfo            `json:"session"`
	EmailVerification EmailVerificationState `json:"email_verification"`
}

// AuthResponse is returned by every call that signs the client in.
type AuthResponse struct {
	User    User        `json:"user"`
	Session SessionInfo `json:"session"`
	// TwoFactorRequired is set when the user must still verify an
	// authenticator code with this session.
	TwoFactorRequired bool `json:"two_factor_required"`
}

// ============================================================================
// Email verification
// ============================================================================

type CodeRequest struct {
	Code string `json:"code"`
}

type EmailChangeRequest struct {
	Email string `json:"email"`
}

// VerificationSentResponse reports where a fresh code was sent.
type VerificationSentResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ============================================================================
// Password reset
// ============================================================================

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type NewPasswordRequest struct {
	Password string `json:"password"`
}

// ============================================================================
// Two factor
// ============================================================================

// TOTPEnrollment is a fresh authenticator key. EncodedKey is echoed back with
// the first code to complete setup.
type TOTPEnrollment struct {
	EncodedKey string `json:"encoded_key"`
	URL        string `json:"url"`
}

type TOTPSetupRequest struct {
	EncodedKey string `json:"encoded_key"`
	Code       string `json:"code"`
}

type RecoveryCodeRequest struct {
	RecoveryCode string `json:"recovery_code"`
}

type RecoveryCodeResponse struct {
	RecoveryCode string `json:"recovery_code"`
}

// ============================================================================
// Health
// ============================================================================

type HealthChecks struct {
	Database string `json:"database"`
	Notifier string `json:"notifier,omitempty"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
