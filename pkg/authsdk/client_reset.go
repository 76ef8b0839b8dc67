package authsdk

import (
	"context"
	"net/http"
)

// StartPasswordReset always succeeds for a well formed address so accounts
// cannot be enumerated.
func (c *Client) StartPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/v1/password-reset", PasswordResetRequest{Email: email}, nil)
}

func (c *Client) VerifyPasswordResetEmail(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/password-reset/verify-email", CodeRequest{Code: code}, nil)
}

func (c *Client) VerifyPasswordResetTOTP(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/password-reset/verify-2fa/totp", CodeRequest{Code: code}, nil)
}

// VerifyPasswordResetRecoveryCode removes the authenticator and returns the
// replacement recovery code.
func (c *Client) VerifyPasswordResetRecoveryCode(ctx context.Context, recoveryCode string) (string, error) {
	var out RecoveryCodeResponse
	err := c.do(ctx, http.MethodPost, "/v1/password-reset/verify-2fa/recovery-code",
		RecoveryCodeRequest{RecoveryCode: recoveryCode}, &out)
	return out.RecoveryCode, err
}

// CompletePasswordReset sets the new password, signs out every session and
// signs this client in.
func (c *Client) CompletePasswordReset(ctx context.Context, password string) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/v1/password-reset/update-password", NewPasswordRequest{Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
