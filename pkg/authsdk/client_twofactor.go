package authsdk

import (
	"context"
	"net/http"
)

func (c *Client) NewTOTPEnrollment(ctx context.Context) (*TOTPEnrollment, error) {
	var out TOTPEnrollment
	if err := c.do(ctx, http.MethodGet, "/v1/2fa/totp/setup", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetupTOTP registers the authenticator and returns the new recovery code.
func (c *Client) SetupTOTP(ctx context.Context, encodedKey, code string) (string, error) {
	var out RecoveryCodeResponse
	err := c.do(ctx, http.MethodPost, "/v1/2fa/totp/setup", TOTPSetupRequest{EncodedKey: encodedKey, Code: code}, &out)
	return out.RecoveryCode, err
}

func (c *Client) VerifyTOTP(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/2fa/totp/verify", CodeRequest{Code: code}, nil)
}

// ResetTwoFactor removes the authenticator using the recovery code and
// returns the replacement code.
func (c *Client) ResetTwoFactor(ctx context.Context, recoveryCode string) (string, error) {
	var out RecoveryCodeResponse
	err := c.do(ctx, http.MethodPost, "/v1/2fa/reset", RecoveryCodeRequest{RecoveryCode: recoveryCode}, &out)
	return out.RecoveryCode, err
}

func (c *Client) RecoveryCode(ctx context.Context) (string, error) {
	var out RecoveryCodeResponse
	err := c.do(ctx, http.MethodGet, "/v1/recovery-code", nil, &out)
	return out.RecoveryCode, err
}

func (c *Client) RegenerateRecoveryCode(ctx context.Context) (string, error) {
	var out RecoveryCodeResponse
	err := c.do(ctx, http.MethodPost, "/v1/recovery-code", nil, &out)
	return out.RecoveryCode, err
}
