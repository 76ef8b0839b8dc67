package authsdk

import (
	"context"
	"net/http"
)

// VerifyEmail submits the code of the pending verification request. When the
// code has expired a new one is sent and the error code is code_expired.
func (c *Client) VerifyEmail(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodPost, "/v1/email-verification/verify", CodeRequest{Code: code}, nil)
}

func (c *Client) ResendEmailVerification(ctx context.Context) (*VerificationSentResponse, error) {
	var out VerificationSentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/email-verification/resend", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangeEmail sends a code to the new address. The change applies once the
// code is verified with VerifyEmail.
func (c *Client) ChangeEmail(ctx context.Context, email string) (*VerificationSentResponse, error) {
	var out VerificationSentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/email", EmailChangeRequest{Email: email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
