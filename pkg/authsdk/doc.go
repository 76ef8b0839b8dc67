/*
Package authsdk is a Go client for the gatekeep authentication service.

The service keeps all credentials in HttpOnly cookies, so a Client wraps an
http.Client with a cookie jar and behaves like a browser tab: signing up or
logging in stores the session cookie and later calls send it back.

	client, err := authsdk.NewClient("https://auth.example.com")

	// Sign up; the verification code arrives out of band.
	user, err := client.Signup(ctx, authsdk.SignupRequest{
		Email:    "ada@example.com",
		Username: "ada_l",
		Password: "correct horse battery staple",
	})
	err = client.VerifyEmail(ctx, code)

	me, err := client.Me(ctx)

# Errors

Every non-2xx response is returned as an *APIError carrying the HTTP status
and the service's error code:

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeTooManyRequests {
		time.Sleep(apiErr.RetryAfter)
	}

# Password reset

A reset keeps its own cookie alongside the session:

	err = client.StartPasswordReset(ctx, "ada@example.com")
	err = client.VerifyPasswordResetEmail(ctx, code)
	err = client.VerifyPasswordResetTOTP(ctx, totp)        // when an authenticator is registered
	err = client.CompletePasswordReset(ctx, "new password") // signs in
*/
package authsdk
