// Package auth holds the OpenAPI document served under /swagger/.
//
// Regenerate after changing handler annotations:
//
//go:generate swag init -d ../.. -g internal/auth/http/router.go -o . --outputTypes go --packageName auth
package auth

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/gatekeep"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/livez": {
            "get": {
                "description": "Always ok while the process serves requests.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "Liveness probe",
                "responses": {
                    "200": {
                        "description": "Process is up",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    }
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Pings the database and the notification backend.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "System"
                ],
                "summary": "Readiness probe",
                "responses": {
                    "200": {
                        "description": "Ready",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "A dependency is down",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    }
                }
            }
        },
        "/v1/2fa/reset": {
            "post": {
                "description": "Spends the recovery code to remove the authenticator. Returns a new recovery code.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Two factor"
                ],
                "summary": "Remove authenticator",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.RecoveryCodeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "New recovery code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RecoveryCodeResponse"
                        }
                    },
                    "400": {
                        "description": "Incorrect code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or no authenticator registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/2fa/totp/setup": {
            "get": {
                "description": "Generates a TOTP key and otpauth URL. Nothing is stored until setup completes.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Two factor"
                ],
                "summary": "New authenticator key",
                "responses": {
                    "200": {
                        "description": "Key and URL",
                        "schema": {
                            "$ref": "#/definitions/authsdk.TOTPEnrollment"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "description": "Stores the key once a code from it verifies. Returns a new recovery code.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Two factor"
                ],
                "summary": "Register authenticator",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.TOTPSetupRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RecoveryCodeResponse"
                        }
                    },
                    "400": {
                        "description": "Incorrect code or malformed key",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/2fa/totp/verify": {
            "post": {
                "description": "Marks the session as second factor verified.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Two factor"
                ],
                "summary": "Verify authenticator code",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.CodeRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Verified"
                    },
                    "400": {
                        "description": "Incorrect code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or no authenticator registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Already verified",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/email": {
            "post": {
                "description": "Sends a verification code to the new address. The address changes once the code is verified.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Email"
                ],
                "summary": "Change email",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.EmailChangeRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Code sent to the new address",
                        "schema": {
                            "$ref": "#/definitions/authsdk.VerificationSentResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid email",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Email already registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/email-verification/resend": {
            "post": {
                "description": "Issues and sends a new code for the pending address.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Email"
                ],
                "summary": "Resend verification code",
                "responses": {
                    "200": {
                        "description": "Code sent",
                        "schema": {
                            "$ref": "#/definitions/authsdk.VerificationSentResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Already verified",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/email-verification/verify": {
            "post": {
                "description": "Checks the emailed code against the request named by the email_verification cookie. An expired request is replaced and a new code is sent.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Email"
                ],
                "summary": "Verify email",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.CodeRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Email verified"
                    },
                    "400": {
                        "description": "Incorrect or expired code, or unknown request",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Email taken by another account",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/login": {
            "post": {
                "description": "Checks the password and issues a session cookie. Consecutive failures are throttled per account.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Accounts"
                ],
                "summary": "Sign in",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.LoginRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Signed in",
                        "schema": {
                            "$ref": "#/definitions/authsdk.AuthResponse"
                        }
                    },
                    "400": {
                        "description": "Malformed body",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Invalid credentials",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/logout": {
            "post": {
                "description": "Invalidates the calling session and clears the cookies.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Accounts"
                ],
                "summary": "Sign out",
                "responses": {
                    "204": {
                        "description": "Signed out"
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/me": {
            "get": {
                "description": "Returns the signed-in user, the session and the email verification state.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Accounts"
                ],
                "summary": "Current user",
                "responses": {
                    "200": {
                        "description": "Current user",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MeResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/password": {
            "post": {
                "description": "Replaces the password after checking the current one. Every other session is signed out.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Accounts"
                ],
                "summary": "Change password",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.ChangePasswordRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Password changed"
                    },
                    "400": {
                        "description": "Invalid input or breached password",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Wrong current password or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/password-reset": {
            "post": {
                "description": "Sends a reset code and sets the password_reset_session cookie. Unknown addresses get the same response.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Password reset"
                ],
                "summary": "Start password reset",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.PasswordResetRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Reset started"
                    },
                    "400": {
                        "description": "Invalid email",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/password-reset/update-password": {
            "post": {
                "description": "Finishes the reset. Every session of the user is signed out and a new one is issued.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Password reset"
                ],
                "summary": "Set new password",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.NewPasswordRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Signed in",
                        "schema": {
                            "$ref": "#/definitions/authsdk.AuthResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid or breached password",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Invalid reset session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/password-reset/verify-2fa/recovery-code": {
            "post": {
                "description": "Spends the recovery code to satisfy the second factor. The authenticator is removed and a new recovery code is returned.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Password reset"
                ],
                "summary": "Reset with recovery code",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.RecoveryCodeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "New recovery code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RecoveryCodeResponse"
                        }
                    },
                    "400": {
                        "description": "Incorrect code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Invalid reset session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or no authenticator registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Already verified",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/password-reset/verify-2fa/totp": {
            "post": {
                "description": "Checks an authenticator code for the reset.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Password reset"
                ],
                "summary": "Verify reset second factor",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.CodeRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Second factor verified"
                    },
                    "400": {
                        "description": "Incorrect code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Invalid reset session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or no authenticator registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Already verified",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/password-reset/verify-email": {
            "post": {
                "description": "Checks the emailed reset code.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Password reset"
                ],
                "summary": "Verify reset email",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.CodeRequest"
                        }
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Email verified"
                    },
                    "400": {
                        "description": "Incorrect code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Invalid reset session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Already verified or restart required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/recovery-code": {
            "get": {
                "description": "Returns the current recovery code.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Two factor"
                ],
                "summary": "Show recovery code",
                "responses": {
                    "200": {
                        "description": "Recovery code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RecoveryCodeResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            },
            "post": {
                "description": "Replaces the recovery code.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Two factor"
                ],
                "summary": "Regenerate recovery code",
                "responses": {
                    "200": {
                        "description": "New recovery code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RecoveryCodeResponse"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "403": {
                        "description": "Email not verified or second factor required",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/v1/signup": {
            "post": {
                "description": "Creates the user, signs them in and sends the first email verification code. Sets the session and email_verification cookies.",
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Accounts"
                ],
                "summary": "Create an account",
                "consumes": [
                    "application/json"
                ],
                "parameters": [
                    {
                        "description": "Request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.SignupRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Signed in",
                        "schema": {
                            "$ref": "#/definitions/authsdk.AuthResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid input or breached password",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Email already registered",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Rate limited, see Retry-After",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "Internal server error",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "authsdk.SignupRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "username": {
                    "type": "string"
                },
                "password": {
                    "type": "string"
                }
            }
        },
        "authsdk.LoginRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "password": {
                    "type": "string"
                }
            }
        },
        "authsdk.ChangePasswordRequest": {
            "type": "object",
            "properties": {
                "current_password": {
                    "type": "string"
                },
                "new_password": {
                    "type": "string"
                }
            }
        },
        "authsdk.User": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "username": {
                    "type": "string"
                },
                "email_verified": {
                    "type": "boolean"
                },
                "registered_totp": {
                    "type": "boolean"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "authsdk.SessionInfo": {
            "type": "object",
            "properties": {
                "expires_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "two_factor_verified": {
                    "type": "boolean"
                }
            }
        },
        "authsdk.EmailVerificationState": {
            "type": "object",
            "properties": {
                "state": {
                    "type": "string",
                    "enum": [
                        "unverified",
                        "pending",
                        "verified"
                    ]
                },
                "email": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "authsdk.MeResponse": {
            "type": "object",
            "properties": {
                "user": {
                    "$ref": "#/definitions/authsdk.User"
                },
                "session": {
                    "$ref": "#/definitions/authsdk.SessionInfo"
                },
                "email_verification": {
                    "$ref": "#/definitions/authsdk.EmailVerificationState"
                }
            }
        },
        "authsdk.AuthResponse": {
            "type": "object",
            "properties": {
                "user": {
                    "$ref": "#/definitions/authsdk.User"
                },
                "session": {
                    "$ref": "#/definitions/authsdk.SessionInfo"
                },
                "two_factor_required": {
                    "type": "boolean"
                }
            }
        },
        "authsdk.CodeRequest": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                }
            }
        },
        "authsdk.EmailChangeRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                }
            }
        },
        "authsdk.VerificationSentResponse": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "expires_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "authsdk.PasswordResetRequest": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                }
            }
        },
        "authsdk.NewPasswordRequest": {
            "type": "object",
            "properties": {
                "password": {
                    "type": "string"
                }
            }
        },
        "authsdk.TOTPEnrollment": {
            "type": "object",
            "properties": {
                "encoded_key": {
                    "type": "string"
                },
                "url": {
                    "type": "string"
                }
            }
        },
        "authsdk.TOTPSetupRequest": {
            "type": "object",
            "properties": {
                "encoded_key": {
                    "type": "string"
                },
                "code": {
                    "type": "string"
                }
            }
        },
        "authsdk.RecoveryCodeRequest": {
            "type": "object",
            "properties": {
                "recovery_code": {
                    "type": "string"
                }
            }
        },
        "authsdk.RecoveryCodeResponse": {
            "type": "object",
            "properties": {
                "recovery_code": {
                    "type": "string"
                }
            }
        },
        "authsdk.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {
                    "type": "string"
                },
                "notifier": {
                    "type": "string"
                }
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "uptime": {
                    "type": "string"
                },
                "version": {
                    "type": "string"
                },
                "checks": {
                    "$ref": "#/definitions/authsdk.HealthChecks"
                }
            }
        },
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "error_description": {
                    "type": "string"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Gatekeep Authentication Service API",
	Description:      "Cookie based sessions with email verification, password reset and TOTP second factor.\n\nThe session cookie is set by signup, login and password reset. Reset steps use the password_reset_session cookie.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
