package domain

// TOTPEnrollment is handed to the client when setting up an authenticator.
type TOTPEnrollment struct {
	EncodedKey string // base64 of the 20 raw key bytes, echoed back on setup
	URL        string // otpauth:// provisioning URL
}
