package domain

import "time"

// TOTPSecret is a user's pre-shared authenticator secret. Created by
// enrollment and confirmed with a first valid code before it can gate
// signing.
type TOTPSecret struct {
	UserID      string
	Secret      string // Base32 encoded secret
	CreatedAt   time.Time
	ConfirmedAt *time.Time // nil until the user proves possession once
}

// Confirmed reports whether enrollment finished.
func (t *TOTPSecret) Confirmed() bool {
	return t.ConfirmedAt != nil
}

// TOTPEnrollment is returned from enrollment so the user can load the secret
// into an authenticator app.
type TOTPEnrollment struct {
	Secret  string `json:"secret"`  // Base32 encoded secret for TOTP
	URL     string `json:"url"`     // otpauth:// URL for QR code generation
	Issuer  string `json:"issuer"`  // Issuer name (e.g., service name)
	Account string `json:"account"` // Account name (e.g., user email)
}
