package domain

import "time"

// FactorMethod identifies how a one-time code reaches the user.
type FactorMethod string

const (
	// FactorEmail delivers a stored single-use code out of band (email).
	FactorEmail FactorMethod = "email"
	// FactorTOTP derives validity from a pre-shared secret and the clock;
	// no per-code state is stored.
	FactorTOTP FactorMethod = "totp"
)

// Valid reports whether m is a known factor method.
func (m FactorMethod) Valid() bool {
	return m == FactorEmail || m == FactorTOTP
}

// FactorSession is the ephemeral, single-use verification record gating a
// signing operation. The plaintext code is never stored; only its
// deterministic one-way fingerprint is.
type FactorSession struct {
	ID              string       // ULID
	UserID          string       // Owning user
	Method          FactorMethod // email or totp
	CodeFingerprint string       // SHA-256 fingerprint of the code, base64url
	Attempts        int          // Failed verification attempts (capped to stop brute force)
	CreatedAt       time.Time
	ExpiresAt       time.Time  // Fixed at creation, immutable
	VerifiedAt      *time.Time // Set exactly once by a successful verify, never reset
	ConsumedAt      *time.Time // Set once when a signing attempt spends the session
}

// IsExpired reports whether the session's TTL window has passed.
func (s *FactorSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsVerified reports whether the session was verified AND is still inside its
// original TTL window. Verification never grants a capability beyond the
// window fixed at creation, even when the verify happened early within it.
func (s *FactorSession) IsVerified(now time.Time) bool {
	return s.VerifiedAt != nil && !s.IsExpired(now)
}

// SessionView is the read-only projection of a factor session returned by
// lookups. It carries no secret material.
type SessionView struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Method     FactorMethod `json:"method"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	VerifiedAt *time.Time   `json:"verified_at,omitempty"`
	ConsumedAt *time.Time   `json:"consumed_at,omitempty"`
}

// View projects the session into its public shape.
func (s *FactorSession) View() SessionView {
	return SessionView{
		ID:         s.ID,
		UserID:     s.UserID,
		Method:     s.Method,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
		VerifiedAt: s.VerifiedAt,
		ConsumedAt: s.ConsumedAt,
	}
}

// VerifiedSession is the summary returned by a successful verification.
type VerifiedSession struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Method     FactorMethod `json:"method"`
	VerifiedAt time.Time    `json:"verified_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

// IssuedSession is returned once at creation and is the only time the
// plaintext code is visible.
type IssuedSession struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
