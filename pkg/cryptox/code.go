package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// CodeWidthDefault is the standard width for one-time codes (6 digits).
const CodeWidthDefault = 6

// GenerateCode creates a cryptographically secure numeric one-time code of
// the given width. Leading zeros are preserved, so every code is exactly
// width characters long.
func GenerateCode(width int) (string, error) {
	if width <= 0 {
		return "", fmt.Errorf("cryptox: code width must be positive, got %d", width)
	}

	var sb strings.Builder
	sb.Grow(width)
	for range width {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("cryptox: failed to generate code digit: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// FingerprintCode returns a deterministic SHA-256 fingerprint of a one-time
// code. Only the fingerprint is ever stored; the plaintext code is shown to
// the caller once at issuance and is not recoverable from this value.
//
// The fingerprint is returned as a base64url-encoded string (43 chars).
func FingerprintCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// CodeEqual compares a submitted code against a stored fingerprint in
// constant time. The submitted code is fingerprinted first so both sides of
// the comparison are fixed-length digests.
func CodeEqual(storedFingerprint, submittedCode string) bool {
	submitted := FingerprintCode(submittedCode)
	return subtle.ConstantTimeCompare([]byte(storedFingerprint), []byte(submitted)) == 1
}
