package cryptox

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedDigest reports a digest algorithm outside the supported set.
var ErrUnsupportedDigest = errors.New("cryptox: unsupported digest algorithm")

// DigestHash maps a digest algorithm name to its crypto.Hash. SHA-256 is the
// default everywhere; SHA-1 is accepted for legacy interoperability only.
func DigestHash(algorithm string) (crypto.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "sha256", "sha-256":
		return crypto.SHA256, nil
	case "sha1", "sha-1":
		return crypto.SHA1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDigest, algorithm)
	}
}

// SignDigest signs an externally computed digest with RSA PKCS#1 v1.5.
// The caller is responsible for having produced digest with the named
// algorithm over the target artifact; this function only checks that the
// digest length matches the algorithm.
func SignDigest(key *rsa.PrivateKey, algorithm string, digest []byte) ([]byte, error) {
	hash, err := DigestHash(algorithm)
	if err != nil {
		return nil, err
	}
	if len(digest) != hash.Size() {
		return nil, fmt.Errorf("cryptox: digest length %d does not match %s (want %d)",
			len(digest), algorithm, hash.Size())
	}

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, hash, digest)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to sign digest: %w", err)
	}
	return sig, nil
}

// VerifyDigest reports whether signature is a valid PKCS#1 v1.5 signature
// over digest. Malformed input yields false, never a panic; "simply did not
// verify" is a negative result, not an error.
func VerifyDigest(key *rsa.PublicKey, algorithm string, digest, signature []byte) bool {
	if key == nil {
		return false
	}

	hash, err := DigestHash(algorithm)
	if err != nil {
		return false
	}
	if len(digest) != hash.Size() {
		return false
	}

	return rsa.VerifyPKCS1v15(key, hash, digest, signature) == nil
}
