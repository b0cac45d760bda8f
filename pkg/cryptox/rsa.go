package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// GenerateRSAKey generates a new RSA private key with the specified bit size.
// Common bit sizes are 2048, 3072, or 4096 bits. The public exponent is the
// standard 65537.
func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits < 2048 {
		return nil, fmt.Errorf("cryptox: RSA key size must be at least 2048 bits")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate RSA key: %w", err)
	}

	return privateKey, nil
}

// EncodePrivateKeyPEM encodes an RSA private key as PKCS1 PEM.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// EncodePublicKeyPEM encodes the public half of an RSA key as a PKIX
// "PUBLIC KEY" PEM block.
func EncodePublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal public key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	}), nil
}

// EncodePublicKeyDER encodes the public half of an RSA key as raw PKIX DER
// bytes, the binary twin of EncodePublicKeyPEM.
func EncodePublicKeyDER(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal public key: %w", err)
	}
	return der, nil
}

// ParsePrivateKeyPEM parses a PEM-encoded RSA private key. Both PKCS1 and
// PKCS8 encodings are accepted.
func ParsePrivateKeyPEM(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("cryptox: no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse PKCS1 key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse PKCS8 key: %w", err)
		}
		key, ok := keyAny.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("cryptox: PKCS8 key is not RSA")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("cryptox: unexpected PEM block type %q", block.Type)
	}
}

// ParsePublicKeyPEM parses a PEM-encoded RSA public key (PKIX or PKCS1).
func ParsePublicKeyPEM(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("cryptox: no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse PKIX public key: %w", err)
		}
		key, ok := keyAny.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("cryptox: public key is not RSA")
		}
		return key, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse PKCS1 public key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("cryptox: unexpected PEM block type %q", block.Type)
	}
}
