package domain

import (
	"encoding/base64"
	"time"
)

// SignatureStatus is the verification state of a Signature Record. It is the
// only field that may change after creation, and only through an explicit
// re-verification, never implicitly.
type SignatureStatus string

const (
	SignatureStatusPending SignatureStatus = "pending"
	SignatureStatusValid   SignatureStatus = "valid"
	SignatureStatusInvalid SignatureStatus = "invalid"
	SignatureStatusError   SignatureStatus = "error"
)

// SignerInfo is the free-form metadata the signer declares for a signature.
type SignerInfo struct {
	Name       string    `json:"signer_name"`
	Reason     string    `json:"reason,omitempty"`
	Location   string    `json:"location,omitempty"`
	DeclaredAt time.Time `json:"sign_datetime"`
}

// SignatureRecord is the persisted, immutable result of a successful signing
// operation. Signature bytes and digest algorithm never change after
// creation.
type SignatureRecord struct {
	ID              string          // ULID
	ArtifactRef     string          // Reference to the signed artifact
	Signature       []byte          // The digest signed with the private key
	DigestAlgorithm string          // Algorithm the caller used to produce the digest
	KeyHandle       string          // Opaque reference to the signing key, never the material
	Signer          SignerInfo      // Declared signer metadata
	Status          SignatureStatus // pending | valid | invalid | error
	FactorSessionID string          // The factor session this signing consumed
	CreatedAt       time.Time
}

// SignatureB64 returns the signature bytes in the base64 form used on the
// wire.
func (r *SignatureRecord) SignatureB64() string {
	return base64.StdEncoding.EncodeToString(r.Signature)
}
