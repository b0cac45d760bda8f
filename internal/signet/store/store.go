package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, memory)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable; the factor verification logic is deliberately decoupled from the
// backend choice so it can run against the in-memory driver in tests.
type Store interface {
	FactorSessions() FactorSessions
	TOTPSecrets() TOTPSecrets
	SignatureRecords() SignatureRecords

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is still reachable.
	Ping(ctx context.Context) error
}

// FactorSessions holds the single-use verification records. The Mark* and
// Consume* operations are the atomic primitives the whole design leans on: a
// naive read-check-write sequence would reintroduce the double-spend race
// these exist to prevent.
type FactorSessions interface {
	// CreateFactorSession stores a new session (id is provided by the app via ULID).
	CreateFactorSession(ctx context.Context, s domain.FactorSession) error

	// GetFactorSession returns a session by id.
	GetFactorSession(ctx context.Context, id string) (domain.FactorSession, error)

	// MarkVerified sets verified_at to at, but only if it is still unset.
	// Returns true when this call won the transition; false when some other
	// call already had. Exactly one concurrent caller observes true.
	MarkVerified(ctx context.Context, id string, at time.Time) (bool, error)

	// IncrementAttempts bumps the failed-attempt counter and returns the new
	// count.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	// ConsumeForSigning sets consumed_at to at, but only if it is still
	// unset. Returns true when this call spent the session. Used to enforce
	// one-signing-per-verified-factor.
	ConsumeForSigning(ctx context.Context, id string, at time.Time) (bool, error)

	// DeleteExpiredFactorSessions removes sessions past their expiry
	// (housekeeping; reads always apply lazy expiry regardless).
	DeleteExpiredFactorSessions(ctx context.Context) error
}

type TOTPSecrets interface {
	// UpsertTOTPSecret stores or replaces a user's unconfirmed secret.
	// Replacing a confirmed secret is refused with ErrAlreadyExists.
	UpsertTOTPSecret(ctx context.Context, s domain.TOTPSecret) error

	// GetTOTPSecret returns the secret for a user.
	GetTOTPSecret(ctx context.Context, userID string) (domain.TOTPSecret, error)

	// ConfirmTOTPSecret marks the secret as confirmed at the given time.
	ConfirmTOTPSecret(ctx context.Context, userID string, at time.Time) error

	// DeleteTOTPSecret removes a user's secret.
	DeleteTOTPSecret(ctx context.Context, userID string) error
}

type SignatureRecords interface {
	// CreateSignatureRecord persists a new record. Signature bytes and digest
	// algorithm are immutable after this point.
	CreateSignatureRecord(ctx context.Context, r domain.SignatureRecord) error

	// GetSignatureRecord fetches a record by id.
	GetSignatureRecord(ctx context.Context, id string) (domain.SignatureRecord, error)

	// ListSignatureRecords returns records for an artifact, newest first.
	ListSignatureRecords(ctx context.Context, artifactRef string) ([]domain.SignatureRecord, error)

	// UpdateSignatureStatus transitions only the verification status. Called
	// exclusively from the explicit re-verification operation.
	UpdateSignatureStatus(ctx context.Context, id string, status domain.SignatureStatus) error
}
