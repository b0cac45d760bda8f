package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/store"
	"github.com/aussiebroadwan/signet/pkg/idx"
	"github.com/aussiebroadwan/signet/pkg/keyvault"
)

var (
	ErrFactorNotVerified   = errors.New("factor session is not verified")
	ErrReplayedFactor      = errors.New("factor session already consumed by a signing attempt")
	ErrArtifactUnavailable = errors.New("artifact reference or digest unavailable")
	ErrRecordNotFound      = errors.New("signature record not found")
)

// FlowState names the stages of a signing attempt. Signed and Failed are
// terminal; an unverified factor keeps the flow in AwaitingFactor with no
// automatic retry.
type FlowState string

const (
	StateSelected       FlowState = "selected"
	StateAwaitingFactor FlowState = "awaiting_factor"
	StateFactorVerified FlowState = "factor_verified"
	StateSigning        FlowState = "signing"
	StateSigned         FlowState = "signed"
	StateFailed         FlowState = "failed"
)

// SignRequest carries everything one signing attempt needs. The digest is
// computed externally by the caller with the declared algorithm; that binding
// is a trust boundary this service does not re-check.
type SignRequest struct {
	ArtifactRef     string
	Digest          []byte
	DigestAlgorithm string // defaults to the service default (sha256)
	KeyHandle       string
	SessionID       string // the factor session authorizing this signing
	Signer          domain.SignerInfo
}

// SigningService is the orchestrator gating signatures behind a verified,
// unconsumed factor session. One verified factor authorizes exactly one
// signing.
type SigningService struct {
	Store            store.Store
	Factor           *FactorService
	Vault            *keyvault.Vault
	Logger           *slog.Logger
	DefaultAlgorithm string // defaults to "sha256"

	// Now is the clock, overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *SigningService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SigningService) algorithm(requested string) string {
	if requested != "" {
		return requested
	}
	if s.DefaultAlgorithm != "" {
		return s.DefaultAlgorithm
	}
	return "sha256"
}

// Sign runs the full flow: Selected -> AwaitingFactor -> FactorVerified ->
// Signing -> Signed, persisting and returning the immutable Signature Record.
// Any failure terminates the attempt with its reason; crypto failures are
// fatal for the attempt and never silently retried, since retrying against
// unreadable key material will not self-heal.
func (s *SigningService) Sign(ctx context.Context, req SignRequest) (domain.SignatureRecord, error) {
	log := s.logger().With("artifact", req.ArtifactRef, "session_id", req.SessionID)
	state := StateSelected

	// Selected: artifact and signer metadata must be in hand.
	if req.ArtifactRef == "" || len(req.Digest) == 0 {
		return s.fail(log, state, ErrArtifactUnavailable)
	}
	algorithm := s.algorithm(req.DigestAlgorithm)

	// AwaitingFactor: the gate. Checked once per attempt.
	state = StateAwaitingFactor
	verified, err := s.Factor.IsVerified(ctx, req.SessionID)
	if err != nil {
		return s.fail(log, state, fmt.Errorf("failed to check factor session: %w", err))
	}
	if !verified {
		// Not a terminal failure: the flow stays AwaitingFactor and the
		// caller may verify the factor and submit again.
		return domain.SignatureRecord{}, ErrFactorNotVerified
	}

	// FactorVerified: atomically spend the session so it can never authorize
	// a second signing.
	state = StateFactorVerified
	spent, err := s.Store.FactorSessions().ConsumeForSigning(ctx, req.SessionID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SignatureRecord{}, ErrFactorNotVerified
		}
		return s.fail(log, state, fmt.Errorf("failed to consume factor session: %w", err))
	}
	if !spent {
		return s.fail(log, state, ErrReplayedFactor)
	}

	// Signing: compute the signature over the externally supplied digest.
	state = StateSigning
	signature, err := s.Vault.SignDigest(ctx, req.Digest, algorithm, req.KeyHandle)
	if err != nil {
		// Operator-actionable detail (key path, algorithm) goes to the log;
		// the error itself carries it for upstream mapping to a generic
		// user-facing message.
		log.Error("signing failed", "key_handle", req.KeyHandle, "algorithm", algorithm, "error", err)
		return s.fail(log, state, err)
	}

	record := domain.SignatureRecord{
		ID:              idx.New().String(),
		ArtifactRef:     req.ArtifactRef,
		Signature:       signature,
		DigestAlgorithm: algorithm,
		KeyHandle:       req.KeyHandle,
		Signer:          req.Signer,
		Status:          domain.SignatureStatusPending,
		FactorSessionID: req.SessionID,
		CreatedAt:       s.now(),
	}
	if err := s.Store.SignatureRecords().CreateSignatureRecord(ctx, record); err != nil {
		return s.fail(log, state, fmt.Errorf("failed to persist signature record: %w", err))
	}

	log.Info("artifact signed", "record_id", record.ID, "algorithm", algorithm, "state", StateSigned)
	return record, nil
}

// ReverifyRecord re-checks a record's signature bytes against the digest and
// the public key of the signing key pair, and transitions the verification
// status accordingly. This is the only path that ever changes a record's
// status.
func (s *SigningService) ReverifyRecord(ctx context.Context, id string, digest []byte) (domain.SignatureRecord, error) {
	record, err := s.Store.SignatureRecords().GetSignatureRecord(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SignatureRecord{}, ErrRecordNotFound
		}
		return domain.SignatureRecord{}, fmt.Errorf("failed to load signature record: %w", err)
	}

	status := domain.SignatureStatusInvalid
	pubPEM, err := s.Vault.PublicKeyPEM(record.KeyHandle)
	if err != nil {
		// Key material unavailable: the record's validity is unknowable, not
		// merely invalid.
		s.logger().Error("reverify could not load key", "record_id", id, "key_handle", record.KeyHandle, "error", err)
		status = domain.SignatureStatusError
	} else if s.Vault.VerifySignature(digest, record.DigestAlgorithm, record.Signature, pubPEM) {
		status = domain.SignatureStatusValid
	}

	if err := s.Store.SignatureRecords().UpdateSignatureStatus(ctx, id, status); err != nil {
		return domain.SignatureRecord{}, fmt.Errorf("failed to update signature status: %w", err)
	}

	record.Status = status
	return record, nil
}

// GetRecord fetches a signature record by id.
func (s *SigningService) GetRecord(ctx context.Context, id string) (domain.SignatureRecord, error) {
	record, err := s.Store.SignatureRecords().GetSignatureRecord(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SignatureRecord{}, ErrRecordNotFound
		}
		return domain.SignatureRecord{}, fmt.Errorf("failed to load signature record: %w", err)
	}
	return record, nil
}

// ListRecords returns the records for an artifact, newest first.
func (s *SigningService) ListRecords(ctx context.Context, artifactRef string) ([]domain.SignatureRecord, error) {
	return s.Store.SignatureRecords().ListSignatureRecords(ctx, artifactRef)
}

func (s *SigningService) fail(log *slog.Logger, state FlowState, reason error) (domain.SignatureRecord, error) {
	log.Warn("signing attempt failed", "state", state, "reason", reason)
	return domain.SignatureRecord{}, reason
}

func (s *SigningService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
