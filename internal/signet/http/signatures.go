package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/service"
	"github.com/aussiebroadwan/signet/pkg/cryptox"
	"github.com/aussiebroadwan/signet/pkg/httpx"
	"github.com/aussiebroadwan/signet/pkg/keyvault"
	"github.com/aussiebroadwan/signet/pkg/slogx"
)

// SignaturesHandler exposes the signing flow and signature records.
type SignaturesHandler struct {
	SigningService *service.SigningService
}

type signRequest struct {
	ArtifactRef     string `json:"artifact_ref"`
	DigestBase64    string `json:"digest_base64"`
	DigestAlgorithm string `json:"digest_algorithm,omitempty"`
	KeyHandle       string `json:"key_handle"`
	SessionID       string `json:"session_id"`

	SignerName string    `json:"signer_name"`
	Reason     string    `json:"reason,omitempty"`
	Location   string    `json:"location,omitempty"`
	DeclaredAt time.Time `json:"sign_datetime,omitempty"`
}

type signatureRecordResponse struct {
	ID              string            `json:"id"`
	ArtifactRef     string            `json:"artifact_ref"`
	SignatureBase64 string            `json:"signature_base64"`
	DigestAlgorithm string            `json:"digest_algorithm"`
	Signer          domain.SignerInfo `json:"signer"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

func recordResponse(rec domain.SignatureRecord) signatureRecordResponse {
	return signatureRecordResponse{
		ID:              rec.ID,
		ArtifactRef:     rec.ArtifactRef,
		SignatureBase64: rec.SignatureB64(),
		DigestAlgorithm: rec.DigestAlgorithm,
		Signer:          rec.Signer,
		Status:          string(rec.Status),
		CreatedAt:       rec.CreatedAt,
	}
}

// HandleSign handles POST /v1/signatures.
func (h *SignaturesHandler) HandleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	digest, err := base64.StdEncoding.DecodeString(req.DigestBase64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "digest_base64 is not valid base64")
		return
	}

	declaredAt := req.DeclaredAt
	if declaredAt.IsZero() {
		declaredAt = time.Now().UTC()
	}

	record, err := h.SigningService.Sign(ctx, service.SignRequest{
		ArtifactRef:     req.ArtifactRef,
		Digest:          digest,
		DigestAlgorithm: req.DigestAlgorithm,
		KeyHandle:       req.KeyHandle,
		SessionID:       req.SessionID,
		Signer: domain.SignerInfo{
			Name:       req.SignerName,
			Reason:     req.Reason,
			Location:   req.Location,
			DeclaredAt: declaredAt,
		},
	})
	if err != nil {
		writeSigningError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, recordResponse(record))
}

// HandleList handles GET /v1/signatures?artifact_ref=..., newest first.
func (h *SignaturesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	artifactRef := r.URL.Query().Get("artifact_ref")
	if artifactRef == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "artifact_ref query parameter is required")
		return
	}

	records, err := h.SigningService.ListRecords(ctx, artifactRef)
	if err != nil {
		log.Error("failed to list signature records", "artifact_ref", artifactRef, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "could not list records")
		return
	}

	out := make([]signatureRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordResponse(rec))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /v1/signatures/{id}.
func (h *SignaturesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	record, err := h.SigningService.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "signature record not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "could not load record")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, recordResponse(record))
}

type reverifyRequest struct {
	DigestBase64 string `json:"digest_base64"`
}

// HandleReverify handles POST /v1/signatures/{id}/reverify, the only
// operation that may change a record's verification status.
func (h *SignaturesHandler) HandleReverify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	id := r.PathValue("id")

	var req reverifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	digest, err := base64.StdEncoding.DecodeString(req.DigestBase64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "digest_base64 is not valid base64")
		return
	}

	record, err := h.SigningService.ReverifyRecord(ctx, id, digest)
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "signature record not found")
			return
		}
		log.Error("reverify failed", "record_id", id, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "could not reverify record")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, recordResponse(record))
}

// writeSigningError maps orchestration and crypto errors. Crypto failures
// carry operator detail in the logs only; the response stays generic.
func writeSigningError(w http.ResponseWriter, log interface{ Warn(string, ...any) }, err error) {
	switch {
	case errors.Is(err, service.ErrArtifactUnavailable):
		httpx.WriteError(w, http.StatusBadRequest, "artifact_unavailable", "artifact reference and digest are required")
	case errors.Is(err, service.ErrFactorNotVerified):
		httpx.WriteError(w, http.StatusForbidden, "factor_not_verified", "verify your factor session before signing")
	case errors.Is(err, service.ErrReplayedFactor):
		httpx.WriteError(w, http.StatusConflict, "replayed_factor", "this session has already authorized a signing")
	case errors.Is(err, keyvault.ErrKeyLoad):
		httpx.WriteError(w, http.StatusInternalServerError, "signing_failed", "signing is currently unavailable")
	case errors.Is(err, cryptox.ErrUnsupportedDigest):
		httpx.WriteError(w, http.StatusBadRequest, "unsupported_digest", "digest algorithm not supported")
	default:
		log.Warn("signing attempt failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "signing_failed", "signing is currently unavailable")
	}
}
