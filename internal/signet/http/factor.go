package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/domain"
	"github.com/aussiebroadwan/signet/internal/signet/service"
	"github.com/aussiebroadwan/signet/pkg/httpx"
	"github.com/aussiebroadwan/signet/pkg/slogx"
)

// FactorHandler handles factor session and TOTP enrollment endpoints.
type FactorHandler struct {
	FactorService *service.FactorService
}

type createSessionRequest struct {
	UserID     string `json:"user_id"`
	Method     string `json:"method"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
	DeliverTo  string `json:"deliver_to,omitempty"`
}

// HandleCreateSession handles POST /v1/otp/sessions.
func (h *FactorHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	issued, err := h.FactorService.CreateSession(ctx, req.UserID,
		domain.FactorMethod(req.Method), time.Duration(req.TTLSeconds)*time.Second, req.DeliverTo)
	if err != nil {
		log.Warn("failed to create factor session", "error", err)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "could not create session")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, issued)
}

type verifySessionRequest struct {
	Code string `json:"code"`
}

// HandleVerifySession handles POST /v1/otp/sessions/{id}/verify.
func (h *FactorHandler) HandleVerifySession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	id := r.PathValue("id")

	var req verifySessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	verified, err := h.FactorService.VerifySession(ctx, id, req.Code)
	if err != nil {
		writeFactorError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verified)
}

// HandleGetSession handles GET /v1/otp/sessions/{id}. Read-only, no side
// effects.
func (h *FactorHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	view, err := h.FactorService.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "could not load session")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, view)
}

type enrollTOTPRequest struct {
	UserID  string `json:"user_id"`
	Account string `json:"account"`
}

// HandleEnrollTOTP handles POST /v1/totp/enroll.
func (h *FactorHandler) HandleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req enrollTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	enrollment, err := h.FactorService.EnrollTOTP(ctx, req.UserID, req.Account)
	if err != nil {
		if errors.Is(err, service.ErrTOTPAlreadySetup) {
			httpx.WriteError(w, http.StatusConflict, "already_enrolled", "TOTP already confirmed")
			return
		}
		log.Error("TOTP enrollment failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "could not enroll")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, enrollment)
}

type confirmTOTPRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// HandleConfirmTOTP handles POST /v1/totp/confirm.
func (h *FactorHandler) HandleConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req confirmTOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	if err := h.FactorService.ConfirmTOTP(ctx, req.UserID, req.Code); err != nil {
		writeFactorError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

// writeFactorError maps factor-layer errors onto generic responses. The
// specific sentinel stays in the error code so callers can decide between
// resubmitting and issuing a fresh session.
func writeFactorError(w http.ResponseWriter, log interface{ Warn(string, ...any) }, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, service.ErrSessionExpired):
		httpx.WriteError(w, http.StatusGone, "expired", "session expired, request a new code")
	case errors.Is(err, service.ErrAlreadyVerified):
		httpx.WriteError(w, http.StatusConflict, "already_verified", "session already verified")
	case errors.Is(err, service.ErrInvalidCode):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_code", "verification code incorrect")
	case errors.Is(err, service.ErrTooManyAttempts):
		httpx.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "attempt limit reached, request a new code")
	case errors.Is(err, service.ErrTOTPNotEnrolled), errors.Is(err, service.ErrTOTPNotConfirmed):
		httpx.WriteError(w, http.StatusBadRequest, "totp_unavailable", "TOTP is not set up for this user")
	case errors.Is(err, service.ErrTOTPAlreadySetup):
		httpx.WriteError(w, http.StatusConflict, "already_enrolled", "TOTP already confirmed")
	default:
		log.Warn("factor operation failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "verification unavailable")
	}
}
