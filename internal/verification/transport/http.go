// Package transport provides HTTP handlers for the verification domain.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/holdergate/internal/verification/domain"
)

// Handler handles HTTP requests for verification.
type Handler struct {
	svc domain.VerificationService
}

// NewHandler creates a new verification HTTP handler.
func NewHandler(svc domain.VerificationService) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the verification routes on a chi router. The reset
// route is registered separately so the server can wrap it in operator auth.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/verify/start", h.handleStart)
	r.Post("/verify/confirm", h.handleConfirm)
	r.Post("/verify/network", h.handleVerifyNetwork)
	r.Get("/status/{userID}", h.handleStatus)
	r.Get("/config", h.handleConfig)
}

// RegisterResetRoute registers the reset route on a (typically authenticated)
// router.
func (h *Handler) RegisterResetRoute(r chi.Router) {
	r.Post("/reset", h.handleReset)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.Start(r.Context(), req.UserID, req.Username, req.Wallet)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.Confirm(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerifyNetwork(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.svc.VerifyNetwork(r.Context(), req.UserID, req.Network)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	status, err := h.svc.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"networks": h.svc.Config(),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.svc.Reset(r.Context(), req.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true, "userId": req.UserID})
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	var rle *domain.RateLimitError
	switch {
	case errors.As(err, &rle):
		retry := int(time.Until(rle.RetryAt).Seconds())
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
	case errors.Is(err, domain.ErrInvalidUserID), errors.Is(err, domain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrUnknownNetwork):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Network not supported")
	case errors.Is(err, domain.ErrChallengeRequired):
		writeError(w, http.StatusConflict, "CHALLENGE_REQUIRED", "No active challenge, start verification first")
	case errors.Is(err, domain.ErrPrimaryRequired):
		writeError(w, http.StatusPreconditionFailed, "PRIMARY_REQUIRED", "Verify on the primary network first")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Verification failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
