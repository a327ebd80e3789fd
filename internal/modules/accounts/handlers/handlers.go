// Package handlers provides HTTP handlers for account management.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/akarpou/tradebook/internal/domain"
	"github.com/akarpou/tradebook/internal/modules/accounts"
)

// Handler contains HTTP handlers for the accounts API
type Handler struct {
	repo *accounts.Repository
	log  zerolog.Logger
}

// NewHandler creates a new accounts handler instance
func NewHandler(repo *accounts.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "accounts").Logger(),
	}
}

// HandleCreate handles POST /api/accounts
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	account, err := h.repo.Create(userID)
	if err != nil {
		h.handleError(w, err, "Failed to create account")
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

// HandleGet handles GET /api/accounts/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")

	account, err := h.repo.GetByID(h.repo.DB(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.handleError(w, err, "Failed to get account")
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

// HandleDeposit handles POST /api/accounts/{id}/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	h.handleAdjustment(w, r, h.repo.Deposit)
}

// HandleWithdraw handles POST /api/accounts/{id}/withdraw
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleAdjustment(w, r, h.repo.Withdraw)
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request, op func(string, string, float64) (*accounts.Account, error)) {
	userID := r.Header.Get("X-User-ID")

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "Amount must be positive")
		return
	}

	account, err := op(chi.URLParam(r, "id"), userID, req.Amount)
	if err != nil {
		h.handleError(w, err, "Failed to adjust balance")
		return
	}

	h.writeJSON(w, http.StatusOK, account)
}

// HandleDelete handles DELETE /api/accounts/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")

	if err := h.repo.Delete(chi.URLParam(r, "id"), userID); err != nil {
		h.handleError(w, err, "Failed to delete account")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleError(w http.ResponseWriter, err error, logMessage string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error().Err(err).Msg(logMessage)
		h.writeError(w, http.StatusInternalServerError, logMessage)
	}
}

// Helper methods

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
