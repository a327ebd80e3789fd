// Package handlers provides HTTP handlers for the trade journal API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/akarpou/tradebook/internal/domain"
	"github.com/akarpou/tradebook/internal/modules/accounts"
	"github.com/akarpou/tradebook/internal/modules/trades"
)

// Handler contains HTTP handlers for the trades API
type Handler struct {
	repo     *trades.Repository
	accounts *accounts.Repository
	trash    *trades.TrashService
	purge    *trades.PurgeJob
	log      zerolog.Logger
}

// NewHandler creates a new trades handler instance
func NewHandler(repo *trades.Repository, accountsRepo *accounts.Repository, trash *trades.TrashService, purge *trades.PurgeJob, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		accounts: accountsRepo,
		trash:    trash,
		purge:    purge,
		log:      log.With().Str("handler", "trades").Logger(),
	}
}

// HandleList handles GET /api/trades?accountId=...&limit=...&trashed=...
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		h.writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	includeDeleted := r.URL.Query().Get("trashed") == "true"

	if _, err := h.accounts.GetByID(h.repo.DB(), accountID, userID); err != nil {
		h.handleError(w, err, "Failed to resolve account")
		return
	}

	result, err := h.repo.List(h.repo.DB(), accountID, includeDeleted, limit)
	if err != nil {
		h.handleError(w, err, "Failed to list trades")
		return
	}
	if result == nil {
		result = []trades.Trade{}
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGet handles GET /api/trades/{id}?accountId=...
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		h.writeError(w, http.StatusBadRequest, "accountId is required")
		return
	}

	if _, err := h.accounts.GetByID(h.repo.DB(), accountID, userID); err != nil {
		h.handleError(w, err, "Failed to resolve account")
		return
	}

	trade, err := h.repo.FindByID(h.repo.DB(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err, "Failed to get trade")
		return
	}
	if trade == nil {
		h.writeError(w, http.StatusNotFound, "Trade not found")
		return
	}

	h.writeJSON(w, http.StatusOK, trade)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

// HandleTrash handles POST /api/trades/trash
func (h *Handler) HandleTrash(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, h.trash.Trash)

	// Trash activity is a natural moment to check the retention window.
	if h.purge != nil {
		h.purge.MaybeRun()
	}
}

// HandleRestore handles POST /api/trades/restore
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, h.trash.Restore)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request, op func([]string, string) ([]trades.Trade, error)) {
	userID := r.Header.Get("X-User-ID")

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := op(req.IDs, userID)
	if err != nil {
		h.handleError(w, err, "Failed to process batch")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
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
