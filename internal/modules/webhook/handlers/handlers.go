// Package handlers provides HTTP handlers for webhook event ingestion.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/akarpou/tradebook/internal/domain"
	"github.com/akarpou/tradebook/internal/modules/webhook"
)

// Handler contains HTTP handlers for the webhook API
type Handler struct {
	reconciler *webhook.Reconciler
	secret     string
	log        zerolog.Logger
}

// NewHandler creates a new webhook handler instance
func NewHandler(reconciler *webhook.Reconciler, secret string, log zerolog.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		secret:     secret,
		log:        log.With().Str("handler", "webhook").Logger(),
	}
}

// HandleEvent handles POST /api/webhook/events
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get("X-Webhook-Secret")
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		h.writeError(w, http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		return
	}

	var event webhook.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.log.Debug().Err(err).Msg("Failed to decode event body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.reconciler.Process(&event)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		default:
			h.log.Error().Err(err).
				Str("event_id", event.EventID).
				Str("type", string(event.Type)).
				Msg("Failed to process event")
			h.writeError(w, http.StatusInternalServerError, "Failed to process event")
		}
		return
	}

	if result.AlreadyProcessed {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Event already processed",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tradeId": result.TradeID,
	})
}

// HandleHealth handles GET /api/webhook/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
