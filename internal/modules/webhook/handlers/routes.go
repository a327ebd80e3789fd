package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all webhook routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/webhook", func(r chi.Router) {
		r.Post("/events", h.HandleEvent) // Lifecycle event ingestion
		r.Get("/health", h.HandleHealth) // Unauthenticated liveness
	})
}
