package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trade journal routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.HandleList)            // Journal listing
		r.Get("/{id}", h.HandleGet)         // Single trade
		r.Post("/trash", h.HandleTrash)     // Batch soft-delete with balance reversal
		r.Post("/restore", h.HandleRestore) // Batch restore with balance reapplication
	})
}
