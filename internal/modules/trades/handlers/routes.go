package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers trade routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{id}/trades", h.HandleList)
	r.Post("/accounts/{id}/trades/sync", h.HandleSync)
}
