package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers balance snapshot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts/{id}/balances", h.HandleList)
	r.Post("/accounts/{id}/balances", h.HandleFetch)
	r.Get("/accounts/{id}/balances/latest", h.HandleLatest)
	r.Get("/accounts/{id}/balances/stats", h.HandleStats)
}
