package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers account routes. Patterns are flat because the
// trade and balance handlers hang routes off /accounts/{id} too.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/accounts", h.HandleList)
	r.Post("/accounts", h.HandleCreate)
	r.Get("/accounts/{id}", h.HandleGet)
	r.Put("/accounts/{id}", h.HandleUpdate)
	r.Delete("/accounts/{id}", h.HandleDelete)
	r.Post("/accounts/{id}/token", h.HandleRefreshToken)
}
