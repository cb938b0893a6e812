// Package handlers provides HTTP handlers for market hours operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/modules/market_hours"
)

// Handler handles market hours HTTP requests
type Handler struct {
	service *market_hours.MarketHoursService
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler creates a new market hours handler
func NewHandler(service *market_hours.MarketHoursService, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		now:     time.Now,
		log:     log.With().Str("handler", "market_hours").Logger(),
	}
}

// HandleGetStatus handles GET /api/market-hours/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": h.service.GetMarketStatus(h.now()),
	})
}

// HandleGetHolidays handles GET /api/market-hours/holidays
func (h *Handler) HandleGetHolidays(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"exchange": "KRX",
			"holidays": h.service.Holidays(),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
