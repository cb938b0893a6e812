// Package handlers provides HTTP handlers for trade history and sync.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/clients/broker"
	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/httpapi"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/modules/aggregator"
	"github.com/aristath/brokerwatch/internal/modules/trades"
)

// defaultSyncDays is the window synced when the request names no dates
const defaultSyncDays = 7

// Syncer pulls trades from the broker into storage
type Syncer interface {
	SyncDailyTrades(ctx context.Context, account *domain.Account, start, end time.Time) (int, []aggregator.SyncFailure)
}

// Handler handles trade HTTP requests
type Handler struct {
	repo   *trades.Repository
	syncer Syncer
	loader *httpapi.AccountLoader
	now    func() time.Time
	log    zerolog.Logger
}

// NewHandler creates a new trade handler
func NewHandler(repo *trades.Repository, accountRepo *accounts.Repository, syncer Syncer, log zerolog.Logger) *Handler {
	log = log.With().Str("handler", "trades").Logger()
	return &Handler{
		repo:   repo,
		syncer: syncer,
		loader: httpapi.NewAccountLoader(accountRepo, log),
		now:    time.Now,
		log:    log,
	}
}

type syncRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type syncResponse struct {
	SuccessCount int                      `json:"success_count"`
	Errors       []aggregator.SyncFailure `json:"errors"`
}

// HandleSync handles POST /api/accounts/{id}/trades/sync
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}

	var req syncRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil && err != io.EOF {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid request body")
		return
	}

	end := h.now()
	start := end.AddDate(0, 0, -defaultSyncDays)
	if req.StartDate != "" {
		t, err := httpapi.ParseDate(req.StartDate)
		if err != nil {
			httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid start_date")
			return
		}
		start = t
	}
	if req.EndDate != "" {
		t, err := httpapi.ParseDate(req.EndDate)
		if err != nil {
			httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid end_date")
			return
		}
		end = t
	}
	if end.Before(start) {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "end_date is before start_date")
		return
	}

	stored, failures := h.syncer.SyncDailyTrades(r.Context(), account, start, end)
	if failures == nil {
		failures = []aggregator.SyncFailure{}
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, syncResponse{SuccessCount: stored, Errors: failures})
}

// HandleList handles GET /api/accounts/{id}/trades
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}

	q := r.URL.Query()
	filter := trades.Filter{AccountID: account.ID, StockCode: q.Get("stock_code")}
	for param, dst := range map[string]*string{"start_date": &filter.StartDate, "end_date": &filter.EndDate} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		t, err := httpapi.ParseDate(v)
		if err != nil {
			httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid "+param)
			return
		}
		*dst = broker.FormatDate(t)
	}

	records, err := h.repo.Query(r.Context(), filter)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if records == nil {
		records = []domain.TradeRecord{}
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"data":  records,
		"count": len(records),
	})
}
