// Package handlers provides HTTP handlers for balance snapshots.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/httpapi"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/modules/snapshots"
)

const (
	defaultStatsDays = 30
	maxStatsDays     = 365
)

// BalanceFetcher fetches and stores a balance snapshot on demand
type BalanceFetcher interface {
	FetchAndStoreBalance(ctx context.Context, account *domain.Account, kind domain.SnapshotKind) (*domain.BalanceSnapshot, error)
}

// SessionClock provides the trading session of a day
type SessionClock interface {
	SessionBounds(t time.Time) (time.Time, time.Time)
}

// Handler handles balance snapshot HTTP requests
type Handler struct {
	repo    *snapshots.Repository
	fetcher BalanceFetcher
	session SessionClock
	loader  *httpapi.AccountLoader
	now     func() time.Time
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(
	repo *snapshots.Repository,
	accountRepo *accounts.Repository,
	fetcher BalanceFetcher,
	session SessionClock,
	log zerolog.Logger,
) *Handler {
	log = log.With().Str("handler", "snapshots").Logger()
	return &Handler{
		repo:    repo,
		fetcher: fetcher,
		session: session,
		loader:  httpapi.NewAccountLoader(accountRepo, log),
		now:     time.Now,
		log:     log,
	}
}

// HandleFetch handles POST /api/accounts/{id}/balances
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}
	snap, err := h.fetcher.FetchAndStoreBalance(r.Context(), account, domain.SnapshotManual)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, map[string]interface{}{"data": snap})
}

// HandleList handles GET /api/accounts/{id}/balances. Without start/end it
// returns today's session so far; intraday results stop at the close.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}

	q := r.URL.Query()
	kind, ok := h.parseKind(w, q.Get("kind"))
	if !ok {
		return
	}

	now := h.now()
	open, closeAt := h.session.SessionBounds(now)
	start, end := open, now
	if kind == domain.SnapshotIntraday && end.After(closeAt) {
		end = closeAt
	}

	if v := q.Get("start"); v != "" {
		t, err := httpapi.ParseInstant(v)
		if err != nil {
			httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid start")
			return
		}
		start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := httpapi.ParseInstant(v)
		if err != nil {
			httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "invalid end")
			return
		}
		if !strings.Contains(v, "T") {
			// a bare date covers the whole day
			t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
		end = t
	}
	if end.Before(start) {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "end is before start")
		return
	}

	series, err := h.repo.Range(r.Context(), account.ID, kind, start, end)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if series == nil {
		series = []domain.BalanceSnapshot{}
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"data":  series,
		"start": start,
		"end":   end,
	})
}

// HandleLatest handles GET /api/accounts/{id}/balances/latest
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}
	kind, ok := h.parseKind(w, r.URL.Query().Get("kind"))
	if !ok {
		return
	}

	snap, err := h.repo.Latest(r.Context(), account.ID, kind)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if snap == nil {
		httpapi.WriteMessage(w, h.log, http.StatusNotFound, "no balance recorded yet")
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"data": snap})
}

// HandleStats handles GET /api/accounts/{id}/balances/stats?days=N
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	account := h.loader.Load(w, r)
	if account == nil {
		return
	}

	days := defaultStatsDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxStatsDays {
			httpapi.WriteMessage(w, h.log, http.StatusBadRequest, "days must be between 1 and 365")
			return
		}
		days = n
	}
	kind, ok := h.parseKind(w, r.URL.Query().Get("kind"))
	if !ok {
		return
	}

	end := h.now()
	series, err := h.repo.Range(r.Context(), account.ID, kind, end.AddDate(0, 0, -days), end)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"data": snapshots.ComputeStats(series),
		"days": days,
	})
}

func (h *Handler) parseKind(w http.ResponseWriter, v string) (domain.SnapshotKind, bool) {
	if v == "" {
		return "", true
	}
	kind, err := domain.ParseSnapshotKind(v)
	if err != nil {
		httpapi.WriteMessage(w, h.log, http.StatusBadRequest, err.Error())
		return "", false
	}
	return kind, true
}
