package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/httpapi"
	"github.com/aristath/brokerwatch/internal/modules/accounts"
	"github.com/aristath/brokerwatch/internal/modules/aggregator"
	"github.com/aristath/brokerwatch/internal/modules/trades"
	testhelpers "github.com/aristath/brokerwatch/internal/testing"
	"github.com/aristath/brokerwatch/internal/tokens"
)

type fakeSyncer struct {
	start, end time.Time
	stored     int
	failures   []aggregator.SyncFailure
}

func (f *fakeSyncer) SyncDailyTrades(_ context.Context, _ *domain.Account, start, end time.Time) (int, []aggregator.SyncFailure) {
	f.start, f.end = start, end
	return f.stored, f.failures
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, tokens.KST)

func setup(t *testing.T) (http.Handler, *trades.Repository, *fakeSyncer) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	db := testhelpers.NewTestDB(t, "brokerwatch")
	testhelpers.InsertAccount(t, db.Conn(), testhelpers.NewAccountFixture("a", domain.BrokerKIS))

	repo := trades.NewRepository(db.Conn(), logger)
	syncer := &fakeSyncer{}
	h := NewHandler(repo, accounts.NewRepository(db.Conn(), nil, logger), syncer, logger)
	h.now = func() time.Time { return fixedNow }

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r, repo, syncer
}

func request(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(httpapi.OwnerHeader, "owner-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSync_DefaultsToTrailingWeek(t *testing.T) {
	router, _, syncer := setup(t)
	syncer.stored = 3

	w := request(router, "POST", "/api/accounts/a/trades/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success_count": 3, "errors": []}`, w.Body.String())
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), syncer.start)
	assert.Equal(t, fixedNow, syncer.end)
}

func TestSync_ExplicitRangeAndFailures(t *testing.T) {
	router, _, syncer := setup(t)
	syncer.stored = 1
	syncer.failures = []aggregator.SyncFailure{{AccountName: "acct-a", Message: "invalid order_no: required field is missing"}}

	w := request(router, "POST", "/api/accounts/a/trades/sync", `{"start_date": "2026-03-02", "end_date": "20260306"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var response syncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.SuccessCount)
	require.Len(t, response.Errors, 1)
	assert.Equal(t, "acct-a", response.Errors[0].AccountName)
	assert.Equal(t, "20260302", syncer.start.Format("20060102"))
	assert.Equal(t, "20260306", syncer.end.Format("20060102"))
}

func TestSync_BadRequests(t *testing.T) {
	router, _, _ := setup(t)

	assert.Equal(t, http.StatusBadRequest, request(router, "POST", "/api/accounts/a/trades/sync", `{"start_date": "tomorrow"}`).Code)
	assert.Equal(t, http.StatusBadRequest, request(router, "POST", "/api/accounts/a/trades/sync",
		`{"start_date": "2026-03-06", "end_date": "2026-03-02"}`).Code)
	assert.Equal(t, http.StatusBadRequest, request(router, "POST", "/api/accounts/a/trades/sync", `{`).Code)
	assert.Equal(t, http.StatusNotFound, request(router, "POST", "/api/accounts/zzz/trades/sync", "").Code)
}

func TestList(t *testing.T) {
	router, repo, _ := setup(t)
	for _, rec := range []domain.TradeRecord{
		{AccountID: "a", OrderDate: "20260302", OrderNo: "1", StockCode: "005930", Side: domain.OrderSideBuy},
		{AccountID: "a", OrderDate: "20260303", OrderNo: "2", StockCode: "000660", Side: domain.OrderSideSell},
		{AccountID: "a", OrderDate: "20260305", OrderNo: "3", StockCode: "005930", Side: domain.OrderSideSell},
	} {
		rec := rec
		require.NoError(t, repo.Upsert(context.Background(), &rec))
	}

	var response struct {
		Data  []domain.TradeRecord `json:"data"`
		Count int                  `json:"count"`
	}

	w := request(router, "GET", "/api/accounts/a/trades?start_date=2026-03-03&stock_code=005930", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, 1, response.Count)
	assert.Equal(t, "3", response.Data[0].OrderNo)

	w = request(router, "GET", "/api/accounts/a/trades?end_date=20260301", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data": [], "count": 0}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, request(router, "GET", "/api/accounts/a/trades?start_date=bad", "").Code)
}
