package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/brokerwatch/internal/reliability"
	"github.com/aristath/brokerwatch/internal/scheduler"
	testhelpers "github.com/aristath/brokerwatch/internal/testing"
)

type fakeLoops struct {
	running bool
	reports map[string]scheduler.CycleReport
	synced  int
}

func (f *fakeLoops) Running() bool                             { return f.running }
func (f *fakeLoops) Reports() map[string]scheduler.CycleReport { return f.reports }
func (f *fakeLoops) SyncDailyTrades(context.Context) scheduler.CycleReport {
	f.synced++
	return scheduler.CycleReport{Loop: scheduler.LoopDailyTrades, Succeeded: 2}
}

type fakeBackups struct {
	err error
}

func (f *fakeBackups) CreateAndUpload(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "brokerwatch-backup-2026-03-03-180000.db.gz", nil
}

func (f *fakeBackups) ListBackups(context.Context) ([]reliability.BackupInfo, error) {
	return []reliability.BackupInfo{{Key: "brokerwatch-backup-2026-03-03-180000.db.gz"}}, f.err
}

func newSystemRouter(t *testing.T, loops LoopMonitor, backups BackupManager) http.Handler {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	db := testhelpers.NewTestDB(t, "brokerwatch")
	h := NewSystemHandlers(logger, t.TempDir(), db, loops, backups)
	h.sampleCPU = func() (float64, float64) { return 12.5, 40 }

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestSystemStatus(t *testing.T) {
	loops := &fakeLoops{running: true, reports: map[string]scheduler.CycleReport{
		scheduler.LoopToken: {Loop: scheduler.LoopToken, Succeeded: 3, At: time.Now()},
	}}
	router := newSystemRouter(t, loops, nil)

	w := serve(router, "GET", "/api/system/status")
	require.Equal(t, http.StatusOK, w.Code)

	var response SystemStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, 12.5, response.CPUPercent)
	assert.Equal(t, 40.0, response.MemoryPercent)
	require.NotNil(t, response.Database)
	assert.Greater(t, response.Database.PageCount, int64(0))
	assert.Equal(t, 3, response.Loops[scheduler.LoopToken].Succeeded)

	loops.running = false
	w = serve(router, "GET", "/api/system/status")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response.Status)
}

func TestLoopsStatus_Sorted(t *testing.T) {
	loops := &fakeLoops{running: true, reports: map[string]scheduler.CycleReport{
		scheduler.LoopToken:   {Loop: scheduler.LoopToken},
		scheduler.LoopBalance: {Loop: scheduler.LoopBalance},
	}}
	w := serve(newSystemRouter(t, loops, nil), "GET", "/api/system/loops")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Running bool                    `json:"running"`
		Loops   []scheduler.CycleReport `json:"loops"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Loops, 2)
	assert.Equal(t, scheduler.LoopBalance, response.Loops[0].Loop)
}

func TestTriggerDailyTrades(t *testing.T) {
	loops := &fakeLoops{running: true}
	w := serve(newSystemRouter(t, loops, nil), "POST", "/api/jobs/daily-trades")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, loops.synced)
	assert.Contains(t, w.Body.String(), `"succeeded":2`)

	w = serve(newSystemRouter(t, nil, nil), "POST", "/api/jobs/daily-trades")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBackups(t *testing.T) {
	router := newSystemRouter(t, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, "POST", "/api/jobs/backup").Code)
	assert.Contains(t, serve(router, "GET", "/api/system/backups").Body.String(), `"enabled":false`)

	router = newSystemRouter(t, nil, &fakeBackups{})
	w := serve(router, "POST", "/api/jobs/backup")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "brokerwatch-backup-2026-03-03-180000.db.gz")

	router = newSystemRouter(t, nil, &fakeBackups{err: errors.New("bucket not found")})
	assert.Equal(t, http.StatusBadGateway, serve(router, "POST", "/api/jobs/backup").Code)
	assert.Equal(t, http.StatusBadGateway, serve(router, "GET", "/api/system/backups").Code)
}

func TestDatabaseAndDisk(t *testing.T) {
	router := newSystemRouter(t, nil, nil)

	w := serve(router, "GET", "/api/system/database")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"brokerwatch"`)

	w = serve(router, "GET", "/api/system/disk")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data_dir_mb")
}
