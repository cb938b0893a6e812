package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/brokerwatch/internal/database"
	"github.com/aristath/brokerwatch/internal/reliability"
	"github.com/aristath/brokerwatch/internal/scheduler"
)

// LoopMonitor exposes the background supervisor state
type LoopMonitor interface {
	Running() bool
	Reports() map[string]scheduler.CycleReport
	SyncDailyTrades(ctx context.Context) scheduler.CycleReport
}

// BackupManager is the offsite backup service, when configured
type BackupManager interface {
	CreateAndUpload(ctx context.Context) (string, error)
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	db          *database.DB
	loops       LoopMonitor
	backups     BackupManager
	sampleCPU   func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance. backups may be nil.
func NewSystemHandlers(log zerolog.Logger, dataDir string, db *database.DB, loops LoopMonitor, backups BackupManager) *SystemHandlers {
	h := &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		db:          db,
		loops:       loops,
		backups:     backups,
	}
	h.sampleCPU = h.getSystemStats
	return h
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)
		r.Get("/loops", h.HandleLoopsStatus)
		r.Get("/backups", h.HandleListBackups)
	})
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/daily-trades", h.HandleTriggerDailyTrades)
		r.Post("/backup", h.HandleTriggerBackup)
	})
}

// SystemStatusResponse is the payload of GET /api/system/status
type SystemStatusResponse struct {
	Status        string                           `json:"status"`
	UptimeSeconds int64                            `json:"uptime_seconds"`
	CPUPercent    float64                          `json:"cpu_percent"`
	MemoryPercent float64                          `json:"memory_percent"`
	Database      *database.Stats                  `json:"database,omitempty"`
	LoopsRunning  bool                             `json:"loops_running"`
	Loops         map[string]scheduler.CycleReport `json:"loops"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	AvailableMB float64 `json:"available_mb,omitempty"`
	UsedPercent float64 `json:"used_percent,omitempty"`
}

// HandleSystemStatus returns comprehensive system status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.sampleCPU()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		Loops:         map[string]scheduler.CycleReport{},
	}

	if stats, err := h.db.GetStats(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to read database stats")
		response.Status = "degraded"
	} else {
		response.Database = stats
	}

	if h.loops != nil {
		response.LoopsRunning = h.loops.Running()
		response.Loops = h.loops.Reports()
		if !response.LoopsRunning {
			response.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read database stats")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read database stats"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":         h.db.Name(),
		"stats":        stats,
		"last_checked": time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	response := DiskUsageResponse{DataDirMB: h.getDirSize(h.dataDir)}
	if usage, err := disk.Usage(h.dataDir); err == nil {
		response.AvailableMB = float64(usage.Free) / 1024 / 1024
		response.UsedPercent = usage.UsedPercent
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleLoopsStatus returns the latest cycle report of every loop
func (h *SystemHandlers) HandleLoopsStatus(w http.ResponseWriter, r *http.Request) {
	if h.loops == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"running": false, "loops": []scheduler.CycleReport{}})
		return
	}

	reports := h.loops.Reports()
	list := make([]scheduler.CycleReport, 0, len(reports))
	for _, rep := range reports {
		list = append(list, rep)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Loop < list[j].Loop })
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"running": h.loops.Running(), "loops": list})
}

// HandleTriggerDailyTrades runs the daily trade sync now
// POST /api/jobs/daily-trades
func (h *SystemHandlers) HandleTriggerDailyTrades(w http.ResponseWriter, r *http.Request) {
	if h.loops == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "supervisor not configured"})
		return
	}
	h.log.Info().Msg("Manual daily trade sync triggered")
	h.writeJSON(w, http.StatusOK, h.loops.SyncDailyTrades(r.Context()))
}

// HandleTriggerBackup uploads a backup now
// POST /api/jobs/backup
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backups not configured"})
		return
	}
	key, err := h.backups.CreateAndUpload(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "key": key})
}

// HandleListBackups lists offsite backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false, "backups": []reliability.BackupInfo{}})
		return
	}
	backups, err := h.backups.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": true, "backups": backups})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats samples CPU over 100ms and reads memory usage
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
