package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness, database reachability and memory usage.
type HealthHandler struct {
	db      Pinger
	started time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

type memoryStats struct {
	SystemUsedPercent float64 `json:"systemUsedPercent"`
	ProcessRSSBytes   uint64  `json:"processRssBytes"`
}

type healthResponse struct {
	Status   string       `json:"status"`
	Uptime   string       `json:"uptime"`
	Database string       `json:"database"`
	Memory   *memoryStats `json:"memory,omitempty"`
}

// Get handles the health check request.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Uptime:   time.Since(h.started).Round(time.Second).String(),
		Database: "ok",
	}
	status := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		log.Error().Err(err).Msg("Health check: database unreachable")
		resp.Status, resp.Database = "degraded", "unavailable"
		status = http.StatusServiceUnavailable
	}

	if stats, err := readMemoryStats(ctx); err != nil {
		log.Debug().Err(err).Msg("Health check: memory stats unavailable")
	} else {
		resp.Memory = stats
	}

	respondJSON(w, status, resp)
}

func readMemoryStats(ctx context.Context) (*memoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	stats := &memoryStats{SystemUsedPercent: vm.UsedPercent}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return stats, nil
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
		stats.ProcessRSSBytes = info.RSS
	}
	return stats, nil
}
