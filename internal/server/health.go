package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dmelo/carteira/internal/database"
)

// HealthHandler reports process and database health.
type HealthHandler struct {
	log     zerolog.Logger
	dataDir string
	dbs     map[string]*database.DB
	started time.Time
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(log zerolog.Logger, dataDir string, portfolioDB, cacheDB *database.DB) *HealthHandler {
	return &HealthHandler{
		log:     log.With().Str("handler", "health").Logger(),
		dataDir: dataDir,
		dbs: map[string]*database.DB{
			"portfolio": portfolioDB,
			"cache":     cacheDB,
		},
		started: time.Now(),
	}
}

// HandleHealth handles GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	databases := make(map[string]string, len(h.dbs))
	for name, db := range h.dbs {
		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Database health check failed")
			databases[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		databases[name] = "ok"
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"databases": databases,
	}
	if status != http.StatusOK {
		response["status"] = "degraded"
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		response["memory_used_percent"] = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory statistics")
	}
	if diskStat, err := disk.Usage(h.dataDir); err == nil {
		response["disk_used_percent"] = diskStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to read disk statistics")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
