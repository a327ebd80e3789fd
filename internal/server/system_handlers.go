package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/akarpou/tradebook/internal/database"
)

// SystemHandlers serves operational status endpoints
type SystemHandlers struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(db *database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		db:  db,
		log: log.With().Str("handler", "system").Logger(),
	}
}

// SystemStatusResponse is the payload for GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	CPUPercent    float64 `json:"cpuPercent"`
	RAMPercent    float64 `json:"ramPercent"`
	DBSizeBytes   int64   `json:"dbSizeBytes"`
	WALSizeBytes  int64   `json:"walSizeBytes"`
}

// HandleSystemStatus returns process and database health figures
func (h *SystemHandlers) HandleSystemStatus(startedAt time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cpuPercent, ramPercent := h.getSystemStats()

		response := SystemStatusResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(startedAt).Seconds(),
			CPUPercent:    cpuPercent,
			RAMPercent:    ramPercent,
		}

		if stats, err := h.db.GetStats(); err == nil {
			response.DBSizeBytes = stats.SizeBytes
			response.WALSizeBytes = stats.WALSizeBytes
		} else {
			h.log.Warn().Err(err).Msg("Failed to read database stats")
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			h.log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a short sampling interval so the endpoint stays responsive.
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
