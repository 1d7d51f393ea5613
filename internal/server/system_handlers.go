package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/basket/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// BasketCounterInterface supplies the basket count for the status endpoint.
type BasketCounterInterface interface {
	Count() int
}

// AccountCounterInterface supplies the account count for the status endpoint.
type AccountCounterInterface interface {
	Count() int
}

// SystemHandlers handles system-wide monitoring endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	databases   map[string]*database.DB
	baskets     BasketCounterInterface
	accounts    AccountCounterInterface
}

// NewSystemHandlers creates a new system handlers instance. baskets and
// accounts may be nil; the corresponding counts are then omitted.
func NewSystemHandlers(
	databases map[string]*database.DB,
	baskets BasketCounterInterface,
	accounts AccountCounterInterface,
	log zerolog.Logger,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		databases:   databases,
		baskets:     baskets,
		accounts:    accounts,
	}
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	for name, db := range h.databases {
		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Error().Err(err).Str("database", name).Msg("Health check failed")
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": name,
				"error":    err.Error(),
			})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":         "running",
		"uptime_seconds": int64(time.Since(h.startupTime).Seconds()),
		"started_at":     h.startupTime.UTC().Format(time.RFC3339),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		status["cpu_percent"] = percentages[0]
	}

	if vmem, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vmem.UsedPercent
		status["memory_used_mb"] = vmem.Used / 1024 / 1024
	}

	dbStatus := make(map[string]string, len(h.databases))
	for name, db := range h.databases {
		if err := db.HealthCheck(r.Context()); err != nil {
			dbStatus[name] = "unhealthy"
		} else {
			dbStatus[name] = "ok"
		}
	}
	status["databases"] = dbStatus

	if h.baskets != nil {
		status["baskets"] = h.baskets.Count()
	}
	if h.accounts != nil {
		status["accounts"] = h.accounts.Count()
	}

	h.writeJSON(w, http.StatusOK, status)
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
