package handler

import (
	"net/http"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// StatsSource exposes the engine snapshot consumed by the health and stats
// handlers.
type StatsSource interface {
	Stats() domain.EngineStats
}

// HealthHandler serves liveness and engine stats endpoints.
type HealthHandler struct {
	engine StatsSource
}

// NewHealthHandler creates a HealthHandler over the given engine.
func NewHealthHandler(engine StatsSource) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// HealthCheck responds with the aggregated engine health classification.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()

	status := http.StatusOK
	if stats.Health == domain.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":    string(stats.Health),
		"running":   stats.Running,
		"issues":    stats.Issues,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats responds with the full engine stats snapshot: uptime, per-component
// liveness, and event counters.
// GET /api/stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":      stats.Running,
		"started_at":   stats.StartedAt,
		"uptime_ms":    stats.Uptime.Milliseconds(),
		"health":       string(stats.Health),
		"components":   stats.Components,
		"event_counts": stats.EventCounts,
		"issues":       stats.Issues,
	})
}
