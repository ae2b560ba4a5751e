package domain

import "time"

// Event type labels used for coordinator counters and bus channels.
const (
	EventOpportunity    = "opportunity"
	EventLiquidityAlert = "liquidity_alert"
	EventHealthAlert    = "health_alert"
	EventObservation    = "observation"
	EventOraclePrice    = "oracle_price"
)

// HealthStatus is the aggregated engine health classification.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthAlert reports a component liveness or staleness problem detected by
// the coordinator's periodic health check.
type HealthAlert struct {
	ID        string
	Component string
	Severity  AlertSeverity
	Message   string
	Timestamp time.Time
}

// EngineStats is the on-demand stats snapshot exposed by the coordinator.
type EngineStats struct {
	Running     bool
	StartedAt   time.Time
	Uptime      time.Duration
	Health      HealthStatus
	Components  map[string]bool   // per-component liveness flags
	EventCounts map[string]uint64 // counters by event type
	Issues      []string
}
