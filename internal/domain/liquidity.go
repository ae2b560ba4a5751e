package domain

import "time"

// LiquidityDataPoint is one liquidity sample for an instrument. Points are
// appended to a capacity-bounded, FIFO-evicted history per instrument.
type LiquidityDataPoint struct {
	Timestamp   time.Time
	Liquidity   float64
	Volume      float64
	Utilization float64
}

// TrendDirection classifies the movement of an instrument's liquidity over a
// time window.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendVolatile   TrendDirection = "volatile"
	// TrendNone is returned when there is not enough history to classify.
	TrendNone TrendDirection = "none"
)

// LiquidityTrend is a derived statistic over a time window. It is computed on
// demand from history and not stored.
type LiquidityTrend struct {
	Instrument    string
	Direction     TrendDirection
	ChangePercent float64
	Confidence    float64 // [0,1]
	Points        int     // number of source points after window filtering
	Timeframe     string
}

// AlertType identifies the liquidity condition that fired.
type AlertType string

const (
	AlertLowLiquidity AlertType = "low_liquidity"
	AlertPoolDrain    AlertType = "pool_drain"
	AlertHighImpact   AlertType = "high_impact"
	AlertAnomaly      AlertType = "anomaly"
)

// AlertSeverity ranks how urgently an alert should be acted upon.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// LiquidityAlert is a liquidity condition requiring attention. Every rule
// firing emits its own alert; rules are independent and non-exclusive.
type LiquidityAlert struct {
	ID         string
	Type       AlertType
	Severity   AlertSeverity
	Instrument string
	Message    string
	Metrics    map[string]float64
	Timestamp  time.Time
}
