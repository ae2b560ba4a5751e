// Package liquidity maintains bounded per-instrument liquidity history,
// computes trend statistics over configurable windows, and raises alerts when
// detection rules fire. Rules are independent and non-exclusive: one update
// can emit several alerts, and every firing is emitted without deduplication.
package liquidity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openarb/venuewatch/internal/domain"
)

const (
	// DefaultHistoryCapacity bounds each instrument's history; the oldest
	// point is evicted first.
	DefaultHistoryCapacity = 2000

	// alertLogLimit bounds the in-memory alert log.
	alertLogLimit = 500

	drainWindow      = 5    // points examined by the pool_drain rule
	drainThreshold   = 0.20 // 20% drop across the drain window
	anomalyWindow    = 20   // points behind the z-score baseline
	anomalyZScore    = 2.0
	impactWindow     = 3    // points examined by the high_impact rule
	impactThreshold  = 0.15 // 15% max pairwise change
	defaultTrendSpan = 100  // points used when no explicit timeframe is given
)

// Config holds the monitor's tunables.
type Config struct {
	HistoryCapacity  int
	DefaultThreshold float64
	// Thresholds maps instrument to its low-liquidity threshold; instruments
	// not listed use DefaultThreshold.
	Thresholds map[string]float64
}

// Monitor owns the per-instrument liquidity histories. All mutation happens
// through Update; no other component reaches into the history.
type Monitor struct {
	mu      sync.RWMutex
	history map[string][]domain.LiquidityDataPoint
	alerts  []domain.LiquidityAlert
	running bool

	cfg    Config
	out    chan<- domain.LiquidityAlert
	clock  domain.Clock
	logger *slog.Logger
}

// NewMonitor creates a Monitor emitting alerts on out. A nil clock defaults
// to the wall clock.
func NewMonitor(cfg Config, out chan<- domain.LiquidityAlert, clock domain.Clock, logger *slog.Logger) *Monitor {
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Monitor{
		history: make(map[string][]domain.LiquidityDataPoint),
		cfg:     cfg,
		out:     out,
		clock:   clock,
		logger:  logger.With(slog.String("component", "liquidity_monitor")),
	}
}

// Run marks the background loop live and periodically logs a trend summary
// for each tracked instrument. The coordinator's health check reports the
// monitor unhealthy while this loop is not running.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info("liquidity monitor started")
	defer m.logger.Info("liquidity monitor stopped")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.logTrends(ctx)
		}
	}
}

// Running reports whether the background loop is live.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Monitor) logTrends(ctx context.Context) {
	m.mu.RLock()
	instruments := make([]string, 0, len(m.history))
	for inst := range m.history {
		instruments = append(instruments, inst)
	}
	m.mu.RUnlock()

	for _, inst := range instruments {
		trend := m.Trend(inst, "")
		if trend.Direction == domain.TrendNone {
			continue
		}
		m.logger.DebugContext(ctx, "liquidity trend",
			slog.String("instrument", inst),
			slog.String("direction", string(trend.Direction)),
			slog.Float64("change_percent", trend.ChangePercent),
			slog.Float64("confidence", trend.Confidence),
		)
	}
}

// Update appends a liquidity data point derived from the snapshot and runs
// every alert rule against the updated history.
func (m *Monitor) Update(ctx context.Context, snap domain.ReserveSnapshot) {
	ts := snap.Timestamp
	if ts.IsZero() {
		ts = m.clock.Now()
	}
	point := domain.LiquidityDataPoint{
		Timestamp:   ts,
		Liquidity:   snap.Liquidity,
		Volume:      snap.Volume,
		Utilization: snap.Utilization(),
	}

	m.mu.Lock()
	pts := append(m.history[snap.Instrument], point)
	if overflow := len(pts) - m.cfg.HistoryCapacity; overflow > 0 {
		pts = append([]domain.LiquidityDataPoint(nil), pts[overflow:]...)
	}
	m.history[snap.Instrument] = pts
	recent := make([]domain.LiquidityDataPoint, len(pts))
	copy(recent, pts)
	m.mu.Unlock()

	m.runRules(ctx, snap.Instrument, recent)
}

// History returns a copy of the instrument's current history.
func (m *Monitor) History(instrument string) []domain.LiquidityDataPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.history[instrument]
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.LiquidityDataPoint, len(src))
	copy(out, src)
	return out
}

// RecentAlerts returns up to limit most recent alerts, newest first.
func (m *Monitor) RecentAlerts(limit int) []domain.LiquidityAlert {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.alerts)
	if limit > n {
		limit = n
	}
	out := make([]domain.LiquidityAlert, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out
}

func (m *Monitor) threshold(instrument string) float64 {
	if v, ok := m.cfg.Thresholds[instrument]; ok {
		return v
	}
	return m.cfg.DefaultThreshold
}

func (m *Monitor) runRules(ctx context.Context, instrument string, pts []domain.LiquidityDataPoint) {
	current := pts[len(pts)-1]

	if threshold := m.threshold(instrument); current.Liquidity < threshold {
		m.emit(ctx, domain.LiquidityAlert{
			Type:       domain.AlertLowLiquidity,
			Severity:   domain.SeverityHigh,
			Instrument: instrument,
			Message:    fmt.Sprintf("liquidity %.0f below threshold %.0f", current.Liquidity, threshold),
			Metrics: map[string]float64{
				"liquidity": current.Liquidity,
				"threshold": threshold,
			},
		})
	}

	if len(pts) >= drainWindow {
		window := pts[len(pts)-drainWindow:]
		first, last := window[0].Liquidity, window[len(window)-1].Liquidity
		if first > 0 {
			drop := (first - last) / first
			if drop >= drainThreshold {
				m.emit(ctx, domain.LiquidityAlert{
					Type:       domain.AlertPoolDrain,
					Severity:   domain.SeverityCritical,
					Instrument: instrument,
					Message:    fmt.Sprintf("liquidity dropped %.1f%% over last %d points", drop*100, drainWindow),
					Metrics: map[string]float64{
						"drop_percent": drop * 100,
						"from":         first,
						"to":           last,
					},
				})
			}
		}
	}

	if len(pts) > anomalyWindow {
		baseline := pts[len(pts)-1-anomalyWindow : len(pts)-1]
		mean, stddev := meanStddev(baseline)
		if stddev > 0 {
			z := (current.Liquidity - mean) / stddev
			if math.Abs(z) > anomalyZScore {
				m.emit(ctx, domain.LiquidityAlert{
					Type:       domain.AlertAnomaly,
					Severity:   domain.SeverityMedium,
					Instrument: instrument,
					Message:    fmt.Sprintf("liquidity z-score %.2f against last %d points", z, anomalyWindow),
					Metrics: map[string]float64{
						"z_score": z,
						"mean":    mean,
						"stddev":  stddev,
						"current": current.Liquidity,
					},
				})
			}
		}
	}

	if len(pts) >= impactWindow {
		window := pts[len(pts)-impactWindow:]
		maxChange := 0.0
		for i := 0; i < len(window); i++ {
			for j := i + 1; j < len(window); j++ {
				a, b := window[i].Liquidity, window[j].Liquidity
				if a <= 0 {
					continue
				}
				change := math.Abs(b-a) / a
				if change > maxChange {
					maxChange = change
				}
			}
		}
		if maxChange >= impactThreshold {
			m.emit(ctx, domain.LiquidityAlert{
				Type:       domain.AlertHighImpact,
				Severity:   domain.SeverityHigh,
				Instrument: instrument,
				Message:    fmt.Sprintf("liquidity moved %.1f%% across last %d points", maxChange*100, impactWindow),
				Metrics: map[string]float64{
					"max_change_percent": maxChange * 100,
				},
			})
		}
	}
}

func (m *Monitor) emit(ctx context.Context, alert domain.LiquidityAlert) {
	alert.ID = uuid.Must(uuid.NewRandom()).String()
	alert.Timestamp = m.clock.Now()

	m.mu.Lock()
	m.alerts = append(m.alerts, alert)
	if overflow := len(m.alerts) - alertLogLimit; overflow > 0 {
		m.alerts = append([]domain.LiquidityAlert(nil), m.alerts[overflow:]...)
	}
	m.mu.Unlock()

	if m.out == nil {
		return
	}
	select {
	case m.out <- alert:
	case <-ctx.Done():
	}
}

// Trend computes the liquidity trend for an instrument over the requested
// timeframe ("1m", "5m", "15m", "1h", "24h"; anything else means the last 100
// points). It requires at least 10 total points and 5 points inside the
// window; otherwise the direction is TrendNone.
func (m *Monitor) Trend(instrument, timeframe string) domain.LiquidityTrend {
	pts := m.History(instrument)
	trend := domain.LiquidityTrend{
		Instrument: instrument,
		Direction:  domain.TrendNone,
		Timeframe:  timeframe,
	}
	if len(pts) < 10 {
		return trend
	}

	window := filterWindow(pts, timeframe, m.clock.Now())
	trend.Points = len(window)
	if len(window) < 5 {
		return trend
	}

	mean := 0.0
	for _, p := range window {
		mean += p.Liquidity
	}
	mean /= float64(len(window))

	slope := olsSlope(window)

	first, last := window[0].Liquidity, window[len(window)-1].Liquidity
	if first > 0 {
		trend.ChangePercent = (last - first) / first * 100
	}
	trend.Confidence = trendConfidence(window, slope, mean)

	_, stddev := meanStddev(window)
	switch {
	case mean > 0 && stddev/mean > 0.10:
		trend.Direction = domain.TrendVolatile
	case math.Abs(slope) < 0.001*mean:
		trend.Direction = domain.TrendStable
	case slope > 0:
		trend.Direction = domain.TrendIncreasing
	default:
		trend.Direction = domain.TrendDecreasing
	}
	return trend
}

// filterWindow restricts points to the requested duration, or the last
// defaultTrendSpan points when the timeframe is not an explicit duration.
func filterWindow(pts []domain.LiquidityDataPoint, timeframe string, now time.Time) []domain.LiquidityDataPoint {
	var span time.Duration
	switch timeframe {
	case "1m":
		span = time.Minute
	case "5m":
		span = 5 * time.Minute
	case "15m":
		span = 15 * time.Minute
	case "1h":
		span = time.Hour
	case "24h":
		span = 24 * time.Hour
	default:
		if len(pts) > defaultTrendSpan {
			return pts[len(pts)-defaultTrendSpan:]
		}
		return pts
	}

	cutoff := now.Add(-span)
	i := 0
	for i < len(pts) && pts[i].Timestamp.Before(cutoff) {
		i++
	}
	return pts[i:]
}

// olsSlope fits liquidity against point index by ordinary least squares.
func olsSlope(pts []domain.LiquidityDataPoint) float64 {
	n := float64(len(pts))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range pts {
		x := float64(i)
		sumX += x
		sumY += p.Liquidity
		sumXY += x * p.Liquidity
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// trendConfidence is a simplified residual-based fit measure scaled by a
// data-count factor, floored at 0.3 for sparse windows and capped at 0.95.
func trendConfidence(pts []domain.LiquidityDataPoint, slope, mean float64) float64 {
	if len(pts) < 5 {
		return 0.3
	}

	n := float64(len(pts))
	intercept := mean - slope*(n-1)/2

	var ssRes, ssTot float64
	for i, p := range pts {
		fit := intercept + slope*float64(i)
		ssRes += (p.Liquidity - fit) * (p.Liquidity - fit)
		ssTot += (p.Liquidity - mean) * (p.Liquidity - mean)
	}

	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
		if r2 < 0 {
			r2 = 0
		}
	}

	countFactor := n / 20
	if countFactor > 1 {
		countFactor = 1
	}

	conf := r2 * countFactor
	if conf > 0.95 {
		conf = 0.95
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

func meanStddev(pts []domain.LiquidityDataPoint) (float64, float64) {
	if len(pts) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Liquidity
	}
	mean := sum / float64(len(pts))

	var variance float64
	for _, p := range pts {
		d := p.Liquidity - mean
		variance += d * d
	}
	variance /= float64(len(pts))
	return mean, math.Sqrt(variance)
}
