package liquidity

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestMonitor(cfg Config) (*Monitor, chan domain.LiquidityAlert) {
	out := make(chan domain.LiquidityAlert, 64)
	m := NewMonitor(cfg, out, fixedClock{t: baseTime}, testLogger())
	return m, out
}

func drainAlerts(out chan domain.LiquidityAlert) []domain.LiquidityAlert {
	var alerts []domain.LiquidityAlert
	for {
		select {
		case a := <-out:
			alerts = append(alerts, a)
		default:
			return alerts
		}
	}
}

func alertsOfType(alerts []domain.LiquidityAlert, typ domain.AlertType) []domain.LiquidityAlert {
	var out []domain.LiquidityAlert
	for _, a := range alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func feed(t *testing.T, m *Monitor, instrument string, values []float64) {
	t.Helper()
	for i, v := range values {
		m.Update(t.Context(), domain.ReserveSnapshot{
			Instrument: instrument,
			Liquidity:  v,
			ValueA:     v / 2,
			ValueB:     v / 2,
			Timestamp:  baseTime.Add(time.Duration(i) * time.Second),
		})
	}
}

func TestLowLiquidityAlert(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 1000})

	feed(t, m, "ETH-USD", []float64{500})

	alerts := drainAlerts(out)
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	a := alerts[0]
	if a.Type != domain.AlertLowLiquidity {
		t.Errorf("Type = %q, want %q", a.Type, domain.AlertLowLiquidity)
	}
	if a.Severity != domain.SeverityHigh {
		t.Errorf("Severity = %q, want %q", a.Severity, domain.SeverityHigh)
	}
	if a.Instrument != "ETH-USD" {
		t.Errorf("Instrument = %q", a.Instrument)
	}
	if a.ID == "" {
		t.Error("alert ID is empty")
	}
	if !a.Timestamp.Equal(baseTime) {
		t.Errorf("Timestamp = %v, want %v", a.Timestamp, baseTime)
	}
	if a.Metrics["liquidity"] != 500 || a.Metrics["threshold"] != 1000 {
		t.Errorf("Metrics = %v", a.Metrics)
	}
}

func TestPerInstrumentThreshold(t *testing.T) {
	m, out := newTestMonitor(Config{
		DefaultThreshold: 1000,
		Thresholds:       map[string]float64{"BTC-USD": 100},
	})

	// Above its own threshold even though below the default.
	feed(t, m, "BTC-USD", []float64{500})

	if alerts := drainAlerts(out); len(alerts) != 0 {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}

func TestPoolDrainAlert(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 0})

	// 21% drop over five points, each pairwise step inside the last three
	// staying under the impact threshold.
	feed(t, m, "ETH-USD", []float64{1000, 950, 900, 855, 790})

	alerts := drainAlerts(out)
	drains := alertsOfType(alerts, domain.AlertPoolDrain)
	if len(drains) != 1 {
		t.Fatalf("got %d pool_drain alerts out of %d total, want 1", len(drains), len(alerts))
	}
	a := drains[0]
	if a.Severity != domain.SeverityCritical {
		t.Errorf("Severity = %q, want %q", a.Severity, domain.SeverityCritical)
	}
	if got := a.Metrics["drop_percent"]; got < 20.9 || got > 21.1 {
		t.Errorf("drop_percent = %g, want ~21", got)
	}
	if len(alertsOfType(alerts, domain.AlertHighImpact)) != 0 {
		t.Errorf("high_impact fired alongside a gradual drain: %+v", alerts)
	}
}

func TestHighImpactAlert(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 0})

	feed(t, m, "ETH-USD", []float64{1000, 1000, 1200})

	impacts := alertsOfType(drainAlerts(out), domain.AlertHighImpact)
	if len(impacts) != 1 {
		t.Fatalf("got %d high_impact alerts, want 1", len(impacts))
	}
	if got := impacts[0].Metrics["max_change_percent"]; got < 19.9 || got > 20.1 {
		t.Errorf("max_change_percent = %g, want ~20", got)
	}
}

func TestAnomalyAlert(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 0})

	// A mildly jittering baseline of 21 points, then a spike far outside it.
	values := make([]float64, 0, 22)
	for i := 0; i < 21; i++ {
		if i%2 == 0 {
			values = append(values, 1000)
		} else {
			values = append(values, 1010)
		}
	}
	values = append(values, 2000)
	feed(t, m, "ETH-USD", values)

	anomalies := alertsOfType(drainAlerts(out), domain.AlertAnomaly)
	if len(anomalies) != 1 {
		t.Fatalf("got %d anomaly alerts, want 1", len(anomalies))
	}
	if z := anomalies[0].Metrics["z_score"]; z <= 2 {
		t.Errorf("z_score = %g, want > 2", z)
	}
	if anomalies[0].Severity != domain.SeverityMedium {
		t.Errorf("Severity = %q, want %q", anomalies[0].Severity, domain.SeverityMedium)
	}
}

func TestHistoryCapacityEviction(t *testing.T) {
	m, out := newTestMonitor(Config{HistoryCapacity: 5})
	defer drainAlerts(out)

	feed(t, m, "ETH-USD", []float64{1, 2, 3, 4, 5, 6, 7})

	hist := m.History("ETH-USD")
	if len(hist) != 5 {
		t.Fatalf("history length = %d, want 5", len(hist))
	}
	if hist[0].Liquidity != 3 || hist[4].Liquidity != 7 {
		t.Fatalf("history = %v, want oldest points evicted", hist)
	}
}

func TestUpdateFallsBackToClock(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 0})
	defer drainAlerts(out)

	m.Update(t.Context(), domain.ReserveSnapshot{Instrument: "ETH-USD", Liquidity: 100})

	hist := m.History("ETH-USD")
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	if !hist[0].Timestamp.Equal(baseTime) {
		t.Errorf("Timestamp = %v, want clock time %v", hist[0].Timestamp, baseTime)
	}
}

func TestRecentAlertsNewestFirst(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 1000})

	feed(t, m, "A", []float64{1})
	feed(t, m, "B", []float64{2})
	feed(t, m, "C", []float64{3})
	drainAlerts(out)

	recent := m.RecentAlerts(2)
	if len(recent) != 2 {
		t.Fatalf("got %d alerts, want 2", len(recent))
	}
	if recent[0].Instrument != "C" || recent[1].Instrument != "B" {
		t.Fatalf("order = %q, %q, want newest first", recent[0].Instrument, recent[1].Instrument)
	}
}

func TestTrendInsufficientHistory(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 0})
	defer drainAlerts(out)

	feed(t, m, "ETH-USD", []float64{1000, 1001, 1002})

	trend := m.Trend("ETH-USD", "5m")
	if trend.Direction != domain.TrendNone {
		t.Fatalf("Direction = %q, want %q", trend.Direction, domain.TrendNone)
	}
}

func TestTrendDirections(t *testing.T) {
	tests := []struct {
		name   string
		values func() []float64
		want   domain.TrendDirection
	}{
		{
			"increasing",
			func() []float64 {
				v := make([]float64, 20)
				for i := range v {
					v[i] = 1000 + float64(i)*10
				}
				return v
			},
			domain.TrendIncreasing,
		},
		{
			"decreasing",
			func() []float64 {
				v := make([]float64, 20)
				for i := range v {
					v[i] = 2000 - float64(i)*10
				}
				return v
			},
			domain.TrendDecreasing,
		},
		{
			"stable",
			func() []float64 {
				v := make([]float64, 20)
				for i := range v {
					v[i] = 1000
				}
				return v
			},
			domain.TrendStable,
		},
		{
			"volatile",
			func() []float64 {
				v := make([]float64, 20)
				for i := range v {
					if i%2 == 0 {
						v[i] = 1000
					} else {
						v[i] = 1300
					}
				}
				return v
			},
			domain.TrendVolatile,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, out := newTestMonitor(Config{DefaultThreshold: 0})
			defer drainAlerts(out)

			feed(t, m, "ETH-USD", tt.values())

			trend := m.Trend("ETH-USD", "")
			if trend.Direction != tt.want {
				t.Fatalf("Direction = %q, want %q (change %.1f%%, confidence %.2f)",
					trend.Direction, tt.want, trend.ChangePercent, trend.Confidence)
			}
		})
	}
}

func TestTrendChangePercentAndConfidence(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 0})
	defer drainAlerts(out)

	values := make([]float64, 20)
	for i := range values {
		values[i] = 1000 + float64(i)*10
	}
	feed(t, m, "ETH-USD", values)

	trend := m.Trend("ETH-USD", "")
	if trend.ChangePercent < 18.9 || trend.ChangePercent > 19.1 {
		t.Errorf("ChangePercent = %g, want ~19", trend.ChangePercent)
	}
	// A perfect linear ramp of 20 points fits exactly and carries the full
	// count factor, bounded by the cap.
	if trend.Confidence < 0.94 || trend.Confidence > 0.95 {
		t.Errorf("Confidence = %g, want ~0.95", trend.Confidence)
	}
	if trend.Points != 20 {
		t.Errorf("Points = %d, want 20", trend.Points)
	}
}

func TestTrendTimeframeWindow(t *testing.T) {
	m, out := newTestMonitor(Config{DefaultThreshold: 0})
	defer drainAlerts(out)

	// Twelve points 30s apart; only the last three fall inside the final
	// minute, too few for classification.
	for i := 0; i < 12; i++ {
		m.Update(t.Context(), domain.ReserveSnapshot{
			Instrument: "ETH-USD",
			Liquidity:  1000 + float64(i),
			Timestamp:  baseTime.Add(time.Duration(i-11) * 30 * time.Second),
		})
	}

	trend := m.Trend("ETH-USD", "1m")
	if trend.Direction != domain.TrendNone {
		t.Fatalf("Direction = %q, want %q", trend.Direction, domain.TrendNone)
	}
	if trend.Points != 3 {
		t.Fatalf("Points = %d, want 3", trend.Points)
	}
}
