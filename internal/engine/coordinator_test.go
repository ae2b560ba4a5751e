package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openarb/venuewatch/internal/cache/memory"
	"github.com/openarb/venuewatch/internal/costs"
	"github.com/openarb/venuewatch/internal/detector"
	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/liquidity"
	"github.com/openarb/venuewatch/internal/oracle"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	coord     *Coordinator
	cache     *memory.ObservationCache
	validator *oracle.Validator
	oppCh     chan domain.ArbitrageOpportunity
	alertCh   chan domain.LiquidityAlert
}

func newTestEngine(t *testing.T, cfg Config, clock domain.Clock) *testEngine {
	t.Helper()
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = time.Hour
	}
	if cfg.EventBufferSize == 0 {
		cfg.EventBufferSize = 8
	}

	logger := testLogger()
	cache := memory.NewObservationCache()
	validator := oracle.NewValidator(oracle.Config{MaxDeviationPercent: 1, MaxAge: time.Hour}, clock, logger)

	oppCh := make(chan domain.ArbitrageOpportunity, 16)
	alertCh := make(chan domain.LiquidityAlert, 16)

	model := costs.NewModel(costs.Config{}, clock)
	det := detector.New(cache, model, nil, detector.Config{
		MinProfitPercent: 0.1,
		RescanInterval:   time.Hour,
	}, oppCh, clock, logger)
	mon := liquidity.NewMonitor(liquidity.Config{DefaultThreshold: 100}, alertCh, clock, logger)

	coord := New(cfg, Deps{
		Cache:         cache,
		Detector:      det,
		Monitor:       mon,
		Validator:     validator,
		Opportunities: oppCh,
		Alerts:        alertCh,
	}, clock, logger)

	return &testEngine{coord: coord, cache: cache, validator: validator, oppCh: oppCh, alertCh: alertCh}
}

func waitForEvent(t *testing.T, ch <-chan Event, wantType string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed while waiting")
			}
			if ev.Type == wantType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", wantType)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e := newTestEngine(t, Config{}, nil)
	ctx := t.Context()

	if e.coord.Running() {
		t.Fatal("running before Start")
	}
	if err := e.coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.coord.Running() {
		t.Fatal("not running after Start")
	}
	// Second Start is a logged no-op.
	if err := e.coord.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	e.coord.Stop()
	if e.coord.Running() {
		t.Fatal("running after Stop")
	}
	// Second Stop is a logged no-op.
	e.coord.Stop()
}

func TestIngestIgnoredWhenStopped(t *testing.T) {
	e := newTestEngine(t, Config{}, nil)
	ctx := t.Context()

	e.coord.IngestObservation(ctx, domain.PriceObservation{
		Venue: "alpha", Instrument: "ETH-USD", Price: 100, ObservedAt: time.Now(),
	})
	if e.cache.Len() != 0 {
		t.Fatal("observation cached while coordinator stopped")
	}

	e.coord.IngestOraclePrice(ctx, domain.OraclePrice{
		Source: "pyth", Asset: "ETH", Price: 2000, Timestamp: time.Now(), Live: true,
	})
	if e.validator.Sources() != 0 {
		t.Fatal("oracle reading accepted while coordinator stopped")
	}
}

func TestObservationTriggersDetection(t *testing.T) {
	e := newTestEngine(t, Config{}, nil)
	ctx := t.Context()

	if err := e.coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.coord.Stop()

	events, cancel := e.coord.Subscribe()
	defer cancel()

	now := time.Now()
	e.coord.IngestObservation(ctx, domain.PriceObservation{
		Venue: "alpha", Instrument: "ETH-USD", Price: 100, Liquidity: 20_000_000, ObservedAt: now,
	})
	e.coord.IngestObservation(ctx, domain.PriceObservation{
		Venue: "beta", Instrument: "ETH-USD", Price: 102, Liquidity: 20_000_000, ObservedAt: now,
	})

	ev := waitForEvent(t, events, domain.EventOpportunity)
	if ev.Opportunity == nil {
		t.Fatal("opportunity event carries no payload")
	}
	if ev.Opportunity.BuyVenue != "alpha" || ev.Opportunity.SellVenue != "beta" {
		t.Fatalf("legs = %q -> %q", ev.Opportunity.BuyVenue, ev.Opportunity.SellVenue)
	}

	stats := e.coord.Stats()
	if stats.EventCounts[domain.EventObservation] != 2 {
		t.Errorf("observation count = %d, want 2", stats.EventCounts[domain.EventObservation])
	}
	if stats.EventCounts[domain.EventOpportunity] == 0 {
		t.Error("opportunity count is zero after an emitted event")
	}
}

func TestReservesReachLiquidityMonitor(t *testing.T) {
	e := newTestEngine(t, Config{}, nil)
	ctx := t.Context()

	if err := e.coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.coord.Stop()

	events, cancel := e.coord.Subscribe()
	defer cancel()

	// Below the monitor's default threshold of 100.
	e.coord.IngestReserves(ctx, domain.ReserveSnapshot{
		Instrument: "ETH-USD", Liquidity: 50, Timestamp: time.Now(),
	})

	ev := waitForEvent(t, events, domain.EventLiquidityAlert)
	if ev.LiquidityAlert == nil || ev.LiquidityAlert.Type != domain.AlertLowLiquidity {
		t.Fatalf("event = %+v, want low_liquidity alert", ev)
	}
}

func TestRelayDedupesOpportunities(t *testing.T) {
	e := newTestEngine(t, Config{DedupeTTL: time.Minute}, nil)
	ctx := t.Context()

	if err := e.coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.coord.Stop()

	events, cancel := e.coord.Subscribe()
	defer cancel()

	opp := domain.ArbitrageOpportunity{
		ID: "1", Instrument: "ETH-USD", BuyVenue: "alpha", SellVenue: "beta",
		DetectedAt: time.Now(),
	}
	e.oppCh <- opp
	e.oppCh <- opp

	waitForEvent(t, events, domain.EventOpportunity)
	select {
	case ev := <-events:
		t.Fatalf("duplicate emission relayed: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	e := newTestEngine(t, Config{}, nil)

	events, cancel := e.coord.Subscribe()
	cancel()
	if _, ok := <-events; ok {
		t.Fatal("channel still open after cancel")
	}
	// Second cancel is a no-op.
	cancel()
}

func TestStopClosesSubscribers(t *testing.T) {
	e := newTestEngine(t, Config{}, nil)
	ctx := t.Context()

	if err := e.coord.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	events, _ := e.coord.Subscribe()

	e.coord.Stop()
	for {
		if _, ok := <-events; !ok {
			return
		}
	}
}

func TestFanOutDropsWhenSubscriberFull(t *testing.T) {
	e := newTestEngine(t, Config{EventBufferSize: 1}, nil)

	events, cancel := e.coord.Subscribe()
	defer cancel()

	e.coord.fanOut(Event{Type: "first"})
	e.coord.fanOut(Event{Type: "second"})

	if ev := <-events; ev.Type != "first" {
		t.Fatalf("got %q, want first", ev.Type)
	}
	select {
	case ev := <-events:
		t.Fatalf("overflow event delivered: %+v", ev)
	default:
	}
}

func TestStatsHealthClassification(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := fixedClock{t: now}
	e := newTestEngine(t, Config{ObservationMaxAge: time.Minute}, clock)

	// Stopped coordinator: no oracle sources and no liquidity loop.
	stats := e.coord.Stats()
	if stats.Health != domain.HealthCritical {
		t.Fatalf("Health = %q with issues %v, want critical", stats.Health, stats.Issues)
	}
	if stats.Running {
		t.Error("Running = true for stopped coordinator")
	}
	if len(stats.Issues) != 2 {
		t.Fatalf("issues = %v, want 2", stats.Issues)
	}

	// One issue resolved: health degrades to warning only.
	e.validator.SetReading(domain.OraclePrice{
		Source: "pyth", Asset: "ETH", Price: 2000, Timestamp: now, Live: true,
	})
	stats = e.coord.Stats()
	if stats.Health != domain.HealthWarning {
		t.Fatalf("Health = %q with issues %v, want warning", stats.Health, stats.Issues)
	}

	// A stale observation adds the feed issue back.
	e.cache.Put(domain.PriceObservation{
		Venue: "alpha", Instrument: "ETH-USD", Price: 100, ObservedAt: now.Add(-2 * time.Minute),
	})
	stats = e.coord.Stats()
	if stats.Health != domain.HealthCritical {
		t.Fatalf("Health = %q with issues %v, want critical", stats.Health, stats.Issues)
	}
	if !stats.Components["oracle_validator"] {
		t.Error("oracle_validator component not live despite a reading")
	}
	if stats.Components["detector"] {
		t.Error("detector component live for stopped coordinator")
	}
}
