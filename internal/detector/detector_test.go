package detector

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/openarb/venuewatch/internal/cache/memory"
	"github.com/openarb/venuewatch/internal/costs"
	"github.com/openarb/venuewatch/internal/domain"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestDetector(t *testing.T, cfg Config, clock domain.Clock) (*Detector, chan domain.ArbitrageOpportunity) {
	t.Helper()
	out := make(chan domain.ArbitrageOpportunity, 16)
	model := costs.NewModel(costs.Config{
		FeeRates: map[string]float64{"alpha": 0.001, "beta": 0.001},
	}, clock)
	d := New(memory.NewObservationCache(), model, nil, cfg, out, clock, testLogger())
	return d, out
}

func TestEvaluatePairSameVenue(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)}
	d, _ := newTestDetector(t, Config{MinProfitPercent: 0.5}, clock)

	a := domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100, Liquidity: 1_000_000, ObservedAt: clock.t}
	b := domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 105, Liquidity: 1_000_000, ObservedAt: clock.t}

	if got := d.EvaluatePair(a, b); got != nil {
		t.Fatalf("same-venue pair produced an opportunity: %+v", got)
	}
}

func TestEvaluatePairProfitable(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)}
	d, _ := newTestDetector(t, Config{MinProfitPercent: 0.5}, clock)

	buy := domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100, Liquidity: 20_000_000, ObservedAt: clock.t}
	sell := domain.PriceObservation{Venue: "beta", Instrument: "ETH-USD", Price: 102, Liquidity: 20_000_000, ObservedAt: clock.t}

	// Argument order must not matter: the cheaper side becomes the buy leg.
	opp := d.EvaluatePair(sell, buy)
	if opp == nil {
		t.Fatal("expected an opportunity, got nil")
	}

	if opp.BuyVenue != "alpha" || opp.SellVenue != "beta" {
		t.Errorf("legs = buy %q sell %q, want buy alpha sell beta", opp.BuyVenue, opp.SellVenue)
	}
	if opp.BuyPrice != 100 || opp.SellPrice != 102 {
		t.Errorf("prices = %g/%g, want 100/102", opp.BuyPrice, opp.SellPrice)
	}
	if opp.Pair != "ETH-USD:alpha->beta" {
		t.Errorf("Pair = %q, want %q", opp.Pair, "ETH-USD:alpha->beta")
	}

	// fee 0.1% per leg, slippage 0.2% per leg, no gas or protocol fees.
	wantCosts := 100*0.001 + 102*0.001 + 100*0.002 + 102*0.002
	wantNet := 2 - wantCosts
	if !almostEqual(opp.NetProfit, wantNet) {
		t.Errorf("NetProfit = %g, want %g", opp.NetProfit, wantNet)
	}
	if !almostEqual(opp.ProfitPercent, wantNet/100*100) {
		t.Errorf("ProfitPercent = %g, want %g", opp.ProfitPercent, wantNet)
	}

	// Deep balanced books score full liquidity and a deep-book bonus on the
	// base probability, scaled by default venue reliability per leg.
	wantProb := 0.85 * 1.1 * 0.95 * 0.95
	if !almostEqual(opp.ExecutionProbability, wantProb) {
		t.Errorf("ExecutionProbability = %g, want %g", opp.ExecutionProbability, wantProb)
	}
	if opp.LiquidityScore != 1 {
		t.Errorf("LiquidityScore = %g, want 1", opp.LiquidityScore)
	}
	if !almostEqual(opp.Confidence, wantProb) {
		t.Errorf("Confidence = %g, want %g", opp.Confidence, wantProb)
	}

	if opp.MinTradeSize != 20_000 {
		t.Errorf("MinTradeSize = %g, want 20000", opp.MinTradeSize)
	}
	if opp.MaxTradeSize != 1_000_000 {
		t.Errorf("MaxTradeSize = %g, want 1000000", opp.MaxTradeSize)
	}
	if opp.ID == "" {
		t.Error("opportunity ID is empty")
	}
	if !opp.DetectedAt.Equal(clock.t) {
		t.Errorf("DetectedAt = %v, want %v", opp.DetectedAt, clock.t)
	}
	if opp.Oracle != nil {
		t.Error("Oracle metadata attached without a validator")
	}
}

func TestEvaluatePairBelowThreshold(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)}
	d, _ := newTestDetector(t, Config{MinProfitPercent: 2.0}, clock)

	buy := domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100, Liquidity: 20_000_000, ObservedAt: clock.t}
	sell := domain.PriceObservation{Venue: "beta", Instrument: "ETH-USD", Price: 102, Liquidity: 20_000_000, ObservedAt: clock.t}

	if got := d.EvaluatePair(buy, sell); got != nil {
		t.Fatalf("spread below the profit threshold produced %+v", got)
	}
}

func TestEvaluatePairCostsSwallowSpread(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)}
	d, _ := newTestDetector(t, Config{MinProfitPercent: 0}, clock)

	// Shallow books carry 1% slippage per leg, more than the 0.2% spread.
	buy := domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100, Liquidity: 50_000, ObservedAt: clock.t}
	sell := domain.PriceObservation{Venue: "beta", Instrument: "ETH-USD", Price: 100.2, Liquidity: 50_000, ObservedAt: clock.t}

	if got := d.EvaluatePair(buy, sell); got != nil {
		t.Fatalf("unprofitable pair produced %+v", got)
	}
}

func TestMinTradeSizeFloor(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)}
	d, _ := newTestDetector(t, Config{MinProfitPercent: 0}, clock)

	// 0.1% of 50k is below the fixed floor.
	buy := domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100, Liquidity: 50_000, ObservedAt: clock.t}
	sell := domain.PriceObservation{Venue: "beta", Instrument: "ETH-USD", Price: 110, Liquidity: 50_000, ObservedAt: clock.t}

	opp := d.EvaluatePair(buy, sell)
	if opp == nil {
		t.Fatal("expected an opportunity, got nil")
	}
	if opp.MinTradeSize != minTradeFloor {
		t.Errorf("MinTradeSize = %g, want %g", opp.MinTradeSize, minTradeFloor)
	}
	if opp.MaxTradeSize != 0.05*50_000 {
		t.Errorf("MaxTradeSize = %g, want %g", opp.MaxTradeSize, 0.05*50_000)
	}
}

func TestExecutionProbabilityStalenessPenalty(t *testing.T) {
	now := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	clock := fixedClock{t: now}
	d, _ := newTestDetector(t, Config{MinProfitPercent: 0}, clock)

	fresh := domain.PriceObservation{Venue: "alpha", Liquidity: 20_000_000, ObservedAt: now}
	tests := []struct {
		name   string
		age    time.Duration
		factor float64
	}{
		{"fresh", 0, 1.0},
		{"slightly stale", 7 * time.Second, 0.8},
		{"stale", 12 * time.Second, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := domain.PriceObservation{Venue: "beta", Liquidity: 20_000_000, ObservedAt: now.Add(-tt.age)}
			got := d.executionProbability(fresh, other, now)
			want := 0.85 * 1.1 * tt.factor * 0.95 * 0.95
			if !almostEqual(got, want) {
				t.Fatalf("executionProbability = %g, want %g", got, want)
			}
		})
	}
}

func TestExecutionProbabilityThinBooks(t *testing.T) {
	now := time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)
	clock := fixedClock{t: now}
	d, _ := newTestDetector(t, Config{MinProfitPercent: 0}, clock)

	// Both sides under 100k: halved base, plus the combined 2% slippage
	// penalty from two shallow books.
	a := domain.PriceObservation{Venue: "alpha", Liquidity: 50_000, ObservedAt: now}
	b := domain.PriceObservation{Venue: "beta", Liquidity: 50_000, ObservedAt: now}

	got := d.executionProbability(a, b, now)
	want := 0.85 * 0.5 * 0.7 * 0.95 * 0.95
	if !almostEqual(got, want) {
		t.Fatalf("executionProbability = %g, want %g", got, want)
	}
}

func TestLiquidityScore(t *testing.T) {
	tests := []struct {
		name string
		buy  float64
		sell float64
		want float64
	}{
		{"balanced deep", 20_000_000, 20_000_000, 1.0},
		{"balanced mid", 5_000_000, 5_000_000, 0.5},
		{"mild imbalance", 4_000_000, 10_000_000, 0.7 * 0.85},
		{"severe imbalance", 1_000_000, 10_000_000, 0.55 * 0.5},
		{"one side dry", 0, 10_000_000, 0.5 * 0.5},
		{"both dry", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := liquidityScore(tt.buy, tt.sell); !almostEqual(got, tt.want) {
				t.Fatalf("liquidityScore(%g, %g) = %g, want %g", tt.buy, tt.sell, got, tt.want)
			}
		})
	}
}

func TestScanAllEmitsProfitablePairs(t *testing.T) {
	clock := fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)}
	out := make(chan domain.ArbitrageOpportunity, 16)
	model := costs.NewModel(costs.Config{
		FeeRates: map[string]float64{"alpha": 0.001, "beta": 0.001},
	}, clock)
	cache := memory.NewObservationCache()
	d := New(cache, model, nil, Config{MinProfitPercent: 0.5}, out, clock, testLogger())

	cache.Put(domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100, Liquidity: 20_000_000, ObservedAt: clock.t})
	cache.Put(domain.PriceObservation{Venue: "beta", Instrument: "ETH-USD", Price: 102, Liquidity: 20_000_000, ObservedAt: clock.t})
	// Different instrument, no counterpart: never paired.
	cache.Put(domain.PriceObservation{Venue: "alpha", Instrument: "BTC-USD", Price: 50_000, Liquidity: 20_000_000, ObservedAt: clock.t})

	d.ScanAll(t.Context())

	select {
	case opp := <-out:
		if opp.Instrument != "ETH-USD" {
			t.Fatalf("emitted instrument = %q, want ETH-USD", opp.Instrument)
		}
	default:
		t.Fatal("expected one emitted opportunity")
	}
	select {
	case opp := <-out:
		t.Fatalf("unexpected second emission: %+v", opp)
	default:
	}
}
