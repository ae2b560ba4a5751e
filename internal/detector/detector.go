// Package detector implements cross-venue arbitrage opportunity detection.
// The detector scans the observation cache reactively on every update and on
// a fixed rescan timer, prices both legs through the cost model, scores
// execution probability and liquidity, and emits opportunities that clear the
// configured profit threshold.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openarb/venuewatch/internal/costs"
	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/oracle"
)

const (
	// baseExecutionProbability is the starting point before the liquidity,
	// slippage, staleness, and venue reliability factors are applied.
	baseExecutionProbability = 0.85

	// defaultReliability is used for venues missing from the reliability table.
	defaultReliability = 0.95

	// minTradeFloor is the fixed lower bound on the minimum trade size, in
	// the instrument's normalized value unit.
	minTradeFloor = 100.0

	// liquidityScoreScale normalizes average liquidity into [0,1].
	liquidityScoreScale = 10_000_000.0
)

// Config holds the detector's tunables.
type Config struct {
	MinProfitPercent float64
	RescanInterval   time.Duration
	// Reliability maps venue name to its static reliability factor.
	Reliability map[string]float64
}

// Detector consumes the observation cache and the cost model and emits
// arbitrage opportunities on the out channel. It never blocks scan progress
// on a single bad pair: evaluation failures are logged and skipped.
type Detector struct {
	cache     domain.ObservationCache
	model     *costs.Model
	validator *oracle.Validator // optional, attaches advisory metadata
	cfg       Config
	out       chan<- domain.ArbitrageOpportunity
	clock     domain.Clock
	logger    *slog.Logger
}

// New creates a Detector. The validator may be nil, in which case emitted
// opportunities carry no oracle metadata. A nil clock defaults to the wall
// clock.
func New(
	cache domain.ObservationCache,
	model *costs.Model,
	validator *oracle.Validator,
	cfg Config,
	out chan<- domain.ArbitrageOpportunity,
	clock domain.Clock,
	logger *slog.Logger,
) *Detector {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Detector{
		cache:     cache,
		model:     model,
		validator: validator,
		cfg:       cfg,
		out:       out,
		clock:     clock,
		logger:    logger.With(slog.String("component", "detector")),
	}
}

// Run drives the periodic rescan timer. It blocks until ctx is cancelled.
// Reactive scans are triggered separately through OnObservation.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.RescanInterval)
	defer ticker.Stop()

	d.logger.Info("detector started",
		slog.Duration("rescan_interval", d.cfg.RescanInterval),
		slog.Float64("min_profit_percent", d.cfg.MinProfitPercent),
	)
	defer d.logger.Info("detector stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.ScanAll(ctx)
		}
	}
}

// OnObservation is the reactive trigger: it rescans the updated observation's
// instrument immediately. The same pair may be evaluated again by the next
// periodic scan; duplicate emissions carry the same dedupe key.
func (d *Detector) OnObservation(ctx context.Context, obs domain.PriceObservation) {
	d.scanInstrument(ctx, obs.Instrument)
}

// ScanAll evaluates every unordered pair of distinct venues for every
// instrument currently in the cache.
func (d *Detector) ScanAll(ctx context.Context) {
	byInstrument := make(map[string][]domain.PriceObservation)
	for _, obs := range d.cache.Snapshot() {
		byInstrument[obs.Instrument] = append(byInstrument[obs.Instrument], obs)
	}
	for _, group := range byInstrument {
		d.scanGroup(ctx, group)
	}
}

func (d *Detector) scanInstrument(ctx context.Context, instrument string) {
	var group []domain.PriceObservation
	for _, obs := range d.cache.Snapshot() {
		if obs.Instrument == instrument {
			group = append(group, obs)
		}
	}
	d.scanGroup(ctx, group)
}

func (d *Detector) scanGroup(ctx context.Context, group []domain.PriceObservation) {
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			opp, err := d.evaluatePairSafe(group[i], group[j])
			if err != nil {
				d.logger.Warn("pair evaluation failed",
					slog.String("instrument", group[i].Instrument),
					slog.String("venue_a", group[i].Venue),
					slog.String("venue_b", group[j].Venue),
					slog.String("error", err.Error()),
				)
				continue
			}
			if opp == nil {
				continue
			}
			select {
			case d.out <- *opp:
			case <-ctx.Done():
				return
			}
		}
	}
}

// evaluatePairSafe isolates a single pair's evaluation: a panic inside the
// scoring math is converted to an error so the rest of the scan continues.
func (d *Detector) evaluatePairSafe(a, b domain.PriceObservation) (opp *domain.ArbitrageOpportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			opp = nil
			err = fmt.Errorf("evaluate pair: %v", r)
		}
	}()
	return d.EvaluatePair(a, b), nil
}

// EvaluatePair evaluates one unordered venue pair for the same instrument and
// returns an opportunity when the spread survives estimated costs and the
// profit threshold, or nil otherwise. Same-venue pairs never produce a
// result.
func (d *Detector) EvaluatePair(a, b domain.PriceObservation) *domain.ArbitrageOpportunity {
	if a.Venue == b.Venue {
		return nil
	}

	buy, sell := a, b
	if sell.Price < buy.Price {
		buy, sell = sell, buy
	}

	delta := sell.Price - buy.Price
	breakdown := d.model.Estimate(buy, sell)
	netProfit := delta - breakdown.Total()
	if netProfit <= 0 {
		return nil
	}

	profitPercent := netProfit / buy.Price * 100
	if profitPercent < d.cfg.MinProfitPercent {
		return nil
	}

	now := d.clock.Now()

	execProb := d.executionProbability(buy, sell, now)
	liqScore := liquidityScore(buy.Liquidity, sell.Liquidity)

	minLiq := minFloat(buy.Liquidity, sell.Liquidity)
	minSize := maxFloat(minTradeFloor, 0.001*minLiq)
	maxSize := 0.05 * minLiq

	opp := domain.ArbitrageOpportunity{
		ID:         uuid.Must(uuid.NewRandom()).String(),
		Pair:       fmt.Sprintf("%s:%s->%s", buy.Instrument, buy.Venue, sell.Venue),
		Instrument: buy.Instrument,
		BuyVenue:   buy.Venue,
		SellVenue:  sell.Venue,
		BuyPrice:   buy.Price,
		SellPrice:  sell.Price,

		ProfitPercent: profitPercent,
		NetProfit:     netProfit,
		Costs:         breakdown,

		LiquidityScore:       liqScore,
		ExecutionProbability: execProb,
		Confidence:           execProb * liqScore,

		MinTradeSize: minSize,
		MaxTradeSize: maxSize,

		DetectedAt: now,
	}

	if d.validator != nil {
		// Advisory only: a failing validation is attached as metadata and
		// does not suppress the opportunity.
		result := d.validator.Validate(buy.Price, buy.Instrument)
		opp.Oracle = &result
	}

	return &opp
}

// executionProbability scores the likelihood the opportunity can be realized
// before conditions change. The result is clamped to [0,1].
func (d *Detector) executionProbability(buy, sell domain.PriceObservation, now time.Time) float64 {
	p := baseExecutionProbability

	// Thin books on either side make fills unlikely; very deep ones earn a
	// small bonus.
	minLiq := minFloat(buy.Liquidity, sell.Liquidity)
	switch {
	case minLiq < 100_000:
		p *= 0.5
	case minLiq < 500_000:
		p *= 0.8
	case minLiq >= 5_000_000:
		p *= 1.1
	}

	totalSlippage := costs.SlippageRate(buy.Liquidity) + costs.SlippageRate(sell.Liquidity)
	switch {
	case totalSlippage > 0.01:
		p *= 0.7
	case totalSlippage > 0.005:
		p *= 0.85
	}

	// Quotes captured at different real times are compensated for here, not
	// fenced out.
	staleness := maxDuration(buy.Age(now), sell.Age(now))
	switch {
	case staleness > 10*time.Second:
		p *= 0.6
	case staleness > 5*time.Second:
		p *= 0.8
	}

	p *= d.reliability(buy.Venue)
	p *= d.reliability(sell.Venue)

	return clamp01(p)
}

func (d *Detector) reliability(venue string) float64 {
	if r, ok := d.cfg.Reliability[venue]; ok {
		return r
	}
	return defaultReliability
}

// liquidityScore combines average depth with a penalty for imbalanced books.
func liquidityScore(buyLiq, sellLiq float64) float64 {
	avg := (buyLiq + sellLiq) / 2

	penalty := 1.0
	lo, hi := minFloat(buyLiq, sellLiq), maxFloat(buyLiq, sellLiq)
	if lo > 0 {
		switch ratio := hi / lo; {
		case ratio > 5:
			penalty = 0.5
		case ratio > 3:
			penalty = 0.7
		case ratio > 2:
			penalty = 0.85
		}
	} else if hi > 0 {
		// One side completely dry: maximum imbalance penalty.
		penalty = 0.5
	}

	return clamp01(avg / liquidityScoreScale * penalty)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
