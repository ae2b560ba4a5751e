// Package oracle combines independent oracle readings into a consensus price
// per asset and validates candidate prices against it. Validation is
// advisory: failures are returned as structured results, never as errors, and
// never suppress an already-detected opportunity.
package oracle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// Config holds validation thresholds.
type Config struct {
	// MaxDeviationPercent is the relative deviation threshold, in percent.
	// A deviation exactly equal to the threshold passes (inclusive).
	MaxDeviationPercent float64
	// MaxAge is the oldest a consensus may be before validation fails stale.
	MaxAge time.Duration
	// StalenessDecay is the age beyond which confidence starts decaying.
	StalenessDecay time.Duration
}

// Validator holds the latest reading per (asset, source) and answers
// consensus and validation queries on demand. It depends on nothing else in
// the engine.
type Validator struct {
	mu       sync.RWMutex
	readings map[string]map[string]domain.OraclePrice // asset -> source -> reading

	cfg    Config
	clock  domain.Clock
	logger *slog.Logger
}

// NewValidator creates a Validator. A nil clock defaults to the wall clock.
func NewValidator(cfg Config, clock domain.Clock, logger *slog.Logger) *Validator {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Validator{
		readings: make(map[string]map[string]domain.OraclePrice),
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With(slog.String("component", "oracle_validator")),
	}
}

// SetReading stores an oracle source's latest reading for an asset,
// superseding the source's previous one.
func (v *Validator) SetReading(reading domain.OraclePrice) {
	v.mu.Lock()
	defer v.mu.Unlock()

	bySource := v.readings[reading.Asset]
	if bySource == nil {
		bySource = make(map[string]domain.OraclePrice)
		v.readings[reading.Asset] = bySource
	}
	bySource[reading.Source] = reading
}

// Sources returns the number of distinct oracle sources currently holding a
// live reading for any asset. The coordinator treats zero as unhealthy.
func (v *Validator) Sources() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, bySource := range v.readings {
		for source, reading := range bySource {
			if reading.Live {
				seen[source] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Consensus computes the current consensus for an asset from its live
// readings. ok is false when no readings are available.
func (v *Validator) Consensus(asset string) (domain.ConsensusPrice, bool) {
	v.mu.RLock()
	bySource := v.readings[asset]
	readings := make([]domain.OraclePrice, 0, len(bySource))
	for _, r := range bySource {
		if r.Live {
			readings = append(readings, r)
		}
	}
	v.mu.RUnlock()

	if len(readings) == 0 {
		return domain.ConsensusPrice{Asset: asset}, false
	}
	consensus := Consensus(readings)
	consensus.Asset = asset
	return consensus, true
}

// Consensus combines zero or more oracle readings into a consensus price.
// With no readings it returns a degenerate zero-price, zero-confidence
// result. A single reading passes through unchanged with agreement 1. With
// multiple readings each is weighted by 1 - confidenceInterval/price; the
// consensus price is the weighted average, agreement is 1 minus the maximum
// relative deviation from it, and confidence is the average weight scaled by
// agreement.
func Consensus(readings []domain.OraclePrice) domain.ConsensusPrice {
	switch len(readings) {
	case 0:
		return domain.ConsensusPrice{}
	case 1:
		r := readings[0]
		return domain.ConsensusPrice{
			Price:      r.Price,
			Confidence: r.Weight(),
			Agreement:  1,
			Sources:    1,
			ComputedAt: r.Timestamp,
		}
	}

	var weightSum, weightedPrice, priceSum float64
	newest := readings[0].Timestamp
	for _, r := range readings {
		w := r.Weight()
		weightSum += w
		weightedPrice += w * r.Price
		priceSum += r.Price
		if r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}

	var price float64
	if weightSum > 0 {
		price = weightedPrice / weightSum
	} else {
		// All readings degenerate; fall back to the plain mean with zero
		// confidence so callers still see a price.
		price = priceSum / float64(len(readings))
	}

	agreement := 1.0
	if price > 0 {
		var maxDev float64
		for _, r := range readings {
			dev := relDeviation(r.Price, price)
			if dev > maxDev {
				maxDev = dev
			}
		}
		agreement = clamp01(1 - maxDev)
	}

	avgWeight := weightSum / float64(len(readings))
	return domain.ConsensusPrice{
		Price:      price,
		Confidence: clamp01(avgWeight * agreement),
		Agreement:  agreement,
		Sources:    len(readings),
		ComputedAt: newest,
	}
}

// Validate compares a candidate price against the asset's current consensus.
// It fails with reason "no oracle price" when no readings exist and "stale"
// when the consensus is older than MaxAge. Otherwise it passes iff the
// relative deviation is at or below the threshold (inclusive at the
// boundary).
func (v *Validator) Validate(candidatePrice float64, asset string) domain.ValidationResult {
	consensus, ok := v.Consensus(asset)
	if !ok {
		return domain.ValidationResult{Valid: false, Reason: "no oracle price"}
	}

	staleness := v.clock.Now().Sub(consensus.ComputedAt)
	if staleness > v.cfg.MaxAge {
		return domain.ValidationResult{
			Valid:     false,
			Staleness: staleness,
			Reason:    "stale",
		}
	}

	deviation := relDeviation(candidatePrice, consensus.Price)
	threshold := v.cfg.MaxDeviationPercent / 100

	confidence := 1 - deviation - (1 - consensus.Confidence)
	if v.cfg.StalenessDecay > 0 && staleness > v.cfg.StalenessDecay {
		// Older consensus is worth proportionally less.
		confidence *= float64(v.cfg.StalenessDecay) / float64(staleness)
	}

	result := domain.ValidationResult{
		Valid:      deviation <= threshold,
		Confidence: clamp01(confidence),
		Deviation:  deviation,
		Staleness:  staleness,
	}
	if !result.Valid {
		result.Reason = "deviation exceeds threshold"
	}
	return result
}

func relDeviation(candidate, reference float64) float64 {
	if reference <= 0 {
		return 0
	}
	dev := (candidate - reference) / reference
	if dev < 0 {
		dev = -dev
	}
	return dev
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
