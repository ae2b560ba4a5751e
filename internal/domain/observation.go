// Package domain defines the core entities and interfaces of the venuewatch
// engine: price observations, arbitrage opportunities, liquidity analytics,
// oracle consensus, and the cache/store/bus contracts implemented by the
// infrastructure packages.
package domain

import "time"

// PriceObservation is one venue's latest quote for one instrument. It is
// immutable; a newer observation for the same (venue, instrument) key
// supersedes it rather than mutating it.
type PriceObservation struct {
	Venue      string
	Instrument string
	Price      float64
	Liquidity  float64 // depth proxy in the instrument's normalized value unit
	Volume     float64
	ObservedAt time.Time

	// Seq is assigned by the observation cache on Put. It increases
	// monotonically per (venue, instrument) key so consumers can detect
	// out-of-order delivery from the upstream feed.
	Seq uint64
}

// Key returns the cache key for this observation.
func (o PriceObservation) Key() ObservationKey {
	return ObservationKey{Venue: o.Venue, Instrument: o.Instrument}
}

// Age returns how stale the observation is relative to now.
func (o PriceObservation) Age(now time.Time) time.Duration {
	return now.Sub(o.ObservedAt)
}

// ObservationKey identifies the (venue, instrument) pair an observation
// belongs to.
type ObservationKey struct {
	Venue      string
	Instrument string
}

// ReserveSnapshot carries the two reserve sides of a pool alongside the
// headline liquidity figure. The liquidity monitor derives utilization from
// the imbalance between the two sides.
type ReserveSnapshot struct {
	Instrument string
	Liquidity  float64
	ValueA     float64
	ValueB     float64
	Volume     float64
	Timestamp  time.Time
}

// Utilization returns 1 - |valueA-valueB|/(valueA+valueB), a [0,1] measure of
// how balanced the pool is. A zero-sum pool yields 0.
func (r ReserveSnapshot) Utilization() float64 {
	total := r.ValueA + r.ValueB
	if total <= 0 {
		return 0
	}
	diff := r.ValueA - r.ValueB
	if diff < 0 {
		diff = -diff
	}
	return 1 - diff/total
}
