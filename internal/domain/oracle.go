package domain

import "time"

// OraclePrice is one oracle source's reading for one asset. It is supplied by
// the external oracle feed and superseded by the source's next reading.
type OraclePrice struct {
	Source             string
	Asset              string
	Price              float64
	ConfidenceInterval float64
	Timestamp          time.Time
	Live               bool
}

// Weight returns the reading's consensus weight, 1 - confidenceInterval/price.
// Degenerate readings (zero price, interval wider than the price) weigh 0.
func (p OraclePrice) Weight() float64 {
	if p.Price <= 0 {
		return 0
	}
	w := 1 - p.ConfidenceInterval/p.Price
	if w < 0 {
		return 0
	}
	return w
}

// ConsensusPrice is the confidence-weighted combination of the currently
// available oracle readings for one asset. It is recomputed on demand.
type ConsensusPrice struct {
	Asset      string
	Price      float64
	Confidence float64 // [0,1]
	Agreement  float64 // [0,1], 1 - max relative deviation from consensus
	Sources    int
	ComputedAt time.Time
}

// ValidationResult is the outcome of comparing a candidate price to the
// oracle consensus. Failing validations are returned as structured results,
// never as errors; validation is advisory.
type ValidationResult struct {
	Valid      bool
	Confidence float64 // [0,1]
	Deviation  float64 // relative deviation of candidate from consensus
	Staleness  time.Duration
	Reason     string // populated when Valid is false
}
