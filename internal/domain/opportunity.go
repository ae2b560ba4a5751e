package domain

import (
	"fmt"
	"time"
)

// CostBreakdown itemizes the estimated round-trip cost of taking both legs of
// a cross-venue trade. All components are non-negative.
type CostBreakdown struct {
	BuyFee        float64
	SellFee       float64
	BuySlippage   float64
	SellSlippage  float64
	Gas           float64
	ProtocolFee   float64
	ProtectionFee float64
}

// Total returns the sum of all cost components.
func (c CostBreakdown) Total() float64 {
	return c.BuyFee + c.SellFee + c.BuySlippage + c.SellSlippage +
		c.Gas + c.ProtocolFee + c.ProtectionFee
}

// ArbitrageOpportunity is a detected cross-venue spread that remains
// profitable after estimated costs. It is emitted once and not retained by
// the engine; consumers own the record.
type ArbitrageOpportunity struct {
	ID         string
	Pair       string // "<instrument>:<buyVenue>-><sellVenue>"
	Instrument string
	BuyVenue   string
	SellVenue  string
	BuyPrice   float64
	SellPrice  float64

	ProfitPercent float64 // net profit as a percentage of the buy price
	NetProfit     float64
	Costs         CostBreakdown

	LiquidityScore       float64 // [0,1]
	ExecutionProbability float64 // [0,1]
	Confidence           float64 // [0,1], executionProbability * liquidityScore

	MinTradeSize float64
	MaxTradeSize float64

	// Oracle carries advisory consensus validation metadata when an oracle
	// validator is configured. A failing validation does not suppress the
	// opportunity.
	Oracle *ValidationResult

	DetectedAt time.Time
}

// DedupeKey buckets the opportunity by pair, direction, and a one-second
// timestamp bucket. Reactive and periodic scans that fire in quick succession
// produce the same key, so downstream consumers can collapse duplicates.
func (o ArbitrageOpportunity) DedupeKey() string {
	return fmt.Sprintf("%s|%s|%s|%d",
		o.Instrument, o.BuyVenue, o.SellVenue, o.DetectedAt.Unix())
}
