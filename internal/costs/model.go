// Package costs implements the trading cost model used by the opportunity
// detector. Estimation is a pure computation over two observations; the model
// holds only static lookup tables taken from configuration.
package costs

import (
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// DefaultFeeRate is applied for venues missing from the fee table (0.30%).
const DefaultFeeRate = 0.003

// Slippage tiers keyed on liquidity in the instrument's normalized value
// unit. Zero liquidity lands in the highest tier rather than erroring.
const (
	slippageDeep    = 0.0010 // liquidity >= 100M
	slippageLarge   = 0.0015 // liquidity >= 50M
	slippageMedium  = 0.0020 // liquidity >= 10M
	slippageSmall   = 0.0050 // liquidity >= 1M
	slippageShallow = 0.0100 // everything below
)

// Congestion multipliers by UTC time of day.
const (
	peakMultiplier     = 1.5 // 14:00-18:00 UTC
	businessMultiplier = 1.2 // 08:00-22:00 UTC
	offPeakMultiplier  = 1.0
)

// Config holds the static inputs of the cost model.
type Config struct {
	// FeeRates maps venue name to its swap fee rate. Unknown venues use
	// DefaultFeeRate.
	FeeRates map[string]float64

	BaseGasPerTrade float64 // gas units for a single leg
	GasUnitPrice    float64 // reference price per gas unit
	ProtocolFeeRate float64 // per-side protocol fee as a rate on price
	ProtectionFee   float64 // fixed MEV-protection fee per opportunity
}

// Model estimates the full cost of taking both legs of a cross-venue trade.
// Estimate never fails for finite, non-negative inputs.
type Model struct {
	cfg   Config
	clock domain.Clock
}

// NewModel creates a Model. A nil clock defaults to the wall clock; tests
// inject a fixed clock to pin the congestion window.
func NewModel(cfg Config, clock domain.Clock) *Model {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Model{cfg: cfg, clock: clock}
}

// Estimate returns the cost breakdown for buying on buy's venue and selling
// on sell's venue.
func (m *Model) Estimate(buy, sell domain.PriceObservation) domain.CostBreakdown {
	return domain.CostBreakdown{
		BuyFee:        buy.Price * m.feeRate(buy.Venue),
		SellFee:       sell.Price * m.feeRate(sell.Venue),
		BuySlippage:   buy.Price * SlippageRate(buy.Liquidity),
		SellSlippage:  sell.Price * SlippageRate(sell.Liquidity),
		Gas:           m.gasEstimate(),
		ProtocolFee:   (buy.Price + sell.Price) * m.cfg.ProtocolFeeRate,
		ProtectionFee: m.cfg.ProtectionFee,
	}
}

func (m *Model) feeRate(venue string) float64 {
	if rate, ok := m.cfg.FeeRates[venue]; ok {
		return rate
	}
	return DefaultFeeRate
}

// gasEstimate covers both legs, scaled by the current congestion window.
func (m *Model) gasEstimate() float64 {
	return m.cfg.BaseGasPerTrade * 2 * CongestionMultiplier(m.clock.Now()) * m.cfg.GasUnitPrice
}

// SlippageRate returns the expected price-impact rate for the given
// liquidity. The step function is monotonically non-increasing in liquidity.
func SlippageRate(liquidity float64) float64 {
	switch {
	case liquidity >= 100_000_000:
		return slippageDeep
	case liquidity >= 50_000_000:
		return slippageLarge
	case liquidity >= 10_000_000:
		return slippageMedium
	case liquidity >= 1_000_000:
		return slippageSmall
	default:
		return slippageShallow
	}
}

// CongestionMultiplier returns the gas congestion factor for the given wall
// time. Peak trading hours (14:00-18:00 UTC) carry the highest multiplier,
// the extended business window (08:00-22:00 UTC) a moderate one.
func CongestionMultiplier(now time.Time) float64 {
	hour := now.UTC().Hour()
	switch {
	case hour >= 14 && hour < 18:
		return peakMultiplier
	case hour >= 8 && hour < 22:
		return businessMultiplier
	default:
		return offPeakMultiplier
	}
}
