package costs

import (
	"testing"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestSlippageRate(t *testing.T) {
	tests := []struct {
		name      string
		liquidity float64
		want      float64
	}{
		{"deep", 150_000_000, 0.0010},
		{"deep boundary", 100_000_000, 0.0010},
		{"large", 60_000_000, 0.0015},
		{"medium", 10_000_000, 0.0020},
		{"small", 1_000_000, 0.0050},
		{"shallow", 500_000, 0.0100},
		{"zero", 0, 0.0100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SlippageRate(tt.liquidity); got != tt.want {
				t.Fatalf("SlippageRate(%g) = %g, want %g", tt.liquidity, got, tt.want)
			}
		})
	}
}

func TestCongestionMultiplier(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{2, 1.0},
		{7, 1.0},
		{8, 1.2},
		{13, 1.2},
		{14, 1.5},
		{17, 1.5},
		{18, 1.2},
		{21, 1.2},
		{22, 1.0},
	}
	for _, tt := range tests {
		now := time.Date(2025, 3, 10, tt.hour, 30, 0, 0, time.UTC)
		if got := CongestionMultiplier(now); got != tt.want {
			t.Fatalf("CongestionMultiplier(hour=%d) = %g, want %g", tt.hour, got, tt.want)
		}
	}
}

func TestEstimateBreakdown(t *testing.T) {
	// Off-peak so the congestion multiplier is 1.
	clock := fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)}
	m := NewModel(Config{
		FeeRates:        map[string]float64{"alpha": 0.002},
		BaseGasPerTrade: 1000,
		GasUnitPrice:    0.00001,
		ProtocolFeeRate: 0.0001,
		ProtectionFee:   0.05,
	}, clock)

	buy := domain.PriceObservation{Venue: "alpha", Price: 100, Liquidity: 20_000_000}
	sell := domain.PriceObservation{Venue: "beta", Price: 102, Liquidity: 500_000}

	got := m.Estimate(buy, sell)

	if got.BuyFee != 100*0.002 {
		t.Errorf("BuyFee = %g, want %g", got.BuyFee, 100*0.002)
	}
	// Venue beta is missing from the fee table and uses the default rate.
	if got.SellFee != 102*DefaultFeeRate {
		t.Errorf("SellFee = %g, want %g", got.SellFee, 102*DefaultFeeRate)
	}
	if got.BuySlippage != 100*0.0020 {
		t.Errorf("BuySlippage = %g, want %g", got.BuySlippage, 100*0.0020)
	}
	if got.SellSlippage != 102*0.0100 {
		t.Errorf("SellSlippage = %g, want %g", got.SellSlippage, 102*0.0100)
	}
	wantGas := 1000.0 * 2 * 1.0 * 0.00001
	if got.Gas != wantGas {
		t.Errorf("Gas = %g, want %g", got.Gas, wantGas)
	}
	if got.ProtocolFee != (100+102)*0.0001 {
		t.Errorf("ProtocolFee = %g, want %g", got.ProtocolFee, (100+102)*0.0001)
	}
	if got.ProtectionFee != 0.05 {
		t.Errorf("ProtectionFee = %g, want 0.05", got.ProtectionFee)
	}

	sum := got.BuyFee + got.SellFee + got.BuySlippage + got.SellSlippage +
		got.Gas + got.ProtocolFee + got.ProtectionFee
	if got.Total() != sum {
		t.Errorf("Total() = %g, want %g", got.Total(), sum)
	}
}

func TestGasScalesWithCongestion(t *testing.T) {
	cfg := Config{BaseGasPerTrade: 1000, GasUnitPrice: 0.001}

	offPeak := NewModel(cfg, fixedClock{t: time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC)})
	peak := NewModel(cfg, fixedClock{t: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)})

	obs := domain.PriceObservation{Venue: "alpha", Price: 1, Liquidity: 1}
	gasOff := offPeak.Estimate(obs, obs).Gas
	gasPeak := peak.Estimate(obs, obs).Gas

	if gasPeak != gasOff*1.5 {
		t.Fatalf("peak gas = %g, want %g", gasPeak, gasOff*1.5)
	}
}
