package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/engine"
)

// Relay consumes coordinator events and turns them into notifications.
// Opportunity, liquidity alert, and health alert events each get their own
// rendering; the notifier's event filter decides which of them actually go
// out.
type Relay struct {
	notifier *Notifier
}

// NewRelay creates a Relay delivering through the given notifier.
func NewRelay(notifier *Notifier) *Relay {
	return &Relay{notifier: notifier}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (r *Relay) Run(ctx context.Context, events <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if note, ok := render(ev); ok {
				_ = r.notifier.Notify(ctx, note)
			}
		}
	}
}

// render maps one coordinator event to its notification. ok is false for
// events carrying no payload.
func render(ev engine.Event) (Notification, bool) {
	switch {
	case ev.Opportunity != nil:
		return renderOpportunity(*ev.Opportunity), true
	case ev.LiquidityAlert != nil:
		return renderLiquidityAlert(*ev.LiquidityAlert), true
	case ev.HealthAlert != nil:
		return renderHealthAlert(*ev.HealthAlert), true
	}
	return Notification{}, false
}

func renderOpportunity(opp domain.ArbitrageOpportunity) Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "Buy %s @ %.6f, sell %s @ %.6f\n",
		opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice)
	fmt.Fprintf(&b, "Net profit: %.4f (costs %.4f)\n", opp.NetProfit, opp.Costs.Total())
	fmt.Fprintf(&b, "Confidence: %.0f%%, size %.0f-%.0f",
		opp.Confidence*100, opp.MinTradeSize, opp.MaxTradeSize)
	if opp.Oracle != nil && !opp.Oracle.Valid {
		fmt.Fprintf(&b, "\nOracle check failed: %s", opp.Oracle.Reason)
	}

	return Notification{
		Event:    domain.EventOpportunity,
		Severity: domain.SeverityLow,
		Title:    fmt.Sprintf("Arbitrage: %s +%.2f%%", opp.Instrument, opp.ProfitPercent),
		Body:     b.String(),
	}
}

func renderLiquidityAlert(alert domain.LiquidityAlert) Notification {
	return Notification{
		Event:    domain.EventLiquidityAlert,
		Severity: alert.Severity,
		Title:    fmt.Sprintf("Liquidity %s: %s (%s)", alert.Severity, alert.Instrument, alert.Type),
		Body:     alert.Message,
	}
}

func renderHealthAlert(alert domain.HealthAlert) Notification {
	return Notification{
		Event:    domain.EventHealthAlert,
		Severity: alert.Severity,
		Title:    fmt.Sprintf("Health %s: %s", alert.Severity, alert.Component),
		Body:     alert.Message,
	}
}
