package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/openarb/venuewatch/internal/domain"
	"github.com/openarb/venuewatch/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name string
	sent []Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, n Notification) error {
	s.sent = append(s.sent, n)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifierEventFilter(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{domain.EventLiquidityAlert}, testLogger())

	if err := n.Notify(t.Context(), Notification{Event: domain.EventOpportunity, Title: "skip"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := n.Notify(t.Context(), Notification{Event: domain.EventLiquidityAlert, Title: "pass"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0].Title != "pass" {
		t.Fatalf("sent = %+v, want only the allowed event", sender.sent)
	}
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(t.Context(), Notification{Event: domain.EventHealthAlert}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d notifications, want 1", len(sender.sent))
	}
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(t.Context(), Notification{Event: domain.EventOpportunity})
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("error = %v", err)
	}
	// One sender failing must not block the other.
	if len(good.sent) != 1 {
		t.Errorf("good sender received %d notifications, want 1", len(good.sent))
	}
}

func TestRenderOpportunity(t *testing.T) {
	opp := domain.ArbitrageOpportunity{
		Instrument: "ETH-USD", BuyVenue: "alpha", SellVenue: "beta",
		BuyPrice: 100, SellPrice: 102,
		ProfitPercent: 0.99, NetProfit: 0.99,
		Confidence: 0.8, MinTradeSize: 100, MaxTradeSize: 5000,
		Oracle: &domain.ValidationResult{Valid: false, Reason: "stale"},
	}

	note, ok := render(engine.Event{Type: domain.EventOpportunity, Opportunity: &opp})
	if !ok {
		t.Fatal("render rejected an opportunity event")
	}
	if note.Event != domain.EventOpportunity {
		t.Errorf("Event = %q", note.Event)
	}
	if note.Severity != domain.SeverityLow {
		t.Errorf("Severity = %q, want low", note.Severity)
	}
	if !strings.Contains(note.Title, "ETH-USD") || !strings.Contains(note.Title, "0.99%") {
		t.Errorf("Title = %q", note.Title)
	}
	if !strings.Contains(note.Body, "Buy alpha") || !strings.Contains(note.Body, "sell beta") {
		t.Errorf("Body = %q", note.Body)
	}
	if !strings.Contains(note.Body, "Oracle check failed: stale") {
		t.Errorf("Body missing oracle failure note: %q", note.Body)
	}
}

func TestRenderLiquidityAlertCarriesSeverity(t *testing.T) {
	alert := domain.LiquidityAlert{
		Type: domain.AlertPoolDrain, Severity: domain.SeverityCritical,
		Instrument: "ETH-USD", Message: "liquidity dropped 21.0% over last 5 points",
	}

	note, ok := render(engine.Event{Type: domain.EventLiquidityAlert, LiquidityAlert: &alert})
	if !ok {
		t.Fatal("render rejected a liquidity alert event")
	}
	if note.Severity != domain.SeverityCritical {
		t.Errorf("Severity = %q, want critical", note.Severity)
	}
	if note.Body != alert.Message {
		t.Errorf("Body = %q", note.Body)
	}
}

func TestRenderEmptyEvent(t *testing.T) {
	if _, ok := render(engine.Event{Type: "unknown"}); ok {
		t.Fatal("render accepted an event with no payload")
	}
}

func TestTelegramText(t *testing.T) {
	got := telegramText(Notification{
		Severity: domain.SeverityHigh,
		Title:    "Liquidity high: ETH-USD (low_liquidity)",
		Body:     "liquidity 500 below threshold 1000",
	})
	want := "*[HIGH] Liquidity high: ETH-USD (low_liquidity)*\nliquidity 500 below threshold 1000"
	if got != want {
		t.Fatalf("telegramText = %q, want %q", got, want)
	}

	if got := telegramText(Notification{Title: "no body"}); got != "*no body*" {
		t.Fatalf("telegramText without body = %q", got)
	}
}

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		severity domain.AlertSeverity
		want     int
	}{
		{domain.SeverityCritical, colorCritical},
		{domain.SeverityHigh, colorHigh},
		{domain.SeverityMedium, colorMedium},
		{domain.SeverityLow, colorDefault},
		{"", colorDefault},
	}
	for _, tt := range tests {
		if got := severityColor(tt.severity); got != tt.want {
			t.Errorf("severityColor(%q) = %#x, want %#x", tt.severity, got, tt.want)
		}
	}
}
