// Package notify delivers engine events to operators over Telegram and
// Discord. Each coordinator event is rendered into a Notification carrying
// its event type and severity; senders decide how to present both, and the
// notifier's event filter decides which notifications go out at all.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openarb/venuewatch/internal/domain"
)

// Notification is one operator-facing message derived from an engine event.
type Notification struct {
	// Event is the engine event type label (domain.EventOpportunity etc.)
	// used by the notifier's filter.
	Event    string
	Severity domain.AlertSeverity
	Title    string
	Body     string
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier fans a notification out to every registered sender, filtered by
// event type. An empty event list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// notifications whose Event appears in events are forwarded; an empty slice
// disables filtering.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the notification to all senders, subject to the event
// filter. A failing sender does not block delivery to the others; failures
// are combined into one error.
func (n *Notifier) Notify(ctx context.Context, note Notification) error {
	if len(n.events) > 0 && !n.events[note.Event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", note.Event),
		)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", note.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", note.Event),
			slog.String("title", note.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
