package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// BusFeeder replays feed messages published on a bus channel by
// out-of-process collectors into the sink. It is the ingestion path when the
// engine runs behind existing collector jobs instead of a direct WebSocket
// connection.
type BusFeeder struct {
	bus     domain.SignalBus
	channel string
	sink    Sink
	logger  *slog.Logger
}

// NewBusFeeder creates a feeder reading from the given bus channel.
func NewBusFeeder(bus domain.SignalBus, channel string, sink Sink, logger *slog.Logger) *BusFeeder {
	return &BusFeeder{
		bus:     bus,
		channel: channel,
		sink:    sink,
		logger:  logger.With(slog.String("component", "bus_feeder")),
	}
}

// Run consumes the channel until ctx is cancelled. Malformed payloads are
// logged and skipped.
func (f *BusFeeder) Run(ctx context.Context) error {
	msgs, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	f.logger.Info("bus feeder started", slog.String("channel", f.channel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				return domain.ErrFeedDisconnect
			}
			var msg feedMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				f.logger.Debug("bus feeder: malformed payload",
					slog.Int("payload_len", len(payload)),
					slog.String("error", err.Error()),
				)
				continue
			}
			dispatch(ctx, f.sink, msg, time.Now())
		}
	}
}
