// Package feed delivers normalized observation and oracle-price records into
// the engine. Two transports are provided: a WebSocket client for a live
// venue-agnostic feed, and a Redis bus feeder that replays messages published
// by out-of-process collectors. Decoding venue-native account formats is the
// collectors' job; this package only handles the normalized JSON shape.
package feed

import (
	"context"
	"strings"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// Sink receives parsed feed records. The coordinator implements it.
type Sink interface {
	IngestObservation(ctx context.Context, obs domain.PriceObservation)
	IngestReserves(ctx context.Context, snap domain.ReserveSnapshot)
	IngestOraclePrice(ctx context.Context, reading domain.OraclePrice)
}

// feedMessage is the normalized JSON shape shared by both transports.
type feedMessage struct {
	Event      string  `json:"event"`
	Venue      string  `json:"venue"`
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
	Liquidity  float64 `json:"liquidity"`
	Volume     float64 `json:"volume"`
	ReserveA   float64 `json:"reserve_a"`
	ReserveB   float64 `json:"reserve_b"`

	Source             string  `json:"source"`
	Asset              string  `json:"asset"`
	ConfidenceInterval float64 `json:"confidence_interval"`
	Live               *bool   `json:"live"`

	Timestamp string `json:"timestamp"`
}

func (m feedMessage) observedAt(fallback time.Time) time.Time {
	if m.Timestamp == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return fallback
	}
	return t
}

// dispatch routes one parsed message into the sink. Observation events with
// reserve sides also update the liquidity monitor; events without them are
// treated as a balanced pool.
func dispatch(ctx context.Context, sink Sink, msg feedMessage, now time.Time) {
	switch msg.Event {
	case "observation":
		venue := strings.TrimSpace(msg.Venue)
		instrument := strings.TrimSpace(msg.Instrument)
		if venue == "" || instrument == "" {
			return
		}
		ts := msg.observedAt(now)
		sink.IngestObservation(ctx, domain.PriceObservation{
			Venue:      venue,
			Instrument: instrument,
			Price:      msg.Price,
			Liquidity:  msg.Liquidity,
			Volume:     msg.Volume,
			ObservedAt: ts,
		})

		snap := domain.ReserveSnapshot{
			Instrument: instrument,
			Liquidity:  msg.Liquidity,
			ValueA:     msg.ReserveA,
			ValueB:     msg.ReserveB,
			Volume:     msg.Volume,
			Timestamp:  ts,
		}
		if snap.ValueA == 0 && snap.ValueB == 0 {
			snap.ValueA = msg.Liquidity / 2
			snap.ValueB = msg.Liquidity / 2
		}
		sink.IngestReserves(ctx, snap)
	case "oracle_price":
		source := strings.TrimSpace(msg.Source)
		asset := strings.TrimSpace(msg.Asset)
		if source == "" || asset == "" {
			return
		}
		live := true
		if msg.Live != nil {
			live = *msg.Live
		}
		sink.IngestOraclePrice(ctx, domain.OraclePrice{
			Source:             source,
			Asset:              asset,
			Price:              msg.Price,
			ConfidenceInterval: msg.ConfidenceInterval,
			Timestamp:          msg.observedAt(now),
			Live:               live,
		})
	}
}
