package domain

import (
	"context"
	"time"
)

// ObservationCache holds the latest price observation per (venue, instrument)
// key. Put overwrites the entry for the observation's key and returns the
// stored observation with its assigned sequence number. Snapshot returns all
// current entries as an independent slice safe for scanning.
//
// The cache is pure state owned by the engine; it performs no I/O and no
// validation beyond presence.
type ObservationCache interface {
	Put(obs PriceObservation) PriceObservation
	Get(key ObservationKey) (PriceObservation, bool)
	Snapshot() []PriceObservation
	Len() int
}

// LivePriceCache mirrors the latest observed prices into shared
// infrastructure (Redis) so out-of-process consumers can read them without
// subscribing to the event stream.
type LivePriceCache interface {
	SetObservation(ctx context.Context, obs PriceObservation) error
	GetObservation(ctx context.Context, key ObservationKey) (PriceObservation, error)
	GetInstrumentPrices(ctx context.Context, instrument string, venues []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read from a durable bus stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for engine events and durable streams for
// consumers that must not miss messages.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Clock abstracts time for components whose staleness logic is exercised in
// tests. The zero-dependency implementation is RealClock.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall-clock Clock used outside tests.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }
