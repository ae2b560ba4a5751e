package memory

import (
	"testing"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

func TestPutAssignsMonotonicSeqPerKey(t *testing.T) {
	c := NewObservationCache()

	a1 := c.Put(domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100})
	a2 := c.Put(domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 101})
	b1 := c.Put(domain.PriceObservation{Venue: "beta", Instrument: "ETH-USD", Price: 99})

	if a1.Seq != 1 || a2.Seq != 2 {
		t.Errorf("seqs for same key = %d, %d, want 1, 2", a1.Seq, a2.Seq)
	}
	if b1.Seq != 1 {
		t.Errorf("seq for new key = %d, want 1", b1.Seq)
	}

	got, ok := c.Get(domain.ObservationKey{Venue: "alpha", Instrument: "ETH-USD"})
	if !ok {
		t.Fatal("entry missing")
	}
	if got.Price != 101 || got.Seq != 2 {
		t.Errorf("Get = %+v, want latest write", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := NewObservationCache()
	if _, ok := c.Get(domain.ObservationKey{Venue: "alpha", Instrument: "ETH-USD"}); ok {
		t.Fatal("Get reported a hit on an empty cache")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	c := NewObservationCache()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c.Put(domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 100, ObservedAt: at})
	c.Put(domain.PriceObservation{Venue: "beta", Instrument: "ETH-USD", Price: 101, ObservedAt: at})

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}

	// A later write must not leak into the taken snapshot.
	c.Put(domain.PriceObservation{Venue: "alpha", Instrument: "ETH-USD", Price: 999, ObservedAt: at})
	for _, obs := range snap {
		if obs.Price == 999 {
			t.Fatal("snapshot mutated by later Put")
		}
	}

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (overwrite must not grow the cache)", c.Len())
	}
}
