package engine

import (
	"testing"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

type steppingClock struct{ t time.Time }

func (c *steppingClock) Now() time.Time { return c.t }

func (c *steppingClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDedupFirstSeenIsNotDuplicate(t *testing.T) {
	clock := &steppingClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	d := NewDedup(time.Minute, clock)

	if d.IsDuplicate("a") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.IsDuplicate("a") {
		t.Fatal("second sighting within TTL not reported as duplicate")
	}
	if d.IsDuplicate("b") {
		t.Fatal("unrelated key reported as duplicate")
	}
}

func TestDedupExpiry(t *testing.T) {
	clock := &steppingClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	d := NewDedup(time.Minute, clock)

	if d.IsDuplicate("a") {
		t.Fatal("first sighting reported as duplicate")
	}
	clock.Advance(59 * time.Second)
	if !d.IsDuplicate("a") {
		t.Fatal("key inside TTL not reported as duplicate")
	}
	clock.Advance(2 * time.Minute)
	if d.IsDuplicate("a") {
		t.Fatal("expired key still reported as duplicate")
	}
}

func TestDedupCleanup(t *testing.T) {
	clock := &steppingClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	d := NewDedup(time.Minute, clock)
	d.IsDuplicate("a")
	d.IsDuplicate("b")

	clock.Advance(2 * time.Minute)
	d.IsDuplicate("c")
	d.Cleanup()

	if len(d.seen) != 1 {
		t.Fatalf("seen has %d entries after cleanup, want 1", len(d.seen))
	}
	if _, ok := d.seen["c"]; !ok {
		t.Fatal("live entry removed by cleanup")
	}
}

func TestDedupNilClockDefaultsToWallClock(t *testing.T) {
	d := NewDedup(time.Minute, nil)

	if d.IsDuplicate("a") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.IsDuplicate("a") {
		t.Fatal("second sighting within TTL not reported as duplicate")
	}
}

func TestDedupeKeyBucketsBySecond(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	a := domain.ArbitrageOpportunity{
		Instrument: "ETH-USD", BuyVenue: "alpha", SellVenue: "beta",
		DetectedAt: at.Add(100 * time.Millisecond),
	}
	b := a
	b.DetectedAt = at.Add(900 * time.Millisecond)

	if a.DedupeKey() != b.DedupeKey() {
		t.Fatalf("keys differ within the same second: %q vs %q", a.DedupeKey(), b.DedupeKey())
	}

	c := a
	c.DetectedAt = at.Add(time.Second)
	if a.DedupeKey() == c.DedupeKey() {
		t.Fatal("keys collide across second buckets")
	}
}
