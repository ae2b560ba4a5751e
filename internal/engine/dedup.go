package engine

import (
	"sync"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// Dedup is the optional de-bounce stage for opportunity emission. Reactive
// and periodic scans can evaluate the same pair in quick succession; when a
// TTL is configured, repeated emissions carrying the same dedupe key within
// the window are dropped. It is safe for concurrent use.
type Dedup struct {
	seen  map[string]time.Time // dedupe key -> last seen time
	ttl   time.Duration
	clock domain.Clock
	mu    sync.Mutex
}

// NewDedup creates a Dedup that considers an emission a duplicate if its key
// has been seen within ttl. A nil clock defaults to the wall clock.
func NewDedup(ttl time.Duration, clock domain.Clock) *Dedup {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Dedup{
		seen:  make(map[string]time.Time),
		ttl:   ttl,
		clock: clock,
	}
}

// IsDuplicate returns true if the key has been seen within the TTL window.
// If the key has not been seen (or has expired), it is recorded and false is
// returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if lastSeen, ok := d.seen[key]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[key] = now
	return false
}

// Cleanup removes entries that have expired beyond the TTL. The coordinator
// calls this from its health-check loop to bound memory growth.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	for key, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, key)
		}
	}
}
