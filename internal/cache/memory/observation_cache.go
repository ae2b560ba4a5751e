// Package memory implements the in-process observation cache owned by the
// engine. It is the only holder of latest-observation state; other components
// reach it exclusively through the domain.ObservationCache interface.
package memory

import (
	"sync"

	"github.com/openarb/venuewatch/internal/domain"
)

// ObservationCache holds the latest observation per (venue, instrument) key
// behind a mutex. Writes are last-write-wins; each Put assigns the key's next
// sequence number so consumers can spot out-of-order delivery.
type ObservationCache struct {
	mu      sync.RWMutex
	entries map[domain.ObservationKey]domain.PriceObservation
	seqs    map[domain.ObservationKey]uint64
}

// NewObservationCache creates an empty ObservationCache.
func NewObservationCache() *ObservationCache {
	return &ObservationCache{
		entries: make(map[domain.ObservationKey]domain.PriceObservation),
		seqs:    make(map[domain.ObservationKey]uint64),
	}
}

// Put overwrites the entry for the observation's key and returns the stored
// observation with its assigned sequence number. No validation is performed
// beyond presence; the feed layer is responsible for normalization.
func (c *ObservationCache) Put(obs domain.PriceObservation) domain.PriceObservation {
	key := obs.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seqs[key]++
	obs.Seq = c.seqs[key]
	c.entries[key] = obs
	return obs
}

// Get returns the current entry for the key, if any.
func (c *ObservationCache) Get(key domain.ObservationKey) (domain.PriceObservation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	obs, ok := c.entries[key]
	return obs, ok
}

// Snapshot returns all current entries as an independent slice. The slice is
// safe for the caller to scan and mutate; later Puts do not affect it.
func (c *ObservationCache) Snapshot() []domain.PriceObservation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.PriceObservation, 0, len(c.entries))
	for _, obs := range c.entries {
		out = append(out, obs)
	}
	return out
}

// Len returns the number of cached (venue, instrument) entries.
func (c *ObservationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Compile-time interface check.
var _ domain.ObservationCache = (*ObservationCache)(nil)
