// Package dedup prevents double execution of identical or retried webhooks.
package dedup

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTTL is the window within which an identical fingerprint is a duplicate.
const DefaultTTL = 60 * time.Second

// Deduplicator is a bounded, time-windowed cache of signal fingerprints.
// All calls are serialized under one mutex so two near-simultaneous identical
// webhooks can never both be treated as "first". Expired entries are swept
// lazily on every call; there is no background goroutine.
type Deduplicator struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	seen  map[string]time.Time // fingerprint -> first seen
}

// New creates a Deduplicator. A nil clock means wall-clock time; a
// non-positive ttl means DefaultTTL.
func New(ttl time.Duration, clk clock.Clock) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Deduplicator{
		ttl:   ttl,
		clock: clk,
		seen:  make(map[string]time.Time),
	}
}

// IsDuplicate reports whether the fingerprint was already observed within the
// TTL window. On first observation it records the fingerprint and returns
// false; on a repeat within the window it returns true without re-recording,
// so the window is anchored to the first sighting.
func (d *Deduplicator) IsDuplicate(fingerprint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	d.sweep(now)

	if _, ok := d.seen[fingerprint]; ok {
		return true
	}
	d.seen[fingerprint] = now
	return false
}

// Len returns the number of live entries.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// sweep removes expired entries. Caller holds the mutex.
func (d *Deduplicator) sweep(now time.Time) {
	for fp, firstSeen := range d.seen {
		if now.Sub(firstSeen) >= d.ttl {
			delete(d.seen, fp)
		}
	}
}
