// Package registry keeps the latest telemetry record per publisher and
// evicts publishers that have gone silent.
package registry

import (
	"math"
	"sort"
	"sync"

	"codeberg.org/mutker/thermonode/internal/telemetry"
)

// Entry is the registry's view of one publisher.
type Entry struct {
	Record telemetry.Record
	// LastSeen is the record's own timestamp, not the time of receipt.
	LastSeen int64
}

// Registry is a keyed store of the latest record per publisher id.
// Mutations run under a single critical section; snapshots are taken under
// the read lock and are always consistent.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Upsert inserts or replaces the entry for rec.PublisherID. An older
// timestamp still replaces the existing entry. It reports whether an entry
// was replaced.
func (r *Registry) Upsert(rec telemetry.Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.entries[rec.PublisherID]
	r.entries[rec.PublisherID] = Entry{
		Record:   rec,
		LastSeen: rec.Timestamp,
	}

	return replaced
}

// EvictStale removes every entry with now-LastSeen > ttl and returns the
// evicted ids in ascending order. An entry exactly ttl old is retained.
// Ages saturate instead of wrapping, so any int64 timestamp is handled.
func (r *Registry) EvictStale(now, ttl int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []string
	for id, entry := range r.entries {
		if age(now, entry.LastSeen) > ttl {
			evicted = append(evicted, id)
		}
	}

	for _, id := range evicted {
		delete(r.entries, id)
	}

	sort.Strings(evicted)

	return evicted
}

// Snapshot returns copies of all live entries. Order is unspecified.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		snapshot = append(snapshot, entry)
	}

	return snapshot
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]

	return entry, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Ages returns the age of every entry at now, keyed by publisher id.
func (r *Registry) Ages(now int64) map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ages := make(map[string]int64, len(r.entries))
	for id, entry := range r.entries {
		ages[id] = age(now, entry.LastSeen)
	}

	return ages
}

// age returns now-lastSeen clamped to the int64 range.
func age(now, lastSeen int64) int64 {
	d := now - lastSeen
	switch {
	case lastSeen < 0 && d < now:
		return math.MaxInt64
	case lastSeen > 0 && d > now:
		return math.MinInt64
	default:
		return d
	}
}
