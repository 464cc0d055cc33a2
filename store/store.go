// Package store holds the bounded rolling windows of timestamped samples,
// one per series key. It is the sole mutator of series state: samples enter
// through Append and leave only by capacity eviction or series removal.
//
// Locking is fine-grained: the store's own lock guards only the series map
// (lookup, lazy creation, deletion), while each series window carries its own
// lock, so appends and reads on unrelated series never contend.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/c360/telebridge/pkg/buffer"
)

// DefaultCapacity is the rolling window size used when none is configured
const DefaultCapacity = 1000

// Sample is a single timestamped measurement. Immutable once created.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Store owns all series and their windows
type Store struct {
	mu       sync.RWMutex
	series   map[string]*buffer.Window[Sample]
	capacity int
}

// New creates a store whose series windows hold at most capacity samples.
// A capacity below 1 falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		series:   make(map[string]*buffer.Window[Sample]),
		capacity: capacity,
	}
}

// Append adds a sample to the series identified by key, creating the series
// lazily on first use. When the window is full the oldest sample is dropped.
func (s *Store) Append(key string, sample Sample) {
	s.window(key).Append(sample)
}

// window returns the series window for key, creating it if needed
func (s *Store) window(key string) *buffer.Window[Sample] {
	s.mu.RLock()
	w, ok := s.series[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another writer may have created it between the locks
	if w, ok = s.series[key]; ok {
		return w
	}
	w = buffer.NewWindow[Sample](s.capacity)
	s.series[key] = w
	return w
}

// Samples returns a snapshot of the series in append order, oldest first.
// The snapshot is the latest consistent state: it never exposes a
// partially-mutated window, but an append racing the read may or may not be
// included. Returns nil for unknown series.
func (s *Store) Samples(key string) []Sample {
	s.mu.RLock()
	w, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return w.Snapshot()
}

// Latest returns the most recent sample of a series
func (s *Store) Latest(key string) (Sample, bool) {
	s.mu.RLock()
	w, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		return Sample{}, false
	}
	return w.Latest()
}

// Len returns the number of samples currently held for a series
func (s *Store) Len(key string) int {
	s.mu.RLock()
	w, ok := s.series[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return w.Len()
}

// Keys returns the keys of all live series, in no particular order
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.series))
	for key := range s.series {
		keys = append(keys, key)
	}
	return keys
}

// Count returns the number of live series
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series)
}

// RemoveSeries deletes every series whose key matches the predicate and
// returns the number removed.
func (s *Store) RemoveSeries(match func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.series {
		if match(key) {
			delete(s.series, key)
			removed++
		}
	}
	return removed
}

// RemoveByPrefix deletes every series whose key starts with prefix
func (s *Store) RemoveByPrefix(prefix string) int {
	return s.RemoveSeries(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}
