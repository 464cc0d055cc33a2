// Package buffer provides a bounded, thread-safe rolling window used to hold
// the most recent items of a telemetry series. When the window is full the
// oldest item is dropped to make room, so readers always see a contiguous
// suffix of the append order.
package buffer

import (
	"sync"
)

// Window is a fixed-capacity ring that keeps the newest items.
// All methods are safe for concurrent use; each Window carries its own lock,
// so windows for unrelated series never contend with each other.
type Window[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	stats    Statistics
}

// NewWindow creates a window holding at most capacity items.
// A capacity below 1 is clamped to 1.
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds an item, evicting the oldest one when the window is full.
func (w *Window[T]) Append(item T) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.items[w.head] = item
	w.head = (w.head + 1) % w.capacity
	if w.size < w.capacity {
		w.size++
	} else {
		w.stats.drops.Add(1)
	}
	w.stats.writes.Add(1)
}

// Snapshot returns a copy of the current contents, oldest first.
// The copy is detached: later appends do not affect it.
func (w *Window[T]) Snapshot() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.size == 0 {
		return nil
	}

	out := make([]T, w.size)
	start := (w.head - w.size + w.capacity) % w.capacity
	for i := 0; i < w.size; i++ {
		out[i] = w.items[(start+i)%w.capacity]
	}
	return out
}

// Latest returns the most recently appended item.
func (w *Window[T]) Latest() (T, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var zero T
	if w.size == 0 {
		return zero, false
	}
	idx := (w.head - 1 + w.capacity) % w.capacity
	return w.items[idx], true
}

// Len returns the current number of items.
func (w *Window[T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.size
}

// Cap returns the maximum number of items the window can hold.
// Immutable, so no lock is needed.
func (w *Window[T]) Cap() int {
	return w.capacity
}

// Clear removes all items.
func (w *Window[T]) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	var zero T
	for i := range w.items {
		w.items[i] = zero
	}
	w.head = 0
	w.size = 0
}

// Stats returns a point-in-time copy of the window's counters.
func (w *Window[T]) Stats() Stats {
	return w.stats.snapshot()
}
