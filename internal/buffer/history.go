// Package buffer provides the bounded, most-recent-first history window used
// for hot reads of readings and IR sensor definitions.
package buffer

import (
	"errors"
	"sync"
)

// ErrInvalidCapacity returned by NewHistory for capacity < 1
var ErrInvalidCapacity = errors.New("buffer: capacity must be positive")

// Keyed items are addressable by id for Remove/Replace
type Keyed interface {
	Key() int64
}

// History fixed-capacity ring, newest first. Safe for concurrent use.
type History[T Keyed] struct {
	mu    sync.RWMutex
	items []T
	start int // index of the oldest item
	size  int
}

// NewHistory creates an empty history holding at most capacity items
func NewHistory[T Keyed](capacity int) (*History[T], error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &History[T]{items: make([]T, capacity)}, nil
}

// Push inserts item at the front, evicting the oldest item when full.
// Returns the evicted item, if any.
func (h *History[T]) Push(item T) (evicted T, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.items)
	if h.size < capacity {
		h.items[(h.start+h.size)%capacity] = item
		h.size++
		return evicted, false
	}

	evicted = h.items[h.start]
	h.items[h.start] = item
	h.start = (h.start + 1) % capacity
	return evicted, true
}

// Latest returns the front (newest) item
func (h *History[T]) Latest() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.size == 0 {
		var zero T
		return zero, false
	}
	return h.at(0), true
}

// Slice returns up to limit items, newest first. limit <= 0 returns everything.
func (h *History[T]) Slice(limit int) []T {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := h.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = h.at(i)
	}
	return out
}

// Get finds an item by key
func (h *History[T]) Get(key int64) (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if i := h.indexOf(key); i >= 0 {
		return h.at(i), true
	}
	var zero T
	return zero, false
}

// Replace swaps the item with the same key in place, keeping its position
func (h *History[T]) Replace(key int64, updated T) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := h.indexOf(key)
	if i < 0 {
		return false
	}
	h.items[h.physical(i)] = updated
	return true
}

// Remove deletes the item with the given key, preserving the order of the rest
func (h *History[T]) Remove(key int64) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	i := h.indexOf(key)
	if i < 0 {
		return zero, false
	}
	removed := h.at(i)

	// shift everything newer than i one slot towards the oldest end
	for j := i; j > 0; j-- {
		h.items[h.physical(j)] = h.at(j - 1)
	}
	h.items[h.physical(0)] = zero
	h.size--
	return removed, true
}

// Len current number of items
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Capacity maximum number of items
func (h *History[T]) Capacity() int {
	return len(h.items)
}

// physical maps logical index i (0 = newest) to a slot in items
func (h *History[T]) physical(i int) int {
	return (h.start + h.size - 1 - i) % len(h.items)
}

func (h *History[T]) at(i int) T {
	return h.items[h.physical(i)]
}

func (h *History[T]) indexOf(key int64) int {
	for i := 0; i < h.size; i++ {
		if h.at(i).Key() == key {
			return i
		}
	}
	return -1
}
