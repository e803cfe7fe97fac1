// Package ringbuf provides a fixed-capacity FIFO ring buffer with drop-oldest
// overflow. Producers never block and the buffer never grows: pushing into a
// full ring overwrites the oldest entry and bumps an overflow counter.
package ringbuf

import (
	"sync"
	"sync/atomic"
)

// Ring is a mutex-guarded drop-oldest ring buffer.
// Safe for any number of producers and consumers.
type Ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int // index of the oldest element
	n    int // number of queued elements

	// Dropped counter (atomic, for metrics)
	dropped atomic.Uint64
}

// New creates a ring with the given capacity. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v. If the ring is full the oldest element is discarded to make
// room and Push returns true. Non-blocking.
func (r *Ring[T]) Push(v T) (evicted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n == len(r.buf) {
		// Full: overwrite the oldest slot and advance head.
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		r.dropped.Add(1)
		return true
	}

	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	return false
}

// Pop removes and returns the oldest element. Returns false if empty.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.n == 0 {
		return zero, false
	}
	v := r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// Drain removes and returns every queued element, oldest first.
// Returns an empty (non-nil) slice when nothing is queued.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.n)
	var zero T
	for i := 0; i < r.n; i++ {
		idx := (r.head + i) % len(r.buf)
		out[i] = r.buf[idx]
		r.buf[idx] = zero
	}
	r.head = 0
	r.n = 0
	return out
}

// Len returns the current number of queued elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Dropped returns the total number of elements evicted by overflow.
func (r *Ring[T]) Dropped() uint64 {
	return r.dropped.Load()
}
