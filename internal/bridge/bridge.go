// Package bridge decouples the tick-ingestion goroutine from the periodic
// broadcaster. Derived quotes are pushed into a bounded drop-oldest queue and
// merged, on the consumer side, into a latest-value cache.
package bridge

import (
	"ohlcbridge/internal/model"
	"ohlcbridge/internal/ringbuf"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 100

// Bridge is the bounded queue between the tick path and the broadcaster.
// PushUpdate never blocks the producer; on overflow the oldest queued update
// is discarded.
type Bridge struct {
	ring *ringbuf.Ring[model.QuoteUpdate]

	// OnDrop is called once per evicted update (optional, for metrics).
	OnDrop func()
	// OnPush is called once per accepted update (optional, for metrics).
	OnPush func()
}

// New creates a Bridge. capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Bridge {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bridge{ring: ringbuf.New[model.QuoteUpdate](capacity)}
}

// PushUpdate enqueues u, evicting the oldest entry if the queue is full.
func (b *Bridge) PushUpdate(u model.QuoteUpdate) {
	if b.OnPush != nil {
		b.OnPush()
	}
	if b.ring.Push(u) && b.OnDrop != nil {
		b.OnDrop()
	}
}

// Drain removes and returns every queued update, oldest first.
func (b *Bridge) Drain() []model.QuoteUpdate {
	return b.ring.Drain()
}

// DrainInto drains the queue and merges each update into c in queue order.
// Returns the number of updates merged.
func (b *Bridge) DrainInto(c *Cache) int {
	updates := b.ring.Drain()
	for i := range updates {
		c.Merge(updates[i])
	}
	return len(updates)
}

// Len returns the number of queued updates.
func (b *Bridge) Len() int { return b.ring.Len() }

// Cap returns the queue capacity.
func (b *Bridge) Cap() int { return b.ring.Cap() }

// Dropped returns the total number of updates evicted by overflow.
func (b *Bridge) Dropped() uint64 { return b.ring.Dropped() }
