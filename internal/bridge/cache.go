package bridge

import (
	"sort"
	"sync"

	"ohlcbridge/internal/model"
)

// Cache holds the latest known quote per symbol. Entries are created or
// overwritten by Merge and are never removed.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
}

// NewCache creates an empty quote cache.
func NewCache() *Cache {
	return &Cache{quotes: make(map[string]model.Quote)}
}

// Merge applies one update. Each side is written only if the update carries
// it, so a one-sided update never clobbers the other side's known value.
func (c *Cache) Merge(u model.QuoteUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.quotes[u.Symbol]
	if !ok {
		q = model.Quote{Symbol: u.Symbol}
	}
	if u.HasBid {
		q.Bid = u.Bid
		q.HasBid = true
	}
	if u.HasAsk {
		q.Ask = u.Ask
		q.HasAsk = true
	}
	if u.Timestamp.After(q.UpdatedAt) {
		q.UpdatedAt = u.Timestamp
	}
	c.quotes[u.Symbol] = q
}

// Get returns the cached quote for symbol.
func (c *Cache) Get(symbol string) (model.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	return q, ok
}

// Snapshot returns a copy of every cached quote, sorted by symbol.
func (c *Cache) Snapshot() []model.Quote {
	c.mu.RLock()
	out := make([]model.Quote, 0, len(c.quotes))
	for _, q := range c.quotes {
		out = append(out, q)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}
