// Package pricecache holds the last observed price per trading pair.
package pricecache

import (
	"sync"
	"time"

	"dex_trader/internal/core"

	"github.com/shopspring/decimal"
)

// Cache is a last-value price cache. The streaming feed task is the only
// writer; readers may call Read concurrently at any time. No history is
// retained, and a feed disconnect does not clear entries: stale snapshots
// persist until overwritten, with staleness judged by the caller via
// ObservedAt.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[string]core.PriceSnapshot
	now       func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		snapshots: make(map[string]core.PriceSnapshot),
		now:       time.Now,
	}
}

// NewWithClock creates a cache with an injected clock for tests.
func NewWithClock(now func() time.Time) *Cache {
	c := New()
	c.now = now
	return c
}

// Update overwrites the snapshot for pair with (price, now). Only the feed
// task calls this.
func (c *Cache) Update(pair string, price decimal.Decimal) {
	snap := core.PriceSnapshot{
		Pair:       pair,
		Price:      price,
		ObservedAt: c.now(),
	}

	c.mu.Lock()
	c.snapshots[pair] = snap
	c.mu.Unlock()
}

// Read returns the last snapshot for pair, or false if the pair was never
// observed. Non-blocking.
func (c *Cache) Read(pair string) (core.PriceSnapshot, bool) {
	c.mu.RLock()
	snap, ok := c.snapshots[pair]
	c.mu.RUnlock()
	return snap, ok
}

// Pairs returns all pairs with at least one observation.
func (c *Cache) Pairs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pairs := make([]string, 0, len(c.snapshots))
	for pair := range c.snapshots {
		pairs = append(pairs, pair)
	}
	return pairs
}
