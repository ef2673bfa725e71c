package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// minCounters is the floor for TinyLFU frequency counters on tiny budgets.
const minCounters = 1 << 10

// assumedEntrySize is the assumed average entry size used to scale the
// frequency-counter table from the byte budget.
const assumedEntrySize = 4 << 10

// ResponseCache is a bounded, weighted, TTL-based store of produced
// responses. See the package documentation for the eviction semantics.
type ResponseCache struct {
	store *ristretto.Cache[string, *CachedResponse]
	ttl   time.Duration
}

// Stats is an instantaneous observability snapshot.
type Stats struct {
	// EntryCount is the approximate number of live entries.
	EntryCount uint64

	// WeightedSize is the approximate cumulative weight in bytes.
	WeightedSize uint64
}

// New creates a ResponseCache with the given weighted byte capacity and
// fixed per-entry TTL.
//
// Size pre-filtering is the caller's job: entries larger than the configured
// max item size must not be inserted.
func New(maxCapacity int64, ttl time.Duration) (*ResponseCache, error) {
	if maxCapacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive (got %d)", maxCapacity)
	}

	counters := 10 * (maxCapacity / assumedEntrySize)
	if counters < minCounters {
		counters = minCounters
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, *CachedResponse]{
		NumCounters: counters,
		MaxCost:     maxCapacity,
		BufferItems: 64,
		Metrics:     true,
		// Weights are exactly the entry data length; do not add the
		// store's own bookkeeping overhead on top.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &ResponseCache{store: store, ttl: ttl}, nil
}

// Get returns the stored response for key if present and not expired.
func (c *ResponseCache) Get(key Key) (*CachedResponse, bool) {
	resp, ok := c.store.Get(key.String())
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return resp, true
}

// Put inserts or replaces the response for key, resetting its TTL clock.
// The write is applied asynchronously; the admission policy may decline
// entries under capacity pressure.
func (c *ResponseCache) Put(key Key, resp *CachedResponse) {
	if c.store.SetWithTTL(key.String(), resp, resp.Weight(), c.ttl) {
		cacheInserts.Inc()
	} else {
		cacheDroppedSets.Inc()
	}
}

// Stats returns the current entry count and weighted size. Both are derived
// from the store's own accounting and are approximate while asynchronous
// writes are in flight.
func (c *ResponseCache) Stats() Stats {
	m := c.store.Metrics
	return Stats{
		EntryCount:   m.KeysAdded() - m.KeysEvicted(),
		WeightedSize: m.CostAdded() - m.CostEvicted(),
	}
}

// Wait blocks until all buffered writes have been applied. Used by tests and
// by callers that need read-your-write visibility.
func (c *ResponseCache) Wait() {
	c.store.Wait()
}

// Close releases the cache's internal goroutines. The cache must not be used
// afterwards.
func (c *ResponseCache) Close() {
	c.store.Close()
}
