package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for response cache operations.
var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaproxy_cache_hits_total",
		Help: "Total number of response cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaproxy_cache_misses_total",
		Help: "Total number of response cache misses",
	})

	cacheInserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaproxy_cache_inserts_total",
		Help: "Total number of response cache insertions accepted into the write buffer",
	})

	cacheDroppedSets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaproxy_cache_dropped_sets_total",
		Help: "Total number of response cache insertions dropped by write-buffer contention",
	})
)
