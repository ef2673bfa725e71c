package proxy

import (
	"fmt"
	"net/http"
)

// handleHealth answers liveness probes.
func (p *Proxy) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleMetrics exposes the cache counters in a plain-text format. The full
// Prometheus registry is served separately (see cmd/mediaproxy).
func (p *Proxy) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := p.cache.Stats()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "cache_entries %d\ncache_size_bytes %d\n",
		stats.EntryCount, stats.WeightedSize)
}
