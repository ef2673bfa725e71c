// Package metrics provides the centralized Prometheus registry for the media
// proxy. All metrics are defined in their respective packages (proxy, cache,
// upstream, imaging) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and the scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/proxy):
//   - mediaproxy_requests_total{outcome} (Counter): Requests by outcome (hit, miss, passthrough, forbidden, upstream_error)
//   - mediaproxy_request_duration_seconds (Histogram): End-to-end request duration
//
// Cache Metrics (pkg/cache):
//   - mediaproxy_cache_hits_total (Counter): Cache hits
//   - mediaproxy_cache_misses_total (Counter): Cache misses
//   - mediaproxy_cache_inserts_total (Counter): Accepted inserts
//   - mediaproxy_cache_dropped_sets_total (Counter): Inserts rejected by the admission policy
//
// Upstream Metrics (pkg/upstream):
//   - mediaproxy_upstream_requests_total{status} (Counter): Upstream responses by HTTP status
//   - mediaproxy_upstream_request_duration_seconds (Histogram): Upstream fetch duration
//   - mediaproxy_upstream_errors_total (Counter): Transport-level fetch failures
//
// Conversion Metrics (pkg/imaging):
//   - mediaproxy_conversions_total{target, outcome} (Counter): Conversion attempts by target format and outcome
//   - mediaproxy_conversion_duration_seconds{target} (Histogram): Conversion duration by target format
//   - mediaproxy_conversion_bytes_in_total (Counter): Bytes entering the converter
//   - mediaproxy_conversion_bytes_out_total (Counter): Bytes produced by the converter
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(mediaproxy_cache_hits_total[5m])) /
//   (sum(rate(mediaproxy_cache_hits_total[5m])) + sum(rate(mediaproxy_cache_misses_total[5m])))
//
//   # Conversion Failure Rate
//   sum(rate(mediaproxy_conversions_total{outcome="error"}[5m])) /
//   sum(rate(mediaproxy_conversions_total[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(mediaproxy_upstream_request_duration_seconds_bucket[5m]))
//
//   # Bytes Saved by Conversion
//   rate(mediaproxy_conversion_bytes_in_total[5m]) - rate(mediaproxy_conversion_bytes_out_total[5m])
