package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the request pipeline.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaproxy_requests_total",
		Help: "Total proxied requests by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediaproxy_request_duration_seconds",
		Help:    "End-to-end request handling duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)
