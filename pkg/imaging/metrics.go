package imaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for image conversion.
var (
	conversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaproxy_conversions_total",
		Help: "Total image conversions by target format and outcome",
	}, []string{"target", "outcome"})

	conversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaproxy_conversion_duration_seconds",
		Help:    "Image conversion duration in seconds by target format",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"target"})

	conversionBytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaproxy_conversion_bytes_in_total",
		Help: "Total bytes fed into the image converter",
	})

	conversionBytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaproxy_conversion_bytes_out_total",
		Help: "Total bytes produced by the image converter",
	})
)
