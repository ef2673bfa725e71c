// Package upstream provides the HTTP client used to fetch media assets from
// the configured upstream server.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream fetches.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaproxy_upstream_requests_total",
		Help: "Total upstream requests by HTTP status",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediaproxy_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds, including body read",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	upstreamErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediaproxy_upstream_errors_total",
		Help: "Total upstream transport errors (connect, timeout, read)",
	})
)

// Config holds the upstream client configuration. BaseURL must be a valid
// absolute URL; validation happens in the config layer.
type Config struct {
	// BaseURL is the upstream server, e.g. "https://social.example.com".
	BaseURL string

	// Timeout bounds the whole fetch, connect through body read.
	Timeout time.Duration

	// UserAgent is sent with every upstream request.
	UserAgent string

	// MaxIdleConnsPerHost bounds the idle connection pool (default 10).
	MaxIdleConnsPerHost int

	// IdleConnTimeout closes idle pooled connections (default 90s).
	IdleConnTimeout time.Duration
}

// Client fetches resources from the single configured upstream. Fetches are
// single-attempt: transport failures are returned to the caller, never
// retried. Redirect responses are returned as-is rather than followed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     zerolog.Logger
}

// Response is a fully materialized upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the declared content type, defaulting to a generic
// binary type when the upstream omitted the header.
func (r *Response) ContentType() string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// New creates an upstream client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("upstream URL %q is not a valid absolute URL", cfg.BaseURL)
	}

	maxIdle := cfg.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 10
	}
	idleTimeout := cfg.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: maxIdle,
		IdleConnTimeout:     idleTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			// Upstream redirects are forwarded to the client verbatim,
			// never followed by the proxy.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL:   strings.TrimSuffix(base.String(), "/"),
		userAgent: cfg.UserAgent,
		logger:    log.With().Str("component", "upstream").Logger(),
	}, nil
}

// Fetch performs a single GET for path (plus rawQuery, if any) against the
// upstream and materializes the response body. Any connect, timeout, or read
// failure returns a *TransportError.
func (c *Client) Fetch(ctx context.Context, path, rawQuery string) (*Response, error) {
	target := c.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	start := time.Now()
	defer func() {
		upstreamRequestDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamErrorsTotal.Inc()
		c.logger.Error().Err(err).Str("url", target).Msg("Upstream request failed")
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		upstreamErrorsTotal.Inc()
		c.logger.Error().Err(err).Str("url", target).Msg("Failed to read upstream body")
		return nil, &TransportError{URL: target, Err: err}
	}

	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("url", target).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("Upstream fetch complete")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
