// Package proxy orchestrates the media proxy request pipeline: content
// negotiation, response cache, upstream fetch, image conversion, and
// response assembly.
package proxy

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fedimedia/mediaproxy/pkg/cache"
	"github.com/fedimedia/mediaproxy/pkg/config"
	"github.com/fedimedia/mediaproxy/pkg/imaging"
	"github.com/fedimedia/mediaproxy/pkg/negotiate"
	"github.com/fedimedia/mediaproxy/pkg/upstream"
)

// homepageURL is the redirect target for requests to the root path.
const homepageURL = "https://github.com/fedimedia/mediaproxy"

// Proxy ties the pipeline components together. It is constructed once at
// startup and shared read-only across requests; the cache owns the only
// mutable shared state.
type Proxy struct {
	cfg       *config.Config
	cache     *cache.ResponseCache
	upstream  *upstream.Client
	converter *imaging.Converter
	logger    zerolog.Logger
}

// New creates a Proxy from already-validated configuration and constructed
// components.
func New(cfg *config.Config, rc *cache.ResponseCache, uc *upstream.Client, conv *imaging.Converter) *Proxy {
	return &Proxy{
		cfg:       cfg,
		cache:     rc,
		upstream:  uc,
		converter: conv,
		logger:    log.With().Str("component", "proxy").Logger(),
	}
}

// Handler returns the HTTP handler exposing the proxy surface: /health,
// /metrics, and the proxied media routes.
func (p *Proxy) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", p.handleHealth)
	mux.HandleFunc("/metrics", p.handleMetrics)
	mux.HandleFunc("/", p.handleProxy)
	return mux
}

// handleProxy runs the per-request pipeline. The flow is linear with
// branches: no retries, no backtracking.
func (p *Proxy) handleProxy(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rawQuery := r.URL.RawQuery
	start := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(start).Seconds())
	}()

	// Step 1: path policy.
	if path == "/" {
		http.Redirect(w, r, homepageURL, http.StatusMovedPermanently)
		return
	}
	if !strings.HasPrefix(path, "/media") && !strings.HasPrefix(path, "/proxy") {
		p.logger.Warn().Str("path", path).Msg("Path not allowed")
		requestsTotal.WithLabelValues("forbidden").Inc()
		p.writeError(w, &Error{Kind: KindPathNotAllowed})
		return
	}

	// Step 2: negotiate the desired output format.
	desired, upstreamQuery := negotiate.Resolve(r.Header.Get("Accept"), rawQuery, negotiate.Options{
		AvifEnabled:   p.cfg.Image.EnableAvif,
		WebPEnabled:   p.cfg.Image.EnableWebp,
		QueryOverride: p.cfg.Server.BehindCDNQueryOverride,
	})

	// Step 3: the cache key uses the original, pre-override query string.
	key := cache.NewKey(path, rawQuery, desired.String())

	// Step 4: cache lookup.
	if cached, ok := p.cache.Get(key); ok {
		p.logger.Debug().
			Str("path", path).
			Stringer("format", desired).
			Int("bytes", len(cached.Data)).
			Msg("Cache hit")
		requestsTotal.WithLabelValues("hit").Inc()
		p.writeSuccess(w, cached.Data, cached.ContentType, cached.UpstreamHeaders, "HIT")
		return
	}

	// Step 5: upstream fetch, single attempt.
	resp, err := p.upstream.Fetch(r.Context(), path, upstreamQuery)
	if err != nil {
		requestsTotal.WithLabelValues("upstream_error").Inc()
		p.writeError(w, &Error{Kind: KindUpstreamTransport, Err: err})
		return
	}

	// Step 6: non-2xx responses pass through verbatim.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Debug().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Forwarding upstream non-success status")
		requestsTotal.WithLabelValues("passthrough").Inc()
		p.writePassthrough(w, resp.StatusCode, resp.Body, resp.Header, resp.ContentType())
		return
	}

	// Step 7: conversion decision.
	data := resp.Body
	contentType := resp.ContentType()
	if p.shouldConvert(contentType, desired, len(data)) {
		converted, mimeType, convErr := p.converter.Convert(data, desired)
		if convErr != nil {
			// Recovered locally: serve the original bytes instead.
			p.logger.Warn().
				Err(convErr).
				Str("path", path).
				Stringer("format", desired).
				Msg("Image conversion failed, serving original")
		} else {
			p.logger.Info().
				Str("path", path).
				Stringer("format", desired).
				Int("bytes_in", len(data)).
				Int("bytes_out", len(converted)).
				Msg("Converted image")
			data = converted
			contentType = mimeType
		}
	}

	// Step 8: cache store, size cap permitting.
	if int64(len(data)) <= p.cfg.Cache.MaxItemSize {
		entry := &cache.CachedResponse{
			Data:        data,
			ContentType: contentType,
		}
		if p.cfg.Server.PreserveUpstreamHeaders {
			entry.UpstreamHeaders = resp.Header
		}
		p.cache.Put(key, entry)
	} else {
		p.logger.Debug().
			Str("path", path).
			Int("bytes", len(data)).
			Msg("Response too large to cache")
	}

	// Step 9: assemble the response.
	p.logger.Debug().
		Str("path", path).
		Stringer("format", desired).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("Cache miss served")
	requestsTotal.WithLabelValues("miss").Inc()
	p.writeSuccess(w, data, contentType, resp.Header, "MISS")
}

// shouldConvert decides whether a success payload goes through the image
// converter: it must declare an image content type, the client must want a
// specific format, the body must be within the convertible size cap, and the
// upstream's own format must not already satisfy the request.
func (p *Proxy) shouldConvert(contentType string, desired imaging.OutputFormat, size int) bool {
	if !imaging.IsImageContentType(contentType) {
		return false
	}
	if desired == imaging.FormatOriginal {
		return false
	}
	if int64(size) > p.cfg.Cache.MaxItemSize {
		return false
	}
	if have, ok := imaging.FormatFromContentType(contentType); ok && imaging.Satisfies(have, desired) {
		return false
	}
	return true
}
