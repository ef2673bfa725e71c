package proxy

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fedimedia/mediaproxy/internal/testutil"
	"github.com/fedimedia/mediaproxy/pkg/cache"
	"github.com/fedimedia/mediaproxy/pkg/config"
	"github.com/fedimedia/mediaproxy/pkg/imaging"
	"github.com/fedimedia/mediaproxy/pkg/upstream"
)

// newTestProxy wires a full pipeline against the given mock upstream.
// mutate, if non-nil, adjusts the configuration before construction.
func newTestProxy(t *testing.T, mock *testutil.MockUpstream, mutate func(*config.Config)) *Proxy {
	t.Helper()

	cfg := config.WithUpstream(mock.URL())
	cfg.Cache.MaxCapacity = 1 << 20
	cfg.Upstream.TimeoutSeconds = 5
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	rc, err := cache.New(cfg.Cache.MaxCapacity, cfg.Cache.TTL())
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	t.Cleanup(rc.Close)

	uc, err := upstream.New(upstream.Config{
		BaseURL:   cfg.Upstream.URL,
		Timeout:   cfg.Upstream.Timeout(),
		UserAgent: "mediaproxy-test/0.0.0",
	})
	if err != nil {
		t.Fatalf("create upstream client: %v", err)
	}

	conv := imaging.NewConverter(cfg.Image.Quality, cfg.Image.MaxDimension,
		cfg.Image.EnableAvif, cfg.Image.EnableWebp)

	return New(&cfg, rc, uc, conv)
}

func doRequest(t *testing.T, p *Proxy, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	p := newTestProxy(t, mock, nil)

	rec := doRequest(t, p, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	p := newTestProxy(t, mock, nil)

	rec := doRequest(t, p, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q, want text/plain", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "cache_entries ") || !strings.Contains(body, "cache_size_bytes ") {
		t.Errorf("metrics body missing cache stats: %q", body)
	}
}

func TestRootRedirect(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	p := newTestProxy(t, mock, nil)

	rec := doRequest(t, p, "/", nil)
	if rec.Code != http.StatusMovedPermanently {
		t.Errorf("status = %d, want 301", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != homepageURL {
		t.Errorf("Location = %q, want %q", loc, homepageURL)
	}
}

func TestPathNotAllowed(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	p := newTestProxy(t, mock, nil)

	rec := doRequest(t, p, "/other/thing.jpg", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if via := rec.Header().Get("Via"); via == "" {
		t.Error("Via header missing on error response")
	}
	if mock.Requests() != 0 {
		t.Errorf("upstream was contacted %d times for a forbidden path", mock.Requests())
	}
}

func TestConversionMissThenHit(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.ServeBytes("/media/photo.jpg", "image/jpeg", testutil.JPEGBytes(t, 16, 16))

	p := newTestProxy(t, mock, nil)
	headers := map[string]string{"Accept": "image/webp"}

	rec := doRequest(t, p, "/media/photo.jpg", headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/webp" {
		t.Errorf("content type = %q, want image/webp", ct)
	}
	if got := rec.Header().Get("X-Cache-Status"); got != "MISS" {
		t.Errorf("X-Cache-Status = %q, want MISS", got)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != cacheControlImmutable {
		t.Errorf("Cache-Control = %q", cc)
	}
	firstBody := rec.Body.Bytes()

	// The insert is asynchronous; flush it before the repeat request.
	p.cache.Wait()

	rec = doRequest(t, p, "/media/photo.jpg", headers)
	if got := rec.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Errorf("X-Cache-Status = %q, want HIT", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), firstBody) {
		t.Error("cache hit body differs from original response")
	}
	if mock.Requests() != 1 {
		t.Errorf("upstream fetched %d times, want 1", mock.Requests())
	}
}

func TestNoConversionWhenFormatSatisfied(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	webpPayload := []byte("fake webp payload")
	mock.ServeBytes("/media/pic.webp", "image/webp", webpPayload)

	p := newTestProxy(t, mock, nil)
	rec := doRequest(t, p, "/media/pic.webp", map[string]string{"Accept": "image/webp"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// Satisfied format short-circuits conversion, so even a payload the
	// decoder would reject passes through untouched.
	if !bytes.Equal(rec.Body.Bytes(), webpPayload) {
		t.Error("satisfied format was not passed through verbatim")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/webp" {
		t.Errorf("content type = %q, want image/webp", ct)
	}
}

func TestNonImagePassesThrough(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	payload := []byte("video bytes")
	mock.ServeBytes("/media/clip.mp4", "video/mp4", payload)

	p := newTestProxy(t, mock, nil)
	rec := doRequest(t, p, "/media/clip.mp4", map[string]string{"Accept": "image/avif"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Error("non-image payload was modified")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("content type = %q, want video/mp4", ct)
	}
}

func TestUpstream404PassesThrough(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.Handle("/media/gone.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such media", http.StatusNotFound)
	})

	p := newTestProxy(t, mock, nil)

	rec := doRequest(t, p, "/media/gone.jpg", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no such media") {
		t.Errorf("upstream body not forwarded: %q", rec.Body.String())
	}
	if rec.Header().Get("X-Cache-Status") != "" {
		t.Error("X-Cache-Status must not be set on passthrough responses")
	}
	if rec.Header().Get("Cache-Control") != "" {
		t.Error("Cache-Control must not be set on passthrough responses")
	}

	// Never cached: a second request reaches the upstream again.
	p.cache.Wait()
	doRequest(t, p, "/media/gone.jpg", nil)
	if mock.Requests() != 2 {
		t.Errorf("upstream fetched %d times, want 2 (404 must not be cached)", mock.Requests())
	}
}

func TestUpstreamRedirectForwardedVerbatim(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.Handle("/media/moved.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://elsewhere.example/m.jpg")
		w.WriteHeader(http.StatusMovedPermanently)
	})

	p := newTestProxy(t, mock, nil)
	rec := doRequest(t, p, "/media/moved.jpg", nil)

	if rec.Code != http.StatusMovedPermanently {
		t.Errorf("status = %d, want 301", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://elsewhere.example/m.jpg" {
		t.Errorf("Location = %q, want upstream value", loc)
	}
}

func TestUpstreamTransportErrorIs502(t *testing.T) {
	mock := testutil.NewMockUpstream()
	p := newTestProxy(t, mock, nil)
	mock.Close() // Connection refused from here on.

	rec := doRequest(t, p, "/media/a.jpg", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Upstream error") {
		t.Errorf("body = %q, want upstream error text", rec.Body.String())
	}
}

func TestConversionFailureServesOriginal(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	// Declares image/jpeg but the bytes don't decode.
	garbage := []byte("this is not a jpeg")
	mock.ServeBytes("/media/broken.jpg", "image/jpeg", garbage)

	p := newTestProxy(t, mock, nil)
	rec := doRequest(t, p, "/media/broken.jpg", map[string]string{"Accept": "image/webp"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (conversion failure is recovered)", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), garbage) {
		t.Error("original bytes were not served after conversion failure")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q, want original image/jpeg", ct)
	}
}

func TestOversizedBodyNotConvertedNotCached(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()

	payload := testutil.JPEGBytes(t, 32, 32)
	mock.ServeBytes("/media/big.jpg", "image/jpeg", payload)

	p := newTestProxy(t, mock, func(cfg *config.Config) {
		cfg.Cache.MaxItemSize = int64(len(payload) - 1)
	})
	headers := map[string]string{"Accept": "image/webp"}

	rec := doRequest(t, p, "/media/big.jpg", headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q, want unconverted image/jpeg", ct)
	}

	p.cache.Wait()
	doRequest(t, p, "/media/big.jpg", headers)
	if mock.Requests() != 2 {
		t.Errorf("upstream fetched %d times, want 2 (oversized payload must not be cached)", mock.Requests())
	}
}

func TestQueryOverrideStripsFormatParameter(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.ServeBytes("/media/photo.jpg", "image/jpeg", testutil.JPEGBytes(t, 8, 8))

	p := newTestProxy(t, mock, func(cfg *config.Config) {
		cfg.Server.BehindCDNQueryOverride = true
	})

	rec := doRequest(t, p, "/media/photo.jpg?format=webp&x=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/webp" {
		t.Errorf("content type = %q, want image/webp from query override", ct)
	}
	if mock.LastRequestQuery != "x=1" {
		t.Errorf("upstream query = %q, want format parameter stripped", mock.LastRequestQuery)
	}
	if vary := rec.Header().Get("Vary"); vary != "Accept" {
		t.Errorf("Vary = %q, want Accept in CDN mode", vary)
	}
}

func TestCacheKeyUsesOriginalQuery(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.ServeBytes("/media/photo.jpg", "image/jpeg", testutil.JPEGBytes(t, 8, 8))

	p := newTestProxy(t, mock, func(cfg *config.Config) {
		cfg.Server.BehindCDNQueryOverride = true
	})

	// Same resolved format, different override-parameter noise: separate
	// cache entries by design.
	doRequest(t, p, "/media/photo.jpg?format=webp", nil)
	p.cache.Wait()
	doRequest(t, p, "/media/photo.jpg?format=webp&noise=1", nil)

	if mock.Requests() != 2 {
		t.Errorf("upstream fetched %d times, want 2 (distinct raw queries are distinct keys)", mock.Requests())
	}
}

func TestCORSHeaderDefault(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.ServeBytes("/media/a.txt", "text/plain", []byte("x"))

	p := newTestProxy(t, mock, nil)
	rec := doRequest(t, p, "/media/a.txt", nil)

	if acao := rec.Header().Get("Access-Control-Allow-Origin"); acao != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", acao)
	}
}

func TestCORSHeaderUpstreamWins(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.Handle("/media/a.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "https://app.example")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("x"))
	})

	p := newTestProxy(t, mock, nil)
	rec := doRequest(t, p, "/media/a.txt", nil)

	if acao := rec.Header().Get("Access-Control-Allow-Origin"); acao != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q, want upstream value", acao)
	}
}

func TestPreserveUpstreamHeaders(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.Handle("/media/a.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream-Custom", "kept")
		w.Header().Set("Cache-Control", "no-store") // proxy-owned, dropped
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("x"))
	})

	p := newTestProxy(t, mock, func(cfg *config.Config) {
		cfg.Server.PreserveUpstreamHeaders = true
	})

	rec := doRequest(t, p, "/media/a.txt", nil)
	if got := rec.Header().Get("X-Upstream-Custom"); got != "kept" {
		t.Errorf("X-Upstream-Custom = %q, want kept", got)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != cacheControlImmutable {
		t.Errorf("Cache-Control = %q, want proxy-owned value", cc)
	}
	if got := rec.Header().Values("Via"); len(got) != 1 {
		t.Errorf("Via headers = %v, want exactly one", got)
	}

	// Preserved headers survive the cache too.
	p.cache.Wait()
	rec = doRequest(t, p, "/media/a.txt", nil)
	if got := rec.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Fatalf("X-Cache-Status = %q, want HIT", got)
	}
	if got := rec.Header().Get("X-Upstream-Custom"); got != "kept" {
		t.Errorf("X-Upstream-Custom on hit = %q, want kept", got)
	}
}

func TestProxyPrefixAlsoServed(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.ServeBytes("/proxy/ext/pic.png", "image/png", testutil.PNGBytes(t, 4, 4))

	p := newTestProxy(t, mock, nil)
	rec := doRequest(t, p, "/proxy/ext/pic.png", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for /proxy prefix", rec.Code)
	}
}

func TestMetricsReflectCacheGrowth(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.ServeBytes("/media/a.txt", "text/plain", []byte("abcdef"))

	p := newTestProxy(t, mock, nil)
	doRequest(t, p, "/media/a.txt", nil)
	p.cache.Wait()

	rec := doRequest(t, p, "/metrics", nil)
	var entries, size uint64
	if _, err := fmt.Sscanf(rec.Body.String(), "cache_entries %d\ncache_size_bytes %d\n", &entries, &size); err != nil {
		t.Fatalf("parse metrics body %q: %v", rec.Body.String(), err)
	}
	if entries != 1 {
		t.Errorf("cache_entries = %d, want 1", entries)
	}
	if size != 6 {
		t.Errorf("cache_size_bytes = %d, want 6", size)
	}
}
