package proxy

import "net/http"

// cacheControlImmutable is set on every success response: media assets are
// content-addressed by path and never change.
const cacheControlImmutable = "public, max-age=31536000, immutable"

// hopByHopDenylist names headers that never cross the proxy: they describe
// the upstream connection, not the payload.
var hopByHopDenylist = map[string]struct{}{
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Connection":        {},
}

// proxyOwnedDenylist additionally excludes, on success responses, the
// headers the proxy sets itself, so preservation cannot duplicate them.
var proxyOwnedDenylist = map[string]struct{}{
	"Content-Length":    {},
	"Transfer-Encoding": {},
	"Connection":        {},
	"Content-Type":      {},
	"Via":               {},
	"Cache-Control":     {},
	"X-Cache-Status":    {},
}

// copyHeaders copies src into dst, skipping names in deny. Names in deny are
// in canonical form.
func copyHeaders(dst, src http.Header, deny map[string]struct{}) {
	for name, values := range src {
		if _, denied := deny[http.CanonicalHeaderKey(name)]; denied {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// setCORSHeader applies the Access-Control-Allow-Origin policy: the
// upstream's own value wins whenever it supplied one; otherwise the proxy
// allows any origin.
func setCORSHeader(dst http.Header, upstreamHeaders http.Header) {
	if dst.Get("Access-Control-Allow-Origin") != "" {
		return
	}
	if upstreamHeaders != nil {
		if values := upstreamHeaders.Values("Access-Control-Allow-Origin"); len(values) > 0 {
			for _, v := range values {
				dst.Add("Access-Control-Allow-Origin", v)
			}
			return
		}
	}
	dst.Set("Access-Control-Allow-Origin", "*")
}

// writeSuccess assembles a 200 response from a produced payload.
// upstreamHeaders may be nil (header preservation disabled, or a cache hit
// stored without them).
func (p *Proxy) writeSuccess(w http.ResponseWriter, data []byte, contentType string, upstreamHeaders http.Header, cacheStatus string) {
	h := w.Header()

	if p.cfg.Server.PreserveUpstreamHeaders && upstreamHeaders != nil {
		copyHeaders(h, upstreamHeaders, proxyOwnedDenylist)
	}

	h.Set("Content-Type", contentType)
	h.Set("Via", p.cfg.Server.ViaHeader)
	h.Set("Cache-Control", cacheControlImmutable)
	h.Set("X-Cache-Status", cacheStatus)
	if p.cfg.Server.BehindCDNQueryOverride {
		h.Set("Vary", "Accept")
	}
	setCORSHeader(h, upstreamHeaders)

	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// writePassthrough forwards a non-success upstream response verbatim:
// original status, original body, no caching, no conversion. Location always
// survives so redirects reach the client even when preservation is off.
func (p *Proxy) writePassthrough(w http.ResponseWriter, status int, body []byte, upstreamHeaders http.Header, contentType string) {
	h := w.Header()

	if p.cfg.Server.PreserveUpstreamHeaders {
		copyHeaders(h, upstreamHeaders, hopByHopDenylist)
	} else if loc := upstreamHeaders.Get("Location"); loc != "" {
		h.Set("Location", loc)
	}

	h.Set("Content-Type", contentType)
	h.Set("Via", p.cfg.Server.ViaHeader)
	setCORSHeader(h, upstreamHeaders)

	w.WriteHeader(status)
	w.Write(body)
}

// writeError writes a terminal client-visible failure as plain text. The Via
// header is still set so the failure is attributable to the proxy.
func (p *Proxy) writeError(w http.ResponseWriter, perr *Error) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Via", p.cfg.Server.ViaHeader)
	w.WriteHeader(perr.Status())
	w.Write([]byte(perr.Message()))
}
