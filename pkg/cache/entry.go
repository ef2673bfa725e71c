package cache

import "net/http"

// CachedResponse is a previously produced response payload. It is immutable
// once stored and shared by reference across concurrent readers; callers
// must not mutate it after insertion.
type CachedResponse struct {
	// Data is the response body.
	Data []byte

	// ContentType is the response Content-Type.
	ContentType string

	// UpstreamHeaders holds the upstream response headers, populated only
	// when header preservation is enabled.
	UpstreamHeaders http.Header
}

// Weight returns the entry's cache weight: its data length, minimum 1.
func (r *CachedResponse) Weight() int64 {
	if len(r.Data) == 0 {
		return 1
	}
	return int64(len(r.Data))
}
