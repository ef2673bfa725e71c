package cache

// Key identifies a cached response by resource identity and resolved output
// format. Two requests share an entry iff both fields match exactly.
type Key struct {
	// Resource is the request path plus its raw, unmodified query string
	// (including the ? separator when a query is present). The query is
	// deliberately not normalized: requests differing only in query noise
	// occupy separate entries.
	Resource string

	// Format is the stable textual tag of the resolved output format.
	Format string
}

// NewKey builds a Key from a request path, its raw query string, and the
// resolved format tag.
func NewKey(path, rawQuery, format string) Key {
	resource := path
	if rawQuery != "" {
		resource += "?" + rawQuery
	}
	return Key{Resource: resource, Format: format}
}

// String renders a deterministic storage key.
// Format: media:<format>:<resource>
//
// Format tags contain no colon, so the rendering is injective.
func (k Key) String() string {
	return "media:" + k.Format + ":" + k.Resource
}
