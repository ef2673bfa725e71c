// Package negotiate resolves the desired output format for a request from
// its Accept header and, optionally, a CDN-compatibility query parameter.
package negotiate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/fedimedia/mediaproxy/pkg/imaging"
)

// Options controls which negotiation signals are honored.
type Options struct {
	// AvifEnabled allows image/avif Accept entries to select AVIF.
	AvifEnabled bool

	// WebPEnabled allows image/webp Accept entries to select WebP.
	WebPEnabled bool

	// QueryOverride enables the format query parameter, for intermediaries
	// that cannot vary cached responses by request header.
	QueryOverride bool
}

// Resolve determines the desired output format from the request signals and
// returns it together with the query string to forward upstream. It is pure
// and total: absence of a usable signal yields FormatOriginal and the query
// is forwarded unchanged.
func Resolve(acceptHeader, rawQuery string, opts Options) (imaging.OutputFormat, string) {
	if opts.QueryOverride {
		if format, stripped, ok := ResolveQuery(rawQuery); ok {
			return format, stripped
		}
	}

	return ParseAcceptHeader(acceptHeader, opts.AvifEnabled, opts.WebPEnabled), rawQuery
}

// ResolveQuery scans rawQuery for a format parameter. It returns the
// override format, the query string with the format parameter removed, and
// whether a valid override was found.
//
// The parameter value is matched after replacing + with space, trimming,
// and lower-casing; only exact "avif" and "webp" select a format. No
// percent-decoding is performed: the only producer of this parameter is a
// normalizing edge proxy, and all other parameters must be forwarded
// upstream byte-exactly in their original order.
func ResolveQuery(rawQuery string) (imaging.OutputFormat, string, bool) {
	if rawQuery == "" {
		return imaging.FormatOriginal, "", false
	}

	format := imaging.FormatOriginal
	found := false
	kept := make([]string, 0, 4)

	for _, param := range strings.Split(rawQuery, "&") {
		key, value, _ := strings.Cut(param, "=")
		if key != "format" {
			kept = append(kept, param)
			continue
		}

		normalized := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(value, "+", " ")))
		switch normalized {
		case "avif":
			format = imaging.FormatAvif
			found = true
		case "webp":
			format = imaging.FormatWebP
			found = true
		}
	}

	return format, strings.Join(kept, "&"), found
}

// ParseAcceptHeader maps an Accept header to the preferred enabled output
// format. Candidates are ranked by q-value with a stable sort, so ties keep
// their original header order. Unusable headers yield FormatOriginal.
func ParseAcceptHeader(accept string, avifEnabled, webpEnabled bool) imaging.OutputFormat {
	type candidate struct {
		format  imaging.OutputFormat
		quality float64
	}

	var candidates []candidate

	for _, part := range strings.Split(accept, ",") {
		segments := strings.Split(strings.TrimSpace(part), ";")
		mediaType := strings.TrimSpace(segments[0])

		quality := 1.0
		for _, seg := range segments[1:] {
			seg = strings.TrimSpace(seg)
			if raw, ok := strings.CutPrefix(seg, "q="); ok {
				if q, err := strconv.ParseFloat(raw, 64); err == nil {
					quality = q
					break
				}
			}
		}

		var format imaging.OutputFormat
		switch {
		case mediaType == "image/avif" && avifEnabled:
			format = imaging.FormatAvif
		case mediaType == "image/webp" && webpEnabled:
			format = imaging.FormatWebP
		case mediaType == "image/jpeg":
			format = imaging.FormatJpeg
		case mediaType == "image/png":
			format = imaging.FormatPng
		case mediaType == "image/*" || mediaType == "*/*":
			format = imaging.FormatOriginal
		default:
			continue
		}

		candidates = append(candidates, candidate{format: format, quality: quality})
	}

	// Stable sort: NaN comparisons are false, so unparsable qualities are
	// treated as equal and keep header order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].quality > candidates[j].quality
	})

	if len(candidates) == 0 {
		return imaging.FormatOriginal
	}
	return candidates[0].format
}
