// Package imaging provides image format detection, conversion, and resizing
// for the media proxy pipeline.
package imaging

import "strings"

// OutputFormat represents a supported image output format.
type OutputFormat int

const (
	// FormatOriginal passes upstream bytes through unmodified.
	FormatOriginal OutputFormat = iota

	// FormatAvif encodes to AVIF (lossy, configured quality).
	FormatAvif

	// FormatWebP encodes to WebP (always lossless).
	FormatWebP

	// FormatJpeg encodes to JPEG (lossy, configured quality).
	FormatJpeg

	// FormatPng encodes to PNG (lossless).
	FormatPng
)

// String returns the stable textual tag for the format, used in cache keys
// and logs.
func (f OutputFormat) String() string {
	switch f {
	case FormatAvif:
		return "Avif"
	case FormatWebP:
		return "WebP"
	case FormatJpeg:
		return "Jpeg"
	case FormatPng:
		return "Png"
	default:
		return "Original"
	}
}

// IsImageContentType reports whether the content type declares an image.
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// FormatFromContentType maps a declared content type to an OutputFormat.
// Returns false for content types outside the convertible set.
func FormatFromContentType(contentType string) (OutputFormat, bool) {
	switch contentType {
	case "image/avif":
		return FormatAvif, true
	case "image/webp":
		return FormatWebP, true
	case "image/jpeg", "image/jpg":
		return FormatJpeg, true
	case "image/png":
		return FormatPng, true
	default:
		return FormatOriginal, false
	}
}

// Satisfies reports whether an image already in format have needs no
// conversion to serve a request for want. FormatOriginal is satisfied by
// any upstream format.
func Satisfies(have, want OutputFormat) bool {
	return have == want || want == FormatOriginal
}
