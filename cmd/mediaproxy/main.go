// Mediaproxy is a caching, format-transcoding reverse proxy for media
// attachments served by a federated social-networking backend.
//
// It negotiates modern image formats (AVIF, WebP) per request, converts
// upstream images on the fly, and serves repeat requests from a bounded
// in-memory cache.
//
// Usage:
//
//	# Serve with an upstream flag
//	mediaproxy --upstream https://social.example.com
//
//	# Serve from a configuration file
//	mediaproxy --config /etc/mediaproxy/config.yaml
//
//	# Show version information
//	mediaproxy version
package main

func main() {
	Execute()
}
