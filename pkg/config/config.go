// Package config loads, defaults, and validates the media proxy
// configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the mediaproxy release version, used in the default Via header
// and the upstream User-Agent.
const Version = "0.1.0"

// Config is the root configuration consumed by the pipeline. It is validated
// once at startup and read-only afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Image    ImageConfig    `yaml:"image"`
}

// ServerConfig configures the HTTP server and response policy.
type ServerConfig struct {
	// Bind is the listen address, e.g. "0.0.0.0:3000".
	Bind string `yaml:"bind"`

	// ViaHeader is the proxy identifier set on every response.
	ViaHeader string `yaml:"via_header"`

	// PreserveUpstreamHeaders forwards upstream headers (minus a denylist)
	// on proxied responses.
	PreserveUpstreamHeaders bool `yaml:"preserve_upstream_headers"`

	// BehindCDNQueryOverride enables the format query parameter and the
	// Vary: Accept response header, for CDNs that cannot vary cached
	// content by request header.
	BehindCDNQueryOverride bool `yaml:"behind_cdn_query_override"`
}

// UpstreamConfig configures the upstream fetch.
type UpstreamConfig struct {
	// URL is the upstream base URL, e.g. "https://social.example.com".
	URL string `yaml:"url"`

	// TimeoutSeconds bounds each upstream request.
	TimeoutSeconds int `yaml:"timeout"`
}

// Timeout returns the upstream timeout as a duration.
func (u UpstreamConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// MaxCapacity is the weighted cache budget in bytes.
	MaxCapacity int64 `yaml:"max_capacity"`

	// TTLSeconds is the fixed time-to-live of each entry from insertion.
	TTLSeconds int `yaml:"ttl"`

	// MaxItemSize is the largest cacheable (and convertible) payload in
	// bytes.
	MaxItemSize int64 `yaml:"max_item_size"`
}

// TTL returns the entry time-to-live as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ImageConfig configures image conversion.
type ImageConfig struct {
	EnableAvif bool `yaml:"enable_avif"`
	EnableWebp bool `yaml:"enable_webp"`

	// Quality is the lossy encode quality, 1-100. WebP output is always
	// lossless and ignores it.
	Quality int `yaml:"quality"`

	// MaxDimension is the longest allowed output side in pixels; larger
	// images are scaled down preserving aspect ratio.
	MaxDimension int `yaml:"max_dimension"`
}

// Default returns the built-in configuration without an upstream URL.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:      "0.0.0.0:3000",
			ViaHeader: "mediaproxy/" + Version,
		},
		Upstream: UpstreamConfig{
			TimeoutSeconds: 30,
		},
		Cache: CacheConfig{
			MaxCapacity: 10000,
			TTLSeconds:  3600,
			MaxItemSize: 10 * 1024 * 1024,
		},
		Image: ImageConfig{
			EnableAvif:   true,
			EnableWebp:   true,
			Quality:      85,
			MaxDimension: 4096,
		},
	}
}

// WithUpstream returns the default configuration pointed at the given
// upstream URL.
func WithUpstream(upstreamURL string) Config {
	cfg := Default()
	cfg.Upstream.URL = upstreamURL
	return cfg
}

// Load reads a YAML configuration file. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse configuration file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Upstream.URL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("invalid upstream URL %q", c.Upstream.URL)
	}

	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image quality must be between 1 and 100 (got %d)", c.Image.Quality)
	}

	if c.Cache.MaxCapacity <= 0 {
		return fmt.Errorf("cache max_capacity must be positive (got %d)", c.Cache.MaxCapacity)
	}

	return nil
}
