package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fedimedia/mediaproxy/pkg/cache"
	"github.com/fedimedia/mediaproxy/pkg/config"
	"github.com/fedimedia/mediaproxy/pkg/imaging"
	"github.com/fedimedia/mediaproxy/pkg/logging"
	"github.com/fedimedia/mediaproxy/pkg/metrics"
	"github.com/fedimedia/mediaproxy/pkg/proxy"
	"github.com/fedimedia/mediaproxy/pkg/upstream"
)

const shutdownTimeout = 10 * time.Second

var rootFlags struct {
	configFile      string
	upstreamURL     string
	bind            string
	enableAvif      bool
	disableAvif     bool
	enableWebp      bool
	disableWebp     bool
	preserveHeaders bool
}

var rootCmd = &cobra.Command{
	Use:   "mediaproxy",
	Short: "Caching media proxy with on-the-fly AVIF/WebP conversion",
	Long: `Mediaproxy sits in front of a federated social-networking backend and
serves its media attachments: it negotiates the best image format each
client accepts, converts upstream images to AVIF or WebP on the fly, and
keeps hot responses in a bounded in-memory cache.

Configuration is resolved in order: --config file, --upstream flag,
CONFIG_PATH environment variable, config.yaml in the working directory,
UPSTREAM_URL environment variable. Flags override the loaded file.`,
	SilenceUsage: true,
	RunE:         runServer,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&rootFlags.configFile, "config", "c", "", "configuration file path")
	rootCmd.Flags().StringVarP(&rootFlags.upstreamURL, "upstream", "u", "", "upstream base URL")
	rootCmd.Flags().StringVarP(&rootFlags.bind, "bind", "b", "", "listen address override")
	rootCmd.Flags().BoolVar(&rootFlags.enableAvif, "enable-avif", false, "enable AVIF output")
	rootCmd.Flags().BoolVar(&rootFlags.disableAvif, "disable-avif", false, "disable AVIF output")
	rootCmd.Flags().BoolVar(&rootFlags.enableWebp, "enable-webp", false, "enable WebP output")
	rootCmd.Flags().BoolVar(&rootFlags.disableWebp, "disable-webp", false, "disable WebP output")
	rootCmd.Flags().BoolVar(&rootFlags.preserveHeaders, "preserve-headers", false, "forward upstream response headers")

	rootCmd.MarkFlagsMutuallyExclusive("enable-avif", "disable-avif")
	rootCmd.MarkFlagsMutuallyExclusive("enable-webp", "disable-webp")
}

// cliOptions captures the flag values relevant to configuration resolution.
// Boolean overrides are nil when the flag was not given.
type cliOptions struct {
	configFile string
	upstream   string
	bind       string
	avif       *bool
	webp       *bool
	preserve   *bool
}

func optionsFromFlags(cmd *cobra.Command) cliOptions {
	opts := cliOptions{
		configFile: rootFlags.configFile,
		upstream:   rootFlags.upstreamURL,
		bind:       rootFlags.bind,
	}

	boolTrue, boolFalse := true, false
	if cmd.Flags().Changed("enable-avif") {
		opts.avif = &boolTrue
	}
	if cmd.Flags().Changed("disable-avif") {
		opts.avif = &boolFalse
	}
	if cmd.Flags().Changed("enable-webp") {
		opts.webp = &boolTrue
	}
	if cmd.Flags().Changed("disable-webp") {
		opts.webp = &boolFalse
	}
	if cmd.Flags().Changed("preserve-headers") {
		opts.preserve = &boolTrue
	}
	return opts
}

// resolveConfig builds the effective configuration from flags, environment,
// and configuration files, then applies flag overrides on top.
func resolveConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := baseConfig(opts)
	if err != nil {
		return nil, err
	}

	if opts.upstream != "" {
		cfg.Upstream.URL = opts.upstream
	}
	if opts.bind != "" {
		cfg.Server.Bind = opts.bind
	}
	if opts.avif != nil {
		cfg.Image.EnableAvif = *opts.avif
	}
	if opts.webp != nil {
		cfg.Image.EnableWebp = *opts.webp
	}
	if opts.preserve != nil {
		cfg.Server.PreserveUpstreamHeaders = *opts.preserve
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func baseConfig(opts cliOptions) (*config.Config, error) {
	if opts.configFile != "" {
		return config.Load(opts.configFile)
	}
	if opts.upstream != "" {
		cfg := config.WithUpstream(opts.upstream)
		return &cfg, nil
	}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return config.Load("config.yaml")
	}
	if upstreamURL := os.Getenv("UPSTREAM_URL"); upstreamURL != "" {
		cfg := config.WithUpstream(upstreamURL)
		return &cfg, nil
	}
	return nil, errors.New("no upstream configured: use --config, --upstream, CONFIG_PATH, config.yaml, or UPSTREAM_URL")
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := logging.Setup(logging.FromEnv())

	cfg, err := resolveConfig(optionsFromFlags(cmd))
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", config.Version).
		Str("bind", cfg.Server.Bind).
		Str("upstream", cfg.Upstream.URL).
		Int64("cache_capacity", cfg.Cache.MaxCapacity).
		Bool("avif", cfg.Image.EnableAvif).
		Bool("webp", cfg.Image.EnableWebp).
		Msg("Starting mediaproxy")

	responseCache, err := cache.New(cfg.Cache.MaxCapacity, cfg.Cache.TTL())
	if err != nil {
		return fmt.Errorf("create response cache: %w", err)
	}
	defer responseCache.Close()

	upstreamClient, err := upstream.New(upstream.Config{
		BaseURL:   cfg.Upstream.URL,
		Timeout:   cfg.Upstream.Timeout(),
		UserAgent: "mediaproxy/" + config.Version,
	})
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}

	converter := imaging.NewConverter(cfg.Image.Quality, cfg.Image.MaxDimension,
		cfg.Image.EnableAvif, cfg.Image.EnableWebp)

	p := proxy.New(cfg, responseCache, upstreamClient, converter)

	mux := http.NewServeMux()
	mux.Handle("/metrics/prometheus", metrics.Handler())
	mux.Handle("/", p.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Bind,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("bind", cfg.Server.Bind).Msg("Listening")
		errCh <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info().Msg("Stopped")
	return nil
}
