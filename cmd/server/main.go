// Package main is the entry point for the AISAC log format recommendation service.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/cisec/aisac-logformat/internal/bootstrap"
	"github.com/cisec/aisac-logformat/internal/config"
	"github.com/cisec/aisac-logformat/internal/metrics"
	"github.com/cisec/aisac-logformat/internal/server"
	"github.com/cisec/aisac-logformat/internal/watcher"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfgFile        string
	listenAddr     string
	certFile       string
	keyFile        string
	logLevel       string
	apiToken       string
	allowedOrigins string
	watch          bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "aisac-logformat-server",
		Short:   "AISAC Log Format Recommendation Service",
		Long:    `Serves log format recommendations for raw log lines over REST and WebSocket.`,
		Version: version,
		RunE:    run,
	}

	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "a", "", "listen address (overrides config)")
	rootCmd.Flags().StringVar(&certFile, "cert", "", "TLS certificate file")
	rootCmd.Flags().StringVar(&keyFile, "key", "", "TLS key file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&apiToken, "api-token", "", "API bearer token for REST API authentication")
	rootCmd.Flags().StringVar(&allowedOrigins, "allowed-origins", "", "Comma-separated list of allowed WebSocket origins")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "reload the catalog when its files change")

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Commit: ` + commit + `
Build Date: ` + buildDate + "\n")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	logger := bootstrap.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format, "aisac-logformat")
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("listen", cfg.Server.Listen).
		Msg("Starting AISAC Log Format Service")

	if cfg.Server.APIToken == "" {
		logger.Warn().Msg("No API token configured; REST API requests will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("catalog", cfg.Catalog.Path).Msg("Failed to load catalog")
	}
	defer app.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, "aisac-logformat")
	m.SetCatalogFormats(app.Recommender.Catalog().Len())
	app.Recommender.Engine().SetObserver(m)
	app.Recommender.SetObserver(m)

	if cfg.Watch.Enabled {
		w, err := watcher.New(watcher.Config{Paths: app.WatchPaths(), Debounce: cfg.Watch.Debounce},
			func(ctx context.Context) error {
				_, err := app.Recommender.Reload(ctx)
				return err
			}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create watcher")
		}
		if err := w.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start watcher")
		}
		defer w.Stop()
	}

	srv := server.New(server.Config{
		Listen:         cfg.Server.Listen,
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		CertFile:       cfg.Server.CertFile,
		KeyFile:        cfg.Server.KeyFile,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxBatchLines:  cfg.Server.MaxBatchLines,
		Version:        version,
		Defaults:       bootstrap.Options(cfg),
	}, app.Recommender, reg, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Server error")
		return err
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// applyFlags overrides configuration with flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.Listen = listenAddr
	}
	if flags.Changed("cert") {
		cfg.Server.CertFile = certFile
	}
	if flags.Changed("key") {
		cfg.Server.KeyFile = keyFile
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("api-token") {
		cfg.Server.APIToken = apiToken
	}
	if flags.Changed("allowed-origins") {
		cfg.Server.AllowedOrigins = nil
		for _, origin := range strings.Split(allowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, origin)
			}
		}
	}
	if flags.Changed("watch") {
		cfg.Watch.Enabled = watch
	}
}
