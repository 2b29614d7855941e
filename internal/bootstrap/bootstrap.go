// Package bootstrap wires configuration into a ready recommender.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cisec/aisac-logformat/internal/cache"
	"github.com/cisec/aisac-logformat/internal/config"
	"github.com/cisec/aisac-logformat/internal/grok"
	"github.com/cisec/aisac-logformat/internal/matcher"
	"github.com/cisec/aisac-logformat/internal/recommend"
	"github.com/cisec/aisac-logformat/internal/remote"
)

// App holds the components built from one configuration.
type App struct {
	Config      *config.Config
	Cache       *cache.Manager // nil when the persisted cache is disabled
	Source      *recommend.FileSource
	Recommender *recommend.Recommender
	Logger      zerolog.Logger
}

// NewLogger returns a logger writing to w at the given level. Format
// "console" selects human-readable output, anything else JSON.
func NewLogger(w io.Writer, level, format, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		l = zerolog.InfoLevel
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(l).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Build loads the catalog and constructs the recommender.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	if cfg.Cache.Enabled {
		m, err := cache.New(cache.Config{Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL}, logger)
		if err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Cache.Dir).Msg("Cache unavailable, continuing without it")
		} else {
			app.Cache = m
		}
	}

	app.Source = &recommend.FileSource{
		CatalogPath:  cfg.Catalog.Path,
		PatternsPath: cfg.Catalog.CustomPatterns,
		Cache:        app.Cache,
		Logger:       logger,
	}

	snap, err := app.Source.Load(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	cat := snap.Catalog

	compiler := grok.NewCompiler(snap.Library, grok.CompilerOptions{
		MatchTimeout: cfg.Matching.MatchTimeout,
		IgnoreCase:   cfg.Matching.CaseInsensitive,
	})
	engine := matcher.NewEngine(compiler, cfg.Matching.MatcherOptions(), logger)

	rec, err := recommend.New(cat, engine, recommend.Config{
		Workers:                cfg.Recommend.Workers,
		TaskTimeout:            cfg.Recommend.TaskTimeout,
		BatchParallelThreshold: cfg.Recommend.BatchParallelThreshold,
		MemoSize:               cfg.Recommend.MemoSize,
	}, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("creating recommender: %w", err)
	}
	rec.SetSource(app.Source.Fresh)
	app.Recommender = rec

	logger.Info().
		Int("formats", cat.Len()).
		Int("patterns", cat.PatternCount()).
		Int("sub_patterns", snap.Library.Len()).
		Msg("Catalog loaded")

	return app, nil
}

// Options returns the request defaults derived from the configuration.
func Options(cfg *config.Config) recommend.Options {
	opts := recommend.DefaultOptions()
	opts.MaxResults = cfg.Recommend.MaxResults
	opts.MinConfidence = cfg.Recommend.MinConfidence
	opts.IncludePartialMatches = cfg.Matching.PartialMatches
	opts.Timeout = cfg.Recommend.TaskTimeout
	return opts
}

// RemoteClient builds a client for the configured remote service.
func RemoteClient(cfg *config.Config, logger zerolog.Logger) (*remote.Client, error) {
	return remote.NewClient(remote.Config{
		URL:           cfg.Remote.URL,
		AuthToken:     cfg.Remote.AuthToken,
		Timeout:       cfg.Remote.Timeout,
		RetryAttempts: cfg.Remote.RetryAttempts,
		RetryDelay:    cfg.Remote.RetryDelay,
		SkipTLSVerify: cfg.Remote.SkipTLSVerify,
	}, logger)
}

// WatchPaths returns the source files a watcher should follow.
func (a *App) WatchPaths() []string {
	paths := []string{a.Config.Catalog.Path}
	if a.Config.Catalog.CustomPatterns != "" {
		paths = append(paths, a.Config.Catalog.CustomPatterns)
	}
	return paths
}

// Close releases the cache manager.
func (a *App) Close() error {
	if a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}
