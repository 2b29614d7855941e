package recommend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cisec/aisac-logformat/internal/cache"
	"github.com/cisec/aisac-logformat/internal/catalog"
	"github.com/cisec/aisac-logformat/internal/grok"
)

// FileSource loads the catalog and custom sub-patterns from disk, going
// through the persisted cache when one is configured. Every load builds a new
// library from the base patterns plus the custom file, so definitions removed
// from the file disappear on reload.
type FileSource struct {
	CatalogPath  string
	PatternsPath string
	Cache        *cache.Manager
	Logger       zerolog.Logger
}

// Load returns the snapshot, preferring valid cache snapshots.
func (s *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	return s.load(ctx, false)
}

// Fresh re-reads both sources and rewrites the cache snapshots.
func (s *FileSource) Fresh(ctx context.Context) (*Snapshot, error) {
	return s.load(ctx, true)
}

func (s *FileSource) load(ctx context.Context, fresh bool) (*Snapshot, error) {
	logger := s.Logger.With().Str("component", "source").Logger()

	lib := grok.DefaultLibrary()
	if s.PatternsPath != "" {
		patterns, err := s.loadPatterns(fresh, logger)
		if err != nil {
			return nil, err
		}
		if skipped := lib.AddAll(patterns); skipped > 0 {
			logger.Warn().Int("skipped", skipped).Msg("Skipped invalid custom patterns")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	formats, err := s.loadFormats(fresh, logger)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(formats)
	if err != nil {
		return nil, fmt.Errorf("indexing catalog: %w", err)
	}
	return &Snapshot{Catalog: cat, Library: lib}, nil
}

func (s *FileSource) loadPatterns(fresh bool, logger zerolog.Logger) (map[string]string, error) {
	if s.Cache != nil && !fresh {
		if patterns, ok := s.Cache.LoadCustomPatterns(s.PatternsPath); ok {
			logger.Info().Int("patterns", len(patterns)).Msg("Loaded custom patterns from cache")
			return patterns, nil
		}
	}

	sum := s.checksum(s.PatternsPath, logger)
	patterns, err := grok.LoadPatternFile(s.PatternsPath)
	if err != nil {
		return nil, fmt.Errorf("loading custom patterns: %w", err)
	}
	logger.Info().Int("patterns", len(patterns)).Str("path", s.PatternsPath).Msg("Loaded custom patterns")

	if sum != "" {
		if err := s.Cache.SaveCustomPatterns(patterns, sum); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache custom patterns")
		}
	}
	return patterns, nil
}

func (s *FileSource) loadFormats(fresh bool, logger zerolog.Logger) ([]*catalog.Format, error) {
	if s.Cache != nil && !fresh {
		if formats, ok := s.Cache.LoadFormats(s.CatalogPath); ok {
			logger.Info().Int("formats", len(formats)).Msg("Loaded formats from cache")
			return formats, nil
		}
	}

	sum := s.checksum(s.CatalogPath, logger)
	formats, err := catalog.LoadFile(s.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	logger.Info().Int("formats", len(formats)).Str("path", s.CatalogPath).Msg("Loaded formats")

	if sum != "" {
		if err := s.Cache.SaveFormats(formats, sum); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache formats")
		}
	}
	return formats, nil
}

// checksum hashes path ahead of parsing so the snapshot is recorded against
// the bytes that were actually read. It returns "" when caching is disabled
// or the file cannot be hashed.
func (s *FileSource) checksum(path string, logger zerolog.Logger) string {
	if s.Cache == nil {
		return ""
	}
	sum, err := cache.Checksum(path)
	if err != nil {
		logger.Debug().Err(err).Str("path", path).Msg("Cannot checksum source")
		return ""
	}
	return sum
}
