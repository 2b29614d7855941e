// Package cache persists parsed catalog and custom-pattern snapshots so a
// restart can skip re-parsing unchanged sources.
//
// A snapshot is a hit only when its metadata entry exists, the SHA-256 of the
// current source file equals the recorded checksum, and the entry is younger
// than the TTL. Any read or decode problem is reported as a miss.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cisec/aisac-logformat/internal/catalog"
)

// Kind identifies a cached snapshot.
type Kind string

const (
	KindPatterns Kind = "custom_patterns"
	KindFormats  Kind = "log_formats"
)

const (
	metadataFile = "cache_metadata.json"
	fileSuffix   = ".cache"

	// DefaultTTL is the maximum age of a snapshot.
	DefaultTTL = 7 * 24 * time.Hour
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("cache manager closed")

// Config configures the cache manager.
type Config struct {
	Dir string
	TTL time.Duration
}

// Entry is the metadata recorded for one snapshot.
type Entry struct {
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

// Manager reads and writes snapshots in a single directory.
type Manager struct {
	dir    string
	ttl    time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool

	now func() time.Time
}

// New creates the cache directory if needed and returns a manager for it.
func New(cfg Config, logger zerolog.Logger) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		dir:    cfg.Dir,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
		now:    time.Now,
	}, nil
}

// Dir returns the cache directory.
func (m *Manager) Dir() string {
	return m.dir
}

// LoadFormats returns the cached catalog formats for sourcePath.
func (m *Manager) LoadFormats(sourcePath string) ([]*catalog.Format, bool) {
	var formats []*catalog.Format
	if !m.load(KindFormats, sourcePath, &formats) {
		return nil, false
	}
	return formats, true
}

// SaveFormats stores formats under checksum, the Checksum of the source
// taken before it was parsed.
func (m *Manager) SaveFormats(formats []*catalog.Format, checksum string) error {
	return m.save(KindFormats, checksum, formats)
}

// LoadCustomPatterns returns the cached custom sub-patterns for sourcePath.
func (m *Manager) LoadCustomPatterns(sourcePath string) (map[string]string, bool) {
	var patterns map[string]string
	if !m.load(KindPatterns, sourcePath, &patterns) {
		return nil, false
	}
	return patterns, true
}

// SaveCustomPatterns stores patterns under checksum, the Checksum of the
// source taken before it was parsed.
func (m *Manager) SaveCustomPatterns(patterns map[string]string, checksum string) error {
	return m.save(KindPatterns, checksum, patterns)
}

// SaveChecksum records the current checksum of sourcePath for kind.
func (m *Manager) SaveChecksum(kind Kind, sourcePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	sum, err := Checksum(sourcePath)
	if err != nil {
		return fmt.Errorf("checksumming %s: %w", sourcePath, err)
	}
	return m.saveChecksumLocked(kind, sum)
}

// IsValid reports whether the snapshot for kind is usable for sourcePath.
func (m *Manager) IsValid(kind Kind, sourcePath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.validLocked(kind, sourcePath)
}

// Invalidate removes every snapshot and the metadata file.
func (m *Manager) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, name := range []string{string(KindPatterns) + fileSuffix, string(KindFormats) + fileSuffix, metadataFile} {
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	m.logger.Info().Msg("Cache invalidated")
	return nil
}

// Rebuild drops all snapshots; the next load repopulates them from source.
func (m *Manager) Rebuild() error {
	return m.Invalidate()
}

// Close marks the manager closed. Writes fail afterwards; reads still work.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Manager) load(kind Kind, sourcePath string, v any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.validLocked(kind, sourcePath) {
		return false
	}

	data, err := os.ReadFile(m.snapshotPath(kind))
	if err != nil {
		m.logger.Debug().Err(err).Str("kind", string(kind)).Msg("Cache miss")
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		m.logger.Warn().Err(err).Str("kind", string(kind)).Msg("Corrupt cache snapshot")
		return false
	}

	m.logger.Debug().Str("kind", string(kind)).Msg("Cache hit")
	return true
}

func (m *Manager) save(kind Kind, checksum string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if checksum == "" {
		return fmt.Errorf("%s snapshot: empty checksum", kind)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s snapshot: %w", kind, err)
	}
	if err := writeAtomic(m.snapshotPath(kind), data); err != nil {
		return fmt.Errorf("writing %s snapshot: %w", kind, err)
	}
	return m.saveChecksumLocked(kind, checksum)
}

func (m *Manager) saveChecksumLocked(kind Kind, sum string) error {
	meta := m.readMetadata()
	meta[string(kind)] = Entry{CreatedAt: m.now(), Checksum: sum}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(m.dir, metadataFile), data); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}
	return nil
}

func (m *Manager) validLocked(kind Kind, sourcePath string) bool {
	entry, ok := m.readMetadata()[string(kind)]
	if !ok {
		return false
	}
	if m.now().Sub(entry.CreatedAt) >= m.ttl {
		return false
	}
	sum, err := Checksum(sourcePath)
	if err != nil {
		return false
	}
	return sum == entry.Checksum
}

// readMetadata returns an empty map when the file is missing or corrupt.
func (m *Manager) readMetadata() map[string]Entry {
	meta := make(map[string]Entry)
	data, err := os.ReadFile(filepath.Join(m.dir, metadataFile))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		m.logger.Warn().Err(err).Msg("Corrupt cache metadata")
		return make(map[string]Entry)
	}
	return meta
}

func (m *Manager) snapshotPath(kind Kind) string {
	return filepath.Join(m.dir, string(kind)+fileSuffix)
}

// Checksum returns the hex SHA-256 of the file at path.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeAtomic writes to a temp file first, then renames it into place.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
