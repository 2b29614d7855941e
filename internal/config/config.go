// Package config handles recommender and server configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cisec/aisac-logformat/internal/matcher"
)

// Config holds the full configuration.
type Config struct {
	Catalog   CatalogSettings   `yaml:"catalog"`
	Cache     CacheSettings     `yaml:"cache"`
	Matching  MatchingSettings  `yaml:"matching"`
	Recommend RecommendSettings `yaml:"recommend"`
	Server    ServerSettings    `yaml:"server"`
	Remote    RemoteSettings    `yaml:"remote"`
	Watch     WatchSettings     `yaml:"watch"`
	Logging   LoggingSettings   `yaml:"logging"`
}

// CatalogSettings locates the format catalog and custom sub-patterns.
type CatalogSettings struct {
	Path           string `yaml:"path"`
	CustomPatterns string `yaml:"custom_patterns"`
}

// CacheSettings configures the persisted catalog cache.
type CacheSettings struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// MatchingSettings configures the per-format matching engine.
type MatchingSettings struct {
	ValidateFields  bool               `yaml:"validate_fields"`
	PartialMatches  bool               `yaml:"partial_matches"`
	CaseInsensitive bool               `yaml:"case_insensitive"`
	Multiline       bool               `yaml:"multiline"`
	MatchTimeout    time.Duration      `yaml:"match_timeout"`
	Thresholds      matcher.Thresholds `yaml:"thresholds"`
	GroupWeights    map[string]float64 `yaml:"group_weights"`
}

// RecommendSettings configures fan-out and result shaping.
type RecommendSettings struct {
	MaxResults    int           `yaml:"max_results"`
	MinConfidence float64       `yaml:"min_confidence"`
	Workers       int           `yaml:"workers"` // 0 means GOMAXPROCS
	TaskTimeout   time.Duration `yaml:"task_timeout"`
	// Batches larger than this fan out across lines.
	BatchParallelThreshold int `yaml:"batch_parallel_threshold"`
	MemoSize               int `yaml:"memo_size"` // 0 disables the result memo
}

// ServerSettings configures the HTTP service.
type ServerSettings struct {
	Listen         string        `yaml:"listen"`
	APIToken       string        `yaml:"api_token"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxBatchLines  int           `yaml:"max_batch_lines"`
}

// RemoteSettings configures delegation to a remote recommendation service.
type RemoteSettings struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	AuthToken     string        `yaml:"auth_token"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	SkipTLSVerify bool          `yaml:"skip_tls_verify"`
}

// WatchSettings configures catalog file watching.
type WatchSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingSettings contains logging configuration.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogSettings{
			Path: "/etc/aisac/logformat/formats.json",
		},
		Cache: CacheSettings{
			Enabled: true,
			Dir:     "/var/lib/aisac/logformat/cache",
			TTL:     7 * 24 * time.Hour,
		},
		Matching: MatchingSettings{
			ValidateFields: true,
			PartialMatches: true,
			MatchTimeout:   time.Second,
			Thresholds:     matcher.DefaultThresholds(),
			GroupWeights:   matcher.DefaultGroupWeights(),
		},
		Recommend: RecommendSettings{
			MaxResults:             10,
			MinConfidence:          0,
			TaskTimeout:            5 * time.Second,
			BatchParallelThreshold: 10,
			MemoSize:               1024,
		},
		Server: ServerSettings{
			Listen:        ":8090",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  60 * time.Second,
			MaxBatchLines: 1000,
		},
		Remote: RemoteSettings{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
		},
		Watch: WatchSettings{
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file over the defaults. An empty
// path yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOGFMT_CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("LOGFMT_CUSTOM_PATTERNS"); v != "" {
		c.Catalog.CustomPatterns = v
	}
	if v := os.Getenv("LOGFMT_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("LOGFMT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOGFMT_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("LOGFMT_REMOTE_URL"); v != "" {
		c.Remote.URL = v
		c.Remote.Enabled = true
	}
	if v := os.Getenv("LOGFMT_REMOTE_TOKEN"); v != "" {
		c.Remote.AuthToken = v
	}
	if v := os.Getenv("LOGFMT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Recommend.Workers = n
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}

	if c.Cache.Enabled {
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache dir is required when cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
	}

	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching config: %w", err)
	}
	if err := c.Recommend.Validate(); err != nil {
		return fmt.Errorf("recommend config: %w", err)
	}
	if c.Matching.MatchTimeout > c.Recommend.TaskTimeout {
		return fmt.Errorf("matching.match_timeout (%s) must not exceed recommend.task_timeout (%s)",
			c.Matching.MatchTimeout, c.Recommend.TaskTimeout)
	}

	if c.Remote.Enabled && c.Remote.URL == "" {
		return fmt.Errorf("remote url is required when remote is enabled")
	}

	return nil
}

// Validate validates the matching settings.
func (m *MatchingSettings) Validate() error {
	if m.MatchTimeout <= 0 {
		return fmt.Errorf("match_timeout must be positive")
	}
	th := m.Thresholds
	if th.MinCoverage <= 0 || th.MinCoverage > 1 {
		return fmt.Errorf("thresholds.min_coverage must be in (0, 1], got %v", th.MinCoverage)
	}
	if th.MinPartialScore < 0 || th.MinPartialScore >= 1 {
		return fmt.Errorf("thresholds.min_partial_score must be in [0, 1), got %v", th.MinPartialScore)
	}
	if th.FieldCountCap <= 0 {
		return fmt.Errorf("thresholds.field_count_cap must be positive")
	}
	if th.CompleteConfidence <= 0 || th.CompleteConfidence > 100 {
		return fmt.Errorf("thresholds.complete_confidence must be in (0, 100]")
	}
	if th.PartialConfidence <= 0 || th.PartialConfidence > th.CompleteConfidence {
		return fmt.Errorf("thresholds.partial_confidence must be in (0, complete_confidence]")
	}
	for group, w := range m.GroupWeights {
		if w <= 0 {
			return fmt.Errorf("group weight for %s must be positive", group)
		}
	}
	return nil
}

// Validate validates the recommend settings.
func (r *RecommendSettings) Validate() error {
	if r.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive")
	}
	if r.MinConfidence < 0 || r.MinConfidence > 100 {
		return fmt.Errorf("min_confidence must be in [0, 100]")
	}
	if r.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if r.TaskTimeout <= 0 {
		return fmt.Errorf("task_timeout must be positive")
	}
	if r.MemoSize < 0 {
		return fmt.Errorf("memo_size must not be negative")
	}
	return nil
}

// MatcherOptions converts the matching settings for the engine.
func (m *MatchingSettings) MatcherOptions() matcher.Options {
	return matcher.Options{
		ValidateFields:  m.ValidateFields,
		PartialMatches:  m.PartialMatches,
		CaseInsensitive: m.CaseInsensitive,
		Multiline:       m.Multiline,
		Thresholds:      m.Thresholds,
		GroupWeights:    m.GroupWeights,
	}
}
