package bootstrap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cisec/aisac-logformat/internal/cache"
	"github.com/cisec/aisac-logformat/internal/config"
)

const testCatalog = `[
  {
    "format_id": "FW_1.00",
    "format_name": "FW",
    "group_name": "Firewall",
    "vendor": "ACME",
    "log_type": [
      {"type": "Traffic", "patterns": [{"exp_name": "verdict", "grok_exp": "%{IP:src} %{FWVERDICT:verdict} %{IP:dst}", "order": 1}]}
    ]
  }
]`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Catalog.Path = writeFile(t, dir, "formats.json", testCatalog)
	cfg.Catalog.CustomPatterns = writeFile(t, dir, "custom.grok", "# site patterns\nFWVERDICT (?:allow|deny)\n")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	return cfg
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)

	app, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer app.Close()

	if app.Cache == nil {
		t.Fatal("expected cache manager")
	}
	for _, kind := range []cache.Kind{cache.KindFormats, cache.KindPatterns} {
		if _, err := os.Stat(filepath.Join(cfg.Cache.Dir, string(kind)+".cache")); err != nil {
			t.Errorf("snapshot %s not written: %v", kind, err)
		}
	}

	recs, err := app.Recommender.Recommend(context.Background(), "10.0.0.1 deny 10.0.0.2", Options(cfg))
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) == 0 || recs[0].Format.ID != "FW_1.00" || !recs[0].Exact {
		t.Fatalf("recommendations = %+v", recs)
	}
	if got := recs[0].Fields()["verdict"]; got != "deny" {
		t.Errorf("verdict = %q, want deny", got)
	}

	n, err := app.Recommender.Reload(context.Background())
	if err != nil || n != 1 {
		t.Errorf("Reload() = %d, %v; want 1, nil", n, err)
	}

	paths := app.WatchPaths()
	if len(paths) != 2 || paths[0] != cfg.Catalog.Path {
		t.Errorf("WatchPaths() = %v", paths)
	}
}

func TestBuild_ReloadDropsRemovedCustomPatterns(t *testing.T) {
	cfg := testConfig(t)

	app, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer app.Close()

	const line = "10.0.0.1 deny 10.0.0.2"
	recs, err := app.Recommender.Recommend(context.Background(), line, Options(cfg))
	if err != nil || len(recs) == 0 {
		t.Fatalf("Recommend() = %+v, %v", recs, err)
	}

	writeFile(t, filepath.Dir(cfg.Catalog.CustomPatterns), "custom.grok", "# FWVERDICT removed\n")
	if _, err := app.Recommender.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if _, ok := app.Recommender.Engine().Compiler().Library().Get("FWVERDICT"); ok {
		t.Error("FWVERDICT still resolvable after it was removed from the file")
	}
	recs, err = app.Recommender.Recommend(context.Background(), line, Options(cfg))
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recommendations after reload = %+v, want none", recs)
	}
}

func TestBuild_FromCache(t *testing.T) {
	cfg := testConfig(t)

	first, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	first.Close()

	var buf bytes.Buffer
	second, err := Build(context.Background(), cfg, zerolog.New(&buf))
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	defer second.Close()

	if !strings.Contains(buf.String(), "Loaded formats from cache") {
		t.Errorf("expected cache hit, log = %s", buf.String())
	}
}

func TestBuild_CacheDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Enabled = false

	app, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if app.Cache != nil {
		t.Error("expected no cache manager")
	}
	if err := app.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestBuild_UnusableCacheDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Dir = writeFile(t, t.TempDir(), "not-a-dir", "x")

	app, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if app.Cache != nil {
		t.Error("expected build to continue without cache")
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(t *testing.T, cfg *config.Config)
	}{
		{"missing catalog", func(t *testing.T, cfg *config.Config) {
			cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.json")
		}},
		{"empty catalog", func(t *testing.T, cfg *config.Config) {
			cfg.Catalog.Path = writeFile(t, t.TempDir(), "empty.json", "[]")
		}},
		{"missing patterns", func(t *testing.T, cfg *config.Config) {
			cfg.Catalog.CustomPatterns = filepath.Join(t.TempDir(), "missing.grok")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Cache.Enabled = false
			tt.modify(t, cfg)
			if _, err := Build(context.Background(), cfg, zerolog.Nop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Recommend.MaxResults = 3
	cfg.Recommend.MinConfidence = 40
	cfg.Matching.PartialMatches = false

	opts := Options(cfg)
	if opts.MaxResults != 3 || opts.MinConfidence != 40 || opts.IncludePartialMatches {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.Timeout != cfg.Recommend.TaskTimeout {
		t.Errorf("Timeout = %v, want %v", opts.Timeout, cfg.Recommend.TaskTimeout)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json", "logformat-test")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, `"service":"logformat-test"`) || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %s", out)
	}

	if got := NewLogger(&buf, "bogus", "console", "x").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("bogus level = %v, want info", got)
	}
}

func TestRemoteClient(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := RemoteClient(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error without url")
	}
	cfg.Remote.URL = "https://recommender.example.com"
	if _, err := RemoteClient(cfg, zerolog.Nop()); err != nil {
		t.Errorf("RemoteClient() error = %v", err)
	}
}
