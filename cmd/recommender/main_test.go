package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cisec/aisac-logformat/pkg/protocol"
	"github.com/cisec/aisac-logformat/pkg/types"
)

const testCatalog = `[
  {
    "format_id": "FW_1.00",
    "format_name": "FW",
    "group_name": "Firewall",
    "vendor": "ACME",
    "log_type": [
      {"type": "Traffic", "patterns": [{"exp_name": "flow", "grok_exp": "%{IP:src} -> %{IP:dst}", "order": 1}]}
    ]
  },
  {
    "format_id": "WEB_1.00",
    "format_name": "WEB",
    "group_name": "Web Server",
    "vendor": "OTHER",
    "log_type": [
      {"type": "Access", "patterns": [{"exp_name": "access", "grok_exp": "%{HTTPVERB:method} %{URIPATH:path}", "order": 1}]}
    ]
  }
]`

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	return writeConfigWith(t, testCatalog)
}

func writeConfigWith(t *testing.T, catalogJSON string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "formats.json")
	if err := os.WriteFile(catalogPath, []byte(catalogJSON), 0644); err != nil {
		t.Fatal(err)
	}
	cacheDir := filepath.Join(dir, "cache")
	cfg := "catalog:\n  path: " + catalogPath + "\ncache:\n  dir: " + cacheDir + "\nlogging:\n  level: error\n"
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, cacheDir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := &cli{stdin: strings.NewReader(stdin), stdout: &stdout, stderr: &stderr}
	cmd := c.rootCommand()
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRecommendText(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "", "-c", cfgPath, "recommend", "10.0.0.1 -> 10.0.0.2")
	if err != nil {
		t.Fatalf("recommend error = %v", err)
	}
	for _, want := range []string{"RANK", "FW_1.00", "complete (exact)", "src = 10.0.0.1", "dst = 10.0.0.2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRecommendJSONFromStdin(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "\n10.0.0.1 -> 10.0.0.2\n", "-c", cfgPath, "-o", "json", "recommend", "-n", "1")
	if err != nil {
		t.Fatalf("recommend error = %v", err)
	}
	var recs []types.Recommendation
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if len(recs) != 1 || recs[0].Format.ID != "FW_1.00" || recs[0].Rank != 1 {
		t.Errorf("recommendations = %+v", recs)
	}
}

func TestRecommendErrors(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	if _, err := execute(t, "   \n", "-c", cfgPath, "recommend"); err == nil {
		t.Error("expected error for blank input")
	}
	if _, err := execute(t, "", "-c", cfgPath, "-o", "yaml", "recommend", "x"); err == nil {
		t.Error("expected error for unknown output format")
	}
	if _, err := execute(t, "", "-c", filepath.Join(t.TempDir(), "missing.yaml"), "recommend", "x"); err == nil {
		t.Error("expected error for missing config")
	}
}

func TestBatchPerLine(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	input := filepath.Join(t.TempDir(), "lines.log")
	if err := os.WriteFile(input, []byte("10.0.0.1 -> 10.0.0.2\r\n\n192.168.0.1 -> 192.168.0.2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "-c", cfgPath, "-o", "json", "batch", "--per-line", input)
	if err != nil {
		t.Fatalf("batch error = %v", err)
	}
	var resp protocol.BatchResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if resp.Lines != 2 || len(resp.PerLine) != 2 {
		t.Fatalf("lines = %d per_line = %d, want 2 and 2", resp.Lines, len(resp.PerLine))
	}
	for i, recs := range resp.PerLine {
		if len(recs) == 0 || recs[0].Format.ID != "FW_1.00" {
			t.Errorf("line %d: %+v", i, recs)
		}
	}
}

func TestBatchMergedFromStdin(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "10.0.0.1 -> 10.0.0.2\n10.0.0.3 -> 10.0.0.4\n", "-c", cfgPath, "batch", "-")
	if err != nil {
		t.Fatalf("batch error = %v", err)
	}
	if !strings.Contains(out, "2 lines") || !strings.Contains(out, "FW_1.00") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "", "-c", cfgPath, "batch"); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestFormatsAndStats(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "", "-c", cfgPath, "-o", "json", "formats", "--group", "web server")
	if err != nil {
		t.Fatalf("formats error = %v", err)
	}
	var formats []types.FormatSummary
	if err := json.Unmarshal([]byte(out), &formats); err != nil {
		t.Fatal(err)
	}
	if len(formats) != 1 || formats[0].ID != "WEB_1.00" {
		t.Errorf("formats = %+v", formats)
	}

	out, err = execute(t, "", "-c", cfgPath, "groups")
	if err != nil {
		t.Fatalf("groups error = %v", err)
	}
	if !strings.Contains(out, "GROUP") || !strings.Contains(out, "Firewall") || !strings.Contains(out, "Web Server") {
		t.Errorf("unexpected groups output:\n%s", out)
	}

	out, err = execute(t, "", "-c", cfgPath, "-o", "json", "vendors")
	if err != nil {
		t.Fatalf("vendors error = %v", err)
	}
	var vendors map[string]int
	if err := json.Unmarshal([]byte(out), &vendors); err != nil {
		t.Fatal(err)
	}
	if vendors["ACME"] != 1 || vendors["OTHER"] != 1 {
		t.Errorf("vendors = %v", vendors)
	}
}

func TestCacheCommands(t *testing.T) {
	cfgPath, cacheDir := writeConfig(t)

	out, err := execute(t, "", "-c", cfgPath, "cache", "rebuild")
	if err != nil {
		t.Fatalf("cache rebuild error = %v", err)
	}
	if !strings.Contains(out, "cache rebuilt: 2 formats") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "log_formats.cache")); err != nil {
		t.Errorf("expected snapshot after rebuild: %v", err)
	}

	if _, err := execute(t, "", "-c", cfgPath, "cache", "invalidate"); err != nil {
		t.Fatalf("cache invalidate error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "log_formats.cache")); !os.IsNotExist(err) {
		t.Errorf("expected snapshot removed, stat err = %v", err)
	}
}

func TestRemoteBackend(t *testing.T) {
	var gotLine string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/recommend":
			var req protocol.RecommendRequest
			json.NewDecoder(r.Body).Decode(&req)
			gotLine = req.Line
			json.NewEncoder(w).Encode(protocol.RecommendResponse{Recommendations: []types.Recommendation{{
				Rank:   1,
				Format: types.FormatSummary{ID: "REMOTE_1"},
				Status: types.StatusComplete,
			}}})
		case "/api/v1/stats/groups":
			json.NewEncoder(w).Encode(map[string]int{"Firewall": 7})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfgPath, _ := writeConfig(t)
	out, err := execute(t, "", "-c", cfgPath, "--remote", srv.URL, "recommend", "remote line")
	if err != nil {
		t.Fatalf("recommend error = %v", err)
	}
	if gotLine != "remote line" || !strings.Contains(out, "REMOTE_1") {
		t.Errorf("line = %q output:\n%s", gotLine, out)
	}

	out, err = execute(t, "", "-c", cfgPath, "--remote", srv.URL, "groups")
	if err != nil {
		t.Fatalf("groups error = %v", err)
	}
	if !strings.Contains(out, "Firewall") || !strings.Contains(out, "7") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestReadLines(t *testing.T) {
	lines, err := readLines(strings.NewReader("a\r\n\n  \nb\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Errorf("readLines() = %q", lines)
	}
}

func TestValidate(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "", "-c", cfgPath, "validate")
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	for _, want := range []string{"2 formats, 2 templates: 0 passed, 2 warnings, 0 failed", "no sample log"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateFailures(t *testing.T) {
	cfgPath, _ := writeConfigWith(t, `[
  {
    "format_id": "FW_1.00",
    "format_name": "FW",
    "group_name": "Firewall",
    "log_type": [
      {"type": "Traffic", "patterns": [
        {"exp_name": "flow", "grok_exp": "%{IP:src} -> %{IP:dst} %{WORD:action}", "samplelog": "10.0.0.1 -> 10.0.0.2 deny"},
        {"exp_name": "broken", "grok_exp": "%{NOSUCH:x} %{IP:src}", "samplelog": "a 10.0.0.1"},
        {"exp_name": "stale", "grok_exp": "%{IP:src} => %{IP:dst}", "samplelog": "10.0.0.1 -> 10.0.0.2"}
      ]}
    ]
  }
]`)

	out, err := execute(t, "", "-c", cfgPath, "validate")
	if err == nil || !strings.Contains(err.Error(), "2 templates failed") {
		t.Fatalf("validate error = %v, want 2 failures", err)
	}
	if !strings.Contains(out, "1 passed, 0 warnings, 2 failed") {
		t.Errorf("summary missing:\n%s", out)
	}
	if strings.Contains(out, "flow") {
		t.Errorf("passing template listed without --all:\n%s", out)
	}
	for _, want := range []string{"broken", "NOSUCH", "stale", "sample log does not match its template"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, _ = execute(t, "", "-c", cfgPath, "-o", "json", "validate", "--all")
	var report struct {
		Failed  int `json:"failed"`
		Results []struct {
			Template string `json:"template"`
			Status   string `json:"status"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out)
	}
	if report.Failed != 2 || len(report.Results) != 3 || report.Results[0].Status != "pass" {
		t.Errorf("report = %+v", report)
	}
}
