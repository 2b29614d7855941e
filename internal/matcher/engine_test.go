package matcher

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisec/aisac-logformat/internal/catalog"
	"github.com/cisec/aisac-logformat/internal/grok"
)

func testFormat(id, group string, templates ...string) *catalog.Format {
	lt := catalog.LogType{Type: "Default"}
	for i, tmpl := range templates {
		lt.Patterns = append(lt.Patterns, catalog.Pattern{
			Name: fmt.Sprintf("%s_%d", id, i+1),
			Grok: tmpl,
		})
	}
	return &catalog.Format{ID: id, Name: id, Group: group, LogTypes: []catalog.LogType{lt}}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	compiler := grok.NewCompiler(grok.DefaultLibrary(), grok.CompilerOptions{MatchTimeout: time.Second})
	return NewEngine(compiler, opts, logger)
}

func TestMatch_Complete(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	f := testFormat("F1", "", `%{IP:src} -> %{IP:dst}`)

	out := e.Match(context.Background(), "10.0.0.1 -> 10.0.0.2", f)

	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, map[string]string{"src": "10.0.0.1", "dst": "10.0.0.2"}, out.Fields)
	assert.Equal(t, 1.0, out.Score)
	assert.Equal(t, 98.0, out.Confidence)
	assert.Equal(t, 2, out.SpecificCount)
	assert.Equal(t, "F1_1", out.Template)
	assert.Equal(t, "Default", out.LogType)
}

func TestMatch_GroupWeight(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	const line = "10.0.0.1 -> 10.0.0.2"

	tests := []struct {
		group string
		want  float64
	}{
		{"Firewall", 98},
		{"APPLICATION", 98 * 0.8},
		{"System", 98 * 0.9},
		{"Unknown", 98},
	}
	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			out := e.Match(context.Background(), line, testFormat("F", tt.group, `%{IP:src} -> %{IP:dst}`))
			require.Equal(t, Complete, out.Status)
			assert.InDelta(t, tt.want, out.Confidence, 1e-9)
		})
	}
}

func TestMatch_Partial(t *testing.T) {
	const line = "10.0.0.1 10.0.0.2 deny extra trailing payload that is long enough"
	f := testFormat("P", "", `%{IP:src_ip} %{IP:dst_ip} %{WORD:action}`)

	e := newTestEngine(t, DefaultOptions())
	out := e.Match(context.Background(), line, f)

	require.Equal(t, Partial, out.Status)
	coverage := 20.0 / float64(len(line))
	wantScore := 0.4*3/8 + 0.2 + 0.2*coverage + 0.1 + 0.1
	assert.InDelta(t, wantScore, out.Score, 1e-9)
	assert.InDelta(t, wantScore*70, out.Confidence, 1e-9)
	assert.LessOrEqual(t, out.Confidence, 70.0)

	opts := DefaultOptions()
	opts.PartialMatches = false
	out = newTestEngine(t, opts).Match(context.Background(), line, f)
	assert.Equal(t, NoMatch, out.Status)
}

func TestMatch_PartialClampedByWeight(t *testing.T) {
	// 8 validated specific fields covering half the line score 0.9.
	line := "10.0.0.1 10.0.0.2 1234 80 tcp deny 77 5 " + strings.Repeat("x", 24)
	f := testFormat("P", "FIREWALL",
		`%{IP:src_ip} %{IP:dst_ip} %{INT:src_port} %{INT:dst_port} %{WORD:proto} %{WORD:action} %{INT:session_id} %{INT:rule_id}`)
	e := newTestEngine(t, DefaultOptions())

	out := e.Match(context.Background(), line, f)
	require.Equal(t, Partial, out.Status)
	assert.InDelta(t, 0.9, out.Score, 1e-9)
	assert.Equal(t, 70.0, out.Confidence)
}

func TestMatch_OverlyGenericTemplate(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	f := testFormat("G", "", `%{GREEDYDATA:message}`, `%{IP:ip}`)

	for _, line := range []string{"anything at all", "10.0.0.1"} {
		out := e.Match(context.Background(), line, f)
		assert.Equal(t, NoMatch, out.Status, line)
	}
}

func TestMatch_ValidationDropsFields(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	f := testFormat("V", "", `%{NOTSPACE:src_ip} %{NOTSPACE:dst_port} %{WORD:action} %{WORD:proto}`)

	out := e.Match(context.Background(), "10.0.0.1 12:30 allow tcp", f)

	require.True(t, out.Matched())
	assert.NotContains(t, out.Fields, "dst_port")
	assert.Equal(t, "10.0.0.1", out.Fields["src_ip"])

	opts := DefaultOptions()
	opts.ValidateFields = false
	out = newTestEngine(t, opts).Match(context.Background(), "10.0.0.1 12:30 allow tcp", f)
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, "12:30", out.Fields["dst_port"])
}

func TestMatch_FirstCompleteWins(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	f := testFormat("C", "",
		`%{IP:src_ip} %{IP:dst_ip} %{WORD:rest}`,
		`%{IP:src_ip} %{IP:dst_ip} %{WORD:action}`,
	)

	out := e.Match(context.Background(), "10.0.0.1 10.0.0.2 deny", f)
	require.Equal(t, Complete, out.Status)
	assert.Equal(t, "C_1", out.Template)
}

func TestMatch_BestPartialWins(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	const line = "10.0.0.1 10.0.0.2 deny tcp and a long tail of unexplained text"
	f := testFormat("B", "",
		`%{IP:src_ip} %{IP:dst_ip} %{WORD:note}`,
		`%{IP:src_ip} %{IP:dst_ip} %{WORD:action} %{WORD:proto}`,
	)

	out := e.Match(context.Background(), line, f)
	require.Equal(t, Partial, out.Status)
	assert.Equal(t, "B_2", out.Template)
}

func TestMatch_RequiredFields(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	f := testFormat("R", "", `%{IP:src} -> %{IP:dst}`)
	f.RequiredFields = []string{"src", "session_id"}

	out := e.Match(context.Background(), "10.0.0.1 -> 10.0.0.2", f)
	assert.NotEqual(t, Complete, out.Status)
}

func TestMatch_CompileFailureSkipsTemplate(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	f := testFormat("E", "", `%{NO_SUCH:a} %{IP:b}`, `%{IP:src} -> %{IP:dst}`)

	out := e.Match(context.Background(), "10.0.0.1 -> 10.0.0.2", f)
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, "E_2", out.Template)
}

func TestMatch_Timeout(t *testing.T) {
	lib := grok.DefaultLibrary()
	require.NoError(t, lib.Add("EVIL", `(a+)+`))
	compiler := grok.NewCompiler(lib, grok.CompilerOptions{MatchTimeout: 50 * time.Millisecond})
	e := NewEngine(compiler, DefaultOptions(), zerolog.Nop())

	f := testFormat("T", "", `^%{EVIL:a} %{WORD:b}$`)

	start := time.Now()
	out := e.Match(context.Background(), strings.Repeat("a", 40)+"!", f)
	assert.Equal(t, NoMatch, out.Status)
	assert.True(t, out.TimedOut)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMatch_CancelledContext(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Match(ctx, "10.0.0.1 -> 10.0.0.2", testFormat("X", "", `%{IP:src} -> %{IP:dst}`))
	assert.Equal(t, NoMatch, out.Status)
}

func TestMatch_EmptyInputs(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	assert.Equal(t, NoMatch, e.Match(context.Background(), "   ", testFormat("X", "", `%{IP:src} -> %{IP:dst}`)).Status)
	assert.Equal(t, NoMatch, e.Match(context.Background(), "10.0.0.1 -> 10.0.0.2", nil).Status)
}

func TestNormalizeLine(t *testing.T) {
	e := newTestEngine(t, DefaultOptions())
	assert.Equal(t, "first line", e.NormalizeLine("  first line \nsecond"))

	opts := DefaultOptions()
	opts.Multiline = true
	opts.CaseInsensitive = true
	e = newTestEngine(t, opts)
	assert.Equal(t, "a\nb", e.NormalizeLine(" A\nB "))
}
