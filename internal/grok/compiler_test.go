package grok

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	return NewCompiler(DefaultLibrary(), CompilerOptions{MatchTimeout: time.Second})
}

func TestCompile_ExtractsOnlyNamedPlaceholders(t *testing.T) {
	c := newTestCompiler(t)

	tmpl, err := c.Compile(`%{IP:src} %{INT} -> %{IP:dst} %{WORD:action}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "dst", "action"}, tmpl.Fields)

	fields, err := tmpl.Match("10.0.0.1 42 -> 10.0.0.2 allow")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"src":    "10.0.0.1",
		"dst":    "10.0.0.2",
		"action": "allow",
	}, fields)
}

func TestCompile_SubPatternGroupsDoNotLeak(t *testing.T) {
	lib := DefaultLibrary()
	require.NoError(t, lib.Add("PAIR", `(?<left>\w+)=(?<right>\w+) %{INT:inner}`))
	c := NewCompiler(lib, CompilerOptions{})

	tmpl, err := c.Compile(`%{PAIR:kv} %{WORD:tail}`)
	require.NoError(t, err)

	fields, err := tmpl.Match("a=b 7 end")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"kv": "a=b 7", "tail": "end"}, fields)
}

func TestCompile_DuplicateFields(t *testing.T) {
	c := newTestCompiler(t)

	tmpl, err := c.Compile(`%{WORD:w} %{WORD:w} %{WORD:w}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"w", "w_1", "w_2"}, tmpl.Fields)

	fields, err := tmpl.Match("a b c")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"w": "a", "w_1": "b", "w_2": "c"}, fields)
}

func TestCompile_NoMatch(t *testing.T) {
	c := newTestCompiler(t)

	tmpl, err := c.Compile(`^%{IP:src} -> %{IP:dst}$`)
	require.NoError(t, err)

	fields, err := tmpl.Match("not an address")
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestCompile_Errors(t *testing.T) {
	lib := DefaultLibrary()
	require.NoError(t, lib.Add("LOOP", `x%{LOOP}`))
	c := NewCompiler(lib, CompilerOptions{})

	tests := []struct {
		name    string
		tmpl    string
		wantErr error
	}{
		{"unknown pattern", `%{NOPE:a} %{IP:b}`, ErrUnknownPattern},
		{"recursive pattern", `%{LOOP:a} %{IP:b}`, ErrRecursion},
		{"invalid regex", `%{WORD:a} (unclosed %{WORD:b}`, ErrInvalidRegex},
		{"empty", `   `, ErrEmptyTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(tt.tmpl)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.tmpl, ce.Template)
		})
	}

	_, err := c.Compile(`%{NOPE:a} %{IP:b}`)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "NOPE", ce.Pattern)
}

func TestCompile_CachesByRawText(t *testing.T) {
	c := newTestCompiler(t)

	a, err := c.Compile(`%{IP:src} %{IP:dst}`)
	require.NoError(t, err)
	b, err := c.Compile(`%{IP:src} %{IP:dst}`)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = c.Compile(`%{MISSING:x}`)
	require.Error(t, err)
	_, err = c.Compile(`%{MISSING:x}`)
	require.Error(t, err)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)

	c.Reset()
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCompile_SwapReplacesLibraryAndCache(t *testing.T) {
	old := DefaultLibrary()
	require.NoError(t, old.Add("VERDICT", `(?:allow|deny)`))
	c := NewCompiler(old, CompilerOptions{})

	_, err := c.Compile(`%{VERDICT:action}`)
	require.NoError(t, err)

	next := DefaultLibrary()
	c.Swap(next)
	assert.Same(t, next, c.Library())
	assert.Equal(t, 0, c.Stats().Entries)

	_, err = c.Compile(`%{VERDICT:action}`)
	assert.True(t, errors.Is(err, ErrUnknownPattern), "got %v", err)
}

func TestCompile_ConcurrentUse(t *testing.T) {
	c := newTestCompiler(t)
	const tmplText = `%{IP:src}:%{POSINT:src_port} %{WORD:action}`

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tmpl, err := c.Compile(tmplText)
			if !assert.NoError(t, err) {
				return
			}
			fields, err := tmpl.Match("192.168.1.10:443 deny")
			assert.NoError(t, err)
			assert.Equal(t, "443", fields["src_port"])
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCompile_MatchTimeout(t *testing.T) {
	lib := DefaultLibrary()
	require.NoError(t, lib.Add("EVIL", `(a+)+`))
	c := NewCompiler(lib, CompilerOptions{MatchTimeout: 50 * time.Millisecond})

	tmpl, err := c.Compile(`^%{EVIL:run}$`)
	require.NoError(t, err)

	start := time.Now()
	_, err = tmpl.Match(strings.Repeat("a", 40) + "!")
	assert.True(t, errors.Is(err, ErrMatchTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDefaultLibrary_AllPatternsCompile(t *testing.T) {
	lib := DefaultLibrary()
	c := NewCompiler(lib, CompilerOptions{})
	require.Greater(t, lib.Len(), 50)

	for _, name := range lib.Names() {
		_, err := c.Compile("%{" + name + ":value}")
		assert.NoError(t, err, "pattern %s", name)
	}
}
