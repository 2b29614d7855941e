package grok

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
)

// maxExpansionDepth bounds nested sub-pattern references.
const maxExpansionDepth = 32

// ErrMatchTimeout is returned when the regex engine exceeds its match timeout.
var ErrMatchTimeout = errors.New("match timeout")

// CompiledTemplate is an executable template. It is immutable and safe for
// concurrent use.
type CompiledTemplate struct {
	Raw         string
	Normalized  string
	Expression  string
	Fields      []string
	Specificity float64

	re     *regexp2.Regexp
	groups []string
}

// Match runs the template against line and returns the values captured by
// named placeholders. Groups that did not participate or captured nothing
// are left out.
func (t *CompiledTemplate) Match(line string) (map[string]string, error) {
	m, err := t.re.FindStringMatch(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMatchTimeout, err)
	}
	if m == nil {
		return nil, nil
	}

	fields := make(map[string]string, len(t.Fields))
	for i, name := range t.Fields {
		g := m.GroupByName(t.groups[i])
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		if v := g.String(); v != "" {
			fields[name] = v
		}
	}
	return fields, nil
}

// CompilerOptions tunes the regex engine.
type CompilerOptions struct {
	// MatchTimeout aborts a single regex execution. Zero disables it.
	MatchTimeout time.Duration
	IgnoreCase   bool
}

// CacheStats reports compiled-template cache usage.
type CacheStats struct {
	Entries  int   `json:"entries"`
	Failures int   `json:"failures"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

type cacheEntry struct {
	tmpl *CompiledTemplate
	err  error
}

// Compiler compiles templates against a Library and caches results keyed by
// raw template text. Failed compilations are cached as well. The library and
// its cache are swapped together, so a template is never served from a cache
// built against a different library.
type Compiler struct {
	opts CompilerOptions

	state  atomic.Pointer[compilerState]
	hits   atomic.Int64
	misses atomic.Int64
}

type compilerState struct {
	lib   *Library
	cache sync.Map // raw template -> *cacheEntry
}

// NewCompiler creates a compiler over lib.
func NewCompiler(lib *Library, opts CompilerOptions) *Compiler {
	c := &Compiler{opts: opts}
	c.state.Store(&compilerState{lib: lib})
	return c
}

// Library returns the sub-pattern library the compiler resolves against.
func (c *Compiler) Library() *Library {
	return c.state.Load().lib
}

// Compile returns the cached CompiledTemplate for raw, compiling it on first use.
func (c *Compiler) Compile(raw string) (*CompiledTemplate, error) {
	st := c.state.Load()
	if v, ok := st.cache.Load(raw); ok {
		c.hits.Add(1)
		e := v.(*cacheEntry)
		return e.tmpl, e.err
	}
	c.misses.Add(1)

	tmpl, err := c.compile(st.lib, raw)
	// Concurrent compiles of the same text produce equal results; keep the first.
	v, _ := st.cache.LoadOrStore(raw, &cacheEntry{tmpl: tmpl, err: err})
	e := v.(*cacheEntry)
	return e.tmpl, e.err
}

// Reset drops every cached template and keeps the current library.
func (c *Compiler) Reset() {
	c.Swap(c.Library())
}

// Swap installs lib with an empty cache.
func (c *Compiler) Swap(lib *Library) {
	c.state.Store(&compilerState{lib: lib})
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns cache counters.
func (c *Compiler) Stats() CacheStats {
	var s CacheStats
	c.state.Load().cache.Range(func(_, v any) bool {
		s.Entries++
		if v.(*cacheEntry).err != nil {
			s.Failures++
		}
		return true
	})
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	return s
}

func (c *Compiler) compile(lib *Library, raw string) (*CompiledTemplate, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &CompileError{Template: raw, Err: ErrEmptyTemplate}
	}

	normalized := Normalize(raw)
	ex := &expander{lib: lib, memo: make(map[string]string)}
	expr, fields, groups, err := ex.expandTemplate(normalized)
	if err != nil {
		return nil, &CompileError{Template: raw, Pattern: ex.failed, Err: err}
	}
	expr = NormalizeCompiledPattern(expr)

	opts := regexp2.None
	if c.opts.IgnoreCase {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, &CompileError{Template: raw, Err: fmt.Errorf("%w: %v", ErrInvalidRegex, err)}
	}
	if c.opts.MatchTimeout > 0 {
		re.MatchTimeout = c.opts.MatchTimeout
	}

	return &CompiledTemplate{
		Raw:         raw,
		Normalized:  normalized,
		Expression:  expr,
		Fields:      fields,
		Specificity: SpecificityScore(normalized),
		re:          re,
		groups:      groups,
	}, nil
}

type expander struct {
	lib    *Library
	memo   map[string]string
	failed string
}

// expandTemplate substitutes every placeholder of the top-level template.
// Named placeholders become capture groups with synthetic names so that
// field names never have to be valid group identifiers.
func (e *expander) expandTemplate(text string) (expr string, fields, groups []string, err error) {
	var b strings.Builder
	last := 0
	for _, p := range findPlaceholders(text) {
		b.WriteString(text[last:p.start])
		last = p.end

		sub, err := e.expandPattern(p.pattern, 0)
		if err != nil {
			return "", nil, nil, err
		}
		if p.hasField && p.field != "" {
			group := "_fld" + strconv.Itoa(len(fields))
			fields = append(fields, p.field)
			groups = append(groups, group)
			b.WriteString("(?<" + group + ">" + sub + ")")
			continue
		}
		b.WriteString(sub)
	}
	b.WriteString(text[last:])
	return b.String(), fields, groups, nil
}

// expandPattern resolves a sub-pattern name to a non-capturing regex.
func (e *expander) expandPattern(name string, depth int) (string, error) {
	if depth > maxExpansionDepth {
		e.failed = name
		return "", ErrRecursion
	}
	if s, ok := e.memo[name]; ok {
		return s, nil
	}
	def, ok := e.lib.Get(name)
	if !ok {
		e.failed = name
		return "", ErrUnknownPattern
	}

	var b strings.Builder
	b.WriteString("(?:")
	last := 0
	for _, p := range findPlaceholders(def) {
		b.WriteString(def[last:p.start])
		last = p.end
		sub, err := e.expandPattern(p.pattern, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteString(sub)
	}
	b.WriteString(def[last:])
	b.WriteString(")")

	s := b.String()
	e.memo[name] = s
	return s, nil
}
