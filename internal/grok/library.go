// Package grok implements grok-style template normalization, expansion and
// compilation on top of a named sub-pattern library.
package grok

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

//go:embed base.grok
var basePatterns string

var (
	patternLineRe = regexp.MustCompile(`^([A-Z][A-Z0-9_]*)\s+(.+)$`)
	patternNameRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
)

// Library is a concurrency-safe set of named sub-patterns that placeholders
// resolve against.
type Library struct {
	mu       sync.RWMutex
	patterns map[string]string
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{patterns: make(map[string]string)}
}

// DefaultLibrary creates a library preloaded with the embedded base patterns.
func DefaultLibrary() *Library {
	l := NewLibrary()
	defs, err := ParsePatterns(strings.NewReader(basePatterns))
	if err != nil {
		// The embedded file is part of the build.
		panic(fmt.Sprintf("grok: parsing base patterns: %v", err))
	}
	l.patterns = defs
	return l
}

// Add registers or replaces a sub-pattern.
func (l *Library) Add(name, expr string) error {
	if !patternNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPatternName, name)
	}
	l.mu.Lock()
	l.patterns[name] = expr
	l.mu.Unlock()
	return nil
}

// AddAll registers every definition in defs, replacing existing names.
// Invalid names are skipped and counted.
func (l *Library) AddAll(defs map[string]string) (skipped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, expr := range defs {
		if !patternNameRe.MatchString(name) {
			skipped++
			continue
		}
		l.patterns[name] = expr
	}
	return skipped
}

// Get returns the definition of name.
func (l *Library) Get(name string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	expr, ok := l.patterns[name]
	return expr, ok
}

// Len returns the number of definitions.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.patterns)
}

// Names returns all pattern names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	names := make([]string, 0, len(l.patterns))
	for name := range l.patterns {
		names = append(names, name)
	}
	l.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all definitions.
func (l *Library) Snapshot() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.patterns))
	for k, v := range l.patterns {
		out[k] = v
	}
	return out
}

// ParsePatterns reads sub-pattern definitions in the "NAME REGEX" line format.
// Blank lines, '#' comments and lines that do not match the format are skipped.
func ParsePatterns(r io.Reader) (map[string]string, error) {
	defs := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := patternLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		defs[m[1]] = strings.TrimSpace(m[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading patterns: %w", err)
	}
	return defs, nil
}

// LoadPatternFile parses a custom sub-pattern file.
func LoadPatternFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pattern file: %w", err)
	}
	defer f.Close()

	return ParsePatterns(f)
}
