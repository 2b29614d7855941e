package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Load decodes a JSON array of format definitions. Patterns inside each log
// type are sorted by their declared order; formats without an ID are an error.
func Load(r io.Reader) ([]*Format, error) {
	var formats []*Format
	if err := json.NewDecoder(r).Decode(&formats); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	out := formats[:0]
	for i, f := range formats {
		if f == nil {
			continue
		}
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			return nil, fmt.Errorf("format at index %d: %w", i, ErrMissingID)
		}
		for j := range f.LogTypes {
			sortPatterns(f.LogTypes[j].Patterns)
		}
		out = append(out, f)
	}
	return out, nil
}

// LoadFile reads a catalog file.
func LoadFile(path string) ([]*Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	formats, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return formats, nil
}

// sortPatterns orders patterns by Order. Declaration order is kept when any
// pattern lacks an explicit order.
func sortPatterns(ps []Pattern) {
	for _, p := range ps {
		if p.Order == 0 {
			return
		}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Order < ps[j].Order
	})
}
