package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingID is returned for a format without format_id.
	ErrMissingID = errors.New("format_id is required")
	// ErrDuplicateID is returned when two formats share a format_id.
	ErrDuplicateID = errors.New("duplicate format_id")
)

// Catalog is an immutable, indexed set of formats. Reloading builds a new one.
type Catalog struct {
	formats  []*Format
	byID     map[string]*Format
	byGroup  map[string][]*Format
	byVendor map[string][]*Format
	patterns int
}

// New indexes formats by ID, group and vendor.
func New(formats []*Format) (*Catalog, error) {
	c := &Catalog{
		formats:  make([]*Format, 0, len(formats)),
		byID:     make(map[string]*Format, len(formats)),
		byGroup:  make(map[string][]*Format),
		byVendor: make(map[string][]*Format),
	}
	for _, f := range formats {
		if f == nil {
			continue
		}
		if f.ID == "" {
			return nil, ErrMissingID
		}
		if _, ok := c.byID[f.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, f.ID)
		}
		c.formats = append(c.formats, f)
		c.byID[f.ID] = f

		g := NormalizeGroup(f.Group)
		c.byGroup[g] = append(c.byGroup[g], f)
		v := strings.ToUpper(strings.TrimSpace(f.Vendor))
		c.byVendor[v] = append(c.byVendor[v], f)
		c.patterns += f.PatternCount()
	}
	return c, nil
}

// Len returns the number of formats.
func (c *Catalog) Len() int {
	return len(c.formats)
}

// PatternCount returns the number of templates across all formats.
func (c *Catalog) PatternCount() int {
	return c.patterns
}

// All returns every format in load order.
func (c *Catalog) All() []*Format {
	out := make([]*Format, len(c.formats))
	copy(out, c.formats)
	return out
}

// Get returns the format with the given ID.
func (c *Catalog) Get(id string) (*Format, bool) {
	f, ok := c.byID[id]
	return f, ok
}

// ByGroup returns formats whose group folds to the same key as group.
func (c *Catalog) ByGroup(group string) []*Format {
	return append([]*Format(nil), c.byGroup[NormalizeGroup(group)]...)
}

// ByVendor returns formats of a vendor, case-insensitively.
func (c *Catalog) ByVendor(vendor string) []*Format {
	return append([]*Format(nil), c.byVendor[strings.ToUpper(strings.TrimSpace(vendor))]...)
}

// Filter returns formats matching both filters. Empty filters match all.
func (c *Catalog) Filter(group, vendor string) []*Format {
	var src []*Format
	switch {
	case group != "":
		src = c.byGroup[NormalizeGroup(group)]
	case vendor != "":
		src = c.byVendor[strings.ToUpper(strings.TrimSpace(vendor))]
	default:
		return c.All()
	}
	if group == "" || vendor == "" {
		return append([]*Format(nil), src...)
	}

	want := strings.ToUpper(strings.TrimSpace(vendor))
	var out []*Format
	for _, f := range src {
		if strings.ToUpper(strings.TrimSpace(f.Vendor)) == want {
			out = append(out, f)
		}
	}
	return out
}

// Groups returns the distinct group names in sorted order.
func (c *Catalog) Groups() []string {
	return sortedKeys(c.GroupStatistics())
}

// Vendors returns the distinct vendor names in sorted order.
func (c *Catalog) Vendors() []string {
	return sortedKeys(c.VendorStatistics())
}

// GroupStatistics counts formats per group name.
func (c *Catalog) GroupStatistics() map[string]int {
	stats := make(map[string]int)
	for _, f := range c.formats {
		stats[f.Group]++
	}
	return stats
}

// VendorStatistics counts formats per vendor name.
func (c *Catalog) VendorStatistics() map[string]int {
	stats := make(map[string]int)
	for _, f := range c.formats {
		stats[f.Vendor]++
	}
	return stats
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
