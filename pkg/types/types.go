// Package types defines the wire types shared by the recommendation server
// and its clients.
package types

// MatchStatus is the verdict for one format.
type MatchStatus string

const (
	StatusNoMatch  MatchStatus = "no_match"
	StatusPartial  MatchStatus = "partial"
	StatusComplete MatchStatus = "complete"
)

// Options controls a recommendation request. Zero values fall back to the
// server defaults, except the booleans which are pointers for that reason.
type Options struct {
	MaxResults            int     `json:"max_results,omitempty"`
	MinConfidence         float64 `json:"min_confidence,omitempty"`
	IncludePartialMatches *bool   `json:"include_partial_matches,omitempty"`
	GroupFilter           string  `json:"group_filter,omitempty"`
	VendorFilter          string  `json:"vendor_filter,omitempty"`
	Parallel              *bool   `json:"parallel,omitempty"`
	TimeoutMs             int64   `json:"timeout_ms,omitempty"`
}

// FormatSummary describes a catalog format without its templates.
type FormatSummary struct {
	ID           string `json:"format_id"`
	Name         string `json:"format_name"`
	Version      string `json:"format_version,omitempty"`
	Group        string `json:"group_name"`
	Vendor       string `json:"vendor"`
	Model        string `json:"model,omitempty"`
	SMType       string `json:"sm_type,omitempty"`
	LogTypes     int    `json:"log_types"`
	PatternCount int    `json:"pattern_count"`
}

// Recommendation is one ranked candidate format.
type Recommendation struct {
	Rank        int               `json:"rank"`
	Format      FormatSummary     `json:"format"`
	Confidence  float64           `json:"confidence"`
	Exact       bool              `json:"exact"`
	Status      MatchStatus       `json:"status"`
	Reason      string            `json:"reason"`
	MatchCount  int               `json:"match_count"`
	FieldCount  int               `json:"field_count"`
	Fields      map[string]string `json:"fields,omitempty"`
	Template    string            `json:"template,omitempty"`
	LogType     string            `json:"log_type,omitempty"`
	MatchTimeMs float64           `json:"match_time_ms"`
}
