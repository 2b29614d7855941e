package recommend

import (
	"time"

	"github.com/cisec/aisac-logformat/internal/catalog"
	"github.com/cisec/aisac-logformat/internal/matcher"
	"github.com/cisec/aisac-logformat/pkg/types"
)

// OptionsFromWire overlays the set fields of o on base.
func OptionsFromWire(o types.Options, base Options) Options {
	if o.MaxResults > 0 {
		base.MaxResults = o.MaxResults
	}
	if o.MinConfidence > 0 {
		base.MinConfidence = o.MinConfidence
	}
	if o.IncludePartialMatches != nil {
		base.IncludePartialMatches = *o.IncludePartialMatches
	}
	if o.Parallel != nil {
		base.Parallel = *o.Parallel
	}
	if o.TimeoutMs > 0 {
		base.Timeout = time.Duration(o.TimeoutMs) * time.Millisecond
	}
	base.GroupFilter = o.GroupFilter
	base.VendorFilter = o.VendorFilter
	return base
}

// OptionsToWire is the inverse of OptionsFromWire.
func OptionsToWire(o Options) types.Options {
	partial, parallel := o.IncludePartialMatches, o.Parallel
	return types.Options{
		MaxResults:            o.MaxResults,
		MinConfidence:         o.MinConfidence,
		IncludePartialMatches: &partial,
		GroupFilter:           o.GroupFilter,
		VendorFilter:          o.VendorFilter,
		Parallel:              &parallel,
		TimeoutMs:             o.Timeout.Milliseconds(),
	}
}

// Summary describes f for the wire.
func Summary(f *catalog.Format) types.FormatSummary {
	return types.FormatSummary{
		ID:           f.ID,
		Name:         f.Name,
		Version:      f.Version,
		Group:        f.Group,
		Vendor:       f.Vendor,
		Model:        f.Model,
		SMType:       f.SMType,
		LogTypes:     len(f.LogTypes),
		PatternCount: f.PatternCount(),
	}
}

// Wire converts r using its best outcome.
func (r Recommendation) Wire() types.Recommendation {
	best := r.Best()

	var elapsed time.Duration
	for _, o := range r.Outcomes {
		elapsed += o.Elapsed
	}

	return types.Recommendation{
		Rank:        r.Rank,
		Format:      Summary(r.Format),
		Confidence:  r.Confidence,
		Exact:       r.Exact,
		Status:      wireStatus(best.Status),
		Reason:      r.Reason,
		MatchCount:  r.MatchCount,
		FieldCount:  r.FieldCount,
		Fields:      best.Fields,
		Template:    best.Template,
		LogType:     best.LogType,
		MatchTimeMs: float64(elapsed.Microseconds()) / 1000,
	}
}

// WireList converts recs in order.
func WireList(recs []Recommendation) []types.Recommendation {
	out := make([]types.Recommendation, len(recs))
	for i, r := range recs {
		out[i] = r.Wire()
	}
	return out
}

func wireStatus(s matcher.Status) types.MatchStatus {
	switch s {
	case matcher.Complete:
		return types.StatusComplete
	case matcher.Partial:
		return types.StatusPartial
	default:
		return types.StatusNoMatch
	}
}
