package recommend

import (
	"fmt"
	"math"

	"github.com/cisec/aisac-logformat/internal/catalog"
	"github.com/cisec/aisac-logformat/internal/matcher"
)

// Recommendation is one ranked candidate format.
type Recommendation struct {
	Format     *catalog.Format
	Confidence float64
	Exact      bool
	// Outcomes holds the winning outcome of each matched line, in line order.
	Outcomes   []matcher.Outcome
	Reason     string
	Rank       int
	MatchCount int
	FieldCount int
}

// Best returns the first complete outcome, or the highest scoring partial one.
func (r Recommendation) Best() matcher.Outcome {
	var best matcher.Outcome
	for _, o := range r.Outcomes {
		if o.Status == matcher.Complete {
			return o
		}
		if o.Score > best.Score {
			best = o
		}
	}
	return best
}

// Fields returns the fields of the best outcome.
func (r Recommendation) Fields() map[string]string {
	return r.Best().Fields
}

// scored is a matched format with its final single-line confidence.
type scored struct {
	format     *catalog.Format
	outcome    matcher.Outcome
	confidence float64
	reason     string
}

// accumulator folds scored lines into a recommendation. Every method returns
// a new value, so folds can be split and merged in any grouping.
type accumulator struct {
	format   *catalog.Format
	sum      float64
	matched  int
	complete int
	fields   int
	outcomes []matcher.Outcome
	reason   string
}

func (a accumulator) add(s scored) accumulator {
	a.format = s.format
	a.sum += s.confidence
	a.matched++
	if s.outcome.Status == matcher.Complete {
		a.complete++
	}
	if n := s.outcome.FieldCount(); n > a.fields {
		a.fields = n
	}
	a.outcomes = append(a.outcomes[:len(a.outcomes):len(a.outcomes)], s.outcome)
	a.reason = s.reason
	return a
}

func (a accumulator) merge(b accumulator) accumulator {
	if a.format == nil {
		a.format = b.format
	}
	a.sum += b.sum
	a.matched += b.matched
	a.complete += b.complete
	a.fields = max(a.fields, b.fields)
	merged := make([]matcher.Outcome, 0, len(a.outcomes)+len(b.outcomes))
	a.outcomes = append(append(merged, a.outcomes...), b.outcomes...)
	if b.reason != "" {
		a.reason = b.reason
	}
	return a
}

// recommendation derives the final values. Confidence is the mean over
// matched lines, so it does not depend on fold order.
func (a accumulator) recommendation(lines int) Recommendation {
	rec := Recommendation{
		Format:     a.format,
		Exact:      a.matched > 0 && a.complete == a.matched,
		Outcomes:   a.outcomes,
		MatchCount: a.matched,
		FieldCount: a.fields,
		Reason:     a.reason,
	}
	if a.matched > 0 {
		rec.Confidence = a.sum / float64(a.matched)
	}
	if lines > 1 {
		rec.Reason = fmt.Sprintf("matched %d of %d lines (%d complete)", a.matched, lines, a.complete)
	}
	return rec
}

// tieBreakConfidence spreads formats that all matched completely so richer
// and more specific extractions rank higher.
func tieBreakConfidence(o matcher.Outcome) float64 {
	c := 90 + math.Min(float64(o.FieldCount())*0.5, 5) + math.Min(float64(o.SpecificCount), 3)
	return math.Min(c, 98)
}

func reasonFor(o matcher.Outcome, completes int) string {
	switch {
	case o.Status == matcher.Complete && completes > 1:
		return fmt.Sprintf("complete match with %d fields, one of %d complete formats", o.FieldCount(), completes)
	case o.Status == matcher.Complete:
		return "single template matched completely"
	default:
		return fmt.Sprintf("partial match with %d fields (score %.2f)", o.FieldCount(), o.Score)
	}
}
