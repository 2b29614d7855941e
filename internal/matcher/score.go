package matcher

import (
	"math"
	"regexp"
	"strings"

	"github.com/cisec/aisac-logformat/internal/catalog"
)

// Thresholds holds the tunable constants of the complete/partial decision.
type Thresholds struct {
	// A match is complete with more than MinCompleteFields fields...
	MinCompleteFields int `yaml:"min_complete_fields"`
	// ...or at least MinSpecificFields specific fields.
	MinSpecificFields int `yaml:"min_specific_fields"`
	// MinCoverage is the share of the line the extracted values must cover.
	MinCoverage float64 `yaml:"min_coverage"`
	// Partial matches at or below MinPartialScore are dropped.
	MinPartialScore float64 `yaml:"min_partial_score"`
	FieldCountCap   int     `yaml:"field_count_cap"`

	CompleteConfidence float64 `yaml:"complete_confidence"`
	PartialConfidence  float64 `yaml:"partial_confidence"`
}

// DefaultThresholds returns the stock scoring constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCompleteFields:  3,
		MinSpecificFields:  2,
		MinCoverage:        0.75,
		MinPartialScore:    0.3,
		FieldCountCap:      8,
		CompleteConfidence: 98,
		PartialConfidence:  70,
	}
}

// Partial score weights.
const (
	weightFieldCount = 0.4
	weightSpecific   = 0.2
	weightCoverage   = 0.2
	weightValidated  = 0.1
	weightRequired   = 0.1
)

// DefaultGroupWeights returns the stock per-group confidence multipliers.
func DefaultGroupWeights() map[string]float64 {
	return map[string]float64{
		"FIREWALL":    1.2,
		"IPS":         1.2,
		"WAF":         1.1,
		"WEBSERVER":   1.0,
		"SYSTEM":      0.9,
		"APPLICATION": 0.8,
		"DEFAULT":     1.0,
	}
}

var specificFields = map[string]bool{
	"src": true, "dst": true,
	"src_ip": true, "dst_ip": true, "srcip": true, "dstip": true, "sip": true, "dip": true,
	"src_port": true, "dst_port": true, "srcport": true, "dstport": true, "sport": true, "dport": true,
	"protocol": true, "proto": true,
	"action": true,
	"rule_id": true, "ruleid": true,
	"session_id": true, "sessionid": true,
	"event_id": true, "eventid": true,
}

var dupSuffixRe = regexp.MustCompile(`_\d+$`)

// IsSpecificField reports whether a field name identifies network or rule
// context. Duplicate suffixes such as src_ip_1 are ignored.
func IsSpecificField(name string) bool {
	n := strings.ToLower(name)
	if specificFields[n] {
		return true
	}
	return specificFields[dupSuffixRe.ReplaceAllString(n, "")]
}

// CountSpecific counts specific fields in fields.
func CountSpecific(fields map[string]string) int {
	n := 0
	for name := range fields {
		if IsSpecificField(name) {
			n++
		}
	}
	return n
}

// Coverage returns the share of line length covered by extracted values.
func Coverage(line string, fields map[string]string) float64 {
	if len(line) == 0 {
		return 0
	}
	total := 0
	for _, v := range fields {
		total += len(v)
	}
	return float64(total) / float64(len(line))
}

type evaluation struct {
	fields    map[string]string
	specific  int
	validated int
	coverage  float64
	required  []string
}

func (ev evaluation) requiredFound() int {
	found := 0
	for _, r := range ev.required {
		if _, ok := ev.fields[r]; ok {
			found++
		}
	}
	return found
}

func (th Thresholds) isComplete(ev evaluation) bool {
	n := len(ev.fields)
	if n == 0 {
		return false
	}
	if n <= th.MinCompleteFields && ev.specific < th.MinSpecificFields {
		return false
	}
	if ev.requiredFound() != len(ev.required) {
		return false
	}
	return ev.coverage >= th.MinCoverage
}

func (th Thresholds) partialScore(ev evaluation) float64 {
	n := len(ev.fields)
	if n == 0 {
		return 0
	}
	capN := th.FieldCountCap
	if capN <= 0 {
		capN = 8
	}
	fn := float64(n)

	score := weightFieldCount * math.Min(fn, float64(capN)) / float64(capN)
	score += weightSpecific * float64(ev.specific) / fn
	score += weightCoverage * math.Min(ev.coverage, 1)
	score += weightValidated * float64(ev.validated) / fn
	if len(ev.required) == 0 {
		score += weightRequired
	} else {
		score += weightRequired * float64(ev.requiredFound()) / float64(len(ev.required))
	}
	return score
}

// Weights maps folded group names to confidence multipliers.
type Weights map[string]float64

// NewWeights folds the keys of m with catalog.NormalizeGroup.
func NewWeights(m map[string]float64) Weights {
	w := make(Weights, len(m))
	for k, v := range m {
		w[catalog.NormalizeGroup(k)] = v
	}
	return w
}

// For returns the weight of group, falling back to DEFAULT and then 1.0.
func (w Weights) For(group string) float64 {
	if v, ok := w[catalog.NormalizeGroup(group)]; ok {
		return v
	}
	if v, ok := w["DEFAULT"]; ok {
		return v
	}
	return 1.0
}

// confidence maps a verdict to [0,100] and applies the group weight.
func (th Thresholds) confidence(status Status, score, weight float64) float64 {
	switch status {
	case Complete:
		return math.Min(th.CompleteConfidence*weight, th.CompleteConfidence)
	case Partial:
		c := math.Min(score*th.PartialConfidence, th.PartialConfidence)
		return math.Min(c*weight, th.PartialConfidence)
	default:
		return 0
	}
}
