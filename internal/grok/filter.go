package grok

import (
	"math"
	"regexp"
	"strings"
)

// Degenerate templates that carry no diagnostic value.
var overlyGenericTemplates = toSet(
	`^%{LOG_TIME:log_time} %{MESSAGE:message}$`,
	`^%{LOG_TIME:log_time}\s+%{MESSAGE:message}$`,
	`^%{MESSAGE:message}$`,
	`^.*%{MESSAGE:message}.*$`,
	`^%{GREEDYDATA:data}$`,
	`^%{DATA:data}$`,
	`^.*$`,
	`^%{LOGLEVEL:level} %{MESSAGE:message}$`,
	`^\[%{LOGLEVEL:level}\] %{MESSAGE:message}$`,
)

func toSet(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

var overlyGenericShapes = []*regexp.Regexp{
	regexp.MustCompile(`^\^?%\{MESSAGE:[^}]+\}\$?$`),
	regexp.MustCompile(`^\^?%\{LOG_TIME:[^}]+\}(?:\s*|\\s[+*])%\{MESSAGE:[^}]+\}\$?$`),
	regexp.MustCompile(`^\^?(?:\.\*)?%\{GREEDYDATA:[^}]+\}(?:\.\*)?\$?$`),
	regexp.MustCompile(`^\^?%\{DATA:[^}]+\}\$?$`),
}

var freeTextPatterns = map[string]bool{
	"MESSAGE":    true,
	"GREEDYDATA": true,
	"DATA":       true,
}

var ipPatterns = map[string]bool{
	"IP":       true,
	"IPV4":     true,
	"IPV6":     true,
	"IPORHOST": true,
	"SRC_IP":   true,
	"DST_IP":   true,
}

var portPatterns = map[string]bool{
	"PORT":     true,
	"SRC_PORT": true,
	"DST_PORT": true,
}

func namedPlaceholders(template string) []placeholder {
	var out []placeholder
	for _, p := range findPlaceholders(template) {
		if p.hasField && p.field != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsOverlyGeneric reports whether a template is too unspecific to be used for
// matching: a known degenerate template or shape, fewer than two named
// fields, or free-text fields making up half or more of its named fields.
func IsOverlyGeneric(template string) bool {
	t := strings.TrimSpace(template)
	if t == "" {
		return true
	}
	if _, ok := overlyGenericTemplates[t]; ok {
		return true
	}
	for _, re := range overlyGenericShapes {
		if re.MatchString(t) {
			return true
		}
	}

	named := namedPlaceholders(t)
	if len(named) < 2 {
		return true
	}

	free := 0
	for _, p := range named {
		if freeTextPatterns[p.pattern] {
			free++
		}
	}
	return float64(free)/float64(len(named)) >= 0.5
}

// SpecificityScore rates a template in [0,1]. Field count and IP/port fields
// raise it, free-text fields lower it. Overly generic templates score 0.
func SpecificityScore(template string) float64 {
	if IsOverlyGeneric(template) {
		return 0
	}
	named := namedPlaceholders(template)

	var hasFree, hasIP, hasPort bool
	for _, p := range named {
		hasFree = hasFree || freeTextPatterns[p.pattern]
		hasIP = hasIP || ipPatterns[p.pattern]
		hasPort = hasPort || portPatterns[p.pattern]
	}

	score := 1.0
	if hasFree {
		score *= 0.5
	}
	score *= math.Min(1, float64(len(named))/10)
	if hasIP {
		score *= 1.2
	}
	if hasPort {
		score *= 1.1
	}
	return math.Min(1, score)
}
