package grok

import (
	"regexp"
	"strconv"
	"strings"
)

// maxNormalizePasses bounds the fixpoint loop in Normalize. Every rule
// shrinks or renames, so real templates settle in one or two passes.
const maxNormalizePasses = 8

var (
	placeholderRe = regexp.MustCompile(`%\{([^:}]+)(?::([^:}]*))?(?::([^:}]*))?\}`)

	// (?<name>(inner)) where inner holds no groups
	redundantGroupRe = regexp.MustCompile(`\(\?<([A-Za-z_][A-Za-z0-9_]*)>\(([^()?][^()]*)?\)\)`)
	// (?<name followed by something other than '>'
	missingCloseRe = regexp.MustCompile(`\(\?<([A-Za-z][A-Za-z0-9_]*)([^A-Za-z0-9_>])`)
	// [(?<name>inner)] or [(?<name>inner)]* not already escaped
	bracketGroupRe = regexp.MustCompile(`(^|[^\\])\[\(\?<[A-Za-z_][A-Za-z0-9_]*>([^()\[\]]+)\)\]\*?`)
)

// placeholder is one %{PATTERN:field:type} occurrence.
type placeholder struct {
	start, end int
	pattern    string
	field      string
	typ        string
	hasField   bool
	hasType    bool
}

func (p placeholder) String() string {
	var b strings.Builder
	b.WriteString("%{")
	b.WriteString(p.pattern)
	if p.hasField {
		b.WriteByte(':')
		b.WriteString(p.field)
		if p.hasType {
			b.WriteByte(':')
			b.WriteString(p.typ)
		}
	}
	b.WriteByte('}')
	return b.String()
}

func findPlaceholders(text string) []placeholder {
	idx := placeholderRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]placeholder, 0, len(idx))
	for _, m := range idx {
		p := placeholder{start: m[0], end: m[1], pattern: text[m[2]:m[3]]}
		if m[4] >= 0 {
			p.hasField = true
			p.field = text[m[4]:m[5]]
		}
		if m[6] >= 0 {
			p.hasType = true
			p.typ = text[m[6]:m[7]]
		}
		out = append(out, p)
	}
	return out
}

func rewritePlaceholders(text string, fn func(i int, p placeholder) placeholder) string {
	phs := findPlaceholders(text)
	if len(phs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for i, p := range phs {
		b.WriteString(text[last:p.start])
		b.WriteString(fn(i, p).String())
		last = p.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// Normalize repairs the fixed set of template defects: empty field
// annotations, duplicate field names, redundant inner groups, named groups
// missing their closing '>', and named groups inside literal brackets.
// Normalize(Normalize(t)) == Normalize(t).
func Normalize(template string) string {
	cur := template
	for i := 0; i < maxNormalizePasses; i++ {
		next := normalizeOnce(cur)
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

func normalizeOnce(t string) string {
	t = stripEmptyFieldNames(t)
	t = renameDuplicateFields(t)
	t = fixRedundantGroups(t)
	t = fixMissingGroupClose(t)
	t = fixBracketGroups(t)
	return t
}

// NormalizeCompiledPattern repairs redundant inner groups in an expanded
// regular expression.
func NormalizeCompiledPattern(expr string) string {
	cur := expr
	for i := 0; i < maxNormalizePasses; i++ {
		next := fixRedundantGroups(cur)
		if next == cur {
			break
		}
		cur = next
	}
	return cur
}

func stripEmptyFieldNames(t string) string {
	return rewritePlaceholders(t, func(_ int, p placeholder) placeholder {
		if p.hasField && p.field == "" {
			p.hasField, p.hasType, p.typ = false, false, ""
		}
		if p.hasType && p.typ == "" {
			p.hasType = false
		}
		return p
	})
}

func renameDuplicateFields(t string) string {
	phs := findPlaceholders(t)
	counts := make(map[string]int)
	taken := make(map[string]bool)
	for _, p := range phs {
		if p.hasField && p.field != "" {
			counts[p.field]++
			taken[p.field] = true
		}
	}
	dup := false
	for _, n := range counts {
		if n > 1 {
			dup = true
			break
		}
	}
	if !dup {
		return t
	}

	// next holds the next suffix to try; 0 means the first occurrence is pending.
	next := make(map[string]int)
	return rewritePlaceholders(t, func(_ int, p placeholder) placeholder {
		if !p.hasField || counts[p.field] < 2 {
			return p
		}
		suffix := next[p.field]
		if suffix == 0 {
			next[p.field] = 1
			return p
		}
		name := p.field + "_" + strconv.Itoa(suffix)
		for taken[name] {
			suffix++
			name = p.field + "_" + strconv.Itoa(suffix)
		}
		taken[name] = true
		next[p.field] = suffix + 1
		p.field = name
		return p
	})
}

func fixRedundantGroups(t string) string {
	return redundantGroupRe.ReplaceAllString(t, "(?<${1}>${2})")
}

func fixMissingGroupClose(t string) string {
	return missingCloseRe.ReplaceAllString(t, "(?<${1}>${2}")
}

func fixBracketGroups(t string) string {
	return bracketGroupRe.ReplaceAllString(t, `${1}\[${2}\]`)
}

// ExplicitFields returns the field names the template author gave to
// placeholders, in order of appearance. Placeholders without a name and raw
// regex groups are not included.
func ExplicitFields(template string) []string {
	var fields []string
	for _, p := range findPlaceholders(template) {
		if p.hasField && p.field != "" {
			fields = append(fields, p.field)
		}
	}
	return fields
}
