// Package catalog holds log-format definitions and an indexed, immutable
// view over them.
package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Format is one catalog entry. It is never mutated after loading.
type Format struct {
	ID             string    `json:"format_id"`
	Name           string    `json:"format_name"`
	Version        string    `json:"format_version"`
	Group          string    `json:"group_name"`
	GroupID        string    `json:"group_id"`
	Vendor         string    `json:"vendor"`
	Model          string    `json:"model"`
	SMType         string    `json:"sm_type"`
	LogTypes       []LogType `json:"log_type"`
	RequiredFields []string  `json:"required_fields,omitempty"`
}

// LogType is a named sub-category of a format. Patterns are tried in order.
type LogType struct {
	Type        string    `json:"type"`
	Description string    `json:"type_description"`
	Patterns    []Pattern `json:"patterns"`
}

// Pattern is a single grok template of a log type.
type Pattern struct {
	Name           string            `json:"exp_name"`
	Grok           string            `json:"grok_exp"`
	SampleLog      string            `json:"samplelog"`
	Order          Order             `json:"order"`
	DataTable      []json.RawMessage `json:"data_table,omitempty"`
	RequiredFields []string          `json:"required_fields,omitempty"`
}

// Order is a pattern's trial position. Catalog exports carry it either as a
// number or as a numeric string.
type Order int

// UnmarshalJSON accepts 3, "3", "" and null.
func (o *Order) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*o = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*o = Order(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*o = Order(n)
	return nil
}

// Required returns the fields a match must extract: the pattern's own list
// when present, then data_table entries marked required, then the format's.
func (f *Format) Required(p *Pattern) []string {
	if p != nil {
		if len(p.RequiredFields) > 0 {
			return p.RequiredFields
		}
		if req := p.requiredFromDataTable(); len(req) > 0 {
			return req
		}
	}
	return f.RequiredFields
}

type dataTableField struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

func (p *Pattern) requiredFromDataTable() []string {
	var out []string
	for _, raw := range p.DataTable {
		var field dataTableField
		if err := json.Unmarshal(raw, &field); err != nil {
			continue
		}
		if field.Required && strings.TrimSpace(field.Name) != "" {
			out = append(out, strings.TrimSpace(field.Name))
		}
	}
	return out
}

// PatternCount returns the number of templates across all log types.
func (f *Format) PatternCount() int {
	n := 0
	for _, lt := range f.LogTypes {
		n += len(lt.Patterns)
	}
	return n
}

// NormalizeGroup folds a group name to the key used for weights and
// filters: "Web Server", "web_server" and "WEBSERVER" are the same group.
func NormalizeGroup(group string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(group)))
}
