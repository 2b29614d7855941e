// Package matcher scores one log line against one catalog format.
package matcher

import (
	"fmt"
	"time"
)

// Status is the verdict of matching a line against a format.
type Status int

const (
	NoMatch Status = iota
	Partial
	Complete
)

func (s Status) String() string {
	switch s {
	case Partial:
		return "partial"
	case Complete:
		return "complete"
	default:
		return "no_match"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "complete":
		*s = Complete
	case "partial":
		*s = Partial
	case "no_match", "":
		*s = NoMatch
	default:
		return fmt.Errorf("unknown match status %q", b)
	}
	return nil
}

// Outcome is the result of matching one line against one format. It is not
// modified after Match returns.
type Outcome struct {
	Status        Status            `json:"status"`
	Fields        map[string]string `json:"fields,omitempty"`
	Score         float64           `json:"score"`
	Confidence    float64           `json:"confidence"`
	Template      string            `json:"template,omitempty"`
	Expression    string            `json:"expression,omitempty"`
	LogType       string            `json:"log_type,omitempty"`
	SpecificCount int               `json:"specific_count"`
	Elapsed       time.Duration     `json:"elapsed"`
	TimedOut      bool              `json:"timed_out,omitempty"`
}

// Matched reports whether the outcome is Partial or Complete.
func (o Outcome) Matched() bool {
	return o.Status != NoMatch
}

// FieldCount returns the number of extracted fields.
func (o Outcome) FieldCount() int {
	return len(o.Fields)
}
