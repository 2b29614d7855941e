package grok

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPattern is returned when a placeholder references a sub-pattern
	// that is not present in the library.
	ErrUnknownPattern = errors.New("unknown pattern")
	// ErrRecursion is returned when sub-pattern expansion exceeds the nesting limit.
	ErrRecursion = errors.New("pattern expansion too deep")
	// ErrInvalidRegex is returned when the expanded expression is rejected by the regex engine.
	ErrInvalidRegex = errors.New("invalid regular expression")
	// ErrEmptyTemplate is returned for blank template text.
	ErrEmptyTemplate = errors.New("empty template")
	// ErrInvalidPatternName is returned for sub-pattern names outside [A-Z][A-Z0-9_]*.
	ErrInvalidPatternName = errors.New("invalid pattern name")
)

// CompileError describes why a template could not be compiled.
type CompileError struct {
	Template string
	Pattern  string
	Err      error
}

func (e *CompileError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("compiling template %q: %s: %v", e.Template, e.Pattern, e.Err)
	}
	return fmt.Sprintf("compiling template %q: %v", e.Template, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
