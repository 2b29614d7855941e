package matcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cisec/aisac-logformat/internal/catalog"
	"github.com/cisec/aisac-logformat/internal/grok"
	"github.com/cisec/aisac-logformat/internal/validator"
)

// Observer receives per-match events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveMatch(status Status, elapsed time.Duration)
	ObserveCompileFailure()
	ObserveTemplateTimeout()
	ObserveGenericSkip()
}

type nopObserver struct{}

func (nopObserver) ObserveMatch(Status, time.Duration) {}
func (nopObserver) ObserveCompileFailure()             {}
func (nopObserver) ObserveTemplateTimeout()            {}
func (nopObserver) ObserveGenericSkip()                {}

// Options controls matching behavior.
type Options struct {
	ValidateFields  bool
	PartialMatches  bool
	CaseInsensitive bool
	// Multiline keeps the whole input; otherwise only the first line is matched.
	Multiline    bool
	Thresholds   Thresholds
	GroupWeights map[string]float64
}

// DefaultOptions returns options with validation and partial matches enabled.
func DefaultOptions() Options {
	return Options{
		ValidateFields: true,
		PartialMatches: true,
		Thresholds:     DefaultThresholds(),
		GroupWeights:   DefaultGroupWeights(),
	}
}

// Engine matches lines against formats. It holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	compiler *grok.Compiler
	opts     Options
	weights  Weights
	observer Observer
	logger   zerolog.Logger
}

// NewEngine creates an engine that compiles templates with compiler.
func NewEngine(compiler *grok.Compiler, opts Options, logger zerolog.Logger) *Engine {
	if opts.GroupWeights == nil {
		opts.GroupWeights = DefaultGroupWeights()
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	return &Engine{
		compiler: compiler,
		opts:     opts,
		weights:  NewWeights(opts.GroupWeights),
		observer: nopObserver{},
		logger:   logger.With().Str("component", "matcher").Logger(),
	}
}

// SetObserver installs an event observer. Passing nil restores the no-op one.
func (e *Engine) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

// Compiler returns the template compiler backing the engine.
func (e *Engine) Compiler() *grok.Compiler {
	return e.compiler
}

// Options returns the engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// GroupWeight returns the confidence multiplier for a group.
func (e *Engine) GroupWeight(group string) float64 {
	return e.weights.For(group)
}

// NormalizeLine trims the line, keeps only its first line unless multiline
// matching is enabled, and folds case in case-insensitive mode.
func (e *Engine) NormalizeLine(line string) string {
	if !e.opts.Multiline {
		if i := strings.IndexAny(line, "\r\n"); i >= 0 {
			line = line[:i]
		}
	}
	line = strings.TrimSpace(line)
	if e.opts.CaseInsensitive {
		line = strings.ToLower(line)
	}
	return line
}

// Match applies every usable template of f to line in declared order. The
// first complete match wins; otherwise the best partial match is returned.
// Compile failures and timeouts count as no match and are never returned
// as errors.
func (e *Engine) Match(ctx context.Context, line string, f *catalog.Format) Outcome {
	start := time.Now()
	out := e.match(ctx, line, f)
	out.Elapsed = time.Since(start)
	e.observer.ObserveMatch(out.Status, out.Elapsed)
	return out
}

func (e *Engine) match(ctx context.Context, line string, f *catalog.Format) Outcome {
	if f == nil {
		return Outcome{}
	}
	normalized := e.NormalizeLine(line)
	if normalized == "" {
		return Outcome{}
	}
	weight := e.weights.For(f.Group)

	var best Outcome
	timedOut := false

	for _, lt := range f.LogTypes {
		for i := range lt.Patterns {
			if err := ctx.Err(); err != nil {
				return Outcome{TimedOut: errors.Is(err, context.DeadlineExceeded)}
			}

			p := &lt.Patterns[i]
			out, err := e.tryPattern(normalized, f, p)
			if err != nil {
				if errors.Is(err, grok.ErrMatchTimeout) {
					timedOut = true
				}
				continue
			}
			if out.Status == NoMatch {
				continue
			}

			out.LogType = lt.Type
			out.Confidence = e.opts.Thresholds.confidence(out.Status, out.Score, weight)
			if out.Status == Complete {
				return out
			}
			if out.Score > best.Score {
				best = out
			}
		}
	}

	if best.Status == NoMatch {
		best.TimedOut = timedOut
	}
	return best
}

func (e *Engine) tryPattern(line string, f *catalog.Format, p *catalog.Pattern) (Outcome, error) {
	if grok.IsOverlyGeneric(p.Grok) {
		e.observer.ObserveGenericSkip()
		return Outcome{}, nil
	}

	tmpl, err := e.compiler.Compile(p.Grok)
	if err != nil {
		e.observer.ObserveCompileFailure()
		e.logger.Debug().Err(err).
			Str("format_id", f.ID).
			Str("template", p.Name).
			Msg("Template unusable")
		return Outcome{}, err
	}

	fields, err := tmpl.Match(line)
	if err != nil {
		e.observer.ObserveTemplateTimeout()
		e.logger.Warn().Err(err).
			Str("format_id", f.ID).
			Str("template", p.Name).
			Msg("Template match timed out")
		return Outcome{}, err
	}
	if len(fields) == 0 {
		return Outcome{}, nil
	}

	return e.evaluate(line, fields, f.Required(p), p), nil
}

func (e *Engine) evaluate(line string, fields map[string]string, required []string, p *catalog.Pattern) Outcome {
	var validated int
	if e.opts.ValidateFields {
		fields, validated = validator.Filter(fields)
	} else {
		for name, v := range fields {
			if validator.Known(name) && validator.Validate(name, v) {
				validated++
			}
		}
	}

	ev := evaluation{
		fields:    fields,
		specific:  CountSpecific(fields),
		validated: validated,
		coverage:  Coverage(line, fields),
		required:  required,
	}

	out := Outcome{
		Fields:        fields,
		Template:      p.Name,
		Expression:    p.Grok,
		SpecificCount: ev.specific,
	}

	th := e.opts.Thresholds
	if th.isComplete(ev) {
		out.Status = Complete
		out.Score = 1.0
		return out
	}
	if !e.opts.PartialMatches {
		return Outcome{}
	}
	score := th.partialScore(ev)
	if score <= th.MinPartialScore {
		return Outcome{}
	}
	out.Status = Partial
	out.Score = score
	return out
}
