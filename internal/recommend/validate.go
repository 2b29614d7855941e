package recommend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cisec/aisac-logformat/internal/catalog"
	"github.com/cisec/aisac-logformat/internal/grok"
)

// CheckStatus is the verdict for one catalog template.
type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckWarning CheckStatus = "warning"
	CheckFail    CheckStatus = "fail"
)

// minEffectiveFields is the extracted-field count at or below which a sample
// parse is flagged. Timestamp and free-text payload fields are not counted.
const minEffectiveFields = 2

var freeTextFields = map[string]bool{
	"log_time":    true,
	"message":     true,
	"msg":         true,
	"raw_message": true,
}

// TemplateCheck is the validation result of one template, or of a format or
// log type that has no templates at all.
type TemplateCheck struct {
	FormatID   string            `json:"format_id"`
	FormatName string            `json:"format_name"`
	Group      string            `json:"group"`
	Vendor     string            `json:"vendor"`
	LogType    string            `json:"log_type,omitempty"`
	Template   string            `json:"template,omitempty"`
	Expression string            `json:"expression,omitempty"`
	SampleLog  string            `json:"sample_log,omitempty"`
	Status     CheckStatus       `json:"status"`
	Errors     []string          `json:"errors,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	ElapsedMs  float64           `json:"elapsed_ms"`
}

func (c *TemplateCheck) fail(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
	c.Status = CheckFail
}

func (c *TemplateCheck) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
	if c.Status != CheckFail {
		c.Status = CheckWarning
	}
}

// ValidationReport summarizes a catalog self-check.
type ValidationReport struct {
	Formats   int             `json:"formats"`
	Templates int             `json:"templates"`
	Passed    int             `json:"passed"`
	Warnings  int             `json:"warnings"`
	Failed    int             `json:"failed"`
	Results   []TemplateCheck `json:"results"`
	Compiler  grok.CacheStats `json:"compiler"`
	ElapsedMs float64         `json:"elapsed_ms"`
}

// OK reports whether no template failed.
func (r *ValidationReport) OK() bool {
	return r.Failed == 0
}

// Failures returns the failed checks.
func (r *ValidationReport) Failures() []TemplateCheck {
	var out []TemplateCheck
	for _, c := range r.Results {
		if c.Status == CheckFail {
			out = append(out, c)
		}
	}
	return out
}

type checkTask struct {
	format  *catalog.Format
	logType string
	pattern *catalog.Pattern // nil for structural checks
	missing string           // structural problem when pattern is nil
}

// Validate compiles every template of the current catalog and parses each
// template's sample log with it. Results follow catalog order.
func (r *Recommender) Validate(ctx context.Context) (*ValidationReport, error) {
	start := time.Now()
	cat := r.Catalog()

	var tasks []checkTask
	for _, f := range cat.All() {
		if len(f.LogTypes) == 0 {
			tasks = append(tasks, checkTask{format: f, missing: "format has no log types"})
			continue
		}
		for _, lt := range f.LogTypes {
			if len(lt.Patterns) == 0 {
				tasks = append(tasks, checkTask{format: f, logType: lt.Type, missing: "log type has no templates"})
				continue
			}
			for i := range lt.Patterns {
				tasks = append(tasks, checkTask{format: f, logType: lt.Type, pattern: &lt.Patterns[i]})
			}
		}
	}

	results := make([]TemplateCheck, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.check(tasks[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &ValidationReport{
		Formats:  cat.Len(),
		Results:  results,
		Compiler: r.engine.Compiler().Stats(),
	}
	for i, c := range results {
		if tasks[i].pattern != nil {
			report.Templates++
		}
		switch c.Status {
		case CheckPass:
			report.Passed++
		case CheckWarning:
			report.Warnings++
		case CheckFail:
			report.Failed++
		}
	}
	report.ElapsedMs = elapsedMs(start)

	r.logger.Info().
		Int("formats", report.Formats).
		Int("templates", report.Templates).
		Int("failed", report.Failed).
		Int("warnings", report.Warnings).
		Msg("Catalog validated")
	return report, nil
}

func (r *Recommender) check(t checkTask) TemplateCheck {
	start := time.Now()
	c := TemplateCheck{
		FormatID:   t.format.ID,
		FormatName: t.format.Name,
		Group:      t.format.Group,
		Vendor:     t.format.Vendor,
		LogType:    t.logType,
		Status:     CheckPass,
	}

	if t.pattern == nil {
		if t.logType == "" {
			c.fail("%s", t.missing)
		} else {
			c.warn("%s", t.missing)
		}
		c.ElapsedMs = elapsedMs(start)
		return c
	}

	p := t.pattern
	c.Template = p.Name
	c.Expression = p.Grok
	c.SampleLog = p.SampleLog

	tmpl, err := r.engine.Compiler().Compile(p.Grok)
	if err != nil {
		c.fail("compile: %v", err)
		c.ElapsedMs = elapsedMs(start)
		return c
	}

	if grok.IsOverlyGeneric(p.Grok) {
		c.warn("template is too generic and is skipped during matching")
	}
	if strings.Contains(p.Grok, "GREEDYDATA") {
		c.warn("template uses GREEDYDATA")
	}

	if strings.TrimSpace(p.SampleLog) == "" {
		c.warn("no sample log to test against")
		c.ElapsedMs = elapsedMs(start)
		return c
	}

	fields, err := tmpl.Match(r.engine.NormalizeLine(p.SampleLog))
	switch {
	case err != nil:
		c.fail("sample log: %v", err)
	case len(fields) == 0:
		c.fail("sample log does not match its template")
	default:
		c.Fields = fields
		effective := 0
		for name := range fields {
			if !freeTextFields[strings.ToLower(name)] {
				effective++
			}
		}
		if effective <= minEffectiveFields {
			c.warn("only %d effective fields extracted from sample log", effective)
		}
	}
	c.ElapsedMs = elapsedMs(start)
	return c
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
