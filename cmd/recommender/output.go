package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cisec/aisac-logformat/internal/recommend"
	"github.com/cisec/aisac-logformat/pkg/protocol"
	"github.com/cisec/aisac-logformat/pkg/types"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// printer renders command results as aligned text or indented JSON.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case outputText, outputJSON:
		return &printer{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

func (p *printer) writeJSON(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) recommendations(recs []types.Recommendation) error {
	if p.format == outputJSON {
		return p.writeJSON(recs)
	}
	if len(recs) == 0 {
		_, err := fmt.Fprintln(p.w, "no matching formats")
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tFORMAT\tGROUP\tCONFIDENCE\tSTATUS\tFIELDS\tREASON")
	for _, r := range recs {
		status := string(r.Status)
		if r.Exact {
			status += " (exact)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%d\t%s\n",
			r.Rank, r.Format.ID, r.Format.Group, r.Confidence, status, r.FieldCount, r.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if top := recs[0]; len(top.Fields) > 0 {
		fmt.Fprintf(p.w, "\nfields of %s (%s):\n", top.Format.ID, top.Template)
		for _, name := range sortedKeys(top.Fields) {
			fmt.Fprintf(p.w, "  %s = %s\n", name, top.Fields[name])
		}
	}
	return nil
}

func (p *printer) batch(resp *protocol.BatchResponse) error {
	if p.format == outputJSON {
		return p.writeJSON(resp)
	}
	if resp.PerLine == nil {
		fmt.Fprintf(p.w, "%d lines\n", resp.Lines)
		return p.recommendations(resp.Recommendations)
	}
	for i, recs := range resp.PerLine {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		fmt.Fprintf(p.w, "line %d:\n", i+1)
		if err := p.recommendations(recs); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) formats(formats []types.FormatSummary) error {
	if p.format == outputJSON {
		return p.writeJSON(formats)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGROUP\tVENDOR\tLOG TYPES\tPATTERNS")
	for _, f := range formats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", f.ID, f.Name, f.Group, f.Vendor, f.LogTypes, f.PatternCount)
	}
	return tw.Flush()
}

func (p *printer) stats(title string, counts map[string]int) error {
	if p.format == outputJSON {
		return p.writeJSON(counts)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\tFORMATS\n", strings.ToUpper(title))
	for _, k := range sortedKeys(counts) {
		name := k
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%d\n", name, counts[k])
	}
	return tw.Flush()
}

// validation prints the summary and every check that did not pass, or every
// check when all is set.
func (p *printer) validation(report *recommend.ValidationReport, all bool) error {
	if p.format == outputJSON {
		return p.writeJSON(report)
	}
	fmt.Fprintf(p.w, "%d formats, %d templates: %d passed, %d warnings, %d failed\n",
		report.Formats, report.Templates, report.Passed, report.Warnings, report.Failed)

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FORMAT\tLOG TYPE\tTEMPLATE\tSTATUS\tDETAIL")
	shown := 0
	for _, c := range report.Results {
		if c.Status == recommend.CheckPass && !all {
			continue
		}
		detail := strings.Join(append(append([]string(nil), c.Errors...), c.Warnings...), "; ")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.FormatID, c.LogType, c.Template, c.Status, detail)
		shown++
	}
	if shown == 0 {
		return nil
	}
	fmt.Fprintln(p.w)
	return tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
