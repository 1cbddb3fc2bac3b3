// Package report renders matcher output for people (console) and for other tools (TSV, JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"imagedupes/types"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

type palette struct {
	header  func(a ...interface{}) string
	key     func(a ...interface{}) string
	reason  func(a ...interface{}) string
	warning func(a ...interface{}) string
	dim     func(a ...interface{}) string
}

func newPalette(colored bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		header:  mk(color.FgCyan, color.Bold),
		key:     mk(color.FgWhite),
		reason:  mk(color.FgGreen),
		warning: mk(color.FgRed, color.Bold),
		dim:     mk(color.Faint),
	}
}

// WriteConsole prints groups, nearest matches and violations in a readable layout
func WriteConsole(w io.Writer, report types.Report, colored bool) error {
	p := newPalette(colored)
	var b strings.Builder

	for i, g := range report.Groups {
		fmt.Fprintf(&b, "%s\n", p.header(fmt.Sprintf("Group %d (%d images)", i+1, len(g.Keys))))
		for _, k := range g.Keys {
			fmt.Fprintf(&b, "  %s\n", p.key(k))
		}
		for _, e := range g.Edges {
			fmt.Fprintf(&b, "    %s %s %s %s\n", p.reason(describe(e)), p.dim(e.Key), p.dim("<->"), p.dim(e.MatchedKey))
		}
	}

	if len(report.Matches) > 0 {
		fmt.Fprintf(&b, "%s\n", p.header("Nearest matches"))
		for _, m := range report.Matches {
			fmt.Fprintf(&b, "  %s -> %s %s\n", p.key(m.Key), p.key(m.MatchedKey), p.reason(fmt.Sprintf("(distance %d)", m.Distance)))
		}
	}

	if len(report.Violations) > 0 {
		fmt.Fprintf(&b, "%s\n", p.warning(fmt.Sprintf("%d integrity violations", len(report.Violations))))
		for _, v := range report.Violations {
			fmt.Fprintf(&b, "  %s %s / %s: %s\n", p.warning(v.Field), v.Key, v.OtherKey, v.Message)
		}
	}

	fmt.Fprintf(&b, "%s\n", p.dim(fmt.Sprintf("%d groups, %d matches, %d images compared, %d skipped",
		len(report.Groups), len(report.Matches), report.Considered, report.Skipped)))

	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "write console report")
}

func describe(m types.Match) string {
	switch m.Reason {
	case types.ReasonPerceptual:
		return fmt.Sprintf("perceptual (%d bits)", m.Distance)
	case types.ReasonNearest:
		return fmt.Sprintf("nearest (%d)", m.Distance)
	default:
		return string(m.Reason)
	}
}

// tsvLabel is the first column of a TSV line for each reason
var tsvLabel = map[types.MatchReason]string{
	types.ReasonFileExact:     "FILE EXACT",
	types.ReasonImageExact:    "IMAGE EXACT",
	types.ReasonRotationExact: "ROTATION",
}

// WriteTSV writes one tab separated line per edge, nearest match and violation
func WriteTSV(w io.Writer, report types.Report) error {
	var b strings.Builder

	for _, g := range report.Groups {
		for _, e := range g.Edges {
			b.WriteString(tsvLine(e))
		}
	}
	for _, m := range report.Matches {
		b.WriteString(tsvLine(m))
	}
	for _, v := range report.Violations {
		fmt.Fprintf(&b, "VIOLATION\t%s\t%s\t%s\t%s\n", v.Field, v.Key, v.OtherKey, v.Message)
	}

	_, err := io.WriteString(w, b.String())
	return errors.Wrap(err, "write tsv report")
}

func tsvLine(m types.Match) string {
	switch m.Reason {
	case types.ReasonPerceptual:
		return fmt.Sprintf("PERCEPT%d\t%s\t%s\n", m.Distance, m.Key, m.MatchedKey)
	case types.ReasonNearest:
		return fmt.Sprintf("NEAREST\t%s\t%s\t%d\n", m.Key, m.MatchedKey, m.Distance)
	default:
		return fmt.Sprintf("%s\t%s\t%s\n", tsvLabel[m.Reason], m.Key, m.MatchedKey)
	}
}

// WriteJSON writes the report as one indented JSON document
func WriteJSON(w io.Writer, report types.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(report), "write json report")
}

// Write renders report in format, one of console, tsv or json
func Write(w io.Writer, format string, report types.Report, colored bool) error {
	switch format {
	case "", "console":
		return WriteConsole(w, report, colored)
	case "tsv":
		return WriteTSV(w, report)
	case "json":
		return WriteJSON(w, report)
	default:
		return errors.Errorf("unknown report format %q", format)
	}
}
