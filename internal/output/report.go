// Package output renders run reports for the terminal.
package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/perfgate/perfgate/internal/runner"
	"github.com/perfgate/perfgate/internal/stats"
)

// timeRounding keeps the wall-clock line readable.
const timeRounding = 10 * time.Millisecond

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON emits the run artifact verbatim
	FormatJSON OutputFormat = "json"
)

// ParseFormat maps a flag value onto an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatText, FormatJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (valid: %s, %s)", s, FormatText, FormatJSON)
}

// Formatter renders a run report as text for the terminal.
type Formatter struct {
	NoColor bool
	Verbose bool

	scheme *ColorScheme
}

// NewFormatter creates a new formatter with the given options
func NewFormatter(verbose, noColor bool) *Formatter {
	scheme := DefaultColorScheme()
	if noColor {
		scheme = NoColorScheme()
	}
	return &Formatter{
		NoColor: noColor,
		Verbose: verbose,
		scheme:  scheme,
	}
}

// FormatReport renders the full run summary: header, metrics, assertions
// and verdict.
func (f *Formatter) FormatReport(report *runner.Report) string {
	var buf strings.Builder

	buf.WriteString(f.scheme.Title.Sprintf("▶ %s", report.Name))
	buf.WriteString(fmt.Sprintf("  (run %s, environment %q)\n", report.RunID, report.Environment))

	m := report.Metrics
	if m != nil {
		buf.WriteString(fmt.Sprintf("  %s %d iterations", f.scheme.Label.Sprint("Measured:"), m.Effective))
		if m.WarmupDiscarded {
			buf.WriteString(" (+1 warmup discarded)")
		}
		buf.WriteString("\n")

		buf.WriteString(fmt.Sprintf("  %s %.2fms mean, %.1f renders mean\n",
			f.scheme.Label.Sprint("Duration:"), m.MeanDuration, m.MeanRenders))
		if m.Duration != nil {
			buf.WriteString(fmt.Sprintf("    p50 %.2fms  p95 %.2fms  p99 %.2fms  σ %.2f\n",
				m.Duration.P50, m.Duration.P95, m.Duration.P99, m.Duration.StdDev))
		}
		if m.MeanFPS != nil {
			buf.WriteString(fmt.Sprintf("  %s %.1f\n", f.scheme.Label.Sprint("Mean FPS:"), *m.MeanFPS))
		}
		if m.MeanHeapGrowthPct != nil {
			buf.WriteString(fmt.Sprintf("  %s %.1f%%\n", f.scheme.Label.Sprint("Heap growth:"), *m.MeanHeapGrowthPct))
		}
		f.writeSubjects(&buf, m.Subjects)
	}

	f.writeVitals(&buf, report)
	f.writeAudit(&buf, report)
	f.writeAssertions(&buf, report.Assertions)

	buf.WriteString("\n")
	if report.Passed {
		buf.WriteString(f.scheme.Pass.Sprint("PASS"))
	} else {
		buf.WriteString(f.scheme.Fail.Sprint("FAIL"))
	}
	buf.WriteString(fmt.Sprintf("  (%s)\n", report.Duration.Round(timeRounding)))

	return buf.String()
}

func (f *Formatter) writeSubjects(buf *strings.Builder, subjects map[string]stats.SubjectStats) {
	if len(subjects) == 0 {
		return
	}
	names := make([]string, 0, len(subjects))
	for name := range subjects {
		names = append(names, name)
	}
	sort.Strings(names)

	buf.WriteString(fmt.Sprintf("  %s\n", f.scheme.Label.Sprint("Subjects:")))
	for _, name := range names {
		s := subjects[name]
		buf.WriteString(fmt.Sprintf("    %s  %.2fms mean (p95 %.2fms), %.1f renders, %d samples\n",
			f.scheme.Highlight.Sprint(name), s.MeanDuration, s.DurationP95, s.MeanRenders, s.Samples))
	}
}

func (f *Formatter) writeVitals(buf *strings.Builder, report *runner.Report) {
	v := report.Vitals
	if v == nil {
		return
	}
	buf.WriteString(fmt.Sprintf("  %s", f.scheme.Label.Sprint("Web vitals:")))
	vitals := []struct {
		name  string
		value *float64
		unit  string
	}{
		{"LCP", v.LCP, "ms"},
		{"CLS", v.CLS, ""},
		{"FCP", v.FCP, "ms"},
		{"TTFB", v.TTFB, "ms"},
		{"INP", v.INP, "ms"},
	}
	wrote := false
	for _, vv := range vitals {
		if vv.value == nil {
			continue
		}
		buf.WriteString(fmt.Sprintf("  %s %.2f%s", vv.name, *vv.value, vv.unit))
		wrote = true
	}
	if !wrote {
		buf.WriteString("  (none observed)")
	}
	buf.WriteString("\n")
}

func (f *Formatter) writeAudit(buf *strings.Builder, report *runner.Report) {
	if len(report.AuditScores) == 0 {
		return
	}
	categories := make([]string, 0, len(report.AuditScores))
	for c := range report.AuditScores {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	buf.WriteString(fmt.Sprintf("  %s", f.scheme.Label.Sprint("Audit:")))
	for _, c := range categories {
		score := report.AuditScores[c]
		if score == nil {
			buf.WriteString(fmt.Sprintf("  %s n/a", c))
			continue
		}
		buf.WriteString(fmt.Sprintf("  %s %.0f", c, *score))
	}
	buf.WriteString("\n")
}

func (f *Formatter) writeAssertions(buf *strings.Builder, assertions []runner.AssertionResult) {
	if len(assertions) == 0 {
		return
	}
	buf.WriteString(fmt.Sprintf("  %s\n", f.scheme.Label.Sprint("Assertions:")))
	for _, a := range assertions {
		icon := SuccessIcon(f.NoColor)
		if !a.Passed {
			icon = ErrorIcon(f.NoColor)
		}
		if a.Passed && !f.Verbose {
			continue
		}
		buf.WriteString(fmt.Sprintf("    %s %s\n", icon, a.String()))
	}
	passed := 0
	for _, a := range assertions {
		if a.Passed {
			passed++
		}
	}
	buf.WriteString(fmt.Sprintf("    %d/%d passed\n", passed, len(assertions)))
}
