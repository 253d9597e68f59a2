package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/perfgate/perfgate/internal/stats"
	"github.com/perfgate/perfgate/internal/threshold"
)

// AssertionResult records one boundary comparison. Every configured
// boundary yields a result, passed or failed, so the artifact shows the
// full verdict surface.
type AssertionResult struct {
	Metric    string  `json:"metric"`
	Subject   string  `json:"subject,omitempty"`
	Actual    float64 `json:"actual"`
	Threshold float64 `json:"threshold"`
	Effective float64 `json:"effective"`
	Passed    bool    `json:"passed"`
	Detail    string  `json:"detail,omitempty"`
}

func (a AssertionResult) String() string {
	op := "<="
	if strings.HasPrefix(a.Metric, "min") || strings.HasPrefix(a.Metric, "audit.") {
		op = ">="
	}
	verdict := "PASS"
	if !a.Passed {
		verdict = "FAIL"
	}
	label := a.Metric
	if a.Subject != "" {
		label = fmt.Sprintf("%s[%s]", a.Metric, a.Subject)
	}
	return fmt.Sprintf("%s %s: %.2f %s %.2f (threshold %.2f)", verdict, label, a.Actual, op, a.Effective, a.Threshold)
}

// assert compares the aggregated run against the resolved boundaries.
// All comparisons run; the returned error summarizes every failure.
// A boundary of 0 is skipped.
func (r *Runner) assert(report *Report) ([]AssertionResult, error) {
	var results []AssertionResult
	buf := r.opts.Buffers
	m := report.Metrics

	add := func(metric, subject string, actual, raw, effective float64, lowerIsBetter bool) {
		passed := actual <= effective
		if !lowerIsBetter {
			passed = actual >= effective
		}
		results = append(results, AssertionResult{
			Metric:    metric,
			Subject:   subject,
			Actual:    actual,
			Threshold: raw,
			Effective: effective,
			Passed:    passed,
		})
	}

	upper := func(metric, subject string, actual, raw, bufPct float64, round threshold.Rounding) {
		if raw == 0 {
			return
		}
		eff, err := threshold.Effective(raw, bufPct, round)
		if err != nil {
			results = append(results, AssertionResult{Metric: metric, Subject: subject, Passed: false, Detail: err.Error()})
			return
		}
		add(metric, subject, actual, raw, eff, true)
	}
	lower := func(metric string, actual, raw, bufPct float64) {
		if raw == 0 {
			return
		}
		eff, err := threshold.EffectiveMin(raw, bufPct, threshold.RoundNone)
		if err != nil {
			results = append(results, AssertionResult{Metric: metric, Passed: false, Detail: err.Error()})
			return
		}
		add(metric, "", actual, raw, eff, false)
	}

	if m != nil {
		r.assertSubjects(m, &results, upper)
		if m.MeanFPS != nil {
			lower("minFps", *m.MeanFPS, r.resolved.MinFPS, buf.FPS)
		}
		if m.MeanHeapGrowthPct != nil {
			upper("maxHeapGrowthPct", "", *m.MeanHeapGrowthPct, r.resolved.MaxHeapGrowthPct, buf.HeapGrowth, threshold.RoundNone)
		}
	}

	if report.Vitals != nil {
		v := report.Vitals
		b := r.resolved.Vitals
		vitalChecks := []struct {
			name   string
			actual *float64
			raw    float64
		}{
			{"vitals.lcp", v.LCP, b.LCP},
			{"vitals.cls", v.CLS, b.CLS},
			{"vitals.fcp", v.FCP, b.FCP},
			{"vitals.ttfb", v.TTFB, b.TTFB},
			{"vitals.inp", v.INP, b.INP},
		}
		for _, c := range vitalChecks {
			if c.actual == nil {
				continue
			}
			upper(c.name, "", *c.actual, c.raw, buf.Vitals, threshold.RoundNone)
		}
	}

	if report.AuditScores != nil {
		b := r.resolved.Audit
		auditChecks := []struct {
			category string
			raw      float64
		}{
			{"performance", b.Performance},
			{"accessibility", b.Accessibility},
			{"best-practices", b.BestPractices},
			{"seo", b.SEO},
		}
		for _, c := range auditChecks {
			score := report.AuditScores[c.category]
			// A category the audit tool declined to score is skipped, not
			// failed; its absence is visible in the artifact.
			if score == nil {
				continue
			}
			lower("audit."+c.category, *score, c.raw, buf.Audit)
		}
	}

	return results, failureSummary(results)
}

// assertSubjects checks overall duration/renders against the wildcard
// boundary, and each measured subject against its own.
func (r *Runner) assertSubjects(m *stats.Metrics, results *[]AssertionResult, upper func(metric, subject string, actual, raw, bufPct float64, round threshold.Rounding)) {
	if !r.resolved.HasSubjects() {
		return
	}
	buf := r.opts.Buffers

	if wc, ok := r.resolved.Subjects[threshold.Wildcard]; ok {
		upper("maxDuration", "", m.MeanDuration, wc.MaxDuration, buf.Duration, threshold.RoundNone)
		upper("maxRenders", "", m.MeanRenders, wc.MaxRenders, buf.Renders, threshold.RoundInteger)
	}

	names := make([]string, 0, len(m.Subjects))
	for name := range m.Subjects {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sub := m.Subjects[name]
		budget, err := r.resolved.Subject(name)
		if err != nil {
			*results = append(*results, AssertionResult{
				Metric:  "maxDuration",
				Subject: name,
				Passed:  false,
				Detail:  err.Error(),
			})
			continue
		}
		upper("maxDuration", name, sub.MeanDuration, budget.MaxDuration, buf.Duration, threshold.RoundNone)
		upper("maxRenders", name, sub.MeanRenders, budget.MaxRenders, buf.Renders, threshold.RoundInteger)
	}
}

// failureSummary folds failed assertions into a single error, first
// failure leading.
func failureSummary(results []AssertionResult) error {
	var failed []AssertionResult
	for _, res := range results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	lines := make([]string, len(failed))
	for i, f := range failed {
		lines[i] = f.String()
	}
	return fmt.Errorf("%d of %d performance assertions failed:\n  %s",
		len(failed), len(results), strings.Join(lines, "\n  "))
}
