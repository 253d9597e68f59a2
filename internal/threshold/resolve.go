package threshold

import (
	"fmt"
	"sort"
	"strings"
)

// Wildcard is the subject key that backs any subject without its own entry.
const Wildcard = "*"

// SubjectBudget is one subject's raw budget within a tier. Nil fields are
// "not specified here"; a resolved value of 0 means "do not validate".
type SubjectBudget struct {
	MaxDuration *float64 `yaml:"maxDuration" json:"maxDuration,omitempty"`
	MaxRenders  *float64 `yaml:"maxRenders" json:"maxRenders,omitempty"`
}

// VitalsBudget holds raw web-vitals thresholds (all lower-is-better).
type VitalsBudget struct {
	LCP  *float64 `yaml:"lcp" json:"lcp,omitempty"`
	CLS  *float64 `yaml:"cls" json:"cls,omitempty"`
	FCP  *float64 `yaml:"fcp" json:"fcp,omitempty"`
	TTFB *float64 `yaml:"ttfb" json:"ttfb,omitempty"`
	INP  *float64 `yaml:"inp" json:"inp,omitempty"`
}

// AuditBudget holds raw minimum page-audit category scores (0-100,
// higher-is-better).
type AuditBudget struct {
	Performance   *float64 `yaml:"performance" json:"performance,omitempty"`
	Accessibility *float64 `yaml:"accessibility" json:"accessibility,omitempty"`
	BestPractices *float64 `yaml:"bestPractices" json:"bestPractices,omitempty"`
	SEO           *float64 `yaml:"seo" json:"seo,omitempty"`
}

// Tier is one layer of the two-tier budget.
type Tier struct {
	Subjects         map[string]SubjectBudget `yaml:"subjects" json:"subjects,omitempty"`
	MinFPS           *float64                 `yaml:"minFps" json:"minFps,omitempty"`
	MaxHeapGrowthPct *float64                 `yaml:"maxHeapGrowthPct" json:"maxHeapGrowthPct,omitempty"`
	Vitals           VitalsBudget             `yaml:"vitals" json:"vitals"`
	Audit            AuditBudget              `yaml:"audit" json:"audit"`
}

// Spec is the user-declared two-tier budget. The override tier applies only
// when the run executes in the override environment; outside it the tier is
// ignored entirely.
type Spec struct {
	Base     Tier  `yaml:"base" json:"base"`
	Override *Tier `yaml:"override" json:"override,omitempty"`
}

// ResolvedSubject is one subject's fully resolved boundaries.
type ResolvedSubject struct {
	MaxDuration float64 `json:"maxDuration"`
	MaxRenders  float64 `json:"maxRenders"`
}

// ResolvedVitals carries the flattened web-vitals thresholds.
type ResolvedVitals struct {
	LCP  float64 `json:"lcp"`
	CLS  float64 `json:"cls"`
	FCP  float64 `json:"fcp"`
	TTFB float64 `json:"ttfb"`
	INP  float64 `json:"inp"`
}

// ResolvedAudit carries the flattened audit score minimums.
type ResolvedAudit struct {
	Performance   float64 `json:"performance"`
	Accessibility float64 `json:"accessibility"`
	BestPractices float64 `json:"bestPractices"`
	SEO           float64 `json:"seo"`
}

// Resolved is the spec flattened to one numeric boundary per metric.
// A value of 0 disables validation for that metric.
type Resolved struct {
	Subjects         map[string]ResolvedSubject `json:"subjects,omitempty"`
	MinFPS           float64                    `json:"minFps"`
	MaxHeapGrowthPct float64                    `json:"maxHeapGrowthPct"`
	Vitals           ResolvedVitals             `json:"vitals"`
	Audit            ResolvedAudit              `json:"audit"`
}

// Resolve merges the two-tier spec into concrete boundaries.
//
// In the override environment, override values replace base values key by
// key; a metric absent from the override tier keeps its base value. A
// subject present only in the override tier, with no base entry, is dropped:
// base is mandatory per subject.
func Resolve(spec Spec, overrideActive bool) Resolved {
	var override *Tier
	if overrideActive {
		override = spec.Override
	}

	r := Resolved{
		MinFPS:           merge(spec.Base.MinFPS, tierMinFPS(override)),
		MaxHeapGrowthPct: merge(spec.Base.MaxHeapGrowthPct, tierMaxHeap(override)),
	}

	var ov VitalsBudget
	var oa AuditBudget
	if override != nil {
		ov = override.Vitals
		oa = override.Audit
	}
	r.Vitals = ResolvedVitals{
		LCP:  merge(spec.Base.Vitals.LCP, ov.LCP),
		CLS:  merge(spec.Base.Vitals.CLS, ov.CLS),
		FCP:  merge(spec.Base.Vitals.FCP, ov.FCP),
		TTFB: merge(spec.Base.Vitals.TTFB, ov.TTFB),
		INP:  merge(spec.Base.Vitals.INP, ov.INP),
	}
	r.Audit = ResolvedAudit{
		Performance:   merge(spec.Base.Audit.Performance, oa.Performance),
		Accessibility: merge(spec.Base.Audit.Accessibility, oa.Accessibility),
		BestPractices: merge(spec.Base.Audit.BestPractices, oa.BestPractices),
		SEO:           merge(spec.Base.Audit.SEO, oa.SEO),
	}

	r.Subjects = resolveSubjects(spec.Base.Subjects, override)
	return r
}

// resolveSubjects walks the union of subject keys from both tiers; keys
// without a base entry drop out.
func resolveSubjects(base map[string]SubjectBudget, override *Tier) map[string]ResolvedSubject {
	if len(base) == 0 {
		return nil
	}

	keys := map[string]struct{}{}
	for k := range base {
		keys[k] = struct{}{}
	}
	if override != nil {
		for k := range override.Subjects {
			keys[k] = struct{}{}
		}
	}

	out := make(map[string]ResolvedSubject, len(keys))
	for k := range keys {
		b, ok := base[k]
		if !ok {
			continue
		}
		resolved := ResolvedSubject{
			MaxDuration: deref(b.MaxDuration),
			MaxRenders:  deref(b.MaxRenders),
		}
		if override != nil {
			if o, ok := override.Subjects[k]; ok {
				resolved.MaxDuration = merge(b.MaxDuration, o.MaxDuration)
				resolved.MaxRenders = merge(b.MaxRenders, o.MaxRenders)
			}
		}
		out[k] = resolved
	}
	return out
}

// Subject returns the resolved boundaries for name, falling back to the
// wildcard entry. When neither exists the error names the missing subject
// and lists what is available.
func (r Resolved) Subject(name string) (ResolvedSubject, error) {
	if s, ok := r.Subjects[name]; ok {
		return s, nil
	}
	if s, ok := r.Subjects[Wildcard]; ok {
		return s, nil
	}

	keys := make([]string, 0, len(r.Subjects))
	for k := range r.Subjects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return ResolvedSubject{}, fmt.Errorf(
		"no threshold configured for subject %q and no %q fallback (available: %s)",
		name, Wildcard, strings.Join(keys, ", "))
}

// HasSubjects reports whether any per-subject thresholds are configured.
func (r Resolved) HasSubjects() bool { return len(r.Subjects) > 0 }

func tierMinFPS(t *Tier) *float64 {
	if t == nil {
		return nil
	}
	return t.MinFPS
}

func tierMaxHeap(t *Tier) *float64 {
	if t == nil {
		return nil
	}
	return t.MaxHeapGrowthPct
}

func merge(base, override *float64) float64 {
	if override != nil {
		return *override
	}
	return deref(base)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
