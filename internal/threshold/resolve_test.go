package threshold

import (
	"strings"
	"testing"
)

func fptr(v float64) *float64 { return &v }

func baseSpec() Spec {
	return Spec{
		Base: Tier{
			Subjects: map[string]SubjectBudget{
				Wildcard: {MaxDuration: fptr(100), MaxRenders: fptr(10)},
				"list":   {MaxDuration: fptr(50), MaxRenders: fptr(5)},
			},
			MinFPS:           fptr(30),
			MaxHeapGrowthPct: fptr(20),
			Vitals:           VitalsBudget{LCP: fptr(2500)},
			Audit:            AuditBudget{Performance: fptr(90)},
		},
		Override: &Tier{
			Subjects: map[string]SubjectBudget{
				"list": {MaxDuration: fptr(80)},
			},
			MinFPS: fptr(25),
			Vitals: VitalsBudget{LCP: fptr(4000)},
		},
	}
}

func TestResolveBaseOnly(t *testing.T) {
	r := Resolve(baseSpec(), false)

	list := r.Subjects["list"]
	if list.MaxDuration != 50 || list.MaxRenders != 5 {
		t.Errorf("list = %+v, want base values", list)
	}
	if r.MinFPS != 30 {
		t.Errorf("MinFPS = %v, want 30", r.MinFPS)
	}
	if r.Vitals.LCP != 2500 {
		t.Errorf("Vitals.LCP = %v, want 2500", r.Vitals.LCP)
	}
	if r.Audit.Performance != 90 {
		t.Errorf("Audit.Performance = %v, want 90", r.Audit.Performance)
	}
}

func TestResolveOverrideActive(t *testing.T) {
	r := Resolve(baseSpec(), true)

	list := r.Subjects["list"]
	if list.MaxDuration != 80 {
		t.Errorf("list.MaxDuration = %v, want overridden 80", list.MaxDuration)
	}
	// Keys absent from the override keep their base value.
	if list.MaxRenders != 5 {
		t.Errorf("list.MaxRenders = %v, want base 5", list.MaxRenders)
	}
	if r.MinFPS != 25 {
		t.Errorf("MinFPS = %v, want overridden 25", r.MinFPS)
	}
	if r.MaxHeapGrowthPct != 20 {
		t.Errorf("MaxHeapGrowthPct = %v, want base 20", r.MaxHeapGrowthPct)
	}
	if r.Vitals.LCP != 4000 {
		t.Errorf("Vitals.LCP = %v, want overridden 4000", r.Vitals.LCP)
	}
}

func TestResolveOverrideOnlySubjectDropped(t *testing.T) {
	spec := Spec{
		Base: Tier{
			Subjects: map[string]SubjectBudget{
				"list": {MaxDuration: fptr(50)},
			},
		},
		Override: &Tier{
			Subjects: map[string]SubjectBudget{
				"sidebar": {MaxDuration: fptr(70)},
			},
		},
	}

	r := Resolve(spec, true)
	if _, ok := r.Subjects["sidebar"]; ok {
		t.Error("subject without a base entry must be dropped")
	}
	if _, ok := r.Subjects["list"]; !ok {
		t.Error("base subject must survive")
	}
}

func TestResolveIgnoresOverrideOutsideItsEnvironment(t *testing.T) {
	r := Resolve(baseSpec(), false)
	if r.Subjects["list"].MaxDuration != 50 {
		t.Errorf("override tier applied outside its environment")
	}
}

func TestSubjectWildcardFallback(t *testing.T) {
	r := Resolve(baseSpec(), false)

	s, err := r.Subject("unlisted")
	if err != nil {
		t.Fatalf("expected wildcard fallback, got error: %v", err)
	}
	if s.MaxDuration != 100 {
		t.Errorf("fallback MaxDuration = %v, want wildcard 100", s.MaxDuration)
	}
}

func TestSubjectMissingWithoutWildcard(t *testing.T) {
	spec := Spec{
		Base: Tier{
			Subjects: map[string]SubjectBudget{
				"list": {MaxDuration: fptr(50)},
			},
		},
	}
	r := Resolve(spec, false)

	_, err := r.Subject("sidebar")
	if err == nil {
		t.Fatal("expected an error for an unbudgeted subject")
	}
	if !strings.Contains(err.Error(), `"sidebar"`) {
		t.Errorf("error %q does not name the subject", err)
	}
	if !strings.Contains(err.Error(), "list") {
		t.Errorf("error %q does not list the available keys", err)
	}
}

func TestHasSubjects(t *testing.T) {
	if (Resolved{}).HasSubjects() {
		t.Error("empty resolved reported subjects")
	}
	if !Resolve(baseSpec(), false).HasSubjects() {
		t.Error("expected subjects")
	}
}
