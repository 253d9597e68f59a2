package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/perfgate/perfgate/internal/audit"
	"github.com/perfgate/perfgate/internal/browser"
	"github.com/perfgate/perfgate/internal/browser/browsertest"
	"github.com/perfgate/perfgate/internal/probe"
	"github.com/perfgate/perfgate/internal/threshold"
)

// testPage simulates an instrumented application: each workload run
// "renders" and the store reflects the durations scripted per pass.
type testPage struct {
	browsertest.FakePage

	mu        sync.Mutex
	durations []float64
	pass      int
}

func newTestPage(durations ...float64) *testPage {
	p := &testPage{durations: durations}
	p.EvalFunc = func(js string) (gson.JSON, error) {
		if !strings.Contains(js, StoreGlobal) {
			return gson.New(nil), nil
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		idx := p.pass - 1
		if idx < 0 {
			return gson.New("null"), nil
		}
		if idx >= len(p.durations) {
			idx = len(p.durations) - 1
		}
		d := p.durations[idx]
		snap := fmt.Sprintf(
			`{"sampleCount":2,"totalDuration":%v,"perSubjectBreakdown":{"list":{"duration":%v,"renders":2}}}`,
			d, d)
		return gson.New(snap), nil
	}
	return p
}

// workload advances the page to its next scripted pass.
func (p *testPage) workload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pass++
	return nil
}

func wildcardSpec(maxDuration float64) threshold.Spec {
	return threshold.Spec{
		Base: threshold.Tier{
			Subjects: map[string]threshold.SubjectBudget{
				threshold.Wildcard: {MaxDuration: &maxDuration},
			},
		},
	}
}

func baseOptions(spec threshold.Spec) Options {
	return Options{
		Name:       "checkout",
		Iterations: 3,
		Warmup:     true,
		Thresholds: spec,
		Buffers:    threshold.DefaultBuffers(),
	}
}

func TestRunnerPassesUnderBudget(t *testing.T) {
	// Warmup pass is slow, measured passes are fast; with the warmup
	// discarded the mean stays under the effective boundary.
	page := newTestPage(500, 100, 102)
	opts := baseOptions(wildcardSpec(150))

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.True(t, report.Passed)
	assert.Equal(t, PhaseDone, r.Phase())
	require.NotNil(t, report.Metrics)
	assert.True(t, report.Metrics.WarmupDiscarded)
	assert.Equal(t, 2, report.Metrics.Effective)
	assert.InDelta(t, 101, report.Metrics.MeanDuration, 1e-9)
	assert.NotEmpty(t, report.Assertions)
	assert.NotEmpty(t, report.RunID)

	// The page is reset between iterations, not after the last one.
	assert.Equal(t, 2, page.BlankNavigations())
}

func TestRunnerFailsOverBudget(t *testing.T) {
	page := newTestPage(500, 200, 210)
	opts := baseOptions(wildcardSpec(150))

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxDuration")
	require.NotNil(t, report)
	assert.False(t, report.Passed)

	failed := 0
	for _, a := range report.Assertions {
		if !a.Passed {
			failed++
		}
	}
	assert.Greater(t, failed, 0)
}

func TestRunnerWorkloadErrorTakesPrecedence(t *testing.T) {
	page := newTestPage(500, 200, 210)
	opts := baseOptions(wildcardSpec(1)) // assertions would also fail

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	boom := errors.New("click target not found")
	calls := 0
	report, err := r.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 2 {
			return boom
		}
		return page.workload(ctx)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "iteration")
	assert.False(t, report.Passed)
}

func TestRunnerWorkloadPanicBecomesError(t *testing.T) {
	page := newTestPage(100)
	opts := baseOptions(wildcardSpec(500))
	opts.Iterations = 1
	opts.Warmup = false

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), func(context.Context) error {
		panic("selector exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.False(t, report.Passed)
}

func TestRunnerCleansUpProbes(t *testing.T) {
	page := newTestPage(500, 100, 102)
	opts := baseOptions(wildcardSpec(150))
	opts.CPUThrottleRate = 4
	opts.Network = &probe.NetworkConditions{LatencyMs: 100}

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), page.workload)
	require.NoError(t, err)

	sessions := page.Sessions()
	require.Len(t, sessions, 2) // cpu + network
	for _, s := range sessions {
		assert.Equal(t, 1, s.Detached(), "probe session must be released exactly once")
	}
}

func TestRunnerCleansUpAfterWorkloadFailure(t *testing.T) {
	page := newTestPage(100)
	opts := baseOptions(wildcardSpec(500))
	opts.Iterations = 1
	opts.Warmup = false
	opts.CPUThrottleRate = 4

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)

	for _, s := range page.Sessions() {
		assert.Equal(t, 1, s.Detached())
	}
}

func TestRunnerTearsDownFrameSamplerWhenHeapStartFails(t *testing.T) {
	// The frame sampler starts first and begins tracing; the heap
	// sampler's baseline snapshot then fails. The aborted iteration must
	// still end the tracing, release the session and clear the
	// coordination entry.
	page := newTestPage(100)
	var frameSess *browsertest.FakeSession
	page.NewSessionFunc = func() (browser.Session, error) {
		sess := browsertest.NewFakeSession()
		if frameSess == nil {
			frameSess = sess
			sess.Handle = func(method string, params interface{}) ([]byte, error) {
				if method == "Tracing.end" {
					sess.Emit("Tracing.tracingComplete", []byte(`{}`))
				}
				return []byte("{}"), nil
			}
			return sess, nil
		}
		sess.Handle = func(method string, params interface{}) ([]byte, error) {
			if method == "Runtime.getHeapUsage" {
				return nil, errors.New("heap usage query failed")
			}
			return []byte("{}"), nil
		}
		return sess, nil
	}

	opts := baseOptions(wildcardSpec(150))
	opts.Iterations = 1
	opts.Warmup = false
	opts.TrackFPS = true
	opts.TrackHeap = true

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), page.workload)
	require.Error(t, err)

	require.NotNil(t, frameSess)
	assert.Equal(t, 1, frameSess.CallCount("Tracing.end"),
		"aborted iteration must end the tracing it started")
	assert.Equal(t, 1, frameSess.Detached())
	assert.Empty(t, r.Coord().Active())
}

func TestRunnerSingleIterationWarmup(t *testing.T) {
	page := newTestPage(500, 100)
	opts := baseOptions(wildcardSpec(150))
	opts.Iterations = 1
	opts.Warmup = true

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.NoError(t, err)

	// The warmup cycle is separate: recorded for context, excluded from
	// the measured metrics.
	require.NotNil(t, report.WarmupResult)
	assert.InDelta(t, 500, report.WarmupResult.Duration, 1e-9)
	assert.Equal(t, 1, report.Metrics.Effective)
	assert.False(t, report.Metrics.WarmupDiscarded)
	assert.InDelta(t, 100, report.Metrics.MeanDuration, 1e-9)
	assert.True(t, report.Passed)

	// Blank navigation separates the warmup cycle from the measured run.
	assert.Equal(t, 1, page.BlankNavigations())
}

func TestRunnerPerSubjectAssertion(t *testing.T) {
	page := newTestPage(100, 100)
	max := 150.0
	listMax := 50.0
	spec := threshold.Spec{
		Base: threshold.Tier{
			Subjects: map[string]threshold.SubjectBudget{
				threshold.Wildcard: {MaxDuration: &max},
				"list":             {MaxDuration: &listMax},
			},
		},
	}
	opts := baseOptions(spec)
	opts.Warmup = false
	opts.Iterations = 2

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list")

	var listAssertion *AssertionResult
	for i := range report.Assertions {
		if report.Assertions[i].Subject == "list" && report.Assertions[i].Metric == "maxDuration" {
			listAssertion = &report.Assertions[i]
		}
	}
	require.NotNil(t, listAssertion)
	assert.False(t, listAssertion.Passed)
	assert.InDelta(t, 55, listAssertion.Effective, 1e-9) // 50 + 10% buffer
}

func TestRunnerNoStoreThresholdsSkipsStore(t *testing.T) {
	// Audit-style test: no subject thresholds, the page never mounts a
	// store, and the run still completes on wall-clock timing.
	page := &browsertest.FakePage{}
	opts := Options{
		Name:       "audit-only",
		Iterations: 1,
		Buffers:    threshold.DefaultBuffers(),
	}

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, 1, report.Metrics.Effective)
}

// stubAuditor scripts audit outcomes.
type stubAuditor struct {
	scores audit.Scores
	err    error
	calls  int
}

func (a *stubAuditor) Audit(ctx context.Context, req audit.Request) (audit.Scores, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.scores, nil
}

func TestRunnerAuditAssertions(t *testing.T) {
	page := newTestPage(100, 100)
	perf := 70.0
	minPerf := 90.0
	spec := wildcardSpec(150)
	spec.Base.Audit.Performance = &minPerf

	opts := baseOptions(spec)
	opts.Warmup = false
	opts.Iterations = 2
	opts.Audit = &AuditOptions{
		Auditor:    &stubAuditor{scores: audit.Scores{"performance": &perf}},
		Categories: []string{"performance"},
		FormFactor: "mobile",
	}

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit.performance")
	require.NotNil(t, report.AuditScores)
	assert.InDelta(t, 70, *report.AuditScores["performance"], 1e-9)
}

func TestRunnerAuditWarmupPass(t *testing.T) {
	page := newTestPage(100, 100)
	perf := 95.0
	auditor := &stubAuditor{scores: audit.Scores{"performance": &perf}}

	opts := baseOptions(wildcardSpec(150))
	opts.Warmup = false
	opts.Iterations = 2
	opts.Audit = &AuditOptions{Auditor: auditor, Warmup: true}

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), page.workload)
	require.NoError(t, err)
	assert.Equal(t, 2, auditor.calls, "warmup pass plus scored pass")
}

func TestRunnerAuditFailureOutranksAssertions(t *testing.T) {
	page := newTestPage(500, 500)
	auditErr := errors.New("audit binary not found")

	opts := baseOptions(wildcardSpec(1)) // assertions would fail too
	opts.Warmup = false
	opts.Iterations = 2
	opts.Audit = &AuditOptions{Auditor: &stubAuditor{err: auditErr}}

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), page.workload)
	require.Error(t, err)
	assert.ErrorIs(t, err, auditErr)
}

func TestRunnerArtifact(t *testing.T) {
	page := newTestPage(500, 100, 102)
	opts := baseOptions(wildcardSpec(150))
	opts.Environment = "local"

	var attachedName string
	var attached []byte
	opts.Attach = func(name string, data []byte) error {
		attachedName = name
		attached = data
		return nil
	}
	artifactPath := filepath.Join(t.TempDir(), "report.json")
	opts.ArtifactPath = artifactPath

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.NoError(t, err)

	assert.Equal(t, "performance-report.json", attachedName)
	require.NotEmpty(t, attached)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(attached, &doc))
	assert.Equal(t, report.RunID, doc["runId"])
	assert.Equal(t, "checkout", doc["name"])
	assert.Equal(t, "local", doc["environment"])
	assert.Equal(t, true, doc["passed"])
	assert.Contains(t, doc, "metrics")
	assert.Contains(t, doc, "resolvedThresholds")
	assert.Contains(t, doc, "assertions")

	written, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	assert.JSONEq(t, string(attached), string(written))
}

func TestRunnerAttachFailureIsNotFatal(t *testing.T) {
	page := newTestPage(500, 100, 102)
	opts := baseOptions(wildcardSpec(150))
	opts.Attach = func(string, []byte) error { return errors.New("reporter down") }

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), page.workload)
	assert.NoError(t, err)
}

func TestRunnerRejectsReuse(t *testing.T) {
	page := newTestPage(100)
	opts := baseOptions(wildcardSpec(500))
	opts.Iterations = 1
	opts.Warmup = false

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), page.workload)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), page.workload)
	require.Error(t, err)
}

func TestNewRejectsBadOptions(t *testing.T) {
	page := &browsertest.FakePage{}

	_, err := New(page, probe.NewDefaultRegistry(nil), Options{Iterations: 0}, nil)
	require.Error(t, err)

	bad := Options{Iterations: 1, Buffers: threshold.Buffers{Duration: 200}}
	_, err = New(page, probe.NewDefaultRegistry(nil), bad, nil)
	require.Error(t, err)
}

func TestRunnerVitals(t *testing.T) {
	page := newTestPage(100, 100)
	inner := page.EvalFunc
	page.EvalFunc = func(js string) (gson.JSON, error) {
		if strings.Contains(js, probe.VitalsGlobal) && strings.Contains(js, "JSON.stringify") {
			return gson.New(`{"lcp":1200,"cls":0.02,"fcp":null,"ttfb":null,"inp":null}`), nil
		}
		return inner(js)
	}

	lcpMax := 2500.0
	spec := wildcardSpec(150)
	spec.Base.Vitals.LCP = &lcpMax

	opts := baseOptions(spec)
	opts.Warmup = false
	opts.Iterations = 2
	opts.TrackVitals = true

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.NoError(t, err)

	require.NotNil(t, report.Vitals)
	assert.InDelta(t, 1200, *report.Vitals.LCP, 1e-9)
	assert.NotEmpty(t, page.InitScripts(), "vitals observer must be injected")

	found := false
	for _, a := range report.Assertions {
		if a.Metric == "vitals.lcp" {
			found = true
			assert.True(t, a.Passed)
		}
	}
	assert.True(t, found, "lcp assertion missing")
}

func TestRunnerTraceExport(t *testing.T) {
	page := newTestPage(100, 100)
	page.NewSessionFunc = func() (browser.Session, error) {
		s := browsertest.NewFakeSession()
		s.Handle = func(method string, params interface{}) ([]byte, error) {
			if method == "Tracing.end" {
				s.Emit("Tracing.tracingComplete", []byte(`{}`))
			}
			return []byte("{}"), nil
		}
		return s, nil
	}

	tracePath := filepath.Join(t.TempDir(), "trace.json")
	opts := baseOptions(wildcardSpec(150))
	opts.Warmup = false
	opts.Iterations = 2
	opts.Trace = true
	opts.TraceExportPath = tracePath

	r, err := New(page, probe.NewDefaultRegistry(nil), opts, nil)
	require.NoError(t, err)

	report, err := r.Run(context.Background(), page.workload)
	require.NoError(t, err)

	require.Contains(t, report.Probes, probe.KindTraceCapture)
	assert.Equal(t, tracePath, report.Probes[probe.KindTraceCapture].Trace.ExportPath)

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "traceEvents")
}
