// Package runner owns one performance test invocation end to end: probe
// setup, optional warmup, the measured iterations, the optional page
// audit, aggregation, assertion, artifact attachment, and guaranteed
// cleanup.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/perfgate/perfgate/internal/audit"
	"github.com/perfgate/perfgate/internal/browser"
	"github.com/perfgate/perfgate/internal/probe"
	"github.com/perfgate/perfgate/internal/stats"
	"github.com/perfgate/perfgate/internal/threshold"
)

// Phase names one step of the run lifecycle. Phases advance strictly
// forward; a runner instance handles exactly one test.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSetup     Phase = "setup"
	PhaseWarmup    Phase = "warmup"
	PhaseIterating Phase = "iterating"
	PhaseAuditing  Phase = "auditing"
	PhaseAsserting Phase = "asserting"
	PhaseAttaching Phase = "attaching"
	PhaseCleanup   Phase = "cleanup"
	PhaseDone      Phase = "done"
)

// Workload is the user-supplied code under measurement. Its duration and
// side effects are opaque to the runner.
type Workload func(ctx context.Context) error

// Options is the resolved, immutable configuration for one run. It is
// passed alongside the runner's collaborators, never merged into any
// ambient context.
type Options struct {
	Name        string
	Environment string

	// OverrideTierActive selects the budget's override tier.
	OverrideTierActive bool

	Iterations int
	Warmup     bool

	CPUThrottleRate float64
	Network         *probe.NetworkConditions

	TrackFPS    bool
	TrackHeap   bool
	TrackVitals bool

	Trace           bool
	TraceCategories []string
	TraceExportPath string

	Thresholds threshold.Spec
	Buffers    threshold.Buffers

	// Audit, when set, runs the page audit after the iterations.
	Audit *AuditOptions

	// Attach publishes the run artifact to the surrounding test report.
	// Attachment failures are logged, never fatal.
	Attach func(name string, data []byte) error

	// ArtifactPath additionally writes the artifact to disk when set.
	ArtifactPath string
}

// AuditOptions configures the post-iterations page audit.
type AuditOptions struct {
	Auditor    audit.Auditor
	Categories []string
	FormFactor string
	SkipAudits []string
	Warmup     bool
}

// Report is the complete outcome of one run.
type Report struct {
	RunID       string        `json:"runId"`
	Name        string        `json:"name"`
	Environment string        `json:"environment"`
	StartTime   time.Time     `json:"startTime"`
	EndTime     time.Time     `json:"endTime"`
	Duration    time.Duration `json:"duration"`

	Metrics *stats.Metrics `json:"metrics"`

	// WarmupResult is the single-iteration-mode warmup pass, kept for
	// context only; it never feeds pass/fail.
	WarmupResult *stats.IterationResult `json:"warmupResult,omitempty"`

	Vitals      *probe.WebVitals             `json:"vitals,omitempty"`
	AuditScores audit.Scores                 `json:"auditScores,omitempty"`
	Probes      map[probe.Kind]*probe.Result `json:"probes,omitempty"`

	Assertions []AssertionResult `json:"assertions,omitempty"`
	Passed     bool              `json:"passed"`

	Artifact []byte `json:"-"`
}

// Runner executes one test invocation. Construct a fresh Runner per test.
type Runner struct {
	page     browser.Page
	registry *probe.Registry
	coord    *probe.CoordTable
	opts     Options
	resolved threshold.Resolved
	logger   *slog.Logger

	phase   Phase
	handles *probe.HandleSet
	vitals  *probe.VitalsObserver
}

// New validates opts and builds a runner. Configuration errors surface
// here, before any browser interaction.
func New(page browser.Page, registry *probe.Registry, opts Options, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Iterations < 1 {
		return nil, fmt.Errorf("iterations must be at least 1, got %d", opts.Iterations)
	}
	if err := opts.Buffers.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		page:     page,
		registry: registry,
		coord:    probe.NewCoordTable(logger),
		opts:     opts,
		resolved: threshold.Resolve(opts.Thresholds, opts.OverrideTierActive),
		logger:   logger,
		phase:    PhaseIdle,
		handles:  probe.NewHandleSet(),
	}, nil
}

// Phase returns the runner's current lifecycle phase.
func (r *Runner) Phase() Phase { return r.phase }

// Coord exposes the coordination table so the test body can synchronize
// every active probe's measurement window between awaited steps.
func (r *Runner) Coord() *probe.CoordTable { return r.coord }

// Resolved returns the flattened threshold boundaries for this run.
func (r *Runner) Resolved() threshold.Resolved { return r.resolved }

// Run executes the full lifecycle. Cleanup is guaranteed regardless of
// which stage fails; exactly one error surfaces, workload failures taking
// precedence over assertion failures.
func (r *Runner) Run(ctx context.Context, workload Workload) (report *Report, err error) {
	if r.phase != PhaseIdle {
		return nil, fmt.Errorf("runner already used; one runner handles one test")
	}

	report = &Report{
		RunID:       uuid.NewString(),
		Name:        r.opts.Name,
		Environment: r.opts.Environment,
		StartTime:   time.Now(),
	}

	var workloadErr, auditErr, assertErr error

	defer func() {
		r.phase = PhaseCleanup
		r.cleanup(ctx, report)
		r.phase = PhaseDone
		report.EndTime = time.Now()
		report.Duration = report.EndTime.Sub(report.StartTime)

		switch {
		case workloadErr != nil:
			err = workloadErr
		case err != nil:
			// Setup or capture failure; already the surfaced error.
		case auditErr != nil:
			err = auditErr
		case assertErr != nil:
			err = assertErr
		}
		report.Passed = err == nil
	}()

	r.phase = PhaseSetup
	if err = r.setup(ctx); err != nil {
		return report, err
	}

	if r.opts.Warmup && r.opts.Iterations == 1 {
		r.phase = PhaseWarmup
		r.runIsolatedWarmup(ctx, workload, report)
	}

	r.phase = PhaseIterating
	results := make([]stats.IterationResult, 0, r.opts.Iterations)
	for i := 0; i < r.opts.Iterations; i++ {
		iterRes, wlErr, runErr := r.runIteration(ctx, workload)
		if iterRes != nil {
			results = append(results, *iterRes)
		}
		if wlErr != nil {
			workloadErr = fmt.Errorf("workload failed on iteration %d: %w", i+1, wlErr)
			break
		}
		if runErr != nil {
			err = runErr
			return report, err
		}
		if i < r.opts.Iterations-1 {
			r.betweenIterations(ctx)
		}
	}
	report.Metrics = stats.Aggregate(results, r.opts.Warmup && r.opts.Iterations > 1)

	if r.vitals != nil {
		if v, verr := r.vitals.Collect(ctx); verr != nil {
			r.logger.Warn("collecting web vitals failed", "error", verr)
		} else {
			report.Vitals = v
		}
	}

	if r.opts.Audit != nil && workloadErr == nil {
		r.phase = PhaseAuditing
		auditErr = r.runAudit(ctx, report)
	}

	r.phase = PhaseAsserting
	report.Assertions, assertErr = r.assert(report)

	r.phase = PhaseAttaching
	r.attach(report)

	return report, nil
}

// setup starts the run-scoped probes and the vitals observer, all before
// any iteration.
func (r *Runner) setup(ctx context.Context) error {
	cfg := probe.Config{
		CPUThrottleRate: r.opts.CPUThrottleRate,
		Network:         r.opts.Network,
		TraceCategories: r.opts.TraceCategories,
	}

	for _, kind := range []probe.Kind{probe.KindCPUThrottle, probe.KindNetworkThrottle} {
		h, err := r.registry.Start(ctx, kind, r.page, cfg)
		if err != nil {
			return err
		}
		r.handles.Put(h)
	}

	if r.opts.TrackVitals {
		r.vitals = probe.NewVitalsObserver(r.page, r.logger)
		if err := r.vitals.Inject(ctx); err != nil {
			return err
		}
	}

	if r.opts.Trace {
		h, err := r.registry.Start(ctx, probe.KindTraceCapture, r.page, cfg)
		if err != nil {
			return err
		}
		r.handles.Put(h)
	}
	return nil
}

// runIsolatedWarmup executes the single-iteration-mode warmup: a wholly
// separate probe cycle whose failures are logged and swallowed, followed
// by a blank navigation and re-application of the throttles.
func (r *Runner) runIsolatedWarmup(ctx context.Context, workload Workload, report *Report) {
	res, wlErr, runErr := r.runIteration(ctx, workload)
	if wlErr != nil {
		r.logger.Warn("warmup workload failed, proceeding to measured run", "error", wlErr)
	}
	if runErr != nil {
		r.logger.Warn("warmup capture failed, proceeding to measured run", "error", runErr)
	}
	report.WarmupResult = res

	r.betweenIterations(ctx)
}

// runIteration is one probe-start / workload / probe-stop / capture cycle.
//
// wlErr is a workload failure; runErr is an engine-side failure (probe
// start, store capture). Per-iteration probes are stopped even when the
// workload throws, and stopping always precedes the store capture.
func (r *Runner) runIteration(ctx context.Context, workload Workload) (res *stats.IterationResult, wlErr, runErr error) {
	iterHandles := probe.NewHandleSet()
	cfg := probe.Config{}

	// Frame and heap samplers are restarted from scratch each iteration:
	// their sessions may not survive the navigation that separates
	// iterations.
	perIteration := []struct {
		kind    probe.Kind
		enabled bool
	}{
		{probe.KindFrameSampler, r.opts.TrackFPS},
		{probe.KindHeapSampler, r.opts.TrackHeap},
	}
	for _, p := range perIteration {
		if !p.enabled {
			continue
		}
		h, err := r.registry.Start(ctx, p.kind, r.page, cfg)
		if err != nil {
			// A half-started iteration still tears down: probes that did
			// start must not survive the abort with live sessions.
			r.stopIterationProbes(ctx, iterHandles)
			return nil, nil, err
		}
		if h == nil {
			continue
		}
		iterHandles.Put(h)
		if rs, ok := h.(probe.Resettable); ok {
			r.coord.Activate(rs)
		}
	}

	wallStart := time.Now()
	wlErr = runWorkload(ctx, workload)
	wallMs := float64(time.Since(wallStart)) / float64(time.Millisecond)

	// Guaranteed: stop per-iteration probes before anything else, even on
	// workload failure.
	probeResults := r.stopIterationProbes(ctx, iterHandles)

	var snap *StoreSnapshot
	if r.resolved.HasSubjects() {
		var serr error
		snap, serr = captureStore(ctx, r.page, r.phase)
		if serr != nil {
			if wlErr != nil {
				// The workload failure takes precedence; the capture
				// failure is context, not the verdict.
				r.logger.Warn("store capture failed after workload error", "error", serr)
			} else {
				runErr = serr
			}
			snap = &StoreSnapshot{}
		}
	} else {
		// Audit-only and vitals-only tests have no render thresholds and
		// need no store.
		snap = &StoreSnapshot{}
	}

	res = &stats.IterationResult{
		Renders:  snap.SampleCount,
		Subjects: snap.Subjects,
	}
	if snap.SampleCount > 0 {
		res.Duration = snap.TotalDuration
	} else {
		res.Duration = wallMs
	}
	if fr := probeResults[probe.KindFrameSampler]; fr != nil && fr.FrameRate != nil {
		fps := fr.FrameRate.AverageFPS
		res.FPS = &fps
	}
	if hr := probeResults[probe.KindHeapSampler]; hr != nil && hr.Heap != nil {
		pct := hr.Heap.GrowthPct
		res.HeapGrowthPct = &pct
	}
	return res, wlErr, runErr
}

// stopIterationProbes stops every per-iteration handle and clears their
// coordination entries. It is the single teardown path for an iteration,
// shared by the normal cycle and the aborted-start one.
func (r *Runner) stopIterationProbes(ctx context.Context, set *probe.HandleSet) map[probe.Kind]*probe.Result {
	results := r.registry.StopAll(ctx, set)
	r.coord.Deactivate(probe.KindFrameSampler)
	r.coord.Deactivate(probe.KindHeapSampler)
	return results
}

// runWorkload shields the runner from workload panics; a panicking
// workload is a workload failure, not a crashed test process.
func runWorkload(ctx context.Context, workload Workload) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("workload panic: %v", rec)
		}
	}()
	return workload(ctx)
}

// betweenIterations resets the page to a clean slate: blank navigation,
// throttle re-application (navigation silently drops some emulation
// settings), and a fresh vitals window.
func (r *Runner) betweenIterations(ctx context.Context) {
	if err := r.page.GotoBlank(ctx); err != nil {
		r.logger.Warn("navigating to blank page failed", "error", err)
	}

	for _, kind := range []probe.Kind{probe.KindCPUThrottle, probe.KindNetworkThrottle} {
		if h, ok := r.handles.Get(kind).(probe.Reapplier); ok {
			_ = h.Reapply(ctx)
		}
	}

	if r.vitals != nil {
		if err := r.vitals.Reset(ctx); err != nil {
			r.logger.Warn("resetting web vitals failed", "error", err)
		}
	}
}

// runAudit invokes the page-audit collaborator and merges its scores.
func (r *Runner) runAudit(ctx context.Context, report *Report) error {
	a := r.opts.Audit
	req := audit.Request{
		URL:        r.page.URL(),
		Categories: a.Categories,
		FormFactor: a.FormFactor,
		SkipAudits: a.SkipAudits,
		Throttling: audit.ThrottlingFrom(r.opts.Network, r.opts.CPUThrottleRate),
	}

	if a.Warmup {
		if _, err := a.Auditor.Audit(ctx, req); err != nil {
			r.logger.Warn("audit warmup pass failed, proceeding to scored pass", "error", err)
		}
	}

	scores, err := a.Auditor.Audit(ctx, req)
	if err != nil {
		return fmt.Errorf("page audit failed: %w", err)
	}
	report.AuditScores = scores
	return nil
}

// attach builds the artifact and publishes it; attachment problems are
// logged, never fatal, so a broken reporter cannot eat a real verdict.
func (r *Runner) attach(report *Report) {
	data, err := r.buildArtifact(report)
	if err != nil {
		r.logger.Warn("building run artifact failed", "error", err)
		return
	}
	report.Artifact = data

	if r.opts.Attach != nil {
		if err := r.opts.Attach(artifactName, data); err != nil {
			r.logger.Warn("attaching run artifact failed", "error", err)
		}
	}
	if r.opts.ArtifactPath != "" {
		if err := writeArtifact(r.opts.ArtifactPath, data); err != nil {
			r.logger.Warn("writing run artifact failed", "path", r.opts.ArtifactPath, "error", err)
		}
	}
}

// cleanup stops trace capture (exporting if configured) and then every
// remaining probe, concurrently. It runs detached from the caller's
// cancellation so teardown completes even after a timeout.
func (r *Runner) cleanup(ctx context.Context, report *Report) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	results := map[probe.Kind]*probe.Result{}

	if h := r.handles.Remove(probe.KindTraceCapture); h != nil {
		res, err := h.Stop(cctx)
		if err != nil {
			r.logger.Warn("stopping trace capture failed", "error", err)
		} else if res != nil {
			if r.opts.TraceExportPath != "" {
				if th, ok := h.(*probe.TraceCaptureHandle); ok {
					if err := th.Export(r.opts.TraceExportPath); err != nil {
						r.logger.Warn("exporting trace failed", "error", err)
					} else {
						res.Trace.ExportPath = r.opts.TraceExportPath
					}
				}
			}
			results[probe.KindTraceCapture] = res
		}
	}

	for kind, res := range r.registry.StopAll(cctx, r.handles) {
		if res != nil {
			results[kind] = res
		}
	}
	if len(results) > 0 && report != nil {
		report.Probes = results
	}
}
