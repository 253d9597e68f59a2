package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/perfgate/perfgate/internal/audit"
	"github.com/perfgate/perfgate/internal/probe"
	"github.com/perfgate/perfgate/internal/stats"
	"github.com/perfgate/perfgate/internal/threshold"
)

// artifactName is the attachment name reporters file the artifact under.
const artifactName = "performance-report.json"

// artifact is the JSON document attached to the test report. It is a
// self-contained record: resolved boundaries ride along so a reader does
// not need the config that produced the run.
type artifact struct {
	RunID       string `json:"runId"`
	Name        string `json:"name"`
	Environment string `json:"environment"`

	Iterations      int      `json:"iterations"`
	Warmup          bool     `json:"warmup"`
	CPUThrottleRate float64  `json:"cpuThrottleRate,omitempty"`
	NetworkLatency  *float64 `json:"networkLatencyMs,omitempty"`
	TrackFPS        bool     `json:"trackFps"`
	TrackHeap       bool     `json:"trackHeap"`
	TrackVitals     bool     `json:"trackVitals"`

	Metrics     *stats.Metrics               `json:"metrics"`
	Vitals      *probe.WebVitals             `json:"vitals,omitempty"`
	AuditScores audit.Scores                 `json:"auditScores,omitempty"`
	Probes      map[probe.Kind]*probe.Result `json:"probes,omitempty"`

	Thresholds threshold.Resolved `json:"resolvedThresholds"`
	Buffers    threshold.Buffers  `json:"resolvedBuffers"`

	Assertions []AssertionResult `json:"assertions"`
	Passed     bool              `json:"passed"`
}

func (r *Runner) buildArtifact(report *Report) ([]byte, error) {
	doc := artifact{
		RunID:           report.RunID,
		Name:            report.Name,
		Environment:     report.Environment,
		Iterations:      r.opts.Iterations,
		Warmup:          r.opts.Warmup,
		CPUThrottleRate: r.opts.CPUThrottleRate,
		TrackFPS:        r.opts.TrackFPS,
		TrackHeap:       r.opts.TrackHeap,
		TrackVitals:     r.opts.TrackVitals,
		Metrics:         report.Metrics,
		Vitals:          report.Vitals,
		AuditScores:     report.AuditScores,
		Probes:          report.Probes,
		Thresholds:      r.resolved,
		Buffers:         r.opts.Buffers,
		Assertions:      report.Assertions,
		Passed:          len(failedOf(report.Assertions)) == 0,
	}
	if r.opts.Network != nil {
		lat := r.opts.Network.LatencyMs
		doc.NetworkLatency = &lat
	}
	return json.MarshalIndent(doc, "", "  ")
}

func failedOf(results []AssertionResult) []AssertionResult {
	var failed []AssertionResult
	for _, res := range results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}

func writeArtifact(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating artifact directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
