// Package config defines the user-facing test configuration: iteration
// counts, throttling, the two-tier threshold budget, buffers, audit and
// trace settings. It owns loading, defaulting and validation; the runner
// consumes only validated values.
package config

import (
	"github.com/perfgate/perfgate/internal/probe"
	"github.com/perfgate/perfgate/internal/threshold"
)

// EnvironmentOverride is the environment tag under which the budget's
// override tier applies.
const EnvironmentOverride = "ci"

// TestConfig is one performance test's full configuration.
type TestConfig struct {
	// Name labels the test in reports and artifacts.
	Name string `yaml:"name"`

	// URL is the page the default workload navigates to.
	URL string `yaml:"url"`

	// Iterations is the number of workload executions (>= 1).
	Iterations int `yaml:"iterations"`

	// Warmup discards the first pass from aggregate statistics. With a
	// single iteration, a separate unmeasured warmup cycle runs first.
	Warmup bool `yaml:"warmup"`

	// Environment selects the threshold tier; "ci" activates the
	// override tier.
	Environment string `yaml:"environment"`

	// CPUThrottleRate slows the main thread by this factor; 1 disables.
	CPUThrottleRate float64 `yaml:"cpuThrottleRate"`

	// Network selects emulated network conditions.
	Network NetworkConfig `yaml:"network"`

	// Thresholds is the two-tier declarative budget.
	Thresholds threshold.Spec `yaml:"thresholds"`

	// Buffers are the per-metric tolerance percentages; nil applies the
	// defaults.
	Buffers *threshold.Buffers `yaml:"buffers"`

	// TrackFPS enables the frame sampler per iteration.
	TrackFPS bool `yaml:"trackFps"`

	// TrackHeap enables the heap sampler per iteration.
	TrackHeap bool `yaml:"trackHeap"`

	// TrackVitals injects the in-page web-vitals observer.
	TrackVitals bool `yaml:"trackVitals"`

	// Trace configures whole-run trace capture.
	Trace TraceConfig `yaml:"trace"`

	// Audit configures the optional post-iterations page audit.
	Audit *AuditConfig `yaml:"audit"`
}

// NetworkConfig names a preset or supplies custom conditions. Custom wins
// when both are set.
type NetworkConfig struct {
	Preset string                   `yaml:"preset"`
	Custom *probe.NetworkConditions `yaml:"custom"`
}

// Conditions resolves the configured conditions, nil when network
// emulation is disabled.
func (n NetworkConfig) Conditions() *probe.NetworkConditions {
	if n.Custom != nil {
		return n.Custom
	}
	if n.Preset == "" {
		return nil
	}
	if c, ok := Preset(n.Preset); ok {
		return &c
	}
	return nil
}

// TraceConfig controls trace capture and export.
type TraceConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ExportPath string   `yaml:"exportPath"`
	Categories []string `yaml:"categories"`
}

// AuditConfig configures the page-audit collaborator.
type AuditConfig struct {
	// Binary is the audit runner executable.
	Binary string `yaml:"binary"`

	// Categories to audit; empty means the runner's default set.
	Categories []string `yaml:"categories"`

	// FormFactor is "mobile" or "desktop".
	FormFactor string `yaml:"formFactor"`

	// SkipAudits lists individual audits to skip.
	SkipAudits []string `yaml:"skipAudits"`

	// Warmup runs one discarded audit pass before the scored one.
	Warmup bool `yaml:"warmup"`
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(c *TestConfig) {
	if c.Iterations == 0 {
		c.Iterations = 1
	}
	if c.CPUThrottleRate == 0 {
		c.CPUThrottleRate = 1
	}
	if c.Buffers == nil {
		b := threshold.DefaultBuffers()
		c.Buffers = &b
	}
	if c.Audit != nil {
		if c.Audit.FormFactor == "" {
			c.Audit.FormFactor = "mobile"
		}
		if len(c.Audit.Categories) == 0 {
			c.Audit.Categories = []string{"performance"}
		}
	}
}
