package config

import (
	"fmt"
	"strings"

	"github.com/perfgate/perfgate/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the full configuration before any browser interaction,
// naming each offending value.
//
// Returns nil if valid, or a ValidationErrors containing all validation
// errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.Iterations < 1 {
		errs.Add("iterations", fmt.Sprintf("must be at least 1, got %d", c.Iterations))
	}
	if c.CPUThrottleRate < 1 {
		errs.Add("cpuThrottleRate", fmt.Sprintf("must be at least 1 (1 = disabled), got %v", c.CPUThrottleRate))
	}

	if c.Network.Preset != "" {
		if _, ok := Preset(c.Network.Preset); !ok {
			errs.Add("network.preset", fmt.Sprintf("unknown preset %q (available: %s)",
				c.Network.Preset, strings.Join(PresetNames(), ", ")))
		}
	}
	if cond := c.Network.Custom; cond != nil {
		if cond.LatencyMs < 0 {
			errs.Add("network.custom.latencyMs", "cannot be negative")
		}
		if cond.DownloadBytes < 0 {
			errs.Add("network.custom.downloadBytesPerSec", "cannot be negative")
		}
		if cond.UploadBytes < 0 {
			errs.Add("network.custom.uploadBytesPerSec", "cannot be negative")
		}
	}

	if c.Buffers != nil {
		if err := c.Buffers.Validate(); err != nil {
			errs.Add("buffers", err.Error())
		}
	}

	validateTier("thresholds.base", &c.Thresholds.Base, errs)
	if c.Thresholds.Override != nil {
		validateTier("thresholds.override", c.Thresholds.Override, errs)
	}

	if c.Audit != nil {
		validateAudit(c.Audit, errs)
	}
	if c.Trace.ExportPath != "" && !c.Trace.Enabled {
		errs.Add("trace.exportPath", "set but trace capture is not enabled")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateTier rejects negative raw thresholds in one budget tier.
func validateTier(prefix string, tier *threshold.Tier, errs *ValidationErrors) {
	for name, s := range tier.Subjects {
		if s.MaxDuration != nil && *s.MaxDuration < 0 {
			errs.Add(fmt.Sprintf("%s.subjects.%s.maxDuration", prefix, name), "cannot be negative")
		}
		if s.MaxRenders != nil && *s.MaxRenders < 0 {
			errs.Add(fmt.Sprintf("%s.subjects.%s.maxRenders", prefix, name), "cannot be negative")
		}
	}

	scalars := []struct {
		name  string
		value *float64
	}{
		{"minFps", tier.MinFPS},
		{"maxHeapGrowthPct", tier.MaxHeapGrowthPct},
		{"vitals.lcp", tier.Vitals.LCP},
		{"vitals.cls", tier.Vitals.CLS},
		{"vitals.fcp", tier.Vitals.FCP},
		{"vitals.ttfb", tier.Vitals.TTFB},
		{"vitals.inp", tier.Vitals.INP},
		{"audit.performance", tier.Audit.Performance},
		{"audit.accessibility", tier.Audit.Accessibility},
		{"audit.bestPractices", tier.Audit.BestPractices},
		{"audit.seo", tier.Audit.SEO},
	}
	for _, s := range scalars {
		if s.value != nil && *s.value < 0 {
			errs.Add(prefix+"."+s.name, "cannot be negative")
		}
	}
}

// validateAudit validates the page-audit sub-config.
func validateAudit(a *AuditConfig, errs *ValidationErrors) {
	if a.Binary == "" {
		errs.Add("audit.binary", "audit runner binary is required when audit is configured")
	}
	switch a.FormFactor {
	case "", "mobile", "desktop":
	default:
		errs.Add("audit.formFactor", fmt.Sprintf("must be 'mobile' or 'desktop', got %q", a.FormFactor))
	}
}
