package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/perfgate/perfgate/internal/config"
	"github.com/perfgate/perfgate/internal/output"
	"github.com/perfgate/perfgate/internal/threshold"
)

func TestPresetsCommandListsProfiles(t *testing.T) {
	var out bytes.Buffer
	presetsCmd.SetOut(&out)

	if err := presetsCmd.RunE(presetsCmd, nil); err != nil {
		t.Fatalf("presets command failed: %v", err)
	}

	listing := out.String()
	for _, name := range []string{"slow-3g", "fast-3g", "slow-4g", "fast-4g", "offline"} {
		if !strings.Contains(listing, name) {
			t.Errorf("listing missing preset %q:\n%s", name, listing)
		}
	}
	if !strings.Contains(listing, "400ms") {
		t.Errorf("listing missing slow-3g latency:\n%s", listing)
	}
}

func TestRunCommandFormatFlag(t *testing.T) {
	f := runCmd.Flags().Lookup("format")
	if f == nil {
		t.Fatal("run command must expose a --format flag")
	}
	if f.DefValue != string(output.FormatText) {
		t.Errorf("default format = %q, want %q", f.DefValue, output.FormatText)
	}
	if _, err := output.ParseFormat(f.DefValue); err != nil {
		t.Errorf("default format must parse: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	maxDur := 100.0
	cfg := &config.TestConfig{
		Name:            "checkout",
		Environment:     "ci",
		Iterations:      5,
		Warmup:          true,
		CPUThrottleRate: 4,
		Network:         config.NetworkConfig{Preset: "fast-3g"},
		TrackFPS:        true,
		Thresholds: threshold.Spec{
			Base: threshold.Tier{
				Subjects: map[string]threshold.SubjectBudget{
					threshold.Wildcard: {MaxDuration: &maxDur},
				},
			},
		},
		Audit: &config.AuditConfig{Binary: "lighthouse", FormFactor: "mobile"},
	}

	opts := optionsFromConfig(cfg, "out.json")

	if !opts.OverrideTierActive {
		t.Error("ci environment must activate the override tier")
	}
	if opts.Network == nil || opts.Network.LatencyMs != 150 {
		t.Errorf("network = %+v, want the fast-3g preset", opts.Network)
	}
	if opts.Buffers != threshold.DefaultBuffers() {
		t.Errorf("nil config buffers must fall back to defaults, got %+v", opts.Buffers)
	}
	if opts.Audit == nil || opts.Audit.FormFactor != "mobile" {
		t.Errorf("audit options = %+v", opts.Audit)
	}
	if opts.ArtifactPath != "out.json" {
		t.Errorf("ArtifactPath = %q", opts.ArtifactPath)
	}

	cfg.Environment = "local"
	if optionsFromConfig(cfg, "").OverrideTierActive {
		t.Error("non-ci environment must not activate the override tier")
	}
}
