package audit

import (
	"math"
	"testing"

	"github.com/perfgate/perfgate/internal/probe"
)

func TestThrottlingFrom(t *testing.T) {
	nc := &probe.NetworkConditions{LatencyMs: 150, DownloadBytes: 200000}

	got := ThrottlingFrom(nc, 4)

	if got.RTTMs != 150 {
		t.Errorf("RTTMs = %v, want 150", got.RTTMs)
	}
	if math.Abs(got.ThroughputKbps-1600) > 1e-9 {
		t.Errorf("ThroughputKbps = %v, want 1600", got.ThroughputKbps)
	}
	if got.CPUSlowdownMultiplier != 4 {
		t.Errorf("CPUSlowdownMultiplier = %v, want 4", got.CPUSlowdownMultiplier)
	}
}

func TestThrottlingFromDefaults(t *testing.T) {
	got := ThrottlingFrom(nil, 0)
	if got.CPUSlowdownMultiplier != 1 {
		t.Errorf("CPUSlowdownMultiplier = %v, want floor of 1", got.CPUSlowdownMultiplier)
	}
	if got.RTTMs != 0 || got.ThroughputKbps != 0 {
		t.Errorf("nil conditions must yield zero throttling, got %+v", got)
	}
}

func TestParseReport(t *testing.T) {
	report := []byte(`{
		"categories": {
			"performance": {"score": 0.92},
			"accessibility": {"score": null},
			"seo": {"score": 1}
		}
	}`)

	scores, err := ParseReport(report, []string{"performance", "accessibility"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s := scores["performance"]; s == nil || math.Abs(*s-92) > 1e-9 {
		t.Errorf("performance = %v, want 92", s)
	}
	if s, ok := scores["accessibility"]; !ok || s != nil {
		t.Errorf("null score must stay nil, got %v (present=%v)", s, ok)
	}
	// seo was not requested.
	if _, ok := scores["seo"]; ok {
		t.Error("unrequested category must be dropped")
	}
}

func TestParseReportAllCategories(t *testing.T) {
	report := []byte(`{"categories": {"performance": {"score": 0.5}, "seo": {"score": 0.8}}}`)

	scores, err := ParseReport(report, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 2 {
		t.Errorf("scores = %v, want both categories", scores)
	}
}

func TestParseReportMissingCategories(t *testing.T) {
	if _, err := ParseReport([]byte(`{"lighthouseVersion": "11.0"}`), nil); err == nil {
		t.Fatal("report without categories must error")
	}
}
