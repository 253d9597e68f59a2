// Package audit is the boundary to the whole-page audit tool. The engine
// only knows the request shape it hands over and the per-category scores
// it gets back; how the tool computes them is its own business.
package audit

import (
	"context"

	"github.com/perfgate/perfgate/internal/probe"
)

// Throttling is the audit tool's throttling configuration, derived from
// the same network preset table the network-throttle probe uses.
type Throttling struct {
	RTTMs                 float64 `json:"rttMs"`
	ThroughputKbps        float64 `json:"throughputKbps"`
	CPUSlowdownMultiplier float64 `json:"cpuSlowdownMultiplier"`
}

// ThrottlingFrom converts probe-level network conditions and a CPU rate
// into the audit tool's units (throughput in kilobits per second).
func ThrottlingFrom(nc *probe.NetworkConditions, cpuRate float64) Throttling {
	t := Throttling{CPUSlowdownMultiplier: cpuRate}
	if t.CPUSlowdownMultiplier < 1 {
		t.CPUSlowdownMultiplier = 1
	}
	if nc != nil {
		t.RTTMs = nc.LatencyMs
		t.ThroughputKbps = nc.DownloadBytes * 8 / 1000
	}
	return t
}

// Request is one audit invocation.
type Request struct {
	URL        string     `json:"url"`
	Categories []string   `json:"categories"`
	FormFactor string     `json:"formFactor"`
	SkipAudits []string   `json:"skipAudits,omitempty"`
	Throttling Throttling `json:"throttling"`
}

// Scores maps category id to its 0-100 score; nil means the tool could
// not score the category.
type Scores map[string]*float64

// Auditor runs one page audit.
type Auditor interface {
	Audit(ctx context.Context, req Request) (Scores, error)
}
