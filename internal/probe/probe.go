// Package probe implements the pluggable telemetry and environment probes
// a test run attaches to a live page, together with their registry and the
// uniform start/stop/reset handle lifecycle.
//
// Every probe owns one dedicated debug session. Starting a probe against a
// browser that lacks the required protocol capability is not an error: the
// probe reports a nil handle and the run continues without it.
package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/perfgate/perfgate/internal/browser"
)

// Kind names a probe capability in the registry.
type Kind string

const (
	KindCPUThrottle     Kind = "cpu-throttle"
	KindNetworkThrottle Kind = "network-throttle"
	KindFrameSampler    Kind = "frame-sampler"
	KindHeapSampler     Kind = "heap-sampler"
	KindTraceCapture    Kind = "trace-capture"
)

// Config carries the per-run settings each probe reads its slice of.
type Config struct {
	// CPUThrottleRate slows the main thread by this factor. 1 disables
	// CPU throttling entirely.
	CPUThrottleRate float64

	// Network, when set, emulates the given network conditions.
	Network *NetworkConditions

	// TraceCategories selects the timeline categories for trace capture.
	// Empty means the default capture set.
	TraceCategories []string
}

// Probe is one startable capability.
//
// Start opens a dedicated debug session and configures the mechanism. It
// returns (nil, nil) when the probe does not apply (disabled by config, or
// the browser lacks the capability); any other failure is a genuine error
// and must fail the test.
type Probe interface {
	Kind() Kind
	Start(ctx context.Context, page browser.Page, cfg Config) (Handle, error)
}

// Handle is one live probe instance. Stop is idempotent: the first call
// runs the probe's finalizer and returns its metrics, every later call
// returns nil without issuing protocol commands.
type Handle interface {
	Kind() Kind
	Active() bool
	Stop(ctx context.Context) (*Result, error)
}

// Resettable handles can restart their measurement window in place,
// without changing session or active status. A failed reset degrades the
// handle to inactive rather than leaving its window ambiguous.
type Resettable interface {
	Handle
	Reset(ctx context.Context) error
}

// Reapplier handles hold settings the browser silently drops on navigation.
// The runner re-applies them after every navigation; re-applying an
// inactive handle is a no-op.
type Reapplier interface {
	Handle
	Reapply(ctx context.Context) error
}

// Result is the metrics payload a probe yields when stopped.
type Result struct {
	Kind      Kind             `json:"kind"`
	CPU       *CPUResult       `json:"cpu,omitempty"`
	Network   *NetworkResult   `json:"network,omitempty"`
	FrameRate *FrameRateResult `json:"frameRate,omitempty"`
	Heap      *HeapResult      `json:"heap,omitempty"`
	Trace     *TraceResult     `json:"trace,omitempty"`
}

// CPUResult records the throttle factor that was in effect.
type CPUResult struct {
	Rate float64 `json:"rate"`
}

// NetworkResult records the emulated conditions that were in effect.
type NetworkResult struct {
	Conditions NetworkConditions `json:"conditions"`
}

// FrameRateResult is the frame sampler's aggregate.
type FrameRateResult struct {
	AverageFPS     float64 `json:"averageFps"`
	FrameCount     int     `json:"frameCount"`
	DurationMs     float64 `json:"durationMs"`
	FrameTimeP50Ms float64 `json:"frameTimeP50Ms"`
	FrameTimeP95Ms float64 `json:"frameTimeP95Ms"`
	FrameTimeP99Ms float64 `json:"frameTimeP99Ms"`
	EventKind      string  `json:"eventKind"`
}

// HeapResult is the heap sampler's before/after comparison.
type HeapResult struct {
	UsedBefore float64 `json:"usedBefore"`
	UsedAfter  float64 `json:"usedAfter"`
	GrowthByte float64 `json:"growthBytes"`
	GrowthPct  float64 `json:"growthPct"`
}

// TraceResult summarizes a captured trace.
type TraceResult struct {
	EventCount int    `json:"eventCount"`
	ExportPath string `json:"exportPath,omitempty"`
}

// handleCore is the shared state every handle embeds: the owned session,
// the active flag, and the idempotent stop/detach bookkeeping.
type handleCore struct {
	kind   Kind
	sess   browser.Session
	logger *slog.Logger

	mu     sync.Mutex
	active bool
}

func newHandleCore(kind Kind, sess browser.Session, logger *slog.Logger) handleCore {
	if logger == nil {
		logger = slog.Default()
	}
	return handleCore{kind: kind, sess: sess, logger: logger, active: true}
}

func (h *handleCore) Kind() Kind { return h.kind }

func (h *handleCore) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// beginStop flips the handle inactive. Returns false when it already was,
// in which case the caller must not touch the session again.
func (h *handleCore) beginStop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.active {
		return false
	}
	h.active = false
	return true
}

// deactivate marks the handle inactive without the stop protocol; used when
// a mid-life operation fails and the handle's state is no longer trusted.
func (h *handleCore) deactivate() {
	h.mu.Lock()
	h.active = false
	h.mu.Unlock()
}

// detach releases the session, swallowing failures. Teardown must never be
// blocked by a session that is already gone.
func (h *handleCore) detach(ctx context.Context) {
	if h.sess == nil {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.sess.Detach(dctx); err != nil {
		h.logger.Warn("probe session detach failed", "probe", string(h.kind), "error", err)
	}
}
