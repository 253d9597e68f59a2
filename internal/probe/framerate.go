package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/perfgate/perfgate/internal/browser"
)

// Timeline event names carrying frame timing, from most to least precise.
// DrawFrame marks an actual compositor draw; BeginMainThreadFrame marks
// main-thread frame production; BeginFrame fires on every vsync whether or
// not anything was drawn.
const (
	eventDrawFrame            = "DrawFrame"
	eventBeginMainThreadFrame = "BeginMainThreadFrame"
	eventBeginFrame           = "BeginFrame"
)

// frameTraceCategories are the timeline categories that emit frame events.
var frameTraceCategories = []string{
	"disabled-by-default-devtools.timeline.frame",
	"benchmark",
}

// traceCompleteTimeout bounds the wait for the browser's trace-complete
// signal so a misbehaving tracing session cannot hang teardown.
const traceCompleteTimeout = 10 * time.Second

// minTrackedWindow is the tracked duration below which an FPS average is
// too noisy to trust; the sampler warns but still reports.
const minTrackedWindow = 100 * time.Millisecond

// FrameSamplerProbe derives frame-rate statistics from timeline trace
// events streamed over a dedicated session.
type FrameSamplerProbe struct {
	logger *slog.Logger
}

func (p *FrameSamplerProbe) Kind() Kind { return KindFrameSampler }

// Start begins streaming frame events. The handle is resettable: a reset
// discards collected events and the window restarts from the next event.
func (p *FrameSamplerProbe) Start(ctx context.Context, page browser.Page, cfg Config) (Handle, error) {
	sess, err := page.NewSession(ctx)
	if err != nil {
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("frame sampling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}

	h := &FrameSamplerHandle{
		handleCore: newHandleCore(KindFrameSampler, sess, p.logger),
		samples:    map[string][]float64{},
		complete:   make(chan struct{}),
	}
	h.unsubData = sess.Subscribe("Tracing.dataCollected", h.onData)
	h.unsubDone = sess.Subscribe("Tracing.tracingComplete", h.onComplete)

	err = proto.TracingStart{
		TraceConfig:  &proto.TracingTraceConfig{IncludedCategories: frameTraceCategories},
		TransferMode: proto.TracingStartTransferModeReportEvents,
	}.Call(sess.Context(ctx))
	if err != nil {
		h.unsubData()
		h.unsubDone()
		_ = sess.Detach(ctx)
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("frame sampling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

// FrameSamplerHandle accumulates frame event timestamps per event kind.
type FrameSamplerHandle struct {
	handleCore

	sampleMu sync.Mutex
	samples  map[string][]float64 // event name -> timestamps in microseconds

	complete     chan struct{}
	completeOnce sync.Once
	unsubData    func()
	unsubDone    func()
}

// onData extracts frame-event timestamps from one Tracing.dataCollected
// batch.
func (h *FrameSamplerHandle) onData(params []byte) {
	h.sampleMu.Lock()
	defer h.sampleMu.Unlock()
	for _, evt := range gjson.GetBytes(params, "value").Array() {
		name := evt.Get("name").String()
		switch name {
		case eventDrawFrame, eventBeginMainThreadFrame, eventBeginFrame:
			h.samples[name] = append(h.samples[name], evt.Get("ts").Float())
		}
	}
}

func (h *FrameSamplerHandle) onComplete([]byte) {
	h.completeOnce.Do(func() { close(h.complete) })
}

// Reset discards all collected samples; the measurement window restarts
// with the next frame event on the same session.
func (h *FrameSamplerHandle) Reset(ctx context.Context) error {
	if !h.Active() {
		return nil
	}
	h.sampleMu.Lock()
	h.samples = map[string][]float64{}
	h.sampleMu.Unlock()
	return nil
}

// Stop ends tracing, waits (bounded) for the completion signal so all
// buffered events have been delivered, and computes the frame statistics.
func (h *FrameSamplerHandle) Stop(ctx context.Context) (*Result, error) {
	if !h.beginStop() {
		return nil, nil
	}
	defer func() {
		h.unsubData()
		h.unsubDone()
		h.detach(ctx)
	}()

	if err := (proto.TracingEnd{}).Call(h.sess.Context(ctx)); err != nil {
		return nil, fmt.Errorf("ending frame trace: %w", err)
	}
	select {
	case <-h.complete:
	case <-time.After(traceCompleteTimeout):
		return nil, fmt.Errorf("frame trace completion signal not received within %s", traceCompleteTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &Result{Kind: KindFrameSampler, FrameRate: h.compute()}, nil
}

// compute derives the frame-rate aggregate, preferring the most precise
// event kind that produced samples.
func (h *FrameSamplerHandle) compute() *FrameRateResult {
	h.sampleMu.Lock()
	defer h.sampleMu.Unlock()

	kind := eventDrawFrame
	ts := h.samples[eventDrawFrame]
	if len(ts) == 0 {
		kind = eventBeginMainThreadFrame
		ts = h.samples[eventBeginMainThreadFrame]
	}
	if len(ts) == 0 {
		kind = eventBeginFrame
		ts = h.samples[eventBeginFrame]
		if len(ts) > 0 {
			h.logger.Warn("no draw or main-thread frame events captured, " +
				"falling back to vsync-only BeginFrame events; fps may be overstated")
		}
	}

	res := &FrameRateResult{FrameCount: len(ts), EventKind: kind}
	if len(ts) < 2 {
		return res
	}

	sorted := append([]float64{}, ts...)
	sort.Float64s(sorted)

	// Timestamps arrive in microseconds.
	durationMs := (sorted[len(sorted)-1] - sorted[0]) / 1000
	res.DurationMs = durationMs
	if durationMs > 0 {
		res.AverageFPS = float64(len(sorted)-1) / (durationMs / 1000)
	}
	if durationMs < float64(minTrackedWindow.Milliseconds()) {
		h.logger.Warn("frame sampling window is very short, fps average may be unreliable",
			"durationMs", durationMs)
	}

	// Frame-time distribution over inter-frame intervals.
	hist := hdrhistogram.New(1, int64(time.Hour.Microseconds()), 3)
	for i := 1; i < len(sorted); i++ {
		interval := int64(sorted[i] - sorted[i-1])
		if interval < 1 {
			interval = 1
		}
		_ = hist.RecordValue(interval)
	}
	res.FrameTimeP50Ms = float64(hist.ValueAtQuantile(50)) / 1000
	res.FrameTimeP95Ms = float64(hist.ValueAtQuantile(95)) / 1000
	res.FrameTimeP99Ms = float64(hist.ValueAtQuantile(99)) / 1000

	return res
}
