package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/perfgate/perfgate/internal/browser"
)

// defaultTraceCategories is the capture set used when the configuration
// names none.
var defaultTraceCategories = []string{
	"devtools.timeline",
	"disabled-by-default-devtools.timeline",
	"blink.user_timing",
	"v8.execute",
}

// TraceCaptureProbe records a full timeline trace for the test's duration,
// exportable as a Chrome-compatible trace file.
type TraceCaptureProbe struct {
	logger *slog.Logger
}

func (p *TraceCaptureProbe) Kind() Kind { return KindTraceCapture }

// Start begins trace capture over a dedicated session.
func (p *TraceCaptureProbe) Start(ctx context.Context, page browser.Page, cfg Config) (Handle, error) {
	sess, err := page.NewSession(ctx)
	if err != nil {
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("trace capture unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}

	categories := cfg.TraceCategories
	if len(categories) == 0 {
		categories = defaultTraceCategories
	}

	h := &TraceCaptureHandle{
		handleCore: newHandleCore(KindTraceCapture, sess, p.logger),
		complete:   make(chan struct{}),
	}
	h.unsubData = sess.Subscribe("Tracing.dataCollected", h.onData)
	h.unsubDone = sess.Subscribe("Tracing.tracingComplete", h.onComplete)

	err = proto.TracingStart{
		TraceConfig:  &proto.TracingTraceConfig{IncludedCategories: categories},
		TransferMode: proto.TracingStartTransferModeReportEvents,
	}.Call(sess.Context(ctx))
	if err != nil {
		h.unsubData()
		h.unsubDone()
		_ = sess.Detach(ctx)
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("trace capture unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

// TraceCaptureHandle buffers collected trace events until stopped.
type TraceCaptureHandle struct {
	handleCore

	eventMu sync.Mutex
	events  []json.RawMessage

	complete     chan struct{}
	completeOnce sync.Once
	unsubData    func()
	unsubDone    func()
}

func (h *TraceCaptureHandle) onData(params []byte) {
	h.eventMu.Lock()
	defer h.eventMu.Unlock()
	for _, evt := range gjson.GetBytes(params, "value").Array() {
		h.events = append(h.events, json.RawMessage(evt.Raw))
	}
}

func (h *TraceCaptureHandle) onComplete([]byte) {
	h.completeOnce.Do(func() { close(h.complete) })
}

// Stop ends tracing and waits (bounded) for the completion signal so the
// event buffer is complete.
func (h *TraceCaptureHandle) Stop(ctx context.Context) (*Result, error) {
	if !h.beginStop() {
		return nil, nil
	}
	defer func() {
		h.unsubData()
		h.unsubDone()
		h.detach(ctx)
	}()

	if err := (proto.TracingEnd{}).Call(h.sess.Context(ctx)); err != nil {
		return nil, fmt.Errorf("ending trace capture: %w", err)
	}
	select {
	case <-h.complete:
	case <-time.After(traceCompleteTimeout):
		return nil, fmt.Errorf("trace completion signal not received within %s", traceCompleteTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	h.eventMu.Lock()
	count := len(h.events)
	h.eventMu.Unlock()
	return &Result{Kind: KindTraceCapture, Trace: &TraceResult{EventCount: count}}, nil
}

// Export writes the buffered events as a Chrome trace file. Valid after
// Stop has returned.
func (h *TraceCaptureHandle) Export(path string) error {
	h.eventMu.Lock()
	events := h.events
	h.eventMu.Unlock()

	doc := struct {
		TraceEvents []json.RawMessage `json:"traceEvents"`
	}{TraceEvents: events}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing trace file: %w", err)
	}
	return nil
}
