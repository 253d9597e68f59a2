package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/perfgate/perfgate/internal/browser"
)

// HeapSamplerProbe snapshots the JS heap before and after the measured
// window and reports absolute and percentage growth.
type HeapSamplerProbe struct {
	logger *slog.Logger
}

func (p *HeapSamplerProbe) Kind() Kind { return KindHeapSampler }

// Start takes the baseline heap snapshot.
func (p *HeapSamplerProbe) Start(ctx context.Context, page browser.Page, cfg Config) (Handle, error) {
	sess, err := page.NewSession(ctx)
	if err != nil {
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("heap sampling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}

	h := &HeapSamplerHandle{handleCore: newHandleCore(KindHeapSampler, sess, p.logger)}
	before, err := h.usedHeap(ctx)
	if err != nil {
		_ = sess.Detach(ctx)
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("heap sampling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}
	h.before = before
	return h, nil
}

// HeapSamplerHandle holds the baseline snapshot for the current window.
type HeapSamplerHandle struct {
	handleCore

	beforeMu sync.Mutex
	before   float64
}

func (h *HeapSamplerHandle) usedHeap(ctx context.Context) (float64, error) {
	res, err := proto.RuntimeGetHeapUsage{}.Call(h.sess.Context(ctx))
	if err != nil {
		return 0, err
	}
	return res.UsedSize, nil
}

// Reset re-baselines the measurement window with a fresh snapshot. On
// failure the handle degrades to inactive rather than keeping a stale
// baseline.
func (h *HeapSamplerHandle) Reset(ctx context.Context) error {
	if !h.Active() {
		return nil
	}
	before, err := h.usedHeap(ctx)
	if err != nil {
		h.deactivate()
		return fmt.Errorf("re-baselining heap sample: %w", err)
	}
	h.beforeMu.Lock()
	h.before = before
	h.beforeMu.Unlock()
	return nil
}

// Stop takes the closing snapshot and computes growth. Percentage growth
// is 0 when the baseline heap was empty.
func (h *HeapSamplerHandle) Stop(ctx context.Context) (*Result, error) {
	if !h.beginStop() {
		return nil, nil
	}
	defer h.detach(ctx)

	after, err := h.usedHeap(ctx)
	if err != nil {
		return nil, fmt.Errorf("sampling heap at stop: %w", err)
	}

	h.beforeMu.Lock()
	before := h.before
	h.beforeMu.Unlock()

	growthPct := 0.0
	if before > 0 {
		growthPct = (after - before) / before * 100
	}
	return &Result{
		Kind: KindHeapSampler,
		Heap: &HeapResult{
			UsedBefore: before,
			UsedAfter:  after,
			GrowthByte: after - before,
			GrowthPct:  growthPct,
		},
	}, nil
}
