package probe

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"

	"github.com/perfgate/perfgate/internal/browser"
)

// CPUThrottleProbe slows the page's main thread by a configurable factor.
//
// The throttle setting does not survive navigation on every engine, so the
// runner re-applies it through Reapply after each navigation.
type CPUThrottleProbe struct {
	logger *slog.Logger
}

func (p *CPUThrottleProbe) Kind() Kind { return KindCPUThrottle }

// Start applies the throttle rate through a dedicated session. A rate of 1
// or below means "no throttling" and yields no handle.
func (p *CPUThrottleProbe) Start(ctx context.Context, page browser.Page, cfg Config) (Handle, error) {
	if cfg.CPUThrottleRate <= 1 {
		return nil, nil
	}

	sess, err := page.NewSession(ctx)
	if err != nil {
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("cpu throttling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}

	h := &CPUThrottleHandle{
		handleCore: newHandleCore(KindCPUThrottle, sess, p.logger),
		rate:       cfg.CPUThrottleRate,
	}
	if err := h.apply(ctx); err != nil {
		_ = sess.Detach(ctx)
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("cpu throttling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

// CPUThrottleHandle keeps the throttle rate applied until stopped.
// It is not resettable: the setting has no measurement window.
type CPUThrottleHandle struct {
	handleCore
	rate float64
}

func (h *CPUThrottleHandle) apply(ctx context.Context) error {
	return proto.EmulationSetCPUThrottlingRate{Rate: h.rate}.Call(h.sess.Context(ctx))
}

// Reapply re-issues the throttle command after a navigation. Calling it on
// an inactive handle is a no-op; a mid-life failure deactivates the handle
// and is logged, never raised.
func (h *CPUThrottleHandle) Reapply(ctx context.Context) error {
	if !h.Active() {
		return nil
	}
	if err := h.apply(ctx); err != nil {
		h.logger.Warn("re-applying cpu throttle failed, probe deactivated", "error", err)
		h.deactivate()
	}
	return nil
}

// Stop restores the throttle rate to 1 and releases the session.
func (h *CPUThrottleHandle) Stop(ctx context.Context) (*Result, error) {
	if !h.beginStop() {
		return nil, nil
	}
	defer h.detach(ctx)

	if err := (proto.EmulationSetCPUThrottlingRate{Rate: 1}).Call(h.sess.Context(ctx)); err != nil {
		h.logger.Warn("restoring cpu throttle rate failed", "error", err)
	}
	return &Result{Kind: KindCPUThrottle, CPU: &CPUResult{Rate: h.rate}}, nil
}

// logger returns l or the process default.
func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
