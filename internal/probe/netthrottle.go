package probe

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod/lib/proto"

	"github.com/perfgate/perfgate/internal/browser"
)

// NetworkConditions are the emulated link characteristics, in protocol
// units: latency in milliseconds, throughput in bytes per second.
type NetworkConditions struct {
	Offline       bool    `json:"offline" yaml:"offline"`
	LatencyMs     float64 `json:"latencyMs" yaml:"latencyMs"`
	DownloadBytes float64 `json:"downloadBytesPerSec" yaml:"downloadBytesPerSec"`
	UploadBytes   float64 `json:"uploadBytesPerSec" yaml:"uploadBytesPerSec"`
}

// NetworkThrottleProbe emulates network conditions on the page.
//
// Like CPU throttling, the emulation is a session setting with no
// measurement window: non-resettable, and re-applied by the runner after
// navigations because some engines silently drop it.
type NetworkThrottleProbe struct {
	logger *slog.Logger
}

func (p *NetworkThrottleProbe) Kind() Kind { return KindNetworkThrottle }

// Start applies the configured conditions. No conditions, no handle.
func (p *NetworkThrottleProbe) Start(ctx context.Context, page browser.Page, cfg Config) (Handle, error) {
	if cfg.Network == nil {
		return nil, nil
	}

	sess, err := page.NewSession(ctx)
	if err != nil {
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("network throttling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}

	h := &NetworkThrottleHandle{
		handleCore: newHandleCore(KindNetworkThrottle, sess, p.logger),
		conditions: *cfg.Network,
	}
	if err := h.apply(ctx); err != nil {
		_ = sess.Detach(ctx)
		if browser.IsUnsupported(err) {
			logger(p.logger).Warn("network throttling unsupported on this browser, skipping",
				"error", err)
			return nil, nil
		}
		return nil, err
	}
	return h, nil
}

// NetworkThrottleHandle keeps network emulation applied until stopped.
type NetworkThrottleHandle struct {
	handleCore
	conditions NetworkConditions
}

func (h *NetworkThrottleHandle) apply(ctx context.Context) error {
	return proto.NetworkEmulateNetworkConditions{
		Offline:            h.conditions.Offline,
		Latency:            h.conditions.LatencyMs,
		DownloadThroughput: h.conditions.DownloadBytes,
		UploadThroughput:   h.conditions.UploadBytes,
	}.Call(h.sess.Context(ctx))
}

// Reapply re-issues the emulation command after a navigation; a no-op when
// the handle is inactive, tolerant of mid-life failures.
func (h *NetworkThrottleHandle) Reapply(ctx context.Context) error {
	if !h.Active() {
		return nil
	}
	if err := h.apply(ctx); err != nil {
		h.logger.Warn("re-applying network throttle failed, probe deactivated", "error", err)
		h.deactivate()
	}
	return nil
}

// Stop lifts the emulation and releases the session.
func (h *NetworkThrottleHandle) Stop(ctx context.Context) (*Result, error) {
	if !h.beginStop() {
		return nil, nil
	}
	defer h.detach(ctx)

	err := proto.NetworkEmulateNetworkConditions{
		Offline:            false,
		Latency:            0,
		DownloadThroughput: -1,
		UploadThroughput:   -1,
	}.Call(h.sess.Context(ctx))
	if err != nil {
		h.logger.Warn("restoring network conditions failed", "error", err)
	}
	return &Result{Kind: KindNetworkThrottle, Network: &NetworkResult{Conditions: h.conditions}}, nil
}
