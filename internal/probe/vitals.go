package probe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/perfgate/perfgate/internal/browser"
)

// VitalsGlobal is the page global the observer script accumulates into.
const VitalsGlobal = "__perfgateVitals"

// vitalsScript installs PerformanceObservers for the web-vitals entry
// types before any document script runs. Each observer is buffered so
// entries recorded before installation still count. TTFB comes from the
// navigation entry; INP is approximated by the worst observed event
// duration, the same simplification the event-timing API imposes without
// the full attribution build.
const vitalsScript = `(() => {
	const store = { lcp: null, cls: 0, fcp: null, ttfb: null, inp: null };
	window.` + VitalsGlobal + ` = store;
	try {
		new PerformanceObserver((list) => {
			const entries = list.getEntries();
			if (entries.length) store.lcp = entries[entries.length - 1].startTime;
		}).observe({ type: 'largest-contentful-paint', buffered: true });
	} catch (e) {}
	try {
		new PerformanceObserver((list) => {
			for (const entry of list.getEntries()) {
				if (!entry.hadRecentInput) store.cls += entry.value;
			}
		}).observe({ type: 'layout-shift', buffered: true });
	} catch (e) {}
	try {
		new PerformanceObserver((list) => {
			for (const entry of list.getEntries()) {
				if (entry.name === 'first-contentful-paint') store.fcp = entry.startTime;
			}
		}).observe({ type: 'paint', buffered: true });
	} catch (e) {}
	try {
		new PerformanceObserver((list) => {
			for (const entry of list.getEntries()) {
				if (store.inp === null || entry.duration > store.inp) store.inp = entry.duration;
			}
		}).observe({ type: 'event', buffered: true, durationThreshold: 40 });
	} catch (e) {}
	try {
		const nav = performance.getEntriesByType('navigation')[0];
		if (nav) store.ttfb = nav.responseStart;
	} catch (e) {}
})();`

// WebVitals are the collected cross-browser vitals for one measurement
// window. Nil fields were not observed (entry type unsupported, or the
// page produced no qualifying entries).
type WebVitals struct {
	LCP  *float64 `json:"lcp,omitempty"`
	CLS  *float64 `json:"cls,omitempty"`
	FCP  *float64 `json:"fcp,omitempty"`
	TTFB *float64 `json:"ttfb,omitempty"`
	INP  *float64 `json:"inp,omitempty"`
}

// VitalsObserver injects and queries the in-page web-vitals collector.
// It rides on page evaluation rather than a debug session, so it works on
// every browser engine.
type VitalsObserver struct {
	page   browser.Page
	logger *slog.Logger
}

// NewVitalsObserver returns an observer bound to page.
func NewVitalsObserver(page browser.Page, log *slog.Logger) *VitalsObserver {
	return &VitalsObserver{page: page, logger: logger(log)}
}

// Inject arranges for the collector to run in every future document.
func (v *VitalsObserver) Inject(ctx context.Context) error {
	if err := v.page.AddInitScript(ctx, vitalsScript); err != nil {
		return fmt.Errorf("injecting web-vitals observer: %w", err)
	}
	return nil
}

// Collect reads the current vitals out of the page.
func (v *VitalsObserver) Collect(ctx context.Context) (*WebVitals, error) {
	res, err := v.page.Evaluate(ctx, `() => JSON.stringify(window.`+VitalsGlobal+` || null)`)
	if err != nil {
		return nil, fmt.Errorf("collecting web vitals: %w", err)
	}

	doc := gjson.Parse(res.Str())
	if !doc.Exists() || doc.Type == gjson.Null {
		return &WebVitals{}, nil
	}
	return &WebVitals{
		LCP:  floatField(doc, "lcp"),
		CLS:  floatField(doc, "cls"),
		FCP:  floatField(doc, "fcp"),
		TTFB: floatField(doc, "ttfb"),
		INP:  floatField(doc, "inp"),
	}, nil
}

// Reset zeroes the in-page accumulator so the next iteration measures a
// fresh window.
func (v *VitalsObserver) Reset(ctx context.Context) error {
	js := `() => { const s = window.` + VitalsGlobal + `; if (s) { s.lcp = null; s.cls = 0; s.fcp = null; s.ttfb = null; s.inp = null; } }`
	if _, err := v.page.Evaluate(ctx, js); err != nil {
		return fmt.Errorf("resetting web vitals: %w", err)
	}
	return nil
}

func floatField(doc gjson.Result, key string) *float64 {
	f := doc.Get(key)
	if !f.Exists() || f.Type == gjson.Null {
		return nil
	}
	v := f.Float()
	return &v
}
