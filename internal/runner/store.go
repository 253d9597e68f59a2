package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/perfgate/perfgate/internal/browser"
	"github.com/perfgate/perfgate/internal/stats"
)

// StoreGlobal is the page global under which the in-page render
// instrumentation publishes its sample store.
const StoreGlobal = "__perfgateStore"

// Store polling: the snapshot is considered settled once two consecutive
// reads agree on the sample count.
const (
	storePollInterval = 50 * time.Millisecond
	storeSettleWindow = 3 * time.Second
)

// StoreError is a failure reading the instrumentation store. It carries
// the lifecycle phase it occurred in plus structured context, so a missing
// store during warmup reads differently from one during a measured
// iteration.
type StoreError struct {
	Phase   Phase
	Reason  string
	Context map[string]interface{}
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("instrumentation store: %s (phase %s)", e.Reason, e.Phase)
	for k, v := range e.Context {
		msg += fmt.Sprintf(", %s=%v", k, v)
	}
	return msg
}

// StoreSnapshot is one read of the instrumentation store.
type StoreSnapshot struct {
	SampleCount   int                            `json:"sampleCount"`
	TotalDuration float64                        `json:"totalDuration"`
	Subjects      map[string]stats.SubjectSample `json:"subjects,omitempty"`
}

// storeReadScript serializes the store's current state, or null when the
// target application never mounted it.
const storeReadScript = `() => {
	const s = window.` + StoreGlobal + `;
	if (!s) return null;
	return JSON.stringify({
		sampleCount: s.sampleCount || 0,
		totalDuration: s.totalDuration || 0,
		perSubjectBreakdown: s.perSubjectBreakdown || {},
	});
}`

// captureStore reads the instrumentation store once its sample count has
// settled. Renders can trail the workload's last await, so a single read
// straight after the workload would undercount.
func captureStore(ctx context.Context, page browser.Page, phase Phase) (*StoreSnapshot, error) {
	deadline := time.Now().Add(storeSettleWindow)
	lastCount := -1

	for {
		snap, err := readStore(ctx, page, phase)
		if err != nil {
			return nil, err
		}
		if snap.SampleCount == lastCount {
			if snap.SampleCount == 0 {
				return nil, &StoreError{
					Phase:  phase,
					Reason: "store holds zero samples",
					Context: map[string]interface{}{
						"url": page.URL(),
					},
				}
			}
			return snap, nil
		}
		lastCount = snap.SampleCount

		if time.Now().After(deadline) {
			return nil, &StoreError{
				Phase:  phase,
				Reason: "snapshot did not stabilize",
				Context: map[string]interface{}{
					"timeout":     storeSettleWindow.String(),
					"sampleCount": snap.SampleCount,
				},
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(storePollInterval):
		}
	}
}

// readStore performs one store read.
func readStore(ctx context.Context, page browser.Page, phase Phase) (*StoreSnapshot, error) {
	res, err := page.Evaluate(ctx, storeReadScript)
	if err != nil {
		return nil, fmt.Errorf("querying instrumentation store: %w", err)
	}

	doc := gjson.Parse(res.Str())
	if !doc.Exists() || doc.Type == gjson.Null {
		return nil, &StoreError{
			Phase:  phase,
			Reason: "store not mounted in page",
			Context: map[string]interface{}{
				"global": StoreGlobal,
				"url":    page.URL(),
			},
		}
	}

	snap := &StoreSnapshot{
		SampleCount:   int(doc.Get("sampleCount").Int()),
		TotalDuration: doc.Get("totalDuration").Float(),
	}
	breakdown := doc.Get("perSubjectBreakdown")
	if breakdown.IsObject() {
		snap.Subjects = map[string]stats.SubjectSample{}
		breakdown.ForEach(func(key, value gjson.Result) bool {
			snap.Subjects[key.String()] = stats.SubjectSample{
				Duration: value.Get("duration").Float(),
				Renders:  int(value.Get("renders").Int()),
			}
			return true
		})
	}
	return snap, nil
}
