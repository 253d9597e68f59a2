package probe

import (
	"context"
	"log/slog"
	"sync"
)

// CoordTable tracks the currently active resettable handles by kind, so an
// external reset request (issued by the test body between awaited steps)
// can synchronize every active probe's measurement window at once.
//
// Entries are added when a resettable probe starts and removed when it
// stops; the table never owns the handles.
type CoordTable struct {
	logger *slog.Logger

	mu     sync.Mutex
	active map[Kind]Resettable
}

// NewCoordTable returns an empty coordination table.
func NewCoordTable(logger *slog.Logger) *CoordTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &CoordTable{logger: logger, active: map[Kind]Resettable{}}
}

// Activate registers h as the active resettable handle for its kind.
func (t *CoordTable) Activate(h Resettable) {
	if h == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[h.Kind()] = h
}

// Deactivate removes the entry for kind.
func (t *CoordTable) Deactivate(kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, kind)
}

// Active returns the kinds currently registered.
func (t *CoordTable) Active() []Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	kinds := make([]Kind, 0, len(t.active))
	for k := range t.active {
		kinds = append(kinds, k)
	}
	return kinds
}

// ResetAllActive resets every active handle concurrently and joins.
//
// A handle whose reset fails has degraded itself to inactive; it is dropped
// from the table and the failure is logged, never raised.
func (t *CoordTable) ResetAllActive(ctx context.Context) {
	t.mu.Lock()
	handles := make(map[Kind]Resettable, len(t.active))
	for k, h := range t.active {
		handles[k] = h
	}
	t.mu.Unlock()

	var wg sync.WaitGroup
	for kind, h := range handles {
		wg.Add(1)
		go func(kind Kind, h Resettable) {
			defer wg.Done()
			if err := h.Reset(ctx); err != nil {
				t.logger.Warn("probe reset failed, probe deactivated",
					"probe", string(kind), "error", err)
				t.Deactivate(kind)
			}
		}(kind, h)
	}
	wg.Wait()
}
