package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/perfgate/perfgate/internal/browser"
)

// Registry is the catalog of available probes. It is an explicit value
// constructed once at process start and passed into the runner, so tests
// can build isolated registries with doubles.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	probes map[Kind]Probe
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, probes: map[Kind]Probe{}}
}

// NewDefaultRegistry returns a registry with all built-in probes installed.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, p := range []Probe{
		&CPUThrottleProbe{logger: logger},
		&NetworkThrottleProbe{logger: logger},
		&FrameSamplerProbe{logger: logger},
		&HeapSamplerProbe{logger: logger},
		&TraceCaptureProbe{logger: logger},
	} {
		// Built-in kinds are distinct, so Register cannot fail here.
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a probe. Each kind may be registered exactly once.
func (r *Registry) Register(p Probe) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.probes[p.Kind()]; exists {
		return fmt.Errorf("probe %q is already registered", p.Kind())
	}
	r.probes[p.Kind()] = p
	return nil
}

// Start launches the named probe against page.
//
// A nil handle with nil error means the probe was skipped: either its
// configuration disables it or the browser lacks the capability. A non-nil
// error is a genuine failure and must fail the test.
func (r *Registry) Start(ctx context.Context, kind Kind, page browser.Page, cfg Config) (Handle, error) {
	r.mu.Lock()
	p, ok := r.probes[kind]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown probe %q", kind)
	}

	h, err := p.Start(ctx, page, cfg)
	if err != nil {
		return nil, fmt.Errorf("starting probe %q: %w", kind, err)
	}
	if h == nil {
		r.logger.Debug("probe skipped", "probe", string(kind))
	}
	return h, nil
}

// StopAll stops every handle in the set concurrently and clears it.
//
// Teardown latency is bounded by the slowest probe, not the sum, and one
// probe's failure never blocks another's cleanup: failures are logged and
// recorded as a nil result.
func (r *Registry) StopAll(ctx context.Context, set *HandleSet) map[Kind]*Result {
	handles := set.Drain()
	results := make(map[Kind]*Result, len(handles))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for kind, h := range handles {
		wg.Add(1)
		go func(kind Kind, h Handle) {
			defer wg.Done()
			res, err := h.Stop(ctx)
			if err != nil {
				r.logger.Warn("probe stop failed", "probe", string(kind), "error", err)
				res = nil
			}
			mu.Lock()
			results[kind] = res
			mu.Unlock()
		}(kind, h)
	}

	wg.Wait()
	return results
}

// HandleSet is the set of live handles owned by exactly one runner for one
// test's duration.
type HandleSet struct {
	mu      sync.Mutex
	handles map[Kind]Handle
}

// NewHandleSet returns an empty set.
func NewHandleSet() *HandleSet {
	return &HandleSet{handles: map[Kind]Handle{}}
}

// Put stores h under its kind, replacing any previous entry.
func (s *HandleSet) Put(h Handle) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.Kind()] = h
}

// Get returns the handle for kind, or nil.
func (s *HandleSet) Get(kind Kind) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[kind]
}

// Remove deletes and returns the handle for kind, or nil.
func (s *HandleSet) Remove(kind Kind) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[kind]
	delete(s.handles, kind)
	return h
}

// Drain returns all handles and empties the set.
func (s *HandleSet) Drain() map[Kind]Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.handles
	s.handles = map[Kind]Handle{}
	return out
}

// Len returns the number of live handles.
func (s *HandleSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
