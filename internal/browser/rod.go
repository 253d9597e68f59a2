package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// methodNotFound is the JSON-RPC code a browser returns for a protocol
// domain or method it does not implement. It is the one signal we classify
// as "capability unsupported"; everything else propagates as a real failure.
const methodNotFound = -32601

// classify wraps protocol errors whose code marks a missing capability with
// ErrUnsupported so callers can branch on errors.Is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) && cdpErr.Code == methodNotFound {
		return fmt.Errorf("%s: %w", cdpErr.Message, ErrUnsupported)
	}
	return err
}

// Connect dials a running browser over its debug-protocol control URL.
func Connect(ctx context.Context, controlURL string) (*rod.Browser, error) {
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser at %s: %w", controlURL, err)
	}
	return b, nil
}

// RodPage adapts a rod page to the Page capability.
type RodPage struct {
	browser *rod.Browser
	page    *rod.Page
	logger  *slog.Logger
}

// NewRodPage wraps an existing rod page.
func NewRodPage(b *rod.Browser, p *rod.Page, logger *slog.Logger) *RodPage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodPage{browser: b, page: p, logger: logger}
}

// OpenPage creates a fresh tab navigated to url.
func OpenPage(b *rod.Browser, url string, logger *slog.Logger) (*RodPage, error) {
	p, err := b.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	return NewRodPage(b, p, logger), nil
}

// Rod exposes the underlying rod page for workload code that needs the full
// automation surface (navigation, waiting, input).
func (p *RodPage) Rod() *rod.Page { return p.page }

func (p *RodPage) Evaluate(ctx context.Context, js string) (gson.JSON, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return gson.New(nil), classify(err)
	}
	return res.Value, nil
}

func (p *RodPage) AddInitScript(ctx context.Context, js string) error {
	_, err := p.page.Context(ctx).EvalOnNewDocument(js)
	return classify(err)
}

func (p *RodPage) GotoBlank(ctx context.Context) error {
	return classify(p.page.Context(ctx).Navigate("about:blank"))
}

// Navigate loads url and waits for the load event. Not part of the Page
// capability; the CLI workload uses it directly.
func (p *RodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return classify(err)
	}
	return pg.WaitLoad()
}

func (p *RodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// NewSession attaches a dedicated flat protocol session to this page's
// target. Each probe gets its own session so probes never contend on a
// shared command stream.
func (p *RodPage) NewSession(ctx context.Context) (Session, error) {
	res, err := proto.TargetAttachToTarget{
		TargetID: p.page.TargetID,
		Flatten:  true,
	}.Call(p.browser.Context(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return &rodSession{
		browser: p.browser,
		id:      res.SessionID,
		ctx:     context.Background(),
		logger:  p.logger,
		state:   &sessionState{},
	}, nil
}

// rodSession routes commands through the browser connection under a fixed
// session ID. Clones made via Context share the ID and detach state.
type rodSession struct {
	browser *rod.Browser
	id      proto.TargetSessionID
	ctx     context.Context
	logger  *slog.Logger
	state   *sessionState
}

type sessionState struct {
	mu       sync.Mutex
	detached bool
}

func (s *rodSession) Call(ctx context.Context, _, method string, params interface{}) ([]byte, error) {
	res, err := s.browser.Call(ctx, string(s.id), method, params)
	return res, classify(err)
}

func (s *rodSession) GetSessionID() proto.TargetSessionID { return s.id }

func (s *rodSession) GetContext() context.Context { return s.ctx }

func (s *rodSession) Context(ctx context.Context) Session {
	clone := *s
	clone.ctx = ctx
	return &clone
}

// Subscribe pumps matching browser events to fn. rod only surfaces event
// payloads through typed Load targets, so the payload is rehydrated to raw
// JSON before delivery; methods without a registered holder are ignored.
func (s *rodSession) Subscribe(method string, fn func(params []byte)) (stop func()) {
	ctx, cancel := context.WithCancel(s.ctx)
	events := s.browser.Context(ctx).Event()

	go func() {
		for msg := range events {
			if msg.Method != method || string(msg.SessionID) != string(s.id) {
				continue
			}
			holder := eventHolder(method)
			if holder == nil || !msg.Load(holder) {
				continue
			}
			raw, err := json.Marshal(holder)
			if err != nil {
				continue
			}
			fn(raw)
		}
	}()

	return cancel
}

// eventHolder returns a fresh typed target for the protocol events the
// engine subscribes to.
func eventHolder(method string) proto.Event {
	switch method {
	case "Tracing.dataCollected":
		return &proto.TracingDataCollected{}
	case "Tracing.tracingComplete":
		return &proto.TracingTracingComplete{}
	default:
		return nil
	}
}

func (s *rodSession) Detach(ctx context.Context) error {
	s.state.mu.Lock()
	if s.state.detached {
		s.state.mu.Unlock()
		return nil
	}
	s.state.detached = true
	s.state.mu.Unlock()

	err := proto.TargetDetachFromTarget{SessionID: s.id}.Call(s.browser.Context(ctx))
	if err != nil {
		// Detach failures do not affect test outcome; the browser reaps
		// sessions when the page closes.
		s.logger.Debug("session detach failed", "session", string(s.id), "error", err)
	}
	return nil
}
