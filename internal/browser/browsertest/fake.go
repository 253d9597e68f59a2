// Package browsertest provides in-memory Page and Session doubles for
// exercising probes and the runner without a live browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/perfgate/perfgate/internal/browser"
)

// Call records one protocol command issued against a FakeSession.
type Call struct {
	Method string
	Params interface{}
}

// FakeSession is a scriptable browser.Session.
//
// Handle is consulted per command; when nil, every command succeeds with an
// empty result. All commands and detaches are recorded for assertions.
type FakeSession struct {
	// Handle, when set, decides the outcome of each command.
	Handle func(method string, params interface{}) ([]byte, error)

	mu       sync.Mutex
	calls    []Call
	detached int
	subs     map[string][]func(params []byte)
}

// NewFakeSession returns an empty fake session.
func NewFakeSession() *FakeSession {
	return &FakeSession{subs: map[string][]func(params []byte){}}
}

func (s *FakeSession) Call(_ context.Context, _, method string, params interface{}) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Params: params})
	handle := s.Handle
	s.mu.Unlock()

	if handle != nil {
		return handle(method, params)
	}
	return []byte("{}"), nil
}

func (s *FakeSession) GetSessionID() proto.TargetSessionID { return "fake-session" }

func (s *FakeSession) GetContext() context.Context { return context.Background() }

func (s *FakeSession) Context(context.Context) browser.Session { return s }

func (s *FakeSession) Subscribe(method string, fn func(params []byte)) (stop func()) {
	s.mu.Lock()
	s.subs[method] = append(s.subs[method], fn)
	s.mu.Unlock()
	return func() {}
}

func (s *FakeSession) Detach(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached++
	return nil
}

// Emit delivers a protocol event to every subscriber of method.
func (s *FakeSession) Emit(method string, params []byte) {
	s.mu.Lock()
	fns := append([]func(params []byte){}, s.subs[method]...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(params)
	}
}

// Calls returns a copy of all recorded commands.
func (s *FakeSession) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call{}, s.calls...)
}

// CallCount returns how many commands with the given method were issued.
func (s *FakeSession) CallCount(method string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Detached returns how many times Detach was called.
func (s *FakeSession) Detached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

// FakePage is a scriptable browser.Page.
type FakePage struct {
	// EvalFunc decides the result of Evaluate. When nil, Evaluate returns
	// JSON null.
	EvalFunc func(js string) (gson.JSON, error)

	// NewSessionFunc decides the outcome of NewSession. When nil, a fresh
	// FakeSession is handed out (and recorded in Sessions).
	NewSessionFunc func() (browser.Session, error)

	mu          sync.Mutex
	sessions    []*FakeSession
	initScripts []string
	blankNavs   int
}

func (p *FakePage) Evaluate(_ context.Context, js string) (gson.JSON, error) {
	if p.EvalFunc != nil {
		return p.EvalFunc(js)
	}
	return gson.New(nil), nil
}

func (p *FakePage) AddInitScript(_ context.Context, js string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initScripts = append(p.initScripts, js)
	return nil
}

func (p *FakePage) GotoBlank(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blankNavs++
	return nil
}

func (p *FakePage) NewSession(context.Context) (browser.Session, error) {
	if p.NewSessionFunc != nil {
		return p.NewSessionFunc()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := NewFakeSession()
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *FakePage) URL() string { return "http://fake.test/" }

// Sessions returns every FakeSession handed out by NewSession.
func (p *FakePage) Sessions() []*FakeSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeSession{}, p.sessions...)
}

// InitScripts returns every script registered via AddInitScript.
func (p *FakePage) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.initScripts...)
}

// BlankNavigations returns how many times GotoBlank was called.
func (p *FakePage) BlankNavigations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blankNavs
}

// UnsupportedSession returns a NewSessionFunc that reports the capability
// as unsupported, for exercising graceful degradation.
func UnsupportedSession() func() (browser.Session, error) {
	return func() (browser.Session, error) {
		return nil, fmt.Errorf("Target.attachToTarget: %w", browser.ErrUnsupported)
	}
}
