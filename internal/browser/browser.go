// Package browser defines the protocol-level capabilities the rest of the
// engine consumes: a Page that can be evaluated against and navigated, and
// a Session that carries raw debug-protocol commands and events.
//
// Probes never talk to rod directly. They are handed a Session, which
// implements rod's proto.Client, so typed protocol commands dispatch through
// it and test doubles can stand in for a live browser.
package browser

import (
	"context"
	"errors"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// ErrUnsupported marks a debug-protocol capability the current browser engine
// does not provide. Callers treat it as "skip", never as a test failure.
//
// It is attached to errors in exactly one place (the rod adapter), so the
// rest of the engine checks errors.Is instead of matching message text.
var ErrUnsupported = errors.New("debug protocol capability unsupported")

// IsUnsupported reports whether err indicates a missing protocol capability.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// Session is one dedicated debug-protocol session against a page.
//
// Each probe owns exactly one Session for its lifetime. Sessions implement
// proto.Client plus rod's Sessionable/Contextable accessors, so rod's typed
// commands (proto.XxxYyy{}.Call(sess)) route through them unchanged.
//
// Events subscribed via Subscribe are delivered before the completion signal
// of the command that triggered them fires.
type Session interface {
	proto.Client

	// GetSessionID satisfies rod's proto.Sessionable.
	GetSessionID() proto.TargetSessionID

	// GetContext satisfies rod's proto.Contextable.
	GetContext() context.Context

	// Context returns a clone of the session bound to ctx, in the manner of
	// rod's Page.Context. The clone shares the underlying session.
	Context(ctx context.Context) Session

	// Subscribe registers fn for the named protocol event (e.g.
	// "Tracing.dataCollected"). fn receives the raw event params as JSON.
	// The returned stop function cancels the subscription.
	Subscribe(method string, fn func(params []byte)) (stop func())

	// Detach closes the session. Best effort: implementations swallow
	// transport failures and report only genuine misuse.
	Detach(ctx context.Context) error
}

// Page is the single browser page a test run exclusively owns.
type Page interface {
	// Evaluate runs a JS function expression in the page and returns its
	// JSON-converted result.
	Evaluate(ctx context.Context, js string) (gson.JSON, error)

	// AddInitScript arranges for js to run in every document created after
	// this call, before any of the document's own scripts.
	AddInitScript(ctx context.Context, js string) error

	// GotoBlank navigates the page to about:blank.
	GotoBlank(ctx context.Context) error

	// NewSession opens a dedicated debug session against this page.
	// Returns an error wrapping ErrUnsupported when the browser engine
	// cannot attach protocol sessions.
	NewSession(ctx context.Context) (Session, error)

	// URL returns the page's current URL, or "" if it cannot be determined.
	URL() string
}
