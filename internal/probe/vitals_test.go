package probe

import (
	"context"
	"strings"
	"testing"

	"github.com/ysmood/gson"

	"github.com/perfgate/perfgate/internal/browser/browsertest"
)

func TestVitalsObserverInject(t *testing.T) {
	page := &browsertest.FakePage{}
	obs := NewVitalsObserver(page, nil)

	if err := obs.Inject(context.Background()); err != nil {
		t.Fatalf("inject failed: %v", err)
	}
	scripts := page.InitScripts()
	if len(scripts) != 1 {
		t.Fatalf("init scripts = %d, want 1", len(scripts))
	}
	if !strings.Contains(scripts[0], VitalsGlobal) {
		t.Error("observer script does not reference the vitals global")
	}
}

func TestVitalsObserverCollect(t *testing.T) {
	page := &browsertest.FakePage{
		EvalFunc: func(js string) (gson.JSON, error) {
			return gson.New(`{"lcp":1200.5,"cls":0.04,"fcp":800,"ttfb":null,"inp":null}`), nil
		},
	}
	obs := NewVitalsObserver(page, nil)

	v, err := obs.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	if v.LCP == nil || *v.LCP != 1200.5 {
		t.Errorf("LCP = %v, want 1200.5", v.LCP)
	}
	if v.CLS == nil || *v.CLS != 0.04 {
		t.Errorf("CLS = %v, want 0.04", v.CLS)
	}
	if v.TTFB != nil {
		t.Error("null vital must stay nil")
	}
}

func TestVitalsObserverCollectUnmounted(t *testing.T) {
	page := &browsertest.FakePage{
		EvalFunc: func(js string) (gson.JSON, error) {
			return gson.New("null"), nil
		},
	}
	obs := NewVitalsObserver(page, nil)

	v, err := obs.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect on an unmounted store must not fail: %v", err)
	}
	if v.LCP != nil || v.CLS != nil {
		t.Errorf("unmounted store must yield empty vitals, got %+v", v)
	}
}
