package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wudi/runway/internal/reqctx"
)

func newTestRC() *reqctx.RC {
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	return reqctx.New(w, r)
}

func TestChainOrder(t *testing.T) {
	var order []string

	m1 := FromContextual(func(rc *reqctx.RC, next func()) {
		order = append(order, "m1-before")
		next()
		order = append(order, "m1-after")
	})
	m2 := FromContextual(func(rc *reqctx.RC, next func()) {
		order = append(order, "m2-before")
		next()
		order = append(order, "m2-after")
	})
	handler := func(rc *reqctx.RC) { order = append(order, "handler") }

	chain := NewChain(m1, m2)
	chain.Then(handler)(newTestRC())

	expected := []string{"m1-before", "m2-before", "handler", "m2-after", "m1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("at index %d: expected %s, got %s", i, v, order[i])
		}
	}
}

func TestChainAppend(t *testing.T) {
	var order []string
	m1 := FromContextual(func(rc *reqctx.RC, next func()) { order = append(order, "m1"); next() })
	m2 := FromContextual(func(rc *reqctx.RC, next func()) { order = append(order, "m2"); next() })
	handler := func(rc *reqctx.RC) { order = append(order, "handler") }

	chain := NewChain(m1).Append(m2)
	chain.Then(handler)(newTestRC())

	expected := []string{"m1", "m2", "handler"}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("at index %d: expected %s, got %s", i, v, order[i])
		}
	}
}

func TestChainPrepend(t *testing.T) {
	var order []string
	m1 := FromContextual(func(rc *reqctx.RC, next func()) { order = append(order, "m1"); next() })
	m2 := FromContextual(func(rc *reqctx.RC, next func()) { order = append(order, "m2"); next() })
	handler := func(rc *reqctx.RC) { order = append(order, "handler") }

	chain := NewChain(m2).Prepend(m1)
	chain.Then(handler)(newTestRC())

	expected := []string{"m1", "m2", "handler"}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("at index %d: expected %s, got %s", i, v, order[i])
		}
	}
}

func TestChainLen(t *testing.T) {
	noop := FromContextual(func(rc *reqctx.RC, next func()) { next() })
	chain := NewChain(noop, noop, noop)
	if chain.Len() != 3 {
		t.Errorf("expected length 3, got %d", chain.Len())
	}
}

func TestChainExtend(t *testing.T) {
	noop := FromContextual(func(rc *reqctx.RC, next func()) { next() })
	chain1 := NewChain(noop, noop)
	chain2 := NewChain(noop)
	combined := chain1.Extend(chain2)
	if combined.Len() != 3 {
		t.Errorf("expected length 3, got %d", combined.Len())
	}
}

func TestChainDropsInvalidMiddleware(t *testing.T) {
	chain := NewChain(Middleware{}, Middleware{
		Classic:    func(w http.ResponseWriter, r *http.Request, next func()) { next() },
		Contextual: func(rc *reqctx.RC, next func()) { next() },
	})
	if chain.Len() != 0 {
		t.Errorf("expected invalid middlewares to be dropped, got length %d", chain.Len())
	}
}

func TestChainTerminalWithoutNext(t *testing.T) {
	var afterCalled bool
	terminal := FromContextual(func(rc *reqctx.RC, next func()) {
		rc.Status(http.StatusTeapot)
	})
	after := FromContextual(func(rc *reqctx.RC, next func()) { afterCalled = true; next() })

	chain := NewChain(terminal, after)
	rc := newTestRC()
	chain.Then(func(rc *reqctx.RC) { afterCalled = true })(rc)

	if afterCalled {
		t.Error("steps after a non-calling middleware must not run")
	}
}

func TestChainStopsAfterSend(t *testing.T) {
	var handlerCalled bool
	sendsResponse := FromContextual(func(rc *reqctx.RC, next func()) {
		rc.Status(http.StatusOK)
		next()
	})

	chain := NewChain(sendsResponse)
	rc := newTestRC()
	chain.Then(func(rc *reqctx.RC) { handlerCalled = true })(rc)

	if handlerCalled {
		t.Error("handler must not run once RC.sent is set, even if next was called")
	}
}

func TestBuilder(t *testing.T) {
	var called bool
	m := FromContextual(func(rc *reqctx.RC, next func()) { called = true; next() })

	b := NewBuilder()
	b.Use(m)
	h := b.Handler(func(rc *reqctx.RC) { rc.Status(http.StatusOK) })
	h(newTestRC())

	if !called {
		t.Error("middleware should have been called")
	}
}

func TestBuilderUseIf(t *testing.T) {
	var m1Called, m2Called bool
	m1 := FromContextual(func(rc *reqctx.RC, next func()) { m1Called = true; next() })
	m2 := FromContextual(func(rc *reqctx.RC, next func()) { m2Called = true; next() })

	b := NewBuilder()
	b.UseIf(true, m1)
	b.UseIf(false, m2)
	h := b.Handler(func(rc *reqctx.RC) {})
	h(newTestRC())

	if !m1Called {
		t.Error("m1 should have been called")
	}
	if m2Called {
		t.Error("m2 should not have been called")
	}
}

func TestWrapClassic(t *testing.T) {
	var called bool
	fn := func(w http.ResponseWriter, r *http.Request, next func()) {
		called = true
		next()
	}

	chain := NewChain(WrapClassic(fn))
	chain.Then(func(rc *reqctx.RC) {})(newTestRC())

	if !called {
		t.Error("classic middleware should have been called")
	}
}

func TestEmptyChainThen(t *testing.T) {
	var called bool
	chain := NewChain()
	chain.Then(func(rc *reqctx.RC) { called = true })(newTestRC())
	if !called {
		t.Error("terminal handler should run when chain is empty")
	}
}
