package dispatcher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wudi/runway/internal/bodyparser"
	"github.com/wudi/runway/internal/metrics"
	"github.com/wudi/runway/internal/middleware"
	"github.com/wudi/runway/internal/reqctx"
	"github.com/wudi/runway/internal/routetable"
)

func newDispatcher(t *testing.T) (*Dispatcher, *routetable.Registry) {
	t.Helper()
	reg := routetable.New()
	return New(reg, bodyparser.Config{}, metrics.NewCollector()), reg
}

func TestDispatcherDefaultEntryPage(t *testing.T) {
	d, _ := newDispatcher(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "runway") {
		t.Error("expected default entry page body")
	}
}

func TestDispatcherNotFound(t *testing.T) {
	d, _ := newDispatcher(t)

	r := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDispatcherMatchedHandler(t *testing.T) {
	d, reg := newDispatcher(t)

	err := reg.Register("/users/:id", nil, func(rc *reqctx.RC) {
		rc.Send(http.StatusOK, map[string]string{"id": rc.Params["id"]})
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"42"`) {
		t.Errorf("expected route param in body, got %s", w.Body.String())
	}
}

func TestDispatcherGlobalAndEndpointMiddlewareOrder(t *testing.T) {
	d, reg := newDispatcher(t)

	var order []string
	global := middleware.FromContextual(func(rc *reqctx.RC, next func()) {
		order = append(order, "global")
		next()
	})
	reg.AddGlobalMiddleware(global)

	local := middleware.FromContextual(func(rc *reqctx.RC, next func()) {
		order = append(order, "local")
		next()
	})
	err := reg.Register("/ordered", []middleware.Middleware{local}, func(rc *reqctx.RC) {
		order = append(order, "handler")
		rc.Status(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/ordered", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	want := []string{"global", "local", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected order %v, got %v", want, order)
			break
		}
	}
}

func TestDispatcherTerminalMiddlewareStopsChain(t *testing.T) {
	d, reg := newDispatcher(t)

	blocker := middleware.FromContextual(func(rc *reqctx.RC, next func()) {
		rc.SendError(http.StatusForbidden)
	})
	handlerCalled := false
	err := reg.Register("/blocked", []middleware.Middleware{blocker}, func(rc *reqctx.RC) {
		handlerCalled = true
		rc.Status(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/blocked", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if handlerCalled {
		t.Error("handler should not run once a step terminates without next")
	}
}

func TestDispatcherHandlerWithoutSendBecomesInternalError(t *testing.T) {
	d, reg := newDispatcher(t)

	err := reg.Register("/silent", nil, func(rc *reqctx.RC) {})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/silent", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
