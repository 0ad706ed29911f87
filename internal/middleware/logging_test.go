package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wudi/runway/internal/logging"
	"github.com/wudi/runway/internal/reqctx"
)

func TestLoggingDefault(t *testing.T) {
	original := logging.Global()
	core, obs := observer.New(zapcore.InfoLevel)
	logging.SetGlobal(zap.New(core))
	defer logging.SetGlobal(original)

	handler := func(rc *reqctx.RC) { rc.Send(http.StatusOK, "hello") }

	chain := NewChain(Logging())
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	chain.Then(handler)(reqctx.New(w, r))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	entries := obs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != "http_request" {
		t.Errorf("expected message http_request, got %q", entries[0].Message)
	}
}

func TestLoggingSkipPaths(t *testing.T) {
	original := logging.Global()
	core, obs := observer.New(zapcore.InfoLevel)
	logging.SetGlobal(zap.New(core))
	defer logging.SetGlobal(original)

	cfg := LoggingConfig{Enabled: true, SkipPaths: []string{"/health"}}
	chain := NewChain(LoggingWithConfig(cfg))

	var handlerCalled bool
	handler := func(rc *reqctx.RC) { handlerCalled = true; rc.Status(http.StatusOK) }

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	rc := reqctx.New(w, r)
	rc.Endpoint = "/health"
	chain.Then(handler)(rc)

	if !handlerCalled {
		t.Error("handler should have been called for skipped path")
	}
	if len(obs.All()) != 0 {
		t.Error("skipped path should not be logged")
	}
}

func TestLoggingDisabled(t *testing.T) {
	original := logging.Global()
	core, obs := observer.New(zapcore.InfoLevel)
	logging.SetGlobal(zap.New(core))
	defer logging.SetGlobal(original)

	chain := NewChain(LoggingWithConfig(LoggingConfig{Enabled: false}))
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	chain.Then(func(rc *reqctx.RC) { rc.Status(http.StatusOK) })(reqctx.New(w, r))

	if len(obs.All()) != 0 {
		t.Error("disabled logging middleware should not emit entries")
	}
}
