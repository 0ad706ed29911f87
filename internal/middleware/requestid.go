package middleware

import (
	"github.com/google/uuid"

	"github.com/wudi/runway/internal/reqctx"
)

func init() {
	// Batch crypto/rand reads into a pool to avoid a syscall per UUID.
	uuid.EnableRandPool()
}

// RequestIDConfig configures the request ID middleware.
type RequestIDConfig struct {
	// Header is the header name used for the request ID.
	Header string
	// Generator produces a new request ID when none is trusted from the
	// incoming request.
	Generator func() string
	// TrustHeader trusts an incoming request ID header instead of always
	// generating a fresh one.
	TrustHeader bool
}

// DefaultRequestIDConfig provides default request ID settings.
var DefaultRequestIDConfig = RequestIDConfig{
	Header:      "X-Request-ID",
	Generator:   defaultIDGenerator,
	TrustHeader: true,
}

func defaultIDGenerator() string {
	return uuid.New().String()
}

// RequestID creates a request-ID middleware with default config.
func RequestID() Middleware {
	return RequestIDWithConfig(DefaultRequestIDConfig)
}

// RequestIDWithConfig stamps rc.RequestID and the configured header on
// both the inbound request and the response, generating a fresh ID
// unless TrustHeader permits reading one from the client.
func RequestIDWithConfig(cfg RequestIDConfig) Middleware {
	if cfg.Header == "" {
		cfg.Header = "X-Request-ID"
	}
	if cfg.Generator == nil {
		cfg.Generator = defaultIDGenerator
	}

	return FromContextual(func(rc *reqctx.RC, next func()) {
		var id string
		if cfg.TrustHeader {
			id = rc.Request.Header.Get(cfg.Header)
		}
		if id == "" {
			id = cfg.Generator()
		}

		rc.RequestID = id
		rc.Request.Header.Set(cfg.Header, id)
		rc.Response.Header().Set(cfg.Header, id)

		next()
	})
}
