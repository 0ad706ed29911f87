package middleware

import (
	"net/http"
	"time"

	"github.com/wudi/runway/internal/logging"
	"github.com/wudi/runway/internal/reqctx"
)

// LoggingConfig configures the access-log middleware.
type LoggingConfig struct {
	// SkipPaths are endpoint paths that should not be logged.
	SkipPaths []string
	// Enabled gates whether the middleware logs at all, mirroring the
	// LOG_HTTP_REQUESTS configuration flag.
	Enabled bool
}

// DefaultLoggingConfig provides default access-log settings.
var DefaultLoggingConfig = LoggingConfig{Enabled: true}

// Logging creates an access-log middleware with default config.
func Logging() Middleware {
	return LoggingWithConfig(DefaultLoggingConfig)
}

// LoggingWithConfig logs one structured entry per request via
// internal/logging, once the rest of the chain has run, capturing method,
// path, status, latency, client IP and request ID.
func LoggingWithConfig(cfg LoggingConfig) Middleware {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return FromContextual(func(rc *reqctx.RC, next func()) {
		if !cfg.Enabled || skip[rc.Endpoint] {
			next()
			return
		}

		start := time.Now()
		next()
		duration := time.Since(start)

		status := http.StatusOK
		if sw, ok := rc.Response.(interface{ Status() int }); ok {
			status = sw.Status()
		}

		logging.Access(logging.AccessEntry{
			Method:     rc.Method,
			Path:       rc.Endpoint,
			Status:     status,
			DurationMs: duration.Milliseconds(),
			IP:         rc.IP,
			RequestID:  rc.RequestID,
		})
	})
}
