package middleware

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/wudi/runway/internal/httperr"
	"github.com/wudi/runway/internal/logging"
	"github.com/wudi/runway/internal/reqctx"
)

// RecoveryConfig configures the recovery middleware.
type RecoveryConfig struct {
	// PrintStack includes a stack trace in the log entry for a panic.
	PrintStack bool
	// LogFunc is called when a panic occurs, in place of the default
	// structured log entry.
	LogFunc func(err any, stack []byte)
}

// DefaultRecoveryConfig provides default recovery settings.
var DefaultRecoveryConfig = RecoveryConfig{
	PrintStack: true,
	LogFunc:    defaultLogFunc,
}

func defaultLogFunc(err any, stack []byte) {
	logging.Error("panic recovered",
		zap.Any("error", err),
		zap.ByteString("stack", stack),
	)
}

// Recovery creates a panic-recovery middleware with default config. It
// must sit ahead of every other middleware in the chain so a panic
// anywhere downstream is still converted into a 500 response rather than
// crashing the server goroutine (spec.md §5's per-request task model).
func Recovery() Middleware {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig creates a recovery middleware with custom config.
func RecoveryWithConfig(cfg RecoveryConfig) Middleware {
	return FromContextual(func(rc *reqctx.RC, next func()) {
		defer func() {
			if err := recover(); err != nil {
				var stack []byte
				if cfg.PrintStack {
					stack = debug.Stack()
				}
				if cfg.LogFunc != nil {
					cfg.LogFunc(err, stack)
				}

				resolved := httperr.Internal.WithDetails(fmt.Sprintf("panic: %v", err))
				if rc.RequestID != "" {
					resolved = resolved.WithRequestID(rc.RequestID)
				}
				rc.SendError(resolved)
			}
		}()

		next()
	})
}

// RecoveryWithWriter creates a recovery middleware that logs through a
// custom formatting function instead of the structured logger.
func RecoveryWithWriter(logFunc func(format string, args ...any)) Middleware {
	return RecoveryWithConfig(RecoveryConfig{
		PrintStack: true,
		LogFunc: func(err any, stack []byte) {
			logFunc("[PANIC] %v\n%s", err, stack)
		},
	})
}
