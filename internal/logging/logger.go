package logging

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	globalMu     sync.RWMutex

	// exceptionsEnabled mirrors the LOG_EXCEPTIONS config flag most
	// recently passed to New, and gates Exception. It lives outside the
	// Config/New call boundary because the dispatcher's error-sender
	// (reqctx.RC.SendError) calls Exception long after the Config that
	// built the logger has gone out of scope.
	exceptionsEnabled atomic.Bool
)

func init() {
	// Default to a production logger until SetGlobal is called
	globalLogger, _ = zap.NewProduction()
}

// Config holds parameters for creating a logger, plus the two framework
// logging toggles from spec.md's config table (LOG_HTTP_REQUESTS is wired
// by the caller into the access-log middleware directly; LOG_EXCEPTIONS is
// owned here since Exception is a package-level function reachable from
// anywhere in the request path).
type Config struct {
	Level      string // "debug", "info", "warn", "error"
	Output     string // "stdout", "stderr", or file path
	MaxSize    int    // max megabytes before rotation
	MaxBackups int    // old rotated files to keep
	MaxAge     int    // days to retain old files
	Compress   bool   // gzip rotated files
	LocalTime  bool   // use local time in backup filenames

	// Format selects the encoding: "json" (default) for production, or
	// "console" for a human-readable local-dev format. An empty Format
	// with a Level of "debug" implies "console".
	Format string

	// LogExceptions mirrors the LOG_EXCEPTIONS config flag. When false,
	// Exception is a no-op; the dispatcher's error-sender still resolves
	// and writes the HTTP response either way.
	LogExceptions bool
}

// New creates a new zap logger from a Config, and arms the package-level
// Exception gate from cfg.LogExceptions.
//
// When Output is a file path, the returned io.Closer must be closed on shutdown
// to flush and close the underlying log file. For stdout/stderr the closer is nil.
func New(cfg Config) (*zap.Logger, io.Closer, error) {
	exceptionsEnabled.Store(cfg.LogExceptions)

	var lvl zapcore.Level
	switch cfg.Level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	format := cfg.Format
	if format == "" && cfg.Level == "debug" {
		format = "console"
	}

	var encoder zapcore.Encoder
	if format == "console" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "time"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer
	var closer io.Closer

	switch cfg.Output {
	case "", "stdout":
		ws = zapcore.AddSync(os.Stdout)
	case "stderr":
		ws = zapcore.AddSync(os.Stderr)
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  cfg.LocalTime,
		}
		ws = zapcore.AddSync(lj)
		closer = lj
	}

	core := zapcore.NewCore(encoder, ws, lvl)
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)

	return logger, closer, nil
}

// Global returns the global logger.
func Global() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetGlobal sets the global logger.
func SetGlobal(l *zap.Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Info logs at info level using the global logger.
func Info(msg string, fields ...zap.Field) {
	Global().Info(msg, fields...)
}

// Warn logs at warn level using the global logger.
func Warn(msg string, fields ...zap.Field) {
	Global().Warn(msg, fields...)
}

// Error logs at error level using the global logger.
func Error(msg string, fields ...zap.Field) {
	Global().Error(msg, fields...)
}

// Debug logs at debug level using the global logger.
func Debug(msg string, fields ...zap.Field) {
	Global().Debug(msg, fields...)
}

// With creates a child logger with additional fields.
func With(fields ...zap.Field) *zap.Logger {
	return Global().With(fields...)
}

// Sync flushes any buffered log entries.
func Sync() {
	Global().Sync()
}

// AccessEntry is one HTTP access-log record, emitted by the access-log
// middleware when LOG_HTTP_REQUESTS is enabled.
type AccessEntry struct {
	Method     string
	Path       string
	Status     int
	DurationMs int64
	IP         string
	RequestID  string
}

// Access logs an AccessEntry at info level with a stable field set, so
// access logs and application logs share one JSON shape on disk.
func Access(e AccessEntry) {
	fields := []zap.Field{
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.Int("status", e.Status),
		zap.Int64("duration_ms", e.DurationMs),
		zap.String("ip", e.IP),
	}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	Global().Info("http_request", fields...)
}

// Exception logs an error surfaced by the dispatcher's error-sender, and is
// a no-op unless the Config passed to New had LogExceptions set.
func Exception(requestID string, err error) {
	if !exceptionsEnabled.Load() {
		return
	}
	fields := []zap.Field{zap.Error(err)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	Global().Error("unhandled_exception", fields...)
}
