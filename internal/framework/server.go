package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/runway/internal/bodyparser"
	"github.com/wudi/runway/internal/cache"
	"github.com/wudi/runway/internal/config"
	"github.com/wudi/runway/internal/connmgr"
	"github.com/wudi/runway/internal/dispatcher"
	"github.com/wudi/runway/internal/logging"
	"github.com/wudi/runway/internal/metrics"
	"github.com/wudi/runway/internal/middleware"
	"github.com/wudi/runway/internal/ratelimit"
	"github.com/wudi/runway/internal/routetable"
)

// Server is the assembled framework shell: config, route registry,
// dispatcher, and whichever optional components (rate limiter, cache,
// connection manager) the configuration turned on.
type Server struct {
	cfg        *config.Config
	registry   *routetable.Registry
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Collector
	limiter    *ratelimit.Limiter
	cache      *cache.Store
	conns      *connmgr.Manager
	httpServer *http.Server
	logCloser  io.Closer
}

// Builder assembles a Server from a Config, following the teacher's
// chained-builder entrypoint shape (New(cfg).With...().Build()).
type Builder struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *routetable.Registry
}

// New starts a Builder from a resolved Config.
func New(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithLogger supplies an already-constructed logger instead of letting
// Build create one from cfg.LogLevel. Mainly useful for tests, where the
// caller wants the test logger rather than a fresh stdout one.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithRegistry supplies a pre-populated registry, bypassing handler
// auto-discovery entirely. Mainly useful for tests.
func (b *Builder) WithRegistry(r *routetable.Registry) *Builder {
	b.registry = r
	return b
}

// Build wires every component per SPEC_FULL.md's component design and
// returns a Server ready for Run. Connection wiring is best effort: a
// connection failure is logged, not fatal, per spec.md §7 ("connection
// init errors are logged; subsequent handler access to the missing
// connection surfaces as 500"). Cache wiring is not: an unparsable
// cache max-bytes value or a failed cache construction returns an error.
func (b *Builder) Build() (*Server, error) {
	if b.cfg == nil {
		return nil, errors.New("framework: Build called with a nil Config")
	}

	var closer io.Closer
	logger := b.logger
	if logger == nil {
		var err error
		logger, closer, err = logging.New(logging.Config{
			Level:         b.cfg.LogLevel,
			Output:        "stdout",
			LogExceptions: b.cfg.LogExceptions,
		})
		if err != nil {
			return nil, fmt.Errorf("framework: building logger: %w", err)
		}
	}
	logging.SetGlobal(logger)

	registry := b.registry
	if registry == nil {
		registry = routetable.New()
	}

	if b.cfg.DirTargets != "" {
		if err := DiscoverHandlers(b.cfg.DirTargets, registry); err != nil {
			return nil, fmt.Errorf("framework: handler discovery: %w", err)
		}
	}

	collector := metrics.NewCollector()

	registry.AddGlobalMiddleware(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.LoggingWithConfig(middleware.LoggingConfig{Enabled: b.cfg.LogHTTPRequests}),
	)

	var limiter *ratelimit.Limiter
	if b.cfg.RateLimit.MaxRequests > 0 {
		limiter = ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Options{
			Algorithm:         ratelimit.Algorithm(b.cfg.RateLimit.Algorithm),
			MaxRequests:       b.cfg.RateLimit.MaxRequests,
			TimeWindowSeconds: b.cfg.RateLimit.WindowSeconds,
		})
		registry.AddGlobalMiddleware(ratelimit.Middleware(ratelimit.MiddlewareConfig{
			Limiter:      limiter,
			KeyGenerator: ratelimit.ByIP(),
		}))
	}

	var cacheStore *cache.Store
	if b.cfg.Cache.MaxBytes != "" {
		maxBytes, err := cache.ParseMaxBytes(b.cfg.Cache.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("framework: parsing cache.max_bytes: %w", err)
		}
		cacheStore, err = cache.New(cache.Config{
			MaxBytes: maxBytes,
			Encrypt:  b.cfg.Cache.Encrypt,
			Metrics:  collector,
		})
		if err != nil {
			return nil, fmt.Errorf("framework: building cache: %w", err)
		}
	}

	conns := connmgr.New(func(ev connmgr.Event) {
		if ev.Err != nil {
			logging.Error("connection event", zap.String("type", string(ev.Type)), zap.String("kind", string(ev.Kind)), zap.Error(ev.Err))
			return
		}
		logging.Debug("connection event", zap.String("type", string(ev.Type)), zap.String("kind", string(ev.Kind)))
	})
	wireConnections(conns, b.cfg)

	bodyCfg := bodyparser.Config{MaxSize: b.cfg.BodyMaxSize, Timeout: b.cfg.BodyTimeout()}
	disp := dispatcher.New(registry, bodyCfg, collector)

	return &Server{
		cfg:        b.cfg,
		registry:   registry,
		dispatcher: disp,
		metrics:    collector,
		limiter:    limiter,
		cache:      cacheStore,
		conns:      conns,
		logCloser:  closer,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", b.cfg.Port),
			Handler:           disp,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// wireConnections starts background connections for whichever of
// RedisURL/MongoURL the config set, best effort.
func wireConnections(conns *connmgr.Manager, cfg *config.Config) {
	ctx := context.Background()
	if cfg.RedisURL != "" {
		if _, err := conns.InitializeConnection(ctx, connmgr.TypeRedis, connmgr.RedisConfig{Addrs: []string{cfg.RedisURL}}); err != nil {
			logging.Error("redis connection failed at startup", zap.Error(err))
		}
	}
	if cfg.MongoURL != "" {
		if _, err := conns.InitializeConnection(ctx, connmgr.TypeMongo, connmgr.MongoConfig{URI: cfg.MongoURL}); err != nil {
			logging.Error("mongo connection failed at startup", zap.Error(err))
		}
	}
}

// Registry exposes the route registry, mainly so a caller that isn't
// using handler auto-discovery can register endpoints directly.
func (s *Server) Registry() *routetable.Registry { return s.registry }

// Metrics exposes the Prometheus collector so a caller can mount its
// Handler() on an admin listener.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Cache exposes the LRU cache store, or nil if the config never set
// cache.max_bytes.
func (s *Server) Cache() *cache.Store { return s.cache }

// Connections exposes the connection manager.
func (s *Server) Connections() *connmgr.Manager { return s.conns }

// Run starts the HTTP listener and blocks until SIGINT/SIGTERM, then
// shuts down gracefully, per the teacher's Run/Shutdown split.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		logging.Info("shutting down gracefully")
		return s.Shutdown(30 * time.Second)
	}
}

// Shutdown stops the HTTP listener and closes every open connection.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.conns.CloseAllConnections(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing connections: %w", err))
	}
	logging.Sync()
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}

	return errors.Join(errs...)
}
