// Package dispatcher implements the framework's top-level HTTP entrypoint,
// per spec.md §4.2: match the request against the route table, enhance an
// RC, build and run the middleware chain, and send a response exactly once.
package dispatcher

import (
	"net/http"
	"time"

	"github.com/wudi/runway/internal/bodyparser"
	"github.com/wudi/runway/internal/httperr"
	"github.com/wudi/runway/internal/metrics"
	"github.com/wudi/runway/internal/middleware"
	"github.com/wudi/runway/internal/reqctx"
	"github.com/wudi/runway/internal/routetable"
)

const defaultEntryPage = `<!doctype html><html><head><title>runway</title></head><body>runway is running.</body></html>`

// Dispatcher is the http.Handler every runway server mounts at its root.
type Dispatcher struct {
	Registry   *routetable.Registry
	BodyConfig bodyparser.Config
	Metrics    *metrics.Collector
}

// New builds a Dispatcher bound to a route registry. Metrics may be nil,
// in which case instrumentation is skipped.
func New(registry *routetable.Registry, bodyCfg bodyparser.Config, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{Registry: registry, BodyConfig: bodyCfg, Metrics: collector}
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rc := reqctx.New(w, r)

	endpoint, params, ok := d.Registry.Match(r.URL.Path)
	if !ok {
		if r.URL.Path == "/" {
			rc.Response.Header().Set("Content-Type", "text/html; charset=utf-8")
			rc.Status(http.StatusOK)
			_, _ = rc.Response.Write([]byte(defaultEntryPage))
			d.record(rc, "/", r.Method, http.StatusOK, start)
			return
		}
		rc.SendError(httperr.NotFound)
		d.record(rc, r.URL.Path, r.Method, http.StatusNotFound, start)
		return
	}

	if perr := rc.Enhance(d.BodyConfig); perr != nil {
		rc.SendError(perr)
		d.record(rc, endpoint.Path, r.Method, perr.Code, start)
		return
	}
	rc.MergeParams(params)

	chainMiddlewares := make([]middleware.Middleware, 0, len(d.Registry.GlobalMiddlewares())+len(endpoint.Middlewares))
	chainMiddlewares = append(chainMiddlewares, d.Registry.GlobalMiddlewares()...)
	chainMiddlewares = append(chainMiddlewares, endpoint.Middlewares...)

	chain := middleware.NewChain(chainMiddlewares...)
	d.run(rc, chain, endpoint, start)
}

// run executes the chain for a matched endpoint. A client disconnect is
// checked once, before the chain starts (the chain is then skipped with a
// 504); a step already running is never interrupted, per spec.md §5's
// advisory cancellation policy.
func (d *Dispatcher) run(rc *reqctx.RC, chain *middleware.Chain, endpoint *routetable.Endpoint, start time.Time) {
	select {
	case <-rc.Request.Context().Done():
		if !rc.Sent() {
			rc.SendError(httperr.GatewayTimeout.WithDetails("client disconnected"))
		}
		d.record(rc, endpoint.Path, rc.Request.Method, http.StatusGatewayTimeout, start)
		return
	default:
	}

	chain.Then(endpoint.Handler)(rc)

	if !rc.Sent() {
		rc.SendError(httperr.Internal.WithDetails("handler completed without sending a response"))
	}

	status := http.StatusOK
	if sw, ok := rc.Response.(interface{ Status() int }); ok {
		status = sw.Status()
	}
	d.record(rc, endpoint.Path, rc.Request.Method, status, start)
}

func (d *Dispatcher) record(rc *reqctx.RC, route, method string, status int, start time.Time) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.RecordRequest(route, method, status, time.Since(start))
}
