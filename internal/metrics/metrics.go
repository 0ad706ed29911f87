// Package metrics wires the framework's instrumentation points (dispatcher
// request counts/durations, cache hit/miss/eviction counts, cache global
// size) to a Prometheus registry, exposed over HTTP via promhttp.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric this framework exposes, registered against
// its own prometheus.Registry rather than the global default so that
// multiple framework instances in one process (as in tests) don't collide.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	cacheSize      prometheus.Gauge

	rateLimited *prometheus.CounterVec
}

// DefaultBuckets mirror prometheus.DefBuckets; kept as a named var so
// callers constructing a Collector outside NewCollector can reuse them.
var DefaultBuckets = prometheus.DefBuckets

// NewCollector builds a Collector with Go runtime collectors and the
// framework's own metric families already registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_http_requests_total",
			Help: "Total number of HTTP requests handled by the dispatcher.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "runway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route.",
			Buckets: DefaultBuckets,
		}, []string{"route"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_cache_hits_total",
			Help: "Total cache hits, by namespace.",
		}, []string{"namespace"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_cache_misses_total",
			Help: "Total cache misses, by namespace.",
		}, []string{"namespace"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_cache_evictions_total",
			Help: "Total cache evictions, by namespace.",
		}, []string{"namespace"}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "runway_cache_global_size_bytes",
			Help: "Current total size in bytes of all cache namespaces combined.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "runway_rate_limited_total",
			Help: "Total requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
	}

	reg.MustRegister(c.requestsTotal, c.requestDuration, c.cacheHits,
		c.cacheMisses, c.cacheEvictions, c.cacheSize, c.rateLimited)

	return c
}

// Registry exposes the underlying prometheus.Registry, e.g. for tests that
// want to read back collected samples.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns the http.Handler that serves this collector's metrics in
// Prometheus text exposition format, suitable for mounting at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed dispatcher request.
func (c *Collector) RecordRequest(route, method string, statusCode int, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit in the given namespace.
func (c *Collector) RecordCacheHit(namespace string) { c.cacheHits.WithLabelValues(namespace).Inc() }

// RecordCacheMiss records a cache miss in the given namespace.
func (c *Collector) RecordCacheMiss(namespace string) {
	c.cacheMisses.WithLabelValues(namespace).Inc()
}

// RecordCacheEviction records an eviction in the given namespace.
func (c *Collector) RecordCacheEviction(namespace string) {
	c.cacheEvictions.WithLabelValues(namespace).Inc()
}

// SetCacheGlobalSize sets the current combined byte size across namespaces.
func (c *Collector) SetCacheGlobalSize(bytes int64) { c.cacheSize.Set(float64(bytes)) }

// RecordRateLimited records one rate-limit rejection for a route.
func (c *Collector) RecordRateLimited(route string) { c.rateLimited.WithLabelValues(route).Inc() }
