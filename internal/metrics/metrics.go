// Package metrics exports cache and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-repository-query/cache"
)

const namespace = "querycache"

var _ cache.Recorder = (*Metrics)(nil)

// Metrics holds the collectors of one registry. It records cache events as
// a cache.Recorder and HTTP traffic through Middleware.
type Metrics struct {
	gatherer prometheus.Gatherer

	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	cacheExpired     *prometheus.CounterVec
	cacheStoreErrors *prometheus.CounterVec
	cacheInvalidated *prometheus.CounterVec
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New registers the collectors with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors with reg and serves gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups served from a fresh entry.",
		}, []string{"namespace"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that ran the query.",
		}, []string{"namespace"}),
		cacheExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expired_total",
			Help:      "Expired entries removed on lookup.",
		}, []string{"namespace"}),
		cacheStoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_store_errors_total",
			Help:      "Cache store or codec failures that were bypassed.",
		}, []string{"op"}),
		cacheInvalidated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidated_keys_total",
			Help:      "Keys dropped by write-triggered invalidation.",
		}, []string{"namespace"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Hit implements cache.Recorder.
func (m *Metrics) Hit(ns string) { m.cacheHits.WithLabelValues(ns).Inc() }

// Miss implements cache.Recorder.
func (m *Metrics) Miss(ns string) { m.cacheMisses.WithLabelValues(ns).Inc() }

// Expired implements cache.Recorder.
func (m *Metrics) Expired(ns string) { m.cacheExpired.WithLabelValues(ns).Inc() }

// StoreError implements cache.Recorder.
func (m *Metrics) StoreError(op string) { m.cacheStoreErrors.WithLabelValues(op).Inc() }

// Invalidated implements cache.Recorder.
func (m *Metrics) Invalidated(ns string, keys int) {
	m.cacheInvalidated.WithLabelValues(ns).Add(float64(keys))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count and duration, labelled with the chi
// route pattern so ids do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
