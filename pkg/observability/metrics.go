package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreErrorsTotal       *prometheus.CounterVec

	// Resolver metrics
	ResolveTotal        *prometheus.CounterVec
	ResolveDuration     prometheus.Histogram
	ResolveCacheHits    prometheus.Counter
	ResolveCacheMisses  prometheus.Counter

	// Menu metrics
	MenuRetireCascadeSize prometheus.Histogram
	MenuAccessibleTotal   prometheus.Counter

	// Database pool metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_store_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"store", "operation"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_store_operation_duration_seconds",
				Help:    "Store operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"store", "operation"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_store_errors_total",
				Help: "Total number of store operation failures",
			},
			[]string{"store", "operation"},
		),
		ResolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_resolve_total",
				Help: "Total number of effective-permission resolutions",
			},
			[]string{"outcome"},
		),
		ResolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_resolve_duration_seconds",
				Help:    "Effective-permission resolution duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
			},
		),
		ResolveCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_resolve_cache_hits_total",
				Help: "Resolver cache hits",
			},
		),
		ResolveCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_resolve_cache_misses_total",
				Help: "Resolver cache misses",
			},
		),
		MenuRetireCascadeSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_menu_retire_cascade_size",
				Help:    "Number of nodes retired per cascade",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		MenuAccessibleTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_menu_accessible_requests_total",
				Help: "Total number of accessible-menu queries",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_db_connections_active",
				Help: "Number of database connections currently in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.StoreErrorsTotal,
		m.ResolveTotal,
		m.ResolveDuration,
		m.ResolveCacheHits,
		m.ResolveCacheMisses,
		m.MenuRetireCascadeSize,
		m.MenuAccessibleTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStoreOperation records a store operation and its outcome
func (m *Metrics) ObserveStoreOperation(store, operation string, start time.Time, err error) {
	m.StoreOperationsTotal.WithLabelValues(store, operation).Inc()
	m.StoreOperationDuration.WithLabelValues(store, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(store, operation).Inc()
	}
}

// ObserveResolve records a permission resolution and its outcome
func (m *Metrics) ObserveResolve(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ResolveTotal.WithLabelValues(outcome).Inc()
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments an HTTP handler with request metrics.
// The path label uses the route template, not the raw URL, to bound cardinality.
func (m *Metrics) HTTPMiddleware(routeTemplate func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if routeTemplate != nil {
				if tmpl := routeTemplate(r); tmpl != "" {
					path = tmpl
				}
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
