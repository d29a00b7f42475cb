package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the daemon and the result cache.
// A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestSize      *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Cache metrics
	cacheHitsTotal        *prometheus.CounterVec
	cacheMissesTotal      prometheus.Counter
	cacheCoalescedTotal   prometheus.Counter
	cacheComputations     *prometheus.CounterVec
	cacheComputeDuration  *prometheus.HistogramVec
	cacheStoreErrorsTotal *prometheus.CounterVec
	cacheEntries          prometheus.Gauge
	cacheCompactions      *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectpack_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspectpack_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspectpack_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inspectpack_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectpack_cache_hits_total",
				Help: "Total number of cache hits by tier",
			},
			[]string{"tier"},
		),
		cacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inspectpack_cache_misses_total",
				Help: "Total number of lookups that required a computation",
			},
		),
		cacheCoalescedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inspectpack_cache_coalesced_total",
				Help: "Total number of requests that shared an in-flight computation",
			},
		),
		cacheComputations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectpack_cache_computations_total",
				Help: "Total number of analyses run by the cache",
			},
			[]string{"kind", "status"},
		),
		cacheComputeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "inspectpack_cache_compute_duration_seconds",
				Help:    "Analysis latency of cache misses in seconds",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
		cacheStoreErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectpack_cache_store_errors_total",
				Help: "Total number of durable store failures",
			},
			[]string{"operation"},
		),
		cacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inspectpack_cache_entries",
				Help: "Current number of entries in the durable store",
			},
		),
		cacheCompactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inspectpack_cache_compactions_total",
				Help: "Total number of store compactions",
			},
			[]string{"status"},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "inspectpack_system_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		requestSize := len(c.Body())
		method := c.Method()

		err := c.Next()

		path := routePath(c)
		status := statusClass(c.Response().StatusCode())
		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))

		return err
	}
}

// RecordCacheHit records a hit in the "memory" or "store" tier
func (m *Metrics) RecordCacheHit(tier string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a lookup that found nothing
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}

// RecordCacheCoalesced records a caller that joined an in-flight computation
func (m *Metrics) RecordCacheCoalesced() {
	if m == nil {
		return
	}
	m.cacheCoalescedTotal.Inc()
}

// RecordCacheComputation records one analysis run on a cache miss
func (m *Metrics) RecordCacheComputation(kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.cacheComputations.WithLabelValues(kind, status).Inc()
	m.cacheComputeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCacheStoreError records a failed store operation
func (m *Metrics) RecordCacheStoreError(operation string) {
	if m == nil {
		return
	}
	m.cacheStoreErrorsTotal.WithLabelValues(operation).Inc()
}

// UpdateCacheEntries sets the durable entry count
func (m *Metrics) UpdateCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

// RecordCompaction records a store compaction
func (m *Metrics) RecordCompaction(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.cacheCompactions.WithLabelValues(status).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	if m == nil {
		return
	}
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes the registered metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// routePath labels requests by route pattern to keep cardinality bounded
func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	if len(c.Path()) > 50 {
		return "long_path"
	}
	return c.Path()
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
