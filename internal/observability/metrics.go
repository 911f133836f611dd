package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "telecheck"

// Metrics holds the service's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver so tests can omit metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	authOutcomes    *prometheus.CounterVec
	demoFallbacks   *prometheus.CounterVec
	userCache       *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Error responses by route, method and error code.",
		}, []string{"path", "method", "code"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication and authorization outcomes by code.",
		}, []string{"code"}),
		demoFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_demo_fallback_total",
			Help:      "Requests admitted with the synthetic demo identity.",
		}, []string{"reason"}),
		userCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_cache_lookups_total",
			Help:      "User cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.errors,
		m.authOutcomes,
		m.demoFallbacks,
		m.userCache,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordAuthOutcome counts an authentication or role-gate result.
func (m *Metrics) RecordAuthOutcome(code string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(code).Inc()
}

// RecordDemoFallback counts a demo identity grant.
func (m *Metrics) RecordDemoFallback(reason string) {
	if m == nil {
		return
	}
	m.demoFallbacks.WithLabelValues(reason).Inc()
}

// RecordUserCache counts a cache lookup result.
func (m *Metrics) RecordUserCache(result string) {
	if m == nil {
		return
	}
	m.userCache.WithLabelValues(result).Inc()
}
