package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var requestDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics holds the Prometheus collectors for the service and HTTP layer.
// Each instance owns its registry so tests can build several.
type Metrics struct {
	registry *prometheus.Registry

	generated  *prometheus.CounterVec
	registered *prometheus.CounterVec
	collisions *prometheus.CounterVec
	attempts   *prometheus.HistogramVec
	exhausted  *prometheus.CounterVec
	transition *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// NewMetrics registers every collector in a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sctid_generated_total",
			Help: "Identifiers generated.",
		}, []string{"namespace", "category"}),
		registered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sctid_registered_total",
			Help: "Externally allocated identifiers registered.",
		}, []string{"namespace", "category"}),
		collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sctid_collisions_total",
			Help: "Proposed identifiers discarded because they already exist.",
		}, []string{"namespace", "category"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sctid_generate_attempts",
			Help:    "Strategy attempts needed per generate call.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}, []string{"category"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sctid_allocation_exhausted_total",
			Help: "Generate calls that ran out of attempts.",
		}, []string{"namespace", "category"}),
		transition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sctid_status_transitions_total",
			Help: "Identifier status changes.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sctid_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sctid_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: requestDurationBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sctid_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.generated, m.registered, m.collisions, m.attempts, m.exhausted, m.transition,
		m.requests, m.requestDuration, m.inFlight,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The methods below accept a nil receiver so callers can run without metrics.

func (m *Metrics) Generated(ns, cat string, n int) {
	if m == nil {
		return
	}
	m.generated.WithLabelValues(ns, cat).Add(float64(n))
}

func (m *Metrics) Registered(ns, cat string, n int) {
	if m == nil {
		return
	}
	m.registered.WithLabelValues(ns, cat).Add(float64(n))
}

func (m *Metrics) Collisions(ns, cat string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.collisions.WithLabelValues(ns, cat).Add(float64(n))
}

func (m *Metrics) Attempts(cat string, n int) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(cat).Observe(float64(n))
}

func (m *Metrics) Exhausted(ns, cat string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(ns, cat).Inc()
}

func (m *Metrics) Transitioned(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.transition.WithLabelValues(status).Add(float64(n))
}

// BeginRequest marks a request in flight and returns the function that
// records its outcome. The route is passed at the end since routers only
// resolve it while serving.
func (m *Metrics) BeginRequest() func(method, route, code string, dur time.Duration) {
	if m == nil {
		return func(string, string, string, time.Duration) {}
	}
	m.inFlight.Inc()
	return func(method, route, code string, dur time.Duration) {
		m.inFlight.Dec()
		m.requests.WithLabelValues(method, route, code).Inc()
		m.requestDuration.WithLabelValues(method, route).Observe(dur.Seconds())
	}
}
