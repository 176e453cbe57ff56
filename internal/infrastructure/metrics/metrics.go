package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service on its own registry
type Metrics struct {
	registry *prometheus.Registry

	TransitionsTotal    *prometheus.CounterVec
	CascadesTotal       *prometheus.CounterVec
	SignaturesTotal     *prometheus.CounterVec
	SweepActionsTotal   *prometheus.CounterVec
	EventsTotal         *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_transitions_total",
				Help: "Total number of requested status transitions by entity kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		CascadesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_cascades_total",
				Help: "Total number of cascade steps by target kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		SignaturesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_signature_submissions_total",
				Help: "Total number of signature submissions by outcome",
			},
			[]string{"outcome"},
		),
		SweepActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_sweep_actions_total",
				Help: "Total number of records changed by the retention sweeper by pass",
			},
			[]string{"pass"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_events_total",
				Help: "Total number of dispatched domain events by type",
			},
			[]string{"type"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealflow_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.TransitionsTotal,
		m.CascadesTotal,
		m.SignaturesTotal,
		m.SweepActionsTotal,
		m.EventsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) TransitionObserved(kind, outcome string) {
	m.TransitionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) CascadeObserved(kind, outcome string) {
	m.CascadesTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SubmissionObserved(outcome string) {
	m.SignaturesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SweepObserved(pass string, count int) {
	if count > 0 {
		m.SweepActionsTotal.WithLabelValues(pass).Add(float64(count))
	}
}

func (m *Metrics) EventObserved(eventType string) {
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RequestObserved(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
