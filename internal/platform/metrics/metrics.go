// Package metrics exposes Prometheus counters for the triage pipeline and the
// HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triage"

// Metrics holds every collector, registered on its own registry so tests can
// build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	Rejections    *prometheus.CounterVec
	Priorities    *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	AuditFailures *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vitals_rejected_total",
			Help:      "Vital sign submissions rejected before triage, by reason.",
		}, []string{"reason"}),
		Priorities: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "priority_assigned_total",
			Help:      "Triage priorities assigned, by level.",
		}, []string{"priority"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "High priority notification attempts, by outcome.",
		}, []string{"outcome"}),
		AuditFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}, []string{"action", "mode"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}
}

// -- Pipeline hooks --

func (m *Metrics) VitalsRejected(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) PriorityAssigned(priority int) {
	m.Priorities.WithLabelValues(strconv.Itoa(priority)).Inc()
}

func (m *Metrics) NotificationOutcome(outcome string) {
	m.Notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuditWriteFailed(action string, async bool) {
	mode := "sync"
	if async {
		mode = "async"
	}
	m.AuditFailures.WithLabelValues(action, mode).Inc()
}

// -- HTTP --

// Middleware records request counts and latency labelled by route template,
// so path parameters do not blow up cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.HTTPInFlight.Inc()
			defer m.HTTPInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Registry is exposed for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
