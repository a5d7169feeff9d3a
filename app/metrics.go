package app

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EstimatesTotal       *prometheus.CounterVec // source, outcome
	GateDecisionsTotal   *prometheus.CounterVec // pro|free|denied
	UpstreamErrorsTotal  *prometheus.CounterVec
	PersistFailuresTotal prometheus.Counter
	WebhookEventsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickcalories_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quickcalories_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		EstimatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickcalories_estimates_total",
				Help: "Estimate requests by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickcalories_gate_decisions_total",
				Help: "Estimate gate decisions",
			},
			[]string{"decision"},
		),
		UpstreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickcalories_upstream_errors_total",
				Help: "Failed calls to external providers",
			},
			[]string{"provider"},
		),
		PersistFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quickcalories_persist_failures_total",
				Help: "Estimates returned to the caller but not saved to history",
			},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickcalories_webhook_events_total",
				Help: "Applied Stripe webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EstimatesTotal,
		m.GateDecisionsTotal,
		m.UpstreamErrorsTotal,
		m.PersistFailuresTotal,
		m.WebhookEventsTotal,
	)
	return m
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
	return gin.WrapH(h)
}

// ObserveWebhook matches events.Observer.
func (m *Metrics) ObserveWebhook(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) estimate(source, outcome string) {
	if m == nil {
		return
	}
	m.EstimatesTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) gateDecision(decision string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) upstream(provider string) {
	if m == nil {
		return
	}
	m.UpstreamErrorsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) persistFailed() {
	if m == nil {
		return
	}
	m.PersistFailuresTotal.Inc()
}
