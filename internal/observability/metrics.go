// Package observability provides request logging and Prometheus metrics for the server.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Metrics holds the collectors for one server instance. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	terminations    *prometheus.CounterVec
	pings           prometheus.Counter
	upgradeFailures prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewMetrics creates a collector set on its own registry. visitors is sampled on
// every scrape to report the live session count.
func NewMetrics(visitors func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		terminations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "terminations_total",
				Help:      "Sessions terminated, by exit path.",
			},
			[]string{"reason"},
		),
		pings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "pings_total",
			Help:      "Heartbeat pings sent to peers.",
		}),
		upgradeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "upgrade_failures_total",
			Help:      "Websocket handshakes that failed.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		m.terminations,
		m.pings,
		m.upgradeFailures,
		m.httpRequests,
		m.httpDuration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently connected.",
		}, visitors),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) RecordTermination(reason string) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPing() {
	if m == nil {
		return
	}
	m.pings.Inc()
}

func (m *Metrics) RecordUpgradeFailure() {
	if m == nil {
		return
	}
	m.upgradeFailures.Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RequestMetricsMiddleware records request counts and latency per route.
func (m *Metrics) RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
