// Package metrics holds the Prometheus collectors of the ingress server and
// an Echo middleware recording admin HTTP request metrics.
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

// Metrics is a set of collectors registered on their own registry, so that
// several servers (and tests) can run in one process.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal   *prometheus.CounterVec
	ActiveConnections  prometheus.Gauge
	LinesReceived      prometheus.Counter
	LinesSent          prometheus.Counter
	LineTooLong        prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	TLSUpgrades        prometheus.Counter

	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		ConnectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircgate_connections_total",
			Help: "Accepted client connections",
		}, []string{"secure"}),
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "ircgate_active_connections",
			Help: "Client connections currently open",
		}),
		LinesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "ircgate_lines_received_total",
			Help: "Protocol lines decoded from clients",
		}),
		LinesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "ircgate_lines_sent_total",
			Help: "Protocol lines written to clients",
		}),
		LineTooLong: f.NewCounter(prometheus.CounterOpts{
			Name: "ircgate_line_too_long_total",
			Help: "Connections closed for exceeding the maximum line length",
		}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircgate_validation_failures_total",
			Help: "Commands rejected by structural validation",
		}, []string{"command", "kind"}),
		TLSUpgrades: f.NewCounter(prometheus.CounterOpts{
			Name: "ircgate_starttls_upgrades_total",
			Help: "Plain connections upgraded with STARTTLS",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ircgate_http_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ircgate_http_requests_total",
			Help: "Admin HTTP requests by status code",
		}, []string{"path", "method", "code"}),
	}
}

// Secure returns the label value for the secure dimension.
func Secure(secure bool) string {
	return strconv.FormatBool(secure)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Middleware returns Echo middleware recording request latency and status
// codes per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			method := c.Request().Method
			status := c.Response().Status

			m.RequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()

			return nil
		}
	}
}
