// Package metrics provides Prometheus metrics for Veil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Lifecycle metrics
	ConnectsTotal    prometheus.Counter
	DisconnectsTotal prometheus.Counter
	ConnectFailures  prometheus.Counter

	// System metrics
	Uptime prometheus.GaugeFunc

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered on a private
// registry, plus a tunnel collector reading live manager state.
func New(tunnel prometheus.Collector) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.ConnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_connects_total",
		Help: "Total number of successful connects",
	})
	m.DisconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_disconnects_total",
		Help: "Total number of disconnects",
	})
	m.ConnectFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_connect_failures_total",
		Help: "Total number of failed connect attempts",
	})
	start := time.Now()
	m.Uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "veil_uptime_seconds",
		Help: "Daemon uptime in seconds",
	}, func() float64 {
		return time.Since(start).Seconds()
	})

	m.registry.MustRegister(
		m.ConnectsTotal,
		m.DisconnectsTotal,
		m.ConnectFailures,
		m.Uptime,
	)
	if tunnel != nil {
		m.registry.MustRegister(tunnel)
	}
	m.registry.MustRegister(prometheus.NewGoCollector())

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
