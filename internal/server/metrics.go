package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry so
// tests can run several servers without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	transformsTotal   *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec
	registrySize      prometheus.Gauge
}

// NewMetrics builds the collector set and registers runtime collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		transformsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "transformer",
			Name:      "transforms_total",
			Help:      "Transform requests by stylesheet and outcome.",
		}, []string{"stylesheet", "outcome"}),
		transformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "transformer",
			Name:      "transform_duration_seconds",
			Help:      "Transform latency by stylesheet.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stylesheet"}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transformer",
			Name:      "registry_stylesheets",
			Help:      "Number of compiled stylesheets in the registry.",
		}),
	}

	reg.MustRegister(
		m.transformsTotal,
		m.transformDuration,
		m.registrySize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTransform records one transform attempt.
func (m *Metrics) ObserveTransform(stylesheet string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.transformsTotal.WithLabelValues(stylesheet, outcome).Inc()
	m.transformDuration.WithLabelValues(stylesheet).Observe(time.Since(start).Seconds())
}

// SetRegistrySize updates the registry size gauge.
func (m *Metrics) SetRegistrySize(n int) {
	m.registrySize.Set(float64(n))
}

// Handler exposes the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
