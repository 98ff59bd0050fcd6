// Package metrics exposes Prometheus collectors for listing workflows and the
// HTTP API. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "marketplace"

// Collector holds the marketplace collectors on a private registry.
type Collector struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	refreshes    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// NewCollector creates a collector. An empty namespace uses DefaultNamespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Workflow runs by operation and result (ok or error kind).",
		},
		[]string{"op", "result"},
	)

	c.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "step_duration_seconds",
			Help:      "Duration of workflow steps, including ledger confirmation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"op", "step", "result"},
	)

	c.refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "refresh_total",
			Help:      "Listing view refreshes by view status.",
		},
		[]string{"status"},
	)

	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "path"},
	)

	c.httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	c.registry.MustRegister(
		c.runs,
		c.stepDuration,
		c.refreshes,
		c.httpRequests,
		c.httpDuration,
		c.httpInFlight,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the collector in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveStep records the duration of one workflow step.
func (c *Collector) ObserveStep(op, step, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(op, step, result).Observe(d.Seconds())
}

// RecordRun counts a finished workflow run.
func (c *Collector) RecordRun(op, result string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(op, result).Inc()
}

// RecordRefresh counts a listing refresh by view status.
func (c *Collector) RecordRefresh(status string) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records one handled request. path should be a route
// template, not the raw URL, to keep label cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, path, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, status).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// IncInFlight increments the in-flight request gauge.
func (c *Collector) IncInFlight() {
	if c == nil {
		return
	}
	c.httpInFlight.Inc()
}

// DecInFlight decrements the in-flight request gauge.
func (c *Collector) DecInFlight() {
	if c == nil {
		return
	}
	c.httpInFlight.Dec()
}
