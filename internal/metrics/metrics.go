// Package metrics provides Prometheus telemetry for the lottery engine and
// its HTTP surface. Each Collector owns a private registry so tests and
// multiple engines in one process do not collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector provides engine and HTTP metrics collection.
type Collector struct {
	registry *prometheus.Registry

	// Engine metrics
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	operationFailures *prometheus.CounterVec
	entriesTotal      *prometheus.CounterVec
	entryValue        *prometheus.HistogramVec
	potValue          prometheus.Histogram
	payoutTotal       *prometheus.CounterVec
	roomTransitions   *prometheus.CounterVec
	compensations     *prometheus.CounterVec

	// HTTP metrics
	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector registered under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "lottery"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of engine operations by result",
		},
		[]string{"operation", "result"},
	)

	c.operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Time taken by engine operations, including collaborator calls",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"operation", "result"},
	)

	c.operationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_failures_total",
			Help:      "Failed engine operations by error kind",
		},
		[]string{"operation", "kind"},
	)

	c.entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "entries_total",
			Help:      "Recorded room entries by deposit kind",
		},
		[]string{"kind"},
	)

	c.entryValue = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "entry_weighted_value",
			Help:      "Weighted value of recorded entries",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 12),
		},
		[]string{"kind"},
	)

	c.potValue = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "pot_value",
			Help:      "Pot total at the time a winner is drawn",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 12),
		},
	)

	c.payoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "payout_total",
			Help:      "Raw amount paid to winners by asset (native for the native asset)",
		},
		[]string{"asset"},
	)

	c.roomTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "room_transitions_total",
			Help:      "Room lifecycle transitions by target phase",
		},
		[]string{"status"},
	)

	c.compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "compensations_total",
			Help:      "Reverse transfers issued after a failed operation",
		},
		[]string{"result"},
	)

	c.httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
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
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	c.registry.MustRegister(
		c.operationsTotal,
		c.operationLatency,
		c.operationFailures,
		c.entriesTotal,
		c.entryValue,
		c.potValue,
		c.payoutTotal,
		c.roomTransitions,
		c.compensations,
		c.httpInFlight,
		c.httpRequests,
		c.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	return c
}

// Registry exposes the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordOperation records the outcome and latency of an engine operation.
func (c *Collector) RecordOperation(operation string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.operationsTotal.WithLabelValues(operation, result).Inc()
	c.operationLatency.WithLabelValues(operation, result).Observe(d.Seconds())
}

// RecordFailure records a failed operation by error kind.
func (c *Collector) RecordFailure(operation, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	c.operationFailures.WithLabelValues(operation, kind).Inc()
}

// RecordEntry records an accepted entry.
func (c *Collector) RecordEntry(kind string, weightedValue uint64) {
	c.entriesTotal.WithLabelValues(kind).Inc()
	c.entryValue.WithLabelValues(kind).Observe(float64(weightedValue))
}

// RecordDraw records the pot total of a completed draw.
func (c *Collector) RecordDraw(total uint64) {
	c.potValue.Observe(float64(total))
}

// RecordPayout records an amount transferred to a winner.
func (c *Collector) RecordPayout(asset string, amount uint64) {
	if asset == "" {
		asset = "native"
	}
	c.payoutTotal.WithLabelValues(asset).Add(float64(amount))
}

// RecordRoomTransition records a room entering status.
func (c *Collector) RecordRoomTransition(status string) {
	c.roomTransitions.WithLabelValues(status).Inc()
}

// RecordCompensation records a reverse transfer attempt.
func (c *Collector) RecordCompensation(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.compensations.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path, status string, d time.Duration) {
	c.httpRequests.WithLabelValues(method, path, status).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// IncrementInFlight marks the start of an HTTP request.
func (c *Collector) IncrementInFlight() { c.httpInFlight.Inc() }

// DecrementInFlight marks the end of an HTTP request.
func (c *Collector) DecrementInFlight() { c.httpInFlight.Dec() }

// NoOpCollector is a metrics collector that discards all metrics.
type NoOpCollector struct{}

// NewNoOpCollector creates a no-op metrics collector.
func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (*NoOpCollector) RecordOperation(operation string, d time.Duration, err error)   {}
func (*NoOpCollector) RecordFailure(operation, kind string)                           {}
func (*NoOpCollector) RecordEntry(kind string, weightedValue uint64)                  {}
func (*NoOpCollector) RecordDraw(total uint64)                                        {}
func (*NoOpCollector) RecordPayout(asset string, amount uint64)                       {}
func (*NoOpCollector) RecordRoomTransition(status string)                             {}
func (*NoOpCollector) RecordCompensation(err error)                                   {}
func (*NoOpCollector) RecordHTTPRequest(method, path, status string, d time.Duration) {}
func (*NoOpCollector) IncrementInFlight()                                             {}
func (*NoOpCollector) DecrementInFlight()                                             {}

// EngineRecorder is the subset of metrics used by the settlement engine.
type EngineRecorder interface {
	RecordOperation(operation string, d time.Duration, err error)
	RecordFailure(operation, kind string)
	RecordEntry(kind string, weightedValue uint64)
	RecordDraw(total uint64)
	RecordPayout(asset string, amount uint64)
	RecordRoomTransition(status string)
	RecordCompensation(err error)
}

// HTTPRecorder is the subset of metrics used by HTTP middleware.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path, status string, d time.Duration)
	IncrementInFlight()
	DecrementInFlight()
}

// Verify interface compliance
var (
	_ EngineRecorder = (*Collector)(nil)
	_ EngineRecorder = (*NoOpCollector)(nil)
	_ HTTPRecorder   = (*Collector)(nil)
	_ HTTPRecorder   = (*NoOpCollector)(nil)
)
