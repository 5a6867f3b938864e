package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Methods are
// safe to call on a nil collector.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Job metrics
	JobTransitions *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	JobsInFlight   prometheus.Gauge

	// Tree metrics
	TreesMaterialized prometheus.Counter
	NodesMaterialized prometheus.Counter
	DanglingLeaves    prometheus.Counter

	// Orchestrator metrics
	OrchestratorSteps *prometheus.CounterVec
	RunOutcomes       *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		JobTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_transitions_total",
				Help:      "Generation job transitions by target status",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Time from processing to a terminal status",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status", "path"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_in_flight",
				Help:      "Jobs currently processing in this process",
			},
		),
		TreesMaterialized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trees_materialized_total",
				Help:      "Trees committed by the materializer",
			},
		),
		NodesMaterialized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_materialized_total",
				Help:      "Nodes committed by the materializer",
			},
		),
		DanglingLeaves: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dangling_leaves_total",
				Help:      "Non-ending nodes persisted without options",
			},
		),
		OrchestratorSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orchestrator_steps_total",
				Help:      "Orchestrator steps by kind",
			},
			[]string{"kind"},
		),
		RunOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orchestrator_run_outcomes_total",
				Help:      "Orchestrator calls by resulting phase",
			},
			[]string{"phase"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.JobTransitions,
		c.JobDuration,
		c.JobsInFlight,
		c.TreesMaterialized,
		c.NodesMaterialized,
		c.DanglingLeaves,
		c.OrchestratorSteps,
		c.RunOutcomes,
	)

	return c
}

// Handler exposes the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordJobTransition counts a job moving into status
func (c *Collector) RecordJobTransition(status string) {
	if c == nil {
		return
	}
	c.JobTransitions.WithLabelValues(status).Inc()
}

// RecordJobFinished observes how long a job spent processing
func (c *Collector) RecordJobFinished(status, path string, duration time.Duration) {
	if c == nil {
		return
	}
	c.JobDuration.WithLabelValues(status, path).Observe(duration.Seconds())
}

// JobStarted and JobEnded track in-flight jobs
func (c *Collector) JobStarted() {
	if c != nil {
		c.JobsInFlight.Inc()
	}
}

func (c *Collector) JobEnded() {
	if c != nil {
		c.JobsInFlight.Dec()
	}
}

// RecordMaterialization counts a committed tree
func (c *Collector) RecordMaterialization(nodes, dangling int) {
	if c == nil {
		return
	}
	c.TreesMaterialized.Inc()
	c.NodesMaterialized.Add(float64(nodes))
	c.DanglingLeaves.Add(float64(dangling))
}

// RecordStep counts one orchestrator step of the given kind
func (c *Collector) RecordStep(kind string) {
	if c == nil {
		return
	}
	c.OrchestratorSteps.WithLabelValues(kind).Inc()
}

// RecordRunOutcome counts the phase an orchestrator call ended in
func (c *Collector) RecordRunOutcome(phase string) {
	if c == nil {
		return
	}
	c.RunOutcomes.WithLabelValues(phase).Inc()
}
