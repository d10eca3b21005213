// Package metrics exposes Prometheus counters for dispatch, correlation and step completion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Correlation outcomes.
const (
	OutcomeProcessed       = "processed"
	OutcomeInvalidEnvelope = "invalid_envelope"
	OutcomeActionNotFound  = "action_not_found"
	OutcomeUserNotFound    = "user_not_found"
	OutcomeMissingResource = "missing_resource"
	OutcomeInvalidMetadata = "invalid_metadata"
	OutcomeStepNotFound    = "step_not_found"
	OutcomeProcessorFailed = "processor_failed"
	OutcomeStoreError      = "store_error"
)

// Results.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultNoop  = "noop"
)

// Metrics wraps the Prometheus collectors of one process. Every method is
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry           *prometheus.Registry
	actionsDispatched  *prometheus.CounterVec
	correlations       *prometheus.CounterVec
	correlationLatency *prometheus.HistogramVec
	stepCompletions    *prometheus.CounterVec
	staleSwept         prometheus.Counter
}

// New creates a metrics registry and registers the action metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	actionsDispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "actions_dispatched_total",
		Help: "Total number of dispatched actions by type and result.",
	}, []string{"type", "result"})

	correlations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "correlations_total",
		Help: "Total number of completion events handled by type and outcome.",
	}, []string{"type", "outcome"})

	correlationLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "correlation_duration_seconds",
		Help:    "Time spent correlating a completion event, processor included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	stepCompletions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "step_completions_total",
		Help: "Total number of step completion attempts by target status and result.",
	}, []string{"status", "result"})

	staleSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stale_actions_swept_total",
		Help: "Total number of stale steps failed by the sweeper.",
	})

	registry.MustRegister(actionsDispatched, correlations, correlationLatency, stepCompletions, staleSwept)

	return &Metrics{
		registry:           registry,
		actionsDispatched:  actionsDispatched,
		correlations:       correlations,
		correlationLatency: correlationLatency,
		stepCompletions:    stepCompletions,
		staleSwept:         staleSwept,
	}
}

// Handler exposes the metrics registry via HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncDispatched(actionType, result string) {
	if m == nil {
		return
	}

	m.actionsDispatched.WithLabelValues(actionType, result).Inc()
}

func (m *Metrics) IncCorrelation(actionType, outcome string) {
	if m == nil {
		return
	}

	m.correlations.WithLabelValues(actionType, outcome).Inc()
}

func (m *Metrics) ObserveCorrelation(actionType string, d time.Duration) {
	if m == nil {
		return
	}

	m.correlationLatency.WithLabelValues(actionType).Observe(d.Seconds())
}

func (m *Metrics) IncStepCompletion(status, result string) {
	if m == nil {
		return
	}

	m.stepCompletions.WithLabelValues(status, result).Inc()
}

func (m *Metrics) IncStaleSwept() {
	if m == nil {
		return
	}

	m.staleSwept.Inc()
}
