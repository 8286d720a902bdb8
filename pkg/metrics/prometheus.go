package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stageDuration      *prometheus.HistogramVec
	runsTotal          *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	cacheAccess        *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	admissionsRejected *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
	handlerErrors      *prometheus.CounterVec
	queueDepth         prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "patternpulse_stage_duration_seconds",
				Help:    "Duration of pipeline stage executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternpulse_runs_total",
				Help: "Total pipeline runs by outcome",
			},
			[]string{"symbol", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		cacheAccess: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternpulse_cache_access_total",
				Help: "Result cache accesses by namespace and outcome",
			},
			[]string{"namespace", "outcome"},
		),
		breakerTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternpulse_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"symbol", "state"},
		),
		admissionsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternpulse_admissions_rejected_total",
				Help: "Work items refused by an open circuit",
			},
			[]string{"symbol"},
		),
		eventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternpulse_events_published_total",
				Help: "Events published on the internal bus",
			},
			[]string{"type"},
		),
		handlerErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patternpulse_event_handler_errors_total",
				Help: "Event handler failures, isolated per handler",
			},
			[]string{"type"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "patternpulse_queue_depth",
				Help: "Current number of queued work items",
			},
		),
	}
}

// RecordStageDuration records one stage invocation's wall time.
func (r *Recorder) RecordStageDuration(stage string, seconds float64) {
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordRun records a pipeline run outcome ("success" or "failure").
func (r *Recorder) RecordRun(symbol, result string) {
	r.runsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCacheAccess records a result-cache hit or miss.
func (r *Recorder) RecordCacheAccess(namespace string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheAccess.WithLabelValues(namespace, outcome).Inc()
}

// RecordBreakerTransition records a circuit state change.
func (r *Recorder) RecordBreakerTransition(symbol, state string) {
	r.breakerTransitions.WithLabelValues(symbol, state).Inc()
}

// RecordAdmissionRejected records a work item refused at admission.
func (r *Recorder) RecordAdmissionRejected(symbol string) {
	r.admissionsRejected.WithLabelValues(symbol).Inc()
}

// RecordEventPublished records one bus publish.
func (r *Recorder) RecordEventPublished(eventType string) {
	r.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordHandlerError records one isolated handler failure.
func (r *Recorder) RecordHandlerError(eventType string) {
	r.handlerErrors.WithLabelValues(eventType).Inc()
}

// SetQueueDepth tracks the work queue's current depth.
func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}
