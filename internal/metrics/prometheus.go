package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline run latency, generator call included
	pipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timefreedom_pipeline_seconds",
			Help:    "Report pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"}, // done, repaired, failed
	)

	pipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timefreedom_pipeline_runs_total",
			Help: "Total number of report pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	// Generator call latency by provider
	generatorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timefreedom_generator_latency_seconds",
			Help:    "Generative model call latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90},
		},
		[]string{"provider", "status"},
	)

	generatorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timefreedom_generator_errors_total",
			Help: "Total number of generator failures by provider and kind",
		},
		[]string{"provider", "kind"},
	)

	validationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timefreedom_validation_errors_total",
			Help: "Validator errors by rule and stage",
		},
		[]string{"rule", "stage"}, // stage: initial, revalidated
	)

	coreTasksInjected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timefreedom_core_tasks_injected_total",
			Help: "Core EA tasks added by the finalizing step",
		},
	)

	sideChannelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timefreedom_side_channel_calls_total",
			Help: "Background collaborator calls by channel and status",
		},
		[]string{"channel", "status"}, // status: success, error, skipped
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "timefreedom_circuit_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open)",
		},
		[]string{"dependency"},
	)

	activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "timefreedom_active_pipeline_runs",
			Help: "Current number of in-flight pipeline runs",
		},
	)
)

// RecordPipelineRun records one finished run.
func RecordPipelineRun(durationSeconds float64, outcome string) {
	pipelineDuration.WithLabelValues(outcome).Observe(durationSeconds)
	pipelineRuns.WithLabelValues(outcome).Inc()
}

// RecordGeneratorCall records model call latency
func RecordGeneratorCall(provider string, durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	generatorLatency.WithLabelValues(provider, status).Observe(durationSeconds)
}

// RecordGeneratorError increments the generator error counter
func RecordGeneratorError(provider, kind string) {
	generatorErrors.WithLabelValues(provider, kind).Inc()
}

// RecordValidationError counts one validator error by rule.
func RecordValidationError(rule, stage string) {
	validationErrors.WithLabelValues(rule, stage).Inc()
}

// RecordCoreTasksInjected adds n injected core tasks.
func RecordCoreTasksInjected(n int) {
	if n > 0 {
		coreTasksInjected.Add(float64(n))
	}
}

// RecordSideChannel counts one background collaborator call.
func RecordSideChannel(channel, status string) {
	sideChannelCalls.WithLabelValues(channel, status).Inc()
}

// SetBreakerState publishes a breaker's state as its numeric value.
func SetBreakerState(dependency string, state int) {
	breakerState.WithLabelValues(dependency).Set(float64(state))
}

// IncrementActiveRuns increments the in-flight runs gauge
func IncrementActiveRuns() {
	activeRuns.Inc()
}

// DecrementActiveRuns decrements the in-flight runs gauge
func DecrementActiveRuns() {
	activeRuns.Dec()
}

// GetMetricsHandler returns the HTTP handler for the /metrics endpoint
func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}
