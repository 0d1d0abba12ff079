package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountersAndGauge(t *testing.T) {
	RecordGeneratorError("anthropic", "auth")
	if got := testutil.ToFloat64(generatorErrors.WithLabelValues("anthropic", "auth")); got < 1 {
		t.Fatalf("expected generator error counter >= 1, got %v", got)
	}

	RecordValidationError("ea_floor", "initial")
	if got := testutil.ToFloat64(validationErrors.WithLabelValues("ea_floor", "initial")); got < 1 {
		t.Fatalf("expected validation error counter >= 1, got %v", got)
	}

	RecordSideChannel("crm", "error")
	if got := testutil.ToFloat64(sideChannelCalls.WithLabelValues("crm", "error")); got < 1 {
		t.Fatalf("expected side channel counter >= 1, got %v", got)
	}

	before := testutil.ToFloat64(coreTasksInjected)
	RecordCoreTasksInjected(2)
	RecordCoreTasksInjected(0)
	if got := testutil.ToFloat64(coreTasksInjected); got != before+2 {
		t.Fatalf("expected core task counter %v, got %v", before+2, got)
	}

	SetBreakerState("generator", 1)
	if got := testutil.ToFloat64(breakerState.WithLabelValues("generator")); got != 1 {
		t.Fatalf("expected breaker state 1, got %v", got)
	}

	IncrementActiveRuns()
	if got := testutil.ToFloat64(activeRuns); got != 1 {
		t.Fatalf("expected active runs 1, got %v", got)
	}
	DecrementActiveRuns()
	if got := testutil.ToFloat64(activeRuns); got != 0 {
		t.Fatalf("expected active runs 0, got %v", got)
	}
}

func TestPipelineHistogramUpdates(t *testing.T) {
	RecordPipelineRun(1.2, "repaired")

	expected := `
# HELP timefreedom_pipeline_seconds Report pipeline duration in seconds
# TYPE timefreedom_pipeline_seconds histogram
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="0.1"} 0
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="0.5"} 0
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="1"} 0
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="2"} 1
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="5"} 1
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="10"} 1
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="30"} 1
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="60"} 1
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="120"} 1
timefreedom_pipeline_seconds_bucket{outcome="repaired",le="+Inf"} 1
timefreedom_pipeline_seconds_sum{outcome="repaired"} 1.2
timefreedom_pipeline_seconds_count{outcome="repaired"} 1
`
	if err := testutil.CollectAndCompare(pipelineDuration, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected histogram output: %v", err)
	}
}
