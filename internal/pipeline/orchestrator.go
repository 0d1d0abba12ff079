package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"

	"timefreedom/internal/generator"
	"timefreedom/internal/lead"
	"timefreedom/internal/logger"
	"timefreedom/internal/metrics"
	"timefreedom/internal/report"
)

const component = "pipeline"

// NewCorrelationID returns an opaque per-run tracing token.
func NewCorrelationID() string {
	return "gen-" + ksuid.New().String()
}

// Outcome is everything a finished run produced.
type Outcome struct {
	CorrelationID  string
	Provider       string
	Result         report.Result
	Initial        report.ValidationResult
	Final          report.ValidationResult
	Repaired       bool
	CoreTasksAdded int
	States         []State
	StartedAt      time.Time
	Duration       time.Duration
}

// RunError is a generator failure annotated with the run's correlation id.
type RunError struct {
	CorrelationID string
	Err           error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%v (correlation id %s)", e.Err, e.CorrelationID)
}

func (e *RunError) Unwrap() error { return e.Err }

// Kind is the generator error kind behind the failure.
func (e *RunError) Kind() generator.Kind { return generator.KindOf(e.Err) }

// Orchestrator sequences generate, validate, repair, re-validate and
// core-task finalization for one lead at a time. It holds no per-run state
// and is safe for concurrent use.
type Orchestrator struct {
	gen      generator.Generator
	rules    report.Rules
	log      *slog.Logger
	archiver Archiver
	now      func() time.Time
}

// NewOrchestrator wires a generator and rule set. A nil logger uses slog's default.
func NewOrchestrator(gen generator.Generator, rules report.Rules, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		gen:   gen,
		rules: rules,
		log:   logger.Component(log, component),
		now:   time.Now,
	}
}

// WithArchiver attaches a run archive. Archive failures never fail a run.
func (o *Orchestrator) WithArchiver(a Archiver) *Orchestrator {
	o.archiver = a
	return o
}

// Rules returns the thresholds the orchestrator validates against.
func (o *Orchestrator) Rules() report.Rules { return o.rules }

// Run executes the pipeline for l. An empty correlationID gets a fresh one.
// On generator failure it returns the partial outcome and a *RunError; every
// other path returns a fully consistent result, even when repair leaves
// residual validation errors.
func (o *Orchestrator) Run(ctx context.Context, correlationID string, l lead.Lead) (*Outcome, error) {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}

	metrics.IncrementActiveRuns()
	defer metrics.DecrementActiveRuns()

	ctx, span := metrics.StartSpan(ctx, "pipeline.run",
		attribute.String("correlation_id", correlationID),
		attribute.String("lead_type", string(l.LeadType)),
		attribute.String("provider", o.gen.Provider()),
	)
	defer span.End()

	run := &runState{
		o:   o,
		sm:  NewStateMachine(),
		out: &Outcome{CorrelationID: correlationID, Provider: o.gen.Provider(), StartedAt: o.now().UTC()},
	}
	o.archiveBegin(ctx, run.out, l)
	logger.LogEvent(ctx, o.log, correlationID, component, "run_received", map[string]any{
		"lead_type": l.LeadType,
		"provider":  run.out.Provider,
	})

	result, err := run.generate(ctx, l)
	if err != nil {
		runErr := &RunError{CorrelationID: correlationID, Err: err}
		run.finish(ctx, "failed", runErr)
		return run.out, runErr
	}

	run.advance(ctx, StateValidating, "")
	initial := report.Validate(result, o.rules)
	run.out.Initial = initial
	run.out.Final = initial
	recordValidation(initial, "initial")
	logger.LogEvent(ctx, o.log, correlationID, component, "report_validated", map[string]any{
		"is_valid": initial.IsValid,
		"errors":   initial.Errors,
		"warnings": len(initial.Warnings),
	})

	if !initial.IsValid && len(initial.Errors) > 0 {
		run.advance(ctx, StateRepairing, strings.Join(initial.Errors, "; "))
		result = report.FixReportIssues(result, initial.Errors, o.rules)
		run.out.Repaired = true

		run.advance(ctx, StateRevalidating, "")
		final := report.Validate(result, o.rules)
		run.out.Final = final
		recordValidation(final, "revalidation")
		logger.LogEvent(ctx, o.log, correlationID, component, "report_repaired", map[string]any{
			"is_valid": final.IsValid,
			"errors":   final.Errors,
		})
		if !final.IsValid {
			o.log.WarnContext(ctx, "residual validation errors after repair",
				slog.String("correlation_id", correlationID),
				slog.Any("errors", final.Errors),
			)
		}
	}

	run.advance(ctx, StateFinalizing, "")
	result, run.out.CoreTasksAdded = report.InjectCoreEATasks(result, o.rules)
	if run.out.CoreTasksAdded > 0 {
		metrics.RecordCoreTasksInjected(run.out.CoreTasksAdded)
		metrics.AddSpanEvent(ctx, "core_tasks_injected", attribute.Int("count", run.out.CoreTasksAdded))
	}
	run.out.Result = result

	run.advance(ctx, StateDone, "")
	outcome := "clean"
	if run.out.Repaired {
		outcome = "repaired"
	}
	run.finish(ctx, outcome, nil)
	return run.out, nil
}

// runState carries one run through the state machine.
type runState struct {
	o   *Orchestrator
	sm  *StateMachine
	out *Outcome
}

func (r *runState) generate(ctx context.Context, l lead.Lead) (report.Result, error) {
	r.advance(ctx, StateGenerating, "")

	genCtx, span := metrics.StartSpan(ctx, "pipeline.generate")
	defer span.End()

	start := r.o.now()
	result, err := r.o.gen.Generate(genCtx, l)
	elapsed := r.o.now().Sub(start).Seconds()
	metrics.RecordGeneratorCall(r.out.Provider, elapsed, err == nil)

	if err != nil {
		kind := generator.KindOf(err)
		metrics.RecordGeneratorError(r.out.Provider, kind.String())
		metrics.RecordSpanError(genCtx, err)
		r.advance(ctx, StateFailed, kind.String())
		r.o.log.ErrorContext(ctx, "generation failed",
			slog.String("correlation_id", r.out.CorrelationID),
			slog.String("kind", kind.String()),
			slog.Any("error", err),
		)
		return report.Result{}, err
	}
	return result, nil
}

func (r *runState) advance(ctx context.Context, to State, detail string) {
	from := r.sm.State()
	if err := r.sm.Transition(to); err != nil {
		// Only reachable through a programming error in Run.
		panic(err)
	}
	r.out.States = r.sm.History()
	metrics.AddSpanEvent(ctx, "state."+string(to))
	r.o.archiveTransition(ctx, r.out.CorrelationID, from, to, detail)
}

func (r *runState) finish(ctx context.Context, outcome string, runErr error) {
	r.out.Duration = r.o.now().Sub(r.out.StartedAt)
	metrics.RecordPipelineRun(r.out.Duration.Seconds(), outcome)

	total, ea, pct := report.Counts(r.out.Result)
	logger.LogEvent(ctx, r.o.log, r.out.CorrelationID, component, "run_finished", map[string]any{
		"outcome":          outcome,
		"states":           r.out.States,
		"repaired":         r.out.Repaired,
		"core_tasks_added": r.out.CoreTasksAdded,
		"total_tasks":      total,
		"ea_tasks":         ea,
		"ea_percent":       pct,
		"duration_ms":      r.out.Duration.Milliseconds(),
	})
	r.o.archiveFinish(ctx, r.out, runErr)
}

func recordValidation(v report.ValidationResult, stage string) {
	for _, msg := range v.Errors {
		metrics.RecordValidationError(ruleOf(msg), stage)
	}
}

// ruleOf maps a validator message to a low-cardinality metric label.
func ruleOf(msg string) string {
	switch {
	case strings.HasPrefix(msg, "Missing "):
		return "bucket_empty"
	case strings.HasPrefix(msg, "EA percentage too low"):
		return "ea_floor"
	case strings.Contains(msg, " mismatch: "):
		return "derived_count"
	default:
		return "other"
	}
}

// IsAuth reports whether err is a credential failure from the generator.
func IsAuth(err error) bool {
	return generator.KindOf(err) == generator.KindAuth
}
