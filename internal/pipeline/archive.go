package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"timefreedom/internal/generator"
	"timefreedom/internal/lead"
	"timefreedom/internal/storage"
)

// Archiver persists run progress. Implementations must be safe for
// concurrent use; errors are logged by the orchestrator and otherwise ignored.
type Archiver interface {
	Begin(ctx context.Context, out *Outcome, l lead.Lead) error
	Transition(ctx context.Context, correlationID string, from, to State, detail string) error
	Finish(ctx context.Context, out *Outcome, runErr error) error
}

// StoreArchiver writes runs to a storage.Store.
type StoreArchiver struct {
	store storage.Store
}

func NewStoreArchiver(store storage.Store) *StoreArchiver {
	return &StoreArchiver{store: store}
}

func (a *StoreArchiver) Begin(ctx context.Context, out *Outcome, l lead.Lead) error {
	return a.store.SaveRun(ctx, &storage.RunRecord{
		CorrelationID: out.CorrelationID,
		LeadEmail:     l.Email,
		LeadType:      string(l.LeadType),
		Provider:      out.Provider,
		State:         string(StateReceived),
		StartedAt:     out.StartedAt,
	})
}

func (a *StoreArchiver) Transition(ctx context.Context, correlationID string, from, to State, detail string) error {
	return a.store.AppendEvent(ctx, &storage.Event{
		CorrelationID: correlationID,
		From:          string(from),
		To:            string(to),
		Detail:        detail,
	})
}

func (a *StoreArchiver) Finish(ctx context.Context, out *Outcome, runErr error) error {
	rec, err := a.store.LoadRun(ctx, out.CorrelationID)
	if err != nil {
		return err
	}

	rec.Provider = out.Provider
	rec.Repaired = out.Repaired
	rec.CoreTasksAdded = out.CoreTasksAdded
	rec.ValidationErrors = out.Initial.Errors
	rec.FinishedAt = out.StartedAt.Add(out.Duration)
	if n := len(out.States); n > 0 {
		rec.State = string(out.States[n-1])
	}

	if runErr != nil {
		rec.ErrorKind = generator.KindOf(runErr).String()
		rec.ErrorMessage = runErr.Error()
	} else {
		payload, err := json.Marshal(out.Result)
		if err != nil {
			return err
		}
		rec.Report = payload
	}

	return a.store.SaveRun(ctx, rec)
}

// archive calls run on a context detached from request cancellation so a
// client disconnect still leaves a complete record.
func (o *Orchestrator) archive(ctx context.Context, correlationID, op string, fn func(context.Context) error) {
	if o.archiver == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := fn(actx); err != nil {
		o.log.WarnContext(ctx, "run archive failed",
			slog.String("correlation_id", correlationID),
			slog.String("op", op),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) archiveBegin(ctx context.Context, out *Outcome, l lead.Lead) {
	o.archive(ctx, out.CorrelationID, "begin", func(actx context.Context) error {
		return o.archiver.Begin(actx, out, l)
	})
}

func (o *Orchestrator) archiveTransition(ctx context.Context, correlationID string, from, to State, detail string) {
	o.archive(ctx, correlationID, "transition", func(actx context.Context) error {
		return o.archiver.Transition(actx, correlationID, from, to, detail)
	})
}

func (o *Orchestrator) archiveFinish(ctx context.Context, out *Outcome, runErr error) {
	o.archive(ctx, out.CorrelationID, "finish", func(actx context.Context) error {
		return o.archiver.Finish(actx, out, runErr)
	})
}
