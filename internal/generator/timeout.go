package generator

import (
	"context"
	"errors"
	"time"

	"timefreedom/internal/lead"
	"timefreedom/internal/report"
)

// TimeoutGenerator bounds each call to next. Deadline expiry surfaces as
// KindTimeout.
type TimeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout wraps next; a non-positive d leaves calls unbounded.
func WithTimeout(next Generator, d time.Duration) *TimeoutGenerator {
	return &TimeoutGenerator{next: next, timeout: d}
}

func (g *TimeoutGenerator) Provider() string { return g.next.Provider() }

func (g *TimeoutGenerator) Generate(ctx context.Context, l lead.Lead) (report.Result, error) {
	if g.timeout <= 0 {
		return g.next.Generate(ctx, l)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	r, err := g.next.Generate(ctx, l)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && KindOf(err) != KindTimeout {
		return report.Result{}, classify(g.next.Provider(), withContext(ctx, err))
	}
	return r, err
}
