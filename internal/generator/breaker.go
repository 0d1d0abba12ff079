package generator

import (
	"context"
	"errors"

	"timefreedom/internal/lead"
	"timefreedom/internal/report"
	"timefreedom/internal/retry"
)

// ErrCircuitOpen is returned without calling the model while the breaker is open.
var ErrCircuitOpen = errors.New("generator circuit open: too many recent failures")

// BreakerGenerator sheds load from a failing provider. It never retries.
type BreakerGenerator struct {
	next    Generator
	breaker *retry.CircuitBreaker
}

// WithBreaker wraps next with cb.
func WithBreaker(next Generator, cb *retry.CircuitBreaker) *BreakerGenerator {
	return &BreakerGenerator{next: next, breaker: cb}
}

func (b *BreakerGenerator) Provider() string { return b.next.Provider() }

func (b *BreakerGenerator) Generate(ctx context.Context, l lead.Lead) (report.Result, error) {
	if !b.breaker.ShouldAllow() {
		return report.Result{}, newError(KindUpstream, b.next.Provider(), ErrCircuitOpen)
	}
	r, err := b.next.Generate(ctx, l)
	switch {
	case err == nil:
		b.breaker.RecordSuccess()
	case KindOf(err) == KindAuth || KindOf(err) == KindMalformed:
		// Bad credentials and bad output say nothing about provider health.
	default:
		b.breaker.RecordFailure()
	}
	return r, err
}
