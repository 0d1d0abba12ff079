package retry

import (
	"context"
	"math"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// RetryPolicy defines the configuration for retry attempts.
type RetryPolicy struct {
	MaxAttempts       int           // retries after the initial attempt
	InitialDelay      time.Duration // delay before the first retry
	BackoffMultiplier float64       // multiplier for exponential backoff
	MaxDelay          time.Duration // cap on any single delay
}

// DefaultPolicy returns the policy used for side-channel calls.
// Max 3 retries (4 total attempts), starting at 1s with 2x backoff, capped at 30s.
func DefaultPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}
}

// ExponentialBackoff calculates the delay for a given retry attempt.
// attempt is 0-indexed (0 = first retry, 1 = second retry, etc.)
func ExponentialBackoff(policy *RetryPolicy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	return time.Duration(delay)
}

// ShouldRetry determines if another retry attempt should be made.
func (p *RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Backoff adapts the policy to a go-retry backoff.
func (p *RetryPolicy) Backoff() goretry.Backoff {
	attempt := 0
	next := goretry.BackoffFunc(func() (time.Duration, bool) {
		d := ExponentialBackoff(p, attempt)
		attempt++
		return d, false
	})
	if p.MaxAttempts < 0 {
		return goretry.WithMaxRetries(0, next)
	}
	return goretry.WithMaxRetries(uint64(p.MaxAttempts), next)
}

// Do runs fn, retrying errors ClassifyError considers transient.
func Do(ctx context.Context, policy *RetryPolicy, fn func(ctx context.Context) error) error {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return goretry.Do(ctx, policy.Backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsRetryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}
