package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	assert.Equal(t, &RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}, DefaultPolicy())
}

func TestExponentialBackoff(t *testing.T) {
	p := &RetryPolicy{InitialDelay: 100 * time.Millisecond, BackoffMultiplier: 2.0, MaxDelay: time.Second}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, d := range want {
		assert.Equal(t, d, ExponentialBackoff(p, attempt), "attempt %d", attempt)
	}
	assert.Equal(t, 100*time.Millisecond, ExponentialBackoff(p, -1))
}

func TestShouldRetry(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3}
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))
}

func quickPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Millisecond,
	}
}

func TestDo(t *testing.T) {
	unavailable := &StatusError{Service: "crm", StatusCode: http.StatusServiceUnavailable}
	rejected := &StatusError{Service: "mail", StatusCode: http.StatusUnauthorized}

	tests := []struct {
		name      string
		retries   int
		failFirst int // calls that fail before success; -1 fails forever
		err       error
		wantCalls int
		wantErr   error
	}{
		{"succeeds first time", 3, 0, unavailable, 1, nil},
		{"recovers from transient", 3, 2, unavailable, 3, nil},
		{"gives up after retries", 2, -1, unavailable, 3, unavailable},
		{"stops on permanent", 3, -1, rejected, 1, rejected},
		{"stops on marked permanent", 3, -1, Permanent(unavailable), 1, unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), quickPolicy(tt.retries), func(ctx context.Context) error {
				calls++
				if tt.failFirst < 0 || calls <= tt.failFirst {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDo_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RetryPolicy{MaxAttempts: 10, InitialDelay: time.Hour, BackoffMultiplier: 1, MaxDelay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(ctx context.Context) error {
			calls++
			return errors.New("connection reset by peer")
		})
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.LessOrEqual(t, calls, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDo_NilPolicyUsesDefault(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
