package retry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests step past OpenTimeout without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreakerFromConfig(cfg)
	cb.now = clock.Now
	return cb, clock
}

func openBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for cb.GetState() != CircuitOpen {
		cb.RecordFailure()
	}
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker()
	for i := 0; i < 25; i++ {
		require.True(t, cb.ShouldAllow())
		cb.RecordSuccess()
	}
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		successes int
		want      CircuitState
	}{
		{"below min requests", 4, 0, CircuitClosed},
		{"rate under threshold", 4, 6, CircuitClosed},
		{"rate at threshold", 5, 5, CircuitOpen},
		{"all failures", 10, 0, CircuitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 0.5, MinRequests: 10})
			for i := 0; i < tt.successes; i++ {
				cb.RecordSuccess()
			}
			for i := 0; i < tt.failures; i++ {
				cb.RecordFailure()
			}
			assert.Equal(t, tt.want, cb.GetState())
			assert.Equal(t, tt.want == CircuitClosed, cb.ShouldAllow())
		})
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{MinRequests: 2, OpenTimeout: 30 * time.Second, HalfOpenMaxTests: 2})
	openBreaker(t, cb)

	clock.Advance(29 * time.Second)
	assert.False(t, cb.ShouldAllow(), "still inside the open window")

	clock.Advance(time.Second)
	require.True(t, cb.ShouldAllow())
	assert.Equal(t, CircuitHalfOpen, cb.GetState())

	require.True(t, cb.ShouldAllow())
	assert.False(t, cb.ShouldAllow(), "probe budget exhausted")

	cb.RecordSuccess()
	assert.Equal(t, CircuitHalfOpen, cb.GetState())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.GetState())

	failures, successes, _ := cb.GetStats()
	assert.Zero(t, failures)
	assert.Zero(t, successes)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{MinRequests: 2, OpenTimeout: time.Minute})
	openBreaker(t, cb)

	clock.Advance(time.Minute)
	require.True(t, cb.ShouldAllow())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.GetState())

	clock.Advance(59 * time.Second)
	assert.False(t, cb.ShouldAllow(), "reopening restarts the open window")
}

func TestCircuitBreaker_ReportsTransitions(t *testing.T) {
	cb, clock := newTestBreaker(BreakerConfig{MinRequests: 2, OpenTimeout: time.Second, HalfOpenMaxTests: 1})

	var seen []string
	cb.OnStateChange(func(from, to CircuitState) {
		seen = append(seen, from.String()+"->"+to.String())
	})

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.ShouldAllow()
	cb.RecordSuccess()

	assert.Equal(t, []string{"Closed->Open", "Open->HalfOpen", "HalfOpen->Closed"}, seen)
}

func TestNewCircuitBreakerFromConfig_FillsDefaults(t *testing.T) {
	cb := NewCircuitBreakerFromConfig(BreakerConfig{MinRequests: 4})
	assert.Equal(t, BreakerConfig{
		FailureThreshold: 0.5,
		MinRequests:      4,
		OpenTimeout:      30 * time.Second,
		HalfOpenMaxTests: 3,
	}, cb.cfg)
}

func TestPerServiceBreakers_Independent(t *testing.T) {
	psb := NewPerServiceBreakersWithConfig(BreakerConfig{MinRequests: 2})

	psb.RecordFailure("crm")
	psb.RecordFailure("crm")
	psb.RecordSuccess("mail")

	assert.False(t, psb.ShouldAllow("crm"))
	assert.True(t, psb.ShouldAllow("mail"))
	assert.True(t, psb.ShouldAllow("blob"))

	failures, successes, state := psb.GetBreaker("mail").GetStats()
	assert.Equal(t, 0, failures)
	assert.Equal(t, 1, successes)
	assert.Equal(t, CircuitClosed, state)
}

func TestPerServiceBreakers_Concurrent(t *testing.T) {
	psb := NewPerServiceBreakersWithConfig(BreakerConfig{MinRequests: 5})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if psb.ShouldAllow("blob") {
					psb.RecordSuccess("blob")
				}
			}
		}()
	}
	wg.Wait()

	assert.Same(t, psb.GetBreaker("blob"), psb.GetBreaker("blob"))
	assert.Equal(t, CircuitClosed, psb.GetBreaker("blob").GetState())
}
