package retry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_RecordsPerService(t *testing.T) {
	s := NewStats()

	for i := 0; i < 3; i++ {
		s.RecordAttempt("mailgun")
	}
	s.RecordFailure("mailgun", ErrorTypeTransient)
	s.RecordAttempt("close")
	s.RecordSuccess("close")
	s.RecordBreakerRejection("s3")

	mail, ok := s.Service("mailgun")
	require.True(t, ok)
	assert.Equal(t, ServiceStats{Service: "mailgun", Attempts: 3, Failures: 1, TransientFailures: 1}, mail)
	assert.Equal(t, 2, mail.Retries())

	crm, _ := s.Service("close")
	assert.Equal(t, 1, crm.Successes)
	assert.Zero(t, crm.Retries())

	_, ok = s.Service("missing")
	assert.False(t, ok)
}

func TestStats_FailureTypes(t *testing.T) {
	s := NewStats()
	s.RecordFailure("close", ErrorTypePermanent)
	s.RecordFailure("close", ErrorTypeUnknown)

	st, _ := s.Service("close")
	assert.Equal(t, 2, st.Failures)
	assert.Equal(t, 1, st.PermanentFailures)
	assert.Zero(t, st.TransientFailures)
}

func TestStats_SnapshotIsSortedCopy(t *testing.T) {
	s := NewStats()
	s.RecordAttempt("s3")
	s.RecordAttempt("close")
	s.RecordAttempt("mailgun")

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []string{"close", "mailgun", "s3"}, []string{snap[0].Service, snap[1].Service, snap[2].Service})

	snap[0].Attempts = 99
	st, _ := s.Service("close")
	assert.Equal(t, 1, st.Attempts)
}

func TestStats_Summary(t *testing.T) {
	s := NewStats()
	assert.Equal(t, "no collaborator calls recorded", s.Summary())

	s.RecordAttempt("mailgun")
	s.RecordAttempt("mailgun")
	s.RecordSuccess("mailgun")
	assert.Contains(t, s.Summary(), "mailgun: 2 attempts, 1 retries, 1 ok")
}

func TestStats_Concurrent(t *testing.T) {
	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordAttempt("close")
			s.RecordSuccess("close")
		}()
	}
	wg.Wait()

	st, _ := s.Service("close")
	assert.Equal(t, 50, st.Attempts)
	assert.Equal(t, 50, st.Successes)
}
