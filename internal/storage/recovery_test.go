package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverInterrupted_ClosesStaleRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boot := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	stale := &RunRecord{
		CorrelationID: "gen-stale",
		LeadEmail:     "owner@example.com",
		LeadType:      "main",
		State:         "Generating",
		StartedAt:     boot.Add(-time.Hour),
	}
	require.NoError(t, store.SaveRun(ctx, stale))
	require.NoError(t, store.AppendEvent(ctx, &Event{CorrelationID: "gen-stale", From: "Received", To: "Generating"}))
	require.NoError(t, store.AppendEvent(ctx, &Event{CorrelationID: "gen-stale", From: "Generating", To: "Validating"}))

	finished := &RunRecord{
		CorrelationID: "gen-done",
		LeadEmail:     "owner@example.com",
		LeadType:      "main",
		State:         "Done",
		StartedAt:     boot.Add(-time.Hour),
		FinishedAt:    boot.Add(-59 * time.Minute),
	}
	require.NoError(t, store.SaveRun(ctx, finished))

	fresh := &RunRecord{
		CorrelationID: "gen-fresh",
		LeadEmail:     "owner@example.com",
		LeadType:      "simple",
		State:         "Generating",
		StartedAt:     boot.Add(time.Minute),
	}
	require.NoError(t, store.SaveRun(ctx, fresh))

	recovered, err := store.RecoverInterrupted(ctx, boot)
	require.NoError(t, err)
	assert.Equal(t, []string{"gen-stale"}, recovered)

	loaded, err := store.LoadRun(ctx, "gen-stale")
	require.NoError(t, err)
	assert.Equal(t, InterruptedState, loaded.State)
	assert.Equal(t, InterruptedKind, loaded.ErrorKind)
	assert.Equal(t, "run interrupted during Validating", loaded.ErrorMessage)
	assert.True(t, loaded.Finished())

	events, err := store.LoadEvents(ctx, "gen-stale")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, InterruptedState, events[2].To)

	untouched, err := store.LoadRun(ctx, "gen-fresh")
	require.NoError(t, err)
	assert.False(t, untouched.Finished())
}

func TestRecoverInterrupted_NothingToDo(t *testing.T) {
	store := newTestStore(t)

	recovered, err := store.RecoverInterrupted(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, recovered)
}
