package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timefreedom/internal/generator"
	"timefreedom/internal/lead"
	"timefreedom/internal/report"
	"timefreedom/internal/storage"
)

type fakeGenerator struct {
	result report.Result
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeGenerator) Provider() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, l lead.Lead) (report.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return report.Result{}, f.err
	}
	return f.result.Clone(), nil
}

// generated builds a 10/10/10 report whose first ea tasks (in bucket order)
// are delegated. Titles avoid core keywords so no core task is present.
func generated(ea int) report.Result {
	var r report.Result
	n := 0
	for _, b := range report.Buckets {
		tasks := make([]report.Task, 10)
		for i := range tasks {
			t := report.Task{
				Title:       fmt.Sprintf("Own %s decision %d", b, i+1),
				Description: "Strategic founder work that needs a final call.",
				Owner:       report.OwnerYou,
				Category:    "Strategy",
			}
			if n < ea {
				t.Owner = report.OwnerEA
				t.IsEA = true
				t.Title = fmt.Sprintf("Prepare %s brief %d", b, i+1)
			}
			tasks[i] = t
			n++
		}
		r.Tasks.Set(b, tasks)
	}
	r.Summary = "Generated plan."
	return report.Recount(r)
}

func testLead() lead.Lead {
	return lead.Lead{
		FirstName:    "Dana",
		LastName:     "Reyes",
		Email:        "dana@example.com",
		LeadType:     lead.TypeMain,
		RevenueRange: "$500k-$1M",
	}
}

func assertConsistent(t *testing.T, r report.Result) {
	t.Helper()
	total, ea, pct := report.Counts(r)
	assert.Equal(t, total, r.TotalTaskCount, "total_task_count")
	assert.Equal(t, ea, r.EATaskCount, "ea_task_count")
	assert.Equal(t, pct, r.EATaskPercent, "ea_task_percent")
}

func assertCorePresent(t *testing.T, r report.Result) {
	t.Helper()
	a := report.Analyze(r)
	for _, kind := range report.RequiredCoreTaskTypes() {
		assert.True(t, a.CoreTaskTypes[kind], "missing core task %s", kind)
	}
}

func TestRun_CleanReportSkipsRepair(t *testing.T) {
	gen := &fakeGenerator{result: generated(15)}
	o := NewOrchestrator(gen, report.DefaultRules(), nil)

	out, err := o.Run(context.Background(), "gen-clean", testLead())
	require.NoError(t, err)

	assert.Equal(t, "gen-clean", out.CorrelationID)
	assert.True(t, out.Initial.IsValid)
	assert.False(t, out.Repaired)
	assert.Equal(t, []State{StateReceived, StateGenerating, StateValidating, StateFinalizing, StateDone}, out.States)
	assert.Equal(t, 2, out.CoreTasksAdded)
	assertConsistent(t, out.Result)
	assertCorePresent(t, out.Result)
	assert.Equal(t, 1, gen.calls)
}

func TestRun_CoreTasksAddedCountsInsertionsOnly(t *testing.T) {
	r := generated(15)
	// email task flagged for the assistant but still owned by the founder
	r.Tasks.Daily[0].Title = "Inbox and email triage"
	r.Tasks.Daily[0].Owner = report.OwnerYou
	gen := &fakeGenerator{result: report.Recount(r)}
	o := NewOrchestrator(gen, report.DefaultRules(), nil)

	out, err := o.Run(context.Background(), "gen-core", testLead())
	require.NoError(t, err)

	assert.True(t, out.Initial.IsValid)
	assert.Equal(t, 1, out.CoreTasksAdded)
	assert.Equal(t, report.OwnerEA, out.Result.Tasks.Daily[0].Owner)
	assertCorePresent(t, out.Result)
}

func TestRun_RepairsLowEAShare(t *testing.T) {
	// 30 tasks, 9 delegated: 30%
	gen := &fakeGenerator{result: generated(9)}
	o := NewOrchestrator(gen, report.DefaultRules(), nil)

	out, err := o.Run(context.Background(), "", testLead())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.CorrelationID, "gen-"))
	require.False(t, out.Initial.IsValid)
	require.Len(t, out.Initial.Errors, 1)
	assert.Equal(t, "EA percentage too low: 30% (minimum 40%)", out.Initial.Errors[0])

	assert.True(t, out.Repaired)
	assert.True(t, out.Final.IsValid, "re-validation errors: %v", out.Final.Errors)
	assert.Equal(t, []State{
		StateReceived, StateGenerating, StateValidating,
		StateRepairing, StateRevalidating, StateFinalizing, StateDone,
	}, out.States)

	assert.GreaterOrEqual(t, out.Result.EATaskPercent, 40)
	assert.Equal(t, 30, out.Result.TotalTaskCount)
	assertConsistent(t, out.Result)
	assertCorePresent(t, out.Result)
}

func TestRun_EmptyReportIsRebuilt(t *testing.T) {
	gen := &fakeGenerator{result: report.Result{Summary: "Nothing useful."}}
	o := NewOrchestrator(gen, report.DefaultRules(), nil)

	out, err := o.Run(context.Background(), "gen-empty", testLead())
	require.NoError(t, err)

	assert.Len(t, out.Initial.Errors, 4, "three empty buckets and the EA floor")
	assert.True(t, out.Repaired)
	assert.True(t, out.Final.IsValid, "re-validation errors: %v", out.Final.Errors)
	for _, b := range report.Buckets {
		assert.Len(t, out.Result.Tasks.Get(b), 10, "bucket %s", b)
	}
	assert.GreaterOrEqual(t, out.Result.EATaskPercent, 40)
	assertConsistent(t, out.Result)
	assertCorePresent(t, out.Result)
}

func TestRun_GeneratorFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		gen      generator.Generator
		wantKind generator.Kind
		wantAuth bool
	}{
		{
			name:     "missing api key is auth",
			gen:      generator.NewAnthropic(generator.Options{}),
			wantKind: generator.KindAuth,
			wantAuth: true,
		},
		{
			name:     "timeout is generic",
			gen:      &fakeGenerator{err: &generator.Error{Kind: generator.KindTimeout, Provider: "fake", Err: errors.New("request timed out")}},
			wantKind: generator.KindTimeout,
		},
		{
			name:     "unclassified error is upstream",
			gen:      &fakeGenerator{err: errors.New("connection reset")},
			wantKind: generator.KindUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator(tt.gen, report.DefaultRules(), nil)

			out, err := o.Run(context.Background(), "gen-fail", testLead())
			require.Error(t, err)

			var runErr *RunError
			require.True(t, errors.As(err, &runErr))
			assert.Equal(t, "gen-fail", runErr.CorrelationID)
			assert.Equal(t, tt.wantKind, runErr.Kind())
			assert.Equal(t, tt.wantAuth, IsAuth(err))
			assert.Contains(t, err.Error(), "gen-fail")

			assert.Equal(t, []State{StateReceived, StateGenerating, StateFailed}, out.States)
		})
	}
}

func TestRun_MissingKeyMessage(t *testing.T) {
	o := NewOrchestrator(generator.NewAnthropic(generator.Options{}), report.DefaultRules(), nil)

	_, err := o.Run(context.Background(), "", testLead())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing API key: Set ANTHROPIC_API_KEY")
}

type recordingArchiver struct {
	mu          sync.Mutex
	begun       int
	transitions []State
	finished    *Outcome
	finishErr   error
	failWith    error
}

func (a *recordingArchiver) Begin(ctx context.Context, out *Outcome, l lead.Lead) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.begun++
	return a.failWith
}

func (a *recordingArchiver) Transition(ctx context.Context, id string, from, to State, detail string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transitions = append(a.transitions, to)
	return a.failWith
}

func (a *recordingArchiver) Finish(ctx context.Context, out *Outcome, runErr error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finished = out
	a.finishErr = runErr
	return a.failWith
}

func TestRun_ArchivesEveryTransition(t *testing.T) {
	arch := &recordingArchiver{}
	o := NewOrchestrator(&fakeGenerator{result: generated(9)}, report.DefaultRules(), nil).WithArchiver(arch)

	out, err := o.Run(context.Background(), "gen-arch", testLead())
	require.NoError(t, err)

	assert.Equal(t, 1, arch.begun)
	assert.Equal(t, out.States[1:], arch.transitions)
	assert.Same(t, out, arch.finished)
	assert.NoError(t, arch.finishErr)
}

func TestRun_ArchiveFailureIsSwallowed(t *testing.T) {
	arch := &recordingArchiver{failWith: errors.New("disk full")}
	o := NewOrchestrator(&fakeGenerator{result: generated(15)}, report.DefaultRules(), nil).WithArchiver(arch)

	out, err := o.Run(context.Background(), "gen-disk", testLead())
	require.NoError(t, err)
	assert.Equal(t, StateDone, out.States[len(out.States)-1])
}

func TestStoreArchiver_PersistsRun(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	o := NewOrchestrator(&fakeGenerator{result: generated(9)}, report.DefaultRules(), nil).
		WithArchiver(NewStoreArchiver(store))

	ctx := context.Background()
	out, err := o.Run(ctx, "gen-store", testLead())
	require.NoError(t, err)

	rec, err := store.LoadRun(ctx, "gen-store")
	require.NoError(t, err)
	assert.Equal(t, string(StateDone), rec.State)
	assert.True(t, rec.Repaired)
	assert.True(t, rec.Finished())
	assert.Equal(t, "dana@example.com", rec.LeadEmail)
	assert.Equal(t, out.Initial.Errors, rec.ValidationErrors)
	assert.NotEmpty(t, rec.Report)

	events, err := store.LoadEvents(ctx, "gen-store")
	require.NoError(t, err)
	require.Len(t, events, len(out.States)-1)
	assert.Equal(t, string(StateDone), events[len(events)-1].To)
}

func TestStoreArchiver_PersistsFailure(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	o := NewOrchestrator(generator.NewAnthropic(generator.Options{}), report.DefaultRules(), nil).
		WithArchiver(NewStoreArchiver(store))

	ctx := context.Background()
	_, err = o.Run(ctx, "gen-store-fail", testLead())
	require.Error(t, err)

	rec, err := store.LoadRun(ctx, "gen-store-fail")
	require.NoError(t, err)
	assert.Equal(t, string(StateFailed), rec.State)
	assert.Equal(t, "auth", rec.ErrorKind)
	assert.Nil(t, rec.Report)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	o := NewOrchestrator(&fakeGenerator{result: generated(9)}, report.DefaultRules(), nil)

	var wg sync.WaitGroup
	outs := make([]*Outcome, 8)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := o.Run(context.Background(), fmt.Sprintf("gen-c%d", i), testLead())
			if err == nil {
				outs[i] = out
			}
		}(i)
	}
	wg.Wait()

	for i, out := range outs {
		require.NotNil(t, out, "run %d failed", i)
		assert.Equal(t, fmt.Sprintf("gen-c%d", i), out.CorrelationID)
		assert.Equal(t, outs[0].Result, out.Result)
	}
}

func TestRuleOf(t *testing.T) {
	assert.Equal(t, "bucket_empty", ruleOf("Missing daily tasks: bucket is empty"))
	assert.Equal(t, "ea_floor", ruleOf("EA percentage too low: 30% (minimum 40%)"))
	assert.Equal(t, "derived_count", ruleOf("total_task_count mismatch: reported 29, actual 30"))
	assert.Equal(t, "other", ruleOf("something else"))
}
