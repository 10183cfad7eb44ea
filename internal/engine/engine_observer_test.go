package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// fakeObserver records all calls from the engine so we can assert on them.
type fakeObserver struct {
	mu sync.Mutex

	runStarts    []api.RunRef
	runCompletes []api.RunRef
	runFails     []runFailure

	stepStarts    []string
	stepCompletes []stepEvent
}

type runFailure struct {
	Run api.RunRef
	Err error
}

type stepEvent struct {
	RunID string
	Step  string
	Err   error
}

func (o *fakeObserver) OnRunStart(ctx context.Context, run api.RunRef) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStarts = append(o.runStarts, run)
}

func (o *fakeObserver) OnRunCompleted(ctx context.Context, run api.RunRef, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runCompletes = append(o.runCompletes, run)
}

func (o *fakeObserver) OnRunFailed(ctx context.Context, run api.RunRef, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runFails = append(o.runFails, runFailure{Run: run, Err: err})
}

func (o *fakeObserver) OnStepStart(ctx context.Context, run api.RunRef, step string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepStarts = append(o.stepStarts, step)
}

func (o *fakeObserver) OnStepCompleted(ctx context.Context, run api.RunRef, step string, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepCompletes = append(o.stepCompletes, stepEvent{RunID: run.ID, Step: step, Err: err})
}

func (o *fakeObserver) counts() (starts, completes, fails, stepStarts, stepCompletes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runStarts), len(o.runCompletes), len(o.runFails), len(o.stepStarts), len(o.stepCompletes)
}

func TestObserver_SuccessfulRun(t *testing.T) {
	obs := &fakeObserver{}
	e := newTestEngine(t, Config{Observer: obs})
	mustRegister(t, e, api.WorkflowDefinition{
		Name: "observed",
		Steps: []api.StepDefinition{
			{Name: "a", Fn: constStep(1)},
			{Name: "b", Parents: []string{"a"}, Fn: constStep(2)},
		},
	})

	id, err := e.StartRun(context.Background(), "observed", nil)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if _, err := awaitRun(t, e, id); err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	e.pool.Wait()

	starts, completes, fails, stepStarts, stepCompletes := obs.counts()
	if starts != 1 || completes != 1 || fails != 0 {
		t.Fatalf("unexpected run callbacks: starts=%d completes=%d fails=%d", starts, completes, fails)
	}
	if stepStarts != 2 || stepCompletes != 2 {
		t.Fatalf("unexpected step callbacks: starts=%d completes=%d", stepStarts, stepCompletes)
	}
	if obs.runStarts[0].ID != id || obs.runStarts[0].Workflow != "observed" {
		t.Fatalf("unexpected run ref: %+v", obs.runStarts[0])
	}
	if obs.stepStarts[0] != "a" || obs.stepStarts[1] != "b" {
		t.Fatalf("steps observed out of dependency order: %v", obs.stepStarts)
	}
}

func TestObserver_FailedRun(t *testing.T) {
	obs := &fakeObserver{}
	e := newTestEngine(t, Config{Observer: obs})
	mustRegister(t, e, api.WorkflowDefinition{
		Name: "failing",
		Steps: []api.StepDefinition{{Name: "boom", Fn: func(ctx context.Context, in api.StepInput) (any, error) {
			return nil, errors.New("boom")
		}}},
	})

	id, err := e.StartRun(context.Background(), "failing", nil)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	_, _ = awaitRun(t, e, id)
	e.pool.Wait()

	_, completes, fails, _, stepCompletes := obs.counts()
	if completes != 0 || fails != 1 {
		t.Fatalf("expected exactly one failure callback, got completes=%d fails=%d", completes, fails)
	}
	if !errors.Is(obs.runFails[0].Err, api.ErrStepExecution) {
		t.Fatalf("expected StepError, got %v", obs.runFails[0].Err)
	}
	if stepCompletes != 1 || obs.stepCompletes[0].Err == nil {
		t.Fatalf("expected failing step completion, got %+v", obs.stepCompletes)
	}
}

func TestObserver_BasicMetricsCountsChildRuns(t *testing.T) {
	metrics := &api.BasicMetrics{}
	e := newTestEngine(t, Config{Observer: api.NewCompositeObserver(metrics, api.NewLoggingObserver(nil))})
	registerChild(t, e)
	mustRegister(t, e, api.WorkflowDefinition{
		Name: "parent",
		Steps: []api.StepDefinition{{Name: "start", Fn: func(ctx context.Context, in api.StepInput) (any, error) {
			return api.SpawnAndAwait(ctx, "child", "p")
		}}},
	})

	id, err := e.StartRun(context.Background(), "parent", nil)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if _, err := awaitRun(t, e, id); err != nil {
		t.Fatalf("AwaitResult failed: %v", err)
	}
	e.pool.Wait()

	snap := metrics.Snapshot()
	if snap.RunsStarted != 2 || snap.RunsCompleted != 2 || snap.RunsInFlight != 0 {
		t.Fatalf("unexpected run metrics: %+v", snap)
	}
	if snap.StepsCompleted != 3 {
		t.Fatalf("StepsCompleted=%d, want 3", snap.StepsCompleted)
	}
}
