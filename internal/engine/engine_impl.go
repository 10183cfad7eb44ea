package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/scrapeflow/internal/eventbus"
	"github.com/petrijr/scrapeflow/internal/persistence"
	"github.com/petrijr/scrapeflow/pkg/api"
	"github.com/petrijr/scrapeflow/pkg/worker"
)

// DefaultRunRetention is how long terminal runs stay queryable when Config
// leaves RunRetention at zero.
const DefaultRunRetention = 10 * time.Minute

// Config describes how to construct an Engine.
type Config struct {
	// Observer receives run and step lifecycle callbacks.
	Observer api.Observer

	// Events, if set, receives every published event asynchronously.
	Events persistence.EventStore

	// Workers bounds how many steps execute at once across all runs.
	Workers int

	// BufferSize is the per-subscriber event buffer.
	BufferSize int

	// RunRetention is how long terminal runs are kept before eviction.
	// Negative disables eviction.
	RunRetention time.Duration

	Logger *slog.Logger

	// Clock overrides time.Now for run and step timestamps.
	Clock func() time.Time
}

// Engine is the in-process DAG workflow engine.
type Engine struct {
	registry *workflowRegistry
	bus      *eventbus.Bus
	pool     *worker.Pool
	observer api.Observer
	events   persistence.EventStore
	history  *historyRecorder
	logger   *slog.Logger
	now      func() time.Time

	retention   time.Duration
	stopJanitor chan struct{}

	mu     sync.RWMutex
	runs   map[string]*runState
	closed bool

	// baseCtx is the parent of every step context. It is independent of
	// any caller's context and is only cancelled by Close.
	baseCtx context.Context
	cancel  context.CancelFunc
}

var _ api.Engine = (*Engine)(nil)

// NewInMemoryEngine returns an Engine with default settings that keeps its
// event history in memory.
func NewInMemoryEngine() *Engine {
	return NewEngine(Config{Events: persistence.NewInMemoryEventStore()})
}

// NewEngine creates an Engine using the given configuration.
func NewEngine(cfg Config) *Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	retention := cfg.RunRetention
	if retention == 0 {
		retention = DefaultRunRetention
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		registry: newWorkflowRegistry(),
		bus: eventbus.New(
			eventbus.WithBufferSize(cfg.BufferSize),
			eventbus.WithLogger(logger),
			eventbus.WithClock(now),
		),
		pool:        worker.NewPool(cfg.Workers),
		observer:    obs,
		events:      cfg.Events,
		logger:      logger,
		now:         now,
		retention:   retention,
		stopJanitor: make(chan struct{}),
		runs:        make(map[string]*runState),
		baseCtx:     ctx,
		cancel:      cancel,
	}
	if cfg.Events != nil {
		e.history = newHistoryRecorder(cfg.Events, logger)
	}
	if retention > 0 {
		go e.janitor(janitorInterval(retention))
	}
	return e
}

func (e *Engine) RegisterWorkflow(def api.WorkflowDefinition) error {
	if err := e.registry.Register(def); err != nil {
		return err
	}
	e.logger.Debug("workflow registered",
		slog.String("workflow", def.Name),
		slog.Int("steps", len(def.Steps)),
		slog.Any("triggers", def.Triggers),
	)
	return nil
}

// Workflows returns the names of all registered workflows.
func (e *Engine) Workflows() []string {
	return e.registry.Names()
}

func (e *Engine) StartRun(ctx context.Context, name string, payload any) (string, error) {
	return e.startRun(name, payload, "")
}

func (e *Engine) Emit(ctx context.Context, event string, payload any) ([]string, error) {
	names := e.registry.Triggered(event)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", api.ErrNoTriggeredWorkflow, event)
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, err := e.startRun(name, payload, "")
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) AwaitResult(ctx context.Context, runID string) (any, error) {
	run, err := e.lookup(runID)
	if err != nil {
		return nil, err
	}

	// Inside a step this hands the worker slot back while waiting.
	err = worker.Yield(ctx, func() error {
		select {
		case <-run.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.status == api.RunFailed {
		return nil, &api.ChildRunError{RunID: run.id, Workflow: run.wf.def.Name, Err: run.err}
	}
	return maps.Clone(run.result), nil
}

func (e *Engine) GetRun(ctx context.Context, runID string) (*api.RunSnapshot, error) {
	run, err := e.lookup(runID)
	if err != nil {
		return nil, err
	}
	return run.snapshot(), nil
}

func (e *Engine) ListRuns(ctx context.Context, opts api.RunListOptions) ([]*api.RunSnapshot, error) {
	e.mu.RLock()
	candidates := make([]*runState, 0, len(e.runs))
	for _, run := range e.runs {
		candidates = append(candidates, run)
	}
	e.mu.RUnlock()

	out := make([]*api.RunSnapshot, 0, len(candidates))
	for _, run := range candidates {
		if run.matches(opts) {
			out = append(out, run.snapshot())
		}
	}
	slices.SortFunc(out, func(a, b *api.RunSnapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Subscribe follows a run's events from now on.
func (e *Engine) Subscribe(runID string) (*eventbus.Subscription, error) {
	return e.bus.Subscribe(runID)
}

// History returns the recorded events of a run. It returns
// api.ErrUnknownRun when nothing was recorded for a run the engine does not
// know about.
func (e *Engine) History(ctx context.Context, runID string) ([]api.Event, error) {
	if e.events == nil {
		if _, err := e.lookup(runID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	evs, err := e.events.ListEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", runID, err)
	}
	if len(evs) == 0 {
		if _, err := e.lookup(runID); err != nil {
			return nil, err
		}
	}
	return evs, nil
}

// Close stops accepting new runs and waits for in-flight steps to return.
// If ctx ends first, step contexts are cancelled and ctx.Err() is returned.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	close(e.stopJanitor)

	drained := make(chan struct{})
	go func() {
		e.pool.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		e.cancel()
		err = ctx.Err()
	}

	if e.history != nil {
		if herr := e.history.Close(ctx); herr != nil && err == nil {
			err = herr
		}
	}
	e.cancel()
	return err
}

func (e *Engine) startRun(name string, payload any, parentID string) (string, error) {
	wf, err := e.registry.Get(name)
	if err != nil {
		return "", err
	}

	run := newRunState(uuid.NewString(), parentID, wf, payload, e.now())

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", api.ErrEngineClosed
	}
	// The topic must exist before the id escapes so that an immediate
	// Subscribe succeeds.
	e.bus.Open(run.id)
	e.runs[run.id] = run
	e.mu.Unlock()

	e.observer.OnRunStart(e.baseCtx, run.ref())

	run.mu.Lock()
	now := e.now()
	run.status = api.RunRunning
	run.startedAt = now
	ready := slices.Clone(wf.roots)
	for _, name := range ready {
		run.steps[name].transition(api.StepReady, now)
	}
	run.mu.Unlock()

	e.dispatch(run, ready)
	return run.id, nil
}

func (e *Engine) dispatch(run *runState, steps []string) {
	for _, name := range steps {
		e.pool.Submit(e.baseCtx, func(ctx context.Context) {
			e.execute(ctx, run, name)
		})
	}
}

// execute claims a ready step and runs it. A step that is not ready, or
// whose run is already terminal, is left alone, so duplicate dispatches of
// the same step are harmless.
func (e *Engine) execute(ctx context.Context, run *runState, name string) {
	run.mu.Lock()
	sr := run.steps[name]
	if run.terminal() || sr.status != api.StepReady {
		run.mu.Unlock()
		return
	}
	now := e.now()
	sr.transition(api.StepRunning, now)
	in := api.NewStepInput(run.id, run.wf.def.Name, run.payload, run.parentOutputs(sr))
	e.publish(api.Event{
		RunID:    run.id,
		Workflow: run.wf.def.Name,
		Type:     api.EventStepStarted,
		Step:     name,
		At:       now,
	})
	run.mu.Unlock()

	if err := ctx.Err(); err != nil {
		e.completeStep(run, name, nil, err)
		return
	}

	ref := run.ref()
	stepCtx := api.WithSpawner(ctx, stepSpawner{engine: e, parent: run})

	e.observer.OnStepStart(stepCtx, ref, name)
	start := time.Now()
	out, err := e.invoke(stepCtx, sr.def, in)
	e.observer.OnStepCompleted(stepCtx, ref, name, err, time.Since(start))

	e.completeStep(run, name, out, err)
}

func (e *Engine) invoke(ctx context.Context, def api.StepDefinition, in api.StepInput) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("step panicked",
				slog.String("run_id", in.RunID),
				slog.String("workflow", in.Workflow),
				slog.String("step", def.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return def.Fn(ctx, in)
}

type runOutcome int

const (
	outcomeNone runOutcome = iota
	outcomeSucceeded
	outcomeFailed
)

// completeStep records a step's result, advances the graph and finishes the
// run when appropriate.
func (e *Engine) completeStep(run *runState, name string, out any, stepErr error) {
	var (
		ready   []string
		outcome runOutcome
	)

	run.mu.Lock()
	sr := run.steps[name]
	now := e.now()
	wfName := run.wf.def.Name

	if stepErr != nil {
		sr.err = stepErr
		sr.transition(api.StepFailed, now)
		if !run.terminal() {
			e.publish(api.Event{
				RunID:    run.id,
				Workflow: wfName,
				Type:     api.EventStepFailed,
				Step:     name,
				Error:    stepErr.Error(),
				At:       now,
			})
			runErr := &api.StepError{RunID: run.id, Step: name, Err: stepErr}
			run.status = api.RunFailed
			run.err = runErr
			run.finishedAt = now
			e.publish(api.Event{
				RunID:    run.id,
				Workflow: wfName,
				Type:     api.EventRunFailed,
				Step:     name,
				Error:    api.FailureMessage(runErr),
				At:       now,
			})
			close(run.done)
			outcome = outcomeFailed
		}
	} else {
		sr.output = out
		sr.transition(api.StepSucceeded, now)
		run.remaining--
		if !run.terminal() {
			e.publish(api.Event{
				RunID:    run.id,
				Workflow: wfName,
				Type:     api.EventStepSucceeded,
				Step:     name,
				Output:   out,
				At:       now,
			})
			for _, d := range run.wf.dependents[name] {
				ds := run.steps[d]
				ds.waiting--
				if ds.waiting == 0 && ds.status == api.StepBlocked {
					ds.transition(api.StepReady, now)
					ready = append(ready, d)
				}
			}
			if run.remaining == 0 {
				run.status = api.RunSucceeded
				run.result = run.aggregate()
				run.finishedAt = now
				e.publish(api.Event{
					RunID:    run.id,
					Workflow: wfName,
					Type:     api.EventRunSucceeded,
					Output:   maps.Clone(run.result),
					At:       now,
				})
				close(run.done)
				outcome = outcomeSucceeded
			}
		}
	}
	runErr := run.err
	elapsed := run.finishedAt.Sub(run.startedAt)
	run.mu.Unlock()

	switch outcome {
	case outcomeSucceeded:
		e.observer.OnRunCompleted(e.baseCtx, run.ref(), elapsed)
	case outcomeFailed:
		e.observer.OnRunFailed(e.baseCtx, run.ref(), runErr)
	}

	e.dispatch(run, ready)
}

// publish sends ev to the bus and the history recorder. Callers hold the
// run's mutex so that event order matches state transitions.
func (e *Engine) publish(ev api.Event) {
	stamped, ok := e.bus.Publish(ev)
	if ok && e.history != nil {
		e.history.Record(stamped)
	}
}

func (e *Engine) lookup(runID string) (*runState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownRun, runID)
	}
	return run, nil
}

func janitorInterval(retention time.Duration) time.Duration {
	return min(max(retention/4, time.Second), time.Minute)
}

func (e *Engine) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.stopJanitor:
			return
		case <-t.C:
			if n := e.evictExpired(); n > 0 {
				e.logger.Debug("evicted finished runs", slog.Int("count", n))
			}
		}
	}
}

// evictExpired forgets runs that finished more than the retention period
// ago and returns how many were removed.
func (e *Engine) evictExpired() int {
	cutoff := e.now().Add(-e.retention)

	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for id, run := range e.runs {
		run.mu.Lock()
		expired := run.terminal() && run.finishedAt.Before(cutoff)
		run.mu.Unlock()
		if expired {
			delete(e.runs, id)
			e.bus.Evict(id)
			n++
		}
	}
	return n
}

// stepSpawner is the api.Spawner handed to each step invocation.
type stepSpawner struct {
	engine *Engine
	parent *runState
}

func (s stepSpawner) SpawnChild(ctx context.Context, name string, payload any) (string, error) {
	return s.engine.startRun(name, payload, s.parent.id)
}

func (s stepSpawner) AwaitResult(ctx context.Context, runID string) (any, error) {
	return s.engine.AwaitResult(ctx, runID)
}
