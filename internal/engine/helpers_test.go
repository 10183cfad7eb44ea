package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/petrijr/scrapeflow/internal/persistence"
	"github.com/petrijr/scrapeflow/pkg/api"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := NewEngine(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

func mustRegister(t *testing.T, e *Engine, def api.WorkflowDefinition) {
	t.Helper()
	if err := e.RegisterWorkflow(def); err != nil {
		t.Fatalf("RegisterWorkflow(%s) failed: %v", def.Name, err)
	}
}

func awaitRun(t *testing.T, e *Engine, id string) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.AwaitResult(ctx, id)
}

func constStep(v any) api.StepFunc {
	return func(ctx context.Context, in api.StepInput) (any, error) { return v, nil }
}

func waitStep(gate <-chan struct{}, v any) api.StepFunc {
	return func(ctx context.Context, in api.StepInput) (any, error) {
		select {
		case <-gate:
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordedEvents waits until the run's terminal event is in the store and
// returns everything recorded for it.
func recordedEvents(t *testing.T, store persistence.EventStore, runID string) []api.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		evs, err := store.ListEvents(context.Background(), runID)
		if err != nil {
			t.Fatalf("ListEvents failed: %v", err)
		}
		if n := len(evs); n > 0 && evs[n-1].Type.Terminal() {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("terminal event for run %s was never recorded", runID)
	return nil
}
