package scrapeflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/scrapeflow/pkg/api"
)

func newEngine(t *testing.T) *LocalEngine {
	t.Helper()
	eng := NewInMemoryEngine()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = eng.Close(ctx)
	})
	return eng
}

func value(v any) StepFunc {
	return func(ctx context.Context, in StepInput) (any, error) { return v, nil }
}

func TestFlowBuilder_Definition(t *testing.T) {
	flow := New("report").
		On("report:nightly", "report:manual", "report:nightly").
		Step("fetch", value(1)).
		Step("publish", value(2), "fetch")

	def := flow.Definition()
	require.Equal(t, "report", flow.Name())
	require.Equal(t, []string{"report:nightly", "report:manual"}, def.Triggers)
	require.Len(t, def.Steps, 2)
	require.Empty(t, def.Steps[0].Parents)
	require.Equal(t, []string{"fetch"}, def.Steps[1].Parents)

	def.Steps[1].Parents[0] = "mutated"
	require.Equal(t, []string{"fetch"}, flow.Definition().Steps[1].Parents)
}

func TestFlowBuilder_PanicsOnBadStep(t *testing.T) {
	require.Panics(t, func() { New("x").Step("", value(1)) })
	require.Panics(t, func() { New("x").Step("a", nil) })
	require.Panics(t, func() { New("x").On("") })
}

func TestFlowBuilder_RegisterAndRun(t *testing.T) {
	eng := newEngine(t)

	New("diamond").
		Step("a", value(1)).
		Step("b", func(ctx context.Context, in StepInput) (any, error) {
			a, err := ParentAs[int](in, "a")
			return a + 10, err
		}, "a").
		Step("c", func(ctx context.Context, in StepInput) (any, error) {
			a, err := ParentAs[int](in, "a")
			return a + 20, err
		}, "a").
		Step("d", func(ctx context.Context, in StepInput) (any, error) {
			b, err := ParentAs[int](in, "b")
			if err != nil {
				return nil, err
			}
			c, err := ParentAs[int](in, "c")
			return b + c, err
		}, "b", "c").
		MustRegister(eng)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := Run(ctx, eng, "diamond", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1, "b": 11, "c": 21, "d": 32}, res)
}

func TestFlowBuilder_RegisterRejectsCycle(t *testing.T) {
	eng := newEngine(t)

	err := New("loop").
		Step("a", value(1), "b").
		Step("b", value(2), "a").
		Register(eng)
	require.ErrorIs(t, err, api.ErrCyclicWorkflow)

	require.Panics(t, func() {
		New("self").Step("a", value(1), "a").MustRegister(eng)
	})
}

func TestFlowBuilder_TriggersStartOnEmit(t *testing.T) {
	eng := newEngine(t)
	New("on-event").On("thing:happened").Step("only", value("ok")).MustRegister(eng)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids, err := eng.Emit(ctx, "thing:happened", nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	res, err := eng.AwaitResult(ctx, ids[0])
	require.NoError(t, err)
	require.Equal(t, map[string]any{"only": "ok"}, res)

	_, err = eng.Emit(ctx, "nobody:listens", nil)
	require.ErrorIs(t, err, api.ErrNoTriggeredWorkflow)
}

func TestHelpers_StartGetList(t *testing.T) {
	eng := newEngine(t)
	New("one").Step("s", value(1)).MustRegister(eng)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := Start(ctx, eng, "one", nil)
	require.NoError(t, err)
	_, err = eng.AwaitResult(ctx, id)
	require.NoError(t, err)

	snap, err := GetRun(ctx, eng, id)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, snap.Status)

	runs, err := ListRuns(ctx, eng, RunListOptions{WorkflowName: "one"})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	_, err = Run(ctx, eng, "missing", nil)
	require.True(t, errors.Is(err, api.ErrUnknownWorkflow))
}
