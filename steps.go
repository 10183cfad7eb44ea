package scrapeflow

import (
	"context"
	"fmt"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// SpawnChild starts a child run from inside a step.
func SpawnChild(ctx context.Context, name string, payload any) (string, error) {
	return api.SpawnChild(ctx, name, payload)
}

// AwaitResult waits for a run's result from inside a step. The step's
// worker slot is released while it waits.
func AwaitResult(ctx context.Context, runID string) (any, error) {
	return api.AwaitResult(ctx, runID)
}

// ParentAs returns the output of the named parent step as a T.
func ParentAs[T any](in StepInput, step string) (T, error) {
	var zero T
	v, ok := in.ParentOutput(step)
	if !ok {
		return zero, fmt.Errorf("step %q is not a parent", step)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("parent %q output is %T, want %T", step, v, zero)
	}
	return t, nil
}

// TypedStep adapts a function over a typed payload into a StepFunc.
// The run payload must be an I.
func TypedStep[I, O any](fn func(ctx context.Context, payload I, in StepInput) (O, error)) StepFunc {
	return func(ctx context.Context, in StepInput) (any, error) {
		payload, ok := in.Payload.(I)
		if !ok && in.Payload != nil {
			var zero I
			return nil, fmt.Errorf("payload is %T, want %T", in.Payload, zero)
		}
		return fn(ctx, payload, in)
	}
}

// Child names a workflow to run as a child and the key its result is
// stored under.
type Child struct {
	Key      string
	Workflow string
	Payload  any
}

// ChildrenStep returns a step that runs each child workflow in turn, waiting
// for one to finish before spawning the next, and returns their results
// keyed by Child.Key. The first failing child fails the step.
func ChildrenStep(children ...Child) StepFunc {
	return func(ctx context.Context, in StepInput) (any, error) {
		out := make(map[string]any, len(children))
		for _, c := range children {
			res, err := api.SpawnAndAwait(ctx, c.Workflow, c.Payload)
			if err != nil {
				return nil, err
			}
			out[c.Key] = res
		}
		return out, nil
	}
}
