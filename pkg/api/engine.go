package api

import "context"

// Engine is the workflow orchestration API.
type Engine interface {
	// RegisterWorkflow validates and registers a definition by name.
	// Names are unique; a second registration fails with ErrDuplicateWorkflow.
	RegisterWorkflow(def WorkflowDefinition) error

	// StartRun creates a run of the named workflow and returns its
	// identifier without waiting for any step. Execution continues in the
	// background and is not tied to ctx.
	StartRun(ctx context.Context, name string, payload any) (string, error)

	// Emit starts every workflow that lists event among its triggers and
	// returns the new run identifiers.
	Emit(ctx context.Context, event string, payload any) ([]string, error)

	// AwaitResult blocks until the run is terminal and returns its aggregate
	// result, or a *ChildRunError when it failed. When called from inside a
	// step, the step's worker slot is released while waiting.
	AwaitResult(ctx context.Context, runID string) (any, error)

	// GetRun returns a snapshot of a run.
	GetRun(ctx context.Context, runID string) (*RunSnapshot, error)

	// ListRuns returns snapshots of runs matching the given options.
	ListRuns(ctx context.Context, opts RunListOptions) ([]*RunSnapshot, error)
}
