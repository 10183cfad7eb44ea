package api

import (
	"context"
	"maps"
	"time"
)

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// Terminal reports whether s is a final run status.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// StepStatus represents the lifecycle state of a single step within a run.
type StepStatus string

const (
	StepBlocked   StepStatus = "BLOCKED"
	StepReady     StepStatus = "READY"
	StepRunning   StepStatus = "RUNNING"
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
)

// StepInput is what a step function receives when it runs.
type StepInput struct {
	// RunID is the identifier of the run executing the step.
	RunID string

	// Workflow is the name of the workflow the run belongs to.
	Workflow string

	// Payload is the trigger payload the run was started with.
	Payload any

	// parents holds the outputs of the step's declared parents. It is a
	// private copy; mutating it never affects the run.
	parents map[string]any
}

// NewStepInput builds a StepInput. The parents map is copied.
func NewStepInput(runID, workflow string, payload any, parents map[string]any) StepInput {
	return StepInput{
		RunID:    runID,
		Workflow: workflow,
		Payload:  payload,
		parents:  maps.Clone(parents),
	}
}

// ParentOutput returns the output of the named parent step.
func (in StepInput) ParentOutput(step string) (any, bool) {
	v, ok := in.parents[step]
	return v, ok
}

// Parents returns a copy of all parent outputs keyed by step name.
func (in StepInput) Parents() map[string]any {
	return maps.Clone(in.parents)
}

// StepFunc is the executor behind a step. It returns the step's output or an
// error describing why the step failed. The engine never retries a failed
// step.
//
// A step that needs another workflow's result uses SpawnChild and
// AwaitResult with the ctx it was given.
type StepFunc func(ctx context.Context, in StepInput) (any, error)

// StepDefinition describes a named step and the steps it depends on.
type StepDefinition struct {
	Name    string
	Parents []string
	Fn      StepFunc
}

// WorkflowDefinition describes a workflow as a graph of steps.
// Definitions are immutable once registered.
type WorkflowDefinition struct {
	Name  string
	Steps []StepDefinition

	// Triggers lists the event names that start this workflow via Engine.Emit.
	Triggers []string
}

// StepSnapshot is a point-in-time copy of a step run.
type StepSnapshot struct {
	Name        string
	Parents     []string
	Status      StepStatus
	Output      any
	Err         error
	Transitions map[StepStatus]time.Time
}

// RunSnapshot is a point-in-time copy of a workflow run.
type RunSnapshot struct {
	ID          string
	Workflow    string
	ParentRunID string
	Status      RunStatus
	Payload     any
	Result      any
	Err         error
	Steps       []StepSnapshot
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// Step returns the snapshot of the named step.
func (r *RunSnapshot) Step(name string) (StepSnapshot, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepSnapshot{}, false
}

// RunListOptions controls how runs are listed.
// Zero values mean "no filter" for that field.
type RunListOptions struct {
	// WorkflowName, if non-empty, limits results to runs of the given workflow.
	WorkflowName string

	// Status, if non-empty, limits results to runs with the given status.
	Status RunStatus

	// ParentRunID, if non-empty, limits results to runs spawned by that run.
	ParentRunID string
}
