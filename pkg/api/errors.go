package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownWorkflow is returned when a workflow name is not registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrUnknownRun is returned when a run identifier was never issued
	// (or its run has already been evicted).
	ErrUnknownRun = errors.New("unknown run")

	// ErrDuplicateWorkflow is returned when a workflow name is registered twice.
	ErrDuplicateWorkflow = errors.New("workflow already registered")

	// ErrInvalidWorkflow is returned when a definition fails validation.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")

	// ErrCyclicWorkflow is returned when the step graph contains a cycle.
	ErrCyclicWorkflow = errors.New("workflow step graph contains a cycle")

	// ErrStepExecution matches every StepError.
	ErrStepExecution = errors.New("step execution failed")

	// ErrChildRunFailed matches every ChildRunError.
	ErrChildRunFailed = errors.New("child run failed")

	// ErrNoTriggeredWorkflow is returned by Emit when no workflow listens
	// for the event.
	ErrNoTriggeredWorkflow = errors.New("no workflow registered for event")

	// ErrNotInStep is returned by SpawnChild when ctx does not belong to a
	// running step.
	ErrNotInStep = errors.New("context does not belong to a running step")

	// ErrEngineClosed is returned once the engine has been shut down.
	ErrEngineClosed = errors.New("engine closed")
)

// StepError reports that a step's executor failed.
type StepError struct {
	RunID string
	Step  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrStepExecution }

// ChildRunError reports that a spawned run terminated in failure.
type ChildRunError struct {
	RunID    string
	Workflow string
	Err      error
}

func (e *ChildRunError) Error() string {
	return fmt.Sprintf("child run %s (%s) failed: %v", e.RunID, e.Workflow, e.Err)
}

func (e *ChildRunError) Unwrap() error { return e.Err }

func (e *ChildRunError) Is(target error) bool { return target == ErrChildRunFailed }

// FailureMessage returns the human-readable message for a failed run: the
// message of the executor error that caused it, without the engine's
// wrapping.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *StepError
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	return err.Error()
}
