package api

import "time"

// EventType identifies a run lifecycle event.
type EventType string

const (
	EventStepStarted   EventType = "step.started"
	EventStepSucceeded EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"

	EventRunSucceeded EventType = "workflow.completed"
	EventRunFailed    EventType = "workflow.failed"
)

// Terminal reports whether t ends a run's event sequence.
func (t EventType) Terminal() bool {
	return t == EventRunSucceeded || t == EventRunFailed
}

// Event is one entry in a run's ordered event sequence.
//
// Seq is assigned by the event bus: strictly increasing per run, starting
// at 1. Output carries the step output (StepSucceeded) or the aggregate
// result (RunSucceeded); Error carries the failure message for the failed
// variants.
type Event struct {
	RunID    string
	Workflow string
	Seq      uint64
	Type     EventType
	Step     string
	Output   any
	Error    string
	At       time.Time
}
