// Package api contains the core building blocks used by the scrapeflow
// workflow engine: workflow and step definitions, run snapshots, lifecycle
// events, error types and the Observer interface.
//
// Most users interact with the higher-level scrapeflow package, which
// re-exports selected types from this package.
//
// # Workflows
//
// A workflow definition is a named directed acyclic graph of steps. Each step
// names the steps it depends on (its parents). A step becomes runnable when
// every parent has succeeded, and receives the run payload plus the outputs
// of its parents through StepInput.
//
// A run is a single execution of a workflow. Its aggregate result maps every
// step name to that step's output. The first failing step fails the run and
// no further steps are scheduled.
//
// # Child runs
//
// A step may start runs of other workflows and wait for them using
// SpawnChild and AwaitResult. Both require the context handed to the step by
// the engine. While a step waits on AwaitResult it does not hold a worker
// slot.
//
// # Events
//
// Every run publishes an ordered sequence of Events, ending in exactly one
// terminal event (EventRunSucceeded or EventRunFailed).
//
// # Observability
//
// Observer receives run and step lifecycle callbacks. NoopObserver,
// LoggingObserver and BasicMetrics are ready-made implementations;
// NewCompositeObserver combines several.
package api
