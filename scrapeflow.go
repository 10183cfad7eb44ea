package scrapeflow

import (
	"context"

	"github.com/petrijr/scrapeflow/internal/engine"
	"github.com/petrijr/scrapeflow/internal/persistence"
	"github.com/petrijr/scrapeflow/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowDefinition   = api.WorkflowDefinition
	StepDefinition       = api.StepDefinition
	StepFunc             = api.StepFunc
	StepInput            = api.StepInput
	RunSnapshot          = api.RunSnapshot
	RunListOptions       = api.RunListOptions
	RunStatus            = api.RunStatus
	Event                = api.Event
	EventType            = api.EventType
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	EventStore           = persistence.EventStore

	// LocalEngine is the in-process engine implementation.
	LocalEngine = engine.Engine

	// Config configures a LocalEngine.
	Config = engine.Config
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending   = api.RunPending
	StatusRunning   = api.RunRunning
	StatusSucceeded = api.RunSucceeded
	StatusFailed    = api.RunFailed
)

// NewInMemoryEngine returns an engine with default settings that keeps its
// event history in memory.
func NewInMemoryEngine() *LocalEngine {
	return engine.NewInMemoryEngine()
}

// NewEngine returns an engine configured by cfg.
func NewEngine(cfg Config) *LocalEngine {
	return engine.NewEngine(cfg)
}

// OpenEventStore opens a history store by backend name ("memory", "sqlite",
// "postgres", "redis", "mongo" or "none"). The returned close function
// releases the backend's connections.
func OpenEventStore(ctx context.Context, backend, dsn string) (EventStore, func() error, error) {
	return persistence.Open(ctx, backend, dsn)
}

// Convenience helpers that just forward to the underlying Engine.

// Start starts a run of a registered workflow and returns its identifier.
func Start(ctx context.Context, eng Engine, name string, payload any) (string, error) {
	return eng.StartRun(ctx, name, payload)
}

// Run starts a workflow and waits for its aggregate result.
func Run(ctx context.Context, eng Engine, name string, payload any) (any, error) {
	id, err := eng.StartRun(ctx, name, payload)
	if err != nil {
		return nil, err
	}
	return eng.AwaitResult(ctx, id)
}

// GetRun fetches a run snapshot by ID.
func GetRun(ctx context.Context, eng Engine, id string) (*RunSnapshot, error) {
	return eng.GetRun(ctx, id)
}

// ListRuns lists runs according to the given options.
func ListRuns(ctx context.Context, eng Engine, opts RunListOptions) ([]*RunSnapshot, error) {
	return eng.ListRuns(ctx, opts)
}
