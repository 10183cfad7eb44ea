package api

import "context"

// Spawner lets a running step start child runs and wait for them.
// The engine attaches one to the context of every step invocation.
type Spawner interface {
	// SpawnChild starts a child run of the named workflow. The child runs
	// independently of the spawning run and is not cancelled if it fails.
	SpawnChild(ctx context.Context, name string, payload any) (string, error)

	// AwaitResult suspends the step until the run is terminal.
	AwaitResult(ctx context.Context, runID string) (any, error)
}

type spawnerKey struct{}

// WithSpawner returns a context carrying s.
func WithSpawner(ctx context.Context, s Spawner) context.Context {
	return context.WithValue(ctx, spawnerKey{}, s)
}

// SpawnerFromContext returns the Spawner attached to ctx, if any.
func SpawnerFromContext(ctx context.Context) (Spawner, bool) {
	s, ok := ctx.Value(spawnerKey{}).(Spawner)
	return s, ok
}

// SpawnChild starts a child run from inside a step.
func SpawnChild(ctx context.Context, name string, payload any) (string, error) {
	s, ok := SpawnerFromContext(ctx)
	if !ok {
		return "", ErrNotInStep
	}
	return s.SpawnChild(ctx, name, payload)
}

// AwaitResult waits for a run's terminal result from inside a step.
func AwaitResult(ctx context.Context, runID string) (any, error) {
	s, ok := SpawnerFromContext(ctx)
	if !ok {
		return nil, ErrNotInStep
	}
	return s.AwaitResult(ctx, runID)
}

// SpawnAndAwait spawns a child run and waits for its result.
func SpawnAndAwait(ctx context.Context, name string, payload any) (any, error) {
	id, err := SpawnChild(ctx, name, payload)
	if err != nil {
		return nil, err
	}
	return AwaitResult(ctx, id)
}
