package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// ErrUnsupportedBackend is returned by Open for an unknown backend name.
var ErrUnsupportedBackend = errors.New("unsupported history backend")

// EventStore is an append-only history of run events.
//
// Implementations must return a run's events in append order. Durable
// backends store outputs as JSON, so a round-tripped Output holds
// JSON-decoded values (map[string]any, []any, float64, string, bool).
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.Event) error
	ListEvents(ctx context.Context, runID string) ([]api.Event, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.Event) error { return nil }

func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	return nil, nil
}
