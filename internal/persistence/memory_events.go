package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// InMemoryEventStore keeps events in process memory. Outputs are stored as
// given, without serialization.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]api.Event
}

var _ EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string][]api.Event)}
}

func (s *InMemoryEventStore) AppendEvent(ctx context.Context, ev api.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[runID]), nil
}
