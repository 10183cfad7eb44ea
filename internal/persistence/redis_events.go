package persistence

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// RedisEventStore stores run events in Redis lists:
//
//	<prefix>events:<runID>  => LIST of JSON-encoded events, in append order
type RedisEventStore struct {
	client redis.UniversalClient
	prefix string
}

var _ EventStore = (*RedisEventStore)(nil)

// NewRedisEventStore creates a RedisEventStore.
// prefix is optional but recommended (e.g. "scrapeflow:").
func NewRedisEventStore(client redis.UniversalClient, prefix string) *RedisEventStore {
	if prefix == "" {
		prefix = "scrapeflow:"
	}
	return &RedisEventStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisEventStore) keyEvents(runID string) string {
	return s.prefix + "events:" + runID
}

func (s *RedisEventStore) AppendEvent(ctx context.Context, ev api.Event) error {
	rec, err := toRecord(ev)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.keyEvents(ev.RunID), data).Err()
}

func (s *RedisEventStore) ListEvents(ctx context.Context, runID string) ([]api.Event, error) {
	raw, err := s.client.LRange(ctx, s.keyEvents(runID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]api.Event, 0, len(raw))
	for _, item := range raw {
		var rec eventRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, err
		}
		ev, err := rec.event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
