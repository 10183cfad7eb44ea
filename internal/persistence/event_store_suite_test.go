package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// EventStoreSuite exercises any EventStore implementation.
type EventStoreSuite struct {
	suite.Suite
	store EventStore
	ctx   context.Context
}

func (s *EventStoreSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *EventStoreSuite) append(ev api.Event) {
	s.Require().NoError(s.store.AppendEvent(s.ctx, ev))
}

func (s *EventStoreSuite) TestAppendAndListInOrder() {
	runID := uuid.NewString()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.append(api.Event{RunID: runID, Workflow: "wf", Seq: 1, Type: api.EventStepStarted, Step: "fetch", At: at})
	s.append(api.Event{
		RunID: runID, Workflow: "wf", Seq: 2, Type: api.EventStepSucceeded, Step: "fetch",
		Output: map[string]any{"status": "ok", "links": []any{"a", "b"}, "count": float64(2)},
		At:     at.Add(time.Second),
	})
	s.append(api.Event{RunID: runID, Workflow: "wf", Seq: 3, Type: api.EventRunFailed, Step: "parse", Error: "network timeout", At: at.Add(2 * time.Second)})

	evs, err := s.store.ListEvents(s.ctx, runID)
	s.Require().NoError(err)
	s.Require().Len(evs, 3)

	for i, ev := range evs {
		s.Equal(uint64(i+1), ev.Seq)
		s.Equal(runID, ev.RunID)
		s.Equal("wf", ev.Workflow)
		s.True(ev.At.Equal(at.Add(time.Duration(i)*time.Second)), "event %d at %v", i, ev.At)
	}

	s.Equal(api.EventStepStarted, evs[0].Type)
	s.Equal("fetch", evs[0].Step)
	s.Nil(evs[0].Output)

	s.Equal(map[string]any{"status": "ok", "links": []any{"a", "b"}, "count": float64(2)}, evs[1].Output)

	s.Equal(api.EventRunFailed, evs[2].Type)
	s.Equal("network timeout", evs[2].Error)
}

func (s *EventStoreSuite) TestListUnknownRunIsEmpty() {
	evs, err := s.store.ListEvents(s.ctx, uuid.NewString())
	s.Require().NoError(err)
	s.Empty(evs)
}

func (s *EventStoreSuite) TestRunsAreIsolated() {
	r1, r2 := uuid.NewString(), uuid.NewString()
	s.append(api.Event{RunID: r1, Seq: 1, Type: api.EventStepStarted, Step: "a", At: time.Now()})
	s.append(api.Event{RunID: r2, Seq: 1, Type: api.EventStepStarted, Step: "b", At: time.Now()})
	s.append(api.Event{RunID: r1, Seq: 2, Type: api.EventRunSucceeded, At: time.Now()})

	evs, err := s.store.ListEvents(s.ctx, r1)
	s.Require().NoError(err)
	s.Require().Len(evs, 2)
	for _, ev := range evs {
		s.Equal(r1, ev.RunID)
	}

	evs, err = s.store.ListEvents(s.ctx, r2)
	s.Require().NoError(err)
	s.Require().Len(evs, 1)
	s.Equal("b", evs[0].Step)
}
