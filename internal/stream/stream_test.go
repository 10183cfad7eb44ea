package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/scrapeflow/internal/engine"
	"github.com/petrijr/scrapeflow/internal/eventbus"
	"github.com/petrijr/scrapeflow/pkg/api"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.NewEngine(engine.Config{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e
}

func collect(t *testing.T, s *Stream) []Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []Message
	for m, err := range s.Messages(ctx) {
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func types(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

// Scenario C: a failing single-step run ends with an error result.
func TestStream_FailedRunEndsWithErrorResult(t *testing.T) {
	e := newEngine(t)
	gate := make(chan struct{})
	require.NoError(t, e.RegisterWorkflow(api.WorkflowDefinition{
		Name: "flaky",
		Steps: []api.StepDefinition{{Name: "fetch", Fn: func(ctx context.Context, in api.StepInput) (any, error) {
			<-gate
			return nil, errors.New("network timeout")
		}}},
	}))

	id, err := e.StartRun(context.Background(), "flaky", nil)
	require.NoError(t, err)

	s, err := Open(context.Background(), e, id)
	require.NoError(t, err)
	defer s.Close()
	close(gate)

	msgs := collect(t, s)
	require.GreaterOrEqual(t, len(msgs), 3)

	failed := 0
	for _, m := range msgs {
		require.Equal(t, id, m.MessageID)
		if m.Type == string(api.EventStepFailed) {
			failed++
		}
	}
	require.Equal(t, 1, failed)

	n := len(msgs)
	require.Equal(t, string(api.EventRunFailed), msgs[n-2].Type)
	require.Equal(t, TypeResult, msgs[n-1].Type)
	require.Equal(t, ErrorPayload{Status: "error", Message: "network timeout"}, msgs[n-1].Payload)

	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, msgs[n-1]))
	require.Equal(t,
		`data: {"type":"result","payload":{"status":"error","message":"network timeout"},"messageId":"`+id+`"}`+"\n\n",
		buf.String())

	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestStream_SuccessfulRunDeliversEveryEventThenResult(t *testing.T) {
	e := newEngine(t)
	gate := make(chan struct{})
	require.NoError(t, e.RegisterWorkflow(api.WorkflowDefinition{
		Name: "ok",
		Steps: []api.StepDefinition{
			{Name: "gate", Fn: func(ctx context.Context, in api.StepInput) (any, error) {
				<-gate
				return "opened", nil
			}},
			{Name: "next", Parents: []string{"gate"}, Fn: func(ctx context.Context, in api.StepInput) (any, error) {
				return 42, nil
			}},
		},
	}))

	id, err := e.StartRun(context.Background(), "ok", nil)
	require.NoError(t, err)
	s, err := Open(context.Background(), e, id)
	require.NoError(t, err)
	defer s.Close()
	close(gate)

	msgs := collect(t, s)
	got := types(msgs)

	// "gate" may have started before we subscribed.
	if got[0] == string(api.EventStepStarted) {
		got = got[1:]
		msgs = msgs[1:]
	}
	require.Equal(t, []string{
		string(api.EventStepSucceeded),
		string(api.EventStepStarted),
		string(api.EventStepSucceeded),
		string(api.EventRunSucceeded),
		TypeResult,
	}, got)

	require.Equal(t, map[string]any{"step": "gate", "output": "opened"}, msgs[0].Payload)
	want := map[string]any{"gate": "opened", "next": 42}
	require.Equal(t, want, msgs[len(msgs)-1].Payload)
	require.Equal(t, want, msgs[len(msgs)-2].Payload)
}

func TestStream_LateSubscriberGetsTerminalAndResult(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.RegisterWorkflow(api.WorkflowDefinition{
		Name:  "done",
		Steps: []api.StepDefinition{{Name: "s", Fn: func(ctx context.Context, in api.StepInput) (any, error) { return "v", nil }}},
	}))

	id, err := e.StartRun(context.Background(), "done", nil)
	require.NoError(t, err)
	_, err = e.AwaitResult(context.Background(), id)
	require.NoError(t, err)

	s, err := Open(context.Background(), e, id)
	require.NoError(t, err)
	defer s.Close()

	msgs := collect(t, s)
	require.Equal(t, []string{string(api.EventRunSucceeded), TypeResult}, types(msgs))
	require.Equal(t, map[string]any{"s": "v"}, msgs[1].Payload)
}

func TestStream_UnknownRun(t *testing.T) {
	e := newEngine(t)
	_, err := Open(context.Background(), e, "nope")
	require.ErrorIs(t, err, api.ErrUnknownRun)
}

func TestStream_CloseDoesNotCancelRun(t *testing.T) {
	e := newEngine(t)
	gate := make(chan struct{})
	require.NoError(t, e.RegisterWorkflow(api.WorkflowDefinition{
		Name: "long",
		Steps: []api.StepDefinition{{Name: "s", Fn: func(ctx context.Context, in api.StepInput) (any, error) {
			<-gate
			return "finished", nil
		}}},
	}))

	id, err := e.StartRun(context.Background(), "long", nil)
	require.NoError(t, err)
	s, err := Open(context.Background(), e, id)
	require.NoError(t, err)

	// Consumer goes away mid-run.
	s.Close()
	s.Close()
	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, eventbus.ErrSubscriptionClosed)

	close(gate)
	res, err := e.AwaitResult(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"s": "finished"}, res)
}

func TestStream_NextHonoursContext(t *testing.T) {
	e := newEngine(t)
	gate := make(chan struct{})
	defer close(gate)
	require.NoError(t, e.RegisterWorkflow(api.WorkflowDefinition{
		Name: "blocked",
		Steps: []api.StepDefinition{{Name: "s", Fn: func(ctx context.Context, in api.StepInput) (any, error) {
			<-gate
			return nil, nil
		}}},
	}))
	id, err := e.StartRun(context.Background(), "blocked", nil)
	require.NoError(t, err)

	s, err := Open(context.Background(), e, id)
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for {
		_, err = s.Next(ctx)
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWriteSSE_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, Message{Type: "step.started", Payload: map[string]any{"step": "a"}, MessageID: "r1"}))
	require.Equal(t, "data: {\"type\":\"step.started\",\"payload\":{\"step\":\"a\"},\"messageId\":\"r1\"}\n\n", buf.String())

	require.Error(t, WriteSSE(&buf, Message{Payload: make(chan int)}))
}
