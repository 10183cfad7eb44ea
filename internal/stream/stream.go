// Package stream turns a run's events into the client-facing message
// sequence.
//
// Every event becomes one Message. After the run's terminal event the
// stream yields a final message of type "result" carrying the aggregate
// result, or an error payload when the run failed, and then ends.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/petrijr/scrapeflow/internal/eventbus"
	"github.com/petrijr/scrapeflow/pkg/api"
)

// TypeResult is the type of the final message of every stream.
const TypeResult = "result"

// Message is one element of a stream as sent on the wire.
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	MessageID string `json:"messageId"`
}

// ErrorPayload is the result payload of a failed run.
type ErrorPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Source provides subscriptions to run events.
type Source interface {
	Subscribe(runID string) (*eventbus.Subscription, error)
}

// Stream is a pull-based view of one run's messages. It is not safe for
// concurrent use.
type Stream struct {
	runID string
	sub   *eventbus.Subscription

	result *Message
	ended  bool
}

// Open subscribes to runID. The caller must Close the stream.
func Open(ctx context.Context, src Source, runID string) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := src.Subscribe(runID)
	if err != nil {
		return nil, err
	}
	return &Stream{runID: runID, sub: sub}, nil
}

// RunID returns the run this stream follows.
func (s *Stream) RunID() string { return s.runID }

// Dropped reports how many events were discarded because the consumer fell
// behind.
func (s *Stream) Dropped() int64 { return s.sub.Dropped() }

// Next blocks until the next message is available. After the result
// message it returns io.EOF.
func (s *Stream) Next(ctx context.Context) (Message, error) {
	if s.ended {
		return Message{}, io.EOF
	}
	if s.result != nil {
		m := *s.result
		s.result = nil
		s.ended = true
		return m, nil
	}

	ev, err := s.sub.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// The subscription ended without us seeing the terminal event.
			s.ended = true
		}
		return Message{}, err
	}

	m := s.message(ev)
	if ev.Type.Terminal() {
		r := s.resultMessage(ev)
		s.result = &r
	}
	return m, nil
}

// Close releases the subscription. It is safe to call more than once.
func (s *Stream) Close() {
	s.sub.Close()
}

// Messages iterates over the remaining messages. Iteration stops after the
// result message, or after yielding the first error.
func (s *Stream) Messages(ctx context.Context) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		for {
			m, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(m, err) || err != nil {
				return
			}
		}
	}
}

func (s *Stream) message(ev api.Event) Message {
	m := Message{Type: string(ev.Type), MessageID: s.runID}
	switch ev.Type {
	case api.EventStepStarted:
		m.Payload = map[string]any{"step": ev.Step}
	case api.EventStepSucceeded:
		m.Payload = map[string]any{"step": ev.Step, "output": ev.Output}
	case api.EventStepFailed:
		m.Payload = map[string]any{"step": ev.Step, "error": ev.Error}
	case api.EventRunSucceeded:
		m.Payload = ev.Output
	case api.EventRunFailed:
		m.Payload = map[string]any{"step": ev.Step, "error": ev.Error}
	default:
		m.Payload = ev.Output
	}
	return m
}

func (s *Stream) resultMessage(ev api.Event) Message {
	m := Message{Type: TypeResult, MessageID: s.runID}
	if ev.Type == api.EventRunFailed {
		m.Payload = ErrorPayload{Status: "error", Message: ev.Error}
	} else {
		m.Payload = ev.Output
	}
	return m
}

// WriteSSE writes m as one server-sent event frame: "data: <json>\n\n".
func WriteSSE(w io.Writer, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
