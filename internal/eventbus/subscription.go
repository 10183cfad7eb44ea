package eventbus

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// ErrSubscriptionClosed is returned by Next after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Subscription is one consumer's view of a run's events.
type Subscription struct {
	runID string
	size  int

	mu        sync.Mutex
	buf       []api.Event
	terminal  *api.Event
	delivered bool
	closed    bool

	notify  chan struct{}
	dropped atomic.Int64

	detach    func()
	closeOnce sync.Once
}

func newSubscription(runID string, size int) *Subscription {
	return &Subscription{
		runID:  runID,
		size:   size,
		buf:    make([]api.Event, 0, min(size, 16)),
		notify: make(chan struct{}, 1),
	}
}

// RunID returns the run this subscription follows.
func (s *Subscription) RunID() string { return s.runID }

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Next returns the next event, blocking until one is available or ctx is
// done. After the terminal event has been returned, Next returns io.EOF.
func (s *Subscription) Next(ctx context.Context) (api.Event, error) {
	for {
		s.mu.Lock()
		switch {
		case s.closed:
			s.mu.Unlock()
			return api.Event{}, ErrSubscriptionClosed
		case len(s.buf) > 0:
			ev := s.buf[0]
			s.buf[0] = api.Event{}
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return ev, nil
		case s.terminal != nil && !s.delivered:
			s.delivered = true
			ev := *s.terminal
			s.mu.Unlock()
			return ev, nil
		case s.delivered:
			s.mu.Unlock()
			return api.Event{}, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return api.Event{}, ctx.Err()
		}
	}
}

// Close detaches the subscription from its run and discards anything still
// buffered. It is safe to call more than once and from any goroutine.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		s.mu.Lock()
		s.closed = true
		clear(s.buf)
		s.buf = nil
		s.terminal = nil
		s.mu.Unlock()
		s.signal()
	})
}

// push buffers ev, discarding the oldest event on overflow. It reports
// whether an event was dropped.
func (s *Subscription) push(ev api.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if len(s.buf) >= s.size {
		s.buf = append(s.buf[:0], s.buf[1:]...)
		s.dropped.Add(1)
		dropped = true
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()

	s.signal()
	return dropped
}

// finish records the terminal event.
func (s *Subscription) finish(ev api.Event) {
	s.mu.Lock()
	if s.terminal == nil {
		s.terminal = &ev
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
