// Package eventbus fans out run events to any number of subscribers.
//
// Each run has its own topic. Publish assigns the run's next sequence number
// and hands the event to every current subscriber without blocking. A
// subscriber's buffer is bounded; on overflow the oldest buffered
// non-terminal event is discarded and counted. The terminal event is kept
// apart from the buffer and is always delivered.
package eventbus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/scrapeflow/pkg/api"
)

// DefaultBufferSize is the per-subscriber buffer used when none is configured.
const DefaultBufferSize = 256

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber buffer size.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the logger used for overflow warnings.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// Bus is an in-process, per-run publish/subscribe hub.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topic

	bufferSize int
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		topics:     make(map[string]*topic),
		bufferSize: DefaultBufferSize,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open creates the topic for a run. It must be called before the run
// publishes anything; calling it again for the same run is a no-op.
func (b *Bus) Open(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.topics[runID]; ok {
		return
	}
	b.topics[runID] = &topic{
		runID: runID,
		subs:  make(map[*Subscription]struct{}),
	}
}

// Publish stamps ev with the run's next sequence number (and the current
// time when ev.At is zero) and delivers it to every subscriber. It returns
// the stamped event and false if the run has no topic or already published
// its terminal event; such events are discarded.
func (b *Bus) Publish(ev api.Event) (api.Event, bool) {
	t := b.topic(ev.RunID)
	if t == nil {
		return ev, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminal != nil {
		return ev, false
	}

	t.seq++
	ev.Seq = t.seq
	if ev.At.IsZero() {
		ev.At = b.now()
	}

	if ev.Type.Terminal() {
		term := ev
		t.terminal = &term
		for s := range t.subs {
			s.finish(term)
		}
		clear(t.subs)
		return ev, true
	}

	for s := range t.subs {
		if s.push(ev) {
			b.logger.Warn("subscriber buffer full, dropped oldest event",
				slog.String("run_id", ev.RunID),
				slog.Uint64("seq", ev.Seq),
				slog.Int64("dropped", s.Dropped()),
			)
		}
	}
	return ev, true
}

// Subscribe returns a subscription to a run's events from this point on.
// If the run has already finished, the subscription yields only the
// terminal event. Unknown (or evicted) runs yield api.ErrUnknownRun.
func (b *Bus) Subscribe(runID string) (*Subscription, error) {
	t := b.topic(runID)
	if t == nil {
		return nil, api.ErrUnknownRun
	}

	s := newSubscription(runID, b.bufferSize)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.terminal != nil {
		s.finish(*t.terminal)
		return s, nil
	}

	t.subs[s] = struct{}{}
	s.detach = func() {
		t.mu.Lock()
		delete(t.subs, s)
		t.mu.Unlock()
	}
	return s, nil
}

// Terminal returns the run's terminal event once it has been published.
func (b *Bus) Terminal(runID string) (api.Event, bool) {
	t := b.topic(runID)
	if t == nil {
		return api.Event{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal == nil {
		return api.Event{}, false
	}
	return *t.terminal, true
}

// Evict forgets a run's topic. Existing subscriptions keep whatever they
// already received; new subscriptions fail with api.ErrUnknownRun.
func (b *Bus) Evict(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, runID)
}

// Len returns the number of open topics.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

func (b *Bus) topic(runID string) *topic {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.topics[runID]
}

type topic struct {
	runID string

	mu       sync.Mutex
	seq      uint64
	subs     map[*Subscription]struct{}
	terminal *api.Event
}
