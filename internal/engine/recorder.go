package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/scrapeflow/internal/persistence"
	"github.com/petrijr/scrapeflow/pkg/api"
)

const recorderQueueSize = 1024

// historyRecorder appends published events to an EventStore from a single
// goroutine so that a slow store never blocks step execution.
type historyRecorder struct {
	store  persistence.EventStore
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan api.Event
	done   chan struct{}
}

func newHistoryRecorder(store persistence.EventStore, logger *slog.Logger) *historyRecorder {
	h := &historyRecorder{
		store:  store,
		logger: logger,
		queue:  make(chan api.Event, recorderQueueSize),
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

// Record enqueues ev. When the queue is full the event is dropped and
// logged. Events recorded after Close are ignored.
func (h *historyRecorder) Record(ev api.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.queue <- ev:
	default:
		h.logger.Warn("history queue full, event not recorded",
			slog.String("run_id", ev.RunID),
			slog.Uint64("seq", ev.Seq),
			slog.String("type", string(ev.Type)),
		)
	}
}

func (h *historyRecorder) loop() {
	defer close(h.done)
	for ev := range h.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.store.AppendEvent(ctx, ev); err != nil {
			h.logger.Error("append history event",
				slog.String("run_id", ev.RunID),
				slog.Uint64("seq", ev.Seq),
				slog.Any("error", err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queue has drained or
// ctx is done.
func (h *historyRecorder) Close(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
