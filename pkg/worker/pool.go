package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of slots used when NewPool is given a
// non-positive size.
const DefaultSize = 16

// Task is a unit of work run by a Pool.
type Task func(ctx context.Context)

// Pool runs tasks with bounded concurrency.
type Pool struct {
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
	wg    sync.WaitGroup
}

// NewPool creates a pool with size slots.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return int(p.size) }

// InUse returns the number of slots currently held by running tasks.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Submit runs task in its own goroutine once a slot is free. It never
// blocks the caller.
//
// If ctx is done before a slot frees up, task still runs, without a slot and
// with the done ctx, so it can observe ctx.Err() and clean up.
func (p *Pool) Submit(ctx context.Context, task Task) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		s := &slot{pool: p}
		if err := s.acquire(ctx); err != nil {
			task(ctx)
			return
		}
		defer s.release()

		task(context.WithValue(ctx, slotKey{}, s))
	}()
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Yield releases the slot carried by ctx, runs wait, and re-acquires the
// slot before returning. The error from wait takes precedence over a failure
// to re-acquire.
//
// Concurrent Yields on the same ctx share one suspension: the slot is given
// back when the first waiter starts and taken again when the last one ends.
func Yield(ctx context.Context, wait func() error) error {
	s, ok := ctx.Value(slotKey{}).(*slot)
	if !ok {
		return wait()
	}

	s.suspend()
	err := wait()
	if aerr := s.resume(ctx); aerr != nil && err == nil {
		err = aerr
	}
	return err
}

type slotKey struct{}

// slot tracks whether a task currently holds one unit of the pool and how
// many of its goroutines are suspended in Yield.
type slot struct {
	pool *Pool

	mu      sync.Mutex
	held    bool
	waiters int
}

func (s *slot) acquire(ctx context.Context) error {
	if err := s.pool.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.mu.Lock()
	s.held = true
	s.mu.Unlock()
	s.pool.inUse.Add(1)
	return nil
}

// suspend registers a waiter and gives the unit back on the 0 to 1 edge.
func (s *slot) suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters++
	if s.waiters == 1 && s.held {
		s.held = false
		s.pool.inUse.Add(-1)
		s.pool.sem.Release(1)
	}
}

// resume unregisters a waiter and takes the unit again on the 1 to 0 edge.
// The semaphore is acquired without holding mu; a unit that turns out not to
// be needed is handed straight back.
func (s *slot) resume(ctx context.Context) error {
	s.mu.Lock()
	s.waiters--
	if s.waiters > 0 || s.held {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.pool.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiters > 0 || s.held {
		s.pool.sem.Release(1)
		return nil
	}
	s.held = true
	s.pool.inUse.Add(1)
	return nil
}

// release returns the unit if the task still holds it.
func (s *slot) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held {
		return
	}
	s.held = false
	s.pool.inUse.Add(-1)
	s.pool.sem.Release(1)
}
