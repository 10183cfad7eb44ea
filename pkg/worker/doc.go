// Package worker provides the bounded pool that executes workflow steps.
//
// A Pool holds a fixed number of slots. Every submitted task waits for a
// slot, runs, and gives the slot back when it returns. The slot travels in
// the task's context so that code deep inside a step can temporarily hand it
// back with Yield while it blocks on something that itself needs pool
// capacity, such as a child run.
//
// # Yielding
//
// A parent step waiting on its child runs would otherwise hold a slot the
// children need. Yield releases the caller's slot for the duration of a
// wait function and re-acquires it afterwards:
//
//	err := worker.Yield(ctx, func() error {
//		<-child.done
//		return nil
//	})
//
// Yield called with a context that holds no slot simply runs the wait
// function.
package worker
