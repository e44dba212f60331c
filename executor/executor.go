// Package executor runs dial-out tasks on a bounded number of goroutines.
//
// Submitting never blocks the caller: every task gets its own goroutine, which
// then waits on a weighted semaphore before running. At most Size tasks run at
// the same time; the rest queue up on the semaphore.
//
//	Submit(a) ──┐
//	Submit(b) ──┼──→ semaphore(size) ──→ task runs ──→ Future resolved
//	Submit(c) ──┘
//
// Once submitted, a task runs to completion or failure: its context keeps the
// caller's values but not the caller's cancellation.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor is a bounded worker pool.
type Executor struct {
	sem  *semaphore.Weighted
	size int
	wg   sync.WaitGroup // Tracks submitted tasks until they finish
}

// New creates an executor running at most workers tasks at once.
// workers <= 0 sizes it to the number of CPUs.
func New(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{
		sem:  semaphore.NewWeighted(int64(workers)),
		size: workers,
	}
}

// Size returns the maximum number of concurrently running tasks.
func (e *Executor) Size() int {
	return e.size
}

// Wait blocks until every task submitted so far has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Submit schedules task and returns its pending result immediately.
func Submit[T any](e *Executor, ctx context.Context, task func(context.Context) (T, error)) *Future[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)

	f := newFuture[T]()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		// Acquire cannot fail: ctx is never canceled.
		_ = e.sem.Acquire(ctx, 1)
		defer e.sem.Release(1)

		f.resolve(run(ctx, task))
	}()
	return f
}

// run calls task, turning a panic into an error.
func run[T any](ctx context.Context, task func(context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
