// Package task is the Go stand-in for the lazy, stackless coroutine
// tasks of original_source/cppcoro: task<T>, sync_wait, when_all_ready
// and the lightweight_manual_reset_event that sync_wait blocks on. Go
// has no stackless coroutines, so a Task[T] here is a goroutine started
// lazily on first Await, with its result delivered over a channel —
// the same "start, then wait on a manual-reset event" shape as
// sync_wait.hpp, just with the OS/Go scheduler doing the suspension
// cppcoro does by hand.
package task

import (
	"sync"

	"github.com/petermattis/goid"
)

// Task is a unit of deferred work producing a single T, started at most
// once. The zero value is not usable; construct with New.
type Task[T any] struct {
	fn     func() (T, error)
	once   sync.Once
	done   chan struct{}
	result T
	err    error
	panicV any
}

// New builds a lazily-started Task wrapping fn, mirroring task<T>'s lazy
// (does-nothing-until-awaited) start semantics.
func New[T any](fn func() (T, error)) *Task[T] {
	return &Task[T]{fn: fn, done: make(chan struct{})}
}

// start launches the goroutine at most once, regardless of how many
// goroutines call Await concurrently.
func (t *Task[T]) start() {
	t.once.Do(func() {
		go func() {
			defer close(t.done)
			defer func() {
				if r := recover(); r != nil {
					t.panicV = r
				}
			}()
			t.result, t.err = t.fn()
		}()
	})
}

// Await starts the task if it hasn't run yet and blocks until it
// completes, re-raising any panic the way result() rethrows an
// exception captured during coroutine execution.
func (t *Task[T]) Await() (T, error) {
	t.start()
	<-t.done
	if t.panicV != nil {
		panic(t.panicV)
	}
	return t.result, t.err
}

// Start begins running the task without waiting for it, for callers
// that want to fire several tasks before awaiting any of them (the
// pattern when_all_ready relies on).
func (t *Task[T]) Start() *Task[T] {
	t.start()
	return t
}

// WhenAllReady starts every task (if not already running) and blocks
// until all have completed, mirroring cppcoro::when_all_ready. It does
// not itself propagate errors or panics; call Await on each task
// afterwards to observe them.
func WhenAllReady[T any](tasks ...*Task[T]) {
	for _, t := range tasks {
		t.start()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// SyncWait runs fn to completion and returns its result, the Go
// equivalent of cppcoro::sync_wait wrapping a task in a coroutine frame
// and blocking the calling thread on a manual-reset event until it
// completes.
func SyncWait[T any](fn func() (T, error)) (T, error) {
	return New(fn).Await()
}

// GoroutineID tags the calling goroutine the way util.ReentryLock uses
// goid.Get to identify the lock's owner. Nothing in this module calls it;
// Pool and the query runners' per-thread state are not sharded by it.
func GoroutineID() int64 { return goid.Get() }
