package queryrunner

import (
	"github.com/L-v-M/async/internal/ioring"
	"github.com/L-v-M/async/internal/task"
)

// asyncTask is the unit both runners' async batches are built from: a
// fire-and-forget unit of work whose only observable result is an error.
type asyncTask = *task.Task[struct{}]

// taskPool is a per-worker-goroutine task.Pool, handed down into
// processAsyncBatch so the many short-lived tasks one scan submits across
// its batches reuse allocations instead of a fresh task.New per batch.
type taskPool = *task.Pool[struct{}]

func newAsyncTask(pool taskPool, fn func() (struct{}, error)) asyncTask { return pool.Get(fn) }

// newDrainTask wraps ioring.DrainRing as an asyncTask so it can sit in
// the same when_all_ready batch as the reads it drains.
func newDrainTask(pool taskPool, ring *ioring.IOUring, countdown *ioring.Countdown) asyncTask {
	return pool.Get(func() (struct{}, error) {
		ioring.DrainRing(ring, countdown, ioring.DefaultBatchSize())
		return struct{}{}, nil
	})
}

// awaitAll starts every task in batch, waits for them all to finish,
// returns every task to pool for the next batch's reuse, and reports the
// first error encountered (if any).
func awaitAll(pool taskPool, batch []asyncTask) error {
	task.WhenAllReady(batch...)
	var firstErr error
	for _, t := range batch {
		if _, err := t.Await(); err != nil && firstErr == nil {
			firstErr = err
		}
		pool.Put(t)
	}
	return firstErr
}
