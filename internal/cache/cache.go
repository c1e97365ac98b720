// Package cache implements the swizzling cache-population step,
// grounded on the Cache class in
// original_source/executables/tpch_q1.cc. Populate loads a subset of
// pages into memory and swizzles the matching Swip from a page index to
// a direct pointer; repeated Populate calls grow the
// resident set incrementally across the cache-fraction sweep instead of
// resetting it between runs.
package cache

import (
	"context"

	"github.com/L-v-M/async/internal/ioring"
	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
	"github.com/L-v-M/async/internal/swip"
	"github.com/L-v-M/async/internal/task"
)

// NumConcurrentTasks is K in the cache's partitioned async load, the
// canonical fan-out from the original.
const NumConcurrentTasks = 64

// Cache owns the frame storage that cached pages live in once a Swip is
// swizzled from a page index to a pointer.
type Cache struct {
	swips    []*swip.Swip
	dataFile *storage.File

	frames    []page.LineitemQ1Page
	frameNext int
}

// New allocates frame storage with enough capacity to eventually hold
// every swip, mirroring the constructor's frames_.reserve(swips.size()).
func New(swips []*swip.Swip, dataFile *storage.File) *Cache {
	return &Cache{
		swips:    swips,
		dataFile: dataFile,
		frames:   make([]page.LineitemQ1Page, len(swips)),
	}
}

// Populate loads the pages named by swipIndexes (indexes into c.swips)
// into fresh frames and swizzles each corresponding Swip to point at its
// frame, using NumConcurrentTasks partitioned async loaders plus one
// ring-draining task, joined with task.WhenAllReady the way the original
// joins its vector of cppcoro tasks with when_all_ready+sync_wait.
func (c *Cache) Populate(ctx context.Context, swipIndexes []uint64) error {
	if len(swipIndexes) == 0 {
		return nil
	}

	ring := ioring.New(NumConcurrentTasks, NumConcurrentTasks)
	countdown := ioring.NewCountdown(NumConcurrentTasks)

	partitionSize := (uint64(len(swipIndexes)) + NumConcurrentTasks - 1) / NumConcurrentTasks

	// batchBase reserves a disjoint run of frame slots for this call up
	// front so the partitioned loaders below never contend over which
	// slot to claim next.
	batchBase := c.frameNext
	c.frameNext += len(swipIndexes)

	tasks := make([]*task.Task[struct{}], 0, NumConcurrentTasks+1)
	for i := uint64(0); i != NumConcurrentTasks; i++ {
		begin := min(i*partitionSize, uint64(len(swipIndexes)))
		end := min(begin+partitionSize, uint64(len(swipIndexes)))
		tasks = append(tasks, task.New(c.asyncLoadPages(ctx, ring, begin, end, batchBase, countdown, swipIndexes)))
	}
	tasks = append(tasks, task.New(func() (struct{}, error) {
		ioring.DrainRing(ring, countdown, ioring.DefaultBatchSize())
		return struct{}{}, nil
	}))

	task.WhenAllReady(tasks...)
	for _, t := range tasks {
		if _, err := t.Await(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) asyncLoadPages(ctx context.Context, ring *ioring.IOUring, begin, end uint64, batchBase int, countdown *ioring.Countdown, swipIndexes []uint64) func() (struct{}, error) {
	return func() (struct{}, error) {
		defer countdown.Decrement()
		for i := begin; i != end; i++ {
			frame := &c.frames[batchBase+int(i)]
			target := c.swips[swipIndexes[i]]
			if err := c.dataFile.AsyncReadPage(ctx, ring, target.GetPageIndex(), page.AsBytes(frame)); err != nil {
				return struct{}{}, err
			}
			swip.SetPointer(target, frame)
		}
		return struct{}{}, nil
	}
}
