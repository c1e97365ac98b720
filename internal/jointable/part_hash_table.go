package jointable

import (
	"context"
	"sync/atomic"

	"github.com/L-v-M/async/internal/column"
	"github.com/L-v-M/async/internal/ioring"
	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
	"github.com/L-v-M/async/internal/swip"
	"github.com/L-v-M/async/internal/task"
	"github.com/L-v-M/async/internal/xerrors"
)

// partEntry is a Treiber-stack node: buckets hold only a head pointer,
// and new entries are pushed in whatever order MergeLocalEntries races
// them in. Unlike LineitemHashTable's chains, order here doesn't
// matter — LookupPartkey only needs the one entry with a matching key.
type partEntry struct {
	next        atomic.Pointer[partEntry]
	swip        *swip.Swip
	partkey     column.Integer
	tupleOffset uint32
}

// PartHashTable keeps, for every partkey that some in-window lineitem
// row references, the location (page swip + in-page offset) of its part
// row, plus a per-page reference count used to decide which part pages
// are worth caching first.
type PartHashTable struct {
	threadLocalEntries [][]*partEntry
	buckets            []atomic.Pointer[partEntry]
	mask               uint64

	swips           []*swip.Swip
	pageReferences  []uint32
	partPagesBuffer []page.PartPage

	numUsedBufferPages  uint64
	numCachedReferences uint64
}

func NewPartHashTable(threadCount int, totalNumPages uint64) *PartHashTable {
	pt := &PartHashTable{
		threadLocalEntries: make([][]*partEntry, threadCount),
		swips:              make([]*swip.Swip, totalNumPages),
		pageReferences:     make([]uint32, totalNumPages),
		partPagesBuffer:    make([]page.PartPage, totalNumPages),
	}
	for i := range pt.swips {
		pt.swips[i] = swip.MakePageIndex(uint64(i))
	}
	return pt
}

// InsertLocalEntries scans the part pages [beginPageIndex, beginPageIndex
// + len(pages)) and stages one entry per row whose partkey is actually
// referenced by lineitemTable, recording how many lineitem rows
// reference each such page along the way.
func (pt *PartHashTable) InsertLocalEntries(pages []page.PartPage, beginPageIndex uint64, threadIndex int, lineitemTable *LineitemHashTable) {
	entries := pt.threadLocalEntries[threadIndex]
	for i, pg := range pages {
		pageIndex := beginPageIndex + uint64(i)
		var numReferences uint32
		for t := uint32(0); t != pg.NumTuples; t++ {
			partkey := column.Integer(pg.Partkey[t])
			if count := lineitemTable.LookupCountForPartkey(partkey); count > 0 {
				entries = append(entries, &partEntry{
					swip:        pt.swips[pageIndex],
					partkey:     partkey,
					tupleOffset: t,
				})
				numReferences += count
			}
		}
		pt.pageReferences[pageIndex] = numReferences
	}
	pt.threadLocalEntries[threadIndex] = entries
}

func (pt *PartHashTable) ResizeHashTable() {
	var total uint64
	for _, entries := range pt.threadLocalEntries {
		total += uint64(len(entries))
	}
	n := bitCeil(total)
	pt.buckets = make([]atomic.Pointer[partEntry], n)
	pt.mask = n - 1
}

// MergeLocalEntries pushes threadIndex's staged entries onto their
// bucket's stack with a CAS loop, tolerant of arbitrary chain order
// since LookupPartkey only cares whether a key is present.
func (pt *PartHashTable) MergeLocalEntries(threadIndex int) {
	for _, entry := range pt.threadLocalEntries[threadIndex] {
		bucketIndex := entry.partkey.Hash() & pt.mask
		head := &pt.buckets[bucketIndex]
		for {
			old := head.Load()
			entry.next.Store(old)
			if head.CompareAndSwap(old, entry) {
				break
			}
		}
	}
}

// LookupPartkey returns the swip and in-page tuple offset of partkey's
// part row. It is an xerrors.LogicError (ErrPartkeyNotFound) to look up
// a partkey LineitemHashTable's build pass didn't already confirm is
// referenced, since that should never happen.
func (pt *PartHashTable) LookupPartkey(partkey column.Integer) (*swip.Swip, uint32, error) {
	bucketIndex := partkey.Hash() & pt.mask
	for current := pt.buckets[bucketIndex].Load(); current != nil; current = current.next.Load() {
		if current.partkey == partkey {
			return current.swip, current.tupleOffset, nil
		}
	}
	return nil, 0, xerrors.ErrPartkeyNotFound
}

// GetTotalNumPageReferences sums every page's reference count.
func (pt *PartHashTable) GetTotalNumPageReferences() uint64 {
	var total uint64
	for _, n := range pt.pageReferences {
		total += uint64(n)
	}
	return total
}

// CacheAtLeastNumReferences grows the cached prefix of part pages,
// ordered by page index, until at least numReferencesToBeCached
// lineitem-side accesses would hit an already-cached page, then loads
// that newly-grown prefix with the same partitioned-async-load-plus-
// drain shape as cache.Cache.Populate.
func (pt *PartHashTable) CacheAtLeastNumReferences(ctx context.Context, partDataFile *storage.File, numReferencesToBeCached uint64) error {
	const numConcurrentTasks = 64

	globalBegin := pt.numUsedBufferPages
	numSwips := uint64(len(pt.swips))
	for pt.numCachedReferences < numReferencesToBeCached && pt.numUsedBufferPages != numSwips {
		pt.numCachedReferences += uint64(pt.pageReferences[pt.numUsedBufferPages])
		pt.numUsedBufferPages++
	}
	globalEnd := pt.numUsedBufferPages
	if globalBegin == globalEnd {
		return nil
	}

	ring := ioring.New(numConcurrentTasks, numConcurrentTasks)
	countdown := ioring.NewCountdown(numConcurrentTasks)

	numPages := globalEnd - globalBegin
	partitionSize := (numPages + numConcurrentTasks - 1) / numConcurrentTasks

	tasks := make([]*task.Task[struct{}], 0, numConcurrentTasks+1)
	for i := uint64(0); i != numConcurrentTasks; i++ {
		begin := min(globalBegin+i*partitionSize, globalEnd)
		end := min(begin+partitionSize, globalEnd)
		tasks = append(tasks, task.New(pt.asyncLoadPages(ctx, ring, begin, end, countdown, partDataFile)))
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

func (pt *PartHashTable) asyncLoadPages(ctx context.Context, ring *ioring.IOUring, begin, end uint64, countdown *ioring.Countdown, partDataFile *storage.File) func() (struct{}, error) {
	return func() (struct{}, error) {
		defer countdown.Decrement()
		for i := begin; i != end; i++ {
			frame := &pt.partPagesBuffer[i]
			if err := partDataFile.AsyncReadPage(ctx, ring, i, page.AsBytes(frame)); err != nil {
				return struct{}{}, err
			}
			swip.SetPointer(pt.swips[i], frame)
		}
		return struct{}{}, nil
	}
}

// GetNumAlreadyCachedReferences reports how many lineitem-side accesses
// CacheAtLeastNumReferences has so far guaranteed will hit a cached page.
func (pt *PartHashTable) GetNumAlreadyCachedReferences() uint64 { return pt.numCachedReferences }
