package queryrunner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/L-v-M/async/internal/column"
	"github.com/L-v-M/async/internal/ioring"
	"github.com/L-v-M/async/internal/jointable"
	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
	"github.com/L-v-M/async/internal/swip"
	"github.com/L-v-M/async/internal/task"
)

var (
	q14LowDate  = mustParseDate("1995-09-01")
	q14HighDate = mustParseDate("1995-10-01")
)

const promoPrefix = "PROMO"

// q14Accumulator holds one thread's running promo-revenue sums. Unlike
// Q1's per-group hash table, there is only ever one group here, so each
// thread just carries a pair of running totals.
type q14Accumulator struct {
	firstSum  column.Numeric
	secondSum column.Numeric
}

func newQ14Accumulator() q14Accumulator {
	return q14Accumulator{
		firstSum:  column.NewNumeric(0, 4),
		secondSum: column.NewNumeric(0, 4),
	}
}

// Q14Runner computes the TPC-H Q14 promo-revenue metric by probing
// partTable for every in-window lineitem row's part row and checking
// whether its p_type starts with "PROMO".
type Q14Runner struct {
	numThreads     int
	lineitemData   *jointable.InMemoryLineitemData
	partTable      *jointable.PartHashTable
	partDataFile   *storage.File
	numRingEntries int
	doWork         bool
	fetchIncrement uint64

	threadLocalSums []q14Accumulator
}

// NewQ14Runner builds a runner; numRingEntries == 0 selects synchronous
// processing, matching Q1Runner's convention.
func NewQ14Runner(numThreads int, lineitemData *jointable.InMemoryLineitemData, partTable *jointable.PartHashTable, partDataFile *storage.File, numRingEntries int, doWork bool) *Q14Runner {
	r := &Q14Runner{
		numThreads:      numThreads,
		lineitemData:    lineitemData,
		partTable:       partTable,
		partDataFile:    partDataFile,
		numRingEntries:  numRingEntries,
		doWork:          doWork,
		threadLocalSums: make([]q14Accumulator, numThreads),
	}
	for i := range r.threadLocalSums {
		r.threadLocalSums[i] = newQ14Accumulator()
	}
	return r
}

func (r *Q14Runner) IsSynchronous() bool { return r.numRingEntries == 0 }

// SetFetchIncrement overrides the work-cursor fetch granularity (the
// original's num_tuples_per_coroutine, a CLI-supplied knob that only
// affects asynchronous runs). A zero or negative n leaves the default
// (q14SyncFetchIncrement, rounded up to a multiple of the ring size for
// async runs) in place.
func (r *Q14Runner) SetFetchIncrement(n int) {
	if n > 0 {
		r.fetchIncrement = uint64(n)
	}
}

// extendedAmount is extendedprice * (1 - discount), in the query's
// scale-4 result type, mirroring the original's "l_extendedprice *
// (1 - l_discount)" expression.
func extendedAmount(extendedPrice, discount column.Numeric) column.Numeric {
	one := column.NewNumeric(100, 2)
	return extendedPrice.Mul(one.Sub(discount))
}

// ProcessLineitems applies the ship-date predicate to lineitemData's
// rows [beginTupleIndex, endTupleIndex) and folds each qualifying row
// into acc, looking up its part row synchronously when its swip is
// still a page index.
func ProcessLineitems(buffer *page.PartPage, beginTupleIndex, endTupleIndex uint64, lineitemData *jointable.InMemoryLineitemData, partTable *jointable.PartHashTable, partDataFile *storage.File, acc *q14Accumulator, doWork bool) error {
	for i := beginTupleIndex; i != endTupleIndex; i++ {
		if !lineitemData.Shipdate[i].Less(q14HighDate) || lineitemData.Shipdate[i].Less(q14LowDate) {
			continue
		}
		if !doWork {
			continue
		}
		s, tupleOffset, err := partTable.LookupPartkey(lineitemData.Partkey[i])
		if err != nil {
			return err
		}

		var data *page.PartPage
		if s.IsPageIndex() {
			if err := partDataFile.ReadPage(s.GetPageIndex(), page.AsBytes(buffer)); err != nil {
				return err
			}
			data = buffer
		} else {
			data = swip.GetPointer[page.PartPage](s)
		}

		accumulateLineitem(data, tupleOffset, lineitemData, i, acc)
	}
	return nil
}

// asyncProcessLineitem is ProcessLineitems' per-row async counterpart,
// submitted through ring and counted down on completion.
func asyncProcessLineitem(ctx context.Context, buffer *page.PartPage, tupleIndex uint64, lineitemData *jointable.InMemoryLineitemData, partTable *jointable.PartHashTable, partDataFile *storage.File, ring *ioring.IOUring, countdown *ioring.Countdown, acc *q14Accumulator, doWork bool) func() (struct{}, error) {
	return func() (struct{}, error) {
		defer countdown.Decrement()
		if !doWork {
			return struct{}{}, nil
		}
		s, tupleOffset, err := partTable.LookupPartkey(lineitemData.Partkey[tupleIndex])
		if err != nil {
			return struct{}{}, err
		}

		var data *page.PartPage
		if s.IsPageIndex() {
			if err := partDataFile.AsyncReadPage(ctx, ring, s.GetPageIndex(), page.AsBytes(buffer)); err != nil {
				return struct{}{}, err
			}
			data = buffer
		} else {
			data = swip.GetPointer[page.PartPage](s)
		}

		accumulateLineitem(data, tupleOffset, lineitemData, tupleIndex, acc)
		return struct{}{}, nil
	}
}

// accumulateLineitem folds row tupleIndex of lineitemData into acc,
// classifying it as promo or not from the looked-up part row's p_type.
func accumulateLineitem(partPage *page.PartPage, tupleOffset uint32, lineitemData *jointable.InMemoryLineitemData, tupleIndex uint64, acc *q14Accumulator) {
	amount := extendedAmount(lineitemData.ExtendedPrice[tupleIndex], lineitemData.Discount[tupleIndex])
	acc.secondSum = acc.secondSum.Add(amount)
	if isPromoType(partPage.Type[tupleOffset][:]) {
		acc.firstSum = acc.firstSum.Add(amount)
	}
}

// isPromoType reports whether a p_type field (a length byte followed by
// data bytes, per types.h's Varchar layout) starts with "PROMO".
func isPromoType(field []byte) bool {
	length := int(field[0])
	if length > len(field)-1 {
		length = len(field) - 1
	}
	return strings.HasPrefix(string(field[1:1+length]), promoPrefix)
}

// q14SyncFetchIncrement is the number of lineitem rows one synchronous
// work grant covers.
const q14SyncFetchIncrement = 4096

// StartProcessing runs the scan to completion across r.numThreads
// goroutines, each repeatedly claiming a slice of lineitem rows from a
// shared atomic cursor until none remain.
func (r *Q14Runner) StartProcessing(ctx context.Context) error {
	var currentTuple atomic.Uint64
	numTuples := r.lineitemData.GetSize()

	fetchIncrement := uint64(q14SyncFetchIncrement)
	if !r.IsSynchronous() {
		if r.fetchIncrement > 0 {
			fetchIncrement = r.fetchIncrement
		}
		n := uint64(r.numRingEntries)
		fetchIncrement = ((fetchIncrement + n - 1) / n) * n
	}

	g, ctx := errgroup.WithContext(ctx)
	for threadIndex := 0; threadIndex != r.numThreads; threadIndex++ {
		threadIndex := threadIndex
		g.Go(func() error {
			acc := &r.threadLocalSums[threadIndex]

			var ring *ioring.IOUring
			var pool *task.Pool[struct{}]
			if !r.IsSynchronous() {
				ring = ioring.New(r.numRingEntries, r.numRingEntries)
				pool = task.NewPool[struct{}]()
			}
			buffers := make([]page.PartPage, 1)
			if !r.IsSynchronous() {
				buffers = make([]page.PartPage, r.numRingEntries)
			}

			for {
				begin := currentTuple.Add(fetchIncrement) - fetchIncrement
				if begin >= numTuples {
					return nil
				}
				end := min(begin+fetchIncrement, numTuples)

				if r.IsSynchronous() {
					if err := ProcessLineitems(&buffers[0], begin, end, r.lineitemData, r.partTable, r.partDataFile, acc, r.doWork); err != nil {
						return err
					}
					continue
				}

				if err := r.processAsyncBatch(ctx, ring, pool, buffers, acc, begin, end); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

func (r *Q14Runner) processAsyncBatch(ctx context.Context, ring *ioring.IOUring, pool *task.Pool[struct{}], buffers []page.PartPage, acc *q14Accumulator, begin, end uint64) error {
	countdown := ioring.NewCountdown(0)
	tasks := make([]asyncTask, 0, r.numRingEntries+1)

	flush := func() error {
		if len(tasks) == 0 {
			return nil
		}
		countdown.Set(uint64(len(tasks)))
		tasks = append(tasks, newDrainTask(pool, ring, countdown))
		return awaitAll(pool, tasks)
	}

	slot := 0
	for i := begin; i != end; i++ {
		if !r.lineitemData.Shipdate[i].Less(q14HighDate) || r.lineitemData.Shipdate[i].Less(q14LowDate) {
			continue
		}
		tasks = append(tasks, newAsyncTask(pool, asyncProcessLineitem(ctx, &buffers[slot], i, r.lineitemData, r.partTable, r.partDataFile, ring, countdown, acc, r.doWork)))
		slot++
		if len(tasks) == r.numRingEntries {
			if err := flush(); err != nil {
				return err
			}
			tasks = tasks[:0]
			slot = 0
		}
	}
	return flush()
}

// ErrNoQualifyingLineitems is returned by DoPostProcessing when no row
// fell in the ship-date window, leaving no meaningful ratio to report.
var ErrNoQualifyingLineitems = errors.New("queryrunner: no qualifying lineitem rows to compute promo revenue from")

// DoPostProcessing merges every thread's running sums and returns
// 100 * sum(promo revenue) / sum(total revenue), a scale-8 Numeric,
// mirroring Numeric<12,4>{1'000'000} * (first_sum / second_sum). It
// returns the zero Numeric, nil if doWork was false, matching
// Q1Runner.DoPostProcessing's convention for a skipped run.
func (r *Q14Runner) DoPostProcessing() (column.Numeric, error) {
	if !r.doWork {
		return column.Numeric{}, nil
	}

	firstSum := column.NewNumeric(0, 4)
	secondSum := column.NewNumeric(0, 4)
	for _, acc := range r.threadLocalSums {
		firstSum = firstSum.Add(acc.firstSum)
		secondSum = secondSum.Add(acc.secondSum)
	}
	if secondSum.Raw == 0 {
		return column.Numeric{}, ErrNoQualifyingLineitems
	}

	hundred := column.NewNumeric(1_000_000, 4)
	ratio := firstSum.DivByScale4(secondSum)
	return hundred.Mul(ratio), nil
}
