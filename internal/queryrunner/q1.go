// Package queryrunner implements the two benchmark queries:
// Q1Runner (grouped aggregation, grounded on the QueryRunner in
// original_source/executables/tpch_q1.cc) and Q14Runner (hash-join
// promo-revenue aggregation, grounded on the QueryRunner in
// original_source/queries/tpch_q14.cc). Both run in synchronous mode
// (num ring entries == 0, one blocking read per page) or asynchronous
// mode (a bounded window of concurrently in-flight reads drained in
// batches), driven by an atomic work cursor shared across worker
// goroutines joined with golang.org/x/sync/errgroup.
package queryrunner

import (
	"context"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/L-v-M/async/internal/column"
	"github.com/L-v-M/async/internal/ioring"
	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
	"github.com/L-v-M/async/internal/swip"
	"github.com/L-v-M/async/internal/task"
)

var q1HighDate = mustParseDate("1998-09-02")

func mustParseDate(s string) column.Date {
	d, err := column.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Q1GroupEntry accumulates one returnflag/linestatus group's aggregates.
type Q1GroupEntry struct {
	SumQty        column.Numeric
	SumBasePrice  column.Numeric
	SumDisc       column.Numeric
	SumDiscPrice  column.Numeric
	SumCharge     column.Numeric
	Count         uint32
	Returnflag    byte
	Linestatus    byte
}

func newQ1GroupEntry(returnflag, linestatus byte) *Q1GroupEntry {
	return &Q1GroupEntry{
		Returnflag:   returnflag,
		Linestatus:   linestatus,
		SumQty:       column.NewNumeric(0, 2),
		SumBasePrice: column.NewNumeric(0, 2),
		SumDisc:      column.NewNumeric(0, 2),
		SumDiscPrice: column.NewNumeric(0, 4),
		SumCharge:    column.NewNumeric(0, 4),
	}
}

// q1HashTable is keyed by (returnflag<<8)|linestatus, 2^16 slots.
type q1HashTable []*Q1GroupEntry

func newQ1HashTable() q1HashTable { return make(q1HashTable, 1<<16) }

// Q1Runner is a single benchmark run over a fixed set of swips.
type Q1Runner struct {
	numThreads     int
	swips          []*swip.Swip
	dataFile       *storage.File
	numRingEntries int
	doWork         bool

	threadLocalHashTables      []q1HashTable
	threadLocalValidIndexes    [][]uint32
}

// NewQ1Runner builds a runner; numRingEntries == 0 selects synchronous
// processing, matching IsSynchronous's num_ring_entries_ == 0 check.
func NewQ1Runner(numThreads int, swips []*swip.Swip, dataFile *storage.File, numRingEntries int, doWork bool) *Q1Runner {
	r := &Q1Runner{
		numThreads:              numThreads,
		swips:                   swips,
		dataFile:                dataFile,
		numRingEntries:          numRingEntries,
		doWork:                  doWork,
		threadLocalHashTables:   make([]q1HashTable, numThreads),
		threadLocalValidIndexes: make([][]uint32, numThreads),
	}
	for i := range r.threadLocalHashTables {
		r.threadLocalHashTables[i] = newQ1HashTable()
	}
	return r
}

func (r *Q1Runner) IsSynchronous() bool { return r.numRingEntries == 0 }

// ProcessTuples applies the ship-date predicate and folds every
// qualifying row of pg into hashTable, appending newly-seen group
// indexes to *validIndexes.
func ProcessTuples(pg *page.LineitemQ1Page, hashTable q1HashTable, validIndexes *[]uint32) {
	one := column.NewNumeric(100, 2)
	for i := uint32(0); i != pg.NumTuples; i++ {
		if column.Date(pg.Shipdate[i]).LessEqual(q1HighDate) {
			index := (uint32(pg.Returnflag[i]) << 8) + uint32(pg.Linestatus[i])
			entry := hashTable[index]
			if entry == nil {
				entry = newQ1GroupEntry(pg.Returnflag[i], pg.Linestatus[i])
				hashTable[index] = entry
				*validIndexes = append(*validIndexes, index)
			}

			entry.Count++
			qty := column.NewNumeric(pg.Quantity[i], 2)
			price := column.NewNumeric(pg.ExtendedPrice[i], 2)
			disc := column.NewNumeric(pg.Discount[i], 2)
			tax := column.NewNumeric(pg.Tax[i], 2)

			entry.SumQty = entry.SumQty.Add(qty)
			entry.SumBasePrice = entry.SumBasePrice.Add(price)
			entry.SumDisc = entry.SumDisc.Add(disc)
			commonTerm := price.Mul(one.Sub(disc))
			entry.SumDiscPrice = entry.SumDiscPrice.Add(commonTerm)
			entry.SumCharge = entry.SumCharge.Add(commonTerm.CastM2().Mul(one.Add(tax)))
		}
	}
}

// ProcessPage resolves swip to a page (reading it synchronously if it's
// still a page index) and, if doWork, folds it into hashTable.
func ProcessPage(buffer *page.LineitemQ1Page, s *swip.Swip, hashTable q1HashTable, validIndexes *[]uint32, dataFile *storage.File, doWork bool) error {
	var data *page.LineitemQ1Page
	if s.IsPageIndex() {
		if err := dataFile.ReadPage(s.GetPageIndex(), page.AsBytes(buffer)); err != nil {
			return err
		}
		data = buffer
	} else {
		data = swip.GetPointer[page.LineitemQ1Page](s)
	}
	if doWork {
		ProcessTuples(data, hashTable, validIndexes)
	}
	return nil
}

// asyncProcessPage is ProcessPage's async counterpart, submitted through
// ring and counted down on completion.
func asyncProcessPage(ctx context.Context, buffer *page.LineitemQ1Page, s *swip.Swip, hashTable q1HashTable, validIndexes *[]uint32, dataFile *storage.File, ring *ioring.IOUring, countdown *ioring.Countdown, doWork bool) func() (struct{}, error) {
	return func() (struct{}, error) {
		defer countdown.Decrement()
		var data *page.LineitemQ1Page
		if s.IsPageIndex() {
			if err := dataFile.AsyncReadPage(ctx, ring, s.GetPageIndex(), page.AsBytes(buffer)); err != nil {
				return struct{}{}, err
			}
			data = buffer
		} else {
			data = swip.GetPointer[page.LineitemQ1Page](s)
		}
		if doWork {
			ProcessTuples(data, hashTable, validIndexes)
		}
		return struct{}{}, nil
	}
}

// syncFetchIncrement is the number of swips one synchronous work grant
// covers, sized so a grant costs roughly 100,000 tuples of work.
const syncFetchIncrement = (100_000 + page.LineitemQ1MaxNumTuples - 1) / page.LineitemQ1MaxNumTuples

// StartProcessing runs the scan to completion across r.numThreads
// goroutines, each repeatedly claiming a slice of swips from a shared
// atomic cursor until none remain.
func (r *Q1Runner) StartProcessing(ctx context.Context) error {
	var currentSwip atomic.Uint64
	numSwips := uint64(len(r.swips))

	fetchIncrement := uint64(syncFetchIncrement)
	if !r.IsSynchronous() {
		n := uint64(r.numRingEntries)
		fetchIncrement = ((fetchIncrement + n - 1) / n) * n
	}

	g, ctx := errgroup.WithContext(ctx)
	for threadIndex := 0; threadIndex != r.numThreads; threadIndex++ {
		threadIndex := threadIndex
		g.Go(func() error {
			hashTable := r.threadLocalHashTables[threadIndex]
			validIndexes := &r.threadLocalValidIndexes[threadIndex]

			var ring *ioring.IOUring
			var pool *task.Pool[struct{}]
			if !r.IsSynchronous() {
				ring = ioring.New(r.numRingEntries, r.numRingEntries)
				pool = task.NewPool[struct{}]()
			}
			pages := make([]page.LineitemQ1Page, 1)
			if !r.IsSynchronous() {
				pages = make([]page.LineitemQ1Page, r.numRingEntries)
			}

			for {
				begin := currentSwip.Add(fetchIncrement) - fetchIncrement
				if begin >= numSwips {
					return nil
				}
				end := min(begin+fetchIncrement, numSwips)

				if r.IsSynchronous() {
					for ; begin != end; begin++ {
						if err := ProcessPage(&pages[0], r.swips[begin], hashTable, validIndexes, r.dataFile, r.doWork); err != nil {
							return err
						}
					}
					continue
				}

				if err := r.processAsyncBatch(ctx, ring, pool, pages, hashTable, validIndexes, begin, end); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

func (r *Q1Runner) processAsyncBatch(ctx context.Context, ring *ioring.IOUring, pool *task.Pool[struct{}], pages []page.LineitemQ1Page, hashTable q1HashTable, validIndexes *[]uint32, begin, end uint64) error {
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
	for ; begin != end; begin++ {
		tasks = append(tasks, newAsyncTask(pool, asyncProcessPage(ctx, &pages[slot], r.swips[begin], hashTable, validIndexes, r.dataFile, ring, countdown, r.doWork)))
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

// DoPostProcessing merges every thread-local hash table into the first,
// sorts the surviving groups by (returnflag, linestatus), and returns
// them in that order.
func (r *Q1Runner) DoPostProcessing() []*Q1GroupEntry {
	if !r.doWork {
		return nil
	}
	resultTable := r.threadLocalHashTables[0]
	resultValidIndexes := &r.threadLocalValidIndexes[0]

	for i := 1; i != r.numThreads; i++ {
		for _, idx := range r.threadLocalValidIndexes[i] {
			local := r.threadLocalHashTables[i][idx]
			if result := resultTable[idx]; result != nil {
				result.SumQty = result.SumQty.Add(local.SumQty)
				result.SumBasePrice = result.SumBasePrice.Add(local.SumBasePrice)
				result.SumDisc = result.SumDisc.Add(local.SumDisc)
				result.SumDiscPrice = result.SumDiscPrice.Add(local.SumDiscPrice)
				result.SumCharge = result.SumCharge.Add(local.SumCharge)
				result.Count += local.Count
			} else {
				resultTable[idx] = local
				*resultValidIndexes = append(*resultValidIndexes, idx)
			}
		}
	}

	entries := make([]*Q1GroupEntry, 0, len(*resultValidIndexes))
	for _, idx := range *resultValidIndexes {
		entries = append(entries, resultTable[idx])
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Returnflag != b.Returnflag {
			return a.Returnflag < b.Returnflag
		}
		return a.Linestatus < b.Linestatus
	})
	return entries
}

// GetSwips builds one page-index Swip per page of a file of the given
// size, the Go counterpart of GetSwips in tpch_q1.cc.
func GetSwips(sizeOfDataFile int64) []*swip.Swip {
	numPages := sizeOfDataFile / page.PageSize
	swips := make([]*swip.Swip, numPages)
	for i := range swips {
		swips[i] = swip.MakePageIndex(uint64(i))
	}
	return swips
}
