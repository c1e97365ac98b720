// Command q14 runs the Query B benchmark (promo-revenue hash join)
// across an 11-point cache-fraction sweep, the Go counterpart of
// original_source/queries/tpch_q14.cc's main.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/L-v-M/async/internal/column"
	"github.com/L-v-M/async/internal/config"
	"github.com/L-v-M/async/internal/jointable"
	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/queryrunner"
	"github.com/L-v-M/async/internal/storage"
	"github.com/L-v-M/async/internal/xerrors"
)

var explain bool

var rootCmd = &cobra.Command{
	Use:   "q14 lineitem.dat part.dat num_threads num_entries_per_ring num_tuples_per_coroutine print_result print_header",
	Short: "run the Query B cache-fraction sweep",
	Args:  cobra.ExactArgs(7),
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolVar(&explain, "explain", false, "print the hash-table build plan instead of running the sweep")
}

func main() {
	config.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	lineitemPath := args[0]
	partPath := args[1]
	numThreads, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("num_threads: %w", err)
	}
	numEntriesPerRing, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("num_entries_per_ring: %w", err)
	}
	numTuplesPerCoroutine, err := strconv.Atoi(args[4])
	if err != nil {
		return fmt.Errorf("num_tuples_per_coroutine: %w", err)
	}
	printResult, err := strconv.ParseBool(args[5])
	if err != nil {
		return fmt.Errorf("print_result: %w", err)
	}
	printHeader, err := strconv.ParseBool(args[6])
	if err != nil {
		return fmt.Errorf("print_header: %w", err)
	}

	lineitemData, err := loadLineitemRelation(lineitemPath)
	if err != nil {
		return err
	}

	partBytes, unmapPart, err := mmapReadOnly(partPath)
	if err != nil {
		return err
	}
	defer unmapPart()
	partPages := page.BytesAsSlice[page.PartPage](partBytes)

	threadCount := runtime.NumCPU()

	if explain {
		fmt.Println(jointable.ExplainBuildPlan(lineitemData.GetSize(), uint64(len(partPages)), threadCount))
		return nil
	}

	partTable := jointable.BuildHashTableForPart(lineitemData, partPages, threadCount)

	partDataFile, err := storage.Open(partPath, storage.ModeRead, true)
	if err != nil {
		return err
	}
	defer partDataFile.Close()

	totalNumReferences := partTable.GetTotalNumPageReferences()
	tenPercent := (totalNumReferences + 9) / 10

	if printHeader {
		fmt.Print("kind_of_io,page_size_power,num_threads,num_cached_references,num_total_references,num_entries_per_ring,num_tuples_per_coroutine,time\n")
	}

	ctx := context.Background()
	for i := 0; i != 11; i++ {
		if err := runAndReportQ14(ctx, "synchronous", numThreads, 0, 0, lineitemData, partTable, partDataFile, printResult, totalNumReferences); err != nil {
			return err
		}
		if err := runAndReportQ14(ctx, "asynchronous", numThreads, numEntriesPerRing, numTuplesPerCoroutine, lineitemData, partTable, partDataFile, printResult, totalNumReferences); err != nil {
			return err
		}
		if err := partTable.CacheAtLeastNumReferences(ctx, partDataFile, uint64(i+1)*tenPercent); err != nil {
			return err
		}
	}
	return nil
}

func runAndReportQ14(ctx context.Context, kind string, numThreads, numEntriesPerRing, numTuplesPerCoroutine int, lineitemData *jointable.InMemoryLineitemData, partTable *jointable.PartHashTable, partDataFile *storage.File, printResult bool, totalNumReferences uint64) error {
	cachedBefore := partTable.GetNumAlreadyCachedReferences()

	runner := queryrunner.NewQ14Runner(numThreads, lineitemData, partTable, partDataFile, numEntriesPerRing, true)
	if numTuplesPerCoroutine > 0 {
		runner.SetFetchIncrement(numTuplesPerCoroutine)
	}

	start := time.Now()
	if err := runner.StartProcessing(ctx); err != nil {
		return err
	}
	result, err := runner.DoPostProcessing()
	if err != nil {
		return err
	}
	milliseconds := time.Since(start).Milliseconds()

	if printResult {
		fmt.Fprintf(os.Stderr, "promo_revenue\n%s\n", result.String())
	}

	fmt.Printf("%s,%d,%d,%d,%d,%d,%d,%d\n",
		kind, page.SizePower, numThreads, cachedBefore, totalNumReferences, numEntriesPerRing, numTuplesPerCoroutine, milliseconds)
	return nil
}

func loadLineitemRelation(path string) (*jointable.InMemoryLineitemData, error) {
	data, unmap, err := mmapReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer unmap()

	pages := page.BytesAsSlice[page.LineitemQ14Page](data)
	totalNumPages := uint64(len(pages))
	maxNumTuples := totalNumPages * page.LineitemQ14MaxNumTuples

	result := jointable.NewInMemoryLineitemData(maxNumTuples)

	numThreads := runtime.NumCPU()
	numPagesPerThread := (totalNumPages + uint64(numThreads) - 1) / uint64(numThreads)

	errs := make(chan error, numThreads)
	for threadIndex := 0; threadIndex != numThreads; threadIndex++ {
		threadIndex := threadIndex
		go func() {
			begin := min(uint64(threadIndex)*numPagesPerThread, totalNumPages)
			end := min(begin+numPagesPerThread, totalNumPages)
			for pageIndex := begin; pageIndex != end; pageIndex++ {
				pg := &pages[pageIndex]
				firstTupleOffset := result.IncreaseSize(uint64(pg.NumTuples))
				for t := uint32(0); t != pg.NumTuples; t++ {
					i := firstTupleOffset + uint64(t)
					result.Partkey[i] = column.Integer(pg.Partkey[t])
					result.ExtendedPrice[i] = column.NewNumeric(pg.ExtendedPrice[t], 2)
					result.Discount[i] = column.NewNumeric(pg.Discount[t], 2)
					result.Shipdate[i] = column.Date(pg.Shipdate[t])
				}
			}
			errs <- nil
		}()
	}
	for i := 0; i != numThreads; i++ {
		if err := <-errs; err != nil {
			return nil, err
		}
	}
	return result, nil
}

func mmapReadOnly(path string) ([]byte, func(), error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, nil, xerrors.NewSystemError("open", err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, nil, xerrors.NewSystemError("fstat", err)
	}
	if stat.Size == 0 {
		unix.Close(fd)
		return nil, func() {}, nil
	}
	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, nil, xerrors.NewSystemError("mmap", err)
	}
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)
	_ = unix.Madvise(data, unix.MADV_WILLNEED)
	return data, func() {
		unix.Munmap(data)
		unix.Close(fd)
	}, nil
}
