// Command q1 runs the Query A benchmark (grouped lineitem aggregation)
// across an 11-point cache-fraction sweep, the Go counterpart of
// original_source/executables/tpch_q1.cc's main.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/L-v-M/async/internal/cache"
	"github.com/L-v-M/async/internal/column"
	"github.com/L-v-M/async/internal/config"
	"github.com/L-v-M/async/internal/queryrunner"
	"github.com/L-v-M/async/internal/storage"
	"github.com/L-v-M/async/internal/swip"
)

var rootCmd = &cobra.Command{
	Use:   "q1 lineitem.dat num_threads num_entries_per_ring do_work do_random_io print_result",
	Short: "run the Query A cache-fraction sweep",
	Args:  cobra.ExactArgs(6),
	RunE:  run,
}

func main() {
	config.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := args[0]
	numThreads, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("num_threads: %w", err)
	}
	numEntriesPerRing, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("num_entries_per_ring: %w", err)
	}
	doWork, err := strconv.ParseBool(args[3])
	if err != nil {
		return fmt.Errorf("do_work: %w", err)
	}
	doRandomIO, err := strconv.ParseBool(args[4])
	if err != nil {
		return fmt.Errorf("do_random_io: %w", err)
	}
	printResult, err := strconv.ParseBool(args[5])
	if err != nil {
		return fmt.Errorf("print_result: %w", err)
	}

	file, err := storage.Open(path, storage.ModeRead, true)
	if err != nil {
		return err
	}
	defer file.Close()

	fileSize, err := file.ReadSize()
	if err != nil {
		return err
	}

	swips := queryrunner.GetSwips(fileSize)

	swipIndexes := make([]uint64, len(swips))
	for i := range swipIndexes {
		swipIndexes[i] = uint64(i)
	}
	if doRandomIO {
		rand.Shuffle(len(swips), func(i, j int) { swips[i], swips[j] = swips[j], swips[i] })
	}
	rand.Shuffle(len(swipIndexes), func(i, j int) { swipIndexes[i], swipIndexes[j] = swipIndexes[j], swipIndexes[i] })

	c := cache.New(swips, file)
	partitionSize := (uint64(len(swipIndexes)) + 9) / 10

	fmt.Print("kind_of_io,num_threads,percent_cached,num_entries_per_ring,do_work,do_random_io,time,throughput\n")

	ctx := context.Background()
	for i := 0; i != 11; i++ {
		if i > 0 {
			offset := min(uint64(i-1)*partitionSize, uint64(len(swipIndexes)))
			size := min(partitionSize, uint64(len(swipIndexes))-offset)
			if err := c.Populate(ctx, swipIndexes[offset:offset+size]); err != nil {
				return err
			}
		}

		if err := runAndReport(ctx, "synchronous", numThreads, 0, swips, file, doWork, doRandomIO, printResult, fileSize, i*10); err != nil {
			return err
		}
		if err := runAndReport(ctx, "asynchronous", numThreads, numEntriesPerRing, swips, file, doWork, doRandomIO, printResult, fileSize, i*10); err != nil {
			return err
		}
	}
	return nil
}

func runAndReport(ctx context.Context, kind string, numThreads, numEntriesPerRing int, swips []*swip.Swip, file *storage.File, doWork, doRandomIO, printResult bool, fileSize int64, percentCached int) error {
	runner := queryrunner.NewQ1Runner(numThreads, swips, file, numEntriesPerRing, doWork)

	start := time.Now()
	if err := runner.StartProcessing(ctx); err != nil {
		return err
	}
	entries := runner.DoPostProcessing()
	elapsed := time.Since(start)

	if doWork && printResult {
		printQ1Result(entries)
	}

	milliseconds := elapsed.Milliseconds()
	throughput := 0.0
	if milliseconds > 0 {
		throughput = (float64(fileSize) / 1_000_000_000.0) / (float64(milliseconds) / 1000.0)
	}
	fmt.Printf("%s,%d,%d %%,%d,%t,%t,%d ms,%.6g Gb/s\n",
		kind, numThreads, percentCached, numEntriesPerRing, doWork, doRandomIO, milliseconds, throughput)
	return nil
}

func printQ1Result(entries []*queryrunner.Q1GroupEntry) {
	fmt.Print("l_returnflag|l_linestatus|sum_qty|sum_base_price|sum_disc_price|sum_charge|avg_qty|avg_price|avg_disc|count_order\n")
	for _, e := range entries {
		avgQty := column.NewNumeric(e.SumQty.Raw/int64(e.Count), e.SumQty.Scale)
		avgPrice := column.NewNumeric(e.SumBasePrice.Raw/int64(e.Count), e.SumBasePrice.Scale)
		avgDisc := column.NewNumeric(e.SumDisc.Raw/int64(e.Count), e.SumDisc.Scale)
		fmt.Printf("%c|%c|%s|%s|%s|%s|%s|%s|%s|%d\n",
			e.Returnflag, e.Linestatus,
			e.SumQty, e.SumBasePrice, e.SumDiscPrice, e.SumCharge,
			avgQty, avgPrice, avgDisc,
			e.Count)
	}
}
