// Command loaddata converts a delimited-text or Parquet TPC-H table into
// the fixed-size page file internal/storage reads, the Go counterpart of
// original_source/executables/load_data.cc's main.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/L-v-M/async/internal/config"
	"github.com/L-v-M/async/internal/loader"
)

var rootCmd = &cobra.Command{
	Use:   "loaddata lineitemQ1|lineitemQ14|part in.tbl|in.parquet out.dat",
	Short: "load a TPC-H table into a page file",
	Args:  cobra.ExactArgs(3),
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
	kind, err := loader.ParseKind(args[0])
	if err != nil {
		return err
	}
	inPath, outPath := args[1], args[2]

	load := loader.LoadText
	if strings.EqualFold(filepath.Ext(inPath), ".parquet") {
		load = loader.LoadParquet
	}

	start := time.Now()
	stats, err := load(kind, inPath, outPath)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	stats.Seconds = elapsed.Seconds()

	fmt.Printf("Processed %g MB in %d ms: %.6g GB/s\n",
		float64(stats.BytesRead)/1_000_000.0,
		elapsed.Milliseconds(),
		stats.ThroughputGBPerSecond())
	return nil
}
