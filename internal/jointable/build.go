package jointable

import (
	"fmt"
	"sync"

	"github.com/xlab/treeprint"

	"github.com/L-v-M/async/internal/page"
)

// BuildHashTableForPart runs the two-phase build described at the top
// of this package for lineitemData and partPages, using threadCount
// goroutines for each phase, mirroring BuildHashTableForPart's two
// thread pools synchronized by a std::latch plus std::call_once.
func BuildHashTableForPart(lineitemData *InMemoryLineitemData, partPages []page.PartPage, threadCount int) *PartHashTable {
	lineitemTable := buildLineitemHashTable(lineitemData, threadCount)
	return buildPartHashTable(partPages, lineitemTable, threadCount)
}

// ExplainBuildPlan renders the two-phase build BuildHashTableForPart runs
// as a tree, for the --explain diagnostic on cmd/q14. It describes the
// plan for the given sizes without running any part of it.
func ExplainBuildPlan(totalNumLineitemTuples, totalNumPartPages uint64, threadCount int) string {
	root := treeprint.New()
	root.SetValue("BuildHashTableForPart")

	lineitemBranch := root.AddBranch(fmt.Sprintf("scan lineitem (%d tuples)", totalNumLineitemTuples))
	lineitemBranch.AddNode(fmt.Sprintf("%d thread-local builds (InsertLocalEntries)", threadCount))
	lineitemBranch.AddNode("barrier (sync.WaitGroup)")
	lineitemBranch.AddNode("resize (sync.Once: ResizeHashTable)")
	lineitemBranch.AddNode("lock-free merge (ordered CAS insert, MergeLocalEntries)")

	partBranch := root.AddBranch(fmt.Sprintf("scan part (%d pages)", totalNumPartPages))
	partBranch.AddNode(fmt.Sprintf("%d thread-local builds (InsertLocalEntries, filtered by lineitem table)", threadCount))
	partBranch.AddNode("barrier (sync.WaitGroup)")
	partBranch.AddNode("resize (sync.Once: ResizeHashTable)")
	partBranch.AddNode("lock-free merge (Treiber-stack push CAS, MergeLocalEntries)")

	return root.String()
}

func buildLineitemHashTable(data *InMemoryLineitemData, threadCount int) *LineitemHashTable {
	table := NewLineitemHashTable(threadCount)

	totalNumTuples := data.GetSize()
	numTuplesPerThread := (totalNumTuples + uint64(threadCount) - 1) / uint64(threadCount)

	var wg sync.WaitGroup
	var barrier sync.WaitGroup
	var once sync.Once
	barrier.Add(threadCount)
	wg.Add(threadCount)

	for threadIndex := 0; threadIndex != threadCount; threadIndex++ {
		threadIndex := threadIndex
		go func() {
			defer wg.Done()
			begin := min(uint64(threadIndex)*numTuplesPerThread, totalNumTuples)
			end := min(begin+numTuplesPerThread, totalNumTuples)
			table.InsertLocalEntries(data, begin, end, threadIndex)
			barrier.Done()
			barrier.Wait()
			once.Do(table.ResizeHashTable)
			table.MergeLocalEntries(threadIndex)
		}()
	}
	wg.Wait()
	return table
}

func buildPartHashTable(partPages []page.PartPage, lineitemTable *LineitemHashTable, threadCount int) *PartHashTable {
	totalNumPages := uint64(len(partPages))
	table := NewPartHashTable(threadCount, totalNumPages)

	numPagesPerThread := (totalNumPages + uint64(threadCount) - 1) / uint64(threadCount)

	var wg sync.WaitGroup
	var barrier sync.WaitGroup
	var once sync.Once
	barrier.Add(threadCount)
	wg.Add(threadCount)

	for threadIndex := 0; threadIndex != threadCount; threadIndex++ {
		threadIndex := threadIndex
		go func() {
			defer wg.Done()
			begin := min(uint64(threadIndex)*numPagesPerThread, totalNumPages)
			end := min(begin+numPagesPerThread, totalNumPages)
			table.InsertLocalEntries(partPages[begin:end], begin, threadIndex, lineitemTable)
			barrier.Done()
			barrier.Wait()
			once.Do(table.ResizeHashTable)
			table.MergeLocalEntries(threadIndex)
		}()
	}
	wg.Wait()
	return table
}
