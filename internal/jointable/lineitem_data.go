// Package jointable builds the two lock-free hash tables Query B's
// promo-revenue join needs, grounded on LineitemHashTable and
// PartHashTable in original_source/queries/tpch_q14.cc: a first pass
// over lineitem applies the query's date predicate and records which
// partkeys are referenced and how often; a second pass over the part
// relation keeps only the partkeys the first pass found, while counting
// how many page accesses each part page will receive so the benchmark
// can decide which part pages are worth caching.
package jointable

import (
	"sync/atomic"

	"github.com/L-v-M/async/internal/column"
)

// InMemoryLineitemData holds the four lineitem columns Query B touches,
// fully materialized in memory (unlike Query A, which streams pages),
// mirroring the original's InMemoryLineitemData.
type InMemoryLineitemData struct {
	Partkey       []column.Integer
	ExtendedPrice []column.Numeric
	Discount      []column.Numeric
	Shipdate      []column.Date

	size atomic.Uint64
}

// NewInMemoryLineitemData preallocates storage for up to capacity tuples.
func NewInMemoryLineitemData(capacity uint64) *InMemoryLineitemData {
	return &InMemoryLineitemData{
		Partkey:       make([]column.Integer, capacity),
		ExtendedPrice: make([]column.Numeric, capacity),
		Discount:      make([]column.Numeric, capacity),
		Shipdate:      make([]column.Date, capacity),
	}
}

// IncreaseSize reserves the next increment tuples for a loader goroutine
// to fill and returns the start offset of that reservation, the Go
// counterpart of the original's atomic_ref fetch_add on size_.
func (d *InMemoryLineitemData) IncreaseSize(increment uint64) uint64 {
	return d.size.Add(increment) - increment
}

func (d *InMemoryLineitemData) GetSize() uint64 { return d.size.Load() }
