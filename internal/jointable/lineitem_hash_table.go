package jointable

import (
	"math/bits"
	"sync/atomic"

	"github.com/L-v-M/async/internal/column"
)

var (
	promoWindowLower = mustParseDate("1995-09-01")
	promoWindowUpper = mustParseDate("1995-09-30")
)

func mustParseDate(s string) column.Date {
	d, err := column.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// lineitemEntry is a node in one bucket's ascending-by-partkey chain. It
// is always heap-allocated and handed around by pointer, never copied
// by value, so the embedded atomics never cross a vet copylocks check.
type lineitemEntry struct {
	next    atomic.Pointer[lineitemEntry]
	partkey column.Integer
	count   atomic.Uint32
}

// LineitemHashTable counts, per partkey, how many lineitem rows within
// the promo date window reference it. Building proceeds in the same two
// phases as PartHashTable: each worker first accumulates into its own
// slice (InsertLocalEntries), then after every worker has finished and
// ResizeHashTable has sized the shared bucket array, each worker merges
// its own slice into the shared buckets (MergeLocalEntries) using a
// lock-free, ordered, sentinel-chain insert.
type LineitemHashTable struct {
	threadLocalEntries [][]*lineitemEntry
	buckets            []lineitemEntry
	mask               uint64
}

func NewLineitemHashTable(threadCount int) *LineitemHashTable {
	return &LineitemHashTable{threadLocalEntries: make([][]*lineitemEntry, threadCount)}
}

// InsertLocalEntries scans [beginTupleIndex, endTupleIndex) of data and
// stages one entry per row inside the promo date window.
func (h *LineitemHashTable) InsertLocalEntries(data *InMemoryLineitemData, beginTupleIndex, endTupleIndex uint64, threadIndex int) {
	entries := h.threadLocalEntries[threadIndex]
	for i := beginTupleIndex; i != endTupleIndex; i++ {
		if promoWindowLower.LessEqual(data.Shipdate[i]) && data.Shipdate[i].LessEqual(promoWindowUpper) {
			e := &lineitemEntry{partkey: data.Partkey[i]}
			e.count.Store(1)
			entries = append(entries, e)
		}
	}
	h.threadLocalEntries[threadIndex] = entries
}

// ResizeHashTable sizes the shared bucket array to the next power of two
// at or above the total number of staged entries, the same bit_ceil
// sizing the original uses, and must run after every InsertLocalEntries
// call and before any MergeLocalEntries call.
func (h *LineitemHashTable) ResizeHashTable() {
	var total uint64
	for _, entries := range h.threadLocalEntries {
		total += uint64(len(entries))
	}
	n := bitCeil(total)
	h.buckets = make([]lineitemEntry, n)
	h.mask = n - 1
}

// MergeLocalEntries splices threadIndex's staged entries into the shared
// buckets. Each bucket's chain is kept sorted ascending by partkey so
// LookupCountForPartkey can stop early once it passes where a key would
// be; concurrent mergers on different buckets never contend, and
// mergers racing on the same bucket retry the CAS until their insert
// point is still valid.
func (h *LineitemHashTable) MergeLocalEntries(threadIndex int) {
	for _, entry := range h.threadLocalEntries[threadIndex] {
		bucketIndex := entry.partkey.Hash() & h.mask
		current := &h.buckets[bucketIndex]
		next := current.next.Load()
		for {
			if current.partkey == entry.partkey {
				current.count.Add(1)
				break
			} else if next == nil || entry.partkey.Less(next.partkey) {
				entry.next.Store(next)
				if current.next.CompareAndSwap(next, entry) {
					break
				}
				next = current.next.Load()
			} else {
				current = next
				next = current.next.Load()
			}
		}
	}
}

// LookupCountForPartkey returns how many lineitem rows in the promo
// window reference partkey, or zero if none do.
func (h *LineitemHashTable) LookupCountForPartkey(partkey column.Integer) uint32 {
	bucketIndex := partkey.Hash() & h.mask
	for current := h.buckets[bucketIndex].next.Load(); current != nil; current = current.next.Load() {
		if current.partkey == partkey {
			return current.count.Load()
		} else if partkey.Less(current.partkey) {
			break
		}
	}
	return 0
}

func bitCeil(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}
