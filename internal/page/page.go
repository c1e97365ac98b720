// Package page defines the fixed-size, page-aligned records that storage
// files hold one-per-slot, following the layout of
// original_source/storage/src/storage/schema.h. Each page type below is
// sized to exactly PageSize bytes; the trailing Pad fields make that size
// an explicit property of the struct rather than an accident of Go's
// field-alignment rules.
package page

// SizePower is the p in P = 2^p; PageSize is P itself.
const (
	SizePower = 16
	PageSize  = 1 << SizePower
)

// LineitemQ1Page holds the seven lineitem columns Query A touches:
// quantity, extendedprice, discount and tax as scale-2 fixed-point raw
// integers, returnflag/linestatus as single bytes, and shipdate as a
// Julian day. kMaxNumTuples=1724 matches schema.h's LineitemPage exactly.
type LineitemQ1Page struct {
	NumTuples uint32
	Pad0      [4]byte

	Quantity      [lineitemQ1MaxTuples]int64
	ExtendedPrice [lineitemQ1MaxTuples]int64
	Discount      [lineitemQ1MaxTuples]int64
	Tax           [lineitemQ1MaxTuples]int64

	Returnflag [lineitemQ1MaxTuples]byte
	Linestatus [lineitemQ1MaxTuples]byte

	Shipdate [lineitemQ1MaxTuples]uint32

	Pad1 [lineitemQ1Padding]byte
}

// LineitemQ1MaxNumTuples is kMaxNumTuples for LineitemQ1Page.
const LineitemQ1MaxNumTuples = 1724

const lineitemQ1MaxTuples = LineitemQ1MaxNumTuples
const lineitemQ1Padding = 16

// LineitemQ14Page holds the four lineitem columns Query B's hash join and
// promo-revenue aggregation touch.
type LineitemQ14Page struct {
	NumTuples uint32
	Pad0      [4]byte

	ExtendedPrice [lineitemQ14MaxTuples]int64
	Discount      [lineitemQ14MaxTuples]int64

	Partkey  [lineitemQ14MaxTuples]int32
	Shipdate [lineitemQ14MaxTuples]uint32

	Pad1 [lineitemQ14Padding]byte
}

// LineitemQ14MaxNumTuples is kMaxNumTuples for LineitemQ14Page.
const LineitemQ14MaxNumTuples = 2730

const lineitemQ14MaxTuples = LineitemQ14MaxNumTuples
const lineitemQ14Padding = 8

// partTypeWidth is the on-page width of p_type: a one-byte length
// indicator (LengthIndicatorSize(25) == 1) plus 25 data bytes, mirroring
// types.h's Varchar<kMaxLen> layout.
const partTypeWidth = 26

// PartPage holds the part relation's partkey and type columns, the
// two columns PartHashTable needs for the promo-line predicate.
type PartPage struct {
	NumTuples uint32

	Partkey [partMaxTuples]int32
	Type    [partMaxTuples][partTypeWidth]byte

	Pad [partPadding]byte
}

// PartMaxNumTuples is the number of part rows a PartPage holds.
const PartMaxNumTuples = 2184

const partMaxTuples = PartMaxNumTuples
const partPadding = 12
