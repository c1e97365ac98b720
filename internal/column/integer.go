package column

// Integer is a signed 32-bit column value with a deterministic 64-bit
// hash, mirroring original_source/storage/src/storage/types.h's
// Integer::hash (an xorshift mix seeded from a fixed constant XORed with
// the value).
type Integer int32

const integerHashSeed uint64 = 88172645463325252

// Hash returns a deterministic 64-bit hash of the value, independent of
// thread count and run.
func (i Integer) Hash() uint64 {
	r := integerHashSeed ^ uint64(int64(i))
	r ^= r << 13
	r ^= r >> 7
	r ^= r << 17
	return r
}

func (i Integer) Less(o Integer) bool { return i < o }
func (i Integer) Equal(o Integer) bool { return i == o }
