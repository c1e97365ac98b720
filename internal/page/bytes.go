package page

import "unsafe"

// AsBytes views a page struct as its PageSize-byte on-disk image, the same
// unsafe.Slice-over-a-pointer trick pkg/util/pointer_op.go's
// PointerToSlice uses to treat a typed value as a byte buffer without a
// copy. Callers must keep p alive as long as the returned slice is used.
func AsBytes[T any](p *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}

// FromBytes reinterprets a PageSize-byte buffer as a page struct pointer,
// the inverse of AsBytes. buf must be at least unsafe.Sizeof(T) bytes and
// should come from an aligned allocation (see internal/storage's
// alignment helpers) when used with direct I/O.
func FromBytes[T any](buf []byte) *T {
	return (*T)(unsafe.Pointer(unsafe.SliceData(buf)))
}

// SliceAsBytes views a contiguous slice of page structs as one byte
// buffer, the multi-page counterpart of AsBytes used by internal/loader
// to write a whole batch of pages in a single AppendPages call.
func SliceAsBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), int(unsafe.Sizeof(zero))*len(s))
}

// BytesAsSlice is SliceAsBytes's inverse: it views a byte buffer (an
// mmap'd file, say) as a slice of page structs without copying, the way
// cmd/q14 treats an mmap'd part.dat as a []page.PartPage the same way
// BuildHashTableForPart's mmap + reinterpret_cast<PartPage*> does.
// buf's length must be a multiple of unsafe.Sizeof(T); any remainder is
// ignored.
func BytesAsSlice[T any](buf []byte) []T {
	if len(buf) == 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), len(buf)/size)
}
