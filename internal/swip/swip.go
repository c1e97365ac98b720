// Package swip implements the tagged pointer/page-index word of
// original_source/storage/src/storage/swip.h. A Swip starts out
// pointing at an on-disk page index; once that page is cached in
// memory, it is swizzled in place to hold a direct pointer instead.
// That Index->Pointer transition happens exactly once per Swip over a
// query run, so the CAS in ResolveToPointer is there to make
// concurrent first-touches agree on a single winner rather than to
// support swizzling back and forth.
package swip

import (
	"sync/atomic"
	"unsafe"
)

const pageIndexTag = uint64(1) << 63
const pageIndexMask = pageIndexTag - 1

// Swip is the tagged 64-bit word; the zero value reads as a nil pointer.
type Swip struct {
	data atomic.Uint64
}

func MakePointer[T any](ptr *T) *Swip {
	s := &Swip{}
	SetPointer(s, ptr)
	return s
}

func MakePageIndex(index uint64) *Swip {
	s := &Swip{}
	s.SetPageIndex(index)
	return s
}

func (s *Swip) IsPageIndex() bool { return s.data.Load()&pageIndexTag != 0 }
func (s *Swip) IsPointer() bool   { return !s.IsPageIndex() }

// SetPointer stores ptr as the Swip's pointer value, converting from the
// concrete *T the way GetPointer converts back on the read side; Go
// methods can't carry their own type parameters, so this is a free
// function rather than a method.
func SetPointer[T any](s *Swip, ptr *T) {
	s.data.Store(uint64(uintptr(unsafe.Pointer(ptr))))
}

func (s *Swip) SetPageIndex(index uint64) {
	s.data.Store(index | pageIndexTag)
}

// GetPointer reinterprets the word as a *T; callers must have checked
// IsPointer first.
func GetPointer[T any](s *Swip) *T {
	return (*T)(unsafe.Pointer(uintptr(s.data.Load())))
}

func (s *Swip) GetPageIndex() uint64 {
	return s.data.Load() & pageIndexMask
}

// ResolveToPointer attempts the one-way page-index -> pointer
// transition with a compare-and-swap, so that when several goroutines
// race to cache the same page, exactly one write wins and the rest
// observe the winner's pointer instead of clobbering it.
func (s *Swip) ResolveToPointer(ptr unsafe.Pointer) (won bool, resolved unsafe.Pointer) {
	old := s.data.Load()
	if old&pageIndexTag == 0 {
		return false, unsafe.Pointer(uintptr(old))
	}
	newVal := uint64(uintptr(ptr))
	if s.data.CompareAndSwap(old, newVal) {
		return true, ptr
	}
	return false, unsafe.Pointer(uintptr(s.data.Load()))
}
