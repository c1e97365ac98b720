package swip

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestSwipPageIndexRoundTrip(t *testing.T) {
	s := MakePageIndex(12345)
	require.True(t, s.IsPageIndex())
	require.False(t, s.IsPointer())
	require.EqualValues(t, 12345, s.GetPageIndex())
}

func TestSwipPointerRoundTrip(t *testing.T) {
	v := 7
	s := MakePointer(&v)
	require.True(t, s.IsPointer())
	require.False(t, s.IsPageIndex())
	require.Equal(t, &v, GetPointer[int](s))
}

func TestResolveToPointerIsOneWay(t *testing.T) {
	s := MakePageIndex(1)
	v := 9
	won, resolved := s.ResolveToPointer(unsafe.Pointer(&v))
	require.True(t, won)
	require.Equal(t, unsafe.Pointer(&v), resolved)
	require.True(t, s.IsPointer())

	other := 11
	won2, resolved2 := s.ResolveToPointer(unsafe.Pointer(&other))
	require.False(t, won2)
	require.Equal(t, unsafe.Pointer(&v), resolved2)
}

func TestResolveToPointerSingleWinnerUnderRace(t *testing.T) {
	s := MakePageIndex(2)
	const n = 16
	wins := make(chan bool, n)
	done := make(chan struct{})
	vals := make([]int, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			won, _ := s.ResolveToPointer(unsafe.Pointer(&vals[i]))
			wins <- won
		}()
	}
	go func() {
		winCount := 0
		for i := 0; i < n; i++ {
			if <-wins {
				winCount++
			}
		}
		require.Equal(t, 1, winCount)
		close(done)
	}()
	<-done
}
