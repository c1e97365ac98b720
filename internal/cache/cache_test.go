package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
	"github.com/L-v-M/async/internal/swip"
)

func writeLineitemQ1File(t *testing.T, numPages int) (*storage.File, int64) {
	path := filepath.Join(t.TempDir(), "lineitem")
	w, err := storage.Open(path, storage.ModeWrite, false)
	require.NoError(t, err)
	for i := 0; i < numPages; i++ {
		var p page.LineitemQ1Page
		p.NumTuples = 1
		p.Quantity[0] = int64(i + 1)
		require.NoError(t, w.AppendPages(page.AsBytes(&p), 1))
	}
	require.NoError(t, w.Close())

	r, err := storage.Open(path, storage.ModeRead, false)
	require.NoError(t, err)
	size, err := r.ReadSize()
	require.NoError(t, err)
	return r, size
}

func TestPopulateSwizzlesRequestedSwips(t *testing.T) {
	const numPages = 8
	file, _ := writeLineitemQ1File(t, numPages)
	defer file.Close()

	swips := make([]*swip.Swip, numPages)
	for i := range swips {
		swips[i] = swip.MakePageIndex(uint64(i))
	}

	c := New(swips, file)
	indexes := []uint64{0, 2, 4, 6}
	require.NoError(t, c.Populate(context.Background(), indexes))

	for _, idx := range indexes {
		require.True(t, swips[idx].IsPointer())
		loaded := swip.GetPointer[page.LineitemQ1Page](swips[idx])
		require.EqualValues(t, idx+1, loaded.Quantity[0])
	}
	require.True(t, swips[1].IsPageIndex())
}

func TestPopulateAccumulatesAcrossCalls(t *testing.T) {
	const numPages = 4
	file, _ := writeLineitemQ1File(t, numPages)
	defer file.Close()

	swips := make([]*swip.Swip, numPages)
	for i := range swips {
		swips[i] = swip.MakePageIndex(uint64(i))
	}

	c := New(swips, file)
	require.NoError(t, c.Populate(context.Background(), []uint64{0}))
	require.NoError(t, c.Populate(context.Background(), []uint64{1, 2}))

	require.True(t, swips[0].IsPointer())
	require.True(t, swips[1].IsPointer())
	require.True(t, swips[2].IsPointer())
	require.True(t, swips[3].IsPageIndex())
}
