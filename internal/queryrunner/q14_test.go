package queryrunner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/L-v-M/async/internal/column"
	"github.com/L-v-M/async/internal/jointable"
	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
)

func writePartFile(t *testing.T, partkeys []int32, types []string) (*storage.File, int64) {
	path := filepath.Join(t.TempDir(), "part")
	w, err := storage.Open(path, storage.ModeWrite, false)
	require.NoError(t, err)

	var p page.PartPage
	p.NumTuples = uint32(len(partkeys))
	for i, k := range partkeys {
		p.Partkey[i] = k
		p.Type[i][0] = byte(len(types[i]))
		copy(p.Type[i][1:], types[i])
	}
	require.NoError(t, w.AppendPages(page.AsBytes(&p), 1))
	require.NoError(t, w.Close())

	r, err := storage.Open(path, storage.ModeRead, false)
	require.NoError(t, err)
	size, err := r.ReadSize()
	require.NoError(t, err)
	return r, size
}

func buildQ14Fixture(t *testing.T) (*jointable.InMemoryLineitemData, *jointable.PartHashTable, *storage.File) {
	partFile, partSize := writePartFile(t,
		[]int32{1, 2, 3},
		[]string{"PROMO BRUSHED COPPER", "STANDARD ANODIZED TIN", "PROMO POLISHED STEEL"},
	)
	t.Cleanup(func() { partFile.Close() })

	data := jointable.NewInMemoryLineitemData(3)
	n := data.IncreaseSize(3)
	require.EqualValues(t, 0, n)
	inWindow := mustParseDate("1995-09-15")
	data.Partkey[0] = 1
	data.Partkey[1] = 2
	data.Partkey[2] = 3
	for i := range data.Shipdate {
		data.Shipdate[i] = inWindow
	}
	for i := range data.ExtendedPrice {
		data.ExtendedPrice[i] = column.NewNumeric(10000, 2)
		data.Discount[i] = column.NewNumeric(0, 2)
	}

	numPages := partSize / page.PageSize
	var partPages [1]page.PartPage
	require.NoError(t, partFile.ReadPage(0, page.AsBytes(&partPages[0])))

	partTable := jointable.BuildHashTableForPart(data, partPages[:numPages], 1)
	return data, partTable, partFile
}

func TestQ14RunnerSynchronousComputesPromoRevenue(t *testing.T) {
	data, partTable, partFile := buildQ14Fixture(t)

	runner := NewQ14Runner(1, data, partTable, partFile, 0, true)
	require.NoError(t, runner.StartProcessing(context.Background()))
	result, err := runner.DoPostProcessing()
	require.NoError(t, err)
	// two of three rows (partkeys 1 and 3) are PROMO, each row's amount is
	// identical, so the ratio is 2/3, truncated at scale 4 to 0.6666 ->
	// 100 * 0.6666 = 66.66000000
	require.InDelta(t, 66.66, float64(result.Raw)/1e8, 1e-4)
}

func TestQ14RunnerAsynchronousMatchesSynchronous(t *testing.T) {
	dataSync, partTableSync, partFileSync := buildQ14Fixture(t)
	syncRunner := NewQ14Runner(1, dataSync, partTableSync, partFileSync, 0, true)
	require.NoError(t, syncRunner.StartProcessing(context.Background()))
	syncResult, err := syncRunner.DoPostProcessing()
	require.NoError(t, err)

	dataAsync, partTableAsync, partFileAsync := buildQ14Fixture(t)
	asyncRunner := NewQ14Runner(2, dataAsync, partTableAsync, partFileAsync, 4, true)
	require.NoError(t, asyncRunner.StartProcessing(context.Background()))
	asyncResult, err := asyncRunner.DoPostProcessing()
	require.NoError(t, err)

	require.Equal(t, syncResult.Scale, asyncResult.Scale)
	require.Equal(t, syncResult.Raw, asyncResult.Raw)
}

func TestQ14RunnerSkipsWorkWhenDoWorkFalse(t *testing.T) {
	data, partTable, partFile := buildQ14Fixture(t)

	runner := NewQ14Runner(1, data, partTable, partFile, 0, false)
	require.NoError(t, runner.StartProcessing(context.Background()))
	result, err := runner.DoPostProcessing()
	require.NoError(t, err)
	require.Equal(t, column.Numeric{}, result)
}
