package queryrunner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
)

func writeQ1File(t *testing.T, rows [][5]int64, flags [][2]byte, shipdates []int64) (*storage.File, int64) {
	path := filepath.Join(t.TempDir(), "lineitem")
	w, err := storage.Open(path, storage.ModeWrite, false)
	require.NoError(t, err)

	var p page.LineitemQ1Page
	p.NumTuples = uint32(len(rows))
	for i, row := range rows {
		p.Quantity[i] = row[0]
		p.ExtendedPrice[i] = row[1]
		p.Discount[i] = row[2]
		p.Tax[i] = row[3]
		p.Shipdate[i] = uint32(shipdates[i])
		p.Returnflag[i] = flags[i][0]
		p.Linestatus[i] = flags[i][1]
	}
	require.NoError(t, w.AppendPages(page.AsBytes(&p), 1))
	require.NoError(t, w.Close())

	r, err := storage.Open(path, storage.ModeRead, false)
	require.NoError(t, err)
	size, err := r.ReadSize()
	require.NoError(t, err)
	return r, size
}

func TestQ1RunnerSynchronousMatchesExpectedAggregates(t *testing.T) {
	lowDate := uint32(mustParseDate("1998-01-01"))
	file, size := writeQ1File(t,
		[][5]int64{{1700, 10000, 1000, 500}, {200, 5000, 0, 0}},
		[][2]byte{{'A', 'F'}, {'A', 'F'}},
		[]int64{int64(lowDate), int64(lowDate)},
	)
	defer file.Close()

	swips := GetSwips(size)
	require.Len(t, swips, 1)

	runner := NewQ1Runner(1, swips, file, 0, true)
	require.NoError(t, runner.StartProcessing(context.Background()))
	entries := runner.DoPostProcessing()
	require.Len(t, entries, 1)
	require.Equal(t, byte('A'), entries[0].Returnflag)
	require.Equal(t, byte('F'), entries[0].Linestatus)
	require.EqualValues(t, 2, entries[0].Count)
	require.Equal(t, "19.00", entries[0].SumQty.String())
}

func TestQ1RunnerAsynchronousMatchesSynchronous(t *testing.T) {
	lowDate := uint32(mustParseDate("1998-01-01"))
	rows := [][5]int64{{100, 1000, 0, 0}, {200, 2000, 0, 0}, {300, 3000, 0, 0}}
	flags := [][2]byte{{'N', 'O'}, {'A', 'F'}, {'N', 'O'}}
	dates := []int64{int64(lowDate), int64(lowDate), int64(lowDate)}

	fileSync, sizeSync := writeQ1File(t, rows, flags, dates)
	defer fileSync.Close()
	swipsSync := GetSwips(sizeSync)
	syncRunner := NewQ1Runner(2, swipsSync, fileSync, 0, true)
	require.NoError(t, syncRunner.StartProcessing(context.Background()))
	syncEntries := syncRunner.DoPostProcessing()

	fileAsync, sizeAsync := writeQ1File(t, rows, flags, dates)
	defer fileAsync.Close()
	swipsAsync := GetSwips(sizeAsync)
	asyncRunner := NewQ1Runner(2, swipsAsync, fileAsync, 4, true)
	require.NoError(t, asyncRunner.StartProcessing(context.Background()))
	asyncEntries := asyncRunner.DoPostProcessing()

	require.Equal(t, len(syncEntries), len(asyncEntries))
	for i := range syncEntries {
		require.Equal(t, syncEntries[i].Returnflag, asyncEntries[i].Returnflag)
		require.Equal(t, syncEntries[i].Linestatus, asyncEntries[i].Linestatus)
		require.Equal(t, syncEntries[i].Count, asyncEntries[i].Count)
		require.Equal(t, syncEntries[i].SumQty.String(), asyncEntries[i].SumQty.String())
	}
}

func TestQ1RunnerSkipsWorkWhenDoWorkFalse(t *testing.T) {
	lowDate := uint32(mustParseDate("1998-01-01"))
	file, size := writeQ1File(t, [][5]int64{{100, 1000, 0, 0}}, [][2]byte{{'A', 'F'}}, []int64{int64(lowDate)})
	defer file.Close()

	runner := NewQ1Runner(1, GetSwips(size), file, 0, false)
	require.NoError(t, runner.StartProcessing(context.Background()))
	require.Nil(t, runner.DoPostProcessing())
}
