package loader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/L-v-M/async/internal/column"
	"github.com/L-v-M/async/internal/page"
	"github.com/L-v-M/async/internal/storage"
)

func writeTextFile(t *testing.T, lines []string) string {
	path := filepath.Join(t.TempDir(), "in.tbl")
	var data []byte
	for _, line := range lines {
		data = append(data, []byte(line)...)
		data = append(data, '\n')
	}
	require.NoError(t, writeFile(path, data))
	return path
}

func writeFile(path string, data []byte) error {
	return (&fileWriter{path: path}).write(data)
}

type fileWriter struct{ path string }

func (w *fileWriter) write(data []byte) error {
	f, err := storage.Open(w.path, storage.ModeWrite, false)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.AppendBlock(data, len(data))
}

func readLineitemQ1Pages(t *testing.T, path string) []page.LineitemQ1Page {
	f, err := storage.Open(path, storage.ModeRead, false)
	require.NoError(t, err)
	defer f.Close()
	size, err := f.ReadSize()
	require.NoError(t, err)
	numPages := int(size / page.PageSize)
	pages := make([]page.LineitemQ1Page, numPages)
	for i := 0; i != numPages; i++ {
		require.NoError(t, f.ReadPage(uint64(i), page.AsBytes(&pages[i])))
	}
	return pages
}

func readLineitemQ14Pages(t *testing.T, path string) []page.LineitemQ14Page {
	f, err := storage.Open(path, storage.ModeRead, false)
	require.NoError(t, err)
	defer f.Close()
	size, err := f.ReadSize()
	require.NoError(t, err)
	numPages := int(size / page.PageSize)
	pages := make([]page.LineitemQ14Page, numPages)
	for i := 0; i != numPages; i++ {
		require.NoError(t, f.ReadPage(uint64(i), page.AsBytes(&pages[i])))
	}
	return pages
}

func readPartPages(t *testing.T, path string) []page.PartPage {
	f, err := storage.Open(path, storage.ModeRead, false)
	require.NoError(t, err)
	defer f.Close()
	size, err := f.ReadSize()
	require.NoError(t, err)
	numPages := int(size / page.PageSize)
	pages := make([]page.PartPage, numPages)
	for i := 0; i != numPages; i++ {
		require.NoError(t, f.ReadPage(uint64(i), page.AsBytes(&pages[i])))
	}
	return pages
}

const lineitemLine = "1|2|3|1|17.00|21168.23|0.04|0.02|N|O|1996-03-13|1996-02-12|1996-03-22|DELIVER IN PERSON|TRUCK|egular courses above the"

func TestParseLineitemQ1LineExtractsExpectedFields(t *testing.T) {
	inPath := writeTextFile(t, []string{lineitemLine})
	outPath := filepath.Join(t.TempDir(), "out.dat")

	stats, err := LoadText(LineitemQ1, inPath, outPath)
	require.NoError(t, err)
	require.Greater(t, stats.BytesRead, int64(0))

	pages := readLineitemQ1Pages(t, outPath)
	var total uint32
	for _, p := range pages {
		total += p.NumTuples
	}
	require.EqualValues(t, 1, total)

	for _, p := range pages {
		if p.NumTuples == 0 {
			continue
		}
		require.EqualValues(t, 1700, p.Quantity[0])
		require.EqualValues(t, 2116823, p.ExtendedPrice[0])
		require.EqualValues(t, 4, p.Discount[0])
		require.EqualValues(t, 2, p.Tax[0])
		require.Equal(t, byte('N'), p.Returnflag[0])
		require.Equal(t, byte('O'), p.Linestatus[0])
	}
}

func TestParseLineitemQ14LineExtractsPartkeyAndShipdate(t *testing.T) {
	inPath := writeTextFile(t, []string{lineitemLine})
	outPath := filepath.Join(t.TempDir(), "out.dat")

	_, err := LoadText(LineitemQ14, inPath, outPath)
	require.NoError(t, err)

	pages := readLineitemQ14Pages(t, outPath)
	var total uint32
	for _, p := range pages {
		total += p.NumTuples
	}
	require.EqualValues(t, 1, total)

	for _, p := range pages {
		if p.NumTuples == 0 {
			continue
		}
		require.EqualValues(t, 2, p.Partkey[0])
		require.EqualValues(t, 2116823, p.ExtendedPrice[0])
		require.EqualValues(t, 4, p.Discount[0])
		shipdate, err := column.ParseDate("1996-03-13")
		require.NoError(t, err)
		require.EqualValues(t, shipdate, p.Shipdate[0])
	}
}

const partLine = "1|goldenrod lace spring peru powder|Manufacturer#1|Brand#13|PROMO BURNISHED COPPER|7|JUMBO PKG|901.00|ly. slyly ironic"

func TestParsePartLineExtractsPartkeyAndType(t *testing.T) {
	inPath := writeTextFile(t, []string{partLine})
	outPath := filepath.Join(t.TempDir(), "out.dat")

	_, err := LoadText(Part, inPath, outPath)
	require.NoError(t, err)

	pages := readPartPages(t, outPath)
	var total uint32
	for _, p := range pages {
		total += p.NumTuples
	}
	require.EqualValues(t, 1, total)

	for _, p := range pages {
		if p.NumTuples == 0 {
			continue
		}
		require.EqualValues(t, 1, p.Partkey[0])
		length := int(p.Type[0][0])
		require.Equal(t, "PROMO BURNISHED COPPER", string(p.Type[0][1:1+length]))
	}
}

func TestParseKindRejectsUnknownKind(t *testing.T) {
	_, err := ParseKind("bogus")
	require.Error(t, err)
}

func TestParseKindAcceptsAllThreeNames(t *testing.T) {
	k, err := ParseKind("lineitemQ1")
	require.NoError(t, err)
	require.Equal(t, LineitemQ1, k)

	k, err = ParseKind("lineitemQ14")
	require.NoError(t, err)
	require.Equal(t, LineitemQ14, k)

	k, err = ParseKind("part")
	require.NoError(t, err)
	require.Equal(t, Part, k)
}

func TestStatsThroughputGBPerSecond(t *testing.T) {
	s := Stats{BytesRead: 2_000_000_000, Seconds: 2}
	require.InDelta(t, 1.0, s.ThroughputGBPerSecond(), 1e-9)

	zero := Stats{}
	require.Equal(t, 0.0, zero.ThroughputGBPerSecond())
}

func TestLoadTextHandlesMultipleLines(t *testing.T) {
	lines := make([]string, 0, 5)
	for i := 0; i != 5; i++ {
		lines = append(lines, lineitemLine)
	}
	inPath := writeTextFile(t, lines)
	outPath := filepath.Join(t.TempDir(), "out.dat")

	_, err := LoadText(LineitemQ1, inPath, outPath)
	require.NoError(t, err)

	pages := readLineitemQ1Pages(t, outPath)
	var total uint32
	for _, p := range pages {
		total += p.NumTuples
	}
	require.EqualValues(t, 5, total)
}
