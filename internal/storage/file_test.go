package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/L-v-M/async/internal/ioring"
)

func TestAppendAndReadBlockRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")

	w, err := Open(path, ModeWrite, false)
	require.NoError(t, err)
	payload := []byte("0123456789abcdef")
	require.NoError(t, w.AppendBlock(payload, len(payload)))
	require.NoError(t, w.Close())

	r, err := Open(path, ModeRead, false)
	require.NoError(t, err)
	defer r.Close()

	size, err := r.ReadSize()
	require.NoError(t, err)
	require.EqualValues(t, len(payload), size)

	buf := make([]byte, len(payload))
	require.NoError(t, r.ReadBlock(buf, 0, len(buf)))
	require.Equal(t, payload, buf)
}

func TestReadBlockStopsAtEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))

	r, err := Open(path, ModeRead, false)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 32)
	require.NoError(t, r.ReadBlock(buf, 0, len(buf)))
	require.Equal(t, "short", string(buf[:5]))
}

func TestAsyncReadBlockMatchesSyncRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	payload := []byte("the quick brown fox jumps")
	require.NoError(t, os.WriteFile(path, payload, 0600))

	r, err := Open(path, ModeRead, false)
	require.NoError(t, err)
	defer r.Close()

	ring := ioring.New(4, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(pumpDone)
				return
			default:
				ring.ProcessBatch(8)
			}
		}
	}()

	buf := make([]byte, len(payload))
	err = r.AsyncReadBlock(ctx, ring, buf, 0, len(buf))
	cancel()
	<-pumpDone
	require.NoError(t, err)
	require.Equal(t, payload, buf)
}
