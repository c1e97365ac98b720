package ioring

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitAndProcessBatchDeliversResult(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ioring")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("hello, world")
	require.NoError(t, err)

	ring := New(4, 2)
	buf := make([]byte, 5)
	req, err := ring.Submit(int(f.Fd()), buf, 0)
	require.NoError(t, err)
	require.False(t, ring.Empty())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for !ring.Empty() {
			ring.ProcessBatch(8)
		}
		close(done)
	}()

	n, err := req.Await(ctx)
	<-done
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf))
	require.True(t, ring.Empty())
}

func TestSubmitReturnsErrorWhenRingFull(t *testing.T) {
	ring := &IOUring{submitCh: make(chan *Request)}
	_, err := ring.Submit(0, nil, 0)
	require.Error(t, err)
}

func TestCountdown(t *testing.T) {
	c := NewCountdown(2)
	require.False(t, c.IsZero())
	c.Decrement()
	require.False(t, c.IsZero())
	c.Decrement()
	require.True(t, c.IsZero())
	c.Set(1)
	require.False(t, c.IsZero())
}
