package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInvalidSize(t *testing.T) {
	_, err := New("test", 0)
	require.ErrorIs(t, err, ErrSizeInvalid)
}

func TestSubmitRunsTasks(t *testing.T) {
	p, err := New("test", 2)
	require.NoError(t, err)

	defer p.Release()

	assert.Equal(t, 2, p.Cap())

	var (
		wg    sync.WaitGroup
		count atomic.Int32
	)

	for range 10 {
		wg.Add(1)

		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			defer wg.Done()
			count.Add(1)
		}))
	}

	wg.Wait()
	assert.Equal(t, int32(10), count.Load())
}

func TestSubmitCancelled(t *testing.T) {
	p, err := New("test", 1)
	require.NoError(t, err)

	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.Submit(ctx, func(context.Context) { t.Error("task must not run") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestPanicIsRecovered(t *testing.T) {
	p, err := New("test", 1)
	require.NoError(t, err)

	defer p.Release()

	var wg sync.WaitGroup

	wg.Add(1)
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		defer wg.Done()
		panic("boom")
	}))
	wg.Wait()

	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { close(done) }))
	<-done
}
