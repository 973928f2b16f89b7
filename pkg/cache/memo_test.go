package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/pkg/logger"
)

func TestMemoComputesOnceThenHits(t *testing.T) {
	memo := NewMemo[float64]("test", NewMemoryStore(), time.Hour, logger.NewDiscardLogger(), nil)
	ctx := context.Background()
	var calls int32

	compute := func(context.Context) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 27.6, nil
	}

	v, hit, err := memo.Get(ctx, "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 27.6, v)

	v, hit, err = memo.Get(ctx, "k", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 27.6, v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMemoCollapsesConcurrentMisses(t *testing.T) {
	memo := NewMemo[int]("test", NewMemoryStore(), time.Hour, logger.NewDiscardLogger(), nil)
	var calls int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	compute := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		once.Do(func() { close(started) })
		<-release
		return 42, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, _ = memo.Get(context.Background(), "shared", compute)
	}()
	<-started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = memo.Get(context.Background(), "shared", compute)
		}(i)
	}
	// Give followers time to join the in-flight call before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestMemoCancelledCallerStillPopulates(t *testing.T) {
	store := NewMemoryStore()
	memo := NewMemo[string]("test", store, time.Hour, logger.NewDiscardLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	done := make(chan struct{})

	compute := func(inner context.Context) (string, error) {
		<-release
		defer close(done)
		assert.NoError(t, inner.Err())
		return "value", nil
	}

	errCh := make(chan error, 1)
	go func() {
		_, _, err := memo.Get(ctx, "k", compute)
		errCh <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-done

	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), "k")
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestMemoDoesNotCacheErrors(t *testing.T) {
	memo := NewMemo[int]("test", NewMemoryStore(), time.Hour, logger.NewDiscardLogger(), nil)
	boom := errors.New("boom")
	var calls int32
	compute := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, boom
	}

	_, _, err := memo.Get(context.Background(), "k", compute)
	assert.ErrorIs(t, err, boom)
	_, _, err = memo.Get(context.Background(), "k", compute)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMemoPeekNeverComputes(t *testing.T) {
	memo := NewMemo[float64]("test", NewMemoryStore(), time.Hour, logger.NewDiscardLogger(), nil)
	ctx := context.Background()

	_, ok, err := memo.Peek(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = memo.Get(ctx, "k", func(context.Context) (float64, error) { return 8.5, nil })
	require.NoError(t, err)

	v, ok, err := memo.Peek(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8.5, v)

	require.NoError(t, memo.Invalidate(ctx, "k"))
	_, ok, err = memo.Peek(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
