package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/valuation/metrics"
)

func TestPoolRunsAllQueuedTasksBeforeStop(t *testing.T) {
	p := NewPool(WithName("batch"), WithSize(3), WithQueueSize(50))

	var done atomic.Int32
	for range 50 {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			time.Sleep(time.Millisecond)
			done.Add(1)
		}))
	}
	p.Stop()
	p.Stop()

	assert.Equal(t, int32(50), done.Load())
	assert.Equal(t, 0, p.Active())
	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrPoolClosed)
	assert.ErrorIs(t, p.TrySubmit(func(context.Context) {}), ErrPoolClosed)
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	p := NewPool(WithSize(1), WithQueueSize(0))
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.ErrorIs(t, p.TrySubmit(func(context.Context) {}), ErrPoolFull)
	assert.ErrorIs(t, p.SubmitWithTimeout(func(context.Context) {}, 10*time.Millisecond), ErrTaskTimeout)

	close(release)
}

func TestPoolStopUnblocksPendingSubmit(t *testing.T) {
	p := NewPool(WithSize(1), WithQueueSize(0))

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Submit(context.Background(), func(context.Context) {})
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Stop()
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending submit was not released by Stop")
	}
	close(release)
	wg.Wait()
}

func TestPoolRecoversPanicAndRecordsMetrics(t *testing.T) {
	m := metrics.NewMetrics("valuation")
	recovered := make(chan any, 1)
	p := NewPool(
		WithName("pricing"),
		WithSize(2),
		WithMetrics(m),
		WithPanicHandler(func(r any) { recovered <- r }),
	)

	require.NoError(t, p.Submit(context.Background(), func(context.Context) { panic("bad lattice") }))
	assert.Equal(t, "bad lattice", <-recovered)

	var ran atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { ran.Store(true) }))
	p.Stop()
	assert.True(t, ran.Load())

	assert.InDelta(t, 1, testutil.ToFloat64(p.stats.panics), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(p.stats.workers), 0)
}
