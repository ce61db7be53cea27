package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	dlerrors "github.com/dlogcover/dlogcover/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubmitRunsEveryTask(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	const n = 200
	var counter int64
	futures := make([]*Future, 0, n)
	for i := 0; i < n; i++ {
		f, err := p.Submit(func(ctx context.Context) {
			atomic.AddInt64(&counter, 1)
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		require.NoError(t, f.Wait())
	}
	assert.EqualValues(t, n, atomic.LoadInt64(&counter))
	assert.EqualValues(t, n, p.Stats().TasksExecuted)
}

func TestSubmitBatchRunsEveryTask(t *testing.T) {
	p := New(3)
	defer p.Shutdown()

	var counter int64
	tasks := make([]Task, 50)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) { atomic.AddInt64(&counter, 1) }
	}
	futures, err := p.SubmitBatch(tasks)
	require.NoError(t, err)
	for _, f := range futures {
		require.NoError(t, f.Wait())
	}
	assert.EqualValues(t, 50, atomic.LoadInt64(&counter))
}

func TestStealingRedistributesWorkFromOverloadedWorker(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	release := make(chan struct{})
	blocker, err := p.Submit(func(ctx context.Context) {
		<-release
	})
	require.NoError(t, err)

	var counter int64
	futures := make([]*Future, 0, 30)
	for i := 0; i < 30; i++ {
		f, err := p.Submit(func(ctx context.Context) { atomic.AddInt64(&counter, 1) })
		require.NoError(t, err)
		futures = append(futures, f)
	}

	for _, f := range futures {
		require.NoError(t, f.Wait())
	}
	assert.EqualValues(t, 30, atomic.LoadInt64(&counter))

	close(release)
	require.NoError(t, blocker.Wait())
}

func TestPanicInTaskIsRecoveredAndReported(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	f, err := p.Submit(func(ctx context.Context) {
		panic("boom")
	})
	require.NoError(t, err)
	assert.Error(t, f.Wait())

	// Pool must remain usable after a panicking task.
	f2, err := p.Submit(func(ctx context.Context) {})
	require.NoError(t, err)
	assert.NoError(t, f2.Wait())
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(2)
	p.Shutdown()

	_, err := p.Submit(func(ctx context.Context) {})
	var stopped *dlerrors.PoolStoppedError
	assert.ErrorAs(t, err, &stopped)
}

func TestShutdownIsIdempotent(t *testing.T) {
	p := New(2)
	p.Shutdown()
	assert.NotPanics(t, func() { p.Shutdown() })
}

func TestWarmupSemaphoreBoundsConcurrency(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, p.AcquireWarmup(context.Background()))
	require.NoError(t, p.AcquireWarmup(context.Background()))

	err := p.AcquireWarmup(ctx)
	assert.Error(t, err, "third acquire should block until a slot is released")

	p.ReleaseWarmup()
	p.ReleaseWarmup()
}
