package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunsAllSubmittedTasks(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var n atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	require.Equal(t, int64(100), n.Load())
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	require.NoError(t, p.Submit(func() { panic("boom") }))

	var wg sync.WaitGroup
	wg.Add(1)
	var ran atomic.Bool
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		ran.Store(true)
	}))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool appears stuck after a panicking task")
	}
	require.True(t, ran.Load())
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := New(1)
	p.Shutdown()

	err := p.Submit(func() {})
	require.ErrorIs(t, err, ErrClosed)
}

func TestShutdownWaitsForInFlightTasks(t *testing.T) {
	p := New(1)

	var done atomic.Bool
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	}))
	<-started

	p.Shutdown()
	require.True(t, done.Load())
}
