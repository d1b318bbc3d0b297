package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/work"
)

func newTestWorker(t *testing.T, cb Callbacks) *Worker {
	t.Helper()
	gate := work.NewGate(true)
	wk := New("worker-test", gate, config.PoolOptions{DefaultWorkTimeout: time.Second}, events.NewBus(), cb)
	wk.Run()
	t.Cleanup(wk.Stop)
	return wk
}

func TestWorker_ExecutesSubmittedWork(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	w := work.New("w1", func(ctx context.Context) (any, error) {
		return "done", nil
	}, work.Options{})

	wk.Submit(w)

	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, work.StateSucceeded, w.State())
	assert.Equal(t, "done", w.Result())
}

func TestWorker_RunsHighestPriorityFirst(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	var mu sync.Mutex
	var order []string
	record := func(id string) work.Body {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil, nil
		}
	}

	low := work.New("low", record("low"), work.Options{Priority: work.PriorityLowest})
	high := work.New("high", record("high"), work.Options{Priority: work.PriorityHighest})

	wk.queue.Set(low, int(work.PriorityLowest))
	wk.queue.Set(high, int(work.PriorityHighest))
	wk.signal()

	require.NoError(t, low.Wait(context.Background()))
	require.NoError(t, high.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, "high", order[0])
}

func TestWorker_FailureWithoutRetryEndsFailed(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	boom := errors.New("boom")
	w := work.New("w-fail", func(ctx context.Context) (any, error) {
		return nil, boom
	}, work.Options{})

	wk.Submit(w)

	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, work.StateFailed, w.State())
	assert.Equal(t, boom, w.Err())
}

func TestWorker_RetryImmediateReexecutesOnSameWorker(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	var attempts int
	var mu sync.Mutex
	w := work.New("w-retry", func(ctx context.Context) (any, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, work.Options{
		Retry: work.RetryOption{Max: 3, Strategy: work.RetryImmediate, InitialBackoff: time.Millisecond},
	})

	wk.Submit(w)

	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, work.StateSucceeded, w.State())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
}

func TestWorker_RetryRequeueInvokesCallback(t *testing.T) {
	requeued := make(chan *work.Work, 1)
	wk := newTestWorker(t, Callbacks{
		OnRequeue: func(w *work.Work) { requeued <- w },
	})

	w := work.New("w-requeue", func(ctx context.Context) (any, error) {
		return nil, errors.New("fail once")
	}, work.Options{
		Retry: work.RetryOption{Max: 1, Strategy: work.RetryRequeue, InitialBackoff: time.Millisecond},
	})

	wk.Submit(w)

	select {
	case got := <-requeued:
		assert.Equal(t, w.ID, got.ID)
		assert.Equal(t, work.StateWaiting, got.State())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for requeue callback")
	}
}

func TestWorker_TimeoutCooperativeStopMarksStopped(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	w := work.New("w-timeout", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, work.Options{
		Timeout: work.TimeoutOption{Duration: 20 * time.Millisecond},
	})

	wk.Submit(w)

	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, work.StateStopped, w.State())
}

func TestWorker_PanicRecoveredAsFailure(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	w := work.New("w-panic", func(ctx context.Context) (any, error) {
		panic("kaboom")
	}, work.Options{})

	wk.Submit(w)

	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, work.StateFailed, w.State())
	assert.Contains(t, w.Err().Error(), "kaboom")
}

func TestWorker_OnIdleCallbackFiresAfterEachItem(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	wk := newTestWorker(t, Callbacks{
		OnIdle: func(id string) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})

	w := work.New("w-idle", func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{})

	wk.Submit(w)
	require.NoError(t, w.Wait(context.Background()))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), calls)
}

func TestWorker_StopIfRequestedEndsWorkStopped(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	entered := make(chan struct{})
	w := work.New("w-stop-if-requested", func(ctx context.Context) (any, error) {
		close(entered)
		for {
			if err := work.StopIfRequested(ctx); err != nil {
				return nil, err
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}, work.Options{})

	wk.Submit(w)
	<-entered
	w.RequestStop()

	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, work.StateStopped, w.State())
}

func TestWorker_PauseIfRequestedParksBodyOnWorkGate(t *testing.T) {
	wk := newTestWorker(t, Callbacks{})

	paused := make(chan struct{})
	resumed := make(chan struct{})
	w := work.New("w-pause-if-requested", func(ctx context.Context) (any, error) {
		close(paused)
		if err := work.PauseIfRequested(ctx); err != nil {
			return nil, err
		}
		close(resumed)
		return "done", nil
	}, work.Options{})

	w.Pause()
	wk.Submit(w)
	<-paused

	select {
	case <-resumed:
		t.Fatal("body ran past its pause checkpoint before Resume")
	case <-time.After(30 * time.Millisecond):
	}

	w.Resume()
	require.NoError(t, w.Wait(context.Background()))
	assert.Equal(t, work.StateSucceeded, w.State())
}

func TestWorker_DisposeExitsLoopOnceQueueDrains(t *testing.T) {
	gate := work.NewGate(true)
	wk := New("worker-dispose", gate, config.PoolOptions{}, events.NewBus(), Callbacks{})
	wk.Run()

	w := work.New("w-before-dispose", func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{})
	wk.Submit(w)
	require.NoError(t, w.Wait(context.Background()))
	time.Sleep(20 * time.Millisecond) // let the worker mark itself idle

	wk.Dispose()
	wk.Stop()
	assert.Equal(t, StateToBeDisposed, wk.State())
}
