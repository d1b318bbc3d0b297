package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/work"
)

func newTestDispatcher(t *testing.T, opts config.PoolOptions) *Dispatcher {
	t.Helper()
	d, err := New("test-pool", opts, events.NewBus())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func TestDispatcher_New_RejectsInvalidThreadRange(t *testing.T) {
	_, err := New("bad", config.PoolOptions{MinThreads: 5, MaxThreads: 1}, events.NewBus())
	assert.ErrorIs(t, err, ErrInvalidThreadRange)
}

func TestDispatcher_SubmitExecutesWork(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 2})

	id, err := d.Submit(func(ctx context.Context) (any, error) {
		return 42, nil
	}, work.Options{})
	require.NoError(t, err)

	require.NoError(t, d.Wait(context.Background(), id))

	w, ok := d.Work(id)
	require.True(t, ok)
	assert.Equal(t, work.StateSucceeded, w.State())
	assert.Equal(t, 42, w.Result())
}

func TestDispatcher_SubmitDuplicateCustomID(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 2})

	body := func(ctx context.Context) (any, error) { return nil, nil }
	_, err := d.Submit(body, work.Options{CustomWorkID: "dup"})
	require.NoError(t, err)

	_, err = d.Submit(body, work.Options{CustomWorkID: "dup"})
	assert.ErrorIs(t, err, ErrDuplicateWorkID)
}

func TestDispatcher_SinglePriorityOrdering(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 1})

	start := make(chan struct{})
	var mu sync.Mutex
	var order []string

	gate, err := d.Submit(func(ctx context.Context) (any, error) {
		<-start
		return nil, nil
	}, work.Options{CustomWorkID: "gate"})
	require.NoError(t, err)

	record := func(name string) work.Body {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	_, err = d.Submit(record("low"), work.Options{Priority: work.PriorityBelowNormal})
	require.NoError(t, err)
	_, err = d.Submit(record("high"), work.Options{Priority: work.PriorityHighest})
	require.NoError(t, err)
	_, err = d.Submit(record("normal"), work.Options{Priority: work.PriorityNormal})
	require.NoError(t, err)

	close(start)
	require.NoError(t, d.Wait(context.Background(), gate))
	require.NoError(t, d.WaitAll(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high", "normal", "low"}, order)
}

func TestDispatcher_DependencyHoldsUntilPrerequisiteCompletes(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 2})

	release := make(chan struct{})
	started := make(chan struct{}, 1)

	prereqID, err := d.Submit(func(ctx context.Context) (any, error) {
		<-release
		return "prereq-done", nil
	}, work.Options{CustomWorkID: "prereq"})
	require.NoError(t, err)

	depID, err := d.Submit(func(ctx context.Context) (any, error) {
		started <- struct{}{}
		return "dep-done", nil
	}, work.Options{Dependents: map[string]struct{}{prereqID: {}}})
	require.NoError(t, err)

	select {
	case <-started:
		t.Fatal("dependent ran before its prerequisite completed")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.NoError(t, d.Wait(context.Background(), prereqID))
	require.NoError(t, d.Wait(context.Background(), depID))

	w, _ := d.Work(depID)
	assert.Equal(t, work.StateSucceeded, w.State())
}

func TestDispatcher_DependencyOnAlreadyTerminalPrerequisite(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 2})

	prereqID, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{})
	require.NoError(t, err)
	require.NoError(t, d.Wait(context.Background(), prereqID))

	depID, err := d.Submit(func(ctx context.Context) (any, error) {
		return "ran", nil
	}, work.Options{Dependents: map[string]struct{}{prereqID: {}}})
	require.NoError(t, err)

	require.NoError(t, d.Wait(context.Background(), depID))
	w, _ := d.Work(depID)
	assert.Equal(t, work.StateSucceeded, w.State())
}

func TestDispatcher_PauseBlocksDispatch(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 1})
	d.Pause()

	ran := make(chan struct{})
	_, err := d.Submit(func(ctx context.Context) (any, error) {
		close(ran)
		return nil, nil
	}, work.Options{})
	require.NoError(t, err)

	select {
	case <-ran:
		t.Fatal("work ran while pool was paused")
	case <-time.After(30 * time.Millisecond):
	}

	d.Resume()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("work never ran after resume")
	}
}

func TestDispatcher_StartSuspendedHoldsAllWork(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 1, StartSuspended: true})

	ran := make(chan struct{})
	_, err := d.Submit(func(ctx context.Context) (any, error) {
		close(ran)
		return nil, nil
	}, work.Options{})
	require.NoError(t, err)

	select {
	case <-ran:
		t.Fatal("work ran before Resume on a suspended pool")
	case <-time.After(30 * time.Millisecond):
	}

	d.Resume()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("work never ran after resume")
	}
}

func TestDispatcher_RetryRequeueReachesSuccess(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 2})

	var attempts int32
	id, err := d.Submit(func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 2 {
			return nil, assert.AnError
		}
		return "ok", nil
	}, work.Options{
		Retry: work.RetryOption{Max: 3, Strategy: work.RetryRequeue, InitialBackoff: time.Millisecond},
	})
	require.NoError(t, err)

	require.NoError(t, d.Wait(context.Background(), id))
	w, _ := d.Work(id)
	assert.Equal(t, work.StateSucceeded, w.State())
}

func TestDispatcher_FailedWorkListTracksExhaustedRetries(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 1})

	id, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, assert.AnError
	}, work.Options{})
	require.NoError(t, err)

	require.NoError(t, d.Wait(context.Background(), id))
	assert.Contains(t, d.FailedWorkList(), id)
}

func TestDispatcher_CancelBeforeStart(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 1})
	d.Pause()

	id, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{})
	require.NoError(t, err)

	require.NoError(t, d.Cancel(id))
	w, _ := d.Work(id)
	assert.Equal(t, work.StateCancelled, w.State())
}

func TestDispatcher_GroupWait(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 3})

	var count int32
	for i := 0; i < 3; i++ {
		_, err := d.Submit(func(ctx context.Context) (any, error) {
			count++
			return nil, nil
		}, work.Options{Group: "batch"})
		require.NoError(t, err)
	}

	members := d.GroupMembers("batch")
	require.Len(t, members, 3)
	for _, id := range members {
		require.NoError(t, d.Wait(context.Background(), id))
	}
}

func TestDispatcher_StopCancelsQueuedWork(t *testing.T) {
	d, err := New("stop-pool", config.PoolOptions{MaxThreads: 1}, events.NewBus())
	require.NoError(t, err)
	d.Pause()

	id, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	w, ok := d.Work(id)
	require.True(t, ok)
	assert.Equal(t, work.StateCancelled, w.State())
	assert.True(t, d.PoolStopping())
}

func TestDispatcher_WaitAllReturnsAfterSubmittedWorkCompletes(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 1})
	_, err := d.Submit(func(ctx context.Context) (any, error) { return nil, nil }, work.Options{})
	require.NoError(t, err)
	require.NoError(t, d.WaitAll(context.Background()))
}

func TestDispatcher_CancelReleasesDependents(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 2})
	d.Pause()

	prereqID, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{CustomWorkID: "prereq"})
	require.NoError(t, err)

	depID, err := d.Submit(func(ctx context.Context) (any, error) {
		return "ran", nil
	}, work.Options{Dependents: map[string]struct{}{prereqID: {}}})
	require.NoError(t, err)

	require.NoError(t, d.Cancel(prereqID))

	d.Resume()
	require.NoError(t, d.Wait(context.Background(), depID))

	w, _ := d.Work(depID)
	assert.Equal(t, work.StateSucceeded, w.State())
}

func TestDispatcher_StopReleasesQueuedWorkDependents(t *testing.T) {
	d, err := New("stop-deps-pool", config.PoolOptions{MaxThreads: 1}, events.NewBus())
	require.NoError(t, err)
	d.Pause()

	prereqID, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{CustomWorkID: "prereq"})
	require.NoError(t, err)

	depID, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, nil
	}, work.Options{Dependents: map[string]struct{}{prereqID: {}}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	dep, ok := d.Work(depID)
	require.True(t, ok)
	assert.Zero(t, dep.Outstanding())
}

func TestDispatcher_PoolTimeoutFiresOnceWhenNeverIdle(t *testing.T) {
	bus := events.NewBus()
	received := make(chan *events.Event, 4)
	bus.Subscribe(func(e *events.Event) {
		if e.Type == events.PoolTimeout {
			received <- e
		}
	})

	d, err := New("timeout-pool", config.PoolOptions{MaxThreads: 1, Timeout: 20 * time.Millisecond}, bus)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})

	block := make(chan struct{})
	_, err = d.Submit(func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}, work.Options{})
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("PoolTimeout never fired while the pool stayed busy")
	}

	close(block)

	select {
	case <-received:
		t.Fatal("PoolTimeout fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcher_StopDoesNotPublishPoolTimeout(t *testing.T) {
	bus := events.NewBus()
	received := make(chan *events.Event, 1)
	bus.Subscribe(func(e *events.Event) {
		if e.Type == events.PoolTimeout {
			received <- e
		}
	})

	d, err := New("graceful-stop-pool", config.PoolOptions{MaxThreads: 1}, bus)
	require.NoError(t, err)

	_, err = d.Submit(func(ctx context.Context) (any, error) { return nil, nil }, work.Options{})
	require.NoError(t, err)
	require.NoError(t, d.WaitAll(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	select {
	case <-received:
		t.Fatal("graceful Stop must not publish PoolTimeout")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcher_DependencyReleasePredicateWithholdsRelease(t *testing.T) {
	d, err := New("predicate-pool", config.PoolOptions{
		MaxThreads: 2,
		DependencyReleasePredicate: func(s work.State) bool {
			return s == work.StateSucceeded
		},
	}, events.NewBus())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})

	prereqID, err := d.Submit(func(ctx context.Context) (any, error) {
		return nil, assert.AnError
	}, work.Options{CustomWorkID: "prereq"})
	require.NoError(t, err)
	require.NoError(t, d.Wait(context.Background(), prereqID))

	depID, err := d.Submit(func(ctx context.Context) (any, error) {
		return "ran", nil
	}, work.Options{Dependents: map[string]struct{}{prereqID: {}}})
	require.NoError(t, err)

	dep, _ := d.Work(depID)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, dep.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, work.StateWaiting, dep.State())
}

func TestDispatcher_PauseWorkAndResumeWork(t *testing.T) {
	d := newTestDispatcher(t, config.PoolOptions{MaxThreads: 1})

	started := make(chan struct{})
	resumed := make(chan struct{})
	id, err := d.Submit(func(ctx context.Context) (any, error) {
		close(started)
		require.NoError(t, work.PauseIfRequested(ctx))
		close(resumed)
		return nil, nil
	}, work.Options{CustomWorkID: "pausable"})
	require.NoError(t, err)

	require.NoError(t, d.PauseWork(id))
	<-started

	select {
	case <-resumed:
		t.Fatal("work resumed before ResumeWork was called")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, d.ResumeWork(id))
	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("work never resumed")
	}
	require.NoError(t, d.Wait(context.Background(), id))
}
