package workpool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/work"
)

func newTestPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	p, err := New(append([]Option{WithID("test"), WithMaxThreads(4)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return p
}

func TestPool_SubmitAndWait(t *testing.T) {
	p := newTestPool(t)

	id, err := p.Submit(func(ctx context.Context) (any, error) {
		return 7, nil
	})
	require.NoError(t, err)

	require.NoError(t, p.Wait(context.Background(), id))

	w, ok := p.Work(id)
	require.True(t, ok)
	assert.Equal(t, 7, w.Result())
}

func TestPool_SubmitWithPriorityAndGroup(t *testing.T) {
	p := newTestPool(t)

	_, err := p.Submit(func(ctx context.Context) (any, error) { return nil, nil },
		WithPriority(work.PriorityHighest), WithGroup("batch"))
	require.NoError(t, err)
	_, err = p.Submit(func(ctx context.Context) (any, error) { return nil, nil },
		WithGroup("batch"))
	require.NoError(t, err)

	grp := p.Group("batch")
	assert.Len(t, grp.Members(), 2)
	require.NoError(t, grp.Wait(context.Background()))
}

func TestPool_SubmitWithDependsOn(t *testing.T) {
	p := newTestPool(t)
	p.Pause()

	prereqID, err := p.Submit(func(ctx context.Context) (any, error) { return "first", nil })
	require.NoError(t, err)

	dependentID, err := p.Submit(func(ctx context.Context) (any, error) {
		return "second", nil
	}, WithDependsOn(prereqID))
	require.NoError(t, err)

	p.Resume()

	require.NoError(t, p.Wait(context.Background(), prereqID))
	require.NoError(t, p.Wait(context.Background(), dependentID))
}

func TestPool_SubmitWithRetry(t *testing.T) {
	p := newTestPool(t)

	attempts := 0
	id, err := p.Submit(func(ctx context.Context) (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not yet")
		}
		return "done", nil
	}, WithRetry(work.RetryOption{Max: 5, Strategy: work.RetryImmediate}))
	require.NoError(t, err)

	require.NoError(t, p.Wait(context.Background(), id))
	assert.Equal(t, 3, attempts)
}

func TestPool_SubscribeReceivesEvents(t *testing.T) {
	p := newTestPool(t)

	received := make(chan events.Type, 8)
	sub := p.Subscribe(func(e *events.Event) {
		received <- e.Type
	})
	defer p.Unsubscribe(sub)

	id, err := p.Submit(func(ctx context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background(), id))

	seen := map[events.Type]bool{}
	for i := 0; i < 2; i++ {
		select {
		case evType := <-received:
			seen[evType] = true
		case <-time.After(time.Second):
		}
	}
	assert.True(t, seen[events.WorkStart] || seen[events.WorkEnd])
}

func TestPool_WithMonitorExposesServer(t *testing.T) {
	p := newTestPool(t, WithMonitor(config.MonitorOptions{}))
	assert.NotNil(t, p.Monitor())
}

func TestPool_WithoutMonitorIsNil(t *testing.T) {
	p := newTestPool(t)
	assert.Nil(t, p.Monitor())
}

func TestPool_WithDependencyReleasePredicateWithholdsFailedRelease(t *testing.T) {
	p := newTestPool(t, WithDependencyReleasePredicate(func(s work.State) bool {
		return s == work.StateSucceeded
	}))

	prereqID, err := p.Submit(func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	}, WithCustomID("prereq"))
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background(), prereqID))

	depID, err := p.Submit(func(ctx context.Context) (any, error) {
		return "ran", nil
	}, WithDependsOn(prereqID))
	require.NoError(t, err)

	dep, _ := p.Work(depID)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, dep.Wait(ctx), context.DeadlineExceeded)
	assert.Equal(t, work.StateWaiting, dep.State())
}

func TestNew_RejectsInvalidThreadRange(t *testing.T) {
	_, err := New(WithMinThreads(10), WithMaxThreads(1))
	assert.Error(t, err)
}
