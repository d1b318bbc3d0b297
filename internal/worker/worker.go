// Package worker implements the per-goroutine executor described by
// spec §4.2. A Worker owns a private priority collection fed by the
// dispatcher, runs a single loop goroutine that pulls the
// highest-priority work and executes it, and reports back through the
// callbacks supplied at construction so the dispatcher can track
// idle/running counts and requeue retries.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/logger"
	"github.com/arcflow-dev/powerpool/internal/metrics"
	"github.com/arcflow-dev/powerpool/internal/priqueue"
	"github.com/arcflow-dev/powerpool/internal/work"
)

// State is a worker's lifecycle stage within the pool.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateToBeDisposed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateToBeDisposed:
		return "to_be_disposed"
	default:
		return "unknown"
	}
}

// Callbacks lets the dispatcher observe a worker's transitions without
// the worker importing the dispatcher package.
type Callbacks struct {
	// OnIdle fires every time the worker finishes a work item, so the
	// dispatcher can consider it for the next assignment or disposal.
	OnIdle func(workerID string)
	// OnRequeue fires for a work item whose retry strategy is
	// RetryRequeue: the dispatcher runs it through worker acquisition
	// again, onto whichever worker's private queue that selects, instead
	// of the worker retrying it directly.
	OnRequeue func(w *work.Work)
	// OnWorkDone fires once per terminal outcome, after the work's own
	// callback and WorkEnd-family event have been delivered, so the
	// dispatcher can release dependents and update its failed-work index
	// and timing totals. The dispatcher keeps the work in its registry
	// and group index afterwards.
	OnWorkDone func(w *work.Work)
}

// Worker is a single long-lived goroutine executing work pulled from
// its own queue, highest priority first.
type Worker struct {
	id       string
	queue    *priqueue.Collection[*work.Work]
	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	ctx      context.Context // cancelled by Stop, to wake a loop parked on poolGate
	cancel   context.CancelFunc
	poolGate *work.Gate // closed while the pool is paused

	defaults  config.PoolOptions
	callbacks Callbacks
	bus       *events.Bus

	mu         sync.Mutex
	state      State
	lastActive time.Time

	wg sync.WaitGroup
}

// New constructs a Worker in state Idle. poolGate is the pool-wide
// pause latch shared by every worker; it starts open unless the pool
// was constructed with StartSuspended.
func New(id string, poolGate *work.Gate, defaults config.PoolOptions, bus *events.Bus, cb Callbacks) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		id:         id,
		queue:      priqueue.New[*work.Work](priqueue.Queue),
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		poolGate:   poolGate,
		defaults:   defaults,
		callbacks:  cb,
		bus:        bus,
		state:      StateIdle,
		lastActive: time.Now(),
	}
}

// ID returns the worker's identifier.
func (wk *Worker) ID() string { return wk.id }

// State returns the worker's current lifecycle stage.
func (wk *Worker) State() State {
	wk.mu.Lock()
	defer wk.mu.Unlock()
	return wk.state
}

// IdleSince reports when this worker last finished a work item (or was
// created, if it has never run one).
func (wk *Worker) IdleSince() time.Time {
	wk.mu.Lock()
	defer wk.mu.Unlock()
	return wk.lastActive
}

// Len reports how many work items are queued on this worker.
func (wk *Worker) Len() int {
	return wk.queue.Len()
}

// Drain removes and returns every item currently queued on this worker,
// for a caller (the dispatcher, on Stop) that needs to dispose of them
// without running them.
func (wk *Worker) Drain() []*work.Work {
	var items []*work.Work
	for {
		item, ok := wk.queue.Get()
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

// Submit enqueues w on this worker's private collection and wakes the
// loop if it is parked waiting for work.
func (wk *Worker) Submit(w *work.Work) {
	wk.queue.Set(w, int(w.Options.Priority))
	wk.signal()
}

// Run starts the worker's loop goroutine. It returns immediately; the
// goroutine runs until Stop is called or Dispose takes effect on an
// empty queue.
func (wk *Worker) Run() {
	wk.wg.Add(1)
	go wk.loop()
}

// Stop signals the loop to exit once it next checks for shutdown and
// blocks until it has. Queued work is left in the queue untouched; the
// dispatcher drains and cancels it after Stop returns.
func (wk *Worker) Stop() {
	wk.stopOnce.Do(func() {
		wk.cancel()
		close(wk.stopCh)
	})
	wk.wg.Wait()
}

// Dispose marks the worker for teardown once its queue drains; the
// dispatcher uses this for the MinThreads/KeepAliveTime reclaim policy
// instead of interrupting work in flight.
func (wk *Worker) Dispose() {
	wk.mu.Lock()
	if wk.state == StateIdle {
		wk.state = StateToBeDisposed
	}
	wk.mu.Unlock()
	wk.signal()
}

func (wk *Worker) signal() {
	select {
	case wk.wake <- struct{}{}:
	default:
	}
}

func (wk *Worker) loop() {
	defer wk.wg.Done()
	log := logger.WithWorker(wk.id)
	log.Debug().Msg("worker loop started")

	for {
		select {
		case <-wk.stopCh:
			log.Debug().Msg("worker loop stopped")
			return
		default:
		}

		if err := wk.poolGate.Wait(wk.ctx); err != nil {
			return
		}

		item, ok := wk.queue.Get()
		if !ok {
			if wk.State() == StateToBeDisposed {
				log.Debug().Msg("worker disposed, queue empty")
				return
			}
			select {
			case <-wk.wake:
				continue
			case <-wk.stopCh:
				log.Debug().Msg("worker loop stopped")
				return
			}
		}

		wk.runOne(item, &log)
		if wk.callbacks.OnIdle != nil {
			wk.callbacks.OnIdle(wk.id)
		}
	}
}

// runOne drives one work item from dispatch through a terminal (or
// requeued) outcome, updating metrics and publishing events along the
// way.
func (wk *Worker) runOne(item *work.Work, log *zerolog.Logger) {
	wk.mu.Lock()
	wk.state = StateRunning
	wk.mu.Unlock()
	defer wk.markIdle()

	if err := item.MarkDispatching(); err != nil {
		log.Error().Err(err).Str("work_id", item.ID).Msg("cannot dispatch work")
		return
	}

	metrics.RecordQueueLatency(fmt.Sprintf("%d", item.Options.Priority), time.Since(item.QueueTime()).Seconds())
	wk.bus.Publish(events.New(events.WorkStart, map[string]interface{}{"id": item.ID, "worker_id": wk.id}))

	timeout := wk.resolveTimeout(item)
	result, execErr, timedOut := wk.execute(item, timeout)

	wk.finish(item, result, execErr, timedOut, log)
}

func (wk *Worker) markIdle() {
	wk.mu.Lock()
	if wk.state != StateToBeDisposed {
		wk.state = StateIdle
	}
	wk.lastActive = time.Now()
	wk.mu.Unlock()
}

func (wk *Worker) resolveTimeout(item *work.Work) work.TimeoutOption {
	if item.Options.Timeout.Duration > 0 {
		return item.Options.Timeout
	}
	return work.TimeoutOption{
		Duration:  wk.defaults.DefaultWorkTimeout,
		ForceStop: wk.defaults.DefaultWorkForceStop,
	}
}
