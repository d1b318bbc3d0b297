// Package dispatcher implements the pool core described by spec §4.3:
// it owns the set of worker goroutines, assigns submitted work to them
// under the worker-acquisition algorithm, tracks cross-work
// dependencies and groups, and exposes the pool's lifecycle (pause,
// resume, stop, wait) and read-only state surface. Where the teacher's
// worker.Pool balanced a fixed goroutine count against a Redis-backed
// stream, Dispatcher balances a MinThreads/MaxThreads range of private
// per-worker queues fed directly from Submit.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcflow-dev/powerpool/internal/config"
	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/metrics"
	"github.com/arcflow-dev/powerpool/internal/work"
	"github.com/arcflow-dev/powerpool/internal/worker"
)

var (
	ErrInvalidThreadRange = errors.New("dispatcher: MinThreads must be <= MaxThreads")
	ErrUnknownWork        = errors.New("dispatcher: unknown work id")
	ErrDuplicateWorkID    = errors.New("dispatcher: work id already in use")
	ErrPoolStopped        = errors.New("dispatcher: pool has been stopped")
)

// Dispatcher is the pool core (spec §3 Pool). The zero value is not
// usable; construct with New.
type Dispatcher struct {
	id   string
	opts config.PoolOptions
	bus  *events.Bus

	mu        sync.Mutex
	state     State
	stopped   bool
	poolGate  *work.Gate
	poolTimer *time.Timer // pool-wide timeout (spec §4.3), armed while Running

	workers      map[string]*worker.Worker
	nextWorkerID int64
	longRunning  map[string]struct{} // worker IDs handed a long-running item, until reclaimed

	works  map[string]*work.Work   // every work this pool has ever accepted, by id
	groups map[string][]string     // group name -> member ids, submission order
	deps   map[string][]string     // prerequisite id -> dependent ids still waiting on it
	failed map[string]struct{}     // ids currently in StateFailed (terminal, pre-requeue)

	timing timingTotals

	idleStop chan struct{}
	idleOnce sync.Once
	idleWG   sync.WaitGroup
}

// timingTotals accumulates the read-only duration averages (spec §6).
type timingTotals struct {
	mu            sync.Mutex
	queueTotal    time.Duration
	executeTotal  time.Duration
	completed     int64
}

func (t *timingTotals) record(queue, execute time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queueTotal += queue
	t.executeTotal += execute
	t.completed++
}

func (t *timingTotals) snapshot() (queueTotal, executeTotal time.Duration, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queueTotal, t.executeTotal, t.completed
}

// New constructs a Dispatcher with the given pool-wide options. The pool
// starts in StateNotRunning and transitions to Running on the first
// Submit. If opts.StartSuspended is set, the shared pause gate starts
// closed so no worker dequeues anything until Resume is called.
func New(id string, opts config.PoolOptions, bus *events.Bus) (*Dispatcher, error) {
	if opts.MinThreads > opts.MaxThreads {
		return nil, ErrInvalidThreadRange
	}

	d := &Dispatcher{
		id:       id,
		opts:     opts,
		bus:      bus,
		poolGate: work.NewGate(!opts.StartSuspended),
		workers:  make(map[string]*worker.Worker),
		longRunning: make(map[string]struct{}),
		works:    make(map[string]*work.Work),
		groups:   make(map[string][]string),
		deps:     make(map[string][]string),
		failed:   make(map[string]struct{}),
		idleStop: make(chan struct{}),
	}

	for i := 0; i < opts.MinThreads; i++ {
		d.spawnWorker(false)
	}

	d.idleWG.Add(1)
	go d.idleSweep()

	return d, nil
}

// Submit accepts a new Work for eventual execution (spec §4.3). It
// returns the work's id, generating a uuid when opts.CustomWorkID is
// empty. Submission fails only if the id is already in use or the pool
// has been stopped.
func (d *Dispatcher) Submit(body work.Body, opts work.Options) (string, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return "", ErrPoolStopped
	}

	id := opts.CustomWorkID
	if id == "" {
		id = uuid.New().String()
	}
	if _, exists := d.works[id]; exists {
		d.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateWorkID, id)
	}

	w := work.New(id, body, opts)
	d.works[id] = w

	if opts.Group != "" {
		d.groups[opts.Group] = append(d.groups[opts.Group], id)
	}

	d.registerDependents(w, opts.Dependents)

	starting := d.state == StateNotRunning || d.state == StateIdleChecked
	if starting {
		d.transitionLocked(StateRunning)
		d.startPoolTimerLocked()
	}
	d.mu.Unlock()

	if starting {
		d.bus.Publish(events.New(events.PoolStart, map[string]interface{}{"pool_id": d.id}))
	}

	metrics.RecordWorkSubmission(opts.Group)

	if w.Outstanding() == 0 {
		d.dispatch(w)
	}

	return id, nil
}

// registerDependents corrects work.New's naive outstanding count (which
// assumes every listed dependent is still pending) against dependents
// that are unknown to this pool or have already reached a terminal
// state (the latter only when DependencyReleasePredicate, if set,
// accepts that state, as in onWorkDone), and indexes w against each
// still-pending prerequisite so onWorkDone can find it later.
func (d *Dispatcher) registerDependents(w *work.Work, dependents map[string]struct{}) {
	for prereqID := range dependents {
		prereq, known := d.works[prereqID]
		if !known {
			w.ReleasePrerequisite()
			continue
		}
		if st := prereq.State(); st.IsTerminal() {
			if d.opts.DependencyReleasePredicate == nil || d.opts.DependencyReleasePredicate(st) {
				w.ReleasePrerequisite()
			}
			continue
		}
		d.deps[prereqID] = append(d.deps[prereqID], w.ID)
	}
}

// transitionLocked changes pool state and publishes the state gauge.
// Callers must hold d.mu.
func (d *Dispatcher) transitionLocked(s State) {
	d.state = s
	metrics.SetPoolState(int(s))
}
