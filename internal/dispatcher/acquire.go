package dispatcher

import (
	"fmt"
	"sync/atomic"

	"github.com/arcflow-dev/powerpool/internal/logger"
	"github.com/arcflow-dev/powerpool/internal/work"
	"github.com/arcflow-dev/powerpool/internal/worker"
)

// dispatch assigns w to a worker per spec §4.3's acquisition order:
// reuse an idle worker, else create one under the thread cap, else
// balance onto the least-loaded alive worker. w must already have
// Outstanding() == 0.
func (d *Dispatcher) dispatch(w *work.Work) {
	wk := d.acquireWorker(w.Options.LongRunning)
	wk.Submit(w)
}

// acquireWorker implements the three-step selection. Long-running work
// is budgeted separately: MaxThreads bounds ordinary workers, and each
// long-running item above that temporarily grows the effective cap by
// one, matching PowerThreadPool's treatment of long-running thread
// requests as overflow rather than competing for the regular pool.
func (d *Dispatcher) acquireWorker(longRunning bool) *worker.Worker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if wk := d.reuseIdleLocked(); wk != nil {
		if longRunning {
			d.longRunning[wk.ID()] = struct{}{}
		}
		return wk
	}

	threadCap := d.opts.MaxThreads + len(d.longRunning)
	if threadCap <= 0 || len(d.workers) < threadCap {
		return d.spawnWorkerLocked(longRunning)
	}

	return d.leastLoadedLocked()
}

func (d *Dispatcher) reuseIdleLocked() *worker.Worker {
	for _, wk := range d.workers {
		if wk.State() == worker.StateIdle {
			return wk
		}
	}
	return nil
}

func (d *Dispatcher) leastLoadedLocked() *worker.Worker {
	var best *worker.Worker
	bestLen := -1
	for _, wk := range d.workers {
		if wk.State() == worker.StateToBeDisposed {
			continue
		}
		if l := wk.Len(); best == nil || l < bestLen {
			best, bestLen = wk, l
		}
	}
	if best != nil {
		return best
	}
	// Every worker is being disposed (shouldn't normally happen while
	// the pool is running); fall back to spawning one more.
	return d.spawnWorkerLocked(false)
}

// spawnWorker creates and starts a worker without holding d.mu; used at
// construction time for MinThreads.
func (d *Dispatcher) spawnWorker(longRunning bool) *worker.Worker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.spawnWorkerLocked(longRunning)
}

func (d *Dispatcher) spawnWorkerLocked(longRunning bool) *worker.Worker {
	id := fmt.Sprintf("%s-w%d", d.id, atomic.AddInt64(&d.nextWorkerID, 1))
	wk := worker.New(id, d.poolGate, d.opts, d.bus, worker.Callbacks{
		OnIdle:     d.onWorkerIdle,
		OnRequeue:  d.onRequeue,
		OnWorkDone: d.onWorkDone,
	})
	d.workers[id] = wk
	if longRunning {
		d.longRunning[id] = struct{}{}
	}
	wk.Run()
	return wk
}

// onWorkerIdle is invoked by a worker every time it finishes an item.
// The idle-sweep goroutine handles reclaiming workers beyond
// MinThreads that overstay KeepAliveTime, so this hook only logs.
func (d *Dispatcher) onWorkerIdle(workerID string) {
	logger.WithWorker(workerID).Debug().Msg("worker idle")
}

// onRequeue re-enters a RetryRequeue work item through the ordinary
// acquisition path instead of handing it back to the same worker.
func (d *Dispatcher) onRequeue(w *work.Work) {
	d.dispatch(w)
}

// onWorkDone fires once per terminal outcome (after the work's own
// callback and event have already been delivered, or from Cancel/Stop
// for a work that never started). It releases any dependents waiting
// on w and dispatches the ones that become eligible, and tracks w in
// the failed-work index for FailedWorkList.
//
// Release is unconditional unless opts.DependencyReleasePredicate is
// set, resolving spec §9's open question over whether a Failed
// prerequisite should still unblock its dependents: the default
// matches the source ("any terminal state releases"), and a caller
// wanting e.g. Succeeded-only release can supply a predicate.
func (d *Dispatcher) onWorkDone(w *work.Work) {
	d.mu.Lock()
	dependents := d.deps[w.ID]
	delete(d.deps, w.ID)

	if w.State() == work.StateFailed {
		d.failed[w.ID] = struct{}{}
	} else {
		delete(d.failed, w.ID)
	}

	var ready []*work.Work
	if d.opts.DependencyReleasePredicate == nil || d.opts.DependencyReleasePredicate(w.State()) {
		for _, depID := range dependents {
			dep, ok := d.works[depID]
			if !ok {
				continue
			}
			if dep.ReleasePrerequisite() {
				ready = append(ready, dep)
			}
		}
	}
	// A work cancelled before it ever started never set StartTime; skip
	// it instead of folding a bogus negative duration into the averages.
	if start := w.StartTime(); !start.IsZero() {
		d.timing.record(start.Sub(w.QueueTime()), w.EndTime().Sub(start))
	}
	d.mu.Unlock()

	for _, dep := range ready {
		d.dispatch(dep)
	}
}
