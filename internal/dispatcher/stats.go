package dispatcher

import (
	"time"

	"github.com/arcflow-dev/powerpool/internal/work"
)

// IdleWorkerCount returns the number of workers currently parked with
// an empty queue.
func (d *Dispatcher) IdleWorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	idle, _, _ := d.workerCountsLocked()
	return idle
}

// RunningWorkerCount returns the number of workers currently executing
// a work item.
func (d *Dispatcher) RunningWorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, running, _ := d.workerCountsLocked()
	return running
}

// AliveWorkerCount returns the number of workers the dispatcher holds.
// A worker reclaimed by the idle sweep is removed before it is disposed
// of, so it is not counted even if its goroutine has not exited yet.
func (d *Dispatcher) AliveWorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// LongRunningWorkerCount returns the number of workers that have been
// handed a long-running work item. A worker stays counted after that
// item finishes, until the idle sweep reclaims it.
func (d *Dispatcher) LongRunningWorkerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.longRunning)
}

// WaitingWorkCount returns the number of items queued across every
// worker, waiting to be dispatched.
func (d *Dispatcher) WaitingWorkCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitingCountLocked()
}

// WaitingWorkList returns the ids of every work item not yet in a
// terminal state.
func (d *Dispatcher) WaitingWorkList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for id, w := range d.works {
		if !w.State().IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// FailedWorkList returns the ids of every work item currently sitting
// in StateFailed (a failure that either exhausted its retries or never
// had any configured).
func (d *Dispatcher) FailedWorkList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.failed))
	for id := range d.failed {
		ids = append(ids, id)
	}
	return ids
}

// TotalQueueTime returns the cumulative time every completed work item
// spent waiting before it started executing.
func (d *Dispatcher) TotalQueueTime() time.Duration {
	queueTotal, _, _ := d.timing.snapshot()
	return queueTotal
}

// TotalExecuteTime returns the cumulative time spent actually executing
// completed work items.
func (d *Dispatcher) TotalExecuteTime() time.Duration {
	_, executeTotal, _ := d.timing.snapshot()
	return executeTotal
}

// TotalElapsedTime is the sum of TotalQueueTime and TotalExecuteTime.
func (d *Dispatcher) TotalElapsedTime() time.Duration {
	queueTotal, executeTotal, _ := d.timing.snapshot()
	return queueTotal + executeTotal
}

// AverageQueueTime returns TotalQueueTime divided by the number of
// completed work items, or 0 if none have completed yet.
func (d *Dispatcher) AverageQueueTime() time.Duration {
	queueTotal, _, n := d.timing.snapshot()
	return average(queueTotal, n)
}

// AverageExecuteTime returns TotalExecuteTime divided by the number of
// completed work items, or 0 if none have completed yet.
func (d *Dispatcher) AverageExecuteTime() time.Duration {
	_, executeTotal, n := d.timing.snapshot()
	return average(executeTotal, n)
}

// AverageElapsedTime returns TotalElapsedTime divided by the number of
// completed work items, or 0 if none have completed yet.
func (d *Dispatcher) AverageElapsedTime() time.Duration {
	queueTotal, executeTotal, n := d.timing.snapshot()
	return average(queueTotal+executeTotal, n)
}

// average guards the divide-by-zero open question (DESIGN.md): with no
// completed work yet, every average reports zero rather than NaN or an
// error.
func average(total time.Duration, n int64) time.Duration {
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}

// State returns the pool's current lifecycle stage.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Work returns the Work record for id, for callers that need direct
// access to its result, error, or state rather than going through Wait.
func (d *Dispatcher) Work(id string) (*work.Work, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.works[id]
	return w, ok
}

// GroupMembers returns the ids submitted under the given group name, in
// submission order, as of the call (spec §4.4: a snapshot, not a live
// view).
func (d *Dispatcher) GroupMembers(group string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	members := d.groups[group]
	out := make([]string, len(members))
	copy(out, members)
	return out
}
