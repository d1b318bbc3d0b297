package dispatcher

import (
	"time"

	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/metrics"
	"github.com/arcflow-dev/powerpool/internal/worker"
)

const idleSweepInterval = 200 * time.Millisecond

// idleSweep periodically checks whether the pool has drained (no
// running workers and nothing queued on any worker; work still held on
// its prerequisites is not counted) and walks it through Running ->
// IdleChecked -> NotRunning (spec §4.3): the first empty tick moves
// Running to IdleChecked, and PoolIdle is published only when the next
// tick is still empty, not on the first empty tick. It also reclaims idle
// workers beyond MinThreads that have sat idle past KeepAliveTime.
func (d *Dispatcher) idleSweep() {
	defer d.idleWG.Done()
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.idleStop:
			return
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

func (d *Dispatcher) sweepOnce() {
	d.mu.Lock()
	idle, running, alive := d.workerCountsLocked()
	waiting := d.waitingCountLocked()
	metrics.SetWorkerCounts(idle, running, alive)
	metrics.SetWaitingWork(waiting)

	empty := running == 0 && waiting == 0
	if empty {
		// No worker is running and nothing is waiting: the condition
		// the pool-wide timeout guards against no longer holds.
		d.stopPoolTimerLocked()
	}

	switch d.state {
	case StateRunning:
		if empty {
			d.transitionLocked(StateIdleChecked)
		}
	case StateIdleChecked:
		if empty {
			d.transitionLocked(StateNotRunning)
			d.mu.Unlock()
			d.bus.Publish(events.New(events.PoolIdle, map[string]interface{}{"pool_id": d.id}))
			d.reclaimIdleWorkers()
			return
		}
		d.transitionLocked(StateRunning)
		d.startPoolTimerLocked()
	}

	d.mu.Unlock()
	d.reclaimIdleWorkers()
}

// workerCountsLocked requires d.mu held.
func (d *Dispatcher) workerCountsLocked() (idle, running, alive int) {
	for _, wk := range d.workers {
		alive++
		switch wk.State() {
		case worker.StateIdle:
			idle++
		case worker.StateRunning:
			running++
		}
	}
	return
}

// waitingCountLocked requires d.mu held.
func (d *Dispatcher) waitingCountLocked() int {
	n := 0
	for _, wk := range d.workers {
		n += wk.Len()
	}
	return n
}

// reclaimIdleWorkers disposes of idle workers beyond MinThreads that
// have exceeded KeepAliveTime, the way the teacher's worker pool scaled
// down between polling intervals.
func (d *Dispatcher) reclaimIdleWorkers() {
	if d.opts.KeepAliveTime <= 0 {
		return
	}

	d.mu.Lock()
	var candidates []*worker.Worker
	for _, wk := range d.workers {
		if wk.State() != worker.StateIdle {
			continue
		}
		if time.Since(wk.IdleSince()) < d.opts.KeepAliveTime {
			continue
		}
		candidates = append(candidates, wk)
	}

	keep := d.opts.MinThreads
	disposeCount := len(d.workers) - keep
	d.mu.Unlock()

	for _, wk := range candidates {
		if disposeCount <= 0 {
			return
		}
		d.mu.Lock()
		delete(d.workers, wk.ID())
		delete(d.longRunning, wk.ID())
		d.mu.Unlock()
		wk.Dispose()
		disposeCount--
	}
}
