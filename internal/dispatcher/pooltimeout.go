package dispatcher

import (
	"time"

	"github.com/arcflow-dev/powerpool/internal/events"
	"github.com/arcflow-dev/powerpool/internal/work"
)

// startPoolTimerLocked arms the pool-wide timeout (spec §4.3: "start
// pool timeout" on the NotRunning/IdleChecked -> Running transition).
// Callers must hold d.mu. A zero Timeout disables it.
func (d *Dispatcher) startPoolTimerLocked() {
	if d.opts.Timeout <= 0 {
		return
	}
	d.poolTimer = time.AfterFunc(d.opts.Timeout, d.firePoolTimeout)
}

// stopPoolTimerLocked disarms the pool-wide timeout, called once the
// idle sweep observes the pool empty (no worker is left running and
// nothing is waiting, so the "no worker becomes free" condition the
// timer guards against no longer holds) or once Stop is called.
// Callers must hold d.mu.
func (d *Dispatcher) stopPoolTimerLocked() {
	if d.poolTimer != nil {
		d.poolTimer.Stop()
		d.poolTimer = nil
	}
}

// firePoolTimeout runs when Timeout elapses with the pool still
// Running. It publishes PoolTimeout exactly once and requests a
// cooperative stop on every work still executing, the closest
// equivalent to the source's forced-stop-per-ForceStop semantics
// available without a true OS-thread interrupt (see internal/worker's
// identical tradeoff for per-work ForceStop).
func (d *Dispatcher) firePoolTimeout() {
	d.mu.Lock()
	running := make([]*work.Work, 0, len(d.works))
	for _, w := range d.works {
		if w.State() == work.StateRunning {
			running = append(running, w)
		}
	}
	d.mu.Unlock()

	for _, w := range running {
		w.RequestStop()
	}

	d.bus.Publish(events.New(events.PoolTimeout, map[string]interface{}{"pool_id": d.id}))
}
