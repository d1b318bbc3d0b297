package dispatcher

import (
	"context"

	"github.com/arcflow-dev/powerpool/internal/work"
	"github.com/arcflow-dev/powerpool/internal/worker"
)

// Pause closes the pool-wide gate: every worker finishes its current
// item, then parks before pulling the next one, until Resume is called.
func (d *Dispatcher) Pause() {
	d.poolGate.Close()
}

// Resume reopens the pool-wide gate.
func (d *Dispatcher) Resume() {
	d.poolGate.Open()
}

// PoolRunning reports whether the pool is currently dispatching work.
func (d *Dispatcher) PoolRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == StateRunning
}

// PoolStopping reports whether Stop has been called.
func (d *Dispatcher) PoolStopping() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Stop halts the pool: it stops the pool timer and the idle sweep, then
// stops each worker (cancelling its context, which wakes a loop parked
// on the pool-wide pause gate, and waiting for any work it is executing
// to return) and cancels whatever was still queued on it. The pool-wide
// gate itself is left as it is, PoolOptions.ForceStop is not consulted,
// and ctx does not bound the wait; Stop returns ctx.Err() at the end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.stopPoolTimerLocked()
	workers := make([]string, 0, len(d.workers))
	for id := range d.workers {
		workers = append(workers, id)
	}
	d.mu.Unlock()

	d.idleOnce.Do(func() { close(d.idleStop) })
	d.idleWG.Wait()

	for _, id := range workers {
		d.mu.Lock()
		wk, ok := d.workers[id]
		d.mu.Unlock()
		if !ok {
			continue
		}
		// Stop cancels the worker's context, which wakes a loop parked
		// on the pool-wide pause gate and returns it before it ever
		// calls queue.Get() again, so draining after Stop returns sees
		// every item the loop itself will never touch.
		wk.Stop()
		d.cancelQueued(wk)
	}

	return ctx.Err()
}

// cancelQueued drains wk's private queue and marks every item
// Cancelled, since it will never be dispatched once the worker stops,
// releasing any dependents waiting on it the same way a terminal
// execution would.
func (d *Dispatcher) cancelQueued(wk *worker.Worker) {
	for _, item := range wk.Drain() {
		if err := item.CancelBeforeStart(); err == nil {
			d.onWorkDone(item)
		}
	}
}

// Wait blocks until the work identified by id reaches a terminal state.
func (d *Dispatcher) Wait(ctx context.Context, id string) error {
	d.mu.Lock()
	w, ok := d.works[id]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownWork
	}
	return w.Wait(ctx)
}

// WaitAll blocks until every work submitted so far has reached a
// terminal state, or ctx is done.
func (d *Dispatcher) WaitAll(ctx context.Context) error {
	d.mu.Lock()
	snapshot := make([]*work.Work, 0, len(d.works))
	for _, w := range d.works {
		snapshot = append(snapshot, w)
	}
	d.mu.Unlock()

	for _, w := range snapshot {
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Cancel marks a not-yet-started work Cancelled. It has no effect on
// work that has already begun executing; use the per-work timeout or
// RequestStop for that. Cancellation runs through the same
// dependent-release path a terminal execution does, so a work
// depending on the cancelled one is not left wedged forever.
func (d *Dispatcher) Cancel(id string) error {
	d.mu.Lock()
	w, ok := d.works[id]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownWork
	}
	if w.State() != work.StateWaiting {
		return nil
	}
	if err := w.CancelBeforeStart(); err != nil {
		return err
	}
	d.onWorkDone(w)
	return nil
}

// PauseWork closes the individual work's local pause gate. Only the
// worker currently executing it, if inside PauseIfRequested, parks on
// it; a work that is still waiting or has already finished is
// unaffected until it is next dispatched.
func (d *Dispatcher) PauseWork(id string) error {
	d.mu.Lock()
	w, ok := d.works[id]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownWork
	}
	w.Pause()
	return nil
}

// ResumeWork reopens the individual work's local pause gate. A no-op
// if the work was not paused.
func (d *Dispatcher) ResumeWork(id string) error {
	d.mu.Lock()
	w, ok := d.works[id]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownWork
	}
	w.Resume()
	return nil
}
