package work

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Body is the user-supplied computation. It cooperates with cancellation
// by observing ctx and, where finer-grained control is needed, by calling
// this package's PauseIfRequested/CheckIfRequestedStop/StopIfRequested
// (control.go), which read the Control the worker attaches to ctx before
// invoking Body (see internal/worker/execute.go).
type Body func(ctx context.Context) (any, error)

// Callback is invoked exactly once per terminal execution of a Work.
type Callback func(w *Work)

// TimeoutOption bounds a single work's execution. When the timer
// elapses, ForceStop makes the worker stop waiting for the body at once
// and abandon its goroutine, which keeps running unobserved; without
// ForceStop the worker requests a cooperative stop and waits for the
// body to return. No goroutine is killed in either case.
type TimeoutOption struct {
	Duration  time.Duration
	ForceStop bool
}

// Options configures a single Work (spec §6).
type Options struct {
	Callback       Callback
	Priority       Priority
	ThreadPriority ThreadPriority
	Timeout        TimeoutOption
	Dependents     map[string]struct{}
	CustomWorkID   string
	Group          string
	LongRunning    bool
	Retry          RetryOption
}

// Work is the per-submission record (spec §3). All fields mutated after
// dispatch are guarded by mu; the owning worker is the only writer, but
// readers (Wait, group operations, the read-only state surface) may
// observe concurrently.
type Work struct {
	ID      string
	Body    Body
	Options Options

	mu           sync.Mutex
	state        State
	result       any
	execErr      error
	executeCount int
	queueTime    time.Time
	startTime    time.Time
	endTime      time.Time

	// outstanding counts the prerequisites this work is still waiting on;
	// it is decremented by the dispatcher's dependency index as each
	// prerequisite reaches a terminal state.
	outstanding int32

	shouldStop atomic.Bool
	waitGate   *Gate // open once a terminal state is reached
	pauseGate  *Gate // open unless this specific work has been paused
}

// New creates a Work in state Waiting, ready for submission.
func New(id string, body Body, opts Options) *Work {
	return &Work{
		ID:          id,
		Body:        body,
		Options:     opts,
		state:       StateWaiting,
		queueTime:   time.Now(),
		outstanding: int32(len(opts.Dependents)),
		waitGate:    NewGate(false),
		pauseGate:   NewGate(true),
	}
}

// State returns the current lifecycle state.
func (w *Work) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// ExecuteCount returns the number of execution attempts consumed so far.
func (w *Work) ExecuteCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.executeCount
}

// Outstanding reports how many prerequisites this work is still waiting
// on. A value of 0 means the work is eligible for dispatch.
func (w *Work) Outstanding() int {
	return int(atomic.LoadInt32(&w.outstanding))
}

// ReleasePrerequisite decrements the outstanding-dependency count and
// reports whether the work has become eligible for dispatch as a result.
func (w *Work) ReleasePrerequisite() (releasedNow bool) {
	return atomic.AddInt32(&w.outstanding, -1) == 0
}

// QueueTime, StartTime, EndTime return the recorded timestamps (zero
// value if not yet reached).
func (w *Work) QueueTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queueTime
}

func (w *Work) StartTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startTime
}

func (w *Work) EndTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endTime
}

// Result and Err return the outcome of the most recent execution.
func (w *Work) Result() any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

func (w *Work) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.execErr
}

// MarkDispatching records the Waiting->Running transition as the work
// leaves the priority collection and begins execution.
func (w *Work) MarkDispatching() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(StateRunning) {
		return ErrInvalidTransition
	}
	w.state = StateRunning
	w.startTime = time.Now()
	w.executeCount++
	w.shouldStop.Store(false)
	return nil
}

// Finish records a terminal (or requeue-bound Waiting) outcome. It does
// not itself open the wait gate: spec §5 requires the work's callback to
// happen-before WorkEnd delivery and before wait_gate release, so the
// caller invokes the callback and publishes WorkEnd first, then calls
// Release to open the gate.
func (w *Work) Finish(target State, result any, err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	w.state = target
	w.result = result
	w.execErr = err
	w.endTime = time.Now()
	return nil
}

// Release opens the wait gate. Called once a terminal Finish's callback
// and WorkEnd-family event have already been delivered.
func (w *Work) Release() {
	w.waitGate.Open()
}

// CancelBeforeStart transitions a never-started work directly to
// Cancelled, as spec §5 requires for cancellation before dispatch, and
// releases its waiters immediately (there is no callback/event ordering
// to preserve since it never started).
func (w *Work) CancelBeforeStart() error {
	if err := w.Finish(StateCancelled, nil, context.Canceled); err != nil {
		return err
	}
	w.Release()
	return nil
}

// RequestStop sets the cooperative stop flag observed by StopIfRequested
// and CheckIfRequestedStop.
func (w *Work) RequestStop() {
	w.shouldStop.Store(true)
}

// ShouldStop reports whether a cooperative stop has been requested for
// this work. CheckIfRequestedStop/StopIfRequested (control.go) expose
// it to the running Body via ctx.
func (w *Work) ShouldStop() bool {
	return w.shouldStop.Load()
}

// Pause closes this work's local pause gate; only the worker currently
// executing it, if inside PauseIfRequested, will park on it.
func (w *Work) Pause() {
	w.pauseGate.Close()
}

// Resume reopens this work's local pause gate.
func (w *Work) Resume() {
	w.pauseGate.Open()
}

// IsPausing reports whether this work's local pause gate is currently
// closed.
func (w *Work) IsPausing() bool {
	return !w.pauseGate.IsOpen()
}

// PauseGate exposes the per-work pause latch so the executing worker can
// select on it alongside the pool-wide gate.
func (w *Work) PauseGate() *Gate {
	return w.pauseGate
}

// Wait blocks until this work reaches a terminal state or ctx is done.
func (w *Work) Wait(ctx context.Context) error {
	return w.waitGate.Wait(ctx)
}

// ResetForRequeue prepares the work for another trip through the
// dispatcher: Waiting, with the previous result/err cleared but the
// execute count preserved (it is the retry attempt counter).
func (w *Work) ResetForRequeue() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.state.CanTransitionTo(StateWaiting) {
		return ErrInvalidTransition
	}
	w.state = StateWaiting
	w.result = nil
	w.execErr = nil
	w.queueTime = time.Now()
	w.waitGate.Close()
	return nil
}
