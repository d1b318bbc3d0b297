package work

import (
	"context"
	"errors"
)

// ErrStopRequested is returned by StopIfRequested once a cooperative
// stop has been signaled, in place of the source's throw-to-exit
// WorkStopException (spec §9: exceptions for control flow are
// re-architected as a returned stop-result).
var ErrStopRequested = errors.New("work: stop requested")

type controlKey struct{}

// Control is the cooperative-cancellation handle a running Body
// observes via ctx. It consults the pool-wide pause gate and this
// work's own pause gate (for PauseIfRequested) and the work's
// should_stop flag (for CheckIfRequestedStop/StopIfRequested), per
// spec §4.2.
type Control struct {
	poolGate *Gate
	work     *Work
}

// NewControl builds the handle a worker attaches to a Body's ctx
// before invoking it.
func NewControl(poolGate *Gate, w *Work) *Control {
	return &Control{poolGate: poolGate, work: w}
}

// WithControl attaches c to ctx so the Body can retrieve it through
// PauseIfRequested/CheckIfRequestedStop/StopIfRequested.
func WithControl(ctx context.Context, c *Control) context.Context {
	return context.WithValue(ctx, controlKey{}, c)
}

func controlFrom(ctx context.Context) *Control {
	c, _ := ctx.Value(controlKey{}).(*Control)
	return c
}

// PauseIfRequested blocks first on the pool-wide pause gate, then on
// this work's own pause gate, returning once both are open or ctx is
// done. Called from outside a Body invoked without a Control (e.g. in
// a test harness), it returns nil immediately.
func PauseIfRequested(ctx context.Context) error {
	c := controlFrom(ctx)
	if c == nil {
		return nil
	}
	if err := c.poolGate.Wait(ctx); err != nil {
		return err
	}
	return c.work.pauseGate.Wait(ctx)
}

// CheckIfRequestedStop is a non-throwing observation of whether a
// cooperative stop has been requested for the running work.
func CheckIfRequestedStop(ctx context.Context) bool {
	c := controlFrom(ctx)
	if c == nil {
		return false
	}
	return c.work.ShouldStop()
}

// StopIfRequested returns ErrStopRequested once a cooperative stop has
// been signaled, for a Body that wants to exit at the next checkpoint
// instead of polling CheckIfRequestedStop and returning manually.
func StopIfRequested(ctx context.Context) error {
	if CheckIfRequestedStop(ctx) {
		return ErrStopRequested
	}
	return nil
}
