package work

import (
	"context"
	"sync"
)

// Gate is a manual-reset latch: Open lets every current and future Wait
// through, Close blocks every subsequent Wait until the next Open. It
// mirrors the close-then-replace-channel idiom the dispatcher uses for
// its pause/resume signal, promoted to a reusable primitive because both
// the pool-wide pause gate and each work's wait/pause gate need it.
type Gate struct {
	mu   sync.Mutex
	ch   chan struct{}
	open bool
}

// NewGate returns a Gate in the given initial state.
func NewGate(open bool) *Gate {
	g := &Gate{ch: make(chan struct{})}
	if open {
		close(g.ch)
		g.open = true
	}
	return g
}

// Open releases every blocked and future Wait call until Close is called
// again.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		close(g.ch)
		g.open = true
	}
}

// Close re-arms the gate, blocking subsequent Wait calls.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.ch = make(chan struct{})
		g.open = false
	}
}

// IsOpen reports the gate's current state.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// chanSnapshot returns the channel to select on; it is re-read after each
// wakeup in case Close/Open raced in between.
func (g *Gate) chanSnapshot() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}

// Wait blocks until the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		ch := g.chanSnapshot()
		select {
		case <-ch:
			if g.IsOpen() {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
