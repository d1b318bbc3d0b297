// Package group implements the spec §4.4 group facade: a named view
// over every work submitted with a given Options.Group, letting a
// caller wait on or cancel the set without tracking individual ids by
// hand. Membership is resolved fresh from the pool each time a Group
// method is called, so two calls a moment apart can observe different
// membership if more work was submitted to the group in between — the
// facade is a lens over the pool's bookkeeping, not a separate registry.
package group

import (
	"context"
)

// Pool is the subset of *dispatcher.Dispatcher a Group needs. Defined
// here instead of imported directly so this package stays free of a
// dependency on dispatcher's internals beyond this narrow surface.
type Pool interface {
	GroupMembers(name string) []string
	Wait(ctx context.Context, id string) error
	Cancel(id string) error
}

// Group is a named view over a pool's work, scoped to one
// Options.Group value.
type Group struct {
	name string
	pool Pool
}

// New returns a Group bound to name on pool.
func New(pool Pool, name string) *Group {
	return &Group{name: name, pool: pool}
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Members returns the ids currently submitted under this group, in
// submission order, as of this call.
func (g *Group) Members() []string {
	return g.pool.GroupMembers(g.name)
}

// Wait blocks until every member submitted as of this call has reached
// a terminal state, or ctx is done. Work added to the group after Wait
// starts is not covered.
func (g *Group) Wait(ctx context.Context) error {
	for _, id := range g.Members() {
		if err := g.pool.Wait(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Cancel marks every not-yet-started member Cancelled, as of this call.
func (g *Group) Cancel() error {
	for _, id := range g.Members() {
		if err := g.pool.Cancel(id); err != nil {
			return err
		}
	}
	return nil
}
