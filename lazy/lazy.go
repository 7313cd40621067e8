// Package lazy provides the initialize-once primitives behind every
// self-patching site in the bridge: loader redirectors, dispatch
// redirectors, static initializers and export pairing.
package lazy

import (
	"sync"
	"sync/atomic"
)

// Cell holds either a not-yet-evaluated thunk or its resolved value.
// Get evaluates the thunk at most once; later calls return the memoized
// result, including a memoized error. A thunk must not call Get on its own
// cell.
type Cell[T any] struct {
	thunk func() (T, error)
	val   T
	err   error
	once  sync.Once
	done  atomic.Bool
}

// New creates an unresolved cell.
func New[T any](thunk func() (T, error)) *Cell[T] {
	return &Cell[T]{thunk: thunk}
}

// Of creates a cell that is already resolved to v.
func Of[T any](v T) *Cell[T] {
	c := &Cell[T]{val: v}
	c.once.Do(func() {})
	c.done.Store(true)
	return c
}

// Get resolves the cell.
func (c *Cell[T]) Get() (T, error) {
	c.once.Do(func() {
		defer c.done.Store(true)
		thunk := c.thunk
		c.thunk = nil
		if thunk != nil {
			c.val, c.err = thunk()
		}
	})
	return c.val, c.err
}

// Resolved reports whether Get has completed.
func (c *Cell[T]) Resolved() bool {
	return c.done.Load()
}

const (
	claimPending uint32 = iota
	claimRunning
	claimDone
)

// Claim guards a transition that must happen exactly once but may be
// re-entered while it is in progress. The first Run executes fn; any Run
// observed while fn is executing, or after it finished, returns at once
// without executing anything.
type Claim struct {
	state atomic.Uint32
}

// Run executes fn if the claim is still pending and reports whether it did.
func (c *Claim) Run(fn func() error) (bool, error) {
	if !c.state.CompareAndSwap(claimPending, claimRunning) {
		return false, nil
	}
	defer c.state.Store(claimDone)
	return true, fn()
}

// Running reports whether the guarded transition is in progress.
func (c *Claim) Running() bool {
	return c.state.Load() == claimRunning
}

// Done reports whether the guarded transition has completed.
func (c *Claim) Done() bool {
	return c.state.Load() == claimDone
}
