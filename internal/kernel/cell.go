package kernel

import (
	"errors"
	"fmt"
	"sync"
	"weak"
)

// ErrCycle is returned when a cell's thunk reads itself, directly or
// transitively, within the same evaluation.
var ErrCycle = errors.New("kernel: dependency cycle detected")

// ErrScopeActive is returned by EnterScope when a scope is already open;
// scopes are non-reentrant.
var ErrScopeActive = errors.New("kernel: a tracked scope is already active")

// Thunk computes a cell's value. It may call Read on other cells of the
// same Kernel; doing so records a dependency edge.
type Thunk func() (any, error)

// Kernel owns the evaluation stack, the pending invalidation queue, and the
// current mode (static, or inside a tracked Scope). All of its exported
// methods that touch cell state — Read, Invalidate — must be called from
// the single designated main task; trigger callbacks must instead call
// InvalidateAsync, which is safe from any goroutine.
type Kernel struct {
	mu   sync.Mutex
	cond *sync.Cond

	stack []*Cell

	pending    []*Cell
	pendingSet map[*Cell]bool

	scope         *Scope
	staticWatched []*Cell
}

// NewKernel constructs an empty Kernel in static mode.
func NewKernel() *Kernel {
	k := &Kernel{pendingSet: make(map[*Cell]bool)}
	k.cond = sync.NewCond(&k.mu)
	return k
}

// Cell is a single reactive memoized computation: a thunk, an optional
// external Trigger, and the bookkeeping needed to invalidate it and its
// dependents. See package kernel's doc comment and spec §3 for the
// invariants a Cell maintains.
type Cell struct {
	k    *Kernel
	name string

	thunk   Thunk
	trigger Trigger

	everWatched bool // trigger has been armed at least once in its current watch epoch
	armed       bool

	has   bool
	value any
	err   error

	deps        map[*Cell]struct{}
	pendingDeps map[*Cell]struct{}

	dependents map[weak.Pointer[Cell]]struct{}
}

// NewCell creates a cell owned by k. trigger may be nil, equivalent to
// NoopTrigger{}.
func (k *Kernel) NewCell(name string, thunk Thunk, trigger Trigger) *Cell {
	if trigger == nil {
		trigger = NoopTrigger{}
	}
	return &Cell{
		k:          k,
		name:       name,
		thunk:      thunk,
		trigger:    trigger,
		dependents: make(map[weak.Pointer[Cell]]struct{}),
	}
}

// Name returns the cell's debug name.
func (c *Cell) Name() string { return c.name }

// IsEmpty reports whether the cell currently holds no memoized result.
func (c *Cell) IsEmpty() bool { return !c.has }

// Read returns the cell's memoized value, computing it first if empty.
// A stored error is re-raised on every read until the cell is invalidated.
func (c *Cell) Read() (any, error) {
	k := c.k
	if top := k.top(); top != nil {
		if top == c || k.onStack(c) {
			return nil, fmt.Errorf("%w: %s", ErrCycle, c.name)
		}
		top.addDependency(c)
	}
	if c.has {
		return c.value, c.err
	}
	return c.evaluate()
}

func (k *Kernel) top() *Cell {
	if len(k.stack) == 0 {
		return nil
	}
	return k.stack[len(k.stack)-1]
}

func (k *Kernel) onStack(c *Cell) bool {
	for _, s := range k.stack {
		if s == c {
			return true
		}
	}
	return false
}

func (c *Cell) addDependency(dep *Cell) {
	if c.pendingDeps == nil {
		c.pendingDeps = make(map[*Cell]struct{})
	}
	c.pendingDeps[dep] = struct{}{}
	dep.dependents[weak.Make(c)] = struct{}{}
}

func (c *Cell) evaluate() (any, error) {
	k := c.k
	k.stack = append(k.stack, c)
	c.pendingDeps = nil

	v, err := c.thunk()

	k.stack = k.stack[:len(k.stack)-1]

	c.deps = c.pendingDeps
	c.pendingDeps = nil
	c.value, c.err, c.has = v, err, true

	k.watchIfNeeded(c)
	if c.everWatched && !c.armed {
		c.arm()
	}

	if len(k.stack) == 0 {
		k.drainPending()
	}
	return v, err
}

func (c *Cell) arm() {
	if c.armed {
		return
	}
	if err := c.trigger.Arm(func() { c.k.InvalidateAsync(c) }); err == nil {
		c.armed = true
	}
}

func (c *Cell) disarm() {
	if !c.armed {
		return
	}
	c.trigger.Disarm()
	c.armed = false
}

// watchIfNeeded registers the cell with the current scope (or the static
// watch list) the first time it is evaluated after being created or
// invalidated; invalidation clears the registration, so a re-evaluated
// cell registers (and its trigger is armed) again.
func (k *Kernel) watchIfNeeded(c *Cell) {
	if c.everWatched {
		return
	}
	c.everWatched = true
	if k.scope != nil {
		k.scope.watched = append(k.scope.watched, c)
	} else {
		k.staticWatched = append(k.staticWatched, c)
	}
}

// Invalidate clears the cell's memoized result, disarms its trigger, and
// transitively invalidates every live dependent. If the kernel is mid
// evaluation (its stack is non-empty), the invalidation is deferred to the
// pending queue instead, to avoid observing torn state.
func (c *Cell) Invalidate() {
	k := c.k
	if len(k.stack) > 0 {
		k.enqueuePending(c)
		return
	}
	c.invalidateNow()
}

func (c *Cell) invalidateNow() {
	if !c.has {
		return
	}
	c.has = false
	c.value, c.err = nil, nil
	c.deps = nil
	c.disarm()
	c.everWatched = false

	deps := c.dependents
	c.dependents = make(map[weak.Pointer[Cell]]struct{})
	for wp := range deps {
		if dep := wp.Value(); dep != nil {
			dep.invalidateNow()
		}
	}
}

// InvalidateAsync enqueues c for invalidation and wakes the driver loop.
// Safe to call from any goroutine, including trigger callbacks.
func (k *Kernel) InvalidateAsync(c *Cell) {
	k.mu.Lock()
	k.enqueuePendingLocked(c)
	k.cond.Broadcast()
	k.mu.Unlock()
}

func (k *Kernel) enqueuePending(c *Cell) {
	k.mu.Lock()
	k.enqueuePendingLocked(c)
	k.mu.Unlock()
}

func (k *Kernel) enqueuePendingLocked(c *Cell) {
	if k.pendingSet[c] {
		return
	}
	k.pendingSet[c] = true
	k.pending = append(k.pending, c)
}

// DrainPending invalidates every cell on the pending queue. It is safe to
// call when the evaluation stack is empty; it is what Read calls
// automatically once the top-level read returns, and what the driver loop
// calls before each frame.
func (k *Kernel) DrainPending() {
	k.drainPending()
}

func (k *Kernel) drainPending() {
	k.mu.Lock()
	batch := k.pending
	k.pending = nil
	k.pendingSet = make(map[*Cell]bool)
	k.mu.Unlock()

	for _, c := range batch {
		c.invalidateNow()
	}
}

// Wait blocks until InvalidateAsync is called at least once since the last
// Wait, or until the pending queue is already non-empty.
func (k *Kernel) Wait() {
	k.mu.Lock()
	defer k.mu.Unlock()
	for len(k.pending) == 0 {
		k.cond.Wait()
	}
}
