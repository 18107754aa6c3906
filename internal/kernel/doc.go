// Package kernel implements the reactive memoization kernel: a thread-safe
// dependency graph of cached computations ("cells") with automatic
// transitive invalidation. A cell records which other cells it read while
// computing its value; invalidating a cell transitively invalidates every
// cell that depends on it.
//
// A subset of cells carry a Trigger: an external invalidation source
// (filesystem events, signals, timers, futures) that is armed while the
// cell holds a computed value, and released when the cell is invalidated
// or its enclosing Scope ends. Garbage collection does not release a
// trigger: no finalizers are registered.
//
// All reads, writes, and invalidation bookkeeping are expected to happen on
// a single designated main task. External events arrive on other
// goroutines and must call Kernel.InvalidateAsync, which only ever enqueues
// work and signals the driver loop — it never touches cell state directly.
package kernel
