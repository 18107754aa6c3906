// Package trigger provides the external invalidation sources the reactive
// kernel can arm: a path-pattern filesystem watcher sharing one fsnotify
// observer per root directory, a chained OS signal listener, and a
// worker-pool-backed polling trigger that fires when a new result differs
// from the last one. Each implements kernel.Trigger.
package trigger
