// Package workers implements the task worker pool.
//
// The pool is a TaskRunner that dispatches task bodies to a fixed number of
// worker goroutines, decoupling the orchestrator's scheduling decisions from
// the goroutines that actually run task bodies. Each worker:
//   - Picks queued tasks off the shared job channel
//   - Executes them through the wrapped inner runner
//   - Reports the outcome back to the waiting orchestrator goroutine
//
// The health monitor samples worker occupancy on an interval, publishing the
// counts through the metrics collector and logging saturation.
package workers
