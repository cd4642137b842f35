// Package orchestrator drives phase and task execution over a resolved
// dependency graph.
//
// The orchestrator coordinates a run by:
//   - Resolving the project into execution levels and a critical path
//   - Scheduling phases per the configured mode (sequential, parallel,
//     adaptive, checkpoint)
//   - Bounding concurrency with separate phase and task pools
//   - Applying per-phase timeouts and retry with exponential backoff
//   - Publishing typed lifecycle events to registered handlers and the bus
//
// Orchestration state is mutated exclusively by the goroutine running
// Execute; phase and task goroutines report outcomes back over channels and
// event handlers only ever see read-only snapshots.
package orchestrator
