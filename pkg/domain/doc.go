// Package domain defines the data model shared by the resolver, the
// orchestrator and the checkpoint subsystem: projects, phases, tasks,
// execution state, results, checkpoints and the event/error taxonomy.
//
// Phases and tasks are produced by an external planner and are immutable
// during a run except for their status, which is owned by the orchestrator.
package domain
