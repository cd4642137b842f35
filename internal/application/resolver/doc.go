// Package resolver turns phase and task dependency declarations into an
// executable plan: it builds the dependency graph, detects and
// deterministically breaks cycles, assigns topological levels, computes the
// critical path and removes redundant transitive edges.
//
// The graph is rebuilt fresh for every run and discarded after producing the
// resolution; nothing in this package is persisted.
package resolver
