package resolver

import (
	"sort"

	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
)

// Resolver computes an executable plan from a project's dependency
// declarations. A single Resolver is safe to reuse across runs; each Resolve
// call builds a fresh graph.
type Resolver struct {
	logger *zap.Logger
}

// New creates a resolver.
func New(logger *zap.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolution is the output of a resolve pass. The graph it references is
// acyclic and transitively reduced.
type Resolution struct {
	Graph *Graph

	// Levels maps every node id to its topological level.
	Levels map[string]int

	// PhaseLevels groups phase ids by level in ascending order; ids within a
	// level are sorted. Levels are compacted, so index i holds the i-th
	// non-empty phase level.
	PhaseLevels [][]string

	// CriticalPath is the heaviest chain of dependent nodes, entry first.
	CriticalPath []string

	// RemovedEdges lists the cycle edges that had to be broken.
	RemovedEdges []Edge

	// RedundantEdges lists direct dependencies dropped by transitive
	// reduction.
	RedundantEdges []Edge
}

// MaxLevel returns the highest assigned node level, or -1 for an empty graph.
func (res *Resolution) MaxLevel() int {
	max := -1
	for _, level := range res.Levels {
		if level > max {
			max = level
		}
	}
	return max
}

// OnCriticalPath reports whether the given node id lies on the critical path.
func (res *Resolution) OnCriticalPath(id string) bool {
	node, ok := res.Graph.Nodes[id]
	return ok && node.OnCriticalPath
}

// Resolve validates the project, builds the dependency graph, breaks cycles,
// removes redundant transitive edges, assigns levels and computes the
// critical path.
func (r *Resolver) Resolve(project *domain.Project) (*Resolution, error) {
	if err := domain.ValidateProject(project); err != nil {
		return nil, err
	}

	g, err := build(project)
	if err != nil {
		return nil, err
	}

	removed, err := r.breakCycles(g)
	if err != nil {
		return nil, err
	}

	redundant := reduceTransitive(g)

	if err := assignLevels(g); err != nil {
		return nil, err
	}

	path := criticalPath(g)

	res := &Resolution{
		Graph:          g,
		Levels:         make(map[string]int, len(g.Nodes)),
		CriticalPath:   path,
		RemovedEdges:   removed,
		RedundantEdges: redundant,
	}
	for id, node := range g.Nodes {
		res.Levels[id] = node.Level
	}
	res.PhaseLevels = groupPhaseLevels(g)

	r.logger.Debug("dependency graph resolved",
		zap.String("project_id", project.ID),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("levels", len(res.PhaseLevels)),
		zap.Int("cycles_broken", len(removed)),
		zap.Int("redundant_edges", len(redundant)),
		zap.Strings("critical_path", path))

	return res, nil
}

// groupPhaseLevels buckets phase nodes by level and compacts away levels
// occupied only by markers and tasks.
func groupPhaseLevels(g *Graph) [][]string {
	byLevel := make(map[int][]string)
	for _, id := range g.sortedIDs() {
		node := g.Nodes[id]
		if node.Kind == NodeKindPhase {
			byLevel[node.Level] = append(byLevel[node.Level], id)
		}
	}

	levels := make([]int, 0, len(byLevel))
	for level := range byLevel {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	out := make([][]string, 0, len(levels))
	for _, level := range levels {
		out = append(out, byLevel[level])
	}
	return out
}
