package resolver

import (
	"go.uber.org/zap"

	"github.com/phasekit/phaserun/pkg/domain"
)

// breakCycles repeatedly detects a cycle and removes its weakest edge until
// the graph is acyclic. Removal order is deterministic for identical input:
// traversal visits nodes and neighbors in sorted id order, and ties between
// candidate edges fall back to lexicographic (from, to) comparison.
func (r *Resolver) breakCycles(g *Graph) ([]Edge, error) {
	var removed []Edge
	// Each iteration removes one edge, so the loop is bounded by the edge
	// count.
	maxIterations := 1
	for _, node := range g.Nodes {
		maxIterations += len(node.Dependencies)
	}

	for i := 0; i < maxIterations; i++ {
		cycle := findCycle(g)
		if cycle == nil {
			return removed, nil
		}
		edge, ok := weakestEdge(g, cycle)
		if !ok {
			return removed, domain.Errorf(domain.ErrDependency,
				"cycle %v has no removable edge", cycle)
		}
		g.removeEdge(edge.From, edge.To)
		removed = append(removed, edge)
		r.logger.Warn("broke dependency cycle",
			zap.Strings("cycle", cycle),
			zap.String("removed_from", edge.From),
			zap.String("removed_to", edge.To))
	}
	return removed, domain.Errorf(domain.ErrDependency, "cycle breaking did not converge")
}

// findCycle runs an iterative depth-first traversal with an explicit stack
// and an on-path set. It returns the first cycle found as an id sequence
// (entry node first, without the closing repeat), or nil if the graph is
// acyclic. Traversal follows dependent edges, so the cycle reads in
// "must complete before" order.
func findCycle(g *Graph) []string {
	const (
		white = iota // unvisited
		gray         // on the current path
		black        // fully explored
	)
	color := make(map[string]int, len(g.Nodes))

	type frame struct {
		id    string
		edges []string
		next  int
	}

	for _, start := range g.sortedIDs() {
		if color[start] != white {
			continue
		}

		stack := []frame{{id: start, edges: sortedSet(g.Nodes[start].Dependents)}}
		color[start] = gray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next >= len(top.edges) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			next := top.edges[top.next]
			top.next++

			switch color[next] {
			case white:
				color[next] = gray
				stack = append(stack, frame{id: next, edges: sortedSet(g.Nodes[next].Dependents)})
			case gray:
				// Back edge: the cycle is the stack suffix starting at next.
				var cycle []string
				seen := false
				for _, f := range stack {
					if f.id == next {
						seen = true
					}
					if seen {
						cycle = append(cycle, f.id)
					}
				}
				return cycle
			}
		}
	}
	return nil
}

// weakestEdge picks the cycle edge whose removal minimizes
// |dependents(from)| + |dependencies(to)|. Task-to-task edges are preferred
// over edges touching a phase by halving their score.
func weakestEdge(g *Graph, cycle []string) (Edge, bool) {
	best := Edge{}
	bestScore := 0.0
	found := false

	for i := range cycle {
		from := cycle[i]
		to := cycle[(i+1)%len(cycle)]
		if !g.hasEdge(from, to) {
			continue
		}
		fromNode := g.Nodes[from]
		toNode := g.Nodes[to]

		score := float64(len(fromNode.Dependents) + len(toNode.Dependencies))
		if fromNode.Kind == NodeKindTask && toNode.Kind == NodeKindTask {
			score *= 0.5
		}

		candidate := Edge{From: from, To: to}
		if !found || score < bestScore ||
			(score == bestScore && lessEdge(candidate, best)) {
			best = candidate
			bestScore = score
			found = true
		}
	}
	return best, found
}

func lessEdge(a, b Edge) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	return a.To < b.To
}
