package resolver

// reduceTransitive drops direct dependencies already implied transitively:
// when a node depends on both X and Y and X reaches Y through other
// dependency edges, the direct Y dependency adds no ordering and only costs
// synchronization. Returns the removed edges.
func reduceTransitive(g *Graph) []Edge {
	var removed []Edge

	for _, id := range g.sortedIDs() {
		node := g.Nodes[id]
		if len(node.Dependencies) < 2 {
			continue
		}
		direct := sortedSet(node.Dependencies)
		directSet := make(map[string]struct{}, len(direct))
		for _, d := range direct {
			directSet[d] = struct{}{}
		}

		for _, y := range direct {
			if reachableVia(g, directSet, y) {
				g.removeEdge(y, id)
				removed = append(removed, Edge{From: y, To: id})
			}
		}
	}
	return removed
}

// reachableVia reports whether target is reachable by walking dependency
// edges from any *other* member of the direct dependency set.
func reachableVia(g *Graph, direct map[string]struct{}, target string) bool {
	visited := make(map[string]struct{})
	var stack []string
	for start := range direct {
		if start != target {
			stack = append(stack, start)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}

		for dep := range g.Nodes[id].Dependencies {
			if dep == target {
				return true
			}
			if _, seen := visited[dep]; !seen {
				stack = append(stack, dep)
			}
		}
	}
	return false
}
