package resolver

// criticalPath computes the longest path by accumulated node weight using
// dynamic programming over nodes in level order. Ties are broken
// lexicographically by id so the result is stable. The returned sequence
// runs from an entry node to the heaviest terminal node and every node on
// it gets its critical-path flag set.
func criticalPath(g *Graph) []string {
	if len(g.Nodes) == 0 {
		return nil
	}

	dist := make(map[string]float64, len(g.Nodes))
	pred := make(map[string]string, len(g.Nodes))

	for _, id := range levelOrder(g) {
		node := g.Nodes[id]
		best := 0.0
		bestPred := ""
		// Dependencies iterate in ascending id order, so on equal weight the
		// lexicographically smallest predecessor is kept.
		for _, depID := range sortedSet(node.Dependencies) {
			if d := dist[depID]; bestPred == "" || d > best {
				best, bestPred = d, depID
			}
		}
		dist[id] = best + node.Weight
		if bestPred != "" {
			pred[id] = bestPred
		}
	}

	// Terminal = zero dependents. Pick the heaviest; tie-break on id.
	end := ""
	for _, id := range g.sortedIDs() {
		if len(g.Nodes[id].Dependents) != 0 {
			continue
		}
		if end == "" || dist[id] > dist[end] || (dist[id] == dist[end] && id < end) {
			end = id
		}
	}
	if end == "" {
		return nil
	}

	var path []string
	for id := end; ; {
		path = append(path, id)
		prev, ok := pred[id]
		if !ok {
			break
		}
		id = prev
	}
	// Reverse into entry-to-terminal order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	for _, id := range path {
		g.Nodes[id].OnCriticalPath = true
	}
	return path
}
