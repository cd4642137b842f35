package resolver

import (
	"sort"
	"strings"

	"github.com/phasekit/phaserun/pkg/domain"
)

// assignLevels runs Kahn-style topological processing: zero in-degree nodes
// sit at level 0 and every other node lands one past its highest-level
// prerequisite. Any node left with nonzero in-degree after the queue drains
// is reported as a dependency defect; after cycle breaking this should be
// unreachable.
func assignLevels(g *Graph) error {
	indegree := make(map[string]int, len(g.Nodes))
	queue := make([]string, 0, len(g.Nodes))

	for _, id := range g.sortedIDs() {
		indegree[id] = len(g.Nodes[id].Dependencies)
		if indegree[id] == 0 {
			g.Nodes[id].Level = 0
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		node := g.Nodes[id]

		for _, depID := range sortedSet(node.Dependents) {
			dependent := g.Nodes[depID]
			if node.Level+1 > dependent.Level {
				dependent.Level = node.Level + 1
			}
			indegree[depID]--
			if indegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	if processed != len(g.Nodes) {
		var stuck []string
		for _, id := range g.sortedIDs() {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return domain.Errorf(domain.ErrDependency,
			"unresolved dependencies after leveling: %s", strings.Join(stuck, ", "))
	}
	return nil
}

// levelOrder returns every node id ordered by (level asc, id asc).
func levelOrder(g *Graph) []string {
	ids := g.sortedIDs()
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := g.Nodes[ids[i]], g.Nodes[ids[j]]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		return a.ID < b.ID
	})
	return ids
}
