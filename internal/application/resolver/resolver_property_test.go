package resolver

import (
	"fmt"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/phasekit/phaserun/pkg/domain"
)

// genProject produces projects with arbitrary phase dependency sets,
// including deliberately cyclic and self-referential ones.
func genProject(t *rapid.T) *domain.Project {
	phaseCount := rapid.IntRange(1, 12).Draw(t, "phase_count")

	ids := make([]string, phaseCount)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%02d", i)
	}

	project := &domain.Project{ID: "prop", Name: "generated"}
	for i, id := range ids {
		depCount := rapid.IntRange(0, phaseCount).Draw(t, fmt.Sprintf("deps_%d", i))
		seen := map[string]struct{}{}
		var deps []string
		for d := 0; d < depCount; d++ {
			dep := rapid.SampledFrom(ids).Draw(t, fmt.Sprintf("dep_%d_%d", i, d))
			if _, dup := seen[dep]; dup || dep == id {
				continue
			}
			seen[dep] = struct{}{}
			deps = append(deps, dep)
		}
		project.Phases = append(project.Phases, domain.Phase{
			ID:           id,
			Name:         "phase " + id,
			Dependencies: deps,
		})
	}
	return project
}

func TestResolveAlwaysAcyclic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		project := genProject(t)

		res, err := New(zap.NewNop()).Resolve(project)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}

		if cycle := findCycle(res.Graph); cycle != nil {
			t.Fatalf("resolved graph still has cycle: %v", cycle)
		}

		// Every surviving edge respects the leveling invariant.
		for id, node := range res.Graph.Nodes {
			for dep := range node.Dependencies {
				if node.Level <= res.Graph.Nodes[dep].Level {
					t.Fatalf("level(%s)=%d not above level(%s)=%d",
						id, node.Level, dep, res.Graph.Nodes[dep].Level)
				}
			}
		}

		// Every node got a level.
		if len(res.Levels) != len(res.Graph.Nodes) {
			t.Fatalf("levels cover %d of %d nodes", len(res.Levels), len(res.Graph.Nodes))
		}
	})
}
