package resolver

import (
	"fmt"
	"sort"

	"github.com/phasekit/phaserun/pkg/domain"
)

// NodeKind distinguishes the three node flavors in the dependency graph.
type NodeKind string

const (
	NodeKindPhase  NodeKind = "phase"
	NodeKindTask   NodeKind = "task"
	NodeKindMarker NodeKind = "phase_marker"
)

// Node is an ephemeral graph-analysis entity. Dependency and dependent sets
// are kept symmetric by the graph's edge operations.
type Node struct {
	ID             string
	Kind           NodeKind
	PhaseID        string
	Weight         float64
	Dependencies   map[string]struct{}
	Dependents     map[string]struct{}
	Level          int
	OnCriticalPath bool
}

// Edge is a directed "must complete before" relation: From is the
// prerequisite, To the dependent.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph holds the nodes under analysis. Node iteration order is always the
// sorted id order so every pass over the graph is deterministic.
type Graph struct {
	Nodes map[string]*Node
}

// TaskNodeID returns the graph id of a task node. Task ids are only unique
// within their phase, so node ids are qualified by the phase id.
func TaskNodeID(phaseID, taskID string) string {
	return phaseID + "::" + taskID
}

// MarkerNodeID returns the graph id of a phase's synthetic start marker.
func MarkerNodeID(phaseID string) string {
	return phaseID + "::start"
}

func newGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

func (g *Graph) addNode(id string, kind NodeKind, phaseID string, weight float64) *Node {
	node := &Node{
		ID:           id,
		Kind:         kind,
		PhaseID:      phaseID,
		Weight:       weight,
		Dependencies: make(map[string]struct{}),
		Dependents:   make(map[string]struct{}),
	}
	g.Nodes[id] = node
	return node
}

// addEdge records that `to` depends on `from`.
func (g *Graph) addEdge(from, to string) {
	g.Nodes[to].Dependencies[from] = struct{}{}
	g.Nodes[from].Dependents[to] = struct{}{}
}

// removeEdge drops the dependency of `to` on `from`.
func (g *Graph) removeEdge(from, to string) {
	delete(g.Nodes[to].Dependencies, from)
	delete(g.Nodes[from].Dependents, to)
}

func (g *Graph) hasEdge(from, to string) bool {
	_, ok := g.Nodes[to].Dependencies[from]
	return ok
}

// sortedIDs returns every node id in lexicographic order.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// build adds one node per phase, one synthetic start marker per phase and
// one node per task, then wires the declared dependencies. It fails with a
// validation error on any reference to an unknown id.
func build(project *domain.Project) (*Graph, error) {
	g := newGraph()

	for i := range project.Phases {
		phase := &project.Phases[i]
		phaseWeight := phase.Complexity
		if phaseWeight <= 0 {
			phaseWeight = 1.0
		}
		g.addNode(phase.ID, NodeKindPhase, phase.ID, phaseWeight)
		g.addNode(MarkerNodeID(phase.ID), NodeKindMarker, phase.ID, 0)
		for j := range phase.Tasks {
			task := &phase.Tasks[j]
			g.addNode(TaskNodeID(phase.ID, task.ID), NodeKindTask, phase.ID, task.EffectiveWeight())
		}
	}

	for i := range project.Phases {
		phase := &project.Phases[i]

		for _, depID := range phase.Dependencies {
			if _, ok := g.Nodes[depID]; !ok {
				return nil, &domain.Error{
					Kind:    domain.ErrValidation,
					PhaseID: phase.ID,
					Msg:     fmt.Sprintf("dependency on unknown phase %q", depID),
				}
			}
			g.addEdge(depID, phase.ID)
		}

		// The marker keeps task-level execution behind the phase's entry.
		g.addEdge(phase.ID, MarkerNodeID(phase.ID))

		for j := range phase.Tasks {
			task := &phase.Tasks[j]
			nodeID := TaskNodeID(phase.ID, task.ID)
			g.addEdge(MarkerNodeID(phase.ID), nodeID)
			for _, depID := range task.Dependencies {
				depNodeID := TaskNodeID(phase.ID, depID)
				if _, ok := g.Nodes[depNodeID]; !ok {
					return nil, &domain.Error{
						Kind:    domain.ErrValidation,
						PhaseID: phase.ID,
						TaskID:  task.ID,
						Msg:     fmt.Sprintf("dependency on unknown task %q", depID),
					}
				}
				g.addEdge(depNodeID, nodeID)
			}
		}
	}

	return g, nil
}
