// Package dag provides the directed acyclic graph behind stage wiring.
// Edges carry the artifact binding that connects an upstream stage to a
// downstream one, so the same pair of stages may be linked more than once.
package dag

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/meshflow/pkg/core"
)

// Edge is a labeled dependency: To consumes an artifact produced by From.
type Edge struct {
	From  core.StageID
	To    core.StageID
	Label string
}

// Graph represents a directed acyclic graph of stages.
type Graph struct {
	// order keeps insertion order for deterministic traversal.
	order []core.StageID
	// edges maps a parent to its outgoing edges.
	edges   map[core.StageID][]Edge
	parents map[core.StageID][]core.StageID
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		edges:   make(map[core.StageID][]Edge),
		parents: make(map[core.StageID][]core.StageID),
	}
}

// AddNode adds a stage to the graph. Adding an existing stage is a no-op.
func (g *Graph) AddNode(id core.StageID) {
	if g.HasNode(id) {
		return
	}
	g.order = append(g.order, id)
	g.edges[id] = nil
	g.parents[id] = nil
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id core.StageID) bool {
	_, ok := g.edges[id]
	return ok
}

// AddEdge adds a labeled edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parent, child core.StageID, label string) error {
	if !g.HasNode(parent) {
		return fmt.Errorf("parent stage %q does not exist", parent)
	}
	if !g.HasNode(child) {
		return fmt.Errorf("child stage %q does not exist", child)
	}
	if parent == child {
		return fmt.Errorf("self-loop detected: %s", parent)
	}

	g.edges[parent] = append(g.edges[parent], Edge{From: parent, To: child, Label: label})
	if !slices.Contains(g.parents[child], parent) {
		g.parents[child] = append(g.parents[child], parent)
	}
	return nil
}

// Edges returns every edge, grouped by parent in insertion order.
func (g *Graph) Edges() []Edge {
	var all []Edge
	for _, id := range g.order {
		all = append(all, g.edges[id]...)
	}
	return all
}

// NodeCount returns the number of stages in the graph.
func (g *Graph) NodeCount() int {
	return len(g.order)
}

// EdgeCount returns the number of labeled edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, out := range g.edges {
		count += len(out)
	}
	return count
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []core.StageID) {
	visited := make(map[core.StageID]bool)
	recStack := make(map[core.StageID]bool)
	path := make(map[core.StageID]core.StageID)

	var cyclePath []core.StageID

	var dfs func(id core.StageID) bool
	dfs = func(id core.StageID) bool {
		visited[id] = true
		recStack[id] = true

		for _, e := range g.edges[id] {
			child := e.To
			if !visited[child] {
				path[child] = id
				if dfs(child) {
					return true
				}
			} else if recStack[child] {
				cyclePath = []core.StageID{child}
				for curr := id; curr != child; curr = path[curr] {
					cyclePath = append([]core.StageID{curr}, cyclePath...)
				}
				cyclePath = append([]core.StageID{child}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns stages with dependencies before dependents.
// Independent stages keep their insertion order.
func (g *Graph) TopologicalSort() ([]core.StageID, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[core.StageID]bool)
	result := make([]core.StageID, 0, len(g.order))

	var visit func(id core.StageID)
	visit = func(id core.StageID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parent := range g.parents[id] {
			visit(parent)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// GetUpstreamNodes returns every stage id transitively depends on, in
// insertion order.
func (g *Graph) GetUpstreamNodes(id core.StageID) []core.StageID {
	upstream := make(map[core.StageID]bool)

	var mark func(core.StageID)
	mark = func(n core.StageID) {
		for _, parent := range g.parents[n] {
			if !upstream[parent] {
				upstream[parent] = true
				mark(parent)
			}
		}
	}
	mark(id)

	var result []core.StageID
	for _, n := range g.order {
		if upstream[n] {
			result = append(result, n)
		}
	}
	return result
}

// Subgraph returns a new graph containing only the given stages and the
// edges between them.
func (g *Graph) Subgraph(ids []core.StageID) *Graph {
	sub := NewGraph()
	for _, id := range g.order {
		if slices.Contains(ids, id) {
			sub.AddNode(id)
		}
	}
	for _, e := range g.Edges() {
		if sub.HasNode(e.From) && sub.HasNode(e.To) {
			_ = sub.AddEdge(e.From, e.To, e.Label)
		}
	}
	return sub
}
