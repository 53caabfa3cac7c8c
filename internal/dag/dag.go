// Package dag provides directed graph operations for derived-function
// dependencies: cycle detection and dependency ordering.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Graph is a directed graph keyed by node name. An edge parent -> child means
// child depends on parent.
type Graph struct {
	nodes   map[string]struct{}
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]struct{}),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node; adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if _, exists := g.nodes[id]; exists {
		return
	}
	g.nodes[id] = struct{}{}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Self-loops are recorded so that HasCycle can report them.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// Parents returns the dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Children returns the dependents of a node.
func (g *Graph) Children(id string) []string {
	return g.edges[id]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasCycle returns true if the graph contains a cycle, along with one cycle
// path whose first and last elements are the same node.
func (g *Graph) HasCycle() (bool, []string) {
	cycles := g.Cycles()
	if len(cycles) == 0 {
		return false, nil
	}
	return true, cycles[0]
}

// Cycles returns one path per back edge found by a depth-first search in
// sorted node order. Each path starts and ends at the same node, e.g.
// [f1 f2 f1]. The result is deterministic.
func (g *Graph) Cycles() [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cycles [][]string

	var dfs func(id string)
	dfs = func(id string) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		children := slices.Clone(g.edges[id])
		sort.Strings(children)
		for _, childID := range children {
			if onStack[childID] {
				start := slices.Index(stack, childID)
				path := slices.Clone(stack[start:])
				cycles = append(cycles, append(path, childID))
				continue
			}
			if !visited[childID] {
				dfs(childID)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			dfs(id)
		}
	}
	return cycles
}

// TopologicalSort returns node names with dependencies before dependents.
// Ties are broken by name. Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		parents := slices.Clone(g.parents[id])
		sort.Strings(parents)
		for _, parentID := range parents {
			visit(parentID)
		}
		result = append(result, id)
	}

	for _, id := range g.sortedIDs() {
		visit(id)
	}
	return result, nil
}
