// Package graph holds the in-memory dependency graph of one build run and the
// algorithms that run over it.
//
// Edges point from a dependent to its dependency: "A depends on B" is stored as
// A -> B. Nodes live in a slice and edges are slices of node indices, so mutual
// dependencies need no pointer cycles.
//
// A Graph is built once by a Builder and is then safe for concurrent reads as
// long as nobody calls AddRecord. Cached analysis results (cycles, critical
// path) are dropped whenever the graph changes.
package graph

import (
	"slices"
	"time"

	"github.com/aristath/buildscope/internal/records"
)

// Node is one task run plus fields derived by analysis.
type Node struct {
	records.TaskRecord

	// CriticalPathLength is the duration of the longest dependency chain ending
	// at this node, itself included. Valid only after CriticalPath has run.
	CriticalPathLength time.Duration
	// OnCycle is set by DetectCycles.
	OnCycle bool

	index int
}

// Edge is a resolved dependency: From waits for To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the dependency graph of one build run.
type Graph struct {
	source string

	nodes      []*Node
	index      map[string]int
	deps       [][]int // dependent -> dependencies, ordered by node id
	dependents [][]int // dependency -> dependents, ordered by node id
	selfLoop   []bool
	edges      int

	diags    []Diagnostic
	dangling map[string][]int // missing id -> nodes referencing it

	cycles   *cycleState
	critical *CriticalPath
}

func newGraph(source string) *Graph {
	return &Graph{
		source:   source,
		index:    make(map[string]int),
		dangling: make(map[string][]int),
	}
}

// Source identifies the build record the graph was built from.
func (g *Graph) Source() string { return g.source }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of resolved edges, self-loops included.
func (g *Graph) EdgeCount() int { return g.edges }

// Node returns a node by id. The returned node must not be modified.
func (g *Graph) Node(id string) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Nodes returns the nodes in the order their records were loaded.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Dependencies returns the ids the node waits on, sorted.
func (g *Graph) Dependencies(id string) ([]string, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, unknownNode(id)
	}
	return g.ids(g.deps[i]), nil
}

// Dependents returns the ids of nodes waiting on id, sorted.
func (g *Graph) Dependents(id string) ([]string, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, unknownNode(id)
	}
	return g.ids(g.dependents[i]), nil
}

// Edges returns every resolved edge ordered by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for _, i := range g.sortedIndices() {
		for _, j := range g.deps[i] {
			out = append(out, Edge{From: g.nodes[i].ID, To: g.nodes[j].ID})
		}
	}
	return out
}

// Diagnostics returns the non-fatal findings recorded while building the graph.
func (g *Graph) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(g.diags))
	copy(out, g.diags)
	return out
}

// ByName returns the ids of all nodes with the given task name, sorted.
func (g *Graph) ByName(name string) []string {
	var out []string
	for _, n := range g.nodes {
		if n.Name == name {
			out = append(out, n.ID)
		}
	}
	slices.SortFunc(out, CompareIDs)
	return out
}

func (g *Graph) ids(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.nodes[i].ID
	}
	return out
}

// sortedIndices returns node indices ordered by node id.
func (g *Graph) sortedIndices() []int {
	idx := make([]int, len(g.nodes))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, g.compareIndex)
	return idx
}

func (g *Graph) compareIndex(a, b int) int {
	return CompareIDs(g.nodes[a].ID, g.nodes[b].ID)
}

// invalidate drops cached analysis after a mutation.
func (g *Graph) invalidate() {
	if g.cycles != nil {
		for _, n := range g.nodes {
			n.OnCycle = false
		}
	}
	if g.critical != nil {
		for _, n := range g.nodes {
			n.CriticalPathLength = 0
		}
	}
	g.cycles = nil
	g.critical = nil
}
