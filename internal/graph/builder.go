package graph

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/aristath/buildscope/internal/records"
)

// DiagnosticKind classifies a non-fatal finding.
type DiagnosticKind string

const (
	// DiagDanglingEdge: a record depends on an id that is not in the store.
	DiagDanglingEdge DiagnosticKind = "dangling_edge"
	// DiagSelfLoop: a record lists itself as a dependency. The edge is kept.
	DiagSelfLoop DiagnosticKind = "self_loop"
	// DiagDuplicateRecord: the same record appears twice with identical content.
	DiagDuplicateRecord DiagnosticKind = "duplicate_record"
)

// Diagnostic is a data-quality finding attached to an otherwise usable graph.
type Diagnostic struct {
	Kind   DiagnosticKind `json:"kind"`
	NodeID string         `json:"node_id"`
	Ref    string         `json:"ref,omitempty"`
	Offset int64          `json:"offset"`
}

func (d Diagnostic) String() string {
	switch d.Kind {
	case DiagDanglingEdge:
		return fmt.Sprintf("task %q (offset %d) depends on unknown id %q", d.NodeID, d.Offset, d.Ref)
	case DiagSelfLoop:
		return fmt.Sprintf("task %q (offset %d) depends on itself", d.NodeID, d.Offset)
	case DiagDuplicateRecord:
		return fmt.Sprintf("task %q recorded twice with identical content (offset %d)", d.NodeID, d.Offset)
	}
	return fmt.Sprintf("%s: task %q (offset %d)", d.Kind, d.NodeID, d.Offset)
}

// Builder turns a record stream into a Graph in two passes: Add creates the
// nodes, Finish resolves dependency ids into edges.
type Builder struct {
	g       *Graph
	pending [][]string
	done    bool
}

// NewBuilder starts a graph for the named source.
func NewBuilder(source string) *Builder {
	return &Builder{g: newGraph(source)}
}

// Add creates the node for rec. A repeated id is a diagnostic when the content
// matches the first record and an ErrDuplicateID error otherwise.
func (b *Builder) Add(rec records.TaskRecord) error {
	if b.done {
		return fmt.Errorf("builder for %s already finished", b.g.source)
	}
	if i, exists := b.g.index[rec.ID]; exists {
		first := b.g.nodes[i]
		if first.TaskRecord.Equal(rec) {
			b.g.diags = append(b.g.diags, Diagnostic{Kind: DiagDuplicateRecord, NodeID: rec.ID, Offset: rec.Offset})
			return nil
		}
		return &GraphError{
			Kind:   ErrDuplicateID,
			NodeID: rec.ID,
			Offset: rec.Offset,
			Msg:    fmt.Sprintf("conflicts with record at offset %d in %s", first.Offset, b.g.source),
		}
	}
	b.g.addNode(rec)
	b.pending = append(b.pending, rec.Dependencies)
	return nil
}

// Finish resolves all dependency references and returns the graph.
func (b *Builder) Finish(ctx context.Context) (*Graph, error) {
	if b.done {
		return b.g, nil
	}
	for i, deps := range b.pending {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		b.g.resolve(i, deps)
	}
	b.g.sortAdjacency()
	b.pending = nil
	b.done = true
	return b.g, nil
}

// Build consumes a record sequence and returns the finished graph. Load
// errors from the sequence are returned unchanged.
func Build(ctx context.Context, source string, recs iter.Seq2[records.TaskRecord, error]) (*Graph, error) {
	b := NewBuilder(source)
	for rec, err := range recs {
		if err != nil {
			return nil, err
		}
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		if err := b.Add(rec); err != nil {
			return nil, err
		}
	}
	return b.Finish(ctx)
}

// AddRecord appends a record to a finished graph, resolving its dependencies
// and any earlier dangling references to its id. Cached analysis is dropped.
func (g *Graph) AddRecord(rec records.TaskRecord) error {
	if i, exists := g.index[rec.ID]; exists {
		if g.nodes[i].TaskRecord.Equal(rec) {
			g.diags = append(g.diags, Diagnostic{Kind: DiagDuplicateRecord, NodeID: rec.ID, Offset: rec.Offset})
			return nil
		}
		return &GraphError{Kind: ErrDuplicateID, NodeID: rec.ID, Offset: rec.Offset,
			Msg: fmt.Sprintf("conflicts with record at offset %d in %s", g.nodes[i].Offset, g.source)}
	}

	i := g.addNode(rec)
	g.resolve(i, rec.Dependencies)

	if waiting, ok := g.dangling[rec.ID]; ok {
		for _, from := range waiting {
			g.addEdge(from, i)
		}
		delete(g.dangling, rec.ID)
		g.diags = slices.DeleteFunc(g.diags, func(d Diagnostic) bool {
			return d.Kind == DiagDanglingEdge && d.Ref == rec.ID
		})
	}

	g.sortAdjacency()
	g.invalidate()
	return nil
}

func (g *Graph) addNode(rec records.TaskRecord) int {
	i := len(g.nodes)
	g.nodes = append(g.nodes, &Node{TaskRecord: rec, index: i})
	g.index[rec.ID] = i
	g.deps = append(g.deps, nil)
	g.dependents = append(g.dependents, nil)
	g.selfLoop = append(g.selfLoop, false)
	return i
}

// resolve turns the dependency ids of node i into edges or diagnostics.
func (g *Graph) resolve(i int, deps []string) {
	n := g.nodes[i]
	for _, depID := range deps {
		if depID == n.ID {
			g.diags = append(g.diags, Diagnostic{Kind: DiagSelfLoop, NodeID: n.ID, Ref: depID, Offset: n.Offset})
			g.addEdge(i, i)
			continue
		}
		j, ok := g.index[depID]
		if !ok {
			g.diags = append(g.diags, Diagnostic{Kind: DiagDanglingEdge, NodeID: n.ID, Ref: depID, Offset: n.Offset})
			g.dangling[depID] = append(g.dangling[depID], i)
			continue
		}
		g.addEdge(i, j)
	}
}

// addEdge records from -> to. Duplicates are removed by sortAdjacency.
func (g *Graph) addEdge(from, to int) {
	g.deps[from] = append(g.deps[from], to)
	g.dependents[to] = append(g.dependents[to], from)
	if from == to {
		g.selfLoop[from] = true
	}
}

// sortAdjacency orders every adjacency list by node id, drops duplicate edges
// and recounts them.
func (g *Graph) sortAdjacency() {
	g.edges = 0
	for i := range g.nodes {
		slices.SortFunc(g.deps[i], g.compareIndex)
		g.deps[i] = slices.Compact(g.deps[i])
		slices.SortFunc(g.dependents[i], g.compareIndex)
		g.dependents[i] = slices.Compact(g.dependents[i])
		g.edges += len(g.deps[i])
	}
}
