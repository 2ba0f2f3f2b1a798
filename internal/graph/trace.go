package graph

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Direction selects which way a causality trace walks.
type Direction int

const (
	// Ancestors walks dependencies: everything the origin transitively waited on.
	Ancestors Direction = iota
	// Descendants walks dependents: everything that would re-run if the origin changed.
	Descendants
)

func (d Direction) String() string {
	switch d {
	case Ancestors:
		return "ancestors"
	case Descendants:
		return "descendants"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection accepts "ancestors"/"up" and "descendants"/"down".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ancestors", "up", "deps":
		return Ancestors, nil
	case "descendants", "down", "dependents":
		return Descendants, nil
	}
	return 0, fmt.Errorf("unknown trace direction %q", s)
}

// TraceStep is one node reached by a trace.
type TraceStep struct {
	Node *Node `json:"-"`
	// Depth is the number of edges from the origin, starting at 1.
	Depth int `json:"depth"`
	// Via is the id of the node this one was first reached from.
	Via string `json:"via"`
}

// Trace returns a breadth-first walk from the node with the given id. Each
// reachable node is yielded once, the origin never. Neighbours are visited in
// id order so repeated traces yield the same sequence.
//
// The sequence is lazy and finite. Iterating it again restarts the walk.
// Cancellation is reported as a final ErrCancelled error.
func (g *Graph) Trace(ctx context.Context, id string, dir Direction) (iter.Seq2[TraceStep, error], error) {
	origin, ok := g.index[id]
	if !ok {
		return nil, unknownNode(id)
	}
	adj := g.deps
	if dir == Descendants {
		adj = g.dependents
	}

	return func(yield func(TraceStep, error) bool) {
		visited := make([]bool, len(g.nodes))
		visited[origin] = true
		depth := make([]int, len(g.nodes))
		queue := []int{origin}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range adj[v] {
				if err := checkCancel(ctx); err != nil {
					yield(TraceStep{}, err)
					return
				}
				if visited[w] {
					continue
				}
				visited[w] = true
				depth[w] = depth[v] + 1
				queue = append(queue, w)
				if !yield(TraceStep{Node: g.nodes[w], Depth: depth[w], Via: g.nodes[v].ID}, nil) {
					return
				}
			}
		}
	}, nil
}
