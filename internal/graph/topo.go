package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/gammazero/toposort"
)

// order returns node indices with every dependency before its dependents.
// The graph must be acyclic. Within one dependency depth nodes are ordered by
// id, so the result does not depend on load order.
func (g *Graph) order(ctx context.Context) ([]int, error) {
	if err := g.requireAcyclic(ctx); err != nil {
		return nil, err
	}

	// Edge (dep, node) means dep must come before node.
	var edges []toposort.Edge
	for _, i := range g.sortedIndices() {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		if len(g.deps[i]) == 0 {
			edges = append(edges, toposort.Edge{nil, i})
			continue
		}
		for _, d := range g.deps[i] {
			edges = append(edges, toposort.Edge{d, i})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &GraphError{Kind: ErrCyclicGraph, Offset: -1, Err: err}
	}

	order := make([]int, 0, len(g.nodes))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(int))
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("topological sort of %s lost %d tasks", g.source, len(g.nodes)-len(order))
	}

	// Longest distance from a root, computed over the library's order.
	depth := make([]int, len(g.nodes))
	for _, i := range order {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		for _, d := range g.deps[i] {
			depth[i] = max(depth[i], depth[d]+1)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if depth[a] != depth[b] {
			return depth[a] - depth[b]
		}
		return g.compareIndex(a, b)
	})
	return order, nil
}

// TopologicalOrder returns node ids with every dependency listed before the
// tasks that depend on it. It fails with ErrCyclicGraph on a cyclic graph.
func (g *Graph) TopologicalOrder(ctx context.Context) ([]string, error) {
	order, err := g.order(ctx)
	if err != nil {
		return nil, err
	}
	return g.ids(order), nil
}
