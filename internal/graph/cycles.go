package graph

import (
	"context"
	"slices"
)

// Cycle is a set of nodes that all reach each other through dependency edges:
// a strongly connected component with more than one node, or a single node
// with a self-loop. Nodes are sorted by id.
type Cycle struct {
	Nodes []string `json:"nodes"`
}

type cycleState struct {
	cycles []Cycle
}

// Node colours for the depth-first walk.
const (
	white uint8 = iota // not visited
	gray               // visited, still on the component stack
	black              // finished and assigned to a component
)

// DetectCycles finds every dependency cycle and sets OnCycle on each node that
// lies on one. The result is cached until the graph changes.
//
// The walk is an iterative depth-first search, so it is not limited by
// goroutine stack depth. Tarjan's low-link bookkeeping on top of the
// white/gray/black colouring makes OnCycle exact: a node is marked if and only
// if it lies on some directed cycle, including ones closed through cross edges.
func (g *Graph) DetectCycles(ctx context.Context) ([]Cycle, error) {
	if g.cycles != nil {
		return g.cycles.cycles, nil
	}

	n := len(g.nodes)
	var (
		color   = make([]uint8, n)
		order   = make([]int, n) // discovery index
		low     = make([]int, n)
		stack   []int
		counter int
		cycles  []Cycle
		onCycle = make([]bool, n)
	)

	type frame struct {
		v    int
		next int // next dependency of v to examine
	}

	for _, root := range g.sortedIndices() {
		if color[root] != white {
			continue
		}

		order[root], low[root] = counter, counter
		counter++
		color[root] = gray
		stack = append(stack, root)
		calls := []frame{{v: root}}

		for len(calls) > 0 {
			if err := checkCancel(ctx); err != nil {
				return nil, err
			}

			top := &calls[len(calls)-1]
			v := top.v
			if top.next < len(g.deps[v]) {
				w := g.deps[v][top.next]
				top.next++
				switch color[w] {
				case white:
					order[w], low[w] = counter, counter
					counter++
					color[w] = gray
					stack = append(stack, w)
					calls = append(calls, frame{v: w})
				case gray:
					// back edge (or edge inside the current component)
					low[v] = min(low[v], order[w])
				}
				continue
			}

			calls = calls[:len(calls)-1]
			if len(calls) > 0 {
				parent := calls[len(calls)-1].v
				low[parent] = min(low[parent], low[v])
			}
			if low[v] != order[v] {
				continue
			}

			// v is the root of a component: pop it off the stack
			var members []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				color[w] = black
				members = append(members, w)
				if w == v {
					break
				}
			}
			if len(members) > 1 || g.selfLoop[v] {
				cycles = append(cycles, g.newCycle(members, onCycle))
			}
		}
	}

	for i, node := range g.nodes {
		node.OnCycle = onCycle[i]
	}
	slices.SortFunc(cycles, func(a, b Cycle) int {
		return CompareIDs(a.Nodes[0], b.Nodes[0])
	})
	g.cycles = &cycleState{cycles: cycles}
	return cycles, nil
}

func (g *Graph) newCycle(members []int, onCycle []bool) Cycle {
	ids := make([]string, len(members))
	for k, m := range members {
		onCycle[m] = true
		ids[k] = g.nodes[m].ID
	}
	slices.SortFunc(ids, CompareIDs)
	return Cycle{Nodes: ids}
}

// CyclesKnown reports whether cycle detection has run since the last change,
// and if so whether the graph is cyclic.
func (g *Graph) CyclesKnown() (known, cyclic bool) {
	if g.cycles == nil {
		return false, false
	}
	return true, len(g.cycles.cycles) > 0
}

// requireAcyclic runs (or reuses) cycle detection and fails on the first cycle.
func (g *Graph) requireAcyclic(ctx context.Context) error {
	cycles, err := g.DetectCycles(ctx)
	if err != nil {
		return err
	}
	if len(cycles) > 0 {
		return cycleError(cycles[0])
	}
	return nil
}
