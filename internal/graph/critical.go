package graph

import (
	"context"
	"time"
)

// PathStep is one task on the critical path.
type PathStep struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Duration   time.Duration `json:"duration_ns"`
	Cumulative time.Duration `json:"cumulative_ns"`
}

// CriticalPath is the longest dependency chain of a build, ordered from the
// first task to run to the last.
type CriticalPath struct {
	Steps []PathStep `json:"steps"`
	// Length is the summed duration of Steps.
	Length time.Duration `json:"length_ns"`
	// Span is the wall-clock extent of the whole build: latest End minus
	// earliest Start over all tasks.
	Span time.Duration `json:"span_ns"`
}

// IDs returns the step ids in path order.
func (p *CriticalPath) IDs() []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.ID
	}
	return out
}

// CriticalPath computes, for every node, the longest chain of task durations
// ending at that node and returns the overall longest chain. Ties go to the
// lower node id. The result is cached and each node's CriticalPathLength is
// set. A cyclic graph yields ErrCyclicGraph.
func (g *Graph) CriticalPath(ctx context.Context) (*CriticalPath, error) {
	if g.critical != nil {
		return g.critical, nil
	}
	if len(g.nodes) == 0 {
		g.critical = &CriticalPath{}
		return g.critical, nil
	}

	order, err := g.order(ctx)
	if err != nil {
		return nil, err
	}

	longest := make([]time.Duration, len(g.nodes))
	pred := make([]int, len(g.nodes))
	for _, i := range order {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		// deps are sorted by id, so strict > keeps the lowest id on ties
		best, from := time.Duration(0), -1
		for _, d := range g.deps[i] {
			if from == -1 || longest[d] > best {
				best, from = longest[d], d
			}
		}
		longest[i] = best + g.nodes[i].Duration()
		pred[i] = from
	}

	end := -1
	for _, i := range g.sortedIndices() {
		if end == -1 || longest[i] > longest[end] {
			end = i
		}
	}

	var chain []int
	for i := end; i != -1; i = pred[i] {
		chain = append(chain, i)
	}

	path := &CriticalPath{Length: longest[end], Span: g.span()}
	var cum time.Duration
	for k := len(chain) - 1; k >= 0; k-- {
		n := g.nodes[chain[k]]
		cum += n.Duration()
		path.Steps = append(path.Steps, PathStep{ID: n.ID, Name: n.Name, Duration: n.Duration(), Cumulative: cum})
	}

	for i, n := range g.nodes {
		n.CriticalPathLength = longest[i]
	}
	g.critical = path
	return path, nil
}

func (g *Graph) span() time.Duration {
	if len(g.nodes) == 0 {
		return 0
	}
	first, last := g.nodes[0].Start, g.nodes[0].End
	for _, n := range g.nodes[1:] {
		first = min(first, n.Start)
		last = max(last, n.End)
	}
	return last - first
}
