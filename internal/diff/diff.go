// Package diff compares two build graphs task by task.
//
// Tasks are aligned by name, since ids are assigned per run. When a name
// occurs several times in one build, occurrences are paired in id order and
// the name is reported in Result.Ambiguous so callers can treat those pairings
// with care.
package diff

import (
	"context"
	"slices"
	"time"

	"github.com/aristath/buildscope/internal/graph"
)

// DefaultTolerance is used when Options.DurationTolerance is negative.
const DefaultTolerance = 50 * time.Millisecond

// Field names reported in NodeChange.Fields.
const (
	FieldStatus   = "status"
	FieldDuration = "duration"
	FieldInputs   = "inputs"
	FieldOutputs  = "outputs"
)

// Options tunes the comparison.
type Options struct {
	// DurationTolerance is the largest duration difference that still counts
	// as unchanged. Zero means exact; negative selects DefaultTolerance.
	DurationTolerance time.Duration
}

// Entry identifies a task present in only one of the builds.
type Entry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// NodeChange describes a task present in both builds whose run differs.
type NodeChange struct {
	Name          string        `json:"name"`
	BaselineID    string        `json:"baseline_id"`
	CurrentID     string        `json:"current_id"`
	Fields        []string      `json:"fields"`
	DurationDelta time.Duration `json:"duration_delta_ns"`
}

// Result classifies every task of both builds. Added, Removed and Changed are
// disjoint and sorted by name, then id.
type Result struct {
	Baseline  string       `json:"baseline"`
	Current   string       `json:"current"`
	Added     []Entry      `json:"added"`
	Removed   []Entry      `json:"removed"`
	Changed   []NodeChange `json:"changed"`
	Unchanged int          `json:"unchanged"`
	// Ambiguous lists names that occur more than once in either build.
	Ambiguous []string `json:"ambiguous,omitempty"`
}

// Empty reports whether the builds have no differences.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0
}

// Compare aligns baseline and current by task name and classifies each task.
func Compare(ctx context.Context, baseline, current *graph.Graph, opts Options) (*Result, error) {
	tol := opts.DurationTolerance
	if tol < 0 {
		tol = DefaultTolerance
	}

	base := byName(baseline)
	cur := byName(current)

	names := make([]string, 0, len(base)+len(cur))
	for name := range base {
		names = append(names, name)
	}
	for name := range cur {
		if _, ok := base[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	res := &Result{Baseline: baseline.Source(), Current: current.Source()}
	for _, name := range names {
		b, c := base[name], cur[name]
		if len(b) > 1 || len(c) > 1 {
			res.Ambiguous = append(res.Ambiguous, name)
		}

		paired := min(len(b), len(c))
		for k := range paired {
			select {
			case <-ctx.Done():
				return nil, &graph.GraphError{Kind: graph.ErrCancelled, Offset: -1, Err: ctx.Err()}
			default:
			}
			if change, changed := compareNodes(b[k], c[k], tol); changed {
				res.Changed = append(res.Changed, change)
			} else {
				res.Unchanged++
			}
		}
		for _, n := range b[paired:] {
			res.Removed = append(res.Removed, Entry{Name: name, ID: n.ID})
		}
		for _, n := range c[paired:] {
			res.Added = append(res.Added, Entry{Name: name, ID: n.ID})
		}
	}
	return res, nil
}

// byName groups nodes by task name. Each group is ordered by id.
func byName(g *graph.Graph) map[string][]*graph.Node {
	out := make(map[string][]*graph.Node)
	for _, n := range g.Nodes() {
		out[n.Name] = append(out[n.Name], n)
	}
	for name, group := range out {
		if len(group) > 1 {
			slices.SortFunc(group, func(a, b *graph.Node) int { return graph.CompareIDs(a.ID, b.ID) })
			out[name] = group
		}
	}
	return out
}

func compareNodes(b, c *graph.Node, tol time.Duration) (NodeChange, bool) {
	change := NodeChange{
		Name:          c.Name,
		BaselineID:    b.ID,
		CurrentID:     c.ID,
		DurationDelta: c.Duration() - b.Duration(),
	}
	if b.Status != c.Status {
		change.Fields = append(change.Fields, FieldStatus)
	}
	if abs(change.DurationDelta) > tol {
		change.Fields = append(change.Fields, FieldDuration)
	}
	if !slices.Equal(b.Inputs, c.Inputs) {
		change.Fields = append(change.Fields, FieldInputs)
	}
	if !slices.Equal(b.Outputs, c.Outputs) {
		change.Fields = append(change.Fields, FieldOutputs)
	}
	return change, len(change.Fields) > 0
}

func abs(d time.Duration) time.Duration {
	return max(d, -d)
}
