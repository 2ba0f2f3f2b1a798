package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/aristath/buildscope/internal/records"
)

func TestDetectCycles(t *testing.T) {
	tests := []struct {
		name        string
		recs        []records.TaskRecord
		wantCycles  [][]string
		wantOnCycle []string
	}{
		{
			name:        "acyclic",
			recs:        []records.TaskRecord{task("A", 0, 1), task("B", 0, 1, "A"), task("C", 0, 1, "A", "B")},
			wantCycles:  nil,
			wantOnCycle: nil,
		},
		{
			name:        "two node cycle",
			recs:        []records.TaskRecord{task("A", 0, 1, "B"), task("B", 0, 1, "A"), task("C", 0, 1, "A")},
			wantCycles:  [][]string{{"A", "B"}},
			wantOnCycle: []string{"A", "B"},
		},
		{
			name:        "self loop",
			recs:        []records.TaskRecord{task("A", 0, 1, "A"), task("B", 0, 1, "A")},
			wantCycles:  [][]string{{"A"}},
			wantOnCycle: []string{"A"},
		},
		{
			// D closes A->B->D->C->A through a cross edge into C,
			// which is still open when D is reached.
			name: "cycle closed through a cross edge",
			recs: []records.TaskRecord{
				task("A", 0, 1, "B"),
				task("B", 0, 1, "C", "D"),
				task("C", 0, 1, "A"),
				task("D", 0, 1, "C"),
				task("E", 0, 1, "A"),
			},
			wantCycles:  [][]string{{"A", "B", "C", "D"}},
			wantOnCycle: []string{"A", "B", "C", "D"},
		},
		{
			name: "disjoint cycles",
			recs: []records.TaskRecord{
				task("X", 0, 1, "Y"), task("Y", 0, 1, "X"),
				task("B", 0, 1, "C"), task("C", 0, 1, "B"),
			},
			wantCycles:  [][]string{{"B", "C"}, {"X", "Y"}},
			wantOnCycle: []string{"B", "C", "X", "Y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustBuild(t, tt.recs...)
			cycles, err := g.DetectCycles(context.Background())
			if err != nil {
				t.Fatalf("DetectCycles() error = %v", err)
			}

			var got [][]string
			for _, c := range cycles {
				got = append(got, c.Nodes)
			}
			if !slices.EqualFunc(got, tt.wantCycles, slices.Equal) {
				t.Errorf("cycles = %v, want %v", got, tt.wantCycles)
			}

			var onCycle []string
			for _, n := range g.Nodes() {
				if n.OnCycle {
					onCycle = append(onCycle, n.ID)
				}
			}
			slices.Sort(onCycle)
			if !slices.Equal(onCycle, tt.wantOnCycle) {
				t.Errorf("OnCycle = %v, want %v", onCycle, tt.wantOnCycle)
			}

			known, cyclic := g.CyclesKnown()
			if !known || cyclic != (len(tt.wantCycles) > 0) {
				t.Errorf("CyclesKnown() = %v, %v", known, cyclic)
			}
		})
	}
}

func TestCriticalPathScenario(t *testing.T) {
	g := mustBuild(t,
		task("C", 25, 40, "B"),
		task("B", 10, 25, "A"),
		task("A", 0, 10),
	)

	path, err := g.CriticalPath(context.Background())
	if err != nil {
		t.Fatalf("CriticalPath() error = %v", err)
	}
	if !slices.Equal(path.IDs(), []string{"A", "B", "C"}) {
		t.Errorf("path = %v, want [A B C]", path.IDs())
	}
	if path.Length != 40*time.Millisecond {
		t.Errorf("Length = %v, want 40ms", path.Length)
	}
	if path.Span != 40*time.Millisecond {
		t.Errorf("Span = %v, want 40ms", path.Span)
	}
	last := path.Steps[len(path.Steps)-1]
	if last.Cumulative != path.Length {
		t.Errorf("last cumulative = %v, want %v", last.Cumulative, path.Length)
	}

	n, _ := g.Node("B")
	if n.CriticalPathLength != 25*time.Millisecond {
		t.Errorf("B.CriticalPathLength = %v, want 25ms", n.CriticalPathLength)
	}
}

func TestCriticalPathTieBreaksByID(t *testing.T) {
	g := mustBuild(t,
		task("Y", 0, 10),
		task("X", 0, 10),
		task("Z", 10, 15, "Y", "X"),
		task("W", 0, 15),
	)
	path, err := g.CriticalPath(context.Background())
	if err != nil {
		t.Fatalf("CriticalPath() error = %v", err)
	}
	// W alone is 15ms, X->Z and Y->Z are 15ms too; W has the lowest id.
	if !slices.Equal(path.IDs(), []string{"W"}) {
		t.Errorf("path = %v, want [W]", path.IDs())
	}

	n, _ := g.Node("Z")
	if n.CriticalPathLength != 15*time.Millisecond {
		t.Errorf("Z.CriticalPathLength = %v, want 15ms", n.CriticalPathLength)
	}
}

func TestCriticalPathPredecessorTie(t *testing.T) {
	g := mustBuild(t,
		task("B", 0, 10),
		task("A", 0, 10),
		task("C", 10, 40, "B", "A"),
	)
	path, err := g.CriticalPath(context.Background())
	if err != nil {
		t.Fatalf("CriticalPath() error = %v", err)
	}
	if !slices.Equal(path.IDs(), []string{"A", "C"}) {
		t.Errorf("path = %v, want [A C]", path.IDs())
	}
}

func TestCriticalPathProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := range 20 {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			n := 5 + rng.IntN(60)
			recs := make([]records.TaskRecord, n)
			for i := range n {
				var deps []string
				for j := range i {
					if rng.IntN(4) == 0 {
						deps = append(deps, fmt.Sprint(j))
					}
				}
				start := rng.IntN(100)
				recs[i] = task(fmt.Sprint(i), start, start+rng.IntN(50), deps...)
			}
			rng.Shuffle(n, func(a, b int) { recs[a], recs[b] = recs[b], recs[a] })

			g := mustBuild(t, recs...)
			path, err := g.CriticalPath(context.Background())
			if err != nil {
				t.Fatalf("CriticalPath() error = %v", err)
			}

			for _, node := range g.Nodes() {
				if node.CriticalPathLength > path.Length {
					t.Errorf("node %s has chain %v longer than critical path %v", node.ID, node.CriticalPathLength, path.Length)
				}
			}

			var sum time.Duration
			for k, step := range path.Steps {
				node, ok := g.Node(step.ID)
				if !ok {
					t.Fatalf("path step %q is not a node", step.ID)
				}
				sum += node.Duration()
				if k == 0 {
					continue
				}
				deps, _ := g.Dependencies(step.ID)
				if !slices.Contains(deps, path.Steps[k-1].ID) {
					t.Errorf("step %s does not depend on %s", step.ID, path.Steps[k-1].ID)
				}
			}
			if sum != path.Length {
				t.Errorf("sum of step durations = %v, Length = %v", sum, path.Length)
			}
		})
	}
}

func TestCriticalPathCyclic(t *testing.T) {
	g := mustBuild(t, task("A", 0, 1, "B"), task("B", 0, 1, "A"))
	_, err := g.CriticalPath(context.Background())
	if !errors.Is(err, ErrCyclicGraph) {
		t.Fatalf("CriticalPath() error = %v, want ErrCyclicGraph", err)
	}
	if known, cyclic := g.CyclesKnown(); !known || !cyclic {
		t.Errorf("CyclesKnown() = %v, %v, want detection cached", known, cyclic)
	}
}

func TestCriticalPathEmpty(t *testing.T) {
	g := mustBuild(t)
	path, err := g.CriticalPath(context.Background())
	if err != nil {
		t.Fatalf("CriticalPath() error = %v", err)
	}
	if len(path.Steps) != 0 || path.Length != 0 {
		t.Errorf("path = %+v, want empty", path)
	}
}

func TestCriticalPathCancelled(t *testing.T) {
	g := mustBuild(t, task("A", 0, 1), task("B", 1, 2, "A"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.CriticalPath(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("CriticalPath() error = %v, want ErrCancelled", err)
	}
	if n, _ := g.Node("B"); n.CriticalPathLength != 0 {
		t.Errorf("partial result leaked: B.CriticalPathLength = %v", n.CriticalPathLength)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := mustBuild(t,
		task("10", 0, 1, "9"),
		task("9", 0, 1),
		task("2", 0, 1),
		task("11", 0, 1, "10", "2"),
	)
	order, err := g.TopologicalOrder(context.Background())
	if err != nil {
		t.Fatalf("TopologicalOrder() error = %v", err)
	}
	want := []string{"2", "9", "10", "11"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	cyclic := mustBuild(t, task("A", 0, 1, "A"))
	if _, err := cyclic.TopologicalOrder(context.Background()); !errors.Is(err, ErrCyclicGraph) {
		t.Errorf("TopologicalOrder() on self loop error = %v, want ErrCyclicGraph", err)
	}
}

func diamond(t *testing.T) *Graph {
	t.Helper()
	return mustBuild(t,
		task("A", 0, 1),
		task("B", 1, 2, "A"),
		task("C", 1, 3, "A"),
		task("D", 3, 4, "B", "C"),
	)
}

func collectTrace(t *testing.T, g *Graph, ctx context.Context, id string, dir Direction) ([]TraceStep, error) {
	t.Helper()
	seq, err := g.Trace(ctx, id, dir)
	if err != nil {
		return nil, err
	}
	var out []TraceStep
	for step, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, step)
	}
	return out, nil
}

func stepIDs(steps []TraceStep) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.Node.ID
	}
	return ids
}

func TestTrace(t *testing.T) {
	ctx := context.Background()
	g := diamond(t)

	tests := []struct {
		origin string
		dir    Direction
		want   []string
		depths []int
	}{
		{"D", Ancestors, []string{"B", "C", "A"}, []int{1, 1, 2}},
		{"A", Descendants, []string{"B", "C", "D"}, []int{1, 1, 2}},
		{"A", Ancestors, nil, nil},
		{"B", Descendants, []string{"D"}, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.origin+"/"+tt.dir.String(), func(t *testing.T) {
			steps, err := collectTrace(t, g, ctx, tt.origin, tt.dir)
			if err != nil {
				t.Fatalf("Trace() error = %v", err)
			}
			got := stepIDs(steps)
			if !slices.Equal(got, tt.want) {
				t.Errorf("trace = %v, want %v", got, tt.want)
			}
			for i, s := range steps {
				if s.Depth != tt.depths[i] {
					t.Errorf("%s depth = %d, want %d", s.Node.ID, s.Depth, tt.depths[i])
				}
			}
		})
	}
}

func TestTraceProperties(t *testing.T) {
	ctx := context.Background()
	g := diamond(t)

	first, _ := collectTrace(t, g, ctx, "D", Ancestors)
	second, _ := collectTrace(t, g, ctx, "D", Ancestors)
	if !slices.Equal(stepIDs(first), stepIDs(second)) {
		t.Errorf("trace not idempotent: %v then %v", stepIDs(first), stepIDs(second))
	}

	for _, n := range g.Nodes() {
		ancestors, _ := collectTrace(t, g, ctx, n.ID, Ancestors)
		descendants, _ := collectTrace(t, g, ctx, n.ID, Descendants)
		for _, s := range append(ancestors, descendants...) {
			if s.Node.ID == n.ID {
				t.Errorf("trace from %s includes the origin", n.ID)
			}
		}
	}

	// The origin of a cycle is still never yielded.
	cyclic := mustBuild(t, task("A", 0, 1, "B"), task("B", 0, 1, "A"))
	steps, _ := collectTrace(t, cyclic, ctx, "A", Ancestors)
	if !slices.Equal(stepIDs(steps), []string{"B"}) {
		t.Errorf("cyclic trace = %v, want [B]", stepIDs(steps))
	}
}

func TestTraceErrors(t *testing.T) {
	g := diamond(t)
	if _, err := g.Trace(context.Background(), "nope", Ancestors); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Trace(nope) error = %v, want ErrUnknownNode", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := collectTrace(t, g, ctx, "D", Ancestors)
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("cancelled trace error = %v, want ErrCancelled", err)
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"ancestors", Ancestors, false},
		{"UP", Ancestors, false},
		{"descendants", Descendants, false},
		{" down ", Descendants, false},
		{"sideways", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDirection(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDirection(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
