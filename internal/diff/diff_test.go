package diff

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/aristath/buildscope/internal/graph"
	"github.com/aristath/buildscope/internal/records"
)

func run(id, name string, durMS int, status records.Status, outputs ...string) records.TaskRecord {
	return records.TaskRecord{
		ID:      id,
		Name:    name,
		End:     time.Duration(durMS) * time.Millisecond,
		Status:  status,
		Outputs: outputs,
	}
}

func build(t *testing.T, source string, recs ...records.TaskRecord) *graph.Graph {
	t.Helper()
	ctx := context.Background()
	g, err := graph.Build(ctx, source, records.Load(ctx, records.Slice{Name: source, Items: recs}))
	if err != nil {
		t.Fatalf("graph.Build(%s) error = %v", source, err)
	}
	return g
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestCompareStatusChange(t *testing.T) {
	a := build(t, "a", run("1", "build", 10, records.StatusSucceeded))
	b := build(t, "b", run("7", "build", 10, records.StatusFailed))

	res, err := Compare(context.Background(), a, b, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(res.Added) != 0 || len(res.Removed) != 0 {
		t.Errorf("added %v removed %v, want none", res.Added, res.Removed)
	}
	if len(res.Changed) != 1 {
		t.Fatalf("Changed = %v, want one entry", res.Changed)
	}
	c := res.Changed[0]
	if c.Name != "build" || c.BaselineID != "1" || c.CurrentID != "7" {
		t.Errorf("change = %+v", c)
	}
	if !slices.Equal(c.Fields, []string{FieldStatus}) {
		t.Errorf("Fields = %v, want [status]", c.Fields)
	}
}

func TestCompareSelf(t *testing.T) {
	g := build(t, "g",
		run("1", "fetch", 5, records.StatusSucceeded),
		run("2", "compile", 30, records.StatusSucceeded, "app.o"),
		run("3", "link", 12, records.StatusFailed),
		run("4", "link", 2, records.StatusSkipped),
	)
	res, err := Compare(context.Background(), g, g, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if !res.Empty() {
		t.Errorf("self diff not empty: %+v", res)
	}
	if res.Unchanged != g.Len() {
		t.Errorf("Unchanged = %d, want %d", res.Unchanged, g.Len())
	}
	if !slices.Equal(res.Ambiguous, []string{"link"}) {
		t.Errorf("Ambiguous = %v, want [link]", res.Ambiguous)
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	a := build(t, "a",
		run("1", "fetch", 5, records.StatusSucceeded),
		run("2", "compile", 30, records.StatusSucceeded),
		run("3", "test", 30, records.StatusSucceeded),
		run("4", "test", 30, records.StatusSucceeded),
	)
	b := build(t, "b",
		run("10", "compile", 31, records.StatusSucceeded),
		run("11", "lint", 3, records.StatusSucceeded),
		run("12", "test", 30, records.StatusSucceeded),
		run("13", "archive", 3, records.StatusSucceeded),
	)

	ctx := context.Background()
	ab, err := Compare(ctx, a, b, Options{})
	if err != nil {
		t.Fatalf("Compare(a, b) error = %v", err)
	}
	ba, err := Compare(ctx, b, a, Options{})
	if err != nil {
		t.Fatalf("Compare(b, a) error = %v", err)
	}

	if !slices.Equal(names(ab.Added), names(ba.Removed)) {
		t.Errorf("a->b added %v != b->a removed %v", ab.Added, ba.Removed)
	}
	if !slices.Equal(names(ab.Removed), names(ba.Added)) {
		t.Errorf("a->b removed %v != b->a added %v", ab.Removed, ba.Added)
	}
	if want := []string{"archive", "lint"}; !slices.Equal(names(ab.Added), want) {
		t.Errorf("Added = %v, want %v", names(ab.Added), want)
	}
	if want := []Entry{{"fetch", "1"}, {"test", "4"}}; !slices.Equal(ab.Removed, want) {
		t.Errorf("Removed = %v, want %v", ab.Removed, want)
	}
	// compile moved by 1ms, which an exact comparison reports
	if len(ab.Changed) != 1 || ab.Changed[0].Name != "compile" {
		t.Errorf("Changed = %+v, want compile", ab.Changed)
	}
}

func TestCompareTolerance(t *testing.T) {
	a := build(t, "a", run("1", "compile", 100, records.StatusSucceeded))
	b := build(t, "b", run("1", "compile", 140, records.StatusSucceeded))

	tests := []struct {
		name      string
		tolerance time.Duration
		changed   bool
	}{
		{"exact", 0, true},
		{"default 50ms", -1, false},
		{"wide", time.Second, false},
		{"narrow", 39 * time.Millisecond, true},
		{"boundary", 40 * time.Millisecond, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compare(context.Background(), a, b, Options{DurationTolerance: tt.tolerance})
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if got := len(res.Changed) == 1; got != tt.changed {
				t.Errorf("changed = %v, want %v", got, tt.changed)
			}
			if tt.changed && res.Changed[0].DurationDelta != 40*time.Millisecond {
				t.Errorf("DurationDelta = %v, want 40ms", res.Changed[0].DurationDelta)
			}
		})
	}
}

func TestCompareResourceSets(t *testing.T) {
	a := build(t, "a", run("1", "compile", 10, records.StatusSucceeded, "a.o"))
	b := build(t, "b", run("1", "compile", 10, records.StatusSucceeded, "a.o", "b.o"))
	res, err := Compare(context.Background(), a, b, Options{})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(res.Changed) != 1 || !slices.Equal(res.Changed[0].Fields, []string{FieldOutputs}) {
		t.Errorf("Changed = %+v, want outputs change", res.Changed)
	}
}

func TestCompareCancelled(t *testing.T) {
	g := build(t, "g", run("1", "x", 1, records.StatusSucceeded))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Compare(ctx, g, g, Options{}); !errors.Is(err, graph.ErrCancelled) {
		t.Errorf("Compare() error = %v, want graph.ErrCancelled", err)
	}
}
