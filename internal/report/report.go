// Package report renders analysis results for a terminal, or as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/aristath/buildscope/internal/diff"
	"github.com/aristath/buildscope/internal/graph"
	"github.com/aristath/buildscope/internal/query"
)

const barWidth = 30

// Printer writes human-readable reports.
type Printer struct {
	w  io.Writer
	st styles
}

// NewPrinter returns a Printer writing to w. With color false no escape
// sequences are emitted.
func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, st: newStyles(w, color)}
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) title(s string) {
	t := p.st.Title.Render(s)
	fmt.Fprintln(p.w, t)
	fmt.Fprintln(p.w, strings.Repeat("=", lipgloss.Width(t)))
}

func (p *Printer) table(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.st.Border).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.st.Header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// Summary prints the size of a graph.
func (p *Printer) Summary(g *graph.Graph) {
	fmt.Fprintf(p.w, "%s: %s tasks, %s edges\n", g.Source(),
		humanize.Comma(int64(g.Len())), humanize.Comma(int64(g.EdgeCount())))
}

// Diagnostics prints data-quality findings, if any.
func (p *Printer) Diagnostics(diags []graph.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(p.w, p.st.Warn.Render(fmt.Sprintf("%d diagnostic(s):", len(diags))))
	for _, d := range diags {
		fmt.Fprintf(p.w, "  %s %s\n", p.st.Warn.Render("!"), d)
	}
}

// CriticalPath prints each step with a bar proportional to its duration.
func (p *Printer) CriticalPath(path *graph.CriticalPath) {
	p.title("Critical Path")
	if len(path.Steps) == 0 {
		fmt.Fprintln(p.w, p.st.Muted.Render("no tasks"))
		return
	}

	t := p.table("#", "ID", "Task", "Duration", "Cumulative", "")
	for i, s := range path.Steps {
		t.Row(fmt.Sprint(i+1), s.ID, s.Name, formatDuration(s.Duration), formatDuration(s.Cumulative),
			p.bar(s.Duration, path.Length))
	}
	fmt.Fprintln(p.w, t.String())

	fmt.Fprintf(p.w, "Length: %s over %d task(s)\n", formatDuration(path.Length), len(path.Steps))
	if path.Span > 0 {
		pct := float64(path.Length) / float64(path.Span) * 100
		fmt.Fprintf(p.w, "Build span: %s (critical path covers %.0f%%)\n", formatDuration(path.Span), pct)
	}
}

func (p *Printer) bar(part, whole time.Duration) string {
	if whole <= 0 {
		return ""
	}
	n := int(int64(part) * barWidth / int64(whole))
	if part > 0 {
		n = max(n, 1)
	}
	return p.st.Bar.Render(strings.Repeat("█", n)) + p.st.Muted.Render(strings.Repeat("·", barWidth-n))
}

// Trace prints the nodes reached by a causality trace.
func (p *Printer) Trace(res *query.TraceResult) {
	p.title(fmt.Sprintf("%s of %s", titleCase(res.Direction), res.Origin))
	if len(res.Entries) == 0 {
		fmt.Fprintln(p.w, p.st.Muted.Render("none"))
		return
	}
	t := p.table("Depth", "ID", "Task", "Status", "Duration", "Via")
	for _, e := range res.Entries {
		t.Row(fmt.Sprint(e.Depth), e.ID, e.Name, p.st.status(e.Status), formatDuration(e.Duration), e.Via)
	}
	fmt.Fprintln(p.w, t.String())
	if res.Truncated {
		fmt.Fprintln(p.w, p.st.Warn.Render(fmt.Sprintf("output limited to %d entries", len(res.Entries))))
	}
}

// Diff prints added, removed and changed tasks.
func (p *Printer) Diff(res *diff.Result) {
	p.title(fmt.Sprintf("Diff %s -> %s", res.Baseline, res.Current))
	if res.Empty() {
		fmt.Fprintf(p.w, "no differences (%d unchanged)\n", res.Unchanged)
		return
	}

	if len(res.Added)+len(res.Removed) > 0 {
		t := p.table("", "Task", "ID")
		for _, e := range res.Added {
			t.Row(p.st.Added.Render("+"), e.Name, e.ID)
		}
		for _, e := range res.Removed {
			t.Row(p.st.Removed.Render("-"), e.Name, e.ID)
		}
		fmt.Fprintln(p.w, t.String())
	}

	if len(res.Changed) > 0 {
		t := p.table("Task", "IDs", "Changed", "Δ Duration")
		for _, c := range res.Changed {
			t.Row(c.Name, c.BaselineID+" -> "+c.CurrentID, strings.Join(c.Fields, ", "), signedDuration(c.DurationDelta))
		}
		fmt.Fprintln(p.w, t.String())
	}

	fmt.Fprintf(p.w, "%d added, %d removed, %d changed, %d unchanged\n",
		len(res.Added), len(res.Removed), len(res.Changed), res.Unchanged)
	if len(res.Ambiguous) > 0 {
		fmt.Fprintln(p.w, p.st.Warn.Render("names recorded more than once, paired by id order: "+strings.Join(res.Ambiguous, ", ")))
	}
}

// Cycles prints each dependency cycle on one line.
func (p *Printer) Cycles(cycles []graph.Cycle) {
	p.title("Cycles")
	if len(cycles) == 0 {
		fmt.Fprintln(p.w, "no cycles")
		return
	}
	for i, c := range cycles {
		fmt.Fprintf(p.w, "%d. %s\n", i+1, strings.Join(c.Nodes, " <-> "))
	}
	fmt.Fprintf(p.w, "%d cycle(s)\n", len(cycles))
}

// Order prints node ids in topological order, one per line.
func (p *Printer) Order(ids []string) {
	for _, id := range ids {
		fmt.Fprintln(p.w, id)
	}
}

// Error prints a query error with its details.
func (p *Printer) Error(err *query.Error) {
	fmt.Fprintf(p.w, "%s %s\n", p.st.StatusFailed.Render(string(err.Code)), err.Error())
	for _, k := range sortedKeys(err.Details) {
		fmt.Fprintf(p.w, "  %s: %v\n", k, err.Details[k])
	}
}
