package report

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/aristath/buildscope/internal/events"
)

// Event prints one load or analysis event as a single status line.
func (p *Printer) Event(ev events.Event) {
	switch e := ev.(type) {
	case events.LoadProgressEvent:
		fmt.Fprintf(p.w, "%s %s: %s records read\n", p.st.Muted.Render("…"), e.Source, humanize.Comma(int64(e.Records)))
	case events.GraphBuiltEvent:
		fmt.Fprintf(p.w, "%s %s: %s tasks, %s edges, %d diagnostic(s) in %s\n", p.st.Bar.Render("loaded"), e.Source,
			humanize.Comma(int64(e.Nodes)), humanize.Comma(int64(e.Edges)), e.Diagnostics, formatDuration(e.Elapsed))
	case events.AnalysisCompletedEvent:
		if e.Err != nil {
			fmt.Fprintf(p.w, "%s %s failed after %s\n", p.st.StatusFailed.Render(e.Operation), e.Source, formatDuration(e.Elapsed))
			return
		}
		fmt.Fprintf(p.w, "%s %s done in %s\n", p.st.StatusSucceeded.Render(e.Operation), e.Source, formatDuration(e.Elapsed))
	}
}
