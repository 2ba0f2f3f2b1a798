package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/buildscope/internal/records"
)

// styles holds every style the printer uses.
type styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Border  lipgloss.Style
	Muted   lipgloss.Style
	Warn    lipgloss.Style
	Bar     lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style

	StatusSucceeded lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusSkipped   lipgloss.Style
	StatusCancelled lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{
			Title: plain, Header: plain, Border: plain, Muted: plain, Warn: plain, Bar: plain,
			Added: plain, Removed: plain,
			StatusSucceeded: plain, StatusFailed: plain, StatusSkipped: plain, StatusCancelled: plain,
		}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		Title: r.NewStyle().
			Bold(true).
			Padding(0, 1),
		Header: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")),
		Border: r.NewStyle().
			Foreground(lipgloss.Color("240")),
		Muted: r.NewStyle().
			Foreground(lipgloss.Color("241")),
		Warn: r.NewStyle().
			Foreground(lipgloss.Color("11")),
		Bar: r.NewStyle().
			Foreground(lipgloss.Color("62")),
		Added: r.NewStyle().
			Foreground(lipgloss.Color("10")),
		Removed: r.NewStyle().
			Foreground(lipgloss.Color("9")),

		StatusSucceeded: r.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true),
		StatusFailed: r.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true),
		StatusSkipped: r.NewStyle().
			Foreground(lipgloss.Color("240")),
		StatusCancelled: r.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
	}
}

func (s styles) status(st records.Status) string {
	switch st {
	case records.StatusSucceeded:
		return s.StatusSucceeded.Render(st.String())
	case records.StatusFailed:
		return s.StatusFailed.Render(st.String())
	case records.StatusSkipped:
		return s.StatusSkipped.Render(st.String())
	case records.StatusCancelled:
		return s.StatusCancelled.Render(st.String())
	}
	return st.String()
}
