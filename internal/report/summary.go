package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/phyling/internal/newick"
)

// Colors of the terminal summary.
var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	borderColor  = lipgloss.Color("#6B7280") // Gray
)

// boxFrame is the width taken by the summary box border and padding.
const boxFrame = 4

// styles are bound to one renderer so that output to a pipe or file comes
// out without escape sequences.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
	muted   lipgloss.Style
	section lipgloss.Style
	box     lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(primaryColor),
		label:   r.NewStyle().Width(14).Foreground(mutedColor),
		ok:      r.NewStyle().Foreground(successColor),
		warn:    r.NewStyle().Foreground(warningColor),
		fail:    r.NewStyle().Foreground(errorColor).Bold(true),
		muted:   r.NewStyle().Foreground(mutedColor),
		section: r.NewStyle().Bold(true).MarginTop(1),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1),
	}
}

// SummaryOptions control the terminal summary.
type SummaryOptions struct {
	// Width bounds the summary box; longer lines are cut with an ellipsis.
	// 0 leaves it unbounded.
	Width int
	// MaxTreeLeaves skips the tree drawing for larger trees; 0 always draws.
	MaxTreeLeaves int
}

// WriteSummary renders a human-readable summary of r to w. Colors are used
// only when w is a terminal.
func WriteSummary(w io.Writer, r *Report, opts SummaryOptions) error {
	_, err := io.WriteString(w, Summary(lipgloss.NewRenderer(w), r, opts)+"\n")
	return err
}

// Summary renders the summary with the given renderer.
func Summary(renderer *lipgloss.Renderer, r *Report, opts SummaryOptions) string {
	st := newStyles(renderer)

	state := st.ok.Render(r.State)
	if r.Failure != nil {
		state = st.fail.Render(r.State)
	}

	var lines []string
	lines = append(lines, st.title.Render("phyling run "+r.RunID)+"  "+state)
	row := func(label, value string) {
		lines = append(lines, st.label.Render(label)+value)
	}

	failedGenomes := len(r.Genomes) - r.SearchedGenomes()
	row("Genomes", fmt.Sprintf("%d searched%s", r.SearchedGenomes(), count(st.warn, failedGenomes, "failed")))
	row("Markers", fmt.Sprintf("%d in catalog, %d retained%s",
		r.Catalog.Markers, len(r.Retained), count(st.muted, len(r.Rejected), "rejected")))
	if len(r.Markers) > 0 {
		row("Pipelines", fmt.Sprintf("%d succeeded%s", r.SucceededMarkers(), count(st.warn, len(r.FailedMarkers()), "failed")))
	}
	row("Strategy", r.Strategy)
	if r.SpeciesTree != nil {
		row("Species tree", fmt.Sprintf("%s (%d markers, %d genomes)",
			r.SpeciesTree.Path, len(r.SpeciesTree.Markers), len(r.SpeciesTree.Leaves)))
	}
	row("Duration", r.Duration().Round(time.Millisecond).String())
	if r.Failure != nil {
		row("Failure", st.fail.Render(r.Failure.Message))
	}

	if failed := r.FailedMarkers(); len(failed) > 0 {
		lines = append(lines, st.section.Render("Failed markers"))
		for _, m := range failed {
			lines = append(lines, "  "+m.ID+"  "+st.warn.Render(m.Stage)+"  "+st.muted.Render(markerDetail(m)))
		}
	}
	var failedSearch []string
	for _, g := range r.Genomes {
		if g.Status == StatusFailed {
			failedSearch = append(failedSearch, "  "+g.ID+"  "+st.muted.Render(g.Error))
		}
	}
	if len(failedSearch) > 0 {
		lines = append(lines, st.section.Render("Failed genomes"))
		lines = append(lines, failedSearch...)
	}

	if r.SpeciesTree != nil && r.SpeciesTree.Newick != "" {
		if opts.MaxTreeLeaves == 0 || len(r.SpeciesTree.Leaves) <= opts.MaxTreeLeaves {
			if tree, err := newick.Parse(r.SpeciesTree.Newick); err == nil {
				lines = append(lines, st.section.Render("Species tree"))
				for _, l := range tree.Render() {
					lines = append(lines, "  "+l)
				}
			}
		}
	}

	content := strings.Join(lines, "\n")
	if inner := opts.Width - boxFrame; inner > 0 {
		physical := strings.Split(content, "\n")
		for i, l := range physical {
			physical[i] = ansi.Truncate(l, inner, "…")
		}
		content = strings.Join(physical, "\n")
	}
	return st.box.Render(content)
}

func count(style lipgloss.Style, n int, what string) string {
	if n == 0 {
		return ""
	}
	return ", " + style.Render(fmt.Sprintf("%d %s", n, what))
}

func markerDetail(m Marker) string {
	var parts []string
	if m.Tool != "" {
		parts = append(parts, m.Tool)
	}
	if m.ExitCode != nil {
		parts = append(parts, fmt.Sprintf("exit %d", *m.ExitCode))
	}
	if m.TimedOut {
		parts = append(parts, "timed out")
	}
	if m.Retryable {
		parts = append(parts, "may succeed on rerun")
	}
	if tail := lastLine(m.Stderr); tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
