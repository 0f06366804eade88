package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/dialoggraph/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// printVerdict writes a boxed score table for v.
func printVerdict(w io.Writer, v *pipeline.Verdict) {
	var sb strings.Builder

	status := passStyle.Render("VALID")
	if !v.IsValid {
		status = failStyle.Render("INVALID")
	}
	fmt.Fprintf(&sb, "%s  %s  min %d, normalized %.2f\n",
		titleStyle.Render("Validation"), status, v.MinScore, v.Normalized())

	names := make([]string, 0, len(v.Scores))
	for name := range v.Scores {
		names = append(names, name)
	}
	slices.Sort(names)

	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		score := v.Scores[name]
		mark := passStyle.Render(strings.Repeat("●", score))
		if score < pipeline.PassingScore {
			mark = failStyle.Render(strings.Repeat("●", max(score, 0)))
		}
		fmt.Fprintf(&sb, "\n%-*s %d %s", width, name, score, mark)
		if c := v.Comments[name]; c != "" {
			fmt.Fprintf(&sb, "\n%s", dimStyle.Render("  "+c))
		}
	}

	fmt.Fprintln(w, boxStyle.Render(sb.String()))
}
