package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	suggestionBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1)

	suggestionTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorWarn)

	suggestionItemStyle = lipgloss.NewStyle().
		Foreground(ColorPass).
		Bold(true)
)

// RenderUnknownID renders the box shown when an issue ID fails to
// resolve, with close matches when any exist.
func RenderUnknownID(id string, suggestions []string) string {
	var lines []string
	lines = append(lines, suggestionTitleStyle.Render(fmt.Sprintf("No issue matches %q", id)))

	if len(suggestions) > 0 {
		lines = append(lines, "Did you mean:")
		for _, s := range suggestions {
			lines = append(lines, "  • "+suggestionItemStyle.Render(s))
		}
	}

	return suggestionBoxStyle.Render(strings.Join(lines, "\n"))
}

// RenderAmbiguousID renders the box shown when a partial ID matches
// more than one issue.
func RenderAmbiguousID(id string, matches []string) string {
	var lines []string
	lines = append(lines, suggestionTitleStyle.Render(fmt.Sprintf("%q is ambiguous", id)))
	lines = append(lines, "Matches:")
	for _, m := range matches {
		lines = append(lines, "  • "+suggestionItemStyle.Render(m))
	}

	return suggestionBoxStyle.Render(strings.Join(lines, "\n"))
}
