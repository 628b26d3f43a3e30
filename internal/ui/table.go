package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/beadworks/beads/internal/types"
)

// Table Styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		Align(lipgloss.Center)

	TableWarningStyle = lipgloss.NewStyle().
		Foreground(ColorWarn)

	TableSuccessStyle = lipgloss.NewStyle().
		Foreground(ColorPass)

	TableHintStyle = lipgloss.NewStyle().
		Foreground(ColorMuted)

	TableBorderStyle = lipgloss.NewStyle().
		Foreground(ColorMuted)
)

// NewTable creates a table with the default border treatment.
func NewTable(width int) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width)
}

// RenderIssueTable renders issues as the styled list table used by
// list, ready, blocked, and search on a terminal.
func RenderIssueTable(issues []*types.Issue, width int) string {
	if len(issues) == 0 {
		return TableHintStyle.Render("no issues")
	}

	// Everything but the title has a fixed footprint; the title gets
	// whatever is left.
	titleWidth := width - 38
	if titleWidth < 16 {
		titleWidth = 16
	}

	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		title := issue.Title
		if len(title) > titleWidth {
			title = title[:titleWidth-3] + "..."
		}
		rows = append(rows, []string{
			issue.ID,
			fmt.Sprintf("P%d", issue.Priority),
			string(issue.Status),
			string(issue.IssueType),
			title,
		})
	}

	return NewTable(width).
		Headers("ID", "PRI", "STATUS", "TYPE", "TITLE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			style := lipgloss.NewStyle().Padding(0, 1)
			if row < 0 || row >= len(issues) {
				return style
			}
			switch col {
			case 0:
				return style.Foreground(ColorAccent)
			case 1:
				if issues[row].Priority == 0 {
					return style.Foreground(ColorFail).Bold(true)
				}
				if issues[row].Priority == 1 {
					return style.Foreground(ColorWarn)
				}
			case 2:
				if s, ok := statusStyles[issues[row].Status]; ok {
					return style.Foreground(s.GetForeground())
				}
			}
			return style
		}).
		String()
}
