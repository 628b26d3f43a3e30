package ui

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/beadworks/beads/internal/types"
)

// renderCountTable renders a two-column key/count table with a header.
func renderCountTable(title string, rows [][]string, width int) string {
	if len(rows) == 0 {
		return ""
	}

	return table.New().
		Headers(title, "COUNT").
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 1 {
				style = style.Align(lipgloss.Right)
			}
			return style
		}).
		String()
}

// RenderStatsReport renders issue statistics for the stats command.
func RenderStatsReport(stats *types.Statistics, width int) string {
	var sections []string

	sections = append(sections, HeaderStyle.Render("Issue statistics"), "")

	overview := [][]string{
		{"total", fmt.Sprintf("%d", stats.TotalIssues)},
		{"open", fmt.Sprintf("%d", stats.OpenIssues)},
		{"in progress", fmt.Sprintf("%d", stats.InProgressIssues)},
		{"blocked", fmt.Sprintf("%d", stats.BlockedIssues)},
		{"deferred", fmt.Sprintf("%d", stats.DeferredIssues)},
		{"closed", fmt.Sprintf("%d", stats.ClosedIssues)},
		{"ready", fmt.Sprintf("%d", stats.ReadyIssues)},
	}
	if stats.PinnedIssues > 0 {
		overview = append(overview, []string{"pinned", fmt.Sprintf("%d", stats.PinnedIssues)})
	}
	if stats.TombstoneIssues > 0 {
		overview = append(overview, []string{"tombstones", fmt.Sprintf("%d", stats.TombstoneIssues)})
	}
	sections = append(sections, renderCountTable("STATUS", overview, width), "")

	if len(stats.ByType) > 0 {
		typeNames := make([]string, 0, len(stats.ByType))
		for name := range stats.ByType {
			typeNames = append(typeNames, name)
		}
		sort.Strings(typeNames)
		rows := make([][]string, 0, len(typeNames))
		for _, name := range typeNames {
			rows = append(rows, []string{name, fmt.Sprintf("%d", stats.ByType[name])})
		}
		sections = append(sections, renderCountTable("TYPE", rows, width), "")
	}

	if len(stats.ByPriority) > 0 {
		priorities := make([]int, 0, len(stats.ByPriority))
		for p := range stats.ByPriority {
			priorities = append(priorities, p)
		}
		sort.Ints(priorities)
		rows := make([][]string, 0, len(priorities))
		for _, p := range priorities {
			rows = append(rows, []string{fmt.Sprintf("P%d", p), fmt.Sprintf("%d", stats.ByPriority[p])})
		}
		sections = append(sections, renderCountTable("PRIORITY", rows, width), "")
	}

	if stats.AverageLeadTime > 0 {
		sections = append(sections,
			MutedStyle.Render(fmt.Sprintf("average lead time: %.1f hours", stats.AverageLeadTime)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
