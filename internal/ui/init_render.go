package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/list"
	"github.com/charmbracelet/lipgloss/table"
)

// InitResult aggregates what bd init created, for the summary report.
type InitResult struct {
	DBPath  string
	LogPath string
	Prefix  string

	// Workspace files written this run (config.yaml, .gitignore, ...).
	CreatedFiles []string

	Warnings  []string
	NextSteps []string
}

// RenderInitReport generates the lipgloss report for the init command.
func RenderInitReport(res InitResult, width int) string {
	var sections []string

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPass).
		Render("✓ beads workspace initialized")
	sections = append(sections, header, "")

	if len(res.CreatedFiles) > 0 {
		l := list.New().
			Enumerator(func(_ list.Items, i int) string {
				return RenderPass("✓")
			}).
			EnumeratorStyle(lipgloss.NewStyle().MarginRight(1))
		for _, f := range res.CreatedFiles {
			l.Item(f)
		}
		sections = append(sections, l.String(), "")
	}

	detailsRows := [][]string{
		{"Database", res.DBPath},
		{"Issues log", res.LogPath},
		{"Issue prefix", res.Prefix},
		{"New IDs", res.Prefix + "-<hash>"},
	}

	summaryTable := table.New().
		Headers("Component", "Configuration").
		Rows(detailsRows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				if col == 0 {
					return TableHeaderStyle.Width(20)
				}
				return TableHeaderStyle.Width(width - 20 - 3)
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Bold(true).Foreground(ColorAccent)
			}
			return style
		})

	sections = append(sections, summaryTable.String(), "")

	if len(res.Warnings) > 0 {
		warnBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarn).
			Padding(0, 1).
			Width(width - 2)

		var warnContent []string
		warnContent = append(warnContent, lipgloss.NewStyle().Bold(true).Foreground(ColorWarn).Render("⚠ Warnings:"))
		for _, w := range res.Warnings {
			warnContent = append(warnContent, "  • "+w)
		}

		sections = append(sections, warnBox.Render(strings.Join(warnContent, "\n")), "")
	}

	if len(res.NextSteps) > 0 {
		sections = append(sections, lipgloss.NewStyle().Bold(true).Render("Next steps:"))
		for _, cmd := range res.NextSteps {
			sections = append(sections, "  • "+lipgloss.NewStyle().Foreground(ColorAccent).Render(cmd))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
