package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/beadworks/beads/internal/types"
)

func treeLabel(node *types.TreeNode) string {
	label := fmt.Sprintf("%s %s [%s] %s",
		node.ID, RenderPriority(node.Priority), RenderStatus(node.Status), node.Title)
	if node.Truncated {
		label += MutedStyle.Render(" …")
	}
	return label
}

// BuildDependencyTree constructs a lipgloss.tree from a flattened
// dependency traversal. Nodes arrive in DFS order, so a parent is always
// registered before its children. A repeated ID is a truncated re-visit
// and never has children of its own, so only the first occurrence is
// registered for attachment.
func BuildDependencyTree(nodes []*types.TreeNode) *tree.Tree {
	if len(nodes) == 0 {
		return nil
	}

	root := nodes[0]
	t := tree.New().Root(treeLabel(root))
	t.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorAccent))
	t.RootStyle(lipgloss.NewStyle().Bold(true))

	byID := map[string]*tree.Tree{root.ID: t}

	for _, node := range nodes[1:] {
		childTree := tree.New().Root(treeLabel(node))
		childTree.EnumeratorStyle(lipgloss.NewStyle().Foreground(ColorAccent))
		if _, seen := byID[node.ID]; !seen {
			byID[node.ID] = childTree
		}

		if parentTree, ok := byID[node.ParentID]; ok {
			parentTree.Child(childTree)
		} else {
			t.Child(childTree)
		}
	}

	return t
}

// RenderDependencyTree renders a dependency traversal for dep tree.
func RenderDependencyTree(nodes []*types.TreeNode) string {
	t := BuildDependencyTree(nodes)
	if t == nil {
		return TableHintStyle.Render("no dependencies")
	}
	return t.String()
}

// RenderCycleTable renders detected dependency cycles, one chain per
// row, for dep cycles.
func RenderCycleTable(cycles [][]*types.Issue, width int) string {
	if len(cycles) == 0 {
		return TableSuccessStyle.Render("No cycles detected.")
	}

	rows := make([][]string, 0, len(cycles))
	for i, cycle := range cycles {
		ids := make([]string, 0, len(cycle)+1)
		for _, issue := range cycle {
			ids = append(ids, issue.ID)
		}
		if len(cycle) > 0 {
			ids = append(ids, cycle[0].ID)
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			strings.Join(ids, " → "),
		})
	}

	return table.New().
		Headers("#", fmt.Sprintf("CYCLE (%d found)", len(cycles))).
		Rows(rows...).
		Border(lipgloss.RoundedBorder()).
		BorderRow(true).
		BorderStyle(TableBorderStyle).
		Width(width).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Left)
			if col == 0 {
				style = style.Width(5).Foreground(ColorMuted)
			} else {
				style = style.Foreground(ColorFail)
			}
			return style
		}).
		String()
}
