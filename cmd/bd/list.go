package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

// buildIssueFilter translates the shared list/search flags into a
// storage filter.
func buildIssueFilter(cmd *cobra.Command) types.IssueFilter {
	filter := types.IssueFilter{}

	if s, _ := cmd.Flags().GetString("status"); s != "" {
		status := types.Status(s)
		if !status.IsValid() {
			FatalError("invalid status %q", s)
		}
		filter.Status = &status
	}
	if t, _ := cmd.Flags().GetString("type"); t != "" {
		issueType := types.IssueType(t).Normalize()
		if !issueType.IsValid() {
			FatalError("invalid issue type %q", t)
		}
		filter.IssueType = &issueType
	}
	if cmd.Flags().Changed("priority") {
		p, _ := cmd.Flags().GetInt("priority")
		filter.Priority = &p
	}
	if a, _ := cmd.Flags().GetString("assignee"); a != "" {
		filter.Assignee = &a
	}
	if u, _ := cmd.Flags().GetBool("unassigned"); u {
		filter.NoAssignee = true
	}
	filter.Labels, _ = cmd.Flags().GetStringSlice("label")
	filter.LabelsAny, _ = cmd.Flags().GetStringSlice("label-any")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	filter.IncludeTombstones, _ = cmd.Flags().GetBool("include-tombstones")
	filter.Overdue, _ = cmd.Flags().GetBool("overdue")
	if cmd.Flags().Changed("pinned") {
		pinned, _ := cmd.Flags().GetBool("pinned")
		filter.Pinned = &pinned
	}
	return filter
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter := buildIssueFilter(cmd)

		sortBy, _ := cmd.Flags().GetString("sort")
		reverse, _ := cmd.Flags().GetBool("reverse")
		sortKey := types.SortKey(sortBy)
		if !sortKey.IsValid() {
			FatalError("invalid sort key %q (created, updated, priority, status, title, id, type)", sortBy)
		}

		issues, err := store.ListIssues(rootCtx, filter, sortKey, reverse)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputIssueListJSON(issues)
			return
		}
		if ui.IsTerminal() {
			fmt.Println(ui.RenderIssueTable(issues, ui.GetWidth()))
			return
		}
		printIssueLines(issues)
	},
}

// printIssueLines is the pipe-friendly fallback when stdout is not a
// terminal: one issue per line, tab-separated.
func printIssueLines(issues []*types.Issue) {
	for _, issue := range issues {
		fmt.Printf("%s\tP%d\t%s\t%s\t%s\n", issue.ID, issue.Priority, issue.Status, issue.IssueType, issue.Title)
	}
}

// addListFilterFlags registers the filter flags shared by list and
// search.
func addListFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("status", "s", "", "Filter by status")
	cmd.Flags().StringP("type", "t", "", "Filter by issue type")
	cmd.Flags().IntP("priority", "p", 0, "Filter by exact priority")
	cmd.Flags().StringP("assignee", "a", "", "Filter by assignee")
	cmd.Flags().Bool("unassigned", false, "Only unassigned issues")
	cmd.Flags().StringSliceP("label", "l", nil, "Require all of these labels")
	cmd.Flags().StringSlice("label-any", nil, "Require at least one of these labels")
	cmd.Flags().Int("limit", 0, "Maximum results (0 = unlimited)")
	cmd.Flags().Bool("include-tombstones", false, "Include deleted (tombstoned) issues")
	cmd.Flags().Bool("overdue", false, "Only issues past their due time")
	cmd.Flags().Bool("pinned", false, "Filter by the pinned flag")
}

func init() {
	addListFilterFlags(listCmd)
	listCmd.Flags().String("sort", "created", "Sort key: created, updated, priority, status, title, id, type")
	listCmd.Flags().Bool("reverse", false, "Reverse the sort order")
	rootCmd.AddCommand(listCmd)
}
