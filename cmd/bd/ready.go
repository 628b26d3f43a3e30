package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

// buildWorkFilter translates the ready/blocked flags into a work
// filter.
func buildWorkFilter(cmd *cobra.Command) types.WorkFilter {
	filter := types.WorkFilter{}

	if t, _ := cmd.Flags().GetString("type"); t != "" {
		issueType := types.IssueType(t).Normalize()
		if !issueType.IsValid() {
			FatalError("invalid issue type %q", t)
		}
		filter.Type = string(issueType)
	}
	if cmd.Flags().Changed("priority") {
		p, _ := cmd.Flags().GetInt("priority")
		filter.Priority = &p
	}
	if a, _ := cmd.Flags().GetString("assignee"); a != "" {
		filter.Assignee = &a
	}
	filter.Unassigned, _ = cmd.Flags().GetBool("unassigned")
	filter.Labels, _ = cmd.Flags().GetStringSlice("label")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	return filter
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List issues ready to work on",
	Long: `List open issues with no unresolved blocking dependencies.

An issue is ready when it is open, not ephemeral, not pinned, past any
defer time, and nothing it depends on through a blocking edge is still
open, in progress, blocked, deferred, or hooked.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		issues, err := store.GetReadyWork(rootCtx, buildWorkFilter(cmd))
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputIssueListJSON(issues)
			return
		}
		if len(issues) == 0 {
			Infof("No issues are ready to work on.")
			return
		}
		if ui.IsTerminal() {
			fmt.Println(ui.RenderIssueTable(issues, ui.GetWidth()))
			return
		}
		printIssueLines(issues)
	},
}

// addWorkFilterFlags registers the filter flags shared by ready and
// blocked.
func addWorkFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", "", "Filter by issue type")
	cmd.Flags().IntP("priority", "p", 0, "Filter by exact priority")
	cmd.Flags().StringP("assignee", "a", "", "Filter by assignee")
	cmd.Flags().Bool("unassigned", false, "Only unassigned issues")
	cmd.Flags().StringSliceP("label", "l", nil, "Require all of these labels")
	cmd.Flags().Int("limit", 0, "Maximum results (0 = unlimited)")
}

func init() {
	addWorkFilterFlags(readyCmd)
	rootCmd.AddCommand(readyCmd)
}
