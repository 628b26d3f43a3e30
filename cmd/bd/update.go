package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/timeparsing"
	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

var updateCmd = &cobra.Command{
	Use:   "update <id> [id...]",
	Short: "Update fields on one or more issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		updates := map[string]interface{}{}

		if v, _ := cmd.Flags().GetString("title"); v != "" {
			updates["title"] = v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			updates["description"] = v
		}
		if cmd.Flags().Changed("design") {
			v, _ := cmd.Flags().GetString("design")
			updates["design"] = v
		}
		if cmd.Flags().Changed("acceptance") {
			v, _ := cmd.Flags().GetString("acceptance")
			updates["acceptance_criteria"] = v
		}
		if cmd.Flags().Changed("notes") {
			v, _ := cmd.Flags().GetString("notes")
			updates["notes"] = v
		}
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			status := types.Status(v)
			if !status.IsValid() {
				FatalError("invalid status %q", v)
			}
			updates["status"] = string(status)
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetInt("priority")
			updates["priority"] = v
		}
		if v, _ := cmd.Flags().GetString("type"); v != "" {
			issueType := types.IssueType(v).Normalize()
			if !issueType.IsValid() {
				FatalError("invalid issue type %q", v)
			}
			updates["issue_type"] = string(issueType)
		}
		if cmd.Flags().Changed("assignee") {
			v, _ := cmd.Flags().GetString("assignee")
			updates["assignee"] = v
		}
		if cmd.Flags().Changed("estimate") {
			v, _ := cmd.Flags().GetInt("estimate")
			if v < 0 {
				FatalError("estimated minutes must be non-negative")
			}
			updates["estimated_minutes"] = v
		}
		if cmd.Flags().Changed("external-ref") {
			v, _ := cmd.Flags().GetString("external-ref")
			updates["external_ref"] = v
		}
		if cmd.Flags().Changed("pin") {
			v, _ := cmd.Flags().GetBool("pin")
			updates["pinned"] = v
		}

		now := time.Now()
		if expr, _ := cmd.Flags().GetString("defer"); expr != "" {
			t, err := timeparsing.ParseRelativeTime(expr, now)
			if err != nil {
				FatalError("invalid --defer time: %v", err)
			}
			updates["defer_until"] = t
		}
		if clear, _ := cmd.Flags().GetBool("clear-defer"); clear {
			updates["defer_until"] = nil
		}
		if expr, _ := cmd.Flags().GetString("due"); expr != "" {
			t, err := timeparsing.ParseRelativeTime(expr, now)
			if err != nil {
				FatalError("invalid --due time: %v", err)
			}
			updates["due_at"] = t
		}

		if len(updates) == 0 {
			FatalError("nothing to update; pass at least one field flag")
		}

		actor := resolveActor()
		for _, id := range resolveIssueIDs(args) {
			if err := store.UpdateIssue(rootCtx, id, updates, actor); err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				updated, err := store.GetIssue(rootCtx, id)
				if err != nil {
					FatalError("%v", err)
				}
				outputJSON(updated)
			} else {
				Infof("Updated %s", ui.RenderID(id))
			}
		}
	},
}

func init() {
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("description", "d", "", "New description")
	updateCmd.Flags().String("design", "", "New design notes")
	updateCmd.Flags().String("acceptance", "", "New acceptance criteria")
	updateCmd.Flags().String("notes", "", "New notes")
	updateCmd.Flags().StringP("status", "s", "", "New status")
	updateCmd.Flags().IntP("priority", "p", 0, "New priority 0-4")
	updateCmd.Flags().StringP("type", "t", "", "New issue type")
	updateCmd.Flags().StringP("assignee", "a", "", "New assignee (empty to unassign)")
	updateCmd.Flags().Int("estimate", 0, "Estimated minutes")
	updateCmd.Flags().String("external-ref", "", "External tracker reference")
	updateCmd.Flags().Bool("pin", false, "Pin or unpin (--pin=false)")
	updateCmd.Flags().String("defer", "", "Hide from ready work until this time")
	updateCmd.Flags().Bool("clear-defer", false, "Clear the defer time")
	updateCmd.Flags().String("due", "", "Due time")
	rootCmd.AddCommand(updateCmd)
}
