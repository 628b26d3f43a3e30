package main

import (
	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/ui"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id> [id...]",
	Short: "Delete issues (tombstone by default)",
	Long: `Delete one or more issues.

By default this tombstones: the issue stays in the log with
status=tombstone so collaborators converge on the delete when they
import. --hard removes the row entirely and relies on the next export
to drop it from the log; use it only for issues that never left this
clone.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		hard, _ := cmd.Flags().GetBool("hard")
		force, _ := cmd.Flags().GetBool("force")

		ids := resolveIssueIDs(args)
		if hard && !force && ui.IsTerminal() && !jsonOutput {
			if !ui.PromptYesNo("Hard delete cannot be undone. Continue?", false) {
				Infof("Aborted.")
				return
			}
		}

		actor := resolveActor()
		for _, id := range ids {
			if hard {
				if err := store.DeleteIssue(rootCtx, id); err != nil {
					FatalError("%v", err)
				}
				Infof("Deleted %s", id)
				continue
			}
			if err := store.TombstoneIssue(rootCtx, id, reason, actor); err != nil {
				FatalError("%v", err)
			}
			Infof("Deleted %s (tombstoned; propagates via the log)", id)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"deleted": ids, "hard": hard})
		}
	},
}

func init() {
	deleteCmd.Flags().String("reason", "", "Reason recorded on the tombstone")
	deleteCmd.Flags().Bool("hard", false, "Hard-delete instead of tombstoning")
	deleteCmd.Flags().BoolP("force", "f", false, "Skip the hard-delete confirmation")
	rootCmd.AddCommand(deleteCmd)
}
