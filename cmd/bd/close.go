package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/ui"
)

var closeCmd = &cobra.Command{
	Use:   "close <id> [id...]",
	Short: "Close one or more issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		if reason == "" {
			reason = "Closed"
		}
		session, _ := cmd.Flags().GetString("session")
		if session == "" {
			session = os.Getenv("BD_SESSION_ID")
		}

		actor := resolveActor()
		for _, id := range resolveIssueIDs(args) {
			if err := store.CloseIssue(rootCtx, id, reason, actor, session); err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				issue, err := store.GetIssue(rootCtx, id)
				if err != nil {
					FatalError("%v", err)
				}
				outputJSON(issue)
			} else {
				Infof("Closed %s (%s)", ui.RenderID(id), reason)
			}
		}
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id> [id...]",
	Short: "Reopen closed issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		actor := resolveActor()
		for _, id := range resolveIssueIDs(args) {
			if err := store.ReopenIssue(rootCtx, id, actor); err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				issue, err := store.GetIssue(rootCtx, id)
				if err != nil {
					FatalError("%v", err)
				}
				outputJSON(issue)
			} else {
				Infof("Reopened %s", ui.RenderID(id))
			}
		}
	},
}

func init() {
	closeCmd.Flags().StringP("reason", "r", "", "Reason for closing (default \"Closed\")")
	closeCmd.Flags().String("session", "", "Session identifier for the audit trail")
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reopenCmd)
}
