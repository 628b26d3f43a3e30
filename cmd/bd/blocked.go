package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List issues blocked by unresolved dependencies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		blocked, err := store.GetBlockedIssues(rootCtx, buildWorkFilter(cmd))
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			if blocked == nil {
				blocked = []*types.BlockedIssue{}
			}
			outputJSON(blocked)
			return
		}
		if len(blocked) == 0 {
			Infof("No blocked issues.")
			return
		}
		for _, b := range blocked {
			fmt.Printf("%s  %s %s  %s\n", ui.RenderID(b.ID), ui.RenderStatus(b.Status), ui.RenderPriority(b.Priority), b.Title)
			fmt.Printf("    blocked by %d: %s\n", b.BlockedByCount, strings.Join(b.BlockedBy, ", "))
		}
	},
}

func init() {
	addWorkFilterFlags(blockedCmd)
	rootCmd.AddCommand(blockedCmd)
}
