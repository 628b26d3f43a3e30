package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/ui"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage issue labels",
}

var labelAddCmd = &cobra.Command{
	Use:   "add <id> <label> [label...]",
	Short: "Add labels to an issue",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveIssueID(args[0])
		actor := resolveActor()
		for _, label := range args[1:] {
			if err := store.AddLabel(rootCtx, id, label, actor); err != nil {
				FatalError("%v", err)
			}
		}
		printLabels(id)
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:     "remove <id> <label> [label...]",
	Aliases: []string{"rm"},
	Short:   "Remove labels from an issue",
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveIssueID(args[0])
		actor := resolveActor()
		for _, label := range args[1:] {
			if err := store.RemoveLabel(rootCtx, id, label, actor); err != nil {
				FatalError("%v", err)
			}
		}
		printLabels(id)
	},
}

var labelListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List an issue's labels",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printLabels(resolveIssueID(args[0]))
	},
}

func printLabels(id string) {
	labels, err := store.GetLabels(rootCtx, id)
	if err != nil {
		FatalError("%v", err)
	}
	if jsonOutput {
		if labels == nil {
			labels = []string{}
		}
		outputJSON(map[string]interface{}{"issue_id": id, "labels": labels})
		return
	}
	if len(labels) == 0 {
		Infof("%s has no labels.", id)
		return
	}
	fmt.Printf("%s:", ui.RenderID(id))
	for _, label := range labels {
		fmt.Printf(" %s", label)
	}
	fmt.Println()
}

func init() {
	labelCmd.AddCommand(labelAddCmd)
	labelCmd.AddCommand(labelRemoveCmd)
	labelCmd.AddCommand(labelListCmd)
	rootCmd.AddCommand(labelCmd)
}
