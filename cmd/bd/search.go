package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search issue text",
	Long: `Search issue titles, descriptions, design notes, acceptance
criteria, and notes for the given terms. All list filter flags apply.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := strings.Join(args, " ")
		filter := buildIssueFilter(cmd)

		issues, err := store.SearchIssues(rootCtx, query, filter)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputIssueListJSON(issues)
			return
		}
		if len(issues) == 0 {
			Infof("No issues match %q.", query)
			return
		}
		if ui.IsTerminal() {
			fmt.Println(ui.RenderIssueTable(issues, ui.GetWidth()))
			return
		}
		printIssueLines(issues)
	},
}

func init() {
	addListFilterFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
