package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage issue comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <id> <text...>",
	Short: "Add a comment to an issue",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveIssueID(args[0])
		text := strings.Join(args[1:], " ")
		if strings.TrimSpace(text) == "" {
			FatalError("comment text is empty")
		}

		author, _ := cmd.Flags().GetString("author")
		if author == "" {
			author = resolveActor()
		}

		comment, err := store.AddIssueComment(rootCtx, id, author, text)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(comment)
			return
		}
		Infof("Added comment to %s", ui.RenderID(id))
	},
}

var commentsCmd = &cobra.Command{
	Use:   "comments <id>",
	Short: "List an issue's comments, oldest first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveIssueID(args[0])

		comments, err := store.GetIssueComments(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			if comments == nil {
				comments = []*types.Comment{}
			}
			outputJSON(comments)
			return
		}
		if len(comments) == 0 {
			Infof("%s has no comments.", id)
			return
		}
		for _, c := range comments {
			fmt.Printf("[%s] %s:\n", c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Author)
			fmt.Printf("  %s\n", strings.ReplaceAll(c.Text, "\n", "\n  "))
		}
	},
}

func init() {
	commentAddCmd.Flags().String("author", "", "Comment author (default: resolved actor)")
	commentCmd.AddCommand(commentAddCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(commentsCmd)
}
