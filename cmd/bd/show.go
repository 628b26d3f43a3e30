package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"view"},
	Short:   "Show an issue in full",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveIssueID(args[0])

		issue, err := store.GetIssue(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}
		if issue == nil {
			FatalError("issue not found: %s", id)
		}

		if jsonOutput {
			outputJSON(issue)
			return
		}

		width := ui.GetWidth()
		fmt.Printf("%s  %s\n", ui.RenderID(issue.ID), issue.Title)
		fmt.Printf("%s · %s · %s", ui.RenderStatus(issue.Status), ui.RenderPriority(issue.Priority), issue.IssueType)
		if issue.Assignee != "" {
			fmt.Printf(" · assigned to %s", issue.Assignee)
		}
		fmt.Println()
		if len(issue.Labels) > 0 {
			fmt.Printf("labels: %s\n", strings.Join(issue.Labels, ", "))
		}
		printTimestamps(issue)

		printSection("Description", issue.Description, width)
		printSection("Design", issue.Design, width)
		printSection("Acceptance criteria", issue.AcceptanceCriteria, width)
		printSection("Notes", issue.Notes, width)

		if blocked, blockers, err := store.IsBlocked(rootCtx, id); err == nil && blocked {
			fmt.Printf("\nBlocked by: %s\n", strings.Join(blockers, ", "))
		}
		if len(issue.Dependencies) > 0 {
			fmt.Println("\nDependencies:")
			for _, dep := range issue.Dependencies {
				fmt.Printf("  → %s (%s)\n", dep.DependsOnID, dep.Type)
			}
		}
		if dependents, err := store.GetDependents(rootCtx, id); err == nil && len(dependents) > 0 {
			fmt.Println("\nDepended on by:")
			for _, d := range dependents {
				fmt.Printf("  ← %s  %s\n", d.ID, d.Title)
			}
		}

		if len(issue.Comments) > 0 {
			fmt.Printf("\nComments (%d):\n", len(issue.Comments))
			for _, c := range issue.Comments {
				fmt.Printf("  [%s] %s: %s\n", c.CreatedAt.Local().Format("2006-01-02 15:04"), c.Author, c.Text)
			}
		}

		if verboseFlag {
			if events, err := store.GetEvents(rootCtx, id, 5); err == nil && len(events) > 0 {
				fmt.Println("\nRecent activity:")
				for _, ev := range events {
					fmt.Printf("  [%s] %s by %s\n", ev.CreatedAt.Local().Format("2006-01-02 15:04"), ev.EventType, ev.Actor)
				}
			}
		}
	},
}

func printSection(title, body string, width int) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Printf("\n%s:\n", title)
	if ui.IsTerminal() {
		fmt.Println(ui.RenderMarkdown(body, width))
	} else {
		fmt.Println(body)
	}
}

func printTimestamps(issue *types.Issue) {
	fmt.Printf("created %s", issue.CreatedAt.Local().Format(time.RFC3339))
	if issue.CreatedBy != "" {
		fmt.Printf(" by %s", issue.CreatedBy)
	}
	if issue.ClosedAt != nil {
		fmt.Printf(" · closed %s", issue.ClosedAt.Local().Format(time.RFC3339))
		if issue.CloseReason != "" {
			fmt.Printf(" (%s)", issue.CloseReason)
		}
	}
	if issue.DeferUntil != nil {
		fmt.Printf(" · deferred until %s", issue.DeferUntil.Local().Format("2006-01-02 15:04"))
	}
	if issue.DueAt != nil {
		fmt.Printf(" · due %s", issue.DueAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(showCmd)
}
