package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/timeparsing"
	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create [title]",
	Aliases: []string{"new"},
	Short:   "Create a new issue",
	Long: `Create a new issue. The ID is derived from the content hash and the
workspace prefix (e.g. bd-1a2b3c); pass --parent to create a
hierarchical child like bd-1a2b3c.1 instead.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		issue := &types.Issue{}

		templateName, _ := cmd.Flags().GetString("template")
		if templateName != "" {
			if err := applyTemplate(issue, templateName); err != nil {
				FatalError("%v", err)
			}
		}

		if len(args) > 0 {
			issue.Title = strings.Join(args, " ")
		}

		interactive, _ := cmd.Flags().GetBool("interactive")
		if interactive && ui.IsTerminal() {
			if err := runCreateForm(issue); err != nil {
				FatalError("%v", err)
			}
		}

		if d, _ := cmd.Flags().GetString("description"); d != "" {
			issue.Description = d
		}
		if d, _ := cmd.Flags().GetString("design"); d != "" {
			issue.Design = d
		}
		if a, _ := cmd.Flags().GetString("acceptance"); a != "" {
			issue.AcceptanceCriteria = a
		}
		if n, _ := cmd.Flags().GetString("notes"); n != "" {
			issue.Notes = n
		}
		if s, _ := cmd.Flags().GetString("spec"); s != "" {
			issue.SpecID = s
		}
		if a, _ := cmd.Flags().GetString("assignee"); a != "" {
			issue.Assignee = a
		}
		if r, _ := cmd.Flags().GetString("external-ref"); r != "" {
			issue.ExternalRef = &r
		}
		if t, _ := cmd.Flags().GetString("type"); t != "" {
			issueType := types.IssueType(t).Normalize()
			if !issueType.IsValid() {
				FatalError("invalid issue type %q (bug, feature, task, epic, chore)", t)
			}
			issue.IssueType = issueType
		} else if issue.IssueType == "" {
			issue.IssueType = types.TypeTask
		}
		// The flag default only applies when no template set a priority.
		if cmd.Flags().Changed("priority") || templateName == "" {
			p, _ := cmd.Flags().GetInt("priority")
			issue.Priority = p
		}
		if labels, _ := cmd.Flags().GetStringSlice("label"); len(labels) > 0 {
			issue.Labels = append(issue.Labels, labels...)
		}
		if e, _ := cmd.Flags().GetBool("ephemeral"); e {
			issue.Ephemeral = true
		}

		now := time.Now()
		if expr, _ := cmd.Flags().GetString("defer"); expr != "" {
			t, err := timeparsing.ParseRelativeTime(expr, now)
			if err != nil {
				FatalError("invalid --defer time: %v", err)
			}
			issue.DeferUntil = &t
		}
		if expr, _ := cmd.Flags().GetString("due"); expr != "" {
			t, err := timeparsing.ParseRelativeTime(expr, now)
			if err != nil {
				FatalError("invalid --due time: %v", err)
			}
			issue.DueAt = &t
		}

		if issue.Title == "" {
			FatalError("a title is required (pass it as an argument or use --interactive)")
		}

		issue.CreatedBy = resolveActor()

		if parentArg, _ := cmd.Flags().GetString("parent"); parentArg != "" {
			parentID := resolveIssueID(parentArg)
			childID, err := store.GetNextChildID(rootCtx, parentID)
			if err != nil {
				FatalError("%v", err)
			}
			issue.ID = childID
			issue.Dependencies = append(issue.Dependencies, &types.Dependency{
				DependsOnID: parentID,
				Type:        types.DepParentChild,
				CreatedBy:   issue.CreatedBy,
			})
		}

		if err := store.CreateIssue(rootCtx, issue, resolveActor()); err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			created, err := store.GetIssue(rootCtx, issue.ID)
			if err != nil {
				FatalError("%v", err)
			}
			outputJSON(created)
			return
		}
		Infof("Created issue %s", ui.RenderID(issue.ID))
		if !quietFlag {
			fmt.Printf("  %s · P%d · %s\n", issue.IssueType, issue.Priority, issue.Title)
		}
	},
}

func init() {
	createCmd.Flags().StringP("description", "d", "", "Issue description")
	createCmd.Flags().String("design", "", "Design notes")
	createCmd.Flags().String("acceptance", "", "Acceptance criteria")
	createCmd.Flags().String("notes", "", "Freeform notes")
	createCmd.Flags().String("spec", "", "Spec reference ID")
	createCmd.Flags().StringP("type", "t", "", "Issue type: bug, feature, task, epic, chore (default task)")
	createCmd.Flags().IntP("priority", "p", 2, "Priority 0-4 (0 = highest)")
	createCmd.Flags().StringSliceP("label", "l", nil, "Labels (repeatable or comma-separated)")
	createCmd.Flags().StringP("assignee", "a", "", "Assignee")
	createCmd.Flags().String("external-ref", "", "External tracker reference")
	createCmd.Flags().String("parent", "", "Parent issue ID; creates a hierarchical child")
	createCmd.Flags().String("template", "", "Pre-fill fields from .beads/templates/<name>.toml")
	createCmd.Flags().String("defer", "", "Hide from ready work until this time (e.g. '2d', 'next monday')")
	createCmd.Flags().String("due", "", "Due time (e.g. '2025-03-01', 'in 2 weeks')")
	createCmd.Flags().Bool("ephemeral", false, "Local-only wisp; never exported to the log")
	createCmd.Flags().BoolP("interactive", "i", false, "Fill in fields with an interactive form")
	rootCmd.AddCommand(createCmd)
}
