package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/beadworks/beads/internal/types"
)

// runCreateForm fills the issue in with an interactive terminal form.
// Values already present (from args or a template) become the defaults.
func runCreateForm(issue *types.Issue) error {
	issueType := string(issue.IssueType)
	if issueType == "" {
		issueType = string(types.TypeTask)
	}
	priority := strconv.Itoa(issue.Priority)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&issue.Title).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("title is required")
					}
					if len(s) > 500 {
						return fmt.Errorf("title must be 500 characters or less")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Type").
				Options(
					huh.NewOption("task", string(types.TypeTask)),
					huh.NewOption("bug", string(types.TypeBug)),
					huh.NewOption("feature", string(types.TypeFeature)),
					huh.NewOption("epic", string(types.TypeEpic)),
					huh.NewOption("chore", string(types.TypeChore)),
				).
				Value(&issueType),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("P0 - critical", "0"),
					huh.NewOption("P1 - high", "1"),
					huh.NewOption("P2 - normal", "2"),
					huh.NewOption("P3 - low", "3"),
					huh.NewOption("P4 - someday", "4"),
				).
				Value(&priority),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Description").
				CharLimit(0).
				Value(&issue.Description),
			huh.NewText().
				Title("Acceptance criteria").
				CharLimit(0).
				Value(&issue.AcceptanceCriteria),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	issue.IssueType = types.IssueType(issueType)
	p, err := strconv.Atoi(priority)
	if err != nil {
		return fmt.Errorf("invalid priority %q", priority)
	}
	issue.Priority = p
	return nil
}
