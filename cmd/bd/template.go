package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/beadworks/beads/internal/types"
)

// issueTemplate is the TOML shape of .beads/templates/<name>.toml.
// Empty fields leave the issue untouched so flags can fill them in.
type issueTemplate struct {
	Title              string   `toml:"title"`
	Description        string   `toml:"description"`
	Design             string   `toml:"design"`
	AcceptanceCriteria string   `toml:"acceptance_criteria"`
	Notes              string   `toml:"notes"`
	IssueType          string   `toml:"issue_type"`
	Priority           *int     `toml:"priority"`
	Assignee           string   `toml:"assignee"`
	Labels             []string `toml:"labels"`
}

// applyTemplate pre-fills issue from a workspace template.
func applyTemplate(issue *types.Issue, name string) error {
	name = strings.TrimSuffix(name, ".toml")
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid template name %q", name)
	}
	path := filepath.Join(beadsDir, "templates", name+".toml")

	var tmpl issueTemplate
	if _, err := toml.DecodeFile(path, &tmpl); err != nil {
		if os.IsNotExist(err) {
			available := listTemplates()
			if len(available) > 0 {
				return fmt.Errorf("template %q not found (available: %s)", name, strings.Join(available, ", "))
			}
			return fmt.Errorf("template %q not found and %s has no templates", name, filepath.Join(beadsDir, "templates"))
		}
		return fmt.Errorf("failed to parse template %s: %w", path, err)
	}

	issue.Title = tmpl.Title
	issue.Description = tmpl.Description
	issue.Design = tmpl.Design
	issue.AcceptanceCriteria = tmpl.AcceptanceCriteria
	issue.Notes = tmpl.Notes
	issue.Assignee = tmpl.Assignee
	issue.Labels = append(issue.Labels, tmpl.Labels...)
	if tmpl.IssueType != "" {
		issueType := types.IssueType(tmpl.IssueType).Normalize()
		if !issueType.IsValid() {
			return fmt.Errorf("template %s has invalid issue_type %q", path, tmpl.IssueType)
		}
		issue.IssueType = issueType
	}
	if tmpl.Priority != nil {
		if *tmpl.Priority < 0 || *tmpl.Priority > 4 {
			return fmt.Errorf("template %s has invalid priority %d", path, *tmpl.Priority)
		}
		issue.Priority = *tmpl.Priority
	}
	return nil
}

// listTemplates names the templates available in this workspace.
func listTemplates() []string {
	matches, err := filepath.Glob(filepath.Join(beadsDir, "templates", "*.toml"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".toml"))
	}
	return names
}
