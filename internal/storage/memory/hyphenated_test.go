package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/beadworks/beads/internal/types"
)

func TestHyphenatedPrefix(t *testing.T) {
	store := New("")
	defer store.Close()

	ctx := context.Background()

	// Set hyphenated issue_prefix
	if err := store.SetConfig(ctx, "issue_prefix", "my-app"); err != nil {
		t.Fatalf("failed to set issue_prefix: %v", err)
	}

	issue := &types.Issue{
		Title:     "Hyphenated issue",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if !strings.HasPrefix(issue.ID, "my-app-") {
		t.Errorf("Expected ID with prefix 'my-app-', got %q", issue.ID)
	}

	issue2 := &types.Issue{
		Title:     "Hyphenated issue 2",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue2, "test-user"); err != nil {
		t.Fatalf("CreateIssue 2 failed: %v", err)
	}
	if !strings.HasPrefix(issue2.ID, "my-app-") {
		t.Errorf("Expected ID with prefix 'my-app-', got %q", issue2.ID)
	}
	if issue2.ID == issue.ID {
		t.Errorf("Distinct issues must get distinct IDs, both got %q", issue.ID)
	}

	// The whole hyphenated prefix must match, not just a leading part.
	wrong := &types.Issue{
		ID:        "my-123abc",
		Title:     "Wrong prefix",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	err := store.CreateIssue(ctx, wrong, "test-user")
	if err == nil || !strings.Contains(err.Error(), "does not match configured prefix") {
		t.Errorf("Expected prefix mismatch error, got: %v", err)
	}

	// Children keep the hyphenated parent ID intact.
	childID, err := store.GetNextChildID(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetNextChildID failed: %v", err)
	}
	if childID != issue.ID+".1" {
		t.Errorf("Expected %q, got %q", issue.ID+".1", childID)
	}
}

func TestLoadHyphenatedIssues(t *testing.T) {
	store := New("")
	defer store.Close()

	issues := []*types.Issue{
		{
			ID:        "my-app-x9k2",
			Title:     "Parent",
			Status:    types.StatusOpen,
			Priority:  1,
			IssueType: types.TypeTask,
		},
		{
			ID:        "my-app-x9k2.5",
			Title:     "Child 5",
			Status:    types.StatusOpen,
			Priority:  1,
			IssueType: types.TypeTask,
		},
	}

	if err := store.LoadFromIssues(issues); err != nil {
		t.Fatalf("LoadFromIssues failed: %v", err)
	}

	// The child counter picks up from the highest loaded ordinal even
	// with hyphens in the prefix.
	ctx := context.Background()
	next, err := store.GetNextChildID(ctx, "my-app-x9k2")
	if err != nil {
		t.Fatalf("GetNextChildID failed: %v", err)
	}
	if next != "my-app-x9k2.6" {
		t.Errorf("Expected 'my-app-x9k2.6', got %q", next)
	}
}
