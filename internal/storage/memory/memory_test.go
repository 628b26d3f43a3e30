package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/beadworks/beads/internal/config"
	"github.com/beadworks/beads/internal/types"
)

func setupTestMemory(t *testing.T) *MemoryStorage {
	t.Helper()

	store := New("")
	ctx := context.Background()

	// Set issue_prefix config
	if err := store.SetConfig(ctx, "issue_prefix", "bd"); err != nil {
		t.Fatalf("failed to set issue_prefix: %v", err)
	}

	return store
}

func TestCreateIssue(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	issue := &types.Issue{
		Title:       "Test issue",
		Description: "Test description",
		Status:      types.StatusOpen,
		Priority:    1,
		IssueType:   types.TypeTask,
	}

	err := store.CreateIssue(ctx, issue, "test-user")
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	if issue.ID == "" {
		t.Error("Issue ID should be set")
	}

	if !strings.HasPrefix(issue.ID, "bd-") {
		t.Errorf("Issue ID should carry the configured prefix, got %q", issue.ID)
	}

	if !issue.CreatedAt.After(time.Time{}) {
		t.Error("CreatedAt should be set")
	}

	if !issue.UpdatedAt.After(time.Time{}) {
		t.Error("UpdatedAt should be set")
	}

	if issue.ContentHash == "" {
		t.Error("ContentHash should be set")
	}
}

func TestCreateIssueValidation(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	tests := []struct {
		name    string
		issue   *types.Issue
		wantErr bool
	}{
		{
			name: "valid issue",
			issue: &types.Issue{
				Title:     "Valid",
				Status:    types.StatusOpen,
				Priority:  2,
				IssueType: types.TypeTask,
			},
			wantErr: false,
		},
		{
			name: "missing title",
			issue: &types.Issue{
				Status:    types.StatusOpen,
				Priority:  2,
				IssueType: types.TypeTask,
			},
			wantErr: true,
		},
		{
			name: "invalid priority",
			issue: &types.Issue{
				Title:     "Test",
				Status:    types.StatusOpen,
				Priority:  10,
				IssueType: types.TypeTask,
			},
			wantErr: true,
		},
		{
			name: "invalid status",
			issue: &types.Issue{
				Title:     "Test",
				Status:    "invalid",
				Priority:  2,
				IssueType: types.TypeTask,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateIssue(ctx, tt.issue, "test-user")
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateIssue() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateIssueExplicitID(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Explicit IDs with the configured prefix are accepted as-is.
	issue := &types.Issue{
		ID:        "bd-feline",
		Title:     "Explicit ID",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if issue.ID != "bd-feline" {
		t.Errorf("Explicit ID should be preserved, got %q", issue.ID)
	}

	// Wrong prefix is rejected.
	wrong := &types.Issue{
		ID:        "other-123",
		Title:     "Wrong prefix",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	err := store.CreateIssue(ctx, wrong, "test-user")
	if err == nil || !strings.Contains(err.Error(), "does not match configured prefix") {
		t.Errorf("Expected prefix mismatch error, got: %v", err)
	}

	// Hierarchical IDs need a live parent.
	orphan := &types.Issue{
		ID:        "bd-missing.1",
		Title:     "Orphan child",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	err = store.CreateIssue(ctx, orphan, "test-user")
	if err == nil || !strings.Contains(err.Error(), "parent issue bd-missing does not exist") {
		t.Errorf("Expected missing parent error, got: %v", err)
	}

	// Duplicate IDs are rejected.
	dup := &types.Issue{
		ID:        "bd-feline",
		Title:     "Duplicate",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	err = store.CreateIssue(ctx, dup, "test-user")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected already exists error, got: %v", err)
	}

	// IDs freed by a tombstone stay reserved.
	if err := store.TombstoneIssue(ctx, "bd-feline", "cleanup", "test-user"); err != nil {
		t.Fatalf("TombstoneIssue failed: %v", err)
	}
	reuse := &types.Issue{
		ID:        "bd-feline",
		Title:     "Reuse attempt",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	err = store.CreateIssue(ctx, reuse, "test-user")
	if err == nil || !strings.Contains(err.Error(), "tombstone") {
		t.Errorf("Expected tombstone collision error, got: %v", err)
	}
}

func TestCreateIssueRequiresPrefix(t *testing.T) {
	store := New("")
	defer store.Close()

	ctx := context.Background()
	issue := &types.Issue{
		Title:     "No prefix configured",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}

	err := store.CreateIssue(ctx, issue, "test-user")
	if err == nil || !strings.Contains(err.Error(), "database not initialized") {
		t.Errorf("Expected not-initialized error, got: %v", err)
	}
}

func TestGetIssue(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	original := &types.Issue{
		Title:              "Test issue",
		Description:        "Description",
		Design:             "Design notes",
		AcceptanceCriteria: "Acceptance",
		Notes:              "Notes",
		Status:             types.StatusOpen,
		Priority:           1,
		IssueType:          types.TypeFeature,
		Assignee:           "alice",
	}

	err := store.CreateIssue(ctx, original, "test-user")
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Retrieve the issue
	retrieved, err := store.GetIssue(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}

	if retrieved == nil {
		t.Fatal("GetIssue returned nil")
	}

	if retrieved.ID != original.ID {
		t.Errorf("ID mismatch: got %v, want %v", retrieved.ID, original.ID)
	}

	if retrieved.Title != original.Title {
		t.Errorf("Title mismatch: got %v, want %v", retrieved.Title, original.Title)
	}

	if retrieved.Description != original.Description {
		t.Errorf("Description mismatch: got %v, want %v", retrieved.Description, original.Description)
	}

	if retrieved.Assignee != original.Assignee {
		t.Errorf("Assignee mismatch: got %v, want %v", retrieved.Assignee, original.Assignee)
	}

	// Mutating the returned copy must not reach the store.
	retrieved.Title = "mutated"
	again, err := store.GetIssue(ctx, original.ID)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if again.Title != original.Title {
		t.Error("GetIssue should return a copy, not the stored issue")
	}
}

func TestGetIssueNotFound(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	issue, err := store.GetIssue(ctx, "bd-999")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}

	if issue != nil {
		t.Errorf("Expected nil for non-existent issue, got %v", issue)
	}
}

func TestCreateIssues(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		issues  []*types.Issue
		wantErr bool
	}{
		{
			name:    "empty batch",
			issues:  []*types.Issue{},
			wantErr: false,
		},
		{
			name: "single issue",
			issues: []*types.Issue{
				{Title: "Single issue", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
			},
			wantErr: false,
		},
		{
			name: "multiple issues",
			issues: []*types.Issue{
				{Title: "Issue 1", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
				{Title: "Issue 2", Status: types.StatusInProgress, Priority: 2, IssueType: types.TypeBug},
				{Title: "Issue 3", Status: types.StatusOpen, Priority: 3, IssueType: types.TypeFeature},
			},
			wantErr: false,
		},
		{
			name: "validation error - missing title",
			issues: []*types.Issue{
				{Title: "Valid issue", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
				{Title: "", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
			},
			wantErr: true,
		},
		{
			name: "duplicate ID within batch error",
			issues: []*types.Issue{
				{ID: "bd-dupe", Title: "First", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
				{ID: "bd-dupe", Title: "Second", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
			},
			wantErr: true,
		},
		{
			name: "parent within batch",
			issues: []*types.Issue{
				{ID: "bd-batchparent", Title: "Parent", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeEpic},
				{ID: "bd-batchparent.1", Title: "Child", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create fresh storage for each test
			testStore := setupTestMemory(t)
			defer testStore.Close()

			err := testStore.CreateIssues(ctx, tt.issues, "test-user")
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateIssues() error = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && len(tt.issues) > 0 {
				// Verify all issues got IDs
				for i, issue := range tt.issues {
					if issue.ID == "" {
						t.Errorf("issue %d: ID should be set", i)
					}
					if !issue.CreatedAt.After(time.Time{}) {
						t.Errorf("issue %d: CreatedAt should be set", i)
					}
				}
			}
		})
	}
}

func TestCreateIssuesResolvesIntraBatchEdges(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	issues := []*types.Issue{
		{
			ID:        "bd-edge1",
			Title:     "Depends on batch sibling",
			Status:    types.StatusOpen,
			Priority:  1,
			IssueType: types.TypeTask,
			Dependencies: []*types.Dependency{
				{IssueID: "bd-edge1", DependsOnID: "bd-edge2", Type: types.DepBlocks},
			},
		},
		{
			ID:        "bd-edge2",
			Title:     "Batch sibling",
			Status:    types.StatusOpen,
			Priority:  1,
			IssueType: types.TypeTask,
		},
	}

	if err := store.CreateIssues(ctx, issues, "test-user"); err != nil {
		t.Fatalf("CreateIssues failed: %v", err)
	}

	deps, err := store.GetDependencyRecords(ctx, "bd-edge1")
	if err != nil {
		t.Fatalf("GetDependencyRecords failed: %v", err)
	}
	if len(deps) != 1 || deps[0].DependsOnID != "bd-edge2" {
		t.Errorf("Intra-batch edge not stored: %v", deps)
	}
}

func TestUpdateIssue(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create an issue
	issue := &types.Issue{
		Title:     "Original",
		Status:    types.StatusOpen,
		Priority:  2,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Update it
	updates := map[string]interface{}{
		"title":    "Updated",
		"priority": 1,
		"status":   string(types.StatusInProgress),
	}
	if err := store.UpdateIssue(ctx, issue.ID, updates, "test-user"); err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}

	// Retrieve and verify
	updated, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}

	if updated.Title != "Updated" {
		t.Errorf("Title not updated: got %v", updated.Title)
	}

	if updated.Priority != 1 {
		t.Errorf("Priority not updated: got %v", updated.Priority)
	}

	if updated.Status != types.StatusInProgress {
		t.Errorf("Status not updated: got %v", updated.Status)
	}

	// Unknown fields are rejected before anything is written.
	err = store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"bogus": "x"}, "test-user")
	if err == nil || !strings.Contains(err.Error(), "invalid field for update") {
		t.Errorf("Expected invalid field error, got: %v", err)
	}

	// Out-of-range priority is rejected.
	err = store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"priority": 9}, "test-user")
	if err == nil || !strings.Contains(err.Error(), "priority must be between 0 and 4") {
		t.Errorf("Expected priority range error, got: %v", err)
	}
}

func TestUpdateIssueClosedAt(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	issue := &types.Issue{
		Title:     "Lifecycle",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Moving to closed via update fills closed_at.
	if err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"status": "closed"}, "test-user"); err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	closed, _ := store.GetIssue(ctx, issue.ID)
	if closed.ClosedAt == nil {
		t.Fatal("ClosedAt should be set when status moves to closed")
	}

	// Moving away from closed clears it again.
	if err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"status": "open"}, "test-user"); err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	reopened, _ := store.GetIssue(ctx, issue.ID)
	if reopened.ClosedAt != nil {
		t.Error("ClosedAt should be cleared when status leaves closed")
	}
}

func TestCloseIssue(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create an issue
	issue := &types.Issue{
		Title:     "Test",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Close it
	if err := store.CloseIssue(ctx, issue.ID, "Completed", "test-user", "session-1"); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	// Verify
	closed, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}

	if closed.Status != types.StatusClosed {
		t.Errorf("Status should be closed, got %v", closed.Status)
	}

	if closed.ClosedAt == nil {
		t.Error("ClosedAt should be set")
	}

	if closed.CloseReason != "Completed" {
		t.Errorf("CloseReason mismatch: got %v", closed.CloseReason)
	}

	if closed.ClosedBySession != "session-1" {
		t.Errorf("ClosedBySession mismatch: got %v", closed.ClosedBySession)
	}

	// Closing again fails.
	err = store.CloseIssue(ctx, issue.ID, "Again", "test-user", "")
	if err == nil || !strings.Contains(err.Error(), "already closed") {
		t.Errorf("Expected already closed error, got: %v", err)
	}
}

func TestReopenIssue(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	issue := &types.Issue{
		Title:     "Test",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Reopening an open issue fails.
	err := store.ReopenIssue(ctx, issue.ID, "test-user")
	if err == nil || !strings.Contains(err.Error(), "is not closed") {
		t.Errorf("Expected not closed error, got: %v", err)
	}

	if err := store.CloseIssue(ctx, issue.ID, "Done", "test-user", ""); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}
	if err := store.ReopenIssue(ctx, issue.ID, "test-user"); err != nil {
		t.Fatalf("ReopenIssue failed: %v", err)
	}

	reopened, err := store.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}

	if reopened.Status != types.StatusOpen {
		t.Errorf("Status should be open, got %v", reopened.Status)
	}
	if reopened.ClosedAt != nil {
		t.Error("ClosedAt should be cleared")
	}
	if reopened.CloseReason != "" {
		t.Errorf("CloseReason should be cleared, got %q", reopened.CloseReason)
	}
}

func TestSearchIssues(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create test issues
	issues := []*types.Issue{
		{Title: "Bug fix", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeBug},
		{Title: "New feature", Status: types.StatusInProgress, Priority: 2, IssueType: types.TypeFeature},
		{Title: "Task", Status: types.StatusOpen, Priority: 3, IssueType: types.TypeTask},
	}

	for _, issue := range issues {
		if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}

	tests := []struct {
		name     string
		query    string
		filter   types.IssueFilter
		wantSize int
	}{
		{
			name:     "all issues",
			query:    "",
			filter:   types.IssueFilter{},
			wantSize: 3,
		},
		{
			name:     "search by title",
			query:    "feature",
			filter:   types.IssueFilter{},
			wantSize: 1,
		},
		{
			name:     "search is case-insensitive",
			query:    "FEATURE",
			filter:   types.IssueFilter{},
			wantSize: 1,
		},
		{
			name:     "filter by status",
			query:    "",
			filter:   types.IssueFilter{Status: func() *types.Status { s := types.StatusOpen; return &s }()},
			wantSize: 2,
		},
		{
			name:     "filter by priority",
			query:    "",
			filter:   types.IssueFilter{Priority: func() *int { p := 1; return &p }()},
			wantSize: 1,
		},
		{
			name:     "filter by type",
			query:    "",
			filter:   types.IssueFilter{IssueType: func() *types.IssueType { t := types.TypeBug; return &t }()},
			wantSize: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.SearchIssues(ctx, tt.query, tt.filter)
			if err != nil {
				t.Fatalf("SearchIssues failed: %v", err)
			}

			if len(results) != tt.wantSize {
				t.Errorf("Expected %d results, got %d", tt.wantSize, len(results))
			}
		})
	}
}

func TestListIssuesSortOrder(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().Add(-3 * time.Hour)
	issues := []*types.Issue{
		{ID: "bd-aa", Title: "middle", Status: types.StatusOpen, Priority: 2, IssueType: types.TypeTask, CreatedAt: base, UpdatedAt: base},
		{ID: "bd-bb", Title: "newest", Status: types.StatusOpen, Priority: 0, IssueType: types.TypeTask, CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)},
		{ID: "bd-cc", Title: "oldest", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask, CreatedAt: base.Add(-2 * time.Hour), UpdatedAt: base.Add(-2 * time.Hour)},
	}
	for _, issue := range issues {
		if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}

	// Default sort is newest first.
	listed, err := store.ListIssues(ctx, types.IssueFilter{}, types.SortCreated, false)
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if len(listed) != 3 || listed[0].ID != "bd-bb" || listed[2].ID != "bd-cc" {
		ids := make([]string, len(listed))
		for i, is := range listed {
			ids[i] = is.ID
		}
		t.Errorf("created sort order wrong: %v", ids)
	}

	// Priority sorts P0 first; reverse flips it.
	byPriority, err := store.ListIssues(ctx, types.IssueFilter{}, types.SortPriority, false)
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if byPriority[0].ID != "bd-bb" || byPriority[2].ID != "bd-aa" {
		t.Errorf("priority sort order wrong: %v, %v", byPriority[0].ID, byPriority[2].ID)
	}

	reversed, err := store.ListIssues(ctx, types.IssueFilter{}, types.SortPriority, true)
	if err != nil {
		t.Fatalf("ListIssues failed: %v", err)
	}
	if reversed[0].ID != "bd-aa" {
		t.Errorf("reversed priority sort should start with P2, got %v", reversed[0].ID)
	}

	// Unknown sort keys are rejected.
	if _, err := store.ListIssues(ctx, types.IssueFilter{}, "bogus", false); err == nil {
		t.Error("expected error for invalid sort key")
	}
}

func TestDependencies(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create two issues
	issue1 := &types.Issue{
		Title:     "Issue 1",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	issue2 := &types.Issue{
		Title:     "Issue 2",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}

	if err := store.CreateIssue(ctx, issue1, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if err := store.CreateIssue(ctx, issue2, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Add dependency
	dep := &types.Dependency{
		IssueID:     issue1.ID,
		DependsOnID: issue2.ID,
		Type:        types.DepBlocks,
	}
	if err := store.AddDependency(ctx, dep, "test-user"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	// Get dependencies
	deps, err := store.GetDependencies(ctx, issue1.ID)
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}

	if len(deps) != 1 {
		t.Errorf("Expected 1 dependency, got %d", len(deps))
	}

	if deps[0].ID != issue2.ID {
		t.Errorf("Dependency mismatch: got %v", deps[0].ID)
	}

	// Get dependents
	dependents, err := store.GetDependents(ctx, issue2.ID)
	if err != nil {
		t.Fatalf("GetDependents failed: %v", err)
	}

	if len(dependents) != 1 {
		t.Errorf("Expected 1 dependent, got %d", len(dependents))
	}

	// Remove dependency
	if err := store.RemoveDependency(ctx, issue1.ID, issue2.ID, "test-user"); err != nil {
		t.Fatalf("RemoveDependency failed: %v", err)
	}

	// Verify removed
	deps, err = store.GetDependencies(ctx, issue1.ID)
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}

	if len(deps) != 0 {
		t.Errorf("Expected 0 dependencies after removal, got %d", len(deps))
	}

	// Removing again fails.
	err = store.RemoveDependency(ctx, issue1.ID, issue2.ID, "test-user")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Expected missing dependency error, got: %v", err)
	}
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	a := &types.Issue{ID: "bd-cyca", Title: "A", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	b := &types.Issue{ID: "bd-cycb", Title: "B", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	c := &types.Issue{ID: "bd-cycc", Title: "C", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	for _, issue := range []*types.Issue{a, b, c} {
		if err := store.CreateIssue(ctx, issue, "test"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}

	// Self-edges are refused outright.
	err := store.AddDependency(ctx, &types.Dependency{IssueID: a.ID, DependsOnID: a.ID, Type: types.DepBlocks}, "test")
	if err == nil || !strings.Contains(err.Error(), "cannot depend on itself") {
		t.Errorf("Expected self-dependency error, got: %v", err)
	}

	// a -> b -> c, then closing the loop c -> a must fail.
	if err := store.AddDependency(ctx, &types.Dependency{IssueID: a.ID, DependsOnID: b.ID, Type: types.DepBlocks}, "test"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	if err := store.AddDependency(ctx, &types.Dependency{IssueID: b.ID, DependsOnID: c.ID, Type: types.DepBlocks}, "test"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	err = store.AddDependency(ctx, &types.Dependency{IssueID: c.ID, DependsOnID: a.ID, Type: types.DepBlocks}, "test")
	if err == nil || !strings.Contains(err.Error(), "would create a cycle") {
		t.Errorf("Expected cycle error, got: %v", err)
	}

	// The cycle check walks every edge type, not just blocking ones.
	err = store.AddDependency(ctx, &types.Dependency{IssueID: c.ID, DependsOnID: a.ID, Type: types.DepRelated}, "test")
	if err == nil || !strings.Contains(err.Error(), "would create a cycle") {
		t.Errorf("Expected cycle error for related edge, got: %v", err)
	}
}

func TestLabels(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create an issue
	issue := &types.Issue{
		Title:     "Test",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Add labels
	if err := store.AddLabel(ctx, issue.ID, "bug", "test-user"); err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}
	if err := store.AddLabel(ctx, issue.ID, "critical", "test-user"); err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}

	// Adding an existing label is a no-op.
	if err := store.AddLabel(ctx, issue.ID, "bug", "test-user"); err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}

	// Get labels
	labels, err := store.GetLabels(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetLabels failed: %v", err)
	}

	if len(labels) != 2 {
		t.Errorf("Expected 2 labels, got %d", len(labels))
	}

	// Sorted alphabetically
	if labels[0] != "bug" || labels[1] != "critical" {
		t.Errorf("Labels should be sorted, got %v", labels)
	}

	// Remove label
	if err := store.RemoveLabel(ctx, issue.ID, "bug", "test-user"); err != nil {
		t.Fatalf("RemoveLabel failed: %v", err)
	}

	// Verify
	labels, err = store.GetLabels(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetLabels failed: %v", err)
	}

	if len(labels) != 1 {
		t.Errorf("Expected 1 label after removal, got %d", len(labels))
	}
}

func TestComments(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create an issue
	issue := &types.Issue{
		Title:     "Test",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Add comment
	comment, err := store.AddIssueComment(ctx, issue.ID, "alice", "First comment")
	if err != nil {
		t.Fatalf("AddIssueComment failed: %v", err)
	}

	if comment == nil {
		t.Fatal("Comment should not be nil")
	}

	if comment.ID == 0 {
		t.Error("Comment ID should be assigned")
	}

	if _, err := store.AddIssueComment(ctx, issue.ID, "bob", "Second comment"); err != nil {
		t.Fatalf("AddIssueComment failed: %v", err)
	}

	// Get comments, oldest first
	comments, err := store.GetIssueComments(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssueComments failed: %v", err)
	}

	if len(comments) != 2 {
		t.Fatalf("Expected 2 comments, got %d", len(comments))
	}

	if comments[0].Text != "First comment" {
		t.Errorf("Comment text mismatch: got %v", comments[0].Text)
	}

	if comments[1].Author != "bob" {
		t.Errorf("Comment author mismatch: got %v", comments[1].Author)
	}
}

func TestGetEvents(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	issue := &types.Issue{
		Title:     "Audited",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if err := store.UpdateIssue(ctx, issue.ID, map[string]interface{}{"status": "in_progress"}, "test-user"); err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	if err := store.CloseIssue(ctx, issue.ID, "Done", "test-user", ""); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	events, err := store.GetEvents(ctx, issue.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	// Newest first.
	want := []types.EventType{types.EventClosed, types.EventStatusChanged, types.EventCreated}
	for i, eventType := range want {
		if events[i].EventType != eventType {
			t.Errorf("event %d: got %v, want %v", i, events[i].EventType, eventType)
		}
	}

	limited, err := store.GetEvents(ctx, issue.ID, 2)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(limited) != 2 || limited[0].EventType != types.EventClosed {
		t.Errorf("Limit not applied: %d events", len(limited))
	}
}

func TestLoadFromIssues(t *testing.T) {
	store := New("")
	defer store.Close()

	issues := []*types.Issue{
		{
			ID:           "bd-1",
			Title:        "Issue 1",
			Status:       types.StatusOpen,
			Priority:     1,
			IssueType:    types.TypeTask,
			Labels:       []string{"bug", "critical"},
			Dependencies: []*types.Dependency{{IssueID: "bd-1", DependsOnID: "bd-2", Type: types.DepBlocks}},
		},
		{
			ID:        "bd-2",
			Title:     "Issue 2",
			Status:    types.StatusOpen,
			Priority:  1,
			IssueType: types.TypeTask,
		},
	}

	if err := store.LoadFromIssues(issues); err != nil {
		t.Fatalf("LoadFromIssues failed: %v", err)
	}

	// Verify issues loaded
	ctx := context.Background()
	loaded, err := store.GetIssue(ctx, "bd-1")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}

	if loaded == nil {
		t.Fatal("Issue should be loaded")
	}

	if loaded.Title != "Issue 1" {
		t.Errorf("Title mismatch: got %v", loaded.Title)
	}

	// Verify labels loaded
	if len(loaded.Labels) != 2 {
		t.Errorf("Expected 2 labels, got %d", len(loaded.Labels))
	}

	// Verify dependencies loaded
	deps, err := store.GetDependencyRecords(ctx, "bd-1")
	if err != nil {
		t.Fatalf("GetDependencyRecords failed: %v", err)
	}
	if len(deps) != 1 || deps[0].DependsOnID != "bd-2" {
		t.Errorf("Expected edge bd-1 -> bd-2, got %v", deps)
	}

	// Nothing is dirty after a load: the content came from the log.
	dirty, err := store.GetDirtyIssues(ctx)
	if err != nil {
		t.Fatalf("GetDirtyIssues failed: %v", err)
	}
	if len(dirty) != 0 {
		t.Errorf("Expected no dirty issues after load, got %v", dirty)
	}
}

func TestLoadFromIssuesEdgeOrder(t *testing.T) {
	store := New("")
	defer store.Close()

	// The edge source appears before its target in the record stream.
	issues := []*types.Issue{
		{
			ID:           "bd-first",
			Title:        "First",
			Status:       types.StatusOpen,
			Priority:     1,
			IssueType:    types.TypeTask,
			Dependencies: []*types.Dependency{{IssueID: "bd-first", DependsOnID: "bd-later", Type: types.DepBlocks}},
		},
		{
			ID:        "bd-later",
			Title:     "Later",
			Status:    types.StatusOpen,
			Priority:  1,
			IssueType: types.TypeTask,
		},
	}

	if err := store.LoadFromIssues(issues); err != nil {
		t.Fatalf("LoadFromIssues failed: %v", err)
	}

	ctx := context.Background()
	deps, err := store.GetDependencyRecords(ctx, "bd-first")
	if err != nil {
		t.Fatalf("GetDependencyRecords failed: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("Edge should resolve regardless of record order, got %d edges", len(deps))
	}
}

func TestGetAllIssues(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create issues
	titles := []string{"Issue A", "Issue B", "Issue C"}
	var firstID string
	for i, title := range titles {
		issue := &types.Issue{
			Title:     title,
			Status:    types.StatusOpen,
			Priority:  1,
			IssueType: types.TypeTask,
		}
		if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
		if i == 0 {
			firstID = issue.ID
		}
	}

	if err := store.AddLabel(ctx, firstID, "flagged", "test-user"); err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}

	// Get all
	all := store.GetAllIssues()
	if len(all) != 3 {
		t.Errorf("Expected 3 issues, got %d", len(all))
	}

	// Verify sorted by ID
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Error("Issues should be sorted by ID")
		}
	}

	// The flush path carries collections.
	for _, issue := range all {
		if issue.ID == firstID && len(issue.Labels) != 1 {
			t.Errorf("Expected label on %s in flush output, got %v", firstID, issue.Labels)
		}
	}
}

func TestDirtyTracking(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	first := &types.Issue{Title: "First", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	second := &types.Issue{Title: "Second", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	for _, issue := range []*types.Issue{first, second} {
		if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}

	dirty, err := store.GetDirtyIssues(ctx)
	if err != nil {
		t.Fatalf("GetDirtyIssues failed: %v", err)
	}
	if len(dirty) != 2 || dirty[0] != first.ID || dirty[1] != second.ID {
		t.Fatalf("Expected [%s %s], got %v", first.ID, second.ID, dirty)
	}

	// Re-marking moves an issue to the end of the order.
	if err := store.UpdateIssue(ctx, first.ID, map[string]interface{}{"priority": 0}, "test-user"); err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	dirty, err = store.GetDirtyIssues(ctx)
	if err != nil {
		t.Fatalf("GetDirtyIssues failed: %v", err)
	}
	if len(dirty) != 2 || dirty[0] != second.ID || dirty[1] != first.ID {
		t.Fatalf("Expected [%s %s] after re-mark, got %v", second.ID, first.ID, dirty)
	}

	// Clear dirty
	if err := store.ClearDirtyIssues(ctx, dirty); err != nil {
		t.Fatalf("ClearDirtyIssues failed: %v", err)
	}

	dirty, err = store.GetDirtyIssues(ctx)
	if err != nil {
		t.Fatalf("GetDirtyIssues failed: %v", err)
	}

	if len(dirty) != 0 {
		t.Errorf("Expected 0 dirty issues after clear, got %d", len(dirty))
	}
}

func TestExportHashes(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	hash, err := store.GetExportHash(ctx, "bd-never")
	if err != nil {
		t.Fatalf("GetExportHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("Expected empty hash for never-exported issue, got %q", hash)
	}

	if err := store.SetExportHash(ctx, "bd-one", "abc"); err != nil {
		t.Fatalf("SetExportHash failed: %v", err)
	}
	if err := store.BatchSetExportHashes(ctx, map[string]string{"bd-two": "def", "bd-three": "ghi"}); err != nil {
		t.Fatalf("BatchSetExportHashes failed: %v", err)
	}

	hash, err = store.GetExportHash(ctx, "bd-two")
	if err != nil {
		t.Fatalf("GetExportHash failed: %v", err)
	}
	if hash != "def" {
		t.Errorf("Expected def, got %q", hash)
	}

	if err := store.ClearAllExportHashes(ctx); err != nil {
		t.Fatalf("ClearAllExportHashes failed: %v", err)
	}
	hash, _ = store.GetExportHash(ctx, "bd-one")
	if hash != "" {
		t.Errorf("Expected empty hash after clear, got %q", hash)
	}
}

func TestStatistics(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create issues with different statuses
	issues := []*types.Issue{
		{Title: "Open 1", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
		{Title: "Open 2", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
		{Title: "In Progress", Status: types.StatusInProgress, Priority: 1, IssueType: types.TypeTask},
		{Title: "To Close", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
	}

	for _, issue := range issues {
		if err := store.CreateIssue(ctx, issue, "test-user"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}
	if err := store.CloseIssue(ctx, issues[3].ID, "Done", "test-user", ""); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}

	if stats.TotalIssues != 4 {
		t.Errorf("Expected 4 total issues, got %d", stats.TotalIssues)
	}
	if stats.OpenIssues != 2 {
		t.Errorf("Expected 2 open issues, got %d", stats.OpenIssues)
	}
	if stats.InProgressIssues != 1 {
		t.Errorf("Expected 1 in-progress issue, got %d", stats.InProgressIssues)
	}
	if stats.ClosedIssues != 1 {
		t.Errorf("Expected 1 closed issue, got %d", stats.ClosedIssues)
	}
	if stats.ByType["task"] != 4 {
		t.Errorf("Expected 4 tasks in ByType, got %d", stats.ByType["task"])
	}
	if stats.ByPriority[1] != 4 {
		t.Errorf("Expected 4 P1 issues in ByPriority, got %d", stats.ByPriority[1])
	}
}

func TestStatistics_BlockedAndReadyCounts(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// blocker:       open, blocks others, itself ready
	// edgeBlocked:   open but behind an open blocker
	// statusBlocked: carries the blocked status, no edges
	// ready1:        open with no blockers
	// ready2:        open behind a blocker that gets closed
	// closedBlocker: closed, releases its dependents
	blocker := &types.Issue{Title: "Blocker", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	edgeBlocked := &types.Issue{Title: "Edge blocked", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	statusBlocked := &types.Issue{Title: "Status blocked", Status: types.StatusBlocked, Priority: 1, IssueType: types.TypeTask}
	ready1 := &types.Issue{Title: "Ready 1", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	ready2 := &types.Issue{Title: "Ready 2 (closed blocker)", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	closedBlocker := &types.Issue{Title: "Closed Blocker", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}

	for _, issue := range []*types.Issue{blocker, edgeBlocked, statusBlocked, ready1, ready2, closedBlocker} {
		if err := store.CreateIssue(ctx, issue, "test"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}

	if err := store.AddDependency(ctx, &types.Dependency{
		IssueID:     edgeBlocked.ID,
		DependsOnID: blocker.ID,
		Type:        types.DepBlocks,
	}, "test"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	if err := store.AddDependency(ctx, &types.Dependency{
		IssueID:     ready2.ID,
		DependsOnID: closedBlocker.ID,
		Type:        types.DepBlocks,
	}, "test"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	if err := store.CloseIssue(ctx, closedBlocker.ID, "Done", "test", ""); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}

	// BlockedIssues counts the status bucket, not graph state. The ready
	// count excludes edgeBlocked but includes ready2 once its blocker
	// closed.
	if stats.BlockedIssues != 1 {
		t.Errorf("Expected 1 blocked-status issue, got %d", stats.BlockedIssues)
	}
	if stats.ReadyIssues != 3 {
		t.Errorf("Expected 3 ready issues, got %d", stats.ReadyIssues)
	}
	if stats.TotalIssues != 6 {
		t.Errorf("Expected 6 total issues, got %d", stats.TotalIssues)
	}
	if stats.OpenIssues != 4 {
		t.Errorf("Expected 4 open issues, got %d", stats.OpenIssues)
	}
	if stats.ClosedIssues != 1 {
		t.Errorf("Expected 1 closed issue, got %d", stats.ClosedIssues)
	}

	ready, err := store.GetReadyWork(ctx, types.WorkFilter{})
	if err != nil {
		t.Fatalf("GetReadyWork failed: %v", err)
	}
	if len(ready) != stats.ReadyIssues {
		t.Errorf("Ready count disagrees with GetReadyWork: %d vs %d", stats.ReadyIssues, len(ready))
	}
}

func TestStatistics_TombstonesExcludedFromTotal(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	deletedAt := time.Now()

	issues := []*types.Issue{
		{Title: "Open Issue", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
		{Title: "To Close", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask},
		{Title: "Tombstone Issue", Status: types.StatusTombstone, Priority: 1, IssueType: types.TypeTask, DeletedAt: &deletedAt, DeletedBy: "test"},
	}

	for _, issue := range issues {
		if err := store.CreateIssue(ctx, issue, "test"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}

	if err := store.CloseIssue(ctx, issues[1].ID, "Done", "test", ""); err != nil {
		t.Fatalf("CloseIssue failed: %v", err)
	}

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}

	// Tombstone should be excluded from total but counted separately
	if stats.TotalIssues != 2 {
		t.Errorf("Expected 2 total issues (excluding tombstone), got %d", stats.TotalIssues)
	}
	if stats.TombstoneIssues != 1 {
		t.Errorf("Expected 1 tombstone issue, got %d", stats.TombstoneIssues)
	}
	if stats.OpenIssues != 1 {
		t.Errorf("Expected 1 open issue, got %d", stats.OpenIssues)
	}
	if stats.ClosedIssues != 1 {
		t.Errorf("Expected 1 closed issue, got %d", stats.ClosedIssues)
	}
}

func TestTombstoneIssue(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Create an issue
	issue := &types.Issue{
		Title:     "Test Issue",
		Status:    types.StatusOpen,
		Priority:  1,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(ctx, issue, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	issueID := issue.ID

	if err := store.TombstoneIssue(ctx, issueID, "test deletion", "test-actor"); err != nil {
		t.Fatalf("TombstoneIssue failed: %v", err)
	}

	// Verify the issue is now a tombstone
	updated, err := store.GetIssue(ctx, issueID)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}

	if updated.Status != types.StatusTombstone {
		t.Errorf("Expected status=%s, got %s", types.StatusTombstone, updated.Status)
	}
	if updated.DeletedAt == nil {
		t.Error("Expected DeletedAt to be set")
	}
	if updated.DeletedBy != "test-actor" {
		t.Errorf("Expected DeletedBy=test-actor, got %s", updated.DeletedBy)
	}
	if updated.DeleteReason != "test deletion" {
		t.Errorf("Expected DeleteReason='test deletion', got %s", updated.DeleteReason)
	}
	if updated.OriginalType != string(types.TypeTask) {
		t.Errorf("Expected OriginalType=%s, got %s", types.TypeTask, updated.OriginalType)
	}

	// Tombstoning a tombstone is a no-op.
	if err := store.TombstoneIssue(ctx, issueID, "again", "other-actor"); err != nil {
		t.Fatalf("TombstoneIssue on tombstone should be a no-op, got: %v", err)
	}
	again, _ := store.GetIssue(ctx, issueID)
	if again.DeletedBy != "test-actor" {
		t.Errorf("Repeat tombstone should not overwrite DeletedBy, got %s", again.DeletedBy)
	}
}

func TestTombstoneIssue_NotFound(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	err := store.TombstoneIssue(ctx, "nonexistent", "reason", "test")
	if err == nil {
		t.Fatal("Expected error for non-existent issue")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}
}

func TestDeleteIssue(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	keeper := &types.Issue{Title: "Keeper", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	doomed := &types.Issue{Title: "Doomed", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	for _, issue := range []*types.Issue{keeper, doomed} {
		if err := store.CreateIssue(ctx, issue, "test"); err != nil {
			t.Fatalf("CreateIssue failed: %v", err)
		}
	}
	if err := store.AddDependency(ctx, &types.Dependency{
		IssueID:     keeper.ID,
		DependsOnID: doomed.ID,
		Type:        types.DepBlocks,
	}, "test"); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	if err := store.DeleteIssue(ctx, doomed.ID); err != nil {
		t.Fatalf("DeleteIssue failed: %v", err)
	}

	gone, err := store.GetIssue(ctx, doomed.ID)
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if gone != nil {
		t.Error("Deleted issue should be gone")
	}

	// Incoming edges are cascaded away with the issue.
	deps, err := store.GetDependencyRecords(ctx, keeper.ID)
	if err != nil {
		t.Fatalf("GetDependencyRecords failed: %v", err)
	}
	if len(deps) != 0 {
		t.Errorf("Expected edge to deleted issue to be removed, got %v", deps)
	}

	if err := store.DeleteIssue(ctx, doomed.ID); err == nil {
		t.Error("Expected error deleting a missing issue")
	}
}

func TestConfigOperations(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Set config
	if err := store.SetConfig(ctx, "test_key", "test_value"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}

	// Get config
	value, err := store.GetConfig(ctx, "test_key")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}

	if value != "test_value" {
		t.Errorf("Expected test_value, got %v", value)
	}

	// Get all config
	allConfig, err := store.GetAllConfig(ctx)
	if err != nil {
		t.Fatalf("GetAllConfig failed: %v", err)
	}

	if len(allConfig) < 1 {
		t.Error("Expected at least 1 config entry")
	}

	// Delete config
	if err := store.DeleteConfig(ctx, "test_key"); err != nil {
		t.Fatalf("DeleteConfig failed: %v", err)
	}

	value, err = store.GetConfig(ctx, "test_key")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}

	if value != "" {
		t.Errorf("Expected empty value after delete, got %v", value)
	}
}

func TestMetadataOperations(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()

	// Set metadata
	if err := store.SetMetadata(ctx, "hash", "abc123"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	// Get metadata
	value, err := store.GetMetadata(ctx, "hash")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}

	if value != "abc123" {
		t.Errorf("Expected abc123, got %v", value)
	}
}

func TestThreadSafety(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	const numGoroutines = 10

	// Run concurrent creates
	done := make(chan bool)
	for i := 0; i < numGoroutines; i++ {
		go func(n int) {
			issue := &types.Issue{
				Title:     "Concurrent",
				Status:    types.StatusOpen,
				Priority:  1,
				IssueType: types.TypeTask,
			}
			store.CreateIssue(ctx, issue, "test-user")
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	// Verify all created
	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}

	if stats.TotalIssues != numGoroutines {
		t.Errorf("Expected %d issues, got %d", numGoroutines, stats.TotalIssues)
	}
}

func TestGetNextChildID_ConfigurableMaxDepth(t *testing.T) {
	if err := config.Initialize(); err != nil {
		t.Fatalf("failed to initialize config: %v", err)
	}

	// Ensure config is reset even if test fails or panics
	t.Cleanup(func() {
		config.Set("hierarchy.max-depth", 3)
	})

	store := setupTestMemory(t)
	defer store.Close()
	ctx := context.Background()

	// Create a chain of issues up to depth 3
	issues := []struct {
		id    string
		title string
	}{
		{"bd-depth", "Root"},
		{"bd-depth.1", "Level 1"},
		{"bd-depth.1.1", "Level 2"},
		{"bd-depth.1.1.1", "Level 3"},
	}

	for _, issue := range issues {
		iss := &types.Issue{
			ID:          issue.id,
			Title:       issue.title,
			Description: "Test issue",
			Status:      types.StatusOpen,
			Priority:    1,
			IssueType:   types.TypeTask,
		}
		if err := store.CreateIssue(ctx, iss, "test"); err != nil {
			t.Fatalf("failed to create issue %s: %v", issue.id, err)
		}
	}

	// With the default max-depth (3), a depth-4 child is refused.
	config.Set("hierarchy.max-depth", 3)
	_, err := store.GetNextChildID(ctx, "bd-depth.1.1.1")
	if err == nil {
		t.Errorf("expected error for depth 4 with max-depth=3, got nil")
	}
	if err != nil && err.Error() != "cannot create child of bd-depth.1.1.1: hierarchy depth limit is 3" {
		t.Errorf("unexpected error message: %v", err)
	}

	// With max-depth=5 the same child is allowed.
	config.Set("hierarchy.max-depth", 5)
	childID, err := store.GetNextChildID(ctx, "bd-depth.1.1.1")
	if err != nil {
		t.Errorf("depth 4 should be allowed with max-depth=5, got error: %v", err)
	}
	expectedID := "bd-depth.1.1.1.1"
	if childID != expectedID {
		t.Errorf("expected %s, got %s", expectedID, childID)
	}

	// Lowering max-depth to 2 refuses depth 3.
	config.Set("hierarchy.max-depth", 2)
	_, err = store.GetNextChildID(ctx, "bd-depth.1.1")
	if err == nil {
		t.Errorf("expected error for depth 3 with max-depth=2, got nil")
	}
	if err != nil && err.Error() != "cannot create child of bd-depth.1.1: hierarchy depth limit is 2" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestGetNextChildID_CounterNeverResets(t *testing.T) {
	store := setupTestMemory(t)
	defer store.Close()

	ctx := context.Background()
	parent := &types.Issue{ID: "bd-par", Title: "Parent", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeEpic}
	if err := store.CreateIssue(ctx, parent, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	first, err := store.GetNextChildID(ctx, "bd-par")
	if err != nil {
		t.Fatalf("GetNextChildID failed: %v", err)
	}
	if first != "bd-par.1" {
		t.Fatalf("Expected bd-par.1, got %s", first)
	}

	child := &types.Issue{ID: first, Title: "Child", Status: types.StatusOpen, Priority: 1, IssueType: types.TypeTask}
	if err := store.CreateIssue(ctx, child, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if err := store.DeleteIssue(ctx, first); err != nil {
		t.Fatalf("DeleteIssue failed: %v", err)
	}

	// The deleted child's number is not reused.
	second, err := store.GetNextChildID(ctx, "bd-par")
	if err != nil {
		t.Fatalf("GetNextChildID failed: %v", err)
	}
	if second != "bd-par.2" {
		t.Errorf("Expected bd-par.2 after deletion, got %s", second)
	}

	_, err = store.GetNextChildID(ctx, "bd-gone")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Expected missing parent error, got: %v", err)
	}
}
