package sqlite

import (
	"context"
	"strings"
	"testing"

	"github.com/beadworks/beads/internal/idgen"
	"github.com/beadworks/beads/internal/types"
)

func TestCreateIssueGeneratesHashID(t *testing.T) {
	env := newTestEnv(t)

	issue := &types.Issue{Title: "Wire up the importer"}
	if err := env.Store.CreateIssue(env.Ctx, issue, "tester"); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(issue.ID, "bd-") {
		t.Errorf("ID = %q, want bd- prefix", issue.ID)
	}
	if hash := strings.TrimPrefix(issue.ID, "bd-"); len(hash) < idgen.MinLength {
		t.Errorf("ID hash %q shorter than minimum %d", hash, idgen.MinLength)
	}
	if issue.ContentHash == "" {
		t.Error("ContentHash not populated")
	}
	if issue.Status != types.StatusOpen {
		t.Errorf("Status = %q, want open default", issue.Status)
	}
	if issue.IssueType != types.TypeTask {
		t.Errorf("IssueType = %q, want task default", issue.IssueType)
	}
}

func TestCreateIssueRequiresPrefixConfig(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, t.TempDir()+"/bare.db")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	err = store.CreateIssue(ctx, &types.Issue{Title: "no prefix yet"}, "tester")
	if err == nil || !strings.Contains(err.Error(), "issue_prefix") {
		t.Errorf("expected issue_prefix error, got %v", err)
	}
}

func TestCreateIssueValidation(t *testing.T) {
	env := newTestEnv(t)

	if err := env.Store.CreateIssue(env.Ctx, &types.Issue{}, "tester"); err == nil {
		t.Error("empty title should fail validation")
	}
	long := strings.Repeat("x", 501)
	if err := env.Store.CreateIssue(env.Ctx, &types.Issue{Title: long}, "tester"); err == nil {
		t.Error("title over 500 chars should fail validation")
	}
	if err := env.Store.CreateIssue(env.Ctx, &types.Issue{Title: "p", Priority: 7}, "tester"); err == nil {
		t.Error("priority outside 0-4 should fail validation")
	}
}

func TestGetIssueRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	created := &types.Issue{
		Title:       "Round trip",
		Description: "with a body",
		Priority:    0,
		IssueType:   types.TypeBug,
		Assignee:    "sam",
		Labels:      []string{"backend", "urgent"},
	}
	if err := env.Store.CreateIssue(env.Ctx, created, "tester"); err != nil {
		t.Fatal(err)
	}

	got, err := env.Store.GetIssue(env.Ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("GetIssue returned nil for existing issue")
	}
	if got.Title != created.Title || got.Description != created.Description {
		t.Errorf("text fields lost: %+v", got)
	}
	if got.Priority != 0 {
		t.Errorf("Priority = %d, want 0 preserved", got.Priority)
	}
	if got.Assignee != "sam" {
		t.Errorf("Assignee = %q", got.Assignee)
	}
	if len(got.Labels) != 2 {
		t.Errorf("Labels = %v", got.Labels)
	}

	missing, err := env.Store.GetIssue(env.Ctx, "bd-ffffff")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("GetIssue for unknown ID = %+v, want nil", missing)
	}
}

func TestUpdateIssueManagesClosedAt(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Lifecycle")

	if err := env.Store.UpdateIssue(env.Ctx, issue.ID, map[string]interface{}{"status": "closed"}, "tester"); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Store.GetIssue(env.Ctx, issue.ID)
	if got.Status != types.StatusClosed || got.ClosedAt == nil {
		t.Errorf("after close: status=%s closed_at=%v", got.Status, got.ClosedAt)
	}

	if err := env.Store.UpdateIssue(env.Ctx, issue.ID, map[string]interface{}{"status": "open"}, "tester"); err != nil {
		t.Fatal(err)
	}
	got, _ = env.Store.GetIssue(env.Ctx, issue.ID)
	if got.Status != types.StatusOpen || got.ClosedAt != nil {
		t.Errorf("after reopen via update: status=%s closed_at=%v", got.Status, got.ClosedAt)
	}
}

func TestUpdateIssueRejectsUnknownField(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Strict fields")

	err := env.Store.UpdateIssue(env.Ctx, issue.ID, map[string]interface{}{"favorite_color": "blue"}, "tester")
	if err == nil {
		t.Error("unknown column should be rejected")
	}
}

func TestCloseAndReopen(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Close me")

	if err := env.Store.CloseIssue(env.Ctx, issue.ID, "done", "tester", "sess-1"); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Store.GetIssue(env.Ctx, issue.ID)
	if got.Status != types.StatusClosed {
		t.Errorf("Status = %s", got.Status)
	}
	if got.ClosedAt == nil {
		t.Error("ClosedAt not set")
	}
	if got.CloseReason != "done" {
		t.Errorf("CloseReason = %q", got.CloseReason)
	}

	if err := env.Store.ReopenIssue(env.Ctx, issue.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	got, _ = env.Store.GetIssue(env.Ctx, issue.ID)
	if got.Status != types.StatusOpen || got.ClosedAt != nil {
		t.Errorf("after reopen: status=%s closed_at=%v", got.Status, got.ClosedAt)
	}
}

func TestTombstoneIssue(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Doomed")

	if err := env.Store.TombstoneIssue(env.Ctx, issue.ID, "mistake", "tester"); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Store.GetIssue(env.Ctx, issue.ID)
	if got.Status != types.StatusTombstone {
		t.Errorf("Status = %s", got.Status)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt not set")
	}

	// Hidden from default listings, visible when asked for.
	visible, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, i := range visible {
		if i.ID == issue.ID {
			t.Error("tombstone leaked into default listing")
		}
	}
	all, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{IncludeTombstones: true}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("IncludeTombstones listing has %d issues, want 1", len(all))
	}
}

func TestTombstoneIDStaysReserved(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Original")
	if err := env.Store.TombstoneIssue(env.Ctx, issue.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}

	err := env.Store.CreateIssue(env.Ctx, &types.Issue{ID: issue.ID, Title: "Reborn"}, "tester")
	if err == nil || !strings.Contains(err.Error(), "tombstone") {
		t.Errorf("reusing a tombstoned ID should fail, got %v", err)
	}
}

func TestDeleteIssueCascades(t *testing.T) {
	env := newTestEnv(t)
	a := env.CreateIssue("Keeper")
	b := env.CreateIssue("Goner")
	env.AddDep(a, b)
	if err := env.Store.AddLabel(env.Ctx, b.ID, "temp", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Store.AddIssueComment(env.Ctx, b.ID, "tester", "bye"); err != nil {
		t.Fatal(err)
	}

	if err := env.Store.DeleteIssue(env.Ctx, b.ID); err != nil {
		t.Fatal(err)
	}

	if got, _ := env.Store.GetIssue(env.Ctx, b.ID); got != nil {
		t.Error("issue still present after hard delete")
	}
	records, err := env.Store.GetDependencyRecords(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("edges to the deleted issue survive: %v", records)
	}
}

func TestChildIDGeneration(t *testing.T) {
	env := newTestEnv(t)
	parent := env.CreateIssue("Parent")

	first, err := env.Store.GetNextChildID(env.Ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first != parent.ID+".1" {
		t.Errorf("first child = %q, want %s.1", first, parent.ID)
	}
	if err := env.Store.CreateIssue(env.Ctx, &types.Issue{ID: first, Title: "Child one"}, "tester"); err != nil {
		t.Fatal(err)
	}

	second, err := env.Store.GetNextChildID(env.Ctx, parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second != parent.ID+".2" {
		t.Errorf("second child = %q, want %s.2", second, parent.ID)
	}
}

func TestChildIDDepthLimit(t *testing.T) {
	env := newTestEnv(t)
	parent := env.CreateIssue("Root")

	id := parent.ID
	for depth := 1; depth <= idgen.MaxDepth; depth++ {
		child, err := env.Store.GetNextChildID(env.Ctx, id)
		if err != nil {
			t.Fatalf("depth %d: %v", depth, err)
		}
		if err := env.Store.CreateIssue(env.Ctx, &types.Issue{ID: child, Title: "Nested"}, "tester"); err != nil {
			t.Fatalf("depth %d: %v", depth, err)
		}
		id = child
	}

	if _, err := env.Store.GetNextChildID(env.Ctx, id); err == nil {
		t.Errorf("child below depth %d should be refused", idgen.MaxDepth)
	}
}

func TestExplicitIDNeedsLiveParent(t *testing.T) {
	env := newTestEnv(t)

	err := env.Store.CreateIssue(env.Ctx, &types.Issue{ID: "bd-abcdef.1", Title: "Orphan"}, "tester")
	if err == nil || !strings.Contains(err.Error(), "parent") {
		t.Errorf("child of a missing parent should fail, got %v", err)
	}
}
