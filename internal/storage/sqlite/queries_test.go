package sqlite

import (
	"testing"

	"github.com/beadworks/beads/internal/types"
)

func TestListIssuesFilters(t *testing.T) {
	env := newTestEnv(t)
	bug := env.CreateBug("Login crash", 0)
	chore := env.CreateIssueWithAssignee("Rotate keys", "kim")
	epic := env.CreateEpic("Q3 platform work")
	env.Close(chore, "done")
	if err := env.Store.AddLabel(env.Ctx, bug.ID, "frontend", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.AddLabel(env.Ctx, bug.ID, "urgent", "tester"); err != nil {
		t.Fatal(err)
	}

	open := types.StatusOpen
	byStatus, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{Status: &open}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 2 {
		t.Errorf("open issues = %d, want 2", len(byStatus))
	}

	p0 := 0
	byPriority, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{Priority: &p0}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(byPriority) != 1 || byPriority[0].ID != bug.ID {
		t.Errorf("priority filter = %v", byPriority)
	}

	epicType := types.TypeEpic
	byType, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{IssueType: &epicType}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 1 || byType[0].ID != epic.ID {
		t.Errorf("type filter = %v", byType)
	}

	kim := "kim"
	byAssignee, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{Assignee: &kim}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(byAssignee) != 1 || byAssignee[0].ID != chore.ID {
		t.Errorf("assignee filter = %v", byAssignee)
	}

	unassigned, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{NoAssignee: true}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(unassigned) != 2 {
		t.Errorf("unassigned = %d issues, want 2", len(unassigned))
	}

	// All listed labels must be present.
	both, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{Labels: []string{"frontend", "urgent"}}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 1 || both[0].ID != bug.ID {
		t.Errorf("labels AND filter = %v", both)
	}
	none, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{Labels: []string{"frontend", "backend"}}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("labels AND with a missing label matched %v", none)
	}

	// LabelsAny matches on any one of them.
	any, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{LabelsAny: []string{"frontend", "backend"}}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(any) != 1 || any[0].ID != bug.ID {
		t.Errorf("labels ANY filter = %v", any)
	}

	limited, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{Limit: 2}, types.SortCreated, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit 2 returned %d issues", len(limited))
	}
}

func TestListIssuesSorting(t *testing.T) {
	env := newTestEnv(t)
	b := env.CreateIssueWith("Banana", types.StatusOpen, 3, types.TypeTask)
	a := env.CreateIssueWith("apple", types.StatusOpen, 0, types.TypeTask)
	c := env.CreateIssueWith("Cherry", types.StatusOpen, 1, types.TypeTask)

	byPriority, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{}, types.SortPriority, false)
	if err != nil {
		t.Fatal(err)
	}
	if byPriority[0].ID != a.ID || byPriority[1].ID != c.ID || byPriority[2].ID != b.ID {
		t.Errorf("priority order = %s %s %s", byPriority[0].Title, byPriority[1].Title, byPriority[2].Title)
	}

	reversed, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{}, types.SortPriority, true)
	if err != nil {
		t.Fatal(err)
	}
	if reversed[0].ID != b.ID {
		t.Errorf("reversed priority order starts with %s", reversed[0].Title)
	}

	// Title sort is case-insensitive.
	byTitle, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{}, types.SortTitle, false)
	if err != nil {
		t.Fatal(err)
	}
	if byTitle[0].ID != a.ID || byTitle[1].ID != b.ID || byTitle[2].ID != c.ID {
		t.Errorf("title order = %s %s %s", byTitle[0].Title, byTitle[1].Title, byTitle[2].Title)
	}

	if _, err := env.Store.ListIssues(env.Ctx, types.IssueFilter{}, "favorite", false); err == nil {
		t.Error("invalid sort key should be rejected")
	}
}

func TestSearchIssues(t *testing.T) {
	env := newTestEnv(t)
	hit := env.CreateIssue("Importer drops comments")
	if err := env.Store.UpdateIssue(env.Ctx, hit.ID, map[string]interface{}{"description": "repro in the exporter"}, "tester"); err != nil {
		t.Fatal(err)
	}
	env.CreateIssue("Unrelated chore")

	byTitle, err := env.Store.SearchIssues(env.Ctx, "importer", types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(byTitle) != 1 || byTitle[0].ID != hit.ID {
		t.Errorf("title search = %v", byTitle)
	}

	byDescription, err := env.Store.SearchIssues(env.Ctx, "exporter", types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(byDescription) != 1 || byDescription[0].ID != hit.ID {
		t.Errorf("description search = %v", byDescription)
	}

	byID, err := env.Store.SearchIssues(env.Ctx, hit.ID, types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(byID) != 1 || byID[0].ID != hit.ID {
		t.Errorf("ID search = %v", byID)
	}

	miss, err := env.Store.SearchIssues(env.Ctx, "zeppelin", types.IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(miss) != 0 {
		t.Errorf("no-match search = %v", miss)
	}

	// The filter intersects with the text match.
	p0 := 0
	filtered, err := env.Store.SearchIssues(env.Ctx, "importer", types.IssueFilter{Priority: &p0})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 0 {
		t.Errorf("search with non-matching filter = %v", filtered)
	}
}

func TestLabelLifecycle(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Tagged")

	if err := env.Store.AddLabel(env.Ctx, issue.ID, "backend", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Store.AddLabel(env.Ctx, issue.ID, "urgent", "tester"); err != nil {
		t.Fatal(err)
	}
	// Adding the same label twice is a no-op, not an error.
	if err := env.Store.AddLabel(env.Ctx, issue.ID, "backend", "tester"); err != nil {
		t.Fatal(err)
	}

	labels, err := env.Store.GetLabels(env.Ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 2 {
		t.Errorf("labels = %v, want 2", labels)
	}

	if err := env.Store.RemoveLabel(env.Ctx, issue.ID, "backend", "tester"); err != nil {
		t.Fatal(err)
	}
	labels, err = env.Store.GetLabels(env.Ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(labels) != 1 || labels[0] != "urgent" {
		t.Errorf("labels after remove = %v", labels)
	}

	other := env.CreateIssue("Plain")
	byIssue, err := env.Store.GetLabelsForIssues(env.Ctx, []string{issue.ID, other.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(byIssue[issue.ID]) != 1 || len(byIssue[other.ID]) != 0 {
		t.Errorf("GetLabelsForIssues = %v", byIssue)
	}
}

func TestIssueComments(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Discussed")

	first, err := env.Store.AddIssueComment(env.Ctx, issue.ID, "kim", "first observation")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == 0 || first.IssueID != issue.ID || first.Author != "kim" {
		t.Errorf("returned comment = %+v", first)
	}
	if _, err := env.Store.AddIssueComment(env.Ctx, issue.ID, "sam", "second observation"); err != nil {
		t.Fatal(err)
	}

	comments, err := env.Store.GetIssueComments(env.Ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(comments))
	}
	// Oldest first.
	if comments[0].Text != "first observation" || comments[1].Text != "second observation" {
		t.Errorf("order = %q then %q", comments[0].Text, comments[1].Text)
	}

	if _, err := env.Store.AddIssueComment(env.Ctx, "bd-000000", "kim", "lost"); err == nil {
		t.Error("comment on a missing issue should fail")
	}
}

func TestGetEvents(t *testing.T) {
	env := newTestEnv(t)
	issue := env.CreateIssue("Audited")
	env.Close(issue, "done")

	events, err := env.Store.GetEvents(env.Ctx, issue.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) < 2 {
		t.Fatalf("events = %d, want at least created and closed", len(events))
	}
	// Newest first: the close precedes the creation in the listing.
	if events[0].EventType != types.EventClosed {
		t.Errorf("events[0] = %s, want closed", events[0].EventType)
	}
	if events[len(events)-1].EventType != types.EventCreated {
		t.Errorf("oldest event = %s, want created", events[len(events)-1].EventType)
	}

	limited, err := env.Store.GetEvents(env.Ctx, issue.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d events", len(limited))
	}
}

func TestGetStatistics(t *testing.T) {
	env := newTestEnv(t)
	env.CreateBug("Crash", 0)
	waiting := env.CreateIssue("Waiting")
	blocker := env.CreateIssue("Blocker")
	env.AddDep(waiting, blocker)
	done := env.CreateIssue("Done")
	env.Close(done, "shipped")
	gone := env.CreateIssue("Gone")
	if err := env.Store.TombstoneIssue(env.Ctx, gone.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}

	stats, err := env.Store.GetStatistics(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalIssues != 4 {
		t.Errorf("TotalIssues = %d, want 4 (tombstones excluded)", stats.TotalIssues)
	}
	if stats.OpenIssues != 3 {
		t.Errorf("OpenIssues = %d, want 3", stats.OpenIssues)
	}
	if stats.ClosedIssues != 1 {
		t.Errorf("ClosedIssues = %d", stats.ClosedIssues)
	}
	if stats.TombstoneIssues != 1 {
		t.Errorf("TombstoneIssues = %d", stats.TombstoneIssues)
	}
	// The bug and the blocker are workable; the dependent is not.
	if stats.ReadyIssues != 2 {
		t.Errorf("ReadyIssues = %d, want 2", stats.ReadyIssues)
	}
	if stats.ByType["bug"] != 1 || stats.ByType["task"] != 3 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if stats.ByPriority[0] != 1 || stats.ByPriority[2] != 3 {
		t.Errorf("ByPriority = %v", stats.ByPriority)
	}
}
