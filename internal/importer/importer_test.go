package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beadworks/beads/internal/storage/sqlite"
	"github.com/beadworks/beads/internal/types"
)

func newTestStore(t *testing.T) (*sqlite.SQLiteStorage, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SetConfig(ctx, "issue_prefix", "bd"); err != nil {
		t.Fatalf("Failed to set prefix: %v", err)
	}
	return store, ctx
}

func testIssue(id, title string) *types.Issue {
	now := time.Now()
	return &types.Issue{
		ID:        id,
		Title:     title,
		Status:    types.StatusOpen,
		Priority:  2,
		IssueType: types.TypeTask,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
}

func TestImportCreatesNewIssues(t *testing.T) {
	store, ctx := newTestStore(t)

	result, err := ImportIssues(ctx, store, []*types.Issue{
		testIssue("bd-a1b2c3", "First issue"),
		testIssue("bd-d4e5f6", "Second issue"),
	}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Created != 2 || result.Updated != 0 || result.Unchanged != 0 || result.Skipped != 0 {
		t.Errorf("got created=%d updated=%d unchanged=%d skipped=%d, want 2/0/0/0",
			result.Created, result.Updated, result.Unchanged, result.Skipped)
	}
	if !result.Changed() {
		t.Error("Changed() = false after creating issues")
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got == nil || got.Title != "First issue" {
		t.Errorf("imported issue missing or wrong: %+v", got)
	}
}

// Re-importing the same batch must write nothing: every record matches
// by content hash and lands as unchanged.
func TestImportSecondPassUnchanged(t *testing.T) {
	store, ctx := newTestStore(t)

	batch := []*types.Issue{
		testIssue("bd-a1b2c3", "First issue"),
		testIssue("bd-d4e5f6", "Second issue"),
	}
	if _, err := ImportIssues(ctx, store, batch, nil, Options{}); err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	result, err := ImportIssues(ctx, store, batch, nil, Options{})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if result.Created != 0 || result.Updated != 0 || result.Deleted != 0 {
		t.Errorf("second import wrote: created=%d updated=%d deleted=%d",
			result.Created, result.Updated, result.Deleted)
	}
	if result.Unchanged != 2 {
		t.Errorf("got unchanged=%d, want 2", result.Unchanged)
	}
	if result.Changed() {
		t.Error("Changed() = true on an idempotent re-import")
	}
}

func TestImportNewerWins(t *testing.T) {
	store, ctx := newTestStore(t)

	local := testIssue("bd-a1b2c3", "Original title")
	if err := store.CreateIssue(ctx, local, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// Remote edited the issue after our local write.
	incoming := testIssue("bd-a1b2c3", "Edited title")
	incoming.UpdatedAt = local.UpdatedAt.Add(30 * time.Minute)

	result, err := ImportIssues(ctx, store, []*types.Issue{incoming}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("got updated=%d, want 1", result.Updated)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Title != "Edited title" {
		t.Errorf("title = %q, want %q", got.Title, "Edited title")
	}
}

// A newer record that differs only in fields outside the content patch
// tallies as unchanged and leaves the local values alone.
func TestImportNewerButUnpatchedFieldsOnly(t *testing.T) {
	store, ctx := newTestStore(t)

	local := testIssue("bd-a1b2c3", "Stable title")
	if err := store.CreateIssue(ctx, local, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	incoming := testIssue("bd-a1b2c3", "Stable title")
	incoming.UpdatedAt = local.UpdatedAt.Add(30 * time.Minute)
	incoming.Owner = "pat"

	result, err := ImportIssues(ctx, store, []*types.Issue{incoming}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Updated != 0 || result.Unchanged != 1 {
		t.Errorf("got updated=%d unchanged=%d, want 0/1", result.Updated, result.Unchanged)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Owner != "" {
		t.Errorf("owner = %q, want local value kept", got.Owner)
	}
}

func TestImportOlderVersionIgnored(t *testing.T) {
	store, ctx := newTestStore(t)

	local := testIssue("bd-a1b2c3", "Current title")
	if err := store.CreateIssue(ctx, local, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// A stale record from before our local edit must not clobber it.
	incoming := testIssue("bd-a1b2c3", "Stale title")
	incoming.UpdatedAt = local.UpdatedAt.Add(-30 * time.Minute)

	result, err := ImportIssues(ctx, store, []*types.Issue{incoming}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Updated != 0 || result.Unchanged != 1 {
		t.Errorf("got updated=%d unchanged=%d, want 0/1", result.Updated, result.Unchanged)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Title != "Current title" {
		t.Errorf("title = %q, want %q", got.Title, "Current title")
	}
}

func TestImportDeletionMarkers(t *testing.T) {
	store, ctx := newTestStore(t)

	if err := store.CreateIssue(ctx, testIssue("bd-a1b2c3", "Doomed"), "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// One marker hits, one targets an ID that was never here.
	result, err := ImportIssues(ctx, store, nil, []string{"bd-a1b2c3", "bd-ffffff"}, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Errorf("got deleted=%d, want 1", result.Deleted)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got != nil {
		t.Errorf("issue still present after deletion marker: %+v", got)
	}
}

// A marker and a fresh record for the same ID in one batch mean the
// issue was deleted and recreated: the new record must land.
func TestImportDeleteThenReinsert(t *testing.T) {
	store, ctx := newTestStore(t)

	if err := store.CreateIssue(ctx, testIssue("bd-a1b2c3", "Old life"), "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	replacement := testIssue("bd-a1b2c3", "New life")
	result, err := ImportIssues(ctx, store, []*types.Issue{replacement}, []string{"bd-a1b2c3"}, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Deleted != 1 || result.Created != 1 {
		t.Errorf("got deleted=%d created=%d, want 1/1", result.Deleted, result.Created)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got == nil || got.Title != "New life" {
		t.Errorf("reinserted issue missing or wrong: %+v", got)
	}
}

// The log cannot resurrect an ID the store has tombstoned, no matter how
// new the incoming record claims to be.
func TestImportTombstoneStaysDeleted(t *testing.T) {
	store, ctx := newTestStore(t)

	if err := store.CreateIssue(ctx, testIssue("bd-a1b2c3", "Deleted locally"), "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if err := store.TombstoneIssue(ctx, "bd-a1b2c3", "obsolete", "test"); err != nil {
		t.Fatalf("TombstoneIssue failed: %v", err)
	}

	incoming := testIssue("bd-a1b2c3", "Back from the dead")
	incoming.UpdatedAt = time.Now().Add(time.Hour)

	result, err := ImportIssues(ctx, store, []*types.Issue{incoming}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Skipped != 1 {
		t.Errorf("got skipped=%d, want 1", result.Skipped)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if !got.IsTombstone() {
		t.Errorf("status = %s, want tombstone", got.Status)
	}
}

// An incoming tombstone for a live issue propagates the delete.
func TestImportIncomingTombstone(t *testing.T) {
	store, ctx := newTestStore(t)

	local := testIssue("bd-a1b2c3", "Deleted remotely")
	if err := store.CreateIssue(ctx, local, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	deletedAt := local.UpdatedAt.Add(30 * time.Minute)
	incoming := testIssue("bd-a1b2c3", "Deleted remotely")
	incoming.Status = types.StatusTombstone
	incoming.UpdatedAt = deletedAt
	incoming.DeletedAt = &deletedAt
	incoming.DeleteReason = "superseded"

	result, err := ImportIssues(ctx, store, []*types.Issue{incoming}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Updated != 1 {
		t.Errorf("got updated=%d, want 1", result.Updated)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if !got.IsTombstone() {
		t.Fatalf("status = %s, want tombstone", got.Status)
	}
	if got.DeletedAt == nil {
		t.Error("tombstone has no deleted_at")
	}
	if got.DeleteReason != "superseded" {
		t.Errorf("delete_reason = %q, want %q", got.DeleteReason, "superseded")
	}
}

// Identical content under a different ID looks like a rename or a
// duplicate; the importer declines to guess and skips the record.
func TestImportRenamedContentSkipped(t *testing.T) {
	store, ctx := newTestStore(t)

	local := testIssue("bd-a1b2c3", "Same content")
	if err := store.CreateIssue(ctx, local, "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	renamed := testIssue("bd-d4e5f6", "Same content")
	renamed.CreatedAt = local.CreatedAt
	renamed.UpdatedAt = local.UpdatedAt

	result, err := ImportIssues(ctx, store, []*types.Issue{renamed}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Skipped != 1 || result.Created != 0 {
		t.Errorf("got skipped=%d created=%d, want 1/0", result.Skipped, result.Created)
	}

	got, err := store.GetIssue(ctx, "bd-d4e5f6")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got != nil {
		t.Errorf("renamed duplicate was inserted: %+v", got)
	}
}

func TestImportWispID(t *testing.T) {
	store, ctx := newTestStore(t)

	// The ephemeral flag was stripped from the record but the ID still
	// carries the wisp marker.
	wisp := testIssue("bd-wisp-a1b2c3", "Scratch note")

	result, err := ImportIssues(ctx, store, []*types.Issue{wisp}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("got created=%d, want 1", result.Created)
	}

	got, err := store.GetIssue(ctx, "bd-wisp-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if !got.Ephemeral {
		t.Error("wisp ID imported without ephemeral flag")
	}
}

func TestImportDuplicateIDWithinBatch(t *testing.T) {
	store, ctx := newTestStore(t)

	first := testIssue("bd-a1b2c3", "First occurrence")
	second := testIssue("bd-a1b2c3", "Second occurrence")

	result, err := ImportIssues(ctx, store, []*types.Issue{first, second}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Created != 1 || result.Skipped != 1 {
		t.Errorf("got created=%d skipped=%d, want 1/1", result.Created, result.Skipped)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got.Title != "First occurrence" {
		t.Errorf("title = %q, want first occurrence to win", got.Title)
	}
}

// Children may appear before their parents in the log; creation is
// depth-ordered so the hierarchy lands whole.
func TestImportChildBeforeParent(t *testing.T) {
	store, ctx := newTestStore(t)

	child := testIssue("bd-a1b2c3.1", "Child task")
	parent := testIssue("bd-a1b2c3", "Parent task")

	result, err := ImportIssues(ctx, store, []*types.Issue{child, parent}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("got created=%d, want 2 (warnings: %v)", result.Created, result.Warnings)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3.1")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got == nil {
		t.Error("child issue missing after import")
	}
}

func TestImportOrphanChildSkipped(t *testing.T) {
	store, ctx := newTestStore(t)

	orphan := testIssue("bd-a1b2c3.1", "Orphan child")

	result, err := ImportIssues(ctx, store, []*types.Issue{orphan}, nil, Options{})
	if err != nil {
		t.Fatalf("ImportIssues failed: %v", err)
	}
	if result.Created != 0 || result.Skipped != 1 {
		t.Errorf("got created=%d skipped=%d, want 0/1", result.Created, result.Skipped)
	}
	if len(result.Warnings) == 0 {
		t.Error("orphan skip produced no warning")
	}
}

func TestImportPrefixMismatch(t *testing.T) {
	store, ctx := newTestStore(t)

	foreign := testIssue("xx-a1b2c3", "Wrong workspace")

	_, err := ImportIssues(ctx, store, []*types.Issue{foreign}, nil, Options{})
	if err == nil {
		t.Fatal("expected prefix mismatch error, got nil")
	}
	if !strings.Contains(err.Error(), "xx-") {
		t.Errorf("error does not name the foreign prefix: %v", err)
	}

	// With renaming enabled the batch imports under the local prefix.
	foreign = testIssue("xx-a1b2c3", "Wrong workspace")
	result, err := ImportIssues(ctx, store, []*types.Issue{foreign}, nil, Options{RenameOnImport: true})
	if err != nil {
		t.Fatalf("ImportIssues with rename failed: %v", err)
	}
	if result.Created != 1 {
		t.Fatalf("got created=%d, want 1", result.Created)
	}

	got, err := store.GetIssue(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got == nil {
		t.Error("renamed issue not found under local prefix")
	}
}

func TestImportAttachesCollections(t *testing.T) {
	store, ctx := newTestStore(t)

	if err := store.CreateIssue(ctx, testIssue("bd-d4e5f6", "Dependency target"), "test"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	issue := testIssue("bd-a1b2c3", "Carries collections")
	issue.Labels = []string{"backend", "urgent"}
	issue.Dependencies = []*types.Dependency{
		{DependsOnID: "bd-d4e5f6", Type: types.DepBlocks},
	}
	issue.Comments = []*types.Comment{
		{Author: "alice", Text: "looks good", CreatedAt: time.Now().Add(-time.Hour)},
	}

	if _, err := ImportIssues(ctx, store, []*types.Issue{issue}, nil, Options{}); err != nil {
		t.Fatalf("first import failed: %v", err)
	}

	labels, err := store.GetLabels(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetLabels failed: %v", err)
	}
	if len(labels) != 2 {
		t.Errorf("got %d labels, want 2", len(labels))
	}
	deps, err := store.GetDependencyRecords(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetDependencyRecords failed: %v", err)
	}
	if len(deps) != 1 {
		t.Errorf("got %d dependencies, want 1", len(deps))
	}
	comments, err := store.GetIssueComments(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssueComments failed: %v", err)
	}
	if len(comments) != 1 {
		t.Errorf("got %d comments, want 1", len(comments))
	}

	// Second import of the same record must not duplicate anything.
	again := testIssue("bd-a1b2c3", "Carries collections")
	again.Labels = []string{"backend", "urgent"}
	again.Dependencies = []*types.Dependency{
		{DependsOnID: "bd-d4e5f6", Type: types.DepBlocks},
	}
	again.Comments = []*types.Comment{
		{Author: "alice", Text: "looks good", CreatedAt: time.Now().Add(-time.Hour)},
	}
	if _, err := ImportIssues(ctx, store, []*types.Issue{again}, nil, Options{}); err != nil {
		t.Fatalf("second import failed: %v", err)
	}

	comments, err = store.GetIssueComments(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetIssueComments failed: %v", err)
	}
	if len(comments) != 1 {
		t.Errorf("comment duplicated on re-import: got %d, want 1", len(comments))
	}
	deps, err = store.GetDependencyRecords(ctx, "bd-a1b2c3")
	if err != nil {
		t.Fatalf("GetDependencyRecords failed: %v", err)
	}
	if len(deps) != 1 {
		t.Errorf("dependency duplicated on re-import: got %d, want 1", len(deps))
	}
}

func TestImportFileMissing(t *testing.T) {
	store, ctx := newTestStore(t)

	result, err := ImportFile(ctx, store, filepath.Join(t.TempDir(), "absent.jsonl"), Options{})
	if err != nil {
		t.Fatalf("ImportFile on missing path failed: %v", err)
	}
	if result.Changed() {
		t.Error("missing file produced changes")
	}
}

func TestImportFileSkipsMalformedLines(t *testing.T) {
	store, ctx := newTestStore(t)

	path := filepath.Join(t.TempDir(), "issues.jsonl")
	content := `{"id":"bd-a1b2c3","title":"Valid issue","status":"open","priority":2,"issue_type":"task","created_at":"2025-06-01T10:00:00Z","updated_at":"2025-06-01T10:00:00Z"}
{this is not json}
{"id":"bd-d4e5f6","title":"Also valid","status":"open","priority":1,"issue_type":"bug","created_at":"2025-06-01T11:00:00Z","updated_at":"2025-06-01T11:00:00Z"}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	result, err := ImportFile(ctx, store, path, Options{})
	if err != nil {
		t.Fatalf("ImportFile failed: %v", err)
	}
	if result.Created != 2 {
		t.Errorf("got created=%d, want 2", result.Created)
	}
	if len(result.Warnings) == 0 {
		t.Error("malformed line produced no warning")
	}

	got, err := store.GetIssue(ctx, "bd-d4e5f6")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if got == nil || got.Priority != 1 {
		t.Errorf("issue after malformed line missing or wrong: %+v", got)
	}
}
