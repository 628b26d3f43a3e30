// Package importer merges log records into the indexed store. Matching is
// content-first: a record whose content hash is already present is a
// no-op, an ID match falls back to newer-wins patching, and everything
// else inserts. Deletion markers are honored before any issue record is
// considered, and embedded labels, edges, and comments attach idempotently
// once their issues have landed.
package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/beadworks/beads/internal/debug"
	"github.com/beadworks/beads/internal/idgen"
	"github.com/beadworks/beads/internal/jsonl"
	"github.com/beadworks/beads/internal/storage"
	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/utils"
)

// importActor is the audit name recorded for every mutation the importer
// makes.
const importActor = "import"

// Options configures an import run.
type Options struct {
	// Strict fails the run when a label, dependency, or comment cannot be
	// attached instead of warning and continuing.
	Strict bool

	// RenameOnImport rewrites records whose prefix differs from the
	// configured issue_prefix instead of rejecting the batch.
	RenameOnImport bool
}

// Result tallies what an import run did. Skipped covers intra-batch
// duplicates, tombstoned IDs, renamed content we decline to resolve, and
// records that failed validation.
type Result struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Deleted   int
	Warnings  []string
}

// Changed reports whether the run wrote anything to the store.
func (r *Result) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

func (r *Result) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	debug.Logf("import: %s", msg)
}

// ImportFile parses the log at path and merges it into the store. A
// missing file imports as an empty batch.
func ImportFile(ctx context.Context, store storage.Storage, path string, opts Options) (*Result, error) {
	batch, err := jsonl.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return ImportBatch(ctx, store, batch, opts)
}

// ImportBatch merges an already parsed batch. Codec warnings carry over
// into the result.
func ImportBatch(ctx context.Context, store storage.Storage, batch *jsonl.Batch, opts Options) (*Result, error) {
	result, err := ImportIssues(ctx, store, batch.Issues, batch.Deletions, opts)
	if result != nil {
		for _, w := range batch.Warnings {
			debug.Logf("import: %s", w)
		}
		result.Warnings = append(batch.Warnings, result.Warnings...)
	}
	return result, err
}

// ImportIssues reconciles incoming issues and deletion markers against
// the store and returns the tally. Incoming content hashes are always
// recomputed; hashes carried in the log are never trusted.
func ImportIssues(ctx context.Context, store storage.Storage, issues []*types.Issue, deletions []string, opts Options) (*Result, error) {
	result := &Result{}

	for _, issue := range issues {
		issue.ContentHash = issue.ComputeContentHash()
	}

	// Deletion markers run before the merge loop so a marker and a fresh
	// record for the same ID in one batch mean delete-then-reinsert.
	for _, id := range deletions {
		existing, err := store.GetIssue(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s for deletion: %w", id, err)
		}
		if existing == nil {
			continue
		}
		if err := store.DeleteIssue(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", id, err)
		}
		result.Deleted++
	}

	if err := screenPrefixes(ctx, store, issues, opts); err != nil {
		return nil, err
	}

	// Import may create or update issues, so recorded export hashes can
	// go stale. Drop them all; the next export rebuilds the map.
	if err := store.ClearAllExportHashes(ctx); err != nil {
		result.warnf("could not clear export hashes: %v", err)
	}

	// One store read serves every phase: hash lookups for Phase 1, ID
	// lookups for the tombstone guard and Phase 2.
	dbIssues, err := store.SearchIssues(ctx, "", types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load issues for import: %w", err)
	}
	dbByHash := make(map[string]*types.Issue, len(dbIssues))
	dbByID := make(map[string]*types.Issue, len(dbIssues))
	for _, dbIssue := range dbIssues {
		if dbIssue.ContentHash != "" {
			dbByHash[dbIssue.ContentHash] = dbIssue
		}
		dbByID[dbIssue.ID] = dbIssue
	}

	seenHashes := make(map[string]bool)
	seenIDs := make(map[string]bool)

	var newIssues []*types.Issue
	var landed []*types.Issue

	for _, incoming := range issues {
		// An ID minted with -wisp- marks the issue ephemeral even when
		// the flag itself was dropped from the record.
		if strings.Contains(incoming.ID, "-wisp-") {
			incoming.Ephemeral = true
		}

		if err := incoming.Validate(); err != nil {
			result.Skipped++
			result.warnf("skipping %s: %v", incoming.ID, err)
			continue
		}

		if seenHashes[incoming.ContentHash] || seenIDs[incoming.ID] {
			result.Skipped++
			continue
		}
		seenHashes[incoming.ContentHash] = true
		seenIDs[incoming.ID] = true

		// A tombstoned ID stays deleted no matter what the log says;
		// resurrecting it would undo a delete another clone made.
		if existing, ok := dbByID[incoming.ID]; ok && existing.IsTombstone() {
			result.Skipped++
			continue
		}

		// Phase 1: content already in the store. Same ID is the
		// idempotent case; a different ID signals a rename or duplicate
		// we decline to resolve automatically.
		if existing, ok := dbByHash[incoming.ContentHash]; ok {
			if existing.ID == incoming.ID {
				result.Unchanged++
				landed = append(landed, incoming)
			} else {
				result.Skipped++
			}
			continue
		}

		// Phase 2: same ID, different content. The newer side wins.
		if existing, ok := dbByID[incoming.ID]; ok {
			if !incoming.UpdatedAt.After(existing.UpdatedAt) {
				result.Unchanged++
				landed = append(landed, incoming)
				continue
			}

			if incoming.IsTombstone() {
				if err := store.TombstoneIssue(ctx, incoming.ID, incoming.DeleteReason, importActor); err != nil {
					return nil, fmt.Errorf("failed to tombstone %s: %w", incoming.ID, err)
				}
				result.Updated++
				continue
			}

			// Only the fields in the patch are compared: a newer record
			// that differs solely in fields the importer never patches
			// (owner, estimates) tallies as unchanged and keeps the
			// local values.
			updates := buildContentPatch(incoming)
			if !IssueDataChanged(existing, updates) {
				result.Unchanged++
				landed = append(landed, incoming)
				continue
			}
			if err := store.UpdateIssue(ctx, incoming.ID, updates, importActor); err != nil {
				return nil, fmt.Errorf("failed to update %s: %w", incoming.ID, err)
			}
			result.Updated++
			landed = append(landed, incoming)
			continue
		}

		// Phase 3: new issue.
		newIssues = append(newIssues, incoming)
	}

	created, err := insertNewIssues(ctx, store, newIssues, dbByID, result)
	if err != nil {
		return nil, err
	}
	landed = append(landed, created...)

	// Embedded collections attach only after every issue row exists so
	// intra-batch edges resolve regardless of file order.
	for _, issue := range landed {
		if err := attachCollections(ctx, store, issue, opts, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// insertNewIssues lands Phase 3 issues parents-first. Children whose
// parent is neither stored nor in the batch are skipped: inserting them
// would leave an unresolvable hierarchy.
func insertNewIssues(ctx context.Context, store storage.Storage, newIssues []*types.Issue, dbByID map[string]*types.Issue, result *Result) ([]*types.Issue, error) {
	if len(newIssues) == 0 {
		return nil, nil
	}

	SortByDepth(newIssues)

	accepted := make([]*types.Issue, 0, len(newIssues))
	acceptedIDs := make(map[string]bool, len(newIssues))
	for _, issue := range newIssues {
		if _, parentID, depth := idgen.Parse(issue.ID); depth > 0 {
			_, inStore := dbByID[parentID]
			if !inStore && !acceptedIDs[parentID] {
				result.Skipped++
				result.warnf("skipping %s: parent %s not found", issue.ID, parentID)
				continue
			}
		}
		accepted = append(accepted, issue)
		acceptedIDs[issue.ID] = true
	}

	groups := GroupByDepth(accepted)
	depths := make([]int, 0, len(groups))
	for d := range groups {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	for _, d := range depths {
		batch := groups[d]
		if err := store.CreateIssues(ctx, batch, importActor); err != nil {
			return nil, fmt.Errorf("failed to create imported issues: %w", err)
		}
		result.Created += len(batch)
	}

	return accepted, nil
}

// buildContentPatch maps the incoming record's content fields onto an
// update patch. Optional fields are included only when present so a
// record that never carried them cannot blank local values.
func buildContentPatch(incoming *types.Issue) map[string]interface{} {
	updates := map[string]interface{}{
		"title":               incoming.Title,
		"description":         incoming.Description,
		"design":              incoming.Design,
		"acceptance_criteria": incoming.AcceptanceCriteria,
		"notes":               incoming.Notes,
		"status":              incoming.Status,
		"priority":            incoming.Priority,
		"issue_type":          incoming.IssueType,
		"assignee":            incoming.Assignee,
	}
	if incoming.ClosedAt != nil {
		updates["closed_at"] = *incoming.ClosedAt
	}
	if incoming.CloseReason != "" {
		updates["close_reason"] = incoming.CloseReason
	}
	if incoming.Pinned {
		updates["pinned"] = true
	}
	if incoming.ExternalRef != nil && *incoming.ExternalRef != "" {
		updates["external_ref"] = *incoming.ExternalRef
	}
	return updates
}

// screenPrefixes rejects or renames records whose prefix does not match
// the configured issue_prefix. A store without a configured prefix
// accepts anything.
func screenPrefixes(ctx context.Context, store storage.Storage, issues []*types.Issue, opts Options) error {
	configured, err := store.GetConfig(ctx, "issue_prefix")
	if err != nil {
		return fmt.Errorf("failed to read issue_prefix: %w", err)
	}
	if strings.TrimSpace(configured) == "" {
		return nil
	}

	counts := make(map[string]int)
	for _, issue := range issues {
		if prefix := utils.ExtractIssuePrefix(issue.ID); prefix != configured {
			counts[prefix]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	if !opts.RenameOnImport {
		return fmt.Errorf("prefix mismatch: store uses '%s-' but the log contains %s (rename the issues or import with rename enabled)",
			configured, describePrefixes(counts))
	}
	if err := RenameImportedIssuePrefixes(issues, configured); err != nil {
		return fmt.Errorf("failed to rename prefixes: %w", err)
	}
	return nil
}

func describePrefixes(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s- (%d)", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

// attachCollections upserts the labels, outgoing edges, and comments
// embedded in a record whose issue is present in the store. Existing
// entries are fetched first so re-importing the same log writes nothing.
func attachCollections(ctx context.Context, store storage.Storage, issue *types.Issue, opts Options, result *Result) error {
	if len(issue.Labels) > 0 {
		current, err := store.GetLabels(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("failed to get labels for %s: %w", issue.ID, err)
		}
		have := make(map[string]bool, len(current))
		for _, l := range current {
			have[l] = true
		}
		for _, label := range issue.Labels {
			if have[label] {
				continue
			}
			if err := store.AddLabel(ctx, issue.ID, label, importActor); err != nil {
				if opts.Strict {
					return fmt.Errorf("failed to add label %q to %s: %w", label, issue.ID, err)
				}
				result.warnf("could not add label %q to %s: %v", label, issue.ID, err)
			}
		}
	}

	if len(issue.Dependencies) > 0 {
		current, err := store.GetDependencyRecords(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("failed to get dependencies for %s: %w", issue.ID, err)
		}
		have := make(map[string]bool, len(current))
		for _, dep := range current {
			have[dep.DependsOnID+"|"+string(dep.Type)] = true
		}
		for _, dep := range issue.Dependencies {
			dep.IssueID = issue.ID
			key := dep.DependsOnID + "|" + string(dep.Type)
			if have[key] {
				continue
			}
			if err := store.AddDependency(ctx, dep, importActor); err != nil {
				if opts.Strict {
					return fmt.Errorf("failed to add dependency %s -> %s: %w", dep.IssueID, dep.DependsOnID, err)
				}
				result.warnf("could not add dependency %s -> %s: %v", dep.IssueID, dep.DependsOnID, err)
			}
		}
	}

	if len(issue.Comments) > 0 {
		current, err := store.GetIssueComments(ctx, issue.ID)
		if err != nil {
			return fmt.Errorf("failed to get comments for %s: %w", issue.ID, err)
		}
		have := make(map[string]bool, len(current))
		for _, c := range current {
			have[c.Author+"\x00"+strings.TrimSpace(c.Text)] = true
		}
		var missing []*types.Comment
		for _, c := range issue.Comments {
			key := c.Author + "\x00" + strings.TrimSpace(c.Text)
			if have[key] {
				continue
			}
			have[key] = true
			missing = append(missing, c)
		}
		if len(missing) > 0 {
			if err := store.InsertComments(ctx, issue.ID, missing); err != nil {
				if opts.Strict {
					return fmt.Errorf("failed to add comments to %s: %w", issue.ID, err)
				}
				result.warnf("could not add comments to %s: %v", issue.ID, err)
			}
		}
	}

	return nil
}
