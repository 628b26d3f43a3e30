// Package export rewrites the log file from the indexed store. An export
// is always a full rewrite: every non-ephemeral issue, tombstones
// included, serialized in ID order through a sibling temp file and an
// atomic rename. Dirty tracking decides whether a rewrite happens at
// all; the rewrite itself never partially updates the log.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/beadworks/beads/internal/debug"
	"github.com/beadworks/beads/internal/jsonl"
	"github.com/beadworks/beads/internal/storage"
	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/utils"
)

// Metadata keys the exporter maintains. jsonl_content_hash and
// last_import_mtime are shared with the auto-import path: refreshing
// them after a write stops the next command from re-importing our own
// output.
const (
	metaContentHash     = "jsonl_content_hash"
	metaLastImportMtime = "last_import_mtime"
	metaLastExportTime  = "last_export_time"
)

// Result reports what an export run did.
type Result struct {
	Path     string
	Exported int
	Skipped  bool
}

// Flush exports only when dirty issues exist. When every dirty issue's
// current content hash matches the hash recorded at the previous
// export, the log is already current: the dirty set clears without
// touching the file.
func Flush(ctx context.Context, store storage.Storage, path string) (*Result, error) {
	dirty, err := store.GetDirtyIssues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get dirty issues: %w", err)
	}
	if len(dirty) == 0 {
		return &Result{Path: path, Skipped: true}, nil
	}

	current, err := allExportHashesCurrent(ctx, store, dirty)
	if err != nil {
		return nil, err
	}
	if current {
		if err := store.ClearDirtyIssues(ctx, dirty); err != nil {
			return nil, fmt.Errorf("failed to clear dirty issues: %w", err)
		}
		debug.Logf("flush: %d dirty issue(s) already current in log, skipping rewrite", len(dirty))
		return &Result{Path: path, Skipped: true}, nil
	}

	return Export(ctx, store, path)
}

// allExportHashesCurrent reports whether every dirty issue's content is
// already in the log under its recorded export hash.
func allExportHashesCurrent(ctx context.Context, store storage.Storage, dirty []string) (bool, error) {
	for _, id := range dirty {
		issue, err := store.GetIssue(ctx, id)
		if err != nil {
			return false, fmt.Errorf("failed to load dirty issue %s: %w", id, err)
		}
		if issue == nil {
			return false, nil
		}
		exported, err := store.GetExportHash(ctx, id)
		if err != nil {
			return false, fmt.Errorf("failed to get export hash for %s: %w", id, err)
		}
		if exported == "" || exported != issue.ContentHash {
			return false, nil
		}
	}
	return true, nil
}

// Export unconditionally rewrites the log at path from the store.
func Export(ctx context.Context, store storage.Storage, path string) (*Result, error) {
	issues, err := store.SearchIssues(ctx, "", types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load issues for export: %w", err)
	}

	// Wisps live and die locally; they never reach the shared log.
	exportable := make([]*types.Issue, 0, len(issues))
	ids := make([]string, 0, len(issues))
	for _, issue := range issues {
		if issue.Ephemeral {
			continue
		}
		exportable = append(exportable, issue)
		ids = append(ids, issue.ID)
	}

	// Search results carry labels only; edges and comments ride along in
	// the log record and need hydrating before serialization.
	deps, err := store.GetAllDependencyRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependencies for export: %w", err)
	}
	comments, err := store.GetCommentsForIssues(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load comments for export: %w", err)
	}
	for _, issue := range exportable {
		issue.Dependencies = deps[issue.ID]
		issue.Comments = comments[issue.ID]
	}

	target, err := utils.ResolveForWrite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve log path: %w", err)
	}

	// An empty store overwriting a populated log is almost always a
	// store that was never imported, not a workspace with no issues.
	if len(exportable) == 0 {
		if n := countLogRecords(target); n > 0 {
			return nil, fmt.Errorf("refusing to export empty store over %s (%d record(s) would be lost); run 'bd sync' to import first", target, n)
		}
	}

	sort.Slice(exportable, func(i, j int) bool { return exportable[i].ID < exportable[j].ID })

	var buf bytes.Buffer
	if err := jsonl.WriteIssues(&buf, exportable); err != nil {
		return nil, err
	}

	if err := writeAtomic(target, buf.Bytes()); err != nil {
		return nil, err
	}

	recordExportState(ctx, store, target, exportable, buf.Bytes())

	return &Result{Path: target, Exported: len(exportable)}, nil
}

// writeAtomic lands data at path through a sibling temp file so readers
// see either the old log or the new one, never a torn file.
func writeAtomic(path string, data []byte) error {
	tempPath := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 - sibling of the resolved log path
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	f = nil

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to replace log: %w", err)
	}
	return nil
}

// recordExportState refreshes the bookkeeping later imports and flushes
// consult. Failures here only degrade the next run to a full reconcile,
// so they log instead of undoing a completed export.
func recordExportState(ctx context.Context, store storage.Storage, path string, exported []*types.Issue, data []byte) {
	hashes := make(map[string]string, len(exported))
	for _, issue := range exported {
		h := issue.ContentHash
		if h == "" {
			h = issue.ComputeContentHash()
		}
		hashes[issue.ID] = h
	}
	if err := store.BatchSetExportHashes(ctx, hashes); err != nil {
		debug.Logf("export: failed to record export hashes: %v", err)
	}

	dirty, err := store.GetDirtyIssues(ctx)
	if err != nil {
		debug.Logf("export: failed to read dirty issues: %v", err)
	} else if len(dirty) > 0 {
		if err := store.ClearDirtyIssues(ctx, dirty); err != nil {
			debug.Logf("export: failed to clear dirty issues: %v", err)
		}
	}

	sum := sha256.Sum256(data)
	if err := store.SetMetadata(ctx, metaContentHash, hex.EncodeToString(sum[:])); err != nil {
		debug.Logf("export: failed to record log hash: %v", err)
	}

	// The rename bumped the log's mtime; stamp the new value so the next
	// command does not import our own output.
	if info, err := os.Lstat(path); err == nil {
		if err := store.SetMetadata(ctx, metaLastImportMtime, info.ModTime().Format(time.RFC3339Nano)); err != nil {
			debug.Logf("export: failed to record log mtime: %v", err)
		}
	}
	if err := store.SetMetadata(ctx, metaLastExportTime, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		debug.Logf("export: failed to record export time: %v", err)
	}
}

// countLogRecords counts non-blank lines in the existing log. It backs
// the empty-store guard only, so read failures count as zero.
func countLogRecords(path string) int {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from workspace discovery
	if err != nil {
		return 0
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
