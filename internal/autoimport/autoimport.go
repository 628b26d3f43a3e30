// Package autoimport keeps the store current with the log without the
// user asking. Every command entry point calls AutoImportIfNewer; the
// mtime and content-hash checks make the common no-change case two
// metadata reads and one stat.
package autoimport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beadworks/beads/internal/debug"
	"github.com/beadworks/beads/internal/importer"
	"github.com/beadworks/beads/internal/jsonl"
	"github.com/beadworks/beads/internal/storage"
	"github.com/beadworks/beads/internal/utils"
)

// Metadata keys shared with the exporter. last_import_mtime holds the
// log file's mtime at the last reconcile, jsonl_content_hash the SHA-256
// of its raw bytes.
const (
	metaContentHash     = "jsonl_content_hash"
	metaLastImportMtime = "last_import_mtime"
	metaLastImportTime  = "last_import_time"
)

// Notifier handles user-facing messages during import.
type Notifier interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type stderrNotifier struct {
	debug bool
}

func (n *stderrNotifier) Debugf(format string, args ...interface{}) {
	if n.debug {
		fmt.Fprintf(os.Stderr, "Debug: "+format+"\n", args...)
	}
}

func (n *stderrNotifier) Infof(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

func (n *stderrNotifier) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

func (n *stderrNotifier) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// NewStderrNotifier creates a notifier that writes to stderr.
func NewStderrNotifier(debug bool) Notifier {
	return &stderrNotifier{debug: debug}
}

// AutoImportIfNewer reconciles the log into the store when the log
// changed since the last import. Returns the importer's tally when a
// reconcile ran and nil when it was skipped.
func AutoImportIfNewer(ctx context.Context, store storage.Storage, dbPath string, notify Notifier) (*importer.Result, error) {
	if notify == nil {
		notify = NewStderrNotifier(debug.Enabled())
	}

	jsonlPath := utils.FindJSONLInDir(filepath.Dir(dbPath))

	// Lstat so a recreated symlink counts as a change even when its
	// target kept an old mtime.
	stat, err := os.Lstat(jsonlPath)
	if err != nil {
		if os.IsNotExist(err) {
			notify.Debugf("auto-import skipped, no log at %s", jsonlPath)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat log %s: %w", jsonlPath, err)
	}

	lastMtime, ok := readRecordedMtime(ctx, store, notify)
	if ok && !stat.ModTime().After(lastMtime) {
		notify.Debugf("auto-import skipped, log unchanged since last import")
		return nil, nil
	}

	data, err := os.ReadFile(jsonlPath) // #nosec G304 - path comes from workspace discovery
	if err != nil {
		return nil, fmt.Errorf("failed to read log %s: %w", jsonlPath, err)
	}

	sum := sha256.Sum256(data)
	currentHash := hex.EncodeToString(sum[:])
	lastHash, err := store.GetMetadata(ctx, metaContentHash)
	if err != nil {
		notify.Debugf("metadata read failed (%v), treating as first import", err)
		lastHash = ""
	}

	// mtime moved but the bytes did not (touch, git checkout). Refresh
	// the recorded mtime so the fast path works next time.
	if currentHash == lastHash {
		notify.Debugf("auto-import skipped, log content unchanged (hash match)")
		recordImportState(ctx, store, stat.ModTime(), currentHash, notify)
		return nil, nil
	}

	if jsonl.HasConflictMarkers(data) {
		err := fmt.Errorf("git merge conflict detected in %s\n\n"+
			"The log contains unresolved conflict markers, so it cannot be imported.\n"+
			"Resolve the conflict in your git client, or regenerate the log from this\n"+
			"clone's store with 'bd sync --flush-only', then commit the result.", jsonlPath)
		notify.Errorf("%v", err)
		return nil, err
	}

	batch, err := jsonl.Parse(bytes.NewReader(data))
	if err != nil {
		notify.Errorf("auto-import skipped: %v", err)
		return nil, err
	}

	result, err := importer.ImportBatch(ctx, store, batch, importer.Options{})
	if err != nil {
		notify.Errorf("auto-import failed: %v", err)
		return nil, err
	}

	for _, w := range result.Warnings {
		notify.Warnf("%s", w)
	}
	if result.Changed() {
		notify.Infof("auto-import: %d created, %d updated, %d deleted from %s",
			result.Created, result.Updated, result.Deleted, filepath.Base(jsonlPath))
	} else {
		notify.Debugf("auto-import reconciled, nothing changed")
	}

	// Re-stat after the reconcile: the parse took time and the recorded
	// mtime must cover the version we actually read.
	if post, err := os.Lstat(jsonlPath); err == nil {
		stat = post
	}
	recordImportState(ctx, store, stat.ModTime(), currentHash, notify)

	return result, nil
}

// readRecordedMtime parses last_import_mtime from metadata. A missing or
// unparseable value reports ok=false, which forces a full check.
func readRecordedMtime(ctx context.Context, store storage.Storage, notify Notifier) (time.Time, bool) {
	raw, err := store.GetMetadata(ctx, metaLastImportMtime)
	if err != nil || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		t, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			notify.Warnf("unreadable last_import_mtime %q, re-importing", raw)
			return time.Time{}, false
		}
	}
	return t, true
}

// recordImportState stamps the metadata consulted by the next staleness
// check. Failures only cost a redundant re-import, so they warn.
func recordImportState(ctx context.Context, store storage.Storage, mtime time.Time, contentHash string, notify Notifier) {
	if err := store.SetMetadata(ctx, metaLastImportMtime, mtime.Format(time.RFC3339Nano)); err != nil {
		notify.Warnf("failed to update last_import_mtime: %v", err)
	}
	if err := store.SetMetadata(ctx, metaContentHash, contentHash); err != nil {
		notify.Warnf("failed to update jsonl_content_hash: %v", err)
	}
	if err := store.SetMetadata(ctx, metaLastImportTime, time.Now().Format(time.RFC3339Nano)); err != nil {
		notify.Warnf("failed to update last_import_time: %v", err)
	}
}

// CheckStaleness reports whether the log is newer than the last import.
// Returns false on a fresh workspace with no recorded import or no log.
func CheckStaleness(ctx context.Context, store storage.Storage, dbPath string) (bool, error) {
	raw, err := store.GetMetadata(ctx, metaLastImportMtime)
	if err != nil || raw == "" {
		return false, nil
	}

	lastMtime, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		lastMtime, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return false, fmt.Errorf("corrupted last_import_mtime in metadata: %w", err)
		}
	}

	jsonlPath := utils.FindJSONLInDir(filepath.Dir(dbPath))
	stat, err := os.Lstat(jsonlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat log %s: %w", jsonlPath, err)
	}

	return stat.ModTime().After(lastMtime), nil
}
