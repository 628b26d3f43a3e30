package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/autoimport"
	"github.com/beadworks/beads/internal/export"
	"github.com/beadworks/beads/internal/importer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the database with the issue log",
	Long: `Reconcile the database with the issue log.

Imports the log when it changed since the last import, then flushes
any local changes back out. The whole cycle runs under the workspace
sync lock so concurrent bd processes serialize.

--flush-only skips the import phase, --full rewrites the entire log
instead of flushing only dirty issues, and --watch keeps running and
re-syncs whenever the log file changes on disk.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		flushOnly, _ := cmd.Flags().GetBool("flush-only")
		full, _ := cmd.Flags().GetBool("full")
		watch, _ := cmd.Flags().GetBool("watch")

		if watch {
			runSyncWatch(flushOnly, full)
			return
		}
		runSyncOnce(flushOnly, full, true)
	},
}

func runSyncOnce(flushOnly, full, report bool) {
	lock, err := acquireSyncLock(beadsDir, 10*time.Second)
	if err != nil {
		FatalError("%v", err)
	}
	defer releaseSyncLock(lock)

	var imported *importer.Result
	if !flushOnly {
		imported, err = autoimport.AutoImportIfNewer(rootCtx, store, dbPath, autoimport.NewStderrNotifier(verboseFlag))
		if err != nil {
			FatalError("%v", err)
		}
	}

	var flushed *export.Result
	if full {
		flushed, err = export.Export(rootCtx, store, jsonlPath)
	} else {
		flushed, err = export.Flush(rootCtx, store, jsonlPath)
	}
	if err != nil {
		FatalError("%v", err)
	}

	if !report {
		return
	}
	if jsonOutput {
		outputJSON(map[string]interface{}{
			"imported": imported,
			"exported": flushed.Exported,
			"skipped":  flushed.Skipped,
			"path":     flushed.Path,
		})
		return
	}
	var parts []string
	if imported != nil {
		parts = append(parts, describeImport(imported))
	}
	if flushed.Skipped {
		parts = append(parts, "nothing to export")
	} else {
		parts = append(parts, pluralize(flushed.Exported, "issue exported", "issues exported"))
	}
	Infof("Sync complete: %s.", strings.Join(parts, ", "))
	for _, warning := range importWarnings(imported) {
		WarnError("%s", warning)
	}
}

func describeImport(r *importer.Result) string {
	return strings.Join([]string{
		pluralize(r.Created, "issue created", "issues created"),
		pluralize(r.Updated, "updated", "updated"),
		pluralize(r.Deleted, "deleted", "deleted"),
	}, ", ")
}

func importWarnings(r *importer.Result) []string {
	if r == nil {
		return nil
	}
	return r.Warnings
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return "1 " + singular
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// runSyncWatch re-syncs whenever the log file changes. Events are
// debounced because git checkouts and editors fire several writes in
// quick succession for one logical change.
func runSyncWatch(flushOnly, full bool) {
	runSyncOnce(flushOnly, full, true)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		FatalError("failed to start watcher: %v", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: git replaces the log by
	// rename, which would drop a file-level watch.
	if err := watcher.Add(beadsDir); err != nil {
		FatalError("failed to watch %s: %v", beadsDir, err)
	}
	Infof("Watching %s for changes (Ctrl-C to stop)...", jsonlPath)

	var debounce *time.Timer
	trigger := make(chan struct{}, 1)
	for {
		select {
		case <-rootCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != jsonlPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case <-trigger:
			runSyncOnce(flushOnly, full, true)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			WarnError("watch error: %v", err)
		}
	}
}

func init() {
	syncCmd.Flags().Bool("flush-only", false, "Export local changes without importing")
	syncCmd.Flags().Bool("full", false, "Rewrite the entire log instead of flushing dirty issues")
	syncCmd.Flags().Bool("watch", false, "Keep running and re-sync on log changes")
	rootCmd.AddCommand(syncCmd)
}
