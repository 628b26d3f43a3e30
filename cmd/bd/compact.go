package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/compact"
	"github.com/beadworks/beads/internal/config"
	"github.com/beadworks/beads/internal/storage/sqlite"
	"github.com/beadworks/beads/internal/ui"
)

var compactCmd = &cobra.Command{
	Use:   "compact [id...]",
	Short: "Summarize the text of old closed issues",
	Long: `Summarize the text of old closed issues to keep the log small.

Candidates are closed, unpinned, non-ephemeral issues older than the
age threshold with no open dependents. The original text is
snapshotted before summarization and can be restored with --restore.
Summaries use the Anthropic API when ANTHROPIC_API_KEY is set and fall
back to truncation otherwise.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		sqlStore, ok := store.(*sqlite.SQLiteStorage)
		if !ok {
			FatalError("compact requires a database-backed workspace")
		}

		restore, _ := cmd.Flags().GetBool("restore")
		if restore {
			if len(args) == 0 {
				FatalError("--restore needs at least one issue id")
			}
			actor := resolveActor()
			for _, id := range resolveIssueIDs(args) {
				if err := sqlStore.RestoreCompactedIssue(rootCtx, id, actor); err != nil {
					FatalError("%v", err)
				}
				Infof("Restored %s", ui.RenderID(id))
			}
			return
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		minAge, _ := cmd.Flags().GetInt("min-age")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		var ids []string
		if len(args) > 0 {
			ids = resolveIssueIDs(args)
		} else {
			candidates, err := sqlStore.GetCompactionCandidates(rootCtx, minAge)
			if err != nil {
				FatalError("%v", err)
			}
			for _, candidate := range candidates {
				ids = append(ids, candidate.IssueID)
			}
		}
		if len(ids) == 0 {
			Infof("Nothing to compact.")
			return
		}

		compactor, err := compact.New(sqlStore, config.GetString("compaction.api-key"), &compact.Config{
			Concurrency: concurrency,
			DryRun:      dryRun,
			Actor:       resolveActor(),
			MinAgeDays:  minAge,
		})
		if err != nil {
			FatalError("%v", err)
		}

		results, err := compactor.CompactBatch(rootCtx, ids)
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			type resultJSON struct {
				IssueID       string `json:"issue_id"`
				OriginalSize  int    `json:"original_size"`
				CompactedSize int    `json:"compacted_size"`
				Error         string `json:"error,omitempty"`
			}
			out := make([]resultJSON, 0, len(results))
			for _, r := range results {
				rj := resultJSON{IssueID: r.IssueID, OriginalSize: r.OriginalSize, CompactedSize: r.CompactedSize}
				if r.Err != nil {
					rj.Error = r.Err.Error()
				}
				out = append(out, rj)
			}
			outputJSON(map[string]interface{}{
				"summarizer": compactor.SummarizerName(),
				"dry_run":    dryRun,
				"results":    out,
			})
			return
		}

		var saved, failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
				WarnError("%s: %v", r.IssueID, r.Err)
				continue
			}
			saved += r.OriginalSize - r.CompactedSize
			fmt.Printf("%s  %d → %d bytes\n", ui.RenderID(r.IssueID), r.OriginalSize, r.CompactedSize)
		}
		verb := "Compacted"
		if dryRun {
			verb = "Would compact"
		}
		Infof("%s %d issue(s) with %s, saving %d bytes (%d failed).",
			verb, len(results)-failed, compactor.SummarizerName(), saved, failed)
	},
}

func init() {
	compactCmd.Flags().Bool("dry-run", false, "Report what would be compacted without writing")
	compactCmd.Flags().Bool("restore", false, "Restore the original text of compacted issues")
	compactCmd.Flags().Int("min-age", sqlite.DefaultCompactionAgeDays, "Minimum days since close")
	compactCmd.Flags().Int("concurrency", 4, "Concurrent summarization requests")
	rootCmd.AddCommand(compactCmd)
}
