package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/beadworks/beads/internal/autoimport"
	"github.com/beadworks/beads/internal/jsonl"
	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/ui"
)

type doctorCheck struct {
	Name     string   `json:"name"`
	OK       bool     `json:"ok"`
	Problems []string `json:"problems,omitempty"`
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check workspace health",
	Long: `Check workspace health: dangling graph edges, dependency
cycles, log staleness, conflict markers, and duplicate content hashes.
Exits non-zero when any check fails.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		checks := []doctorCheck{
			checkDanglingEdges(),
			checkCycles(),
			checkLogStaleness(),
			checkConflictMarkers(),
			checkDuplicateHashes(),
			checkVersionStamp(),
		}

		healthy := true
		for _, check := range checks {
			if !check.OK {
				healthy = false
			}
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"healthy": healthy, "checks": checks})
		} else {
			for _, check := range checks {
				if check.OK {
					fmt.Printf("%s %s\n", ui.RenderPass("ok"), check.Name)
					continue
				}
				fmt.Printf("%s %s\n", ui.RenderWarn("!!"), check.Name)
				for _, problem := range check.Problems {
					fmt.Printf("     %s\n", problem)
				}
			}
		}
		if !healthy {
			os.Exit(1)
		}
	},
}

func checkDanglingEdges() doctorCheck {
	check := doctorCheck{Name: "dependency edges reference live issues", OK: true}

	issues, err := store.ListIssues(rootCtx, types.IssueFilter{IncludeTombstones: true}, types.SortCreated, false)
	if err != nil {
		return failedCheck(check.Name, err)
	}
	known := make(map[string]bool, len(issues))
	for _, issue := range issues {
		known[issue.ID] = true
	}

	edges, err := store.GetAllDependencyRecords(rootCtx)
	if err != nil {
		return failedCheck(check.Name, err)
	}
	for issueID, deps := range edges {
		if !known[issueID] {
			check.OK = false
			check.Problems = append(check.Problems, fmt.Sprintf("edges from unknown issue %s", issueID))
			continue
		}
		for _, dep := range deps {
			if !known[dep.DependsOnID] {
				check.OK = false
				check.Problems = append(check.Problems, fmt.Sprintf("%s depends on unknown issue %s", issueID, dep.DependsOnID))
			}
		}
	}
	return check
}

func checkCycles() doctorCheck {
	check := doctorCheck{Name: "dependency graph has no cycles", OK: true}
	cycles, err := store.DetectCycles(rootCtx)
	if err != nil {
		return failedCheck(check.Name, err)
	}
	for _, cycle := range cycles {
		ids := make([]string, 0, len(cycle))
		for _, issue := range cycle {
			ids = append(ids, issue.ID)
		}
		check.OK = false
		check.Problems = append(check.Problems, fmt.Sprintf("cycle: %v", ids))
	}
	return check
}

func checkLogStaleness() doctorCheck {
	check := doctorCheck{Name: "database is current with the log", OK: true}
	stale, err := autoimport.CheckStaleness(rootCtx, store, dbPath)
	if err != nil {
		return failedCheck(check.Name, err)
	}
	if stale {
		check.OK = false
		check.Problems = append(check.Problems, "the log changed since the last import; run 'bd sync'")
	}
	return check
}

func checkConflictMarkers() doctorCheck {
	check := doctorCheck{Name: "log has no merge conflict markers", OK: true}
	data, err := os.ReadFile(jsonlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return check
		}
		return failedCheck(check.Name, err)
	}
	if jsonl.HasConflictMarkers(data) {
		check.OK = false
		check.Problems = append(check.Problems, "unresolved git conflict markers in "+jsonlPath)
	}
	return check
}

func checkDuplicateHashes() doctorCheck {
	check := doctorCheck{Name: "no duplicate content hashes", OK: true}
	db := store.UnderlyingDB()
	if db == nil {
		return check
	}
	rows, err := db.QueryContext(rootCtx,
		`SELECT content_hash, COUNT(*) FROM issues
		 WHERE content_hash != '' GROUP BY content_hash HAVING COUNT(*) > 1`)
	if err != nil {
		return failedCheck(check.Name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		var count int
		if err := rows.Scan(&hash, &count); err != nil {
			return failedCheck(check.Name, err)
		}
		check.OK = false
		check.Problems = append(check.Problems, fmt.Sprintf("%d issues share content hash %.12s", count, hash))
	}
	if err := rows.Err(); err != nil {
		return failedCheck(check.Name, err)
	}
	return check
}

func checkVersionStamp() doctorCheck {
	check := doctorCheck{Name: "workspace version stamp", OK: true}
	recorded, err := store.GetMetadata(rootCtx, "bd_version")
	if err != nil {
		return failedCheck(check.Name, err)
	}
	if recorded == "" {
		check.OK = false
		check.Problems = append(check.Problems, "no bd_version recorded; run 'bd init' to stamp the workspace")
	}
	return check
}

func failedCheck(name string, err error) doctorCheck {
	return doctorCheck{Name: name, Problems: []string{err.Error()}}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
