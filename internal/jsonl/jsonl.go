// Package jsonl reads and writes the shared issues log: newline-delimited
// JSON, one record per line. A record is either a full issue or a deletion
// marker {"id": "...", "_deleted": true} requesting a hard delete. The log
// is the store of record; the codec is deliberately forgiving on read and
// canonical on write.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// maxLineSize bounds a single log line. Two megabytes leaves room for
// issues with very large design or notes fields.
const maxLineSize = 2 * 1024 * 1024

// Batch is the parsed content of a log: issues in file order, IDs from
// deletion markers, and one warning per line that could not be used.
type Batch struct {
	Issues    []*types.Issue
	Deletions []string
	Warnings  []string
}

// marker mirrors the deletion marker record. Issue records unmarshal into
// it too, with Deleted left false.
type marker struct {
	ID      string `json:"id"`
	Deleted bool   `json:"_deleted"`
}

// Parse reads newline-delimited records from r. Empty lines are ignored.
// Malformed lines are skipped and reported in Batch.Warnings rather than
// failing the whole log; only a read error aborts.
func Parse(r io.Reader) (*Batch, error) {
	batch := &Batch{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var m marker
		if err := json.Unmarshal(line, &m); err != nil {
			batch.Warnings = append(batch.Warnings, parseWarning(lineNo, line, err))
			continue
		}
		if m.Deleted {
			if m.ID == "" {
				batch.Warnings = append(batch.Warnings, fmt.Sprintf("line %d: deletion marker has no id", lineNo))
				continue
			}
			batch.Deletions = append(batch.Deletions, m.ID)
			continue
		}

		var issue types.Issue
		if err := json.Unmarshal(line, &issue); err != nil {
			batch.Warnings = append(batch.Warnings, parseWarning(lineNo, line, err))
			continue
		}
		if issue.ID == "" {
			batch.Warnings = append(batch.Warnings, fmt.Sprintf("line %d: record has no id", lineNo))
			continue
		}

		normalizeParsed(&issue)
		batch.Issues = append(batch.Issues, &issue)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	return batch, nil
}

// ParseFile reads and parses a log file. A missing file parses as an
// empty batch.
func ParseFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from workspace discovery
	if err != nil {
		if os.IsNotExist(err) {
			return &Batch{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(bytes.NewReader(data))
}

// normalizeParsed applies the import-time defaults: omitted status and
// issue_type take open and task, and a closed issue missing closed_at
// gets one so it passes validation.
func normalizeParsed(issue *types.Issue) {
	issue.SetDefaults()
	if issue.Status == types.StatusClosed && issue.ClosedAt == nil {
		now := time.Now()
		issue.ClosedAt = &now
	}
	for _, dep := range issue.Dependencies {
		if dep.IssueID == "" {
			dep.IssueID = issue.ID
		}
	}
	for _, c := range issue.Comments {
		if c.IssueID == "" {
			c.IssueID = issue.ID
		}
	}
}

func parseWarning(lineNo int, line []byte, err error) string {
	snippet := string(line)
	if len(snippet) > 80 {
		snippet = snippet[:80] + "..."
	}
	return fmt.Sprintf("line %d: %v (skipped: %s)", lineNo, err, snippet)
}

// HasConflictMarkers reports whether data contains unresolved git merge
// conflict markers. A conflicted log must not be imported; half of each
// hunk would be silently lost.
func HasConflictMarkers(data []byte) bool {
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("<<<<<<< ")) ||
			bytes.Equal(trimmed, []byte("=======")) ||
			bytes.HasPrefix(trimmed, []byte(">>>>>>> ")) {
			return true
		}
	}
	return false
}

// MarshalIssue serializes one issue as a log line without the trailing
// newline. Timestamps are normalized to UTC first so every clone emits
// identical bytes for identical content.
func MarshalIssue(issue *types.Issue) ([]byte, error) {
	issue.NormalizeTimesUTC()
	data, err := json.Marshal(issue)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize issue %s: %w", issue.ID, err)
	}
	return data, nil
}

// WriteIssues writes issues to w in the given order, one record per line.
func WriteIssues(w io.Writer, issues []*types.Issue) error {
	for _, issue := range issues {
		data, err := MarshalIssue(issue)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write issue %s: %w", issue.ID, err)
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to write issue %s: %w", issue.ID, err)
		}
	}
	return nil
}
