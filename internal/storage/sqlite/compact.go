package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// DefaultCompactionAgeDays is how long an issue must have been closed
// before it becomes a compaction candidate.
const DefaultCompactionAgeDays = 30

// CompactionCandidate is an issue eligible for summarization.
type CompactionCandidate struct {
	IssueID  string
	ClosedAt time.Time
	Size     int // combined bytes of description, design, notes, acceptance criteria
}

// GetCompactionCandidates returns uncompacted closed issues older than
// olderThanDays with no open dependents. Pinned and ephemeral issues are
// never candidates.
func (s *SQLiteStorage) GetCompactionCandidates(ctx context.Context, olderThanDays int) ([]*CompactionCandidate, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultCompactionAgeDays
	}

	query := `
		SELECT i.id, i.closed_at,
		       COALESCE(LENGTH(i.description), 0) + COALESCE(LENGTH(i.design), 0) +
		       COALESCE(LENGTH(i.notes), 0) + COALESCE(LENGTH(i.acceptance_criteria), 0)
		FROM issues i
		WHERE i.status = 'closed'
		  AND i.closed_at IS NOT NULL
		  AND i.closed_at <= datetime('now', '-' || CAST(? AS INTEGER) || ' days')
		  AND COALESCE(i.compaction_level, 0) = 0
		  AND COALESCE(i.pinned, 0) = 0
		  AND COALESCE(i.ephemeral, 0) = 0
		  AND NOT EXISTS (
		    SELECT 1 FROM dependencies d
		    JOIN issues dep ON d.issue_id = dep.id
		    WHERE d.depends_on_id = i.id
		      AND d.type IN (` + blockingTypesSQL + `)
		      AND dep.status IN (` + blockingStatusesSQL + `)
		  )
		ORDER BY i.closed_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, olderThanDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query compaction candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []*CompactionCandidate
	for rows.Next() {
		var c CompactionCandidate
		if err := rows.Scan(&c.IssueID, &c.ClosedAt, &c.Size); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, nil
}

// CheckCompactionEligibility reports whether an issue may be compacted
// and, when it may not, a reason suitable for showing to the user.
func (s *SQLiteStorage) CheckCompactionEligibility(ctx context.Context, issueID string, olderThanDays int) (bool, string, error) {
	if olderThanDays <= 0 {
		olderThanDays = DefaultCompactionAgeDays
	}

	var status string
	var closedAt sql.NullTime
	var level, pinned int
	err := s.db.QueryRowContext(ctx, `
		SELECT status, closed_at, COALESCE(compaction_level, 0), COALESCE(pinned, 0)
		FROM issues WHERE id = ?
	`, issueID).Scan(&status, &closedAt, &level, &pinned)
	if err == sql.ErrNoRows {
		return false, "issue not found", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to get issue: %w", err)
	}

	if status != string(types.StatusClosed) {
		return false, "issue is not closed", nil
	}
	if !closedAt.Valid {
		return false, "issue has no closed_at timestamp", nil
	}
	if pinned != 0 {
		return false, "issue is pinned", nil
	}
	if level != 0 {
		return false, "issue is already compacted", nil
	}
	if age := time.Since(closedAt.Time); age < time.Duration(olderThanDays)*24*time.Hour {
		return false, fmt.Sprintf("issue closed %d days ago, needs %d", int(age.Hours()/24), olderThanDays), nil
	}

	var hasOpenDependent bool
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM dependencies d
		  JOIN issues dep ON d.issue_id = dep.id
		  WHERE d.depends_on_id = ?
		    AND d.type IN (`+blockingTypesSQL+`)
		    AND dep.status IN (`+blockingStatusesSQL+`)
		)
	`, issueID).Scan(&hasOpenDependent)
	if err != nil {
		return false, "", fmt.Errorf("failed to check dependents: %w", err)
	}
	if hasOpenDependent {
		return false, "issue has open dependents", nil
	}

	return true, "", nil
}

// SnapshotForCompaction stores the issue's full JSON in
// compaction_snapshots so RestoreCompactedIssue can bring the original
// text back. Call before overwriting any text fields.
func (s *SQLiteStorage) SnapshotForCompaction(ctx context.Context, issueID string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		issue, err := getIssueConn(ctx, conn, issueID)
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s not found", issueID)
		}

		data, err := json.Marshal(issue)
		if err != nil {
			return fmt.Errorf("failed to serialize snapshot: %w", err)
		}
		_, err = conn.ExecContext(ctx, `
			INSERT INTO compaction_snapshots (issue_id, compaction_level, snapshot_json)
			VALUES (?, ?, ?)
		`, issueID, issue.CompactionLevel, data)
		if err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
}

// ApplyCompaction records that an issue's text was replaced by a
// summary: sets the compaction level and timestamps, remembers the
// original size, and emits a compacted event.
func (s *SQLiteStorage) ApplyCompaction(ctx context.Context, issueID string, level, originalSize, compactedSize int, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		now := time.Now().UTC()
		res, err := conn.ExecContext(ctx, `
			UPDATE issues
			SET compaction_level = ?, compacted_at = ?, original_size = ?, updated_at = ?
			WHERE id = ?
		`, level, now, originalSize, now, issueID)
		if err != nil {
			return fmt.Errorf("failed to apply compaction: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check compaction result: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("issue %s not found", issueID)
		}

		reductionPct := 0.0
		if originalSize > 0 {
			reductionPct = (1.0 - float64(compactedSize)/float64(originalSize)) * 100
		}
		payload := fmt.Sprintf(`{"level":%d,"original_size":%d,"compacted_size":%d,"reduction_pct":%.1f}`,
			level, originalSize, compactedSize, reductionPct)
		if err := recordEvent(ctx, conn, issueID, types.EventCompacted, actor, "", payload); err != nil {
			return err
		}
		return markDirty(ctx, conn, issueID)
	})
}

// RestoreCompactedIssue reverts a compacted issue to its most recent
// snapshot: the original text fields come back and the compaction
// bookkeeping is cleared.
func (s *SQLiteStorage) RestoreCompactedIssue(ctx context.Context, issueID, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		issue, err := getIssueConn(ctx, conn, issueID)
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s not found", issueID)
		}
		if issue.CompactionLevel == 0 {
			return fmt.Errorf("issue %s is not compacted", issueID)
		}

		var data []byte
		err = conn.QueryRowContext(ctx, `
			SELECT snapshot_json FROM compaction_snapshots
			WHERE issue_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`, issueID).Scan(&data)
		if err == sql.ErrNoRows {
			return fmt.Errorf("no compaction snapshot for issue %s", issueID)
		}
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}

		var snap types.Issue
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("failed to decode snapshot: %w", err)
		}

		_, err = conn.ExecContext(ctx, `
			UPDATE issues
			SET description = ?, design = ?, notes = ?, acceptance_criteria = ?,
			    compaction_level = ?, compacted_at = NULL, original_size = NULL,
			    updated_at = ?
			WHERE id = ?
		`, snap.Description, snap.Design, snap.Notes, snap.AcceptanceCriteria,
			snap.CompactionLevel, time.Now().UTC(), issueID)
		if err != nil {
			return fmt.Errorf("failed to restore issue: %w", err)
		}

		if err := refreshContentHash(ctx, conn, issueID); err != nil {
			return err
		}
		oldVal := fmt.Sprintf(`{"compaction_level":%d}`, issue.CompactionLevel)
		newVal := fmt.Sprintf(`{"compaction_level":%d}`, snap.CompactionLevel)
		if err := recordEvent(ctx, conn, issueID, types.EventUpdated, actor, oldVal, newVal); err != nil {
			return err
		}
		return markDirty(ctx, conn, issueID)
	})
}
