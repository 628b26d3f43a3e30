package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// markDirty marks a single issue as dirty for incremental export
func markDirty(ctx context.Context, conn *sql.Conn, issueID string) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO dirty_issues (issue_id, marked_at)
		VALUES (?, ?)
		ON CONFLICT (issue_id) DO UPDATE SET marked_at = excluded.marked_at
	`, issueID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark issue dirty: %w", err)
	}
	return nil
}

// markDirtyBatch marks multiple issues as dirty for incremental export
func markDirtyBatch(ctx context.Context, conn *sql.Conn, issues []*types.Issue) error {
	stmt, err := conn.PrepareContext(ctx, `
		INSERT INTO dirty_issues (issue_id, marked_at)
		VALUES (?, ?)
		ON CONFLICT (issue_id) DO UPDATE SET marked_at = excluded.marked_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare dirty statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	dirtyTime := time.Now()
	for _, issue := range issues {
		_, err = stmt.ExecContext(ctx, issue.ID, dirtyTime)
		if err != nil {
			return fmt.Errorf("failed to mark issue %s dirty: %w", issue.ID, err)
		}
	}
	return nil
}

// GetDirtyIssues returns IDs of issues that have been modified since last export
func (s *SQLiteStorage) GetDirtyIssues(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id FROM dirty_issues ORDER BY marked_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get dirty issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan issue id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearDirtyIssues removes specific issues from the dirty list after a
// successful export.
func (s *SQLiteStorage) ClearDirtyIssues(ctx context.Context, issueIDs []string) error {
	if len(issueIDs) == 0 {
		return nil
	}

	args := make([]interface{}, len(issueIDs))
	for i, id := range issueIDs {
		args[i] = id
	}

	// #nosec G201 -- placeholders are generated internally
	query := fmt.Sprintf("DELETE FROM dirty_issues WHERE issue_id IN (%s)", buildPlaceholders(len(issueIDs)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear dirty issues: %w", err)
	}
	return nil
}

// GetExportHash returns the content hash recorded at last export, or ""
// if the issue has never been exported.
func (s *SQLiteStorage) GetExportHash(ctx context.Context, issueID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash FROM export_hashes WHERE issue_id = ?
	`, issueID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get export hash: %w", err)
	}
	return hash, nil
}

// SetExportHash records the content hash an issue had when it was exported.
func (s *SQLiteStorage) SetExportHash(ctx context.Context, issueID, contentHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_hashes (issue_id, content_hash, exported_at)
		VALUES (?, ?, ?)
		ON CONFLICT (issue_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			exported_at = excluded.exported_at
	`, issueID, contentHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set export hash: %w", err)
	}
	return nil
}

// BatchSetExportHashes records export hashes for multiple issues in one
// transaction. Exports touch every issue, so per-issue transactions add up.
func (s *SQLiteStorage) BatchSetExportHashes(ctx context.Context, hashes map[string]string) error {
	if len(hashes) == 0 {
		return nil
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		stmt, err := conn.PrepareContext(ctx, `
			INSERT INTO export_hashes (issue_id, content_hash, exported_at)
			VALUES (?, ?, ?)
			ON CONFLICT (issue_id) DO UPDATE SET
				content_hash = excluded.content_hash,
				exported_at = excluded.exported_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare export hash statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		now := time.Now().UTC()
		for issueID, contentHash := range hashes {
			if _, err := stmt.ExecContext(ctx, issueID, contentHash, now); err != nil {
				return fmt.Errorf("failed to set export hash for %s: %w", issueID, err)
			}
		}
		return nil
	})
}

// ClearAllExportHashes removes all export hashes, forcing the next export
// to treat every issue as never exported.
func (s *SQLiteStorage) ClearAllExportHashes(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM export_hashes"); err != nil {
		return fmt.Errorf("failed to clear export hashes: %w", err)
	}
	return nil
}
