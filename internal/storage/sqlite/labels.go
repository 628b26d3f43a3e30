package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/beadworks/beads/internal/types"
)

// AddLabel attaches a label to an issue. Adding a label the issue already
// has is a no-op: no event is recorded and the issue is not marked dirty.
func (s *SQLiteStorage) AddLabel(ctx context.Context, issueID, label, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		var one int
		err := conn.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, issueID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("issue %s not found", issueID)
		}
		if err != nil {
			return fmt.Errorf("failed to check issue existence: %w", err)
		}

		result, err := conn.ExecContext(ctx, `
			INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)
		`, issueID, label)
		if err != nil {
			return fmt.Errorf("failed to add label: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO events (issue_id, event_type, actor, comment)
			VALUES (?, ?, ?, ?)
		`, issueID, types.EventLabelAdded, actor, fmt.Sprintf("Added label: %s", label))
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		return markDirty(ctx, conn, issueID)
	})
}

// RemoveLabel detaches a label from an issue. Removing a label the issue
// does not have is a no-op.
func (s *SQLiteStorage) RemoveLabel(ctx context.Context, issueID, label, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		result, err := conn.ExecContext(ctx, `
			DELETE FROM labels WHERE issue_id = ? AND label = ?
		`, issueID, label)
		if err != nil {
			return fmt.Errorf("failed to remove label: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO events (issue_id, event_type, actor, comment)
			VALUES (?, ?, ?, ?)
		`, issueID, types.EventLabelRemoved, actor, fmt.Sprintf("Removed label: %s", label))
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		return markDirty(ctx, conn, issueID)
	})
}

// GetLabels returns an issue's labels in alphabetical order.
func (s *SQLiteStorage) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label FROM labels WHERE issue_id = ? ORDER BY label
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// GetLabelsForIssues fetches labels for multiple issues in a single query.
// Returns a map of issue_id -> sorted labels. Issues without labels are
// absent from the map.
func (s *SQLiteStorage) GetLabelsForIssues(ctx context.Context, issueIDs []string) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(issueIDs) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(issueIDs))
	for i, id := range issueIDs {
		args[i] = id
	}

	// #nosec G201 -- placeholders are generated internally
	query := fmt.Sprintf(`
		SELECT issue_id, label FROM labels
		WHERE issue_id IN (%s)
		ORDER BY issue_id, label
	`, buildPlaceholders(len(issueIDs)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var issueID, label string
		if err := rows.Scan(&issueID, &label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		result[issueID] = append(result[issueID], label)
	}
	return result, rows.Err()
}
