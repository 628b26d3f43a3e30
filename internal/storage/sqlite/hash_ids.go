package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/beadworks/beads/internal/config"
	"github.com/beadworks/beads/internal/idgen"
)

// getNextChildNumber atomically increments and returns the next child counter
// for a parent issue. Uses INSERT...ON CONFLICT to ensure atomicity without
// explicit locking.
func (s *SQLiteStorage) getNextChildNumber(ctx context.Context, parentID string) (int, error) {
	var nextChild int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO child_counters (parent_id, last_child)
		VALUES (?, 1)
		ON CONFLICT(parent_id) DO UPDATE SET
			last_child = last_child + 1
		RETURNING last_child
	`, parentID).Scan(&nextChild)
	if err != nil {
		return 0, fmt.Errorf("failed to generate next child number for parent %s: %w", parentID, err)
	}
	return nextChild, nil
}

// GetNextChildID generates the next hierarchical child ID for a given parent.
// Returns parentID.{counter} (e.g., bd-a3f8e9.1 or bd-a3f8e9.1.5). The
// counter never resets, so child numbers stay unique even after deletions.
func (s *SQLiteStorage) GetNextChildID(ctx context.Context, parentID string) (string, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, parentID).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("failed to check parent existence: %w", err)
	}
	if count == 0 {
		return "", fmt.Errorf("parent issue %s does not exist", parentID)
	}

	maxDepth := config.GetInt("hierarchy.max-depth")
	if maxDepth <= 0 {
		maxDepth = idgen.MaxDepth
	}
	if idgen.Depth(parentID)+1 > maxDepth {
		return "", fmt.Errorf("cannot create child of %s: hierarchy depth limit is %d", parentID, maxDepth)
	}

	nextNum, err := s.getNextChildNumber(ctx, parentID)
	if err != nil {
		return "", err
	}

	return idgen.ChildID(parentID, nextNum), nil
}

// ensureChildCounterUpdated raises the child counter for parentID to at
// least childNum. Explicit child IDs (--id flag or import) bypass
// getNextChildNumber, so without this a later generated child could collide.
func ensureChildCounterUpdated(ctx context.Context, conn *sql.Conn, parentID string, childNum int) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO child_counters (parent_id, last_child)
		VALUES (?, ?)
		ON CONFLICT(parent_id) DO UPDATE SET
			last_child = MAX(last_child, excluded.last_child)
	`, parentID, childNum)
	if err != nil {
		return fmt.Errorf("failed to update child counter for parent %s: %w", parentID, err)
	}
	return nil
}
