package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beadworks/beads/internal/types"
)

const limitClause = " LIMIT ?"

// recordEvent appends an audit event inside the caller's transaction.
// Empty old/new values are stored as NULL.
func recordEvent(ctx context.Context, conn *sql.Conn, issueID string, eventType types.EventType, actor, oldValue, newValue string) error {
	var oldArg, newArg interface{}
	if oldValue != "" {
		oldArg = oldValue
	}
	if newValue != "" {
		newArg = newValue
	}
	_, err := conn.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value, new_value)
		VALUES (?, ?, ?, ?, ?)
	`, issueID, eventType, actor, oldArg, newArg)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// recordCreatedEvent records a creation event carrying the full issue JSON.
func recordCreatedEvent(ctx context.Context, conn *sql.Conn, issue *types.Issue, actor string) error {
	eventData, err := json.Marshal(issue)
	if err != nil {
		eventData = []byte(fmt.Sprintf(`{"id":%q,"title":%q}`, issue.ID, issue.Title))
	}
	return recordEvent(ctx, conn, issue.ID, types.EventCreated, actor, "", string(eventData))
}

// recordCreatedEvents bulk records creation events for multiple issues
func recordCreatedEvents(ctx context.Context, conn *sql.Conn, issues []*types.Issue, actor string) error {
	stmt, err := conn.PrepareContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, new_value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, issue := range issues {
		eventData, err := json.Marshal(issue)
		if err != nil {
			eventData = []byte(fmt.Sprintf(`{"id":%q,"title":%q}`, issue.ID, issue.Title))
		}
		if _, err := stmt.ExecContext(ctx, issue.ID, types.EventCreated, actor, string(eventData)); err != nil {
			return fmt.Errorf("failed to record event for %s: %w", issue.ID, err)
		}
	}
	return nil
}

// GetEvents returns the event history for an issue, newest first.
func (s *SQLiteStorage) GetEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error) {
	args := []interface{}{issueID}
	limitSQL := ""
	if limit > 0 {
		limitSQL = limitClause
		args = append(args, limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT id, issue_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events
		WHERE issue_id = ?
		ORDER BY created_at DESC, id DESC
		%s
	`, limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var event types.Event
		var oldValue, newValue, comment sql.NullString

		err := rows.Scan(
			&event.ID, &event.IssueID, &event.EventType, &event.Actor,
			&oldValue, &newValue, &comment, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if oldValue.Valid {
			event.OldValue = &oldValue.String
		}
		if newValue.Valid {
			event.NewValue = &newValue.String
		}
		if comment.Valid {
			event.Comment = &comment.String
		}

		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// AddIssueComment adds a comment to an issue. The comment rides along in the
// exported log, so the issue's updated_at is bumped and the issue is marked
// dirty in the same transaction.
func (s *SQLiteStorage) AddIssueComment(ctx context.Context, issueID, author, text string) (*types.Comment, error) {
	var comment *types.Comment
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		now := time.Now()
		res, err := conn.ExecContext(ctx, `UPDATE issues SET updated_at = ? WHERE id = ?`, now, issueID)
		if err != nil {
			return fmt.Errorf("failed to update timestamp: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("issue %s not found", issueID)
		}

		result, err := conn.ExecContext(ctx, `
			INSERT INTO comments (issue_id, author, text, created_at)
			VALUES (?, ?, ?, ?)
		`, issueID, author, text, now)
		if err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
		commentID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get comment ID: %w", err)
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO events (issue_id, event_type, actor, comment)
			VALUES (?, ?, ?, ?)
		`, issueID, types.EventCommented, author, text)
		if err != nil {
			return fmt.Errorf("failed to record comment event: %w", err)
		}

		comment = &types.Comment{
			ID:        commentID,
			IssueID:   issueID,
			Author:    author,
			Text:      text,
			CreatedAt: now,
		}
		return markDirty(ctx, conn, issueID)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// insertComments inserts comments carried on an imported issue record,
// preserving their original timestamps. No events are recorded and
// updated_at is not bumped: the comments arrived with the issue.
func insertComments(ctx context.Context, conn *sql.Conn, issueID string, comments []*types.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	stmt, err := conn.PrepareContext(ctx, `
		INSERT INTO comments (issue_id, author, text, created_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare comment statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range comments {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, issueID, c.Author, c.Text, createdAt); err != nil {
			return fmt.Errorf("failed to insert comment: %w", err)
		}
	}
	return nil
}

// InsertComments attaches imported comments to an existing issue,
// preserving their original timestamps. Unlike AddIssueComment this
// records no event and does not mark the issue dirty: the comments came
// from the log, so there is nothing new to flush back.
func (s *SQLiteStorage) InsertComments(ctx context.Context, issueID string, comments []*types.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	return s.withConn(ctx, func(conn *sql.Conn) error {
		var exists int
		err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, issueID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check issue existence: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("issue %s not found", issueID)
		}
		return insertComments(ctx, conn, issueID, comments)
	})
}

// GetIssueComments retrieves all comments for an issue, oldest first.
func (s *SQLiteStorage) GetIssueComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, author, text, created_at
		FROM comments
		WHERE issue_id = ?
		ORDER BY created_at ASC, id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*types.Comment
	for rows.Next() {
		comment := &types.Comment{}
		if err := rows.Scan(&comment.ID, &comment.IssueID, &comment.Author, &comment.Text, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

// GetCommentsForIssues fetches comments for multiple issues in a single query.
// Returns a map of issue_id -> comments, oldest first.
func (s *SQLiteStorage) GetCommentsForIssues(ctx context.Context, issueIDs []string) (map[string][]*types.Comment, error) {
	result := make(map[string][]*types.Comment)
	if len(issueIDs) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(issueIDs))
	for i, id := range issueIDs {
		args[i] = id
	}

	// #nosec G201 -- placeholders are generated internally
	query := fmt.Sprintf(`
		SELECT id, issue_id, author, text, created_at
		FROM comments
		WHERE issue_id IN (%s)
		ORDER BY issue_id, created_at ASC, id ASC
	`, buildPlaceholders(len(issueIDs)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		comment := &types.Comment{}
		if err := rows.Scan(&comment.ID, &comment.IssueID, &comment.Author, &comment.Text, &comment.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		result[comment.IssueID] = append(result[comment.IssueID], comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return result, nil
}

// GetStatistics returns aggregate statistics. Tombstones are excluded from
// the total and reported in their own bucket; the ready count uses the same
// condition as GetReadyWork.
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{
		ByType:     make(map[string]int),
		ByPriority: make(map[int]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status != 'tombstone' THEN 1 ELSE 0 END), 0) as total,
			COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0) as open,
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0) as in_progress,
			COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0) as blocked,
			COALESCE(SUM(CASE WHEN status = 'deferred' THEN 1 ELSE 0 END), 0) as deferred,
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0) as closed,
			COALESCE(SUM(CASE WHEN status = 'tombstone' THEN 1 ELSE 0 END), 0) as tombstone,
			COALESCE(SUM(CASE WHEN pinned = 1 OR status = 'pinned' THEN 1 ELSE 0 END), 0) as pinned
		FROM issues
	`).Scan(&stats.TotalIssues, &stats.OpenIssues, &stats.InProgressIssues, &stats.BlockedIssues,
		&stats.DeferredIssues, &stats.ClosedIssues, &stats.TombstoneIssues, &stats.PinnedIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issues i WHERE `+readyConditionSQL,
	).Scan(&stats.ReadyIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_type, COUNT(*) FROM issues
		WHERE status != 'tombstone'
		GROUP BY issue_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get type counts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var issueType string
		var count int
		if err := rows.Scan(&issueType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		stats.ByType[issueType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating type counts: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `
		SELECT priority, COUNT(*) FROM issues
		WHERE status != 'tombstone'
		GROUP BY priority
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority counts: %w", err)
	}
	defer func() { _ = prows.Close() }()
	for prows.Next() {
		var priority, count int
		if err := prows.Scan(&priority, &count); err != nil {
			return nil, fmt.Errorf("failed to scan priority count: %w", err)
		}
		stats.ByPriority[priority] = count
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating priority counts: %w", err)
	}

	var avgLeadTime sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG((julianday(closed_at) - julianday(created_at)) * 24)
		FROM issues
		WHERE closed_at IS NOT NULL
	`).Scan(&avgLeadTime)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get lead time: %w", err)
	}
	if avgLeadTime.Valid {
		stats.AverageLeadTime = avgLeadTime.Float64
	}

	return stats, nil
}
