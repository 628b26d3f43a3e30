package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/beadworks/beads/internal/types"
)

// Edge types that block downstream work, and blocker statuses that count
// as unresolved. A closed or tombstoned blocker releases its dependents.
const (
	blockingTypesSQL    = `'blocks', 'parent-child', 'conditional-blocks', 'waits-for'`
	blockingStatusesSQL = `'open', 'in_progress', 'blocked', 'deferred', 'hooked'`
)

// blockedExistsSQL matches issues (aliased i) with at least one unmet
// blocking edge.
var blockedExistsSQL = fmt.Sprintf(`EXISTS (
	SELECT 1 FROM dependencies d
	JOIN issues blocker ON blocker.id = d.depends_on_id
	WHERE d.issue_id = i.id
	  AND d.type IN (%s)
	  AND blocker.status IN (%s)
)`, blockingTypesSQL, blockingStatusesSQL)

// readyConditionSQL is the full ready-work predicate over issues aliased i:
// open, not ephemeral, not pinned, not deferred into the future, and no
// unmet blocking edge. GetStatistics reuses it so the ready count always
// agrees with GetReadyWork.
var readyConditionSQL = fmt.Sprintf(`i.status = 'open'
	AND i.ephemeral = 0
	AND i.pinned = 0
	AND (i.defer_until IS NULL OR datetime(i.defer_until) <= datetime('now'))
	AND NOT %s`, blockedExistsSQL)

// GetReadyWork returns open issues whose blockers are all resolved,
// ordered by priority then age.
func (s *SQLiteStorage) GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	whereClauses := []string{readyConditionSQL}
	args := []interface{}{}

	if filter.Type != "" {
		whereClauses = append(whereClauses, "i.issue_type = ?")
		args = append(args, filter.Type)
	}

	if filter.Priority != nil {
		whereClauses = append(whereClauses, "i.priority = ?")
		args = append(args, *filter.Priority)
	}

	// Unassigned takes precedence over Assignee filter
	if filter.Unassigned {
		whereClauses = append(whereClauses, "(i.assignee IS NULL OR i.assignee = '')")
	} else if filter.Assignee != nil {
		whereClauses = append(whereClauses, "i.assignee = ?")
		args = append(args, *filter.Assignee)
	}

	for _, label := range filter.Labels {
		whereClauses = append(whereClauses, `
			EXISTS (
				SELECT 1 FROM labels
				WHERE issue_id = i.id AND label = ?
			)
		`)
		args = append(args, label)
	}

	whereSQL := strings.Join(whereClauses, " AND ")

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = limitClause
		args = append(args, filter.Limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT %s
		FROM issues i
		WHERE %s
		ORDER BY i.priority ASC, i.created_at ASC
		%s
	`, qualifyColumns("i", issueColumns), whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready work: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return s.scanIssues(ctx, rows)
}

// GetBlockedIssues returns non-closed issues with at least one unmet
// blocking edge, each annotated with its unresolved blocker IDs.
func (s *SQLiteStorage) GetBlockedIssues(ctx context.Context, filter types.WorkFilter) ([]*types.BlockedIssue, error) {
	whereClauses := []string{
		"i.status NOT IN ('closed', 'tombstone')",
		blockedExistsSQL,
	}
	args := []interface{}{}

	if filter.Type != "" {
		whereClauses = append(whereClauses, "i.issue_type = ?")
		args = append(args, filter.Type)
	}

	if filter.Priority != nil {
		whereClauses = append(whereClauses, "i.priority = ?")
		args = append(args, *filter.Priority)
	}

	if filter.Unassigned {
		whereClauses = append(whereClauses, "(i.assignee IS NULL OR i.assignee = '')")
	} else if filter.Assignee != nil {
		whereClauses = append(whereClauses, "i.assignee = ?")
		args = append(args, *filter.Assignee)
	}

	for _, label := range filter.Labels {
		whereClauses = append(whereClauses, `
			EXISTS (
				SELECT 1 FROM labels
				WHERE issue_id = i.id AND label = ?
			)
		`)
		args = append(args, label)
	}

	whereSQL := strings.Join(whereClauses, " AND ")

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = limitClause
		args = append(args, filter.Limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT %s
		FROM issues i
		WHERE %s
		ORDER BY i.priority ASC, i.created_at ASC
		%s
	`, qualifyColumns("i", issueColumns), whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get blocked issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	issues, err := s.scanIssues(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, nil
	}

	issueIDs := make([]string, len(issues))
	for i, issue := range issues {
		issueIDs[i] = issue.ID
	}
	blockerMap, err := s.getBlockersForIssues(ctx, issueIDs)
	if err != nil {
		return nil, err
	}

	blocked := make([]*types.BlockedIssue, 0, len(issues))
	for _, issue := range issues {
		blockers := blockerMap[issue.ID]
		blocked = append(blocked, &types.BlockedIssue{
			Issue:          *issue,
			BlockedByCount: len(blockers),
			BlockedBy:      blockers,
		})
	}
	return blocked, nil
}

// getBlockersForIssues returns the unresolved blocker IDs for each given
// issue in a single query.
func (s *SQLiteStorage) getBlockersForIssues(ctx context.Context, issueIDs []string) (map[string][]string, error) {
	if len(issueIDs) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(issueIDs))
	for i, id := range issueIDs {
		args[i] = id
	}

	// #nosec G201 -- placeholders and constant lists only
	query := fmt.Sprintf(`
		SELECT d.issue_id, d.depends_on_id
		FROM dependencies d
		JOIN issues blocker ON blocker.id = d.depends_on_id
		WHERE d.issue_id IN (%s)
		  AND d.type IN (%s)
		  AND blocker.status IN (%s)
		ORDER BY d.issue_id, d.depends_on_id
	`, buildPlaceholders(len(issueIDs)), blockingTypesSQL, blockingStatusesSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string][]string)
	for rows.Next() {
		var issueID, blockerID string
		if err := rows.Scan(&issueID, &blockerID); err != nil {
			return nil, fmt.Errorf("failed to scan blocker: %w", err)
		}
		result[issueID] = append(result[issueID], blockerID)
	}
	return result, rows.Err()
}
