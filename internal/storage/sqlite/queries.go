package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/beadworks/beads/internal/types"
)

// buildFilterClauses translates an IssueFilter into WHERE clauses over
// issues aliased i. Tombstones are excluded unless the caller asks for
// them or filters for tombstone status directly.
func buildFilterClauses(filter types.IssueFilter) ([]string, []interface{}) {
	var whereClauses []string
	var args []interface{}

	if !filter.IncludeTombstones && (filter.Status == nil || *filter.Status != types.StatusTombstone) {
		whereClauses = append(whereClauses, "i.status != 'tombstone'")
	}

	if filter.Status != nil {
		whereClauses = append(whereClauses, "i.status = ?")
		args = append(args, *filter.Status)
	}

	if len(filter.ExcludeStatus) > 0 {
		placeholders := buildPlaceholders(len(filter.ExcludeStatus))
		whereClauses = append(whereClauses, fmt.Sprintf("i.status NOT IN (%s)", placeholders))
		for _, st := range filter.ExcludeStatus {
			args = append(args, st)
		}
	}

	if filter.Priority != nil {
		whereClauses = append(whereClauses, "i.priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.PriorityMin != nil {
		whereClauses = append(whereClauses, "i.priority >= ?")
		args = append(args, *filter.PriorityMin)
	}
	if filter.PriorityMax != nil {
		whereClauses = append(whereClauses, "i.priority <= ?")
		args = append(args, *filter.PriorityMax)
	}

	if filter.IssueType != nil {
		whereClauses = append(whereClauses, "i.issue_type = ?")
		args = append(args, *filter.IssueType)
	}

	if len(filter.ExcludeTypes) > 0 {
		placeholders := buildPlaceholders(len(filter.ExcludeTypes))
		whereClauses = append(whereClauses, fmt.Sprintf("i.issue_type NOT IN (%s)", placeholders))
		for _, t := range filter.ExcludeTypes {
			args = append(args, t)
		}
	}

	// NoAssignee takes precedence over Assignee filter
	if filter.NoAssignee {
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

	if len(filter.LabelsAny) > 0 {
		placeholders := buildPlaceholders(len(filter.LabelsAny))
		whereClauses = append(whereClauses, fmt.Sprintf(`
			EXISTS (
				SELECT 1 FROM labels
				WHERE issue_id = i.id AND label IN (%s)
			)
		`, placeholders))
		for _, label := range filter.LabelsAny {
			args = append(args, label)
		}
	}

	if len(filter.IDs) > 0 {
		placeholders := buildPlaceholders(len(filter.IDs))
		whereClauses = append(whereClauses, fmt.Sprintf("i.id IN (%s)", placeholders))
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	if filter.IDPrefix != "" {
		whereClauses = append(whereClauses, "i.id LIKE ?")
		args = append(args, filter.IDPrefix+"%")
	}

	if filter.TitleSearch != "" {
		whereClauses = append(whereClauses, "(i.title LIKE ? OR i.description LIKE ? OR i.id LIKE ?)")
		pattern := "%" + filter.TitleSearch + "%"
		args = append(args, pattern, pattern, pattern)
	}

	if filter.CreatedAfter != nil {
		whereClauses = append(whereClauses, "datetime(i.created_at) >= datetime(?)")
		args = append(args, *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		whereClauses = append(whereClauses, "datetime(i.created_at) <= datetime(?)")
		args = append(args, *filter.CreatedBefore)
	}
	if filter.UpdatedAfter != nil {
		whereClauses = append(whereClauses, "datetime(i.updated_at) >= datetime(?)")
		args = append(args, *filter.UpdatedAfter)
	}
	if filter.UpdatedBefore != nil {
		whereClauses = append(whereClauses, "datetime(i.updated_at) <= datetime(?)")
		args = append(args, *filter.UpdatedBefore)
	}
	if filter.ClosedAfter != nil {
		whereClauses = append(whereClauses, "datetime(i.closed_at) >= datetime(?)")
		args = append(args, *filter.ClosedAfter)
	}
	if filter.ClosedBefore != nil {
		whereClauses = append(whereClauses, "datetime(i.closed_at) <= datetime(?)")
		args = append(args, *filter.ClosedBefore)
	}

	if filter.Ephemeral != nil {
		whereClauses = append(whereClauses, "i.ephemeral = ?")
		args = append(args, boolToInt(*filter.Ephemeral))
	}
	if filter.Pinned != nil {
		whereClauses = append(whereClauses, "i.pinned = ?")
		args = append(args, boolToInt(*filter.Pinned))
	}
	if filter.IsTemplate != nil {
		whereClauses = append(whereClauses, "i.is_template = ?")
		args = append(args, boolToInt(*filter.IsTemplate))
	}

	if filter.ParentID != nil {
		whereClauses = append(whereClauses, `
			EXISTS (
				SELECT 1 FROM dependencies
				WHERE issue_id = i.id AND depends_on_id = ? AND type = 'parent-child'
			)
		`)
		args = append(args, *filter.ParentID)
	}

	if filter.Overdue {
		whereClauses = append(whereClauses, "i.due_at IS NOT NULL AND datetime(i.due_at) < datetime('now') AND i.status NOT IN ('closed', 'tombstone')")
	}

	return whereClauses, args
}

// orderBySQL maps a sort key to an ORDER BY clause. Timestamps default to
// newest first for browsing; priority defaults to P0 first; text keys sort
// ascending. reverse flips whichever direction the key defaults to.
func orderBySQL(sortBy types.SortKey, reverse bool) string {
	var column string
	desc := false

	switch sortBy {
	case types.SortUpdated:
		column, desc = "i.updated_at", true
	case types.SortPriority:
		column = "i.priority"
	case types.SortStatus:
		column = "i.status"
	case types.SortTitle:
		column = "i.title COLLATE NOCASE"
	case types.SortID:
		column = "i.id"
	case types.SortType:
		column = "i.issue_type"
	case types.SortCreated, "":
		column, desc = "i.created_at", true
	default:
		column, desc = "i.created_at", true
	}

	if reverse {
		desc = !desc
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, i.id ASC", column, dir)
}

// ListIssues returns issues matching the filter in the requested order.
func (s *SQLiteStorage) ListIssues(ctx context.Context, filter types.IssueFilter, sortBy types.SortKey, reverse bool) ([]*types.Issue, error) {
	if !sortBy.IsValid() {
		return nil, fmt.Errorf("invalid sort key: %s", sortBy)
	}

	whereClauses, args := buildFilterClauses(filter)
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = limitClause
		args = append(args, filter.Limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT %s
		FROM issues i
		%s
		%s
		%s
	`, qualifyColumns("i", issueColumns), whereSQL, orderBySQL(sortBy, reverse), limitSQL)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return s.scanIssues(ctx, rows)
}

// SearchIssues returns issues whose title, description, or ID contains
// the query substring, intersected with the filter.
func (s *SQLiteStorage) SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	whereClauses, args := buildFilterClauses(filter)

	if query != "" {
		whereClauses = append(whereClauses, "(i.title LIKE ? OR i.description LIKE ? OR i.id LIKE ?)")
		pattern := "%" + query + "%"
		args = append(args, pattern, pattern, pattern)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = "WHERE " + strings.Join(whereClauses, " AND ")
	}

	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = limitClause
		args = append(args, filter.Limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	sqlQuery := fmt.Sprintf(`
		SELECT %s
		FROM issues i
		%s
		ORDER BY i.priority ASC, i.created_at ASC
		%s
	`, qualifyColumns("i", issueColumns), whereSQL, limitSQL)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return s.scanIssues(ctx, rows)
}
