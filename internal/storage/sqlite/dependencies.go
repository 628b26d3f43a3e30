package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// cycleCheckSQL reports whether the second argument is reachable from the
// first by walking outgoing edges. Every edge type participates: an
// informational cycle is as confusing to untangle later as a blocking one,
// so both are refused up front. Depth is capped to bound the walk on
// adversarial graphs.
const cycleCheckSQL = `
	WITH RECURSIVE paths AS (
		SELECT issue_id, depends_on_id, 1 AS depth
		FROM dependencies
		WHERE issue_id = ?

		UNION ALL

		SELECT d.issue_id, d.depends_on_id, p.depth + 1
		FROM dependencies d
		JOIN paths p ON d.issue_id = p.depends_on_id
		WHERE p.depth < 100
	)
	SELECT EXISTS(SELECT 1 FROM paths WHERE depends_on_id = ?)
`

// AddDependency adds a typed edge from dep.IssueID to dep.DependsOnID.
// Both endpoints must exist, self-edges are rejected, and the edge is
// refused if the reverse direction is already reachable. Adding an edge
// that already exists updates its type and metadata in place.
func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	if !dep.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", dep.Type)
	}
	if dep.IssueID == dep.DependsOnID {
		return fmt.Errorf("issue cannot depend on itself")
	}

	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now()
	}
	if dep.CreatedBy == "" {
		dep.CreatedBy = actor
	}
	metadata := dep.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		var count int
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, dep.IssueID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check issue existence: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("issue %s not found", dep.IssueID)
		}

		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, dep.DependsOnID).Scan(&count); err != nil {
			return fmt.Errorf("failed to check target issue existence: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("issue %s not found", dep.DependsOnID)
		}

		var cycleExists bool
		if err := conn.QueryRowContext(ctx, cycleCheckSQL, dep.DependsOnID, dep.IssueID).Scan(&cycleExists); err != nil {
			return fmt.Errorf("failed to check for cycles: %w", err)
		}
		if cycleExists {
			return fmt.Errorf("cannot add dependency: would create a cycle")
		}

		_, err := conn.ExecContext(ctx, `
			INSERT INTO dependencies (issue_id, depends_on_id, type, created_at, created_by, metadata, thread_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (issue_id, depends_on_id) DO UPDATE SET
				type = excluded.type,
				metadata = excluded.metadata
		`, dep.IssueID, dep.DependsOnID, dep.Type, dep.CreatedAt, dep.CreatedBy, metadata, dep.ThreadID)
		if err != nil {
			return fmt.Errorf("failed to add dependency: %w", err)
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO events (issue_id, event_type, actor, comment)
			VALUES (?, ?, ?, ?)
		`, dep.IssueID, types.EventDependencyAdded, actor,
			fmt.Sprintf("Added dependency: %s %s %s", dep.IssueID, dep.Type, dep.DependsOnID))
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		if err := markDirty(ctx, conn, dep.IssueID); err != nil {
			return err
		}
		return markDirty(ctx, conn, dep.DependsOnID)
	})
}

// RemoveDependency removes the edge from issueID to dependsOnID.
func (s *SQLiteStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID string, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		result, err := conn.ExecContext(ctx, `
			DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?
		`, issueID, dependsOnID)
		if err != nil {
			return fmt.Errorf("failed to remove dependency: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("dependency from %s to %s does not exist", issueID, dependsOnID)
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO events (issue_id, event_type, actor, comment)
			VALUES (?, ?, ?, ?)
		`, issueID, types.EventDependencyRemoved, actor,
			fmt.Sprintf("Removed dependency on %s", dependsOnID))
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}

		if err := markDirty(ctx, conn, issueID); err != nil {
			return err
		}
		return markDirty(ctx, conn, dependsOnID)
	})
}

// insertDependencies inserts edges carried on imported or batch-created
// issue records. Edges whose target is not in the store are skipped rather
// than failed: the target may arrive in a later import, which re-imports
// the edge. No events are recorded and nothing is marked dirty.
func insertDependencies(ctx context.Context, conn *sql.Conn, deps []*types.Dependency) error {
	for _, dep := range deps {
		if dep.IssueID == dep.DependsOnID {
			continue
		}

		var one int
		err := conn.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, dep.DependsOnID).Scan(&one)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to check dependency target: %w", err)
		}

		createdAt := dep.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		metadata := dep.Metadata
		if metadata == "" {
			metadata = "{}"
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO dependencies (issue_id, depends_on_id, type, created_at, created_by, metadata, thread_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (issue_id, depends_on_id) DO UPDATE SET
				type = excluded.type,
				metadata = excluded.metadata
		`, dep.IssueID, dep.DependsOnID, dep.Type, createdAt, dep.CreatedBy, metadata, dep.ThreadID)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", dep.IssueID, dep.DependsOnID, err)
		}
	}
	return nil
}

// GetDependencies retrieves the issues that issueID depends on.
func (s *SQLiteStorage) GetDependencies(ctx context.Context, issueID string) ([]*types.Issue, error) {
	// #nosec G201 -- issueColumns is a compile-time constant
	query := fmt.Sprintf(`
		SELECT %s FROM issues i
		JOIN dependencies d ON i.id = d.depends_on_id
		WHERE d.issue_id = ?
		ORDER BY i.priority ASC, i.created_at ASC
	`, qualifyColumns("i", issueColumns))

	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return s.scanIssues(ctx, rows)
}

// GetDependents retrieves the issues that depend on issueID.
func (s *SQLiteStorage) GetDependents(ctx context.Context, issueID string) ([]*types.Issue, error) {
	// #nosec G201 -- issueColumns is a compile-time constant
	query := fmt.Sprintf(`
		SELECT %s FROM issues i
		JOIN dependencies d ON i.id = d.issue_id
		WHERE d.depends_on_id = ?
		ORDER BY i.priority ASC, i.created_at ASC
	`, qualifyColumns("i", issueColumns))

	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return s.scanIssues(ctx, rows)
}

// GetDependencyRecords returns the raw outgoing edges for an issue.
func (s *SQLiteStorage) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by, metadata, thread_id
		FROM dependencies
		WHERE issue_id = ?
		ORDER BY depends_on_id
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanDependencyRows(rows)
}

// GetAllDependencyRecords returns every edge in the store, keyed by source
// issue. The exporter embeds these in each issue's log record.
func (s *SQLiteStorage) GetAllDependencyRecords(ctx context.Context) (map[string][]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by, metadata, thread_id
		FROM dependencies
		ORDER BY issue_id, depends_on_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all dependency records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string][]*types.Dependency)
	for rows.Next() {
		dep, err := scanDependencyRow(rows)
		if err != nil {
			return nil, err
		}
		result[dep.IssueID] = append(result[dep.IssueID], dep)
	}
	return result, rows.Err()
}

// GetDependencyCounts returns blocking in/out degree for multiple issues
// in two queries. Only blocking edge types are counted.
func (s *SQLiteStorage) GetDependencyCounts(ctx context.Context, issueIDs []string) (map[string]*types.DependencyCounts, error) {
	result := make(map[string]*types.DependencyCounts)
	if len(issueIDs) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(issueIDs))
	for i, id := range issueIDs {
		args[i] = id
	}
	for _, id := range issueIDs {
		result[id] = &types.DependencyCounts{}
	}

	// #nosec G201 -- placeholders are generated internally
	depQuery := fmt.Sprintf(`
		SELECT issue_id, COUNT(*) FROM dependencies
		WHERE issue_id IN (%s) AND type IN (%s)
		GROUP BY issue_id
	`, buildPlaceholders(len(issueIDs)), blockingTypesSQL)

	depRows, err := s.db.QueryContext(ctx, depQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency counts: %w", err)
	}
	defer func() { _ = depRows.Close() }()

	for depRows.Next() {
		var id string
		var cnt int
		if err := depRows.Scan(&id, &cnt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency count: %w", err)
		}
		if c, ok := result[id]; ok {
			c.DependencyCount = cnt
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, err
	}

	// #nosec G201 -- placeholders are generated internally
	blockingQuery := fmt.Sprintf(`
		SELECT depends_on_id, COUNT(*) FROM dependencies
		WHERE depends_on_id IN (%s) AND type IN (%s)
		GROUP BY depends_on_id
	`, buildPlaceholders(len(issueIDs)), blockingTypesSQL)

	blockingRows, err := s.db.QueryContext(ctx, blockingQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependent counts: %w", err)
	}
	defer func() { _ = blockingRows.Close() }()

	for blockingRows.Next() {
		var id string
		var cnt int
		if err := blockingRows.Scan(&id, &cnt); err != nil {
			return nil, fmt.Errorf("failed to scan dependent count: %w", err)
		}
		if c, ok := result[id]; ok {
			c.DependentCount = cnt
		}
	}
	return result, blockingRows.Err()
}

// GetDependencyTree walks the graph from issueID and returns the visited
// nodes in depth-first order. Forward walks follow outgoing edges (what
// this issue depends on); reverse walks follow incoming edges. Each issue
// appears at most once; a node cut off by maxDepth or a revisit is marked
// truncated.
func (s *SQLiteStorage) GetDependencyTree(ctx context.Context, issueID string, maxDepth int, reverse bool) ([]*types.TreeNode, error) {
	visited := make(map[string]bool)
	return s.buildDependencyTree(ctx, issueID, "", 0, maxDepth, reverse, visited)
}

func (s *SQLiteStorage) buildDependencyTree(ctx context.Context, issueID, parentID string, depth, maxDepth int, reverse bool, visited map[string]bool) ([]*types.TreeNode, error) {
	issue, err := s.GetIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		if depth == 0 {
			return nil, fmt.Errorf("issue %s not found", issueID)
		}
		return nil, nil
	}

	node := &types.TreeNode{
		Issue:    *issue,
		Depth:    depth,
		ParentID: parentID,
	}

	if visited[issueID] || depth >= maxDepth {
		node.Truncated = true
		return []*types.TreeNode{node}, nil
	}
	visited[issueID] = true

	query := `SELECT depends_on_id FROM dependencies WHERE issue_id = ? ORDER BY depends_on_id`
	if reverse {
		query = `SELECT issue_id FROM dependencies WHERE depends_on_id = ? ORDER BY issue_id`
	}

	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree edges: %w", err)
	}

	var childIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan tree edge: %w", err)
		}
		childIDs = append(childIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	nodes := []*types.TreeNode{node}
	for _, childID := range childIDs {
		children, err := s.buildDependencyTree(ctx, childID, issueID, depth+1, maxDepth, reverse, visited)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, children...)
	}
	return nodes, nil
}

// DetectCycles finds circular dependency chains across all edge types.
// AddDependency refuses cycles, but imports can still assemble one from
// edges that were valid in separate clones.
func (s *SQLiteStorage) DetectCycles(ctx context.Context) ([][]*types.Issue, error) {
	deps, err := s.GetAllDependencyRecords(ctx)
	if err != nil {
		return nil, err
	}

	graph := make(map[string][]string)
	for issueID, records := range deps {
		for _, dep := range records {
			graph[issueID] = append(graph[issueID], dep.DependsOnID)
		}
	}

	var cycles [][]*types.Issue
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, neighbor := range graph[node] {
			if !visited[neighbor] {
				dfs(neighbor)
			} else if recStack[neighbor] {
				cycleStart := -1
				for i, n := range path {
					if n == neighbor {
						cycleStart = i
						break
					}
				}
				if cycleStart >= 0 {
					var cycleIssues []*types.Issue
					for _, id := range path[cycleStart:] {
						issue, _ := s.GetIssue(ctx, id)
						if issue != nil {
							cycleIssues = append(cycleIssues, issue)
						}
					}
					if len(cycleIssues) > 0 {
						cycles = append(cycles, cycleIssues)
					}
				}
			}
		}

		path = path[:len(path)-1]
		recStack[node] = false
	}

	for node := range graph {
		if !visited[node] {
			dfs(node)
		}
	}

	return cycles, nil
}

// IsBlocked reports whether an issue has blocking edges to unresolved
// blockers, and returns the blocker IDs.
func (s *SQLiteStorage) IsBlocked(ctx context.Context, issueID string) (bool, []string, error) {
	// #nosec G201 -- type and status lists are compile-time constants
	query := fmt.Sprintf(`
		SELECT d.depends_on_id
		FROM dependencies d
		JOIN issues blocker ON d.depends_on_id = blocker.id
		WHERE d.issue_id = ?
		  AND d.type IN (%s)
		  AND blocker.status IN (%s)
		ORDER BY d.depends_on_id
	`, blockingTypesSQL, blockingStatusesSQL)

	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check blockers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blockers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return false, nil, err
		}
		blockers = append(blockers, id)
	}
	if err := rows.Err(); err != nil {
		return false, nil, err
	}

	return len(blockers) > 0, blockers, nil
}

func scanDependencyRows(rows *sql.Rows) ([]*types.Dependency, error) {
	var deps []*types.Dependency
	for rows.Next() {
		dep, err := scanDependencyRow(rows)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func scanDependencyRow(rows *sql.Rows) (*types.Dependency, error) {
	dep := &types.Dependency{}
	var createdAt sql.NullTime
	var createdBy, metadata, threadID sql.NullString

	if err := rows.Scan(&dep.IssueID, &dep.DependsOnID, &dep.Type, &createdAt, &createdBy, &metadata, &threadID); err != nil {
		return nil, fmt.Errorf("failed to scan dependency: %w", err)
	}

	if createdAt.Valid {
		dep.CreatedAt = createdAt.Time
	}
	dep.CreatedBy = createdBy.String
	if metadata.Valid && metadata.String != "{}" {
		dep.Metadata = metadata.String
	}
	dep.ThreadID = threadID.String
	return dep, nil
}
