package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// cycleWalkLimit caps the reachability walk, mirroring the recursion
// depth limit in the sqlite cycle check.
const cycleWalkLimit = 100

// findEdgeLocked returns the index of the edge issueID -> dependsOnID,
// or -1 when it is absent.
func (m *MemoryStorage) findEdgeLocked(issueID, dependsOnID string) int {
	for i, dep := range m.dependencies[issueID] {
		if dep.DependsOnID == dependsOnID {
			return i
		}
	}
	return -1
}

// reachableLocked reports whether to is reachable from from by walking
// outgoing edges, across every edge type.
func (m *MemoryStorage) reachableLocked(from, to string) bool {
	visited := make(map[string]bool)
	var walk func(node string, depth int) bool
	walk = func(node string, depth int) bool {
		if depth > cycleWalkLimit || visited[node] {
			return false
		}
		visited[node] = true
		for _, dep := range m.dependencies[node] {
			if dep.DependsOnID == to {
				return true
			}
			if walk(dep.DependsOnID, depth+1) {
				return true
			}
		}
		return false
	}
	return walk(from, 1)
}

// AddDependency adds a typed edge from dep.IssueID to dep.DependsOnID.
// Both endpoints must exist, self-edges are rejected, and the edge is
// refused if the reverse direction is already reachable. Adding an edge
// that already exists updates its type and metadata in place.
func (m *MemoryStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
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

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.issues[dep.IssueID]; !ok {
		return fmt.Errorf("issue %s not found", dep.IssueID)
	}
	if _, ok := m.issues[dep.DependsOnID]; !ok {
		return fmt.Errorf("issue %s not found", dep.DependsOnID)
	}

	if m.reachableLocked(dep.DependsOnID, dep.IssueID) {
		return fmt.Errorf("cannot add dependency: would create a cycle")
	}

	if i := m.findEdgeLocked(dep.IssueID, dep.DependsOnID); i >= 0 {
		existing := m.dependencies[dep.IssueID][i]
		existing.Type = dep.Type
		existing.Metadata = metadata
	} else {
		stored := &types.Dependency{
			IssueID:     dep.IssueID,
			DependsOnID: dep.DependsOnID,
			Type:        dep.Type,
			CreatedAt:   dep.CreatedAt,
			CreatedBy:   dep.CreatedBy,
			Metadata:    metadata,
			ThreadID:    dep.ThreadID,
		}
		m.dependencies[dep.IssueID] = append(m.dependencies[dep.IssueID], stored)
	}

	m.recordCommentEventLocked(dep.IssueID, types.EventDependencyAdded, actor,
		fmt.Sprintf("Added dependency: %s %s %s", dep.IssueID, dep.Type, dep.DependsOnID))
	m.markDirtyLocked(dep.IssueID)
	m.markDirtyLocked(dep.DependsOnID)
	return nil
}

// RemoveDependency removes the edge from issueID to dependsOnID.
func (m *MemoryStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.findEdgeLocked(issueID, dependsOnID)
	if i < 0 {
		return fmt.Errorf("dependency from %s to %s does not exist", issueID, dependsOnID)
	}
	deps := m.dependencies[issueID]
	m.dependencies[issueID] = append(deps[:i], deps[i+1:]...)
	if len(m.dependencies[issueID]) == 0 {
		delete(m.dependencies, issueID)
	}

	m.recordCommentEventLocked(issueID, types.EventDependencyRemoved, actor,
		fmt.Sprintf("Removed dependency on %s", dependsOnID))
	m.markDirtyLocked(issueID)
	m.markDirtyLocked(dependsOnID)
	return nil
}

// insertDependenciesLocked inserts edges carried on imported or
// batch-created issue records. Edges whose target is not in the store are
// skipped rather than failed: the target may arrive in a later import,
// which re-imports the edge. No events are recorded and nothing is marked
// dirty.
func (m *MemoryStorage) insertDependenciesLocked(deps []*types.Dependency) {
	for _, dep := range deps {
		if dep.IssueID == dep.DependsOnID {
			continue
		}
		if _, ok := m.issues[dep.DependsOnID]; !ok {
			continue
		}

		createdAt := dep.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		metadata := dep.Metadata
		if metadata == "" {
			metadata = "{}"
		}

		if i := m.findEdgeLocked(dep.IssueID, dep.DependsOnID); i >= 0 {
			existing := m.dependencies[dep.IssueID][i]
			existing.Type = dep.Type
			existing.Metadata = metadata
			continue
		}
		m.dependencies[dep.IssueID] = append(m.dependencies[dep.IssueID], &types.Dependency{
			IssueID:     dep.IssueID,
			DependsOnID: dep.DependsOnID,
			Type:        dep.Type,
			CreatedAt:   createdAt,
			CreatedBy:   dep.CreatedBy,
			Metadata:    metadata,
			ThreadID:    dep.ThreadID,
		})
	}
}

// GetDependencies retrieves the issues that issueID depends on.
func (m *MemoryStorage) GetDependencies(ctx context.Context, issueID string) ([]*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var issues []*types.Issue
	for _, dep := range m.dependencies[issueID] {
		if issue := m.issueWithLabelsLocked(dep.DependsOnID); issue != nil {
			issues = append(issues, issue)
		}
	}
	sortByPriorityThenAge(issues)
	return issues, nil
}

// GetDependents retrieves the issues that depend on issueID.
func (m *MemoryStorage) GetDependents(ctx context.Context, issueID string) ([]*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var issues []*types.Issue
	for src, deps := range m.dependencies {
		for _, dep := range deps {
			if dep.DependsOnID == issueID {
				if issue := m.issueWithLabelsLocked(src); issue != nil {
					issues = append(issues, issue)
				}
				break
			}
		}
	}
	sortByPriorityThenAge(issues)
	return issues, nil
}

// GetDependencyRecords returns the raw outgoing edges for an issue.
func (m *MemoryStorage) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dependencyRecordsLocked(issueID), nil
}

// GetAllDependencyRecords returns every edge in the store, keyed by source
// issue. The exporter embeds these in each issue's log record.
func (m *MemoryStorage) GetAllDependencyRecords(ctx context.Context) (map[string][]*types.Dependency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]*types.Dependency, len(m.dependencies))
	for issueID := range m.dependencies {
		result[issueID] = m.dependencyRecordsLocked(issueID)
	}
	return result, nil
}

// GetDependencyCounts returns blocking in/out degree for multiple issues.
// Only blocking edge types are counted.
func (m *MemoryStorage) GetDependencyCounts(ctx context.Context, issueIDs []string) (map[string]*types.DependencyCounts, error) {
	result := make(map[string]*types.DependencyCounts)
	if len(issueIDs) == 0 {
		return result, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(issueIDs))
	for _, id := range issueIDs {
		result[id] = &types.DependencyCounts{}
		wanted[id] = true
	}

	for src, deps := range m.dependencies {
		for _, dep := range deps {
			if !dep.Type.AffectsReadyWork() {
				continue
			}
			if wanted[src] {
				result[src].DependencyCount++
			}
			if wanted[dep.DependsOnID] {
				result[dep.DependsOnID].DependentCount++
			}
		}
	}
	return result, nil
}

// GetDependencyTree walks the graph from issueID and returns the visited
// nodes in depth-first order. Forward walks follow outgoing edges (what
// this issue depends on); reverse walks follow incoming edges. Each issue
// appears at most once; a node cut off by maxDepth or a revisit is marked
// truncated.
func (m *MemoryStorage) GetDependencyTree(ctx context.Context, issueID string, maxDepth int, reverse bool) ([]*types.TreeNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	visited := make(map[string]bool)
	return m.buildDependencyTreeLocked(issueID, "", 0, maxDepth, reverse, visited)
}

func (m *MemoryStorage) buildDependencyTreeLocked(issueID, parentID string, depth, maxDepth int, reverse bool, visited map[string]bool) ([]*types.TreeNode, error) {
	issue := m.issueWithLabelsLocked(issueID)
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

	var childIDs []string
	if reverse {
		for src, deps := range m.dependencies {
			for _, dep := range deps {
				if dep.DependsOnID == issueID {
					childIDs = append(childIDs, src)
					break
				}
			}
		}
	} else {
		for _, dep := range m.dependencies[issueID] {
			childIDs = append(childIDs, dep.DependsOnID)
		}
	}
	sort.Strings(childIDs)

	nodes := []*types.TreeNode{node}
	for _, childID := range childIDs {
		children, err := m.buildDependencyTreeLocked(childID, issueID, depth+1, maxDepth, reverse, visited)
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
func (m *MemoryStorage) DetectCycles(ctx context.Context) ([][]*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	graph := make(map[string][]string)
	for issueID, deps := range m.dependencies {
		for _, dep := range deps {
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
						if issue := m.issueWithLabelsLocked(id); issue != nil {
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

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if !visited[node] {
			dfs(node)
		}
	}

	return cycles, nil
}

// IsBlocked reports whether an issue has blocking edges to unresolved
// blockers, and returns the blocker IDs.
func (m *MemoryStorage) IsBlocked(ctx context.Context, issueID string) (bool, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blockers := m.unresolvedBlockersLocked(issueID)
	return len(blockers) > 0, blockers, nil
}

// unresolvedBlockersLocked returns the sorted IDs of live blockers behind
// an issue's blocking edges.
func (m *MemoryStorage) unresolvedBlockersLocked(issueID string) []string {
	var blockers []string
	for _, dep := range m.dependencies[issueID] {
		if !dep.Type.AffectsReadyWork() {
			continue
		}
		blocker, ok := m.issues[dep.DependsOnID]
		if ok && statusBlocksDependents(blocker.Status) {
			blockers = append(blockers, dep.DependsOnID)
		}
	}
	sort.Strings(blockers)
	return blockers
}

// statusBlocksDependents reports whether a blocker in this status keeps
// its dependents out of the ready set. A closed or tombstoned blocker
// releases them.
func statusBlocksDependents(status types.Status) bool {
	switch status {
	case types.StatusOpen, types.StatusInProgress, types.StatusBlocked, types.StatusDeferred, types.StatusHooked:
		return true
	}
	return false
}

// sortByPriorityThenAge orders issues the way the work queries do:
// priority ascending, then age, with ID as the deterministic tiebreak.
func sortByPriorityThenAge(issues []*types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Priority != issues[j].Priority {
			return issues[i].Priority < issues[j].Priority
		}
		if !issues[i].CreatedAt.Equal(issues[j].CreatedAt) {
			return issues[i].CreatedAt.Before(issues[j].CreatedAt)
		}
		return issues[i].ID < issues[j].ID
	})
}
