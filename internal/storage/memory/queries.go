package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// containsFold reports a case-insensitive substring match, the way LIKE
// matches in the sqlite backend.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// matchesTextSearch mirrors the search predicate: title, description, or
// ID contains the query substring.
func matchesTextSearch(issue *types.Issue, query string) bool {
	return containsFold(issue.Title, query) ||
		containsFold(issue.Description, query) ||
		containsFold(issue.ID, query)
}

// matchesFilterLocked applies an IssueFilter to a stored issue. Tombstones
// are excluded unless the caller asks for them or filters for tombstone
// status directly.
func (m *MemoryStorage) matchesFilterLocked(issue *types.Issue, filter types.IssueFilter) bool {
	if !filter.IncludeTombstones && (filter.Status == nil || *filter.Status != types.StatusTombstone) {
		if issue.IsTombstone() {
			return false
		}
	}

	if filter.Status != nil && issue.Status != *filter.Status {
		return false
	}
	for _, st := range filter.ExcludeStatus {
		if issue.Status == st {
			return false
		}
	}

	if filter.Priority != nil && issue.Priority != *filter.Priority {
		return false
	}
	if filter.PriorityMin != nil && issue.Priority < *filter.PriorityMin {
		return false
	}
	if filter.PriorityMax != nil && issue.Priority > *filter.PriorityMax {
		return false
	}

	if filter.IssueType != nil && issue.IssueType != *filter.IssueType {
		return false
	}
	for _, t := range filter.ExcludeTypes {
		if issue.IssueType == t {
			return false
		}
	}

	// NoAssignee takes precedence over Assignee filter
	if filter.NoAssignee {
		if issue.Assignee != "" {
			return false
		}
	} else if filter.Assignee != nil && issue.Assignee != *filter.Assignee {
		return false
	}

	if len(filter.Labels) > 0 || len(filter.LabelsAny) > 0 {
		have := make(map[string]bool)
		for _, label := range m.labels[issue.ID] {
			have[label] = true
		}
		for _, label := range filter.Labels {
			if !have[label] {
				return false
			}
		}
		if len(filter.LabelsAny) > 0 {
			any := false
			for _, label := range filter.LabelsAny {
				if have[label] {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
	}

	if len(filter.IDs) > 0 {
		found := false
		for _, id := range filter.IDs {
			if issue.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.IDPrefix != "" && !strings.HasPrefix(issue.ID, filter.IDPrefix) {
		return false
	}

	if filter.TitleSearch != "" && !matchesTextSearch(issue, filter.TitleSearch) {
		return false
	}

	if filter.CreatedAfter != nil && issue.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && issue.CreatedAt.After(*filter.CreatedBefore) {
		return false
	}
	if filter.UpdatedAfter != nil && issue.UpdatedAt.Before(*filter.UpdatedAfter) {
		return false
	}
	if filter.UpdatedBefore != nil && issue.UpdatedAt.After(*filter.UpdatedBefore) {
		return false
	}
	if filter.ClosedAfter != nil {
		if issue.ClosedAt == nil || issue.ClosedAt.Before(*filter.ClosedAfter) {
			return false
		}
	}
	if filter.ClosedBefore != nil {
		if issue.ClosedAt == nil || issue.ClosedAt.After(*filter.ClosedBefore) {
			return false
		}
	}

	if filter.Ephemeral != nil && issue.Ephemeral != *filter.Ephemeral {
		return false
	}
	if filter.Pinned != nil && issue.Pinned != *filter.Pinned {
		return false
	}
	if filter.IsTemplate != nil && issue.IsTemplate != *filter.IsTemplate {
		return false
	}

	if filter.ParentID != nil {
		found := false
		for _, dep := range m.dependencies[issue.ID] {
			if dep.DependsOnID == *filter.ParentID && dep.Type == types.DepParentChild {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Overdue {
		if issue.DueAt == nil || !issue.DueAt.Before(time.Now()) {
			return false
		}
		if issue.Status == types.StatusClosed || issue.IsTombstone() {
			return false
		}
	}

	return true
}

// filterIssuesLocked collects matching issues with labels attached,
// in unspecified order.
func (m *MemoryStorage) filterIssuesLocked(filter types.IssueFilter) []*types.Issue {
	var issues []*types.Issue
	for id, stored := range m.issues {
		if !m.matchesFilterLocked(stored, filter) {
			continue
		}
		issue := copyIssue(stored)
		issue.Labels = m.sortedLabelsLocked(id)
		issues = append(issues, issue)
	}
	return issues
}

// sortIssues orders issues for ListIssues. Timestamps default to newest
// first for browsing; priority defaults to P0 first; text keys sort
// ascending. reverse flips whichever direction the key defaults to, and
// ID ascending always breaks ties.
func sortIssues(issues []*types.Issue, sortBy types.SortKey, reverse bool) {
	type keyFunc func(a, b *types.Issue) int

	var cmp keyFunc
	desc := false

	compareStrings := func(a, b string) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	compareTimes := func(a, b time.Time) int {
		switch {
		case a.Before(b):
			return -1
		case a.After(b):
			return 1
		default:
			return 0
		}
	}

	switch sortBy {
	case types.SortUpdated:
		cmp = func(a, b *types.Issue) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) }
		desc = true
	case types.SortPriority:
		cmp = func(a, b *types.Issue) int { return a.Priority - b.Priority }
	case types.SortStatus:
		cmp = func(a, b *types.Issue) int { return compareStrings(string(a.Status), string(b.Status)) }
	case types.SortTitle:
		cmp = func(a, b *types.Issue) int { return compareStrings(strings.ToLower(a.Title), strings.ToLower(b.Title)) }
	case types.SortID:
		cmp = func(a, b *types.Issue) int { return compareStrings(a.ID, b.ID) }
	case types.SortType:
		cmp = func(a, b *types.Issue) int { return compareStrings(string(a.IssueType), string(b.IssueType)) }
	default:
		cmp = func(a, b *types.Issue) int { return compareTimes(a.CreatedAt, b.CreatedAt) }
		desc = true
	}

	if reverse {
		desc = !desc
	}

	sort.SliceStable(issues, func(i, j int) bool {
		c := cmp(issues[i], issues[j])
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return issues[i].ID < issues[j].ID
	})
}

func applyLimit(issues []*types.Issue, limit int) []*types.Issue {
	if limit > 0 && len(issues) > limit {
		return issues[:limit]
	}
	return issues
}

// ListIssues returns issues matching the filter in the requested order.
func (m *MemoryStorage) ListIssues(ctx context.Context, filter types.IssueFilter, sortBy types.SortKey, reverse bool) ([]*types.Issue, error) {
	if !sortBy.IsValid() {
		return nil, fmt.Errorf("invalid sort key: %s", sortBy)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	issues := m.filterIssuesLocked(filter)
	sortIssues(issues, sortBy, reverse)
	return applyLimit(issues, filter.Limit), nil
}

// SearchIssues returns issues whose title, description, or ID contains
// the query substring, intersected with the filter.
func (m *MemoryStorage) SearchIssues(ctx context.Context, query string, filter types.IssueFilter) ([]*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var issues []*types.Issue
	for id, stored := range m.issues {
		if !m.matchesFilterLocked(stored, filter) {
			continue
		}
		if query != "" && !matchesTextSearch(stored, query) {
			continue
		}
		issue := copyIssue(stored)
		issue.Labels = m.sortedLabelsLocked(id)
		issues = append(issues, issue)
	}
	sortByPriorityThenAge(issues)
	return applyLimit(issues, filter.Limit), nil
}

// readyLocked is the full ready-work predicate: open, not ephemeral, not
// pinned, not deferred into the future, and no unmet blocking edge.
// GetStatistics reuses it so the ready count always agrees with
// GetReadyWork.
func (m *MemoryStorage) readyLocked(issue *types.Issue, now time.Time) bool {
	if issue.Status != types.StatusOpen || issue.Ephemeral || issue.Pinned {
		return false
	}
	if issue.DeferUntil != nil && issue.DeferUntil.After(now) {
		return false
	}
	return len(m.unresolvedBlockersLocked(issue.ID)) == 0
}

// matchesWorkFilterLocked applies the shared filters of the work queries.
// Unassigned takes precedence over Assignee.
func (m *MemoryStorage) matchesWorkFilterLocked(issue *types.Issue, filter types.WorkFilter) bool {
	if filter.Type != "" && issue.IssueType != types.IssueType(filter.Type) {
		return false
	}
	if filter.Priority != nil && issue.Priority != *filter.Priority {
		return false
	}
	if filter.Unassigned {
		if issue.Assignee != "" {
			return false
		}
	} else if filter.Assignee != nil && issue.Assignee != *filter.Assignee {
		return false
	}
	for _, label := range filter.Labels {
		found := false
		for _, have := range m.labels[issue.ID] {
			if have == label {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// GetReadyWork returns open issues whose blockers are all resolved,
// ordered by priority then age.
func (m *MemoryStorage) GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var issues []*types.Issue
	for id, stored := range m.issues {
		if !m.readyLocked(stored, now) {
			continue
		}
		if !m.matchesWorkFilterLocked(stored, filter) {
			continue
		}
		issue := copyIssue(stored)
		issue.Labels = m.sortedLabelsLocked(id)
		issues = append(issues, issue)
	}
	sortByPriorityThenAge(issues)
	return applyLimit(issues, filter.Limit), nil
}

// GetBlockedIssues returns non-closed issues with at least one unmet
// blocking edge, each annotated with its unresolved blocker IDs.
func (m *MemoryStorage) GetBlockedIssues(ctx context.Context, filter types.WorkFilter) ([]*types.BlockedIssue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var issues []*types.Issue
	blockersByID := make(map[string][]string)
	for id, stored := range m.issues {
		if stored.Status == types.StatusClosed || stored.IsTombstone() {
			continue
		}
		blockers := m.unresolvedBlockersLocked(id)
		if len(blockers) == 0 {
			continue
		}
		if !m.matchesWorkFilterLocked(stored, filter) {
			continue
		}
		issue := copyIssue(stored)
		issue.Labels = m.sortedLabelsLocked(id)
		issues = append(issues, issue)
		blockersByID[id] = blockers
	}
	if len(issues) == 0 {
		return nil, nil
	}

	sortByPriorityThenAge(issues)
	issues = applyLimit(issues, filter.Limit)

	blocked := make([]*types.BlockedIssue, 0, len(issues))
	for _, issue := range issues {
		blockers := blockersByID[issue.ID]
		blocked = append(blocked, &types.BlockedIssue{
			Issue:          *issue,
			BlockedByCount: len(blockers),
			BlockedBy:      blockers,
		})
	}
	return blocked, nil
}

// GetStatistics returns aggregate statistics. Tombstones are excluded from
// the total and reported in their own bucket; the ready count uses the
// same condition as GetReadyWork.
func (m *MemoryStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &types.Statistics{
		ByType:     make(map[string]int),
		ByPriority: make(map[int]int),
	}

	now := time.Now()
	var leadTimeHours float64
	var leadTimeCount int

	for _, issue := range m.issues {
		switch issue.Status {
		case types.StatusOpen:
			stats.OpenIssues++
		case types.StatusInProgress:
			stats.InProgressIssues++
		case types.StatusBlocked:
			stats.BlockedIssues++
		case types.StatusDeferred:
			stats.DeferredIssues++
		case types.StatusClosed:
			stats.ClosedIssues++
		case types.StatusTombstone:
			stats.TombstoneIssues++
		}
		if issue.Pinned || issue.Status == types.StatusPinned {
			stats.PinnedIssues++
		}
		if !issue.IsTombstone() {
			stats.TotalIssues++
			stats.ByType[string(issue.IssueType)]++
			stats.ByPriority[issue.Priority]++
		}
		if m.readyLocked(issue, now) {
			stats.ReadyIssues++
		}
		if issue.ClosedAt != nil {
			leadTimeHours += issue.ClosedAt.Sub(issue.CreatedAt).Hours()
			leadTimeCount++
		}
	}

	if leadTimeCount > 0 {
		stats.AverageLeadTime = leadTimeHours / float64(leadTimeCount)
	}
	return stats, nil
}
