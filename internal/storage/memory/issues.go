package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/beadworks/beads/internal/idgen"
	"github.com/beadworks/beads/internal/types"
)

// prepareForInsert fills timestamps and derived fields, repairs lifecycle
// invariants, and validates the issue.
func prepareForInsert(issue *types.Issue) error {
	now := time.Now()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = now
	}

	if issue.Status == types.StatusClosed && issue.ClosedAt == nil {
		maxTime := issue.CreatedAt
		if issue.UpdatedAt.After(maxTime) {
			maxTime = issue.UpdatedAt
		}
		closedAt := maxTime.Add(time.Second)
		issue.ClosedAt = &closedAt
	}
	if issue.Status == types.StatusTombstone && issue.DeletedAt == nil {
		maxTime := issue.CreatedAt
		if issue.UpdatedAt.After(maxTime) {
			maxTime = issue.UpdatedAt
		}
		deletedAt := maxTime.Add(time.Second)
		issue.DeletedAt = &deletedAt
	}

	issue.SetDefaults()
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if issue.ContentHash == "" {
		issue.ContentHash = issue.ComputeContentHash()
	}
	return nil
}

// configPrefixLocked reads the configured issue prefix.
func (m *MemoryStorage) configPrefixLocked() (string, error) {
	prefix := m.config["issue_prefix"]
	if prefix == "" {
		return "", fmt.Errorf("database not initialized: issue_prefix config is missing (run 'bd init --prefix <prefix>' first)")
	}
	return prefix, nil
}

// validateIssueIDPrefix validates that an issue ID matches the configured
// prefix. Supports both top-level (bd-a3f8e9) and hierarchical
// (bd-a3f8e9.1) IDs.
func validateIssueIDPrefix(id, prefix string) error {
	if !strings.HasPrefix(id, prefix+"-") {
		return fmt.Errorf("issue ID '%s' does not match configured prefix '%s'", id, prefix)
	}
	return nil
}

// generateIssueIDLocked mints a content-hash ID for a top-level issue,
// lengthening the suffix on collision. batchIDs carries IDs claimed
// earlier in the same batch.
func (m *MemoryStorage) generateIssueIDLocked(prefix string, issue *types.Issue, batchIDs map[string]bool) (string, error) {
	hash := idgen.HashID(issue.Title, issue.Description, issue.CreatedAt, prefix)

	for length := idgen.MinLength; length <= idgen.MaxLength; length++ {
		candidate := idgen.CandidateID(prefix, hash, length)
		if batchIDs[candidate] {
			continue
		}
		if _, exists := m.issues[candidate]; !exists {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique ID after trying suffix lengths %d-%d", idgen.MinLength, idgen.MaxLength)
}

// checkExplicitIDLocked validates a caller-supplied ID: the prefix must
// match the configured prefix, hierarchical IDs need a live parent, and
// IDs that collide with a tombstone are rejected so deletes stay stable
// across collaborators.
func (m *MemoryStorage) checkExplicitIDLocked(issueID, prefix string) error {
	if err := validateIssueIDPrefix(issueID, prefix); err != nil {
		return err
	}

	if _, parentID, depth := idgen.Parse(issueID); depth > 0 {
		if _, ok := m.issues[parentID]; !ok {
			return fmt.Errorf("parent issue %s does not exist", parentID)
		}
		if parent, childNum, ok := idgen.ParseChildID(issueID); ok {
			m.bumpChildCounterLocked(parent, childNum)
		}
	}

	if existing, ok := m.issues[issueID]; ok && existing.IsTombstone() {
		return fmt.Errorf("issue %s was deleted and left a tombstone; choose a different ID", issueID)
	}
	return nil
}

// storeIssueLocked inserts the issue row and its collections, forcing
// embedded edges to name the issue as their source.
func (m *MemoryStorage) storeIssueLocked(issue *types.Issue) {
	stored := copyIssue(issue)
	stored.Labels = nil
	stored.Dependencies = nil
	stored.Comments = nil
	m.issues[issue.ID] = stored

	m.storeLabelsLocked(issue.ID, issue.Labels)
	for _, dep := range issue.Dependencies {
		dep.IssueID = issue.ID
	}
	m.insertDependenciesLocked(issue.Dependencies)
	m.storeCommentsLocked(issue.ID, issue.Comments)
}

// recordCreatedEventLocked records a creation event carrying the full
// issue JSON.
func (m *MemoryStorage) recordCreatedEventLocked(issue *types.Issue, actor string) {
	eventData, err := json.Marshal(issue)
	if err != nil {
		eventData = []byte(fmt.Sprintf(`{"id":%q,"title":%q}`, issue.ID, issue.Title))
	}
	m.recordEventLocked(issue.ID, types.EventCreated, actor, "", string(eventData))
}

// CreateIssue creates a new issue, generating an ID when none is provided.
func (m *MemoryStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	if err := prepareForInsert(issue); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix, err := m.configPrefixLocked()
	if err != nil {
		return err
	}

	if issue.ID == "" {
		id, err := m.generateIssueIDLocked(prefix, issue, nil)
		if err != nil {
			return err
		}
		issue.ID = id
	} else {
		if err := m.checkExplicitIDLocked(issue.ID, prefix); err != nil {
			return err
		}
	}

	if _, exists := m.issues[issue.ID]; exists {
		return fmt.Errorf("issue %s already exists", issue.ID)
	}

	m.storeIssueLocked(issue)
	m.recordCreatedEventLocked(issue, actor)
	m.markDirtyLocked(issue.ID)
	return nil
}

// CreateIssues creates a batch of issues atomically from the caller's view.
// Issues without IDs get generated ones; generation sees earlier batch
// members so in-batch hash collisions lengthen correctly. Collections land
// after every issue row exists so intra-batch edges resolve.
func (m *MemoryStorage) CreateIssues(ctx context.Context, issues []*types.Issue, actor string) error {
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		if err := prepareForInsert(issue); err != nil {
			return fmt.Errorf("issue %q: %w", issue.Title, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix, err := m.configPrefixLocked()
	if err != nil {
		return err
	}

	batchIDs := make(map[string]bool)
	for _, issue := range issues {
		if issue.ID != "" {
			batchIDs[issue.ID] = true
		}
	}

	for _, issue := range issues {
		if issue.ID == "" {
			id, err := m.generateIssueIDLocked(prefix, issue, batchIDs)
			if err != nil {
				return err
			}
			issue.ID = id
			batchIDs[id] = true
			continue
		}
		if err := validateIssueIDPrefix(issue.ID, prefix); err != nil {
			return err
		}
		if _, parentID, depth := idgen.Parse(issue.ID); depth > 0 && !batchIDs[parentID] {
			if _, ok := m.issues[parentID]; !ok {
				return fmt.Errorf("parent issue %s does not exist", parentID)
			}
		}
	}

	seen := make(map[string]bool)
	for _, issue := range issues {
		if _, exists := m.issues[issue.ID]; exists || seen[issue.ID] {
			return fmt.Errorf("issue %s already exists", issue.ID)
		}
		seen[issue.ID] = true
	}

	for _, issue := range issues {
		stored := copyIssue(issue)
		stored.Labels = nil
		stored.Dependencies = nil
		stored.Comments = nil
		m.issues[issue.ID] = stored
	}
	for _, issue := range issues {
		m.storeLabelsLocked(issue.ID, issue.Labels)
		for _, dep := range issue.Dependencies {
			dep.IssueID = issue.ID
		}
		m.insertDependenciesLocked(issue.Dependencies)
		m.storeCommentsLocked(issue.ID, issue.Comments)
	}
	for _, issue := range issues {
		if parent, childNum, ok := idgen.ParseChildID(issue.ID); ok {
			m.bumpChildCounterLocked(parent, childNum)
		}
	}
	for _, issue := range issues {
		m.recordCreatedEventLocked(issue, actor)
		m.markDirtyLocked(issue.ID)
	}
	return nil
}

// GetIssue retrieves an issue by exact ID, with labels attached.
// Returns (nil, nil) when no issue has that ID.
func (m *MemoryStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.issueWithLabelsLocked(id), nil
}

// issueWithLabelsLocked returns a copy of an issue with its labels
// attached, or nil when the issue is absent. Edges and comments are not
// attached, matching the sqlite scan paths.
func (m *MemoryStorage) issueWithLabelsLocked(id string) *types.Issue {
	stored, ok := m.issues[id]
	if !ok {
		return nil
	}
	issue := copyIssue(stored)
	issue.Labels = m.sortedLabelsLocked(id)
	return issue
}

// statusString extracts a status value from an update map entry.
func statusString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case types.Status:
		return string(v), true
	default:
		return "", false
	}
}

// determineEventType picks the event to record for an update based on any
// status transition it carries.
func determineEventType(oldIssue *types.Issue, updates map[string]interface{}) types.EventType {
	statusVal, hasStatus := updates["status"]
	if !hasStatus {
		return types.EventUpdated
	}

	newStatus, ok := statusString(statusVal)
	if !ok {
		return types.EventUpdated
	}

	if newStatus == string(types.StatusClosed) {
		return types.EventClosed
	}
	if oldIssue.Status == types.StatusClosed {
		return types.EventReopened
	}
	return types.EventStatusChanged
}

// UpdateIssue updates fields on an issue. Keys in updates must be column
// names the sqlite backend accepts; values are validated before the write.
func (m *MemoryStorage) UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s not found", id)
	}
	if stored.IsTombstone() {
		return fmt.Errorf("issue %s is a tombstone and cannot be updated", id)
	}

	oldIssue := copyIssue(stored)
	updated := copyIssue(stored)
	if _, ok := updates["updated_at"]; !ok {
		updated.UpdatedAt = time.Now()
	}

	for key, value := range updates {
		if err := validateFieldUpdate(key, value); err != nil {
			return err
		}
		if err := applyFieldUpdate(updated, key, value); err != nil {
			return err
		}
	}

	// Keep closed_at in step with status transitions unless the caller
	// provided it explicitly (imports preserve original timestamps).
	if statusVal, hasStatus := updates["status"]; hasStatus {
		if _, hasExplicitClosedAt := updates["closed_at"]; !hasExplicitClosedAt {
			if newStatus, ok := statusString(statusVal); ok {
				if newStatus == string(types.StatusClosed) {
					now := time.Now()
					updated.ClosedAt = &now
				} else if oldIssue.Status == types.StatusClosed {
					updated.ClosedAt = nil
					updated.CloseReason = ""
				}
			}
		}
	}

	updated.ContentHash = updated.ComputeContentHash()
	m.issues[id] = updated

	oldData, err := json.Marshal(oldIssue)
	if err != nil {
		oldData = []byte(fmt.Sprintf(`{"id":%q}`, id))
	}
	newData, err := json.Marshal(updates)
	if err != nil {
		newData = []byte(`{}`)
	}
	m.recordEventLocked(id, determineEventType(oldIssue, updates), actor, string(oldData), string(newData))
	m.markDirtyLocked(id)
	return nil
}

// CloseIssue closes an issue, recording the reason and the session that
// closed it.
func (m *MemoryStorage) CloseIssue(ctx context.Context, id string, reason string, actor string, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s not found", id)
	}
	if stored.IsTombstone() {
		return fmt.Errorf("issue %s is a tombstone and cannot be closed", id)
	}
	if stored.Status == types.StatusClosed {
		return fmt.Errorf("issue %s is already closed", id)
	}

	oldStatus := string(stored.Status)
	now := time.Now()
	updated := copyIssue(stored)
	updated.Status = types.StatusClosed
	updated.ClosedAt = &now
	updated.CloseReason = reason
	updated.ClosedBySession = session
	updated.UpdatedAt = now
	updated.ContentHash = updated.ComputeContentHash()
	m.issues[id] = updated

	m.recordEventLocked(id, types.EventClosed, actor, oldStatus, string(types.StatusClosed))
	m.markDirtyLocked(id)
	return nil
}

// ReopenIssue reopens a closed issue, clearing its closure fields.
func (m *MemoryStorage) ReopenIssue(ctx context.Context, id string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s not found", id)
	}
	if stored.Status != types.StatusClosed {
		return fmt.Errorf("issue %s is not closed", id)
	}

	updated := copyIssue(stored)
	updated.Status = types.StatusOpen
	updated.ClosedAt = nil
	updated.CloseReason = ""
	updated.ClosedBySession = ""
	updated.UpdatedAt = time.Now()
	updated.ContentHash = updated.ComputeContentHash()
	m.issues[id] = updated

	m.recordEventLocked(id, types.EventReopened, actor, string(types.StatusClosed), string(types.StatusOpen))
	m.markDirtyLocked(id)
	return nil
}

// DeleteIssue hard-deletes an issue. Dependencies in both directions,
// labels, comments, events, dirty markers, export hashes, and child
// counters all go with it.
func (m *MemoryStorage) DeleteIssue(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.issues[id]; !ok {
		return fmt.Errorf("issue %s not found", id)
	}

	delete(m.issues, id)
	delete(m.labels, id)
	delete(m.comments, id)
	delete(m.events, id)
	delete(m.dirty, id)
	delete(m.exportHashes, id)
	delete(m.childCounters, id)
	delete(m.dependencies, id)
	for src, deps := range m.dependencies {
		kept := deps[:0]
		for _, dep := range deps {
			if dep.DependsOnID != id {
				kept = append(kept, dep)
			}
		}
		if len(kept) == 0 {
			delete(m.dependencies, src)
		} else {
			m.dependencies[src] = kept
		}
	}
	return nil
}

// TombstoneIssue soft-deletes an issue by turning it into a tombstone that
// stays in the log so collaborators converge on the delete. Idempotent:
// tombstoning a tombstone is a no-op.
func (m *MemoryStorage) TombstoneIssue(ctx context.Context, id string, reason string, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.issues[id]
	if !ok {
		return fmt.Errorf("issue %s not found", id)
	}
	if stored.IsTombstone() {
		return nil
	}

	oldStatus := string(stored.Status)
	now := time.Now()
	updated := copyIssue(stored)
	updated.Status = types.StatusTombstone
	updated.DeletedAt = &now
	updated.DeletedBy = actor
	updated.DeleteReason = reason
	updated.OriginalType = string(stored.IssueType)
	updated.UpdatedAt = now
	updated.ContentHash = updated.ComputeContentHash()
	m.issues[id] = updated

	m.recordEventLocked(id, types.EventDeleted, actor, oldStatus, string(types.StatusTombstone))
	m.markDirtyLocked(id)
	return nil
}

// AddLabel attaches a label to an issue. Adding a label the issue already
// has is a no-op: no event is recorded and the issue is not marked dirty.
func (m *MemoryStorage) AddLabel(ctx context.Context, issueID, label, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.issues[issueID]; !ok {
		return fmt.Errorf("issue %s not found", issueID)
	}
	if !m.addLabelLocked(issueID, label) {
		return nil
	}

	m.recordCommentEventLocked(issueID, types.EventLabelAdded, actor, fmt.Sprintf("Added label: %s", label))
	m.markDirtyLocked(issueID)
	return nil
}

// RemoveLabel detaches a label from an issue. Removing a label the issue
// does not have is a no-op.
func (m *MemoryStorage) RemoveLabel(ctx context.Context, issueID, label, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	labels := m.labels[issueID]
	removed := false
	for i, existing := range labels {
		if existing == label {
			m.labels[issueID] = append(labels[:i], labels[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return nil
	}
	if len(m.labels[issueID]) == 0 {
		delete(m.labels, issueID)
	}

	m.recordCommentEventLocked(issueID, types.EventLabelRemoved, actor, fmt.Sprintf("Removed label: %s", label))
	m.markDirtyLocked(issueID)
	return nil
}

// GetLabels returns an issue's labels in alphabetical order.
func (m *MemoryStorage) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLabelsLocked(issueID), nil
}

// GetLabelsForIssues fetches labels for multiple issues at once. Returns a
// map of issue_id -> sorted labels. Issues without labels are absent from
// the map.
func (m *MemoryStorage) GetLabelsForIssues(ctx context.Context, issueIDs []string) (map[string][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]string)
	for _, id := range issueIDs {
		if labels := m.sortedLabelsLocked(id); len(labels) > 0 {
			result[id] = labels
		}
	}
	return result, nil
}

// AddIssueComment adds a comment to an issue. The comment rides along in
// the exported log, so the issue's updated_at is bumped and the issue is
// marked dirty.
func (m *MemoryStorage) AddIssueComment(ctx context.Context, issueID, author, text string) (*types.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.issues[issueID]
	if !ok {
		return nil, fmt.Errorf("issue %s not found", issueID)
	}

	now := time.Now()
	updated := copyIssue(stored)
	updated.UpdatedAt = now
	m.issues[issueID] = updated

	m.nextCommentID++
	comment := &types.Comment{
		ID:        m.nextCommentID,
		IssueID:   issueID,
		Author:    author,
		Text:      text,
		CreatedAt: now,
	}
	m.comments[issueID] = append(m.comments[issueID], comment)

	m.recordCommentEventLocked(issueID, types.EventCommented, author, text)
	m.markDirtyLocked(issueID)

	result := *comment
	return &result, nil
}

// InsertComments attaches imported comments to an existing issue,
// preserving their original timestamps. Unlike AddIssueComment this
// records no event and does not mark the issue dirty: the comments came
// from the log, so there is nothing new to flush back.
func (m *MemoryStorage) InsertComments(ctx context.Context, issueID string, comments []*types.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.issues[issueID]; !ok {
		return fmt.Errorf("issue %s not found", issueID)
	}
	m.storeCommentsLocked(issueID, comments)
	return nil
}

// GetIssueComments retrieves all comments for an issue, oldest first.
func (m *MemoryStorage) GetIssueComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commentsLocked(issueID), nil
}

// GetCommentsForIssues fetches comments for multiple issues at once.
// Returns a map of issue_id -> comments, oldest first.
func (m *MemoryStorage) GetCommentsForIssues(ctx context.Context, issueIDs []string) (map[string][]*types.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]*types.Comment)
	for _, id := range issueIDs {
		if comments := m.commentsLocked(id); len(comments) > 0 {
			result[id] = comments
		}
	}
	return result, nil
}
