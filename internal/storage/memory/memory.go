// Package memory implements the storage interface in process memory. It
// backs no-db mode, where the store is rebuilt from the log at startup
// and flushed back to the log after each command instead of persisting a
// database file.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/beadworks/beads/internal/config"
	"github.com/beadworks/beads/internal/idgen"
	"github.com/beadworks/beads/internal/storage"
	"github.com/beadworks/beads/internal/types"
)

// hierarchyMaxDepth reads the configured depth limit, falling back to the
// idgen default.
func hierarchyMaxDepth() int {
	maxDepth := config.GetInt("hierarchy.max-depth")
	if maxDepth <= 0 {
		maxDepth = idgen.MaxDepth
	}
	return maxDepth
}

// MemoryStorage mirrors the sqlite backend's semantics over plain maps.
// Issues are stored without their collections; labels, edges, and comments
// live in side maps the way they live in side tables, so reads can attach
// exactly what the sqlite scan paths attach.
type MemoryStorage struct {
	mu sync.RWMutex

	issues       map[string]*types.Issue
	dependencies map[string][]*types.Dependency // issue ID -> outgoing edges
	labels       map[string][]string
	comments     map[string][]*types.Comment
	events       map[string][]*types.Event // append order, oldest first

	config   map[string]string
	metadata map[string]string

	childCounters map[string]int    // parent ID -> last child number handed out
	exportHashes  map[string]string // issue ID -> content hash at last export

	dirty    map[string]int64 // issue ID -> mark sequence, re-marking moves to the end
	dirtySeq int64

	nextEventID   int64
	nextCommentID int64

	jsonlPath string
}

var _ storage.Storage = (*MemoryStorage)(nil)

// New creates an empty in-memory store. jsonlPath records where the store
// was loaded from so Path callers can find the log to flush back to.
func New(jsonlPath string) *MemoryStorage {
	return &MemoryStorage{
		issues:        make(map[string]*types.Issue),
		dependencies:  make(map[string][]*types.Dependency),
		labels:        make(map[string][]string),
		comments:      make(map[string][]*types.Comment),
		events:        make(map[string][]*types.Event),
		config:        make(map[string]string),
		metadata:      make(map[string]string),
		childCounters: make(map[string]int),
		exportHashes:  make(map[string]string),
		dirty:         make(map[string]int64),
		jsonlPath:     jsonlPath,
	}
}

// LoadFromIssues populates the store from parsed log records. Nothing is
// marked dirty and no events are recorded: the content is already in the
// log, so there is nothing to flush back. Edges land in a second pass so
// they resolve regardless of record order.
func (m *MemoryStorage) LoadFromIssues(issues []*types.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pendingDeps []*types.Dependency
	for _, issue := range issues {
		if issue == nil || issue.ID == "" {
			continue
		}

		issue.SetDefaults()
		if issue.ContentHash == "" {
			issue.ContentHash = issue.ComputeContentHash()
		}

		stored := copyIssue(issue)
		stored.Labels = nil
		stored.Dependencies = nil
		stored.Comments = nil
		m.issues[issue.ID] = stored

		m.storeLabelsLocked(issue.ID, issue.Labels)
		m.storeCommentsLocked(issue.ID, issue.Comments)
		for _, dep := range issue.Dependencies {
			dep.IssueID = issue.ID
			pendingDeps = append(pendingDeps, dep)
		}

		if parent, childNum, ok := idgen.ParseChildID(issue.ID); ok {
			m.bumpChildCounterLocked(parent, childNum)
		}
	}

	m.insertDependenciesLocked(pendingDeps)
	return nil
}

// GetAllIssues returns every issue with labels, edges, and comments
// attached, sorted by ID. This is the flush path back to the log.
func (m *MemoryStorage) GetAllIssues() []*types.Issue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	issues := make([]*types.Issue, 0, len(m.issues))
	for id, stored := range m.issues {
		issue := copyIssue(stored)
		issue.Labels = m.sortedLabelsLocked(id)
		issue.Dependencies = m.dependencyRecordsLocked(id)
		issue.Comments = m.commentsLocked(id)
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
	return issues
}

// Close releases nothing; the store lives and dies with the process.
func (m *MemoryStorage) Close() error {
	return nil
}

// Path returns the log path the store was loaded from.
func (m *MemoryStorage) Path() string {
	return m.jsonlPath
}

// UnderlyingDB returns nil: there is no database behind this store.
// Callers that reach for raw SQL must handle the nil.
func (m *MemoryStorage) UnderlyingDB() *sql.DB {
	return nil
}

// SetConfig stores a user-visible configuration value.
func (m *MemoryStorage) SetConfig(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

// GetConfig retrieves a configuration value, or "" if the key is unset.
func (m *MemoryStorage) GetConfig(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config[key], nil
}

// GetAllConfig retrieves all configuration values.
func (m *MemoryStorage) GetAllConfig(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	config := make(map[string]string, len(m.config))
	for k, v := range m.config {
		config[k] = v
	}
	return config, nil
}

// DeleteConfig removes a configuration value.
func (m *MemoryStorage) DeleteConfig(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.config, key)
	return nil
}

// SetMetadata stores an internal bookkeeping value such as the imported
// log's mtime or file hash. Metadata is invisible to bd config.
func (m *MemoryStorage) SetMetadata(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadata[key] = value
	return nil
}

// GetMetadata retrieves a metadata value, or "" if the key is unset.
func (m *MemoryStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata[key], nil
}

// markDirtyLocked marks an issue for the next export. Re-marking moves the
// issue to the end of the dirty order, matching the sqlite upsert.
func (m *MemoryStorage) markDirtyLocked(issueID string) {
	m.dirtySeq++
	m.dirty[issueID] = m.dirtySeq
}

// GetDirtyIssues returns IDs of issues modified since the last export, in
// the order they were marked.
func (m *MemoryStorage) GetDirtyIssues(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m.dirty[ids[i]] < m.dirty[ids[j]] })
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

// ClearDirtyIssues removes specific issues from the dirty list after a
// successful export.
func (m *MemoryStorage) ClearDirtyIssues(ctx context.Context, issueIDs []string) error {
	if len(issueIDs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range issueIDs {
		delete(m.dirty, id)
	}
	return nil
}

// GetExportHash returns the content hash recorded at last export, or ""
// if the issue has never been exported.
func (m *MemoryStorage) GetExportHash(ctx context.Context, issueID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exportHashes[issueID], nil
}

// SetExportHash records the content hash an issue had when it was exported.
func (m *MemoryStorage) SetExportHash(ctx context.Context, issueID, contentHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportHashes[issueID] = contentHash
	return nil
}

// BatchSetExportHashes records export hashes for multiple issues.
func (m *MemoryStorage) BatchSetExportHashes(ctx context.Context, hashes map[string]string) error {
	if len(hashes) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for issueID, contentHash := range hashes {
		m.exportHashes[issueID] = contentHash
	}
	return nil
}

// ClearAllExportHashes removes all export hashes, forcing the next export
// to treat every issue as never exported.
func (m *MemoryStorage) ClearAllExportHashes(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportHashes = make(map[string]string)
	return nil
}

// recordEventLocked appends an audit event. Empty old/new values are
// stored as nil, matching the sqlite NULL handling.
func (m *MemoryStorage) recordEventLocked(issueID string, eventType types.EventType, actor, oldValue, newValue string) {
	m.nextEventID++
	event := &types.Event{
		ID:        m.nextEventID,
		IssueID:   issueID,
		EventType: eventType,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	if oldValue != "" {
		event.OldValue = &oldValue
	}
	if newValue != "" {
		event.NewValue = &newValue
	}
	m.events[issueID] = append(m.events[issueID], event)
}

// recordCommentEventLocked appends an audit event carrying a comment text
// instead of an old/new pair.
func (m *MemoryStorage) recordCommentEventLocked(issueID string, eventType types.EventType, actor, comment string) {
	m.nextEventID++
	event := &types.Event{
		ID:        m.nextEventID,
		IssueID:   issueID,
		EventType: eventType,
		Actor:     actor,
		Comment:   &comment,
		CreatedAt: time.Now(),
	}
	m.events[issueID] = append(m.events[issueID], event)
}

// GetEvents returns the event history for an issue, newest first.
func (m *MemoryStorage) GetEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.events[issueID]
	events := make([]*types.Event, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		ev := *stored[i]
		events = append(events, &ev)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events, nil
}

// GetNextChildID generates the next hierarchical child ID for a given parent.
// Returns parentID.{counter} (e.g., bd-a3f8e9.1 or bd-a3f8e9.1.5). The
// counter never resets, so child numbers stay unique even after deletions.
func (m *MemoryStorage) GetNextChildID(ctx context.Context, parentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.issues[parentID]; !ok {
		return "", fmt.Errorf("parent issue %s does not exist", parentID)
	}

	maxDepth := hierarchyMaxDepth()
	if idgen.Depth(parentID)+1 > maxDepth {
		return "", fmt.Errorf("cannot create child of %s: hierarchy depth limit is %d", parentID, maxDepth)
	}

	m.childCounters[parentID]++
	return idgen.ChildID(parentID, m.childCounters[parentID]), nil
}

// bumpChildCounterLocked raises the child counter for parentID to at least
// childNum. Explicit child IDs bypass GetNextChildID, so without this a
// later generated child could collide.
func (m *MemoryStorage) bumpChildCounterLocked(parentID string, childNum int) {
	if m.childCounters[parentID] < childNum {
		m.childCounters[parentID] = childNum
	}
}

// storeLabelsLocked attaches labels carried on an issue record, deduplicated.
func (m *MemoryStorage) storeLabelsLocked(issueID string, labels []string) {
	for _, label := range labels {
		m.addLabelLocked(issueID, label)
	}
}

func (m *MemoryStorage) addLabelLocked(issueID, label string) bool {
	for _, existing := range m.labels[issueID] {
		if existing == label {
			return false
		}
	}
	m.labels[issueID] = append(m.labels[issueID], label)
	return true
}

func (m *MemoryStorage) sortedLabelsLocked(issueID string) []string {
	stored := m.labels[issueID]
	if len(stored) == 0 {
		return nil
	}
	labels := make([]string, len(stored))
	copy(labels, stored)
	sort.Strings(labels)
	return labels
}

// storeCommentsLocked attaches comments carried on an issue record,
// preserving their original timestamps.
func (m *MemoryStorage) storeCommentsLocked(issueID string, comments []*types.Comment) {
	for _, c := range comments {
		m.nextCommentID++
		stored := &types.Comment{
			ID:        m.nextCommentID,
			IssueID:   issueID,
			Author:    c.Author,
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		m.comments[issueID] = append(m.comments[issueID], stored)
	}
}

// commentsLocked returns copies of an issue's comments, oldest first.
func (m *MemoryStorage) commentsLocked(issueID string) []*types.Comment {
	stored := m.comments[issueID]
	if len(stored) == 0 {
		return nil
	}
	comments := make([]*types.Comment, len(stored))
	for i, c := range stored {
		cc := *c
		comments[i] = &cc
	}
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
	return comments
}

// dependencyRecordsLocked returns copies of an issue's outgoing edges,
// ordered by target ID.
func (m *MemoryStorage) dependencyRecordsLocked(issueID string) []*types.Dependency {
	stored := m.dependencies[issueID]
	if len(stored) == 0 {
		return nil
	}
	deps := make([]*types.Dependency, len(stored))
	for i, dep := range stored {
		dc := *dep
		deps[i] = &dc
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].DependsOnID < deps[j].DependsOnID })
	return deps
}

// copyIssue returns a deep copy so callers can mutate results without
// reaching into the store.
func copyIssue(issue *types.Issue) *types.Issue {
	c := *issue

	c.EstimatedMinutes = copyIntPtr(issue.EstimatedMinutes)
	c.ClosedAt = copyTimePtr(issue.ClosedAt)
	c.DueAt = copyTimePtr(issue.DueAt)
	c.DeferUntil = copyTimePtr(issue.DeferUntil)
	c.DeletedAt = copyTimePtr(issue.DeletedAt)
	c.CompactedAt = copyTimePtr(issue.CompactedAt)
	c.LastActivity = copyTimePtr(issue.LastActivity)
	c.ExternalRef = copyStringPtr(issue.ExternalRef)

	if issue.QualityScore != nil {
		v := *issue.QualityScore
		c.QualityScore = &v
	}
	if issue.Creator != nil {
		v := *issue.Creator
		c.Creator = &v
	}
	if len(issue.Labels) > 0 {
		c.Labels = append([]string(nil), issue.Labels...)
	}
	if len(issue.Waiters) > 0 {
		c.Waiters = append([]string(nil), issue.Waiters...)
	}
	if len(issue.BondedFrom) > 0 {
		c.BondedFrom = append([]types.BondRef(nil), issue.BondedFrom...)
	}
	if len(issue.Validations) > 0 {
		c.Validations = append([]types.Validation(nil), issue.Validations...)
	}
	if len(issue.Dependencies) > 0 {
		deps := make([]*types.Dependency, len(issue.Dependencies))
		for i, dep := range issue.Dependencies {
			dc := *dep
			deps[i] = &dc
		}
		c.Dependencies = deps
	}
	if len(issue.Comments) > 0 {
		comments := make([]*types.Comment, len(issue.Comments))
		for i, cm := range issue.Comments {
			cc := *cm
			comments[i] = &cc
		}
		c.Comments = comments
	}
	return &c
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyIntPtr(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func copyStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
