// Package types defines the core data model: issues, dependency edges,
// comments, events, and the canonical content hash shared by every store
// and by the JSONL log format.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Issue is the primary record. Fields marked omitempty are dropped from
// the JSONL log when empty; priority is always emitted because 0 (P0) is
// a valid value.
type Issue struct {
	ID          string `json:"id"`
	ContentHash string `json:"-"` // derived via ComputeContentHash, never written to the log

	// Content fields
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	Design             string `json:"design,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	Notes              string `json:"notes,omitempty"`
	SpecID             string `json:"spec_id,omitempty"`

	// Workflow fields
	Status    Status    `json:"status,omitempty"`
	Priority  int       `json:"priority"` // no omitempty: 0 is valid (P0)
	IssueType IssueType `json:"issue_type,omitempty"`

	// Assignment
	Assignee         string `json:"assignee,omitempty"`
	Owner            string `json:"owner,omitempty"`
	EstimatedMinutes *int   `json:"estimated_minutes,omitempty"`

	// Timestamps and audit names
	CreatedAt       time.Time  `json:"created_at"`
	CreatedBy       string     `json:"created_by,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	CloseReason     string     `json:"close_reason,omitempty"`
	ClosedBySession string     `json:"closed_by_session,omitempty"`

	// Scheduling
	DueAt      *time.Time `json:"due_at,omitempty"`
	DeferUntil *time.Time `json:"defer_until,omitempty"` // hide from ready work until this time

	// External references
	ExternalRef  *string `json:"external_ref,omitempty"`
	SourceSystem string  `json:"source_system,omitempty"`

	// Free-form JSON metadata (stored and hashed verbatim)
	Metadata string `json:"metadata,omitempty"`

	// Tombstone fields: status=tombstone means logically deleted but
	// preserved in the log so collaborators converge on the delete.
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeletedBy    string     `json:"deleted_by,omitempty"`
	DeleteReason string     `json:"delete_reason,omitempty"`
	OriginalType string     `json:"original_type,omitempty"` // issue type before deletion

	// Flags
	Ephemeral    bool `json:"ephemeral,omitempty"` // never exported to the log
	Pinned       bool `json:"pinned,omitempty"`    // persistent context marker, not a work item
	IsTemplate   bool `json:"is_template,omitempty"`
	Crystallizes bool `json:"crystallizes,omitempty"`

	// Compaction bookkeeping
	CompactionLevel int        `json:"compaction_level,omitempty"`
	CompactedAt     *time.Time `json:"compacted_at,omitempty"`
	OriginalSize    int        `json:"original_size,omitempty"`

	// Extension fields, carried verbatim through import/export and
	// content-hashed but not interpreted by the core.
	BondedFrom   []BondRef     `json:"bonded_from,omitempty"`
	Creator      *EntityRef    `json:"creator,omitempty"`
	Validations  []Validation  `json:"validations,omitempty"`
	QualityScore *float32      `json:"quality_score,omitempty"`
	AwaitType    string        `json:"await_type,omitempty"`
	AwaitID      string        `json:"await_id,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	Waiters      []string      `json:"waiters,omitempty"`
	Holder       string        `json:"holder,omitempty"`
	HookBead     string        `json:"hook_bead,omitempty"`
	RoleBead     string        `json:"role_bead,omitempty"`
	AgentState   string        `json:"agent_state,omitempty"`
	LastActivity *time.Time    `json:"last_activity,omitempty"`
	RoleType     string        `json:"role_type,omitempty"`
	Rig          string        `json:"rig,omitempty"`
	MolType      string        `json:"mol_type,omitempty"`
	WorkType     string        `json:"work_type,omitempty"`
	EventKind    string        `json:"event_kind,omitempty"`
	Actor        string        `json:"actor,omitempty"`
	Target       string        `json:"target,omitempty"`
	Payload      string        `json:"payload,omitempty"`

	// Associated collections, populated on read and carried in the log
	Labels       []string      `json:"labels,omitempty"`
	Dependencies []*Dependency `json:"dependencies,omitempty"`
	Comments     []*Comment    `json:"comments,omitempty"`
}

// Validate checks the issue's invariants. Failures carry a message
// suitable for showing to the user verbatim.
func (i *Issue) Validate() error {
	if len(i.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if i.Priority < 0 || i.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", i.Priority)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.IssueType)
	}
	if i.EstimatedMinutes != nil && *i.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated_minutes cannot be negative")
	}
	// closed_at is set if and only if status is closed; tombstones may
	// retain closed_at from before deletion.
	if i.Status == StatusClosed && i.ClosedAt == nil {
		return fmt.Errorf("closed issues must have closed_at timestamp")
	}
	if i.Status != StatusClosed && i.Status != StatusTombstone && i.ClosedAt != nil {
		return fmt.Errorf("non-closed issues cannot have closed_at timestamp")
	}
	// deleted_at is set if and only if status is tombstone.
	if i.Status == StatusTombstone && i.DeletedAt == nil {
		return fmt.Errorf("tombstone issues must have deleted_at timestamp")
	}
	if i.Status != StatusTombstone && i.DeletedAt != nil {
		return fmt.Errorf("non-tombstone issues cannot have deleted_at timestamp")
	}
	if i.Metadata != "" && i.Metadata != "{}" {
		if !json.Valid([]byte(i.Metadata)) {
			return fmt.Errorf("metadata must be valid JSON")
		}
	}
	return nil
}

// SetDefaults applies defaults for fields omitted in the log. Priority 0
// is a valid value, so an absent priority cannot be distinguished from
// P0; the default of 2 applies only to issues created through the CLI.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.IssueType == "" {
		i.IssueType = TypeTask
	}
}

// IsTombstone reports whether the issue has been logically deleted.
func (i *Issue) IsTombstone() bool {
	return i.Status == StatusTombstone
}

// NormalizeTimesUTC converts all timestamps to UTC so the log serializes
// them with a Z suffix regardless of the writer's local zone. Embedded
// dependencies, comments, and validations are normalized too.
func (i *Issue) NormalizeTimesUTC() {
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	for _, t := range []**time.Time{&i.ClosedAt, &i.DueAt, &i.DeferUntil, &i.DeletedAt, &i.CompactedAt, &i.LastActivity} {
		if *t != nil {
			u := (**t).UTC()
			*t = &u
		}
	}
	for _, dep := range i.Dependencies {
		dep.CreatedAt = dep.CreatedAt.UTC()
	}
	for _, c := range i.Comments {
		c.CreatedAt = c.CreatedAt.UTC()
	}
	for idx := range i.Validations {
		i.Validations[idx].Timestamp = i.Validations[idx].Timestamp.UTC()
	}
}

// Status is an issue's workflow state.
type Status string

// Issue status constants.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
	StatusTombstone  Status = "tombstone" // logically deleted
	StatusPinned     Status = "pinned"    // persistent bead that stays open indefinitely
	StatusHooked     Status = "hooked"    // held by an external await; blocks like in_progress
)

// IsValid checks if the status value is one of the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusDeferred,
		StatusClosed, StatusTombstone, StatusPinned, StatusHooked:
		return true
	}
	return false
}

// IssueType categorizes the kind of work.
type IssueType string

// Issue type constants. TypeEvent is reserved for extension records and
// is accepted but never produced by the CLI.
const (
	TypeBug     IssueType = "bug"
	TypeFeature IssueType = "feature"
	TypeTask    IssueType = "task"
	TypeEpic    IssueType = "epic"
	TypeChore   IssueType = "chore"
	TypeEvent   IssueType = "event"
)

// IsValid checks if the issue type is known.
func (t IssueType) IsValid() bool {
	switch t {
	case TypeBug, TypeFeature, TypeTask, TypeEpic, TypeChore, TypeEvent:
		return true
	}
	return false
}

// Normalize maps common aliases to their canonical type.
func (t IssueType) Normalize() IssueType {
	switch strings.ToLower(string(t)) {
	case "enhancement", "feat":
		return TypeFeature
	default:
		return t
	}
}

// Dependency is a typed edge from issue_id to depends_on_id. At most one
// edge may exist per ordered pair regardless of type.
type Dependency struct {
	IssueID     string         `json:"issue_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
	Metadata    string         `json:"metadata,omitempty"`
	ThreadID    string         `json:"thread_id,omitempty"`
}

// DependencyType classifies an edge. Only the blocking subset affects
// the ready-work computation; the rest are informational.
type DependencyType string

// Dependency type constants.
const (
	// Blocking types
	DepBlocks            DependencyType = "blocks"
	DepParentChild       DependencyType = "parent-child"
	DepConditionalBlocks DependencyType = "conditional-blocks"
	DepWaitsFor          DependencyType = "waits-for"

	// Informational types
	DepRelated        DependencyType = "related"
	DepDiscoveredFrom DependencyType = "discovered-from"
	DepRelatesTo      DependencyType = "relates-to"
	DepDuplicates     DependencyType = "duplicates"
	DepSupersedes     DependencyType = "supersedes"
)

// IsValid accepts any non-empty type up to 50 characters; use
// IsWellKnown to test for the built-in catalog.
func (d DependencyType) IsValid() bool {
	return len(d) > 0 && len(d) <= 50
}

// IsWellKnown checks if the type is one of the built-in constants.
func (d DependencyType) IsWellKnown() bool {
	switch d {
	case DepBlocks, DepParentChild, DepConditionalBlocks, DepWaitsFor,
		DepRelated, DepDiscoveredFrom, DepRelatesTo, DepDuplicates, DepSupersedes:
		return true
	}
	return false
}

// AffectsReadyWork reports whether this edge type blocks work.
func (d DependencyType) AffectsReadyWork() bool {
	return d == DepBlocks || d == DepParentChild || d == DepConditionalBlocks || d == DepWaitsFor
}

// Comment is a timestamped note on an issue, listed oldest first.
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an append-only audit record of a store mutation. Events are
// local bookkeeping and never exported to the log.
type Event struct {
	ID        int64     `json:"id"`
	IssueID   string    `json:"issue_id"`
	EventType EventType `json:"event_type"`
	Actor     string    `json:"actor"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType categorizes audit trail events.
type EventType string

// Event type constants.
const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventStatusChanged     EventType = "status_changed"
	EventCommented         EventType = "commented"
	EventClosed            EventType = "closed"
	EventReopened          EventType = "reopened"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
	EventLabelAdded        EventType = "label_added"
	EventLabelRemoved      EventType = "label_removed"
	EventCompacted         EventType = "compacted"
	EventDeleted           EventType = "deleted"
)

// BondRef records compound lineage for bonded records.
type BondRef struct {
	SourceID  string `json:"source_id"`
	BondType  string `json:"bond_type"`
	BondPoint string `json:"bond_point,omitempty"`
}

// EntityRef identifies a human, agent, or organization.
type EntityRef struct {
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
	Org      string `json:"org,omitempty"`
	ID       string `json:"id,omitempty"`
}

// Validation records who validated or approved work completion.
type Validation struct {
	Validator *EntityRef `json:"validator"`
	Outcome   string     `json:"outcome"`
	Timestamp time.Time  `json:"timestamp"`
	Score     *float32   `json:"score,omitempty"`
}

// BlockedIssue extends Issue with blocking information.
type BlockedIssue struct {
	Issue
	BlockedByCount int      `json:"blocked_by_count"`
	BlockedBy      []string `json:"blocked_by"`
}

// TreeNode is a node in a dependency tree traversal.
type TreeNode struct {
	Issue
	Depth     int    `json:"depth"`
	ParentID  string `json:"parent_id"`
	Truncated bool   `json:"truncated"`
}

// DependencyCounts summarizes an issue's graph degree.
type DependencyCounts struct {
	DependencyCount int `json:"dependency_count"`
	DependentCount  int `json:"dependent_count"`
}

// Statistics provides aggregate metrics. Tombstones are excluded from
// TotalIssues and tracked in their own bucket.
type Statistics struct {
	TotalIssues      int            `json:"total_issues"`
	OpenIssues       int            `json:"open_issues"`
	InProgressIssues int            `json:"in_progress_issues"`
	BlockedIssues    int            `json:"blocked_issues"`
	DeferredIssues   int            `json:"deferred_issues"`
	ClosedIssues     int            `json:"closed_issues"`
	PinnedIssues     int            `json:"pinned_issues"`
	TombstoneIssues  int            `json:"tombstone_issues"`
	ReadyIssues      int            `json:"ready_issues"`
	ByType           map[string]int `json:"by_type,omitempty"`
	ByPriority       map[int]int    `json:"by_priority,omitempty"`
	AverageLeadTime  float64        `json:"average_lead_time_hours"`
}

// IssueFilter carries AND-combined predicates for list and search
// queries. Nil pointer fields mean "any".
type IssueFilter struct {
	Status    *Status
	Priority  *int
	IssueType *IssueType
	Assignee  *string
	Labels    []string // issue must have ALL of these
	LabelsAny []string // issue must have AT LEAST ONE of these
	IDs       []string
	IDPrefix  string
	Limit     int

	TitleSearch string // substring over title, description, and ID

	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
	ClosedAfter   *time.Time
	ClosedBefore  *time.Time

	NoAssignee bool

	PriorityMin *int
	PriorityMax *int

	Ephemeral  *bool
	Pinned     *bool
	IsTemplate *bool

	ParentID *string // filter children via parent-child edges

	ExcludeStatus []Status
	ExcludeTypes  []IssueType

	Overdue bool // due_at < now and status not closed

	IncludeTombstones bool // default false: tombstones excluded
}

// SortKey names a list ordering.
type SortKey string

// Sort key constants for ListIssues.
const (
	SortCreated  SortKey = "created"
	SortUpdated  SortKey = "updated"
	SortPriority SortKey = "priority"
	SortStatus   SortKey = "status"
	SortTitle    SortKey = "title"
	SortID       SortKey = "id"
	SortType     SortKey = "type"
)

// IsValid checks if the sort key is known; empty means default.
func (s SortKey) IsValid() bool {
	switch s {
	case SortCreated, SortUpdated, SortPriority, SortStatus, SortTitle, SortID, SortType, "":
		return true
	}
	return false
}

// WorkFilter narrows ready and blocked work queries.
type WorkFilter struct {
	Type       string
	Priority   *int
	Assignee   *string
	Unassigned bool
	Labels     []string // AND semantics
	Limit      int
}
