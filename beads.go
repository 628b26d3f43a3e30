// Package beads provides a minimal public API for using bd's storage
// layer programmatically instead of shelling out to the CLI.
//
// The store of record is the .beads/issues.jsonl log; the SQLite
// database opened here is a rebuildable index over it. Callers that
// mutate the store should flush through the exporter afterwards so the
// log stays current for other collaborators.
package beads

import (
	"context"

	"github.com/beadworks/beads/internal/storage"
	"github.com/beadworks/beads/internal/storage/sqlite"
	"github.com/beadworks/beads/internal/types"
)

// Storage is the interface for beads storage operations.
type Storage = storage.Storage

// NewSQLiteStorage creates a new SQLite storage instance at the given path.
func NewSQLiteStorage(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// Core types from internal/types.
type (
	Issue            = types.Issue
	Status           = types.Status
	IssueType        = types.IssueType
	Dependency       = types.Dependency
	DependencyType   = types.DependencyType
	Comment          = types.Comment
	Event            = types.Event
	EventType        = types.EventType
	BlockedIssue     = types.BlockedIssue
	TreeNode         = types.TreeNode
	IssueFilter      = types.IssueFilter
	WorkFilter       = types.WorkFilter
	DependencyCounts = types.DependencyCounts
	SortKey          = types.SortKey
	Statistics       = types.Statistics
)

// Status constants.
const (
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusBlocked    = types.StatusBlocked
	StatusDeferred   = types.StatusDeferred
	StatusClosed     = types.StatusClosed
	StatusTombstone  = types.StatusTombstone
)

// IssueType constants.
const (
	TypeBug     = types.TypeBug
	TypeFeature = types.TypeFeature
	TypeTask    = types.TypeTask
	TypeEpic    = types.TypeEpic
	TypeChore   = types.TypeChore
)

// DependencyType constants.
const (
	DepBlocks            = types.DepBlocks
	DepRelated           = types.DepRelated
	DepParentChild       = types.DepParentChild
	DepDiscoveredFrom    = types.DepDiscoveredFrom
	DepDuplicates        = types.DepDuplicates
	DepSupersedes        = types.DepSupersedes
	DepConditionalBlocks = types.DepConditionalBlocks
	DepWaitsFor          = types.DepWaitsFor
)

// EventType constants.
const (
	EventCreated           = types.EventCreated
	EventUpdated           = types.EventUpdated
	EventStatusChanged     = types.EventStatusChanged
	EventCommented         = types.EventCommented
	EventClosed            = types.EventClosed
	EventReopened          = types.EventReopened
	EventDependencyAdded   = types.EventDependencyAdded
	EventDependencyRemoved = types.EventDependencyRemoved
	EventLabelAdded        = types.EventLabelAdded
	EventLabelRemoved      = types.EventLabelRemoved
	EventCompacted         = types.EventCompacted
)
