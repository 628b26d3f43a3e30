package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/beadworks/beads/internal/types"
)

// allowedUpdateFields lists the columns UpdateIssue may touch. Field names
// reach SQL as column names, so everything else is rejected.
var allowedUpdateFields = map[string]bool{
	"status":              true,
	"priority":            true,
	"title":               true,
	"assignee":            true,
	"owner":               true,
	"description":         true,
	"design":              true,
	"acceptance_criteria": true,
	"notes":               true,
	"spec_id":             true,
	"issue_type":          true,
	"estimated_minutes":   true,
	"external_ref":        true,
	"source_system":       true,
	"metadata":            true,
	"closed_at":           true,
	"close_reason":        true,
	"closed_by_session":   true,
	"updated_at":          true,
	"due_at":              true,
	"defer_until":         true,
	"pinned":              true,
	"is_template":         true,
	"crystallizes":        true,
	"quality_score":       true,
	"await_type":          true,
	"await_id":            true,
	"holder":              true,
	"hook_bead":           true,
	"role_bead":           true,
	"agent_state":         true,
	"last_activity":       true,
	"role_type":           true,
	"rig":                 true,
	"mol_type":            true,
	"work_type":           true,
}

// validatePriority validates a priority value
func validatePriority(value interface{}) error {
	if priority, ok := value.(int); ok {
		if priority < 0 || priority > 4 {
			return fmt.Errorf("priority must be between 0 and 4 (got %d)", priority)
		}
	}
	return nil
}

// validateStatus validates a status value.
// Tombstone is blocked here: tombstones are only created via delete, never
// by setting the status directly.
func validateStatus(value interface{}) error {
	var status string
	switch v := value.(type) {
	case string:
		status = v
	case types.Status:
		status = string(v)
	default:
		return nil
	}
	if types.Status(status) == types.StatusTombstone {
		return fmt.Errorf("cannot set status to tombstone directly; use 'bd delete' instead")
	}
	if !types.Status(status).IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	return nil
}

// validateIssueType validates an issue type value
func validateIssueType(value interface{}) error {
	var issueType string
	switch v := value.(type) {
	case string:
		issueType = v
	case types.IssueType:
		issueType = string(v)
	default:
		return nil
	}
	if !types.IssueType(issueType).IsValid() {
		return fmt.Errorf("invalid issue type: %s", issueType)
	}
	return nil
}

// validateTitle validates a title value
func validateTitle(value interface{}) error {
	if title, ok := value.(string); ok {
		if len(title) == 0 || len(title) > 500 {
			return fmt.Errorf("title must be 1-500 characters")
		}
	}
	return nil
}

// validateEstimatedMinutes validates an estimated_minutes value
func validateEstimatedMinutes(value interface{}) error {
	if mins, ok := value.(int); ok {
		if mins < 0 {
			return fmt.Errorf("estimated_minutes cannot be negative")
		}
	}
	return nil
}

// validateMetadata requires metadata to be a valid JSON document (or empty)
func validateMetadata(value interface{}) error {
	if metadata, ok := value.(string); ok {
		if metadata == "" || metadata == "{}" {
			return nil
		}
		if !json.Valid([]byte(metadata)) {
			return fmt.Errorf("metadata must be valid JSON")
		}
	}
	return nil
}

// fieldValidators maps field names to their validation functions
var fieldValidators = map[string]func(interface{}) error{
	"priority":          validatePriority,
	"status":            validateStatus,
	"issue_type":        validateIssueType,
	"title":             validateTitle,
	"estimated_minutes": validateEstimatedMinutes,
	"metadata":          validateMetadata,
}

// validateFieldUpdate validates a field update value
func validateFieldUpdate(key string, value interface{}) error {
	if validator, ok := fieldValidators[key]; ok {
		return validator(value)
	}
	return nil
}
