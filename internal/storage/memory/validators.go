package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// validateFieldUpdate checks an update value before it is applied, using
// the same rules and messages as the sqlite backend.
func validateFieldUpdate(key string, value interface{}) error {
	switch key {
	case "priority":
		if priority, ok := value.(int); ok {
			if priority < 0 || priority > 4 {
				return fmt.Errorf("priority must be between 0 and 4 (got %d)", priority)
			}
		}
	case "status":
		status, ok := statusString(value)
		if !ok {
			return nil
		}
		if types.Status(status) == types.StatusTombstone {
			return fmt.Errorf("cannot set status to tombstone directly; use 'bd delete' instead")
		}
		if !types.Status(status).IsValid() {
			return fmt.Errorf("invalid status: %s", status)
		}
	case "issue_type":
		issueType, ok := issueTypeString(value)
		if !ok {
			return nil
		}
		if !types.IssueType(issueType).IsValid() {
			return fmt.Errorf("invalid issue type: %s", issueType)
		}
	case "title":
		if title, ok := value.(string); ok {
			if len(title) == 0 || len(title) > 500 {
				return fmt.Errorf("title must be 1-500 characters")
			}
		}
	case "estimated_minutes":
		if mins, ok := value.(int); ok {
			if mins < 0 {
				return fmt.Errorf("estimated_minutes cannot be negative")
			}
		}
	case "metadata":
		if metadata, ok := value.(string); ok {
			if metadata == "" || metadata == "{}" {
				return nil
			}
			if !json.Valid([]byte(metadata)) {
				return fmt.Errorf("metadata must be valid JSON")
			}
		}
	}
	return nil
}

// issueTypeString extracts an issue type value from an update map entry.
func issueTypeString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case types.IssueType:
		return string(v), true
	default:
		return "", false
	}
}

func asString(key string, value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("unsupported value for %s: %T", key, value)
}

func asInt(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("unsupported value for %s: %T", key, value)
}

func asBool(key string, value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	}
	return false, fmt.Errorf("unsupported value for %s: %T", key, value)
}

// asTimePtr accepts the time shapes callers put in update maps: a nil to
// clear, a time.Time or pointer, or an RFC3339 string.
func asTimePtr(key string, value interface{}) (*time.Time, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := v
		return &t, nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		t := *v
		return &t, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			t, err = time.Parse(time.RFC3339, v)
		}
		if err != nil {
			return nil, fmt.Errorf("unsupported value for %s: %q", key, v)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("unsupported value for %s: %T", key, value)
}

// applyFieldUpdate writes one validated update onto the issue. The case
// list doubles as the allowed-field check: anything else is rejected the
// way the sqlite backend rejects unknown columns.
func applyFieldUpdate(issue *types.Issue, key string, value interface{}) error {
	switch key {
	case "title":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Title = s
	case "description":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Description = s
	case "design":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Design = s
	case "acceptance_criteria":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.AcceptanceCriteria = s
	case "notes":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Notes = s
	case "spec_id":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.SpecID = s
	case "status":
		s, ok := statusString(value)
		if !ok {
			return fmt.Errorf("unsupported value for %s: %T", key, value)
		}
		issue.Status = types.Status(s)
	case "priority":
		n, err := asInt(key, value)
		if err != nil {
			return err
		}
		issue.Priority = n
	case "issue_type":
		s, ok := issueTypeString(value)
		if !ok {
			return fmt.Errorf("unsupported value for %s: %T", key, value)
		}
		issue.IssueType = types.IssueType(s)
	case "assignee":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Assignee = s
	case "owner":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Owner = s
	case "estimated_minutes":
		if value == nil {
			issue.EstimatedMinutes = nil
			return nil
		}
		n, err := asInt(key, value)
		if err != nil {
			return err
		}
		issue.EstimatedMinutes = &n
	case "external_ref":
		switch v := value.(type) {
		case nil:
			issue.ExternalRef = nil
		case string:
			s := v
			issue.ExternalRef = &s
		case *string:
			issue.ExternalRef = copyStringPtr(v)
		default:
			return fmt.Errorf("unsupported value for %s: %T", key, value)
		}
	case "source_system":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.SourceSystem = s
	case "metadata":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Metadata = s
	case "closed_at":
		t, err := asTimePtr(key, value)
		if err != nil {
			return err
		}
		issue.ClosedAt = t
	case "close_reason":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.CloseReason = s
	case "closed_by_session":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.ClosedBySession = s
	case "updated_at":
		t, err := asTimePtr(key, value)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("unsupported value for %s: %T", key, value)
		}
		issue.UpdatedAt = *t
	case "due_at":
		t, err := asTimePtr(key, value)
		if err != nil {
			return err
		}
		issue.DueAt = t
	case "defer_until":
		t, err := asTimePtr(key, value)
		if err != nil {
			return err
		}
		issue.DeferUntil = t
	case "pinned":
		b, err := asBool(key, value)
		if err != nil {
			return err
		}
		issue.Pinned = b
	case "is_template":
		b, err := asBool(key, value)
		if err != nil {
			return err
		}
		issue.IsTemplate = b
	case "crystallizes":
		b, err := asBool(key, value)
		if err != nil {
			return err
		}
		issue.Crystallizes = b
	case "quality_score":
		switch v := value.(type) {
		case nil:
			issue.QualityScore = nil
		case float64:
			f := float32(v)
			issue.QualityScore = &f
		case float32:
			f := v
			issue.QualityScore = &f
		default:
			return fmt.Errorf("unsupported value for %s: %T", key, value)
		}
	case "await_type":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.AwaitType = s
	case "await_id":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.AwaitID = s
	case "holder":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Holder = s
	case "hook_bead":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.HookBead = s
	case "role_bead":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.RoleBead = s
	case "agent_state":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.AgentState = s
	case "last_activity":
		t, err := asTimePtr(key, value)
		if err != nil {
			return err
		}
		issue.LastActivity = t
	case "role_type":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.RoleType = s
	case "rig":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.Rig = s
	case "mol_type":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.MolType = s
	case "work_type":
		s, err := asString(key, value)
		if err != nil {
			return err
		}
		issue.WorkType = s
	default:
		return fmt.Errorf("invalid field for update: %s", key)
	}
	return nil
}
