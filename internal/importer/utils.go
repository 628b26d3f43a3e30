package importer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beadworks/beads/internal/types"
	"github.com/beadworks/beads/internal/utils"
)

// IssueDataChanged reports whether applying updates to existing would
// change any field. Used to skip no-op patches: the incoming record can
// be newer while every field the importer patches is already equal.
func IssueDataChanged(existing *types.Issue, updates map[string]interface{}) bool {
	fc := newFieldComparator()
	for key, newVal := range updates {
		if fc.checkFieldChanged(key, existing, newVal) {
			return true
		}
	}
	return false
}

// fieldComparator compares stored field values against the loosely typed
// values carried in an update map.
type fieldComparator struct {
	strFrom func(v interface{}) (string, bool)
	intFrom func(v interface{}) (int64, bool)
}

func newFieldComparator() *fieldComparator {
	fc := &fieldComparator{}

	fc.strFrom = func(v interface{}) (string, bool) {
		switch t := v.(type) {
		case string:
			return t, true
		case *string:
			if t == nil {
				return "", true
			}
			return *t, true
		case nil:
			return "", true
		default:
			return "", false
		}
	}

	fc.intFrom = func(v interface{}) (int64, bool) {
		switch t := v.(type) {
		case int:
			return int64(t), true
		case int32:
			return int64(t), true
		case int64:
			return t, true
		case float64:
			if t == float64(int64(t)) {
				return int64(t), true
			}
			return 0, false
		default:
			return 0, false
		}
	}

	return fc
}

func (fc *fieldComparator) equalStr(existingVal string, newVal interface{}) bool {
	s, ok := fc.strFrom(newVal)
	if !ok {
		return false
	}
	return existingVal == s
}

func (fc *fieldComparator) equalPtrStr(existing *string, newVal interface{}) bool {
	s, ok := fc.strFrom(newVal)
	if !ok {
		return false
	}
	if existing == nil {
		return s == ""
	}
	return *existing == s
}

func (fc *fieldComparator) equalStatus(existing types.Status, newVal interface{}) bool {
	switch t := newVal.(type) {
	case types.Status:
		return existing == t
	case string:
		return string(existing) == t
	default:
		return false
	}
}

func (fc *fieldComparator) equalIssueType(existing types.IssueType, newVal interface{}) bool {
	switch t := newVal.(type) {
	case types.IssueType:
		return existing == t
	case string:
		return string(existing) == t
	default:
		return false
	}
}

func (fc *fieldComparator) equalPriority(existing int, newVal interface{}) bool {
	newPriority, ok := fc.intFrom(newVal)
	return ok && int64(existing) == newPriority
}

func (fc *fieldComparator) equalBool(existingVal bool, newVal interface{}) bool {
	switch t := newVal.(type) {
	case bool:
		return existingVal == t
	default:
		return false
	}
}

func (fc *fieldComparator) equalTimePtr(existing *time.Time, newVal interface{}) bool {
	switch t := newVal.(type) {
	case *time.Time:
		if existing == nil || t == nil {
			return existing == nil && t == nil
		}
		return existing.Equal(*t)
	case time.Time:
		return existing != nil && existing.Equal(t)
	case nil:
		return existing == nil
	default:
		return false
	}
}

// checkFieldChanged compares one update key against the stored issue.
// Unknown keys compare equal so they can never drive an update.
func (fc *fieldComparator) checkFieldChanged(key string, existing *types.Issue, newVal interface{}) bool {
	switch key {
	case "title":
		return !fc.equalStr(existing.Title, newVal)
	case "description":
		return !fc.equalStr(existing.Description, newVal)
	case "status":
		return !fc.equalStatus(existing.Status, newVal)
	case "priority":
		return !fc.equalPriority(existing.Priority, newVal)
	case "issue_type":
		return !fc.equalIssueType(existing.IssueType, newVal)
	case "design":
		return !fc.equalStr(existing.Design, newVal)
	case "acceptance_criteria":
		return !fc.equalStr(existing.AcceptanceCriteria, newVal)
	case "notes":
		return !fc.equalStr(existing.Notes, newVal)
	case "assignee":
		return !fc.equalStr(existing.Assignee, newVal)
	case "external_ref":
		return !fc.equalPtrStr(existing.ExternalRef, newVal)
	case "pinned":
		return !fc.equalBool(existing.Pinned, newVal)
	case "closed_at":
		return !fc.equalTimePtr(existing.ClosedAt, newVal)
	case "close_reason":
		return !fc.equalStr(existing.CloseReason, newVal)
	default:
		return false
	}
}

// RenameImportedIssuePrefixes rewrites every issue ID to carry
// targetPrefix, preserving the suffix so identity survives the rename.
// Text references in title, description, design, acceptance criteria,
// notes, and comments are rewritten along with dependency endpoints.
func RenameImportedIssuePrefixes(issues []*types.Issue, targetPrefix string) error {
	idMapping := make(map[string]string)

	for _, issue := range issues {
		oldPrefix := utils.ExtractIssuePrefix(issue.ID)
		if oldPrefix == "" {
			return fmt.Errorf("cannot rename issue %s: malformed ID (no hyphen found)", issue.ID)
		}
		if oldPrefix == targetPrefix {
			continue
		}

		suffix := strings.TrimPrefix(issue.ID, oldPrefix+"-")
		if suffix == "" || !isValidIDSuffix(suffix) {
			return fmt.Errorf("cannot rename issue %s: invalid suffix '%s'", issue.ID, suffix)
		}
		idMapping[issue.ID] = fmt.Sprintf("%s-%s", targetPrefix, suffix)
	}

	for _, issue := range issues {
		if newID, ok := idMapping[issue.ID]; ok {
			issue.ID = newID
		}

		issue.Title = replaceIDReferences(issue.Title, idMapping)
		issue.Description = replaceIDReferences(issue.Description, idMapping)
		if issue.Design != "" {
			issue.Design = replaceIDReferences(issue.Design, idMapping)
		}
		if issue.AcceptanceCriteria != "" {
			issue.AcceptanceCriteria = replaceIDReferences(issue.AcceptanceCriteria, idMapping)
		}
		if issue.Notes != "" {
			issue.Notes = replaceIDReferences(issue.Notes, idMapping)
		}

		for i := range issue.Dependencies {
			if newID, ok := idMapping[issue.Dependencies[i].IssueID]; ok {
				issue.Dependencies[i].IssueID = newID
			}
			if newID, ok := idMapping[issue.Dependencies[i].DependsOnID]; ok {
				issue.Dependencies[i].DependsOnID = newID
			}
		}

		for i := range issue.Comments {
			issue.Comments[i].Text = replaceIDReferences(issue.Comments[i].Text, idMapping)
		}
	}

	return nil
}

// replaceIDReferences rewrites old ID mentions in text. Longer IDs are
// replaced first so an ID that prefixes another is never half-rewritten.
func replaceIDReferences(text string, idMapping map[string]string) string {
	if len(idMapping) == 0 {
		return text
	}

	oldIDs := make([]string, 0, len(idMapping))
	for oldID := range idMapping {
		oldIDs = append(oldIDs, oldID)
	}
	sort.Slice(oldIDs, func(i, j int) bool {
		return len(oldIDs[i]) > len(oldIDs[j])
	})

	result := text
	for _, oldID := range oldIDs {
		result = replaceBoundaryAware(result, oldID, idMapping[oldID])
	}
	return result
}

// replaceBoundaryAware replaces oldID with newID only where it stands
// alone: "see bd-1a2b3c" rewrites, "bd-1a2b3cd" does not.
func replaceBoundaryAware(text, oldID, newID string) string {
	if !strings.Contains(text, oldID) {
		return text
	}

	var result strings.Builder
	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], oldID)
		if idx == -1 {
			result.WriteString(text[i:])
			break
		}

		actualIdx := i + idx
		beforeOK := actualIdx == 0 || isBoundary(text[actualIdx-1])
		afterIdx := actualIdx + len(oldID)
		afterOK := afterIdx >= len(text) || isBoundary(text[afterIdx])

		result.WriteString(text[i:actualIdx])
		if beforeOK && afterOK {
			result.WriteString(newID)
		} else {
			result.WriteString(oldID)
		}
		i = afterIdx
	}

	return result.String()
}

func isBoundary(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',' || c == '.' || c == '!' || c == '?' || c == ':' || c == ';' || c == '(' || c == ')' || c == '[' || c == ']' || c == '{' || c == '}'
}

// isValidIDSuffix accepts the suffix part of an issue ID: lowercase
// alphanumerics for the hex and base-36 schemes plus dots for hierarchy.
// Hyphens are rejected so the suffix can never be confused with the
// prefix separator.
func isValidIDSuffix(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || c == '.') {
			return false
		}
	}
	return true
}
