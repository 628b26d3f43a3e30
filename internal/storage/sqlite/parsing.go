package sqlite

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/beadworks/beads/internal/types"
)

// buildPlaceholders returns a comma-separated list of n SQL placeholders.
func buildPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// parseNullableTimeString parses a nullable time string from database TEXT columns.
// The ncruces/go-sqlite3 driver only auto-converts TEXT to time.Time for columns
// declared as DATETIME/DATE/TIME/TIMESTAMP. For anything scanned as a string we
// must parse manually. Supports RFC3339, RFC3339Nano, and SQLite's native format.
func parseNullableTimeString(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

// parseTimeString parses a required time string. Returns zero time on failure.
func parseTimeString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseJSONStringArray parses a JSON string array from a TEXT column.
// Returns nil if the string is empty or invalid JSON.
func parseJSONStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return nil
	}
	return result
}

// formatJSONStringArray formats a string slice as JSON for storage.
// Returns empty string if the slice is nil or empty.
func formatJSONStringArray(arr []string) string {
	if len(arr) == 0 {
		return ""
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return ""
	}
	return string(data)
}

// formatBondRefs formats bond provenance records as JSON for storage.
func formatBondRefs(refs []types.BondRef) string {
	if len(refs) == 0 {
		return ""
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return ""
	}
	return string(data)
}

// parseBondRefs parses bond provenance records from a TEXT column.
func parseBondRefs(s string) []types.BondRef {
	if s == "" {
		return nil
	}
	var refs []types.BondRef
	if err := json.Unmarshal([]byte(s), &refs); err != nil {
		return nil
	}
	return refs
}

// formatEntityRef formats an entity reference as JSON for storage.
func formatEntityRef(ref *types.EntityRef) string {
	if ref == nil {
		return ""
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return ""
	}
	return string(data)
}

// parseEntityRef parses an entity reference from a TEXT column.
func parseEntityRef(s string) *types.EntityRef {
	if s == "" {
		return nil
	}
	var ref types.EntityRef
	if err := json.Unmarshal([]byte(s), &ref); err != nil {
		return nil
	}
	return &ref
}

// formatValidations formats validation records as JSON for storage.
func formatValidations(vals []types.Validation) string {
	if len(vals) == 0 {
		return ""
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return ""
	}
	return string(data)
}

// parseValidations parses validation records from a TEXT column.
func parseValidations(s string) []types.Validation {
	if s == "" {
		return nil
	}
	var vals []types.Validation
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return nil
	}
	return vals
}

// boolToInt converts a Go bool to a SQLite integer column value.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
