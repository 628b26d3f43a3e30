package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/beadworks/beads/internal/idgen"
	"github.com/beadworks/beads/internal/types"
)

// ValidateIssueIDPrefix validates that an issue ID matches the configured prefix.
// Supports both top-level (bd-a3f8e9) and hierarchical (bd-a3f8e9.1) IDs.
func ValidateIssueIDPrefix(id, prefix string) error {
	expectedPrefix := prefix + "-"
	if !strings.HasPrefix(id, expectedPrefix) {
		return fmt.Errorf("issue ID '%s' does not match configured prefix '%s'", id, prefix)
	}
	return nil
}

// generateIssueID mints a content-hash ID for a top-level issue. The digest
// covers title, description, creation time, and workspace prefix; the suffix
// starts at six hex chars and grows one char per collision. Identical content
// created at the same instant hashes identically, so a same-batch duplicate
// consumes a longer suffix via batchIDs rather than failing the insert.
func generateIssueID(ctx context.Context, conn *sql.Conn, prefix string, issue *types.Issue, batchIDs map[string]bool) (string, error) {
	hash := idgen.HashID(issue.Title, issue.Description, issue.CreatedAt, prefix)

	for length := idgen.MinLength; length <= idgen.MaxLength; length++ {
		candidate := idgen.CandidateID(prefix, hash, length)
		if batchIDs[candidate] {
			continue
		}

		var count int
		err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, candidate).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("failed to check for ID collision: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique ID after trying suffix lengths %d-%d", idgen.MinLength, idgen.MaxLength)
}
