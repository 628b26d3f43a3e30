package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/beadworks/beads/internal/idgen"
	"github.com/beadworks/beads/internal/types"
)

// issueColumns is the canonical column list for issue rows. Keep in sync
// with issueInsertArgs and scanIssueRow.
const issueColumns = `id, content_hash, title, description, design, acceptance_criteria, notes, spec_id,
status, priority, issue_type, assignee, owner, estimated_minutes,
created_at, created_by, updated_at, closed_at, close_reason, closed_by_session,
due_at, defer_until, external_ref, source_system, metadata,
deleted_at, deleted_by, delete_reason, original_type,
ephemeral, pinned, is_template, crystallizes,
compaction_level, compacted_at, original_size,
bonded_from, creator, validations, quality_score,
await_type, await_id, timeout_ns, waiters,
holder, hook_bead, role_bead, agent_state, last_activity, role_type, rig, mol_type, work_type,
event_kind, actor, target, payload`

var issueColumnCount = len(strings.Split(issueColumns, ","))

var issuePlaceholders = buildPlaceholders(issueColumnCount)

// qualifyColumns prefixes every column in list with alias for queries that
// join issues against other tables.
func qualifyColumns(alias, list string) string {
	cols := strings.Split(list, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// isUniqueConstraintError checks if error is a UNIQUE constraint violation.
// Used to detect and handle duplicate IDs in JSONL imports gracefully.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "constraint failed: UNIQUE")
}

// issueInsertArgs returns the insert arguments for issue in issueColumns order.
func issueInsertArgs(issue *types.Issue) []interface{} {
	return []interface{}{
		issue.ID, issue.ContentHash, issue.Title, issue.Description, issue.Design,
		issue.AcceptanceCriteria, issue.Notes, issue.SpecID,
		issue.Status, issue.Priority, issue.IssueType, issue.Assignee, issue.Owner, issue.EstimatedMinutes,
		issue.CreatedAt, issue.CreatedBy, issue.UpdatedAt, issue.ClosedAt, issue.CloseReason, issue.ClosedBySession,
		issue.DueAt, issue.DeferUntil, issue.ExternalRef, issue.SourceSystem, issue.Metadata,
		issue.DeletedAt, issue.DeletedBy, issue.DeleteReason, issue.OriginalType,
		boolToInt(issue.Ephemeral), boolToInt(issue.Pinned), boolToInt(issue.IsTemplate), boolToInt(issue.Crystallizes),
		issue.CompactionLevel, issue.CompactedAt, issue.OriginalSize,
		formatBondRefs(issue.BondedFrom), formatEntityRef(issue.Creator), formatValidations(issue.Validations), issue.QualityScore,
		issue.AwaitType, issue.AwaitID, int64(issue.Timeout), formatJSONStringArray(issue.Waiters),
		issue.Holder, issue.HookBead, issue.RoleBead, issue.AgentState, issue.LastActivity, issue.RoleType, issue.Rig, issue.MolType, issue.WorkType,
		issue.EventKind, issue.Actor, issue.Target, issue.Payload,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanIssueRow scans a single issue row in issueColumns order. The ncruces
// driver auto-converts DATETIME columns to time.Time, but created_at and
// updated_at are parsed manually for cross-version compatibility with logs
// written in RFC3339.
func scanIssueRow(r rowScanner) (*types.Issue, error) {
	var issue types.Issue
	var contentHash, specID sql.NullString
	var assignee, owner sql.NullString
	var estimatedMinutes sql.NullInt64
	var createdAtStr, updatedAtStr sql.NullString
	var closedAt, dueAt, deferUntil, compactedAt, lastActivity sql.NullTime
	var closeReason, closedBySession sql.NullString
	var externalRef, sourceSystem, metadata sql.NullString
	var deletedAt, deletedBy, deleteReason, originalType sql.NullString
	var ephemeral, pinned, isTemplate, crystallizes sql.NullInt64
	var originalSize sql.NullInt64
	var bondedFrom, creator, validations sql.NullString
	var qualityScore sql.NullFloat64
	var awaitType, awaitID sql.NullString
	var timeoutNs sql.NullInt64
	var waiters sql.NullString
	var holder, hookBead, roleBead, agentState sql.NullString
	var roleType, rig, molType, workType sql.NullString
	var eventKind, actor, target, payload sql.NullString

	err := r.Scan(
		&issue.ID, &contentHash, &issue.Title, &issue.Description, &issue.Design,
		&issue.AcceptanceCriteria, &issue.Notes, &specID,
		&issue.Status, &issue.Priority, &issue.IssueType, &assignee, &owner, &estimatedMinutes,
		&createdAtStr, &issue.CreatedBy, &updatedAtStr, &closedAt, &closeReason, &closedBySession,
		&dueAt, &deferUntil, &externalRef, &sourceSystem, &metadata,
		&deletedAt, &deletedBy, &deleteReason, &originalType,
		&ephemeral, &pinned, &isTemplate, &crystallizes,
		&issue.CompactionLevel, &compactedAt, &originalSize,
		&bondedFrom, &creator, &validations, &qualityScore,
		&awaitType, &awaitID, &timeoutNs, &waiters,
		&holder, &hookBead, &roleBead, &agentState, &lastActivity, &roleType, &rig, &molType, &workType,
		&eventKind, &actor, &target, &payload,
	)
	if err != nil {
		return nil, err
	}

	issue.ContentHash = contentHash.String
	issue.SpecID = specID.String
	issue.Assignee = assignee.String
	issue.Owner = owner.String
	if estimatedMinutes.Valid {
		mins := int(estimatedMinutes.Int64)
		issue.EstimatedMinutes = &mins
	}
	if createdAtStr.Valid {
		issue.CreatedAt = parseTimeString(createdAtStr.String)
	}
	if updatedAtStr.Valid {
		issue.UpdatedAt = parseTimeString(updatedAtStr.String)
	}
	if closedAt.Valid {
		issue.ClosedAt = &closedAt.Time
	}
	issue.CloseReason = closeReason.String
	issue.ClosedBySession = closedBySession.String
	if dueAt.Valid {
		issue.DueAt = &dueAt.Time
	}
	if deferUntil.Valid {
		issue.DeferUntil = &deferUntil.Time
	}
	if externalRef.Valid {
		issue.ExternalRef = &externalRef.String
	}
	issue.SourceSystem = sourceSystem.String
	issue.Metadata = metadata.String
	issue.DeletedAt = parseNullableTimeString(deletedAt)
	issue.DeletedBy = deletedBy.String
	issue.DeleteReason = deleteReason.String
	issue.OriginalType = originalType.String
	issue.Ephemeral = ephemeral.Valid && ephemeral.Int64 != 0
	issue.Pinned = pinned.Valid && pinned.Int64 != 0
	issue.IsTemplate = isTemplate.Valid && isTemplate.Int64 != 0
	issue.Crystallizes = crystallizes.Valid && crystallizes.Int64 != 0
	if compactedAt.Valid {
		issue.CompactedAt = &compactedAt.Time
	}
	if originalSize.Valid {
		issue.OriginalSize = int(originalSize.Int64)
	}
	issue.BondedFrom = parseBondRefs(bondedFrom.String)
	issue.Creator = parseEntityRef(creator.String)
	issue.Validations = parseValidations(validations.String)
	if qualityScore.Valid {
		score := float32(qualityScore.Float64)
		issue.QualityScore = &score
	}
	issue.AwaitType = awaitType.String
	issue.AwaitID = awaitID.String
	if timeoutNs.Valid {
		issue.Timeout = time.Duration(timeoutNs.Int64)
	}
	issue.Waiters = parseJSONStringArray(waiters.String)
	issue.Holder = holder.String
	issue.HookBead = hookBead.String
	issue.RoleBead = roleBead.String
	issue.AgentState = agentState.String
	if lastActivity.Valid {
		issue.LastActivity = &lastActivity.Time
	}
	issue.RoleType = roleType.String
	issue.Rig = rig.String
	issue.MolType = molType.String
	issue.WorkType = workType.String
	issue.EventKind = eventKind.String
	issue.Actor = actor.String
	issue.Target = target.String
	issue.Payload = payload.String

	return &issue, nil
}

// scanIssues scans all rows and batch-loads labels for the result set.
func (s *SQLiteStorage) scanIssues(ctx context.Context, rows *sql.Rows) ([]*types.Issue, error) {
	var issues []*types.Issue
	var issueIDs []string

	for rows.Next() {
		issue, err := scanIssueRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
		issueIDs = append(issueIDs, issue.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issue rows: %w", err)
	}

	labelsMap, err := s.GetLabelsForIssues(ctx, issueIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to batch get labels: %w", err)
	}
	for _, issue := range issues {
		if labels, ok := labelsMap[issue.ID]; ok {
			issue.Labels = labels
		}
	}

	return issues, nil
}

// insertIssue inserts a single issue using INSERT OR IGNORE so duplicate IDs
// in JSONL imports are tolerated. For fresh creation use insertIssueStrict.
func insertIssue(ctx context.Context, conn *sql.Conn, issue *types.Issue) error {
	_, err := conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO issues (`+issueColumns+`) VALUES (`+issuePlaceholders+`)`,
		issueInsertArgs(issue)...)
	if err != nil {
		// The driver may still surface UNIQUE errors despite OR IGNORE
		if !isUniqueConstraintError(err) {
			return fmt.Errorf("failed to insert issue: %w", err)
		}
	}
	return nil
}

// insertIssueStrict inserts a single issue, failing on duplicate IDs.
// Used for fresh issue creation where a duplicate indicates a bug.
func insertIssueStrict(ctx context.Context, conn *sql.Conn, issue *types.Issue) error {
	_, err := conn.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (`+issuePlaceholders+`)`,
		issueInsertArgs(issue)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("issue %s already exists", issue.ID)
		}
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	return nil
}

// insertIssues bulk inserts with a prepared statement inside the caller's
// transaction.
func insertIssues(ctx context.Context, conn *sql.Conn, issues []*types.Issue) error {
	stmt, err := conn.PrepareContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (`+issuePlaceholders+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, issue := range issues {
		if _, err := stmt.ExecContext(ctx, issueInsertArgs(issue)...); err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("issue %s already exists", issue.ID)
			}
			return fmt.Errorf("failed to insert issue %s: %w", issue.ID, err)
		}
	}
	return nil
}

// insertLabels inserts labels carried on an issue record, without recording
// label events (the labels arrived as part of the issue, not as a mutation).
func insertLabels(ctx context.Context, conn *sql.Conn, issueID string, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	stmt, err := conn.PrepareContext(ctx, `
		INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare label statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, label := range labels {
		if _, err := stmt.ExecContext(ctx, issueID, label); err != nil {
			return fmt.Errorf("failed to insert label %q: %w", label, err)
		}
	}
	return nil
}

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

	// Closed issues without closed_at and tombstones without deleted_at
	// violate the schema constraints. Repair using the newest timestamp.
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

// configPrefix reads the configured issue prefix inside a transaction.
func configPrefix(ctx context.Context, conn *sql.Conn) (string, error) {
	var prefix string
	err := conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, "issue_prefix").Scan(&prefix)
	if err == sql.ErrNoRows || (err == nil && prefix == "") {
		return "", fmt.Errorf("database not initialized: issue_prefix config is missing (run 'bd init --prefix <prefix>' first)")
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return prefix, nil
}

// checkExplicitID validates a caller-supplied ID: the prefix must match the
// configured prefix, hierarchical IDs need a live parent, and IDs that
// collide with a tombstone are rejected so deletes stay stable across
// collaborators.
func checkExplicitID(ctx context.Context, conn *sql.Conn, issueID, prefix string) error {
	if err := ValidateIssueIDPrefix(issueID, prefix); err != nil {
		return err
	}

	if _, parentID, depth := idgen.Parse(issueID); depth > 0 {
		var one int
		err := conn.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, parentID).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("parent issue %s does not exist", parentID)
		}
		if err != nil {
			return fmt.Errorf("failed to check parent: %w", err)
		}
		// Keep the child counter ahead of explicit child numbers so
		// generated children never collide.
		if parent, childNum, ok := idgen.ParseChildID(issueID); ok {
			if err := ensureChildCounterUpdated(ctx, conn, parent, childNum); err != nil {
				return err
			}
		}
	}

	var status string
	err := conn.QueryRowContext(ctx, `SELECT status FROM issues WHERE id = ?`, issueID).Scan(&status)
	if err == nil && status == string(types.StatusTombstone) {
		return fmt.Errorf("issue %s was deleted and left a tombstone; choose a different ID", issueID)
	}
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check for existing tombstone: %w", err)
	}
	return nil
}

// CreateIssue creates a new issue, generating an ID when none is provided.
func (s *SQLiteStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	if err := prepareForInsert(issue); err != nil {
		return err
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		prefix, err := configPrefix(ctx, conn)
		if err != nil {
			return err
		}

		if issue.ID == "" {
			id, err := generateIssueID(ctx, conn, prefix, issue, nil)
			if err != nil {
				return err
			}
			issue.ID = id
		} else {
			if err := checkExplicitID(ctx, conn, issue.ID, prefix); err != nil {
				return err
			}
		}

		if err := insertIssueStrict(ctx, conn, issue); err != nil {
			return err
		}
		if err := insertLabels(ctx, conn, issue.ID, issue.Labels); err != nil {
			return err
		}
		for _, dep := range issue.Dependencies {
			dep.IssueID = issue.ID
		}
		if err := insertDependencies(ctx, conn, issue.Dependencies); err != nil {
			return err
		}
		if err := insertComments(ctx, conn, issue.ID, issue.Comments); err != nil {
			return err
		}
		if err := recordCreatedEvent(ctx, conn, issue, actor); err != nil {
			return err
		}
		return markDirty(ctx, conn, issue.ID)
	})
}

// CreateIssues creates a batch of issues in a single transaction. Issues
// without IDs get generated ones; generation sees earlier batch members so
// in-batch hash collisions lengthen correctly.
func (s *SQLiteStorage) CreateIssues(ctx context.Context, issues []*types.Issue, actor string) error {
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		if err := prepareForInsert(issue); err != nil {
			return fmt.Errorf("issue %q: %w", issue.Title, err)
		}
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		prefix, err := configPrefix(ctx, conn)
		if err != nil {
			return err
		}

		// Pass 1: collect IDs present in the batch so parent checks and
		// collision checks see them before any row lands.
		batchIDs := make(map[string]bool)
		for _, issue := range issues {
			if issue.ID != "" {
				batchIDs[issue.ID] = true
			}
		}

		// Pass 2: generate missing IDs and validate explicit ones.
		for _, issue := range issues {
			if issue.ID == "" {
				id, err := generateIssueID(ctx, conn, prefix, issue, batchIDs)
				if err != nil {
					return err
				}
				issue.ID = id
				batchIDs[id] = true
				continue
			}
			if err := ValidateIssueIDPrefix(issue.ID, prefix); err != nil {
				return err
			}
			if _, parentID, depth := idgen.Parse(issue.ID); depth > 0 && !batchIDs[parentID] {
				var one int
				err := conn.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, parentID).Scan(&one)
				if err == sql.ErrNoRows {
					return fmt.Errorf("parent issue %s does not exist", parentID)
				}
				if err != nil {
					return fmt.Errorf("failed to check parent: %w", err)
				}
			}
		}

		if err := insertIssues(ctx, conn, issues); err != nil {
			return err
		}
		// Labels, edges, and comments land after every issue row exists so
		// intra-batch edges resolve.
		for _, issue := range issues {
			if err := insertLabels(ctx, conn, issue.ID, issue.Labels); err != nil {
				return err
			}
			for _, dep := range issue.Dependencies {
				dep.IssueID = issue.ID
			}
			if err := insertDependencies(ctx, conn, issue.Dependencies); err != nil {
				return err
			}
			if err := insertComments(ctx, conn, issue.ID, issue.Comments); err != nil {
				return err
			}
		}
		// Raise child counters past any explicit child numbers in the batch.
		for _, issue := range issues {
			if parent, childNum, ok := idgen.ParseChildID(issue.ID); ok {
				if err := ensureChildCounterUpdated(ctx, conn, parent, childNum); err != nil {
					return err
				}
			}
		}
		if err := recordCreatedEvents(ctx, conn, issues, actor); err != nil {
			return err
		}
		return markDirtyBatch(ctx, conn, issues)
	})
}

// GetIssue retrieves an issue by exact ID, with labels attached.
// Returns (nil, nil) when no issue has that ID.
func (s *SQLiteStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssueRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	labels, err := s.GetLabels(ctx, issue.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	issue.Labels = labels
	return issue, nil
}

// getIssueConn fetches an issue on the transaction's connection so updates
// can read their own writes.
func getIssueConn(ctx context.Context, conn *sql.Conn, id string) (*types.Issue, error) {
	row := conn.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssueRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return issue, nil
}

// refreshContentHash recomputes and stores the content hash from the row as
// written. The hash covers nearly every content field, so recomputing from
// the stored row is simpler and safer than tracking which updates touch
// hashed fields.
func refreshContentHash(ctx context.Context, conn *sql.Conn, id string) error {
	issue, err := getIssueConn(ctx, conn, id)
	if err != nil {
		return err
	}
	if issue == nil {
		return fmt.Errorf("issue %s not found", id)
	}
	hash := issue.ComputeContentHash()
	if _, err := conn.ExecContext(ctx, `UPDATE issues SET content_hash = ? WHERE id = ?`, hash, id); err != nil {
		return fmt.Errorf("failed to update content hash: %w", err)
	}
	return nil
}

// determineEventType picks the event to record for an update based on any
// status transition it carries.
func determineEventType(oldIssue *types.Issue, updates map[string]interface{}) types.EventType {
	statusVal, hasStatus := updates["status"]
	if !hasStatus {
		return types.EventUpdated
	}

	var newStatus string
	switch v := statusVal.(type) {
	case string:
		newStatus = v
	case types.Status:
		newStatus = string(v)
	default:
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

// manageClosedAt keeps closed_at in step with status transitions unless the
// caller provided it explicitly (imports preserve original timestamps).
func manageClosedAt(oldIssue *types.Issue, updates map[string]interface{}, setClauses []string, args []interface{}) ([]string, []interface{}) {
	statusVal, hasStatus := updates["status"]
	if _, hasExplicitClosedAt := updates["closed_at"]; hasExplicitClosedAt || !hasStatus {
		return setClauses, args
	}

	var newStatus string
	switch v := statusVal.(type) {
	case string:
		newStatus = v
	case types.Status:
		newStatus = string(v)
	default:
		return setClauses, args
	}

	if newStatus == string(types.StatusClosed) {
		setClauses = append(setClauses, "closed_at = ?")
		args = append(args, time.Now())
	} else if oldIssue.Status == types.StatusClosed {
		setClauses = append(setClauses, "closed_at = ?", "close_reason = ?")
		args = append(args, nil, "")
	}

	return setClauses, args
}

// UpdateIssue updates fields on an issue. Keys in updates must be column
// names from allowedUpdateFields; values are validated before the write.
func (s *SQLiteStorage) UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		oldIssue, err := getIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if oldIssue == nil {
			return fmt.Errorf("issue %s not found", id)
		}
		if oldIssue.IsTombstone() {
			return fmt.Errorf("issue %s is a tombstone and cannot be updated", id)
		}

		setClauses := []string{}
		args := []interface{}{}
		if _, ok := updates["updated_at"]; !ok {
			setClauses = append(setClauses, "updated_at = ?")
			args = append(args, time.Now())
		}

		for key, value := range updates {
			if !allowedUpdateFields[key] {
				return fmt.Errorf("invalid field for update: %s", key)
			}
			if err := validateFieldUpdate(key, value); err != nil {
				return err
			}
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
			args = append(args, value)
		}

		setClauses, args = manageClosedAt(oldIssue, updates, setClauses, args)
		args = append(args, id)

		query := fmt.Sprintf("UPDATE issues SET %s WHERE id = ?", strings.Join(setClauses, ", ")) // #nosec G201 - column names validated above
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update issue: %w", err)
		}

		if err := refreshContentHash(ctx, conn, id); err != nil {
			return err
		}

		oldData, err := json.Marshal(oldIssue)
		if err != nil {
			oldData = []byte(fmt.Sprintf(`{"id":%q}`, id))
		}
		newData, err := json.Marshal(updates)
		if err != nil {
			newData = []byte(`{}`)
		}
		eventType := determineEventType(oldIssue, updates)
		if err := recordEvent(ctx, conn, id, eventType, actor, string(oldData), string(newData)); err != nil {
			return err
		}

		return markDirty(ctx, conn, id)
	})
}

// CloseIssue closes an issue, recording the reason and the session that
// closed it.
func (s *SQLiteStorage) CloseIssue(ctx context.Context, id string, reason string, actor string, session string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		oldIssue, err := getIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if oldIssue == nil {
			return fmt.Errorf("issue %s not found", id)
		}
		if oldIssue.IsTombstone() {
			return fmt.Errorf("issue %s is a tombstone and cannot be closed", id)
		}
		if oldIssue.Status == types.StatusClosed {
			return fmt.Errorf("issue %s is already closed", id)
		}

		now := time.Now()
		_, err = conn.ExecContext(ctx, `
			UPDATE issues
			SET status = ?, closed_at = ?, close_reason = ?, closed_by_session = ?, updated_at = ?
			WHERE id = ?
		`, types.StatusClosed, now, reason, session, now, id)
		if err != nil {
			return fmt.Errorf("failed to close issue: %w", err)
		}

		if err := refreshContentHash(ctx, conn, id); err != nil {
			return err
		}

		oldStatus := string(oldIssue.Status)
		newStatus := string(types.StatusClosed)
		if err := recordEvent(ctx, conn, id, types.EventClosed, actor, oldStatus, newStatus); err != nil {
			return err
		}
		return markDirty(ctx, conn, id)
	})
}

// ReopenIssue reopens a closed issue, clearing its closure fields.
func (s *SQLiteStorage) ReopenIssue(ctx context.Context, id string, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		oldIssue, err := getIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if oldIssue == nil {
			return fmt.Errorf("issue %s not found", id)
		}
		if oldIssue.Status != types.StatusClosed {
			return fmt.Errorf("issue %s is not closed", id)
		}

		_, err = conn.ExecContext(ctx, `
			UPDATE issues
			SET status = ?, closed_at = NULL, close_reason = '', closed_by_session = '', updated_at = ?
			WHERE id = ?
		`, types.StatusOpen, time.Now(), id)
		if err != nil {
			return fmt.Errorf("failed to reopen issue: %w", err)
		}

		if err := refreshContentHash(ctx, conn, id); err != nil {
			return err
		}

		oldStatus := string(types.StatusClosed)
		newStatus := string(types.StatusOpen)
		if err := recordEvent(ctx, conn, id, types.EventReopened, actor, oldStatus, newStatus); err != nil {
			return err
		}
		return markDirty(ctx, conn, id)
	})
}

// DeleteIssue hard-deletes an issue. Dependencies in both directions,
// labels, comments, events, dirty markers, export hashes, and child
// counters all cascade.
func (s *SQLiteStorage) DeleteIssue(ctx context.Context, id string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete issue: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check delete result: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("issue %s not found", id)
		}
		return nil
	})
}

// TombstoneIssue soft-deletes an issue by turning it into a tombstone that
// stays in the log so collaborators converge on the delete. Idempotent:
// tombstoning a tombstone is a no-op.
func (s *SQLiteStorage) TombstoneIssue(ctx context.Context, id string, reason string, actor string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		oldIssue, err := getIssueConn(ctx, conn, id)
		if err != nil {
			return err
		}
		if oldIssue == nil {
			return fmt.Errorf("issue %s not found", id)
		}
		if oldIssue.IsTombstone() {
			return nil
		}

		now := time.Now()
		_, err = conn.ExecContext(ctx, `
			UPDATE issues
			SET status = ?, deleted_at = ?, deleted_by = ?, delete_reason = ?,
			    original_type = issue_type, updated_at = ?
			WHERE id = ?
		`, types.StatusTombstone, now, actor, reason, now, id)
		if err != nil {
			return fmt.Errorf("failed to tombstone issue: %w", err)
		}

		if err := refreshContentHash(ctx, conn, id); err != nil {
			return err
		}

		oldStatus := string(oldIssue.Status)
		newStatus := string(types.StatusTombstone)
		if err := recordEvent(ctx, conn, id, types.EventDeleted, actor, oldStatus, newStatus); err != nil {
			return err
		}
		return markDirty(ctx, conn, id)
	})
}
