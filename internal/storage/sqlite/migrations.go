package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations to run during
// database initialization. Every migration must be idempotent: databases
// created from the current schema already contain these changes.
var migrationsList = []Migration{
	{"spec_id_column", migrateSpecIDColumn},
	{"due_defer_columns", migrateDueDeferColumns},
	{"quality_score_column", migrateQualityScoreColumn},
	{"export_hashes_table", migrateExportHashesTable},
	{"child_counters_table", migrateChildCountersTable},
}

// RunMigrations executes all registered migrations in order.
// Uses an EXCLUSIVE transaction to serialize migrations across processes;
// without it, parallel invocations race on check-then-add column operations
// and fail with "duplicate column" errors.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}

// columnExists reports whether a column is present on a table.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	var name string
	err := db.QueryRow(`
		SELECT name FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func migrateSpecIDColumn(db *sql.DB) error {
	exists, err := columnExists(db, "issues", "spec_id")
	if err != nil || exists {
		return err
	}
	if _, err := db.Exec(`ALTER TABLE issues ADD COLUMN spec_id TEXT DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add spec_id column: %w", err)
	}
	return nil
}

func migrateDueDeferColumns(db *sql.DB) error {
	for _, col := range []string{"due_at", "defer_until"} {
		exists, err := columnExists(db, "issues", col)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE issues ADD COLUMN %s DATETIME`, col)); err != nil {
			return fmt.Errorf("failed to add %s column: %w", col, err)
		}
	}
	return nil
}

func migrateQualityScoreColumn(db *sql.DB) error {
	exists, err := columnExists(db, "issues", "quality_score")
	if err != nil || exists {
		return err
	}
	if _, err := db.Exec(`ALTER TABLE issues ADD COLUMN quality_score REAL`); err != nil {
		return fmt.Errorf("failed to add quality_score column: %w", err)
	}
	return nil
}

func migrateExportHashesTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS export_hashes (
			issue_id TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			exported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create export_hashes table: %w", err)
	}
	return nil
}

func migrateChildCountersTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS child_counters (
			parent_id TEXT PRIMARY KEY,
			last_child INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (parent_id) REFERENCES issues(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create child_counters table: %w", err)
	}
	return nil
}
