package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_work_item_tables",
		Up:      execMigration(workItemTablesSQL),
	},
	{
		Version: 2,
		Name:    "create_escalation_tables",
		Up:      execMigration(escalationTablesSQL),
	},
	{
		Version: 3,
		Name:    "enforce_single_active_escalation",
		Up:      migrationV3,
	},
	{
		Version: 4,
		Name:    "append_only_audit_triggers",
		Up:      execMigration(auditTriggersSQL),
	},
}

// LatestVersion returns the version of the newest migration.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

func ensureVersionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// RunMigrations executes all pending migrations, each in its own transaction.
func RunMigrations(db *sql.DB) error {
	if err := ensureVersionTable(db); err != nil {
		return err
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func execMigration(stmt string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec(stmt)
		return err
	}
}

// migrationV3 collapses duplicate active escalations left by older builds
// (keeping the highest level, newest record active and linking the others to
// it) before adding the partial unique index.
func migrationV3(tx *sql.Tx) error {
	_, err := tx.Exec(`
		UPDATE escalations
		SET status = 'escalated',
			escalated_to_escalation_id = (
				SELECT e2.id FROM escalations e2
				WHERE e2.work_item_class = escalations.work_item_class
				  AND e2.work_item_id = escalations.work_item_id
				  AND e2.status IN ('open', 'in_progress')
				ORDER BY e2.level DESC, e2.created_at DESC, e2.id DESC
				LIMIT 1
			),
			updated_at = CURRENT_TIMESTAMP
		WHERE status IN ('open', 'in_progress')
		  AND id <> (
				SELECT e3.id FROM escalations e3
				WHERE e3.work_item_class = escalations.work_item_class
				  AND e3.work_item_id = escalations.work_item_id
				  AND e3.status IN ('open', 'in_progress')
				ORDER BY e3.level DESC, e3.created_at DESC, e3.id DESC
				LIMIT 1
			)
	`)
	if err != nil {
		return fmt.Errorf("failed to collapse duplicate active escalations: %w", err)
	}

	_, err = tx.Exec(activeEscalationIndexSQL)
	return err
}
