package db

import (
	"database/sql"
	"fmt"
)

// workItemTablesSQL holds the collaborator-owned item stores the scanners read.
// Workflow approvals reference workflows through a same-typed TEXT foreign key.
const workItemTablesSQL = `
-- Feedback tickets
CREATE TABLE IF NOT EXISTS feedback_tickets (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	priority TEXT NOT NULL CHECK(priority IN ('low', 'medium', 'high', 'critical')),
	category TEXT NOT NULL DEFAULT 'general',
	status TEXT NOT NULL CHECK(status IN ('open', 'in_progress', 'resolved', 'closed')) DEFAULT 'open',
	submitted_by TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_feedback_status_priority ON feedback_tickets(status, priority, created_at);

-- Security alerts
CREATE TABLE IF NOT EXISTS security_alerts (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	priority TEXT NOT NULL CHECK(priority IN ('low', 'medium', 'high', 'critical')),
	category TEXT NOT NULL DEFAULT 'security',
	status TEXT NOT NULL CHECK(status IN ('new', 'acknowledged', 'investigating', 'resolved', 'dismissed')) DEFAULT 'new',
	source TEXT,
	acknowledged_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alerts_status_priority ON security_alerts(status, priority, created_at);

-- Workflows and their approval steps
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT 'workflow',
	status TEXT NOT NULL CHECK(status IN ('active', 'completed', 'cancelled')) DEFAULT 'active',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS workflow_approvals (
	id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	step_name TEXT NOT NULL,
	approver_role TEXT,
	priority TEXT NOT NULL CHECK(priority IN ('low', 'medium', 'high', 'critical')),
	status TEXT NOT NULL CHECK(status IN ('pending', 'approved', 'rejected')) DEFAULT 'pending',
	due_at DATETIME,
	decided_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (workflow_id) REFERENCES workflows(id)
);

CREATE INDEX IF NOT EXISTS idx_approvals_status_priority ON workflow_approvals(status, priority, created_at);
`

// escalationTablesSQL holds the tables owned by the escalation engine.
const escalationTablesSQL = `
-- Escalations (never deleted; terminal states are resolved or escalated)
CREATE TABLE IF NOT EXISTS escalations (
	id TEXT PRIMARY KEY,
	work_item_class TEXT NOT NULL CHECK(work_item_class IN ('feedback', 'alert', 'workflow_approval')),
	work_item_id TEXT NOT NULL,
	level INTEGER NOT NULL CHECK(level >= 1),
	escalated_to_role TEXT NOT NULL,
	escalated_to_user TEXT,
	reason TEXT NOT NULL,
	priority TEXT NOT NULL CHECK(priority IN ('low', 'medium', 'high', 'critical')),
	category TEXT,
	status TEXT NOT NULL CHECK(status IN ('open', 'in_progress', 'escalated', 'resolved')) DEFAULT 'open',
	created_by TEXT NOT NULL DEFAULT 'system',
	manual INTEGER NOT NULL DEFAULT 0,
	parent_escalation_id TEXT,
	escalated_to_escalation_id TEXT,
	resolution TEXT,
	resolved_by TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	resolved_at DATETIME,
	FOREIGN KEY (parent_escalation_id) REFERENCES escalations(id)
);

CREATE INDEX IF NOT EXISTS idx_escalations_item ON escalations(work_item_class, work_item_id);
CREATE INDEX IF NOT EXISTS idx_escalations_status_priority ON escalations(status, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_escalations_created ON escalations(created_at);

-- Escalation activity log (append-only)
CREATE TABLE IF NOT EXISTS escalation_activity_log (
	id TEXT PRIMARY KEY,
	escalation_id TEXT NOT NULL,
	activity_type TEXT NOT NULL CHECK(activity_type IN ('created', 'escalated', 'manual_escalation', 'status_changed', 'resolved')),
	description TEXT NOT NULL,
	actor TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (escalation_id) REFERENCES escalations(id)
);

CREATE INDEX IF NOT EXISTS idx_activity_escalation ON escalation_activity_log(escalation_id, created_at);

-- Notifications (delivery is owned by the relay)
CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	recipient_role TEXT NOT NULL,
	recipient_user TEXT,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	priority TEXT NOT NULL,
	related_entity_type TEXT NOT NULL,
	related_entity_id TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	delivered_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_notifications_entity ON notifications(related_entity_type, related_entity_id);
CREATE INDEX IF NOT EXISTS idx_notifications_undelivered ON notifications(delivered_at, created_at);
`

// activeEscalationIndexSQL is the authoritative idempotency guard: at most one
// open or in-progress escalation per work item.
const activeEscalationIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_escalations_one_active
	ON escalations(work_item_class, work_item_id)
	WHERE status IN ('open', 'in_progress');
`

// auditTriggersSQL makes escalation history and the activity log immutable.
const auditTriggersSQL = `
CREATE TRIGGER IF NOT EXISTS trg_escalations_no_delete
BEFORE DELETE ON escalations
BEGIN
	SELECT RAISE(ABORT, 'escalations are never deleted');
END;

CREATE TRIGGER IF NOT EXISTS trg_activity_log_no_update
BEFORE UPDATE ON escalation_activity_log
BEGIN
	SELECT RAISE(ABORT, 'escalation_activity_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS trg_activity_log_no_delete
BEFORE DELETE ON escalation_activity_log
BEGIN
	SELECT RAISE(ABORT, 'escalation_activity_log is append-only');
END;
`

// SchemaSQL is the complete modern schema for fresh installs.
// It is assembled from the same fragments the migrations apply, so a fresh
// database and a migrated one end up identical.
//
// Tests must use GetSchemaSQL() instead of hardcoding CREATE TABLE statements.
const SchemaSQL = workItemTablesSQL + escalationTablesSQL + activeEscalationIndexSQL + auditTriggersSQL

// InitSchema creates the schema on a fresh database or migrates an existing one.
func InitSchema(db *sql.DB) error {
	var tableCount int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	if tableCount > 0 {
		// schema_version exists - run any pending migrations
		return RunMigrations(db)
	}

	var escalationTables int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='escalations'").Scan(&escalationTables)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if escalationTables > 0 {
		// Tables predate versioning - migrate from scratch, every step is idempotent
		return RunMigrations(db)
	}

	// Completely fresh install - create modern schema directly and mark
	// every migration applied
	if _, err := db.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := ensureVersionTable(db); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
