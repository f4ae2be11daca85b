// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() so tests run against the
// authoritative schema. Do not hardcode CREATE TABLE statements in test files;
// use setupTestDB() and the seed* helpers.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/warden/internal/db"
)

// testNow is the fixed clock used by repository tests.
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// setupTestDB creates an in-memory database with the authoritative schema.
// The pool is pinned to one connection so every query sees the same database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// seedFeedback inserts an open feedback ticket created age before testNow.
func seedFeedback(t *testing.T, database *sql.DB, id, priority string, age time.Duration) string {
	t.Helper()
	_, err := database.Exec(
		"INSERT INTO feedback_tickets (id, title, priority, category, status, created_at) VALUES (?, ?, ?, 'general', 'open', ?)",
		id, "Ticket "+id, priority, db.FormatTime(testNow.Add(-age)))
	if err != nil {
		t.Fatalf("failed to seed feedback: %v", err)
	}
	return id
}

// seedAlert inserts a security alert with the given status created age before testNow.
func seedAlert(t *testing.T, database *sql.DB, id, priority, status string, age time.Duration) string {
	t.Helper()
	_, err := database.Exec(
		"INSERT INTO security_alerts (id, title, priority, status, created_at) VALUES (?, ?, ?, ?, ?)",
		id, "Alert "+id, priority, status, db.FormatTime(testNow.Add(-age)))
	if err != nil {
		t.Fatalf("failed to seed alert: %v", err)
	}
	return id
}

// seedWorkflow inserts an active workflow.
func seedWorkflow(t *testing.T, database *sql.DB, id, name string) string {
	t.Helper()
	_, err := database.Exec("INSERT INTO workflows (id, name, category) VALUES (?, ?, 'access')", id, name)
	if err != nil {
		t.Fatalf("failed to seed workflow: %v", err)
	}
	return id
}

// seedApproval inserts a pending approval. dueIn may be nil.
func seedApproval(t *testing.T, database *sql.DB, id, workflowID, priority string, age time.Duration, dueIn *time.Duration) string {
	t.Helper()
	var due any
	if dueIn != nil {
		due = db.FormatTime(testNow.Add(*dueIn))
	}
	_, err := database.Exec(
		"INSERT INTO workflow_approvals (id, workflow_id, step_name, priority, status, due_at, created_at) VALUES (?, ?, 'Manager sign-off', ?, 'pending', ?, ?)",
		id, workflowID, priority, due, db.FormatTime(testNow.Add(-age)))
	if err != nil {
		t.Fatalf("failed to seed approval: %v", err)
	}
	return id
}

// seedEscalation inserts an escalation row directly.
func seedEscalation(t *testing.T, database *sql.DB, id, class, itemID string, level int, priority, status string, age time.Duration) string {
	t.Helper()
	_, err := database.Exec(
		`INSERT INTO escalations (id, work_item_class, work_item_id, level, escalated_to_role, reason, priority, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'Team Lead', 'seeded', ?, ?, ?, ?)`,
		id, class, itemID, level, priority, status, db.FormatTime(testNow.Add(-age)), db.FormatTime(testNow.Add(-age)))
	if err != nil {
		t.Fatalf("failed to seed escalation: %v", err)
	}
	return id
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
