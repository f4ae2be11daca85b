package db

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the storage format for every DATETIME column. It matches
// SQLite's CURRENT_TIMESTAMP so stored values compare correctly as text.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime converts t to the storage format in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// SeedDemo populates the item stores with a spread of work items relative to now,
// some already past their default SLA budgets, for demos and manual testing.
func SeedDemo(database *sql.DB, now time.Time) error {
	ago := func(d time.Duration) string { return FormatTime(now.Add(-d)) }

	feedback := []struct {
		id, title, priority, category, status string
		age                                   time.Duration
	}{
		{"FB-001", "Data export contains other tenant's records", "critical", "privacy", "open", 20 * time.Minute},
		{"FB-002", "Audit report PDF renders blank", "high", "reporting", "open", 30 * time.Minute},
		{"FB-003", "Policy page typo", "low", "content", "open", 2 * time.Hour},
		{"FB-004", "Control owner cannot upload evidence", "medium", "evidence", "in_progress", 6 * time.Hour},
		{"FB-005", "Old ticket", "critical", "privacy", "resolved", 72 * time.Hour},
	}
	for _, f := range feedback {
		if _, err := database.Exec(
			"INSERT INTO feedback_tickets (id, title, priority, category, status, submitted_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, 'demo', ?, ?)",
			f.id, f.title, f.priority, f.category, f.status, ago(f.age), ago(f.age),
		); err != nil {
			return fmt.Errorf("seed feedback: %w", err)
		}
	}

	alerts := []struct {
		id, title, priority, status, source string
		age                                 time.Duration
	}{
		{"AL-001", "Impossible travel login for admin", "critical", "new", "siem", 8 * time.Minute},
		{"AL-002", "Unusual outbound traffic volume", "high", "new", "netflow", 10 * time.Minute},
		{"AL-003", "Expired TLS certificate on staging", "medium", "acknowledged", "scanner", 3 * time.Hour},
	}
	for _, a := range alerts {
		if _, err := database.Exec(
			"INSERT INTO security_alerts (id, title, priority, status, source, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			a.id, a.title, a.priority, a.status, a.source, ago(a.age), ago(a.age),
		); err != nil {
			return fmt.Errorf("seed alerts: %w", err)
		}
	}

	workflows := []struct{ id, name, category string }{
		{"WF-001", "Quarterly access review", "access"},
		{"WF-002", "Vendor risk onboarding", "vendor"},
	}
	for _, w := range workflows {
		if _, err := database.Exec(
			"INSERT INTO workflows (id, name, category, created_at) VALUES (?, ?, ?, ?)",
			w.id, w.name, w.category, ago(240*time.Hour),
		); err != nil {
			return fmt.Errorf("seed workflows: %w", err)
		}
	}

	approvals := []struct {
		id, workflowID, step, role, priority string
		age                                  time.Duration
		due                                  *time.Duration
	}{
		{"AP-001", "WF-001", "Manager sign-off", "Team Lead", "high", 30 * time.Hour, nil},
		{"AP-002", "WF-002", "Security review", "Security Officer", "medium", 2 * time.Hour, durationPtr(-time.Hour)},
		{"AP-003", "WF-002", "Legal review", "Legal", "low", time.Hour, nil},
	}
	for _, a := range approvals {
		var dueAt any
		if a.due != nil {
			dueAt = FormatTime(now.Add(*a.due))
		}
		if _, err := database.Exec(
			"INSERT INTO workflow_approvals (id, workflow_id, step_name, approver_role, priority, due_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			a.id, a.workflowID, a.step, a.role, a.priority, dueAt, ago(a.age),
		); err != nil {
			return fmt.Errorf("seed approvals: %w", err)
		}
	}

	return nil
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
