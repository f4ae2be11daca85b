package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/warden/internal/ports/secondary"
)

// ActivityLogRepository implements secondary.ActivityLogRepository with SQLite.
// The table is append-only; triggers reject updates and deletes.
type ActivityLogRepository struct {
	db querier
}

// NewActivityLogRepository creates a new SQLite activity log repository.
func NewActivityLogRepository(db *sql.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Append writes a new activity entry.
func (r *ActivityLogRepository) Append(ctx context.Context, entry *secondary.ActivityRecord) error {
	if entry.ID == "" {
		entry.ID = newID("ACT")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO escalation_activity_log (id, escalation_id, activity_type, description, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.EscalationID,
		entry.ActivityType,
		entry.Description,
		entry.Actor,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append activity for %s: %w", entry.EscalationID, err)
	}
	return nil
}

// ListByEscalation returns the entries of one escalation, oldest first.
func (r *ActivityLogRepository) ListByEscalation(ctx context.Context, escalationID string) ([]*secondary.ActivityRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, escalation_id, activity_type, description, actor, created_at
		FROM escalation_activity_log WHERE escalation_id = ? ORDER BY created_at, rowid`,
		escalationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.ActivityRecord
	for rows.Next() {
		var createdAt time.Time
		entry := &secondary.ActivityRecord{}
		if err := rows.Scan(&entry.ID, &entry.EscalationID, &entry.ActivityType, &entry.Description, &entry.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entry.CreatedAt = createdAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Ensure ActivityLogRepository implements the interface
var _ secondary.ActivityLogRepository = (*ActivityLogRepository)(nil)
