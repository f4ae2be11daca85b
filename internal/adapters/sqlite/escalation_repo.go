package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/ports/secondary"
)

// EscalationRepository implements secondary.EscalationRepository with SQLite.
type EscalationRepository struct {
	db querier
}

// NewEscalationRepository creates a new SQLite escalation repository.
func NewEscalationRepository(db *sql.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

const escalationColumns = `id, work_item_class, work_item_id, level, escalated_to_role, escalated_to_user, reason,
	priority, category, status, created_by, manual, parent_escalation_id, escalated_to_escalation_id,
	resolution, resolved_by, created_at, updated_at, resolved_at`

// Create persists a new escalation. An ID is assigned when the record has none.
func (r *EscalationRepository) Create(ctx context.Context, e *secondary.EscalationRecord) error {
	if e.ID == "" {
		e.ID = newID("ESC")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO escalations (`+escalationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.WorkItemClass,
		e.WorkItemID,
		e.Level,
		e.EscalatedToRole,
		nullString(e.EscalatedToUser),
		e.Reason,
		e.Priority,
		nullString(e.Category),
		e.Status,
		e.CreatedBy,
		e.Manual,
		nullString(e.ParentEscalationID),
		nullString(e.EscalatedToEscalationID),
		nullString(e.Resolution),
		nullString(e.ResolvedBy),
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
		nullTime(e.ResolvedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", e.WorkItemClass, e.WorkItemID, secondary.ErrActiveEscalationExists)
		}
		return fmt.Errorf("failed to create escalation: %w", err)
	}

	return nil
}

// GetByID retrieves an escalation by its ID.
func (r *EscalationRepository) GetByID(ctx context.Context, id string) (*secondary.EscalationRecord, error) {
	record, err := scanEscalation(r.db.QueryRowContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("escalation %s: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}
	return record, nil
}

// List retrieves escalations matching the given filters.
func (r *EscalationRepository) List(ctx context.Context, filters secondary.EscalationFilters) ([]*secondary.EscalationRecord, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE 1=1`
	args := []any{}

	if filters.WorkItemClass != "" {
		query += " AND work_item_class = ?"
		args = append(args, filters.WorkItemClass)
	}
	if filters.WorkItemID != "" {
		query += " AND work_item_id = ?"
		args = append(args, filters.WorkItemID)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}
	if filters.Priority != "" {
		query += " AND priority = ?"
		args = append(args, filters.Priority)
	}

	query += " ORDER BY created_at DESC, level DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	return r.query(ctx, query, args...)
}

// GetActiveForItem returns the open or in-progress escalation of an item, or nil.
func (r *EscalationRepository) GetActiveForItem(ctx context.Context, class, itemID string) (*secondary.EscalationRecord, error) {
	record, err := scanEscalation(r.db.QueryRowContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations
		WHERE work_item_class = ? AND work_item_id = ? AND status IN `+activeStatusesSQL,
		class, itemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active escalation: %w", err)
	}
	return record, nil
}

// MaxLevelForItem returns the highest level recorded for an item, or 0.
func (r *EscalationRepository) MaxLevelForItem(ctx context.Context, class, itemID string) (int, error) {
	var level int
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(level), 0) FROM escalations WHERE work_item_class = ? AND work_item_id = ?",
		class, itemID,
	).Scan(&level)
	if err != nil {
		return 0, fmt.Errorf("failed to get max escalation level: %w", err)
	}
	return level, nil
}

// ListTimedOut returns active escalations of a priority that have outlived the
// cutoff and can still be raised automatically.
func (r *EscalationRepository) ListTimedOut(ctx context.Context, priority string, createdBefore time.Time, maxLevel int) ([]*secondary.EscalationRecord, error) {
	return r.query(ctx,
		`SELECT `+escalationColumns+` FROM escalations
		WHERE status IN `+activeStatusesSQL+` AND priority = ? AND created_at < ? AND level < ?
		ORDER BY created_at`,
		priority, formatTime(createdBefore), maxLevel)
}

// MarkEscalated closes an active escalation in favour of its child.
func (r *EscalationRepository) MarkEscalated(ctx context.Context, id, childID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE escalations SET status = ?, escalated_to_escalation_id = ?, updated_at = ?
		WHERE id = ? AND status IN `+activeStatusesSQL,
		string(escalation.StatusEscalated), childID, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark escalation escalated: %w", err)
	}
	return r.expectOneRow(ctx, result, id)
}

// UpdateStatus moves an escalation to a new status if it is currently in one of from.
func (r *EscalationRepository) UpdateStatus(ctx context.Context, id string, from []string, to string, at time.Time) error {
	if len(from) == 0 {
		return fmt.Errorf("update escalation %s: no source statuses given", id)
	}
	args := []any{to, formatTime(at), id}
	for _, s := range from {
		args = append(args, s)
	}

	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE escalations SET status = ?, updated_at = ? WHERE id = ? AND status IN (%s)", placeholders(len(from))),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update escalation status: %w", err)
	}
	return r.expectOneRow(ctx, result, id)
}

// Resolve resolves an active escalation with resolution text.
func (r *EscalationRepository) Resolve(ctx context.Context, id, resolution, resolvedBy string, at time.Time) error {
	ts := formatTime(at)
	result, err := r.db.ExecContext(ctx,
		`UPDATE escalations SET status = 'resolved', resolution = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status IN `+activeStatusesSQL,
		resolution, resolvedBy, ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve escalation: %w", err)
	}
	return r.expectOneRow(ctx, result, id)
}

// Stats aggregates escalations created in [windowStart, now].
func (r *EscalationRepository) Stats(ctx context.Context, windowStart, now time.Time) (*secondary.EscalationStats, error) {
	stats := &secondary.EscalationStats{}
	var mean sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN priority = 'critical' AND status IN `+activeStatusesSQL+` THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN status = 'resolved' AND resolved_at IS NOT NULL
				THEN (julianday(resolved_at) - julianday(created_at)) * 1440.0 END)
		FROM escalations
		WHERE created_at >= ? AND created_at <= ?`,
		formatTime(now.Add(-24*time.Hour)), formatTime(windowStart), formatTime(now),
	).Scan(&stats.Total, &stats.Open, &stats.InProgress, &stats.CriticalOpen, &stats.Last24h, &mean)
	if err != nil {
		return nil, fmt.Errorf("failed to compute escalation stats: %w", err)
	}
	stats.MeanResolutionMinutes = mean.Float64
	return stats, nil
}

// expectOneRow maps a zero-row conditional update to ErrNotFound or ErrStaleTransition.
func (r *EscalationRepository) expectOneRow(ctx context.Context, result sql.Result, id string) error {
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		return nil
	}
	var exists int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM escalations WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check escalation %s: %w", id, err)
	}
	if exists == 0 {
		return fmt.Errorf("escalation %s: %w", id, secondary.ErrNotFound)
	}
	return fmt.Errorf("escalation %s: %w", id, secondary.ErrStaleTransition)
}

func (r *EscalationRepository) query(ctx context.Context, query string, args ...any) ([]*secondary.EscalationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	var escalations []*secondary.EscalationRecord
	for rows.Next() {
		record, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		escalations = append(escalations, record)
	}
	return escalations, rows.Err()
}

func scanEscalation(row rowScanner) (*secondary.EscalationRecord, error) {
	var (
		user       sql.NullString
		category   sql.NullString
		parentID   sql.NullString
		childID    sql.NullString
		resolution sql.NullString
		resolvedBy sql.NullString
		createdAt  time.Time
		updatedAt  time.Time
		resolvedAt sql.NullTime
	)

	record := &secondary.EscalationRecord{}
	err := row.Scan(&record.ID, &record.WorkItemClass, &record.WorkItemID, &record.Level,
		&record.EscalatedToRole, &user, &record.Reason, &record.Priority, &category, &record.Status,
		&record.CreatedBy, &record.Manual, &parentID, &childID, &resolution, &resolvedBy,
		&createdAt, &updatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	record.EscalatedToUser = user.String
	record.Category = category.String
	record.ParentEscalationID = parentID.String
	record.EscalatedToEscalationID = childID.String
	record.Resolution = resolution.String
	record.ResolvedBy = resolvedBy.String
	record.CreatedAt = createdAt.UTC()
	record.UpdatedAt = updatedAt.UTC()
	record.ResolvedAt = timePtr(resolvedAt)
	return record, nil
}

// Ensure EscalationRepository implements the interface
var _ secondary.EscalationRepository = (*EscalationRepository)(nil)
