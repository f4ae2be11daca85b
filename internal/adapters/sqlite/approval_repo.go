package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/ports/secondary"
)

// ApprovalRepository implements secondary.ApprovalRepository for workflow approvals.
// Approvals are joined to their workflow for title and category; an approval
// whose workflow is missing is reported with ErrOrphanApproval rather than
// silently matched.
type ApprovalRepository struct {
	db querier
}

// NewApprovalRepository creates a new SQLite workflow approval repository.
func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalSelect = `SELECT a.id, a.workflow_id, a.step_name, a.priority, a.status, a.due_at, a.created_at,
		w.id, w.name, w.category
	FROM workflow_approvals a
	LEFT JOIN workflows w ON w.id = a.workflow_id`

const approvalNotEscalated = `NOT EXISTS (
		SELECT 1 FROM escalations e
		WHERE e.work_item_class = 'workflow_approval' AND e.work_item_id = a.id AND e.status IN ` + activeStatusesSQL + `
	)`

// Class returns the item class served by this repository.
func (r *ApprovalRepository) Class() string {
	return string(escalation.ClassWorkflowApproval)
}

// ListBreachCandidates returns pending approvals of a priority created before
// the cutoff with no active escalation. Orphaned rows are included; callers
// check WorkflowMissing.
func (r *ApprovalRepository) ListBreachCandidates(ctx context.Context, priority string, createdBefore time.Time) ([]*secondary.WorkItemRecord, error) {
	query := approvalSelect + `
		WHERE a.status = 'pending' AND a.priority = ? AND a.created_at < ? AND ` + approvalNotEscalated + `
		ORDER BY a.created_at`
	return r.list(ctx, query, priority, formatTime(createdBefore))
}

// ListOverdue returns pending approvals whose due date has passed and that have
// no active escalation.
func (r *ApprovalRepository) ListOverdue(ctx context.Context, now time.Time) ([]*secondary.WorkItemRecord, error) {
	query := approvalSelect + `
		WHERE a.status = 'pending' AND a.due_at IS NOT NULL AND a.due_at < ? AND ` + approvalNotEscalated + `
		ORDER BY a.due_at`
	return r.list(ctx, query, formatTime(now))
}

// GetByID retrieves an approval by its ID. Returns ErrOrphanApproval if its
// workflow does not exist.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*secondary.WorkItemRecord, error) {
	item, missing, err := r.scan(r.db.QueryRowContext(ctx, approvalSelect+" WHERE a.id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow approval %s: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if missing {
		return nil, fmt.Errorf("approval %s -> workflow %q: %w", id, item.WorkflowID, secondary.ErrOrphanApproval)
	}
	return item, nil
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...any) ([]*secondary.WorkItemRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow approvals: %w", err)
	}
	defer rows.Close()

	var items []*secondary.WorkItemRecord
	for rows.Next() {
		item, missing, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		item.WorkflowMissing = missing
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ApprovalRepository) scan(row rowScanner) (*secondary.WorkItemRecord, bool, error) {
	var (
		item         = &secondary.WorkItemRecord{Class: string(escalation.ClassWorkflowApproval)}
		stepName     string
		dueAt        sql.NullTime
		createdAt    time.Time
		joinedID     sql.NullString
		workflowName sql.NullString
		category     sql.NullString
	)
	err := row.Scan(&item.ID, &item.WorkflowID, &stepName, &item.Priority, &item.Status, &dueAt, &createdAt,
		&joinedID, &workflowName, &category)
	if err == sql.ErrNoRows {
		return nil, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan workflow approval: %w", err)
	}

	item.CreatedAt = createdAt.UTC()
	item.DueAt = timePtr(dueAt)
	item.Category = category.String
	item.Title = stepName
	if workflowName.Valid {
		item.Title = fmt.Sprintf("%s: %s", workflowName.String, stepName)
	}
	return item, !joinedID.Valid, nil
}

// Ensure ApprovalRepository implements the interface
var _ secondary.ApprovalRepository = (*ApprovalRepository)(nil)
