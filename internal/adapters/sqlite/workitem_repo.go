package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/ports/secondary"
)

// workItemTable describes how one item store maps onto WorkItemRecord.
type workItemTable struct {
	class         escalation.ItemClass
	openStatuses  string // SQL IN-list of statuses that still need attention
	selectColumns string
	from          string
}

var (
	feedbackTable = workItemTable{
		class:         escalation.ClassFeedback,
		openStatuses:  "('open', 'in_progress')",
		selectColumns: "i.id, i.title, i.priority, i.category, i.status, i.created_at",
		from:          "feedback_tickets i",
	}
	alertTable = workItemTable{
		class:         escalation.ClassAlert,
		openStatuses:  "('new')",
		selectColumns: "i.id, i.title, i.priority, i.category, i.status, i.created_at",
		from:          "security_alerts i",
	}
)

// baseWorkItemRepository implements the queries shared by feedback tickets and alerts.
type baseWorkItemRepository struct {
	db    querier
	table workItemTable
}

// Class returns the item class served by this repository.
func (r *baseWorkItemRepository) Class() string {
	return string(r.table.class)
}

// ListBreachCandidates returns unresolved items of a priority created before the
// cutoff that have no active escalation.
func (r *baseWorkItemRepository) ListBreachCandidates(ctx context.Context, priority string, createdBefore time.Time) ([]*secondary.WorkItemRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE i.status IN %s
		  AND i.priority = ?
		  AND i.created_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM escalations e
			WHERE e.work_item_class = ? AND e.work_item_id = i.id AND e.status IN %s
		  )
		ORDER BY i.created_at`,
		r.table.selectColumns, r.table.from, r.table.openStatuses, activeStatusesSQL)

	rows, err := r.db.QueryContext(ctx, query, priority, formatTime(createdBefore), string(r.table.class))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s breach candidates: %w", r.table.class, err)
	}
	defer rows.Close()

	var items []*secondary.WorkItemRecord
	for rows.Next() {
		item, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetByID retrieves an item by its ID.
func (r *baseWorkItemRepository) GetByID(ctx context.Context, id string) (*secondary.WorkItemRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE i.id = ?", r.table.selectColumns, r.table.from)
	item, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %s: %w", r.table.class, id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *baseWorkItemRepository) scan(row rowScanner) (*secondary.WorkItemRecord, error) {
	item := &secondary.WorkItemRecord{Class: string(r.table.class)}
	var createdAt time.Time
	if err := row.Scan(&item.ID, &item.Title, &item.Priority, &item.Category, &item.Status, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan %s: %w", r.table.class, err)
	}
	item.CreatedAt = createdAt.UTC()
	return item, nil
}

// FeedbackRepository implements secondary.WorkItemRepository for feedback tickets.
type FeedbackRepository struct {
	baseWorkItemRepository
}

// NewFeedbackRepository creates a new SQLite feedback ticket repository.
func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{baseWorkItemRepository{db: db, table: feedbackTable}}
}

// AlertRepository implements secondary.WorkItemRepository for security alerts.
// An alert needs attention until it is acknowledged.
type AlertRepository struct {
	baseWorkItemRepository
}

// NewAlertRepository creates a new SQLite security alert repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{baseWorkItemRepository{db: db, table: alertTable}}
}

// Ensure repositories implement the interface
var (
	_ secondary.WorkItemRepository = (*FeedbackRepository)(nil)
	_ secondary.WorkItemRepository = (*AlertRepository)(nil)
)
