// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces that the application core uses to interact with external systems.
package secondary

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by repository implementations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrActiveEscalationExists is returned by EscalationRepository.Create when the
	// work item already has an open or in-progress escalation.
	ErrActiveEscalationExists = errors.New("work item already has an active escalation")

	// ErrStaleTransition is returned when a conditional status update matched no
	// row because another writer changed the record first.
	ErrStaleTransition = errors.New("escalation changed concurrently")

	// ErrOrphanApproval is returned when a workflow approval does not reference
	// an existing workflow.
	ErrOrphanApproval = errors.New("workflow approval references unknown workflow")
)

// WorkItemRecord represents a feedback ticket, security alert or workflow
// approval as read from its store.
type WorkItemRecord struct {
	Class      string
	ID         string
	Title      string
	Priority   string
	Category   string
	Status     string
	CreatedAt  time.Time
	DueAt      *time.Time // Workflow approvals only
	WorkflowID string     // Workflow approvals only

	// WorkflowMissing is set on listed approvals whose workflow could not be joined.
	WorkflowMissing bool
}

// WorkItemRepository defines the read-only port onto one class of work items.
type WorkItemRepository interface {
	// Class returns the item class served by this repository.
	Class() string

	// ListBreachCandidates returns unresolved items of the given priority created
	// before createdBefore that have no active escalation.
	ListBreachCandidates(ctx context.Context, priority string, createdBefore time.Time) ([]*WorkItemRecord, error)

	// GetByID retrieves an item by its ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*WorkItemRecord, error)
}

// ApprovalRepository extends WorkItemRepository with deadline lookups.
type ApprovalRepository interface {
	WorkItemRepository

	// ListOverdue returns pending approvals whose due date is before now and
	// that have no active escalation.
	ListOverdue(ctx context.Context, now time.Time) ([]*WorkItemRecord, error)
}

// EscalationRecord represents an escalation as stored in persistence.
type EscalationRecord struct {
	ID                      string
	WorkItemClass           string
	WorkItemID              string
	Level                   int
	EscalatedToRole         string
	EscalatedToUser         string
	Reason                  string
	Priority                string
	Category                string
	Status                  string
	CreatedBy               string
	Manual                  bool
	ParentEscalationID      string
	EscalatedToEscalationID string
	Resolution              string
	ResolvedBy              string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	ResolvedAt              *time.Time
}

// EscalationFilters contains filter options for querying escalations.
type EscalationFilters struct {
	WorkItemClass string
	WorkItemID    string
	Status        string
	Priority      string
	Limit         int
}

// EscalationStats is the aggregate view over the escalation table.
type EscalationStats struct {
	Total                 int
	Open                  int
	InProgress            int
	CriticalOpen          int
	Last24h               int
	MeanResolutionMinutes float64
}

// EscalationRepository defines the secondary port for escalation persistence.
type EscalationRepository interface {
	// Create persists a new escalation. Returns ErrActiveEscalationExists when
	// the record is active and the item already has an active escalation.
	Create(ctx context.Context, escalation *EscalationRecord) error

	// GetByID retrieves an escalation by its ID. Returns ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*EscalationRecord, error)

	// List retrieves escalations matching the given filters, newest first.
	List(ctx context.Context, filters EscalationFilters) ([]*EscalationRecord, error)

	// GetActiveForItem returns the active escalation of an item, or nil if none.
	GetActiveForItem(ctx context.Context, class, itemID string) (*EscalationRecord, error)

	// MaxLevelForItem returns the highest level ever recorded for an item (0 if none).
	MaxLevelForItem(ctx context.Context, class, itemID string) (int, error)

	// ListTimedOut returns active escalations of the given priority created before
	// createdBefore whose level is below maxLevel.
	ListTimedOut(ctx context.Context, priority string, createdBefore time.Time, maxLevel int) ([]*EscalationRecord, error)

	// MarkEscalated closes an active escalation and links it to its child.
	// Returns ErrStaleTransition if the record is no longer active.
	MarkEscalated(ctx context.Context, id, childID string, at time.Time) error

	// UpdateStatus moves an escalation from one of the expected statuses to a new one.
	// Returns ErrStaleTransition if the current status is not in from.
	UpdateStatus(ctx context.Context, id string, from []string, to string, at time.Time) error

	// Resolve marks an active escalation resolved.
	// Returns ErrStaleTransition if the record is no longer active.
	Resolve(ctx context.Context, id, resolution, resolvedBy string, at time.Time) error

	// Stats aggregates escalations created since the window start.
	Stats(ctx context.Context, windowStart, now time.Time) (*EscalationStats, error)
}

// ActivityRecord is one append-only audit entry for an escalation.
type ActivityRecord struct {
	ID           string
	EscalationID string
	ActivityType string
	Description  string
	Actor        string
	CreatedAt    time.Time
}

// ActivityLogRepository defines the write-once activity log port.
type ActivityLogRepository interface {
	// Append writes a new entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry *ActivityRecord) error

	// ListByEscalation returns entries for an escalation, oldest first.
	ListByEscalation(ctx context.Context, escalationID string) ([]*ActivityRecord, error)
}

// NotificationRecord represents a notification produced by a transition.
type NotificationRecord struct {
	ID                string
	RecipientRole     string
	RecipientUser     string
	Subject           string
	Message           string
	Priority          string
	RelatedEntityType string
	RelatedEntityID   string
	Metadata          map[string]any
	CreatedAt         time.Time
	DeliveredAt       *time.Time
}

// NotificationRepository defines the notification store port.
type NotificationRepository interface {
	// Append writes a new notification.
	Append(ctx context.Context, n *NotificationRecord) error

	// ListByEntity returns notifications for a related entity, oldest first.
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*NotificationRecord, error)

	// ListUndelivered returns up to limit notifications not yet delivered, oldest first.
	ListUndelivered(ctx context.Context, limit int) ([]*NotificationRecord, error)

	// MarkDelivered stamps a notification as delivered.
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}

// TxRepositories are the repositories bound to a single transaction.
type TxRepositories struct {
	Escalations   EscalationRepository
	Activity      ActivityLogRepository
	Notifications NotificationRepository
}

// Transactor runs a unit of work inside one database transaction.
// The transaction is committed if fn returns nil and rolled back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

// NotificationSink delivers a notification to an external channel.
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, n *NotificationRecord) error
}
