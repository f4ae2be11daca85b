package primary

import (
	"context"
	"time"
)

// EscalationService defines the primary port for escalation operations.
// It is the transition engine: the only component that writes escalations.
type EscalationService interface {
	// CreateEscalation opens a level 1 escalation for a breached work item.
	// Returns (nil, nil) when the item was already escalated by a concurrent writer.
	CreateEscalation(ctx context.Context, item *WorkItem, reason string) (*Escalation, error)

	// EscalateToNextLevel raises an active escalation one level below the automatic ceiling.
	// Returns (nil, nil) when the escalation was already superseded.
	EscalateToNextLevel(ctx context.Context, escalationID, reason string) (*Escalation, error)

	// CreateManualEscalation escalates a work item on behalf of a user, with no level ceiling.
	CreateManualEscalation(ctx context.Context, req ManualEscalationRequest) (*Escalation, error)

	// StartEscalation marks an open escalation in progress.
	StartEscalation(ctx context.Context, escalationID, actorID string) error

	// ResolveEscalation resolves an active escalation.
	ResolveEscalation(ctx context.Context, req ResolveEscalationRequest) error

	// GetEscalation retrieves an escalation by ID.
	GetEscalation(ctx context.Context, escalationID string) (*Escalation, error)

	// ListEscalations lists escalations with optional filters.
	ListEscalations(ctx context.Context, filters EscalationFilters) ([]*Escalation, error)

	// GetChain returns the escalation and its ancestors, root (level 1) first.
	GetChain(ctx context.Context, escalationID string) ([]*Escalation, error)

	// ListActivity returns the audit trail of an escalation, oldest first.
	ListActivity(ctx context.Context, escalationID string) ([]*ActivityEntry, error)

	// GetStats aggregates escalations over the last windowDays days.
	GetStats(ctx context.Context, windowDays int) (*EscalationStats, error)
}

// WorkItem represents a feedback ticket, security alert or workflow approval.
type WorkItem struct {
	Class     string     `json:"class"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Priority  string     `json:"priority"`
	Category  string     `json:"category"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	DueAt     *time.Time `json:"dueAt,omitempty"`
}

// Escalation represents an escalation entity at the port boundary.
type Escalation struct {
	ID                      string     `json:"id"`
	WorkItemClass           string     `json:"workItemClass"`
	WorkItemID              string     `json:"workItemId"`
	Level                   int        `json:"level"`
	EscalatedToRole         string     `json:"escalatedToRole"`
	EscalatedToUser         string     `json:"escalatedToUser,omitempty"`
	Reason                  string     `json:"reason"`
	Priority                string     `json:"priority"`
	Category                string     `json:"category"`
	Status                  string     `json:"status"`
	CreatedBy               string     `json:"createdBy"`
	Manual                  bool       `json:"manual"`
	ParentEscalationID      string     `json:"parentEscalationId,omitempty"`
	EscalatedToEscalationID string     `json:"escalatedToEscalationId,omitempty"`
	Resolution              string     `json:"resolution,omitempty"`
	ResolvedBy              string     `json:"resolvedBy,omitempty"`
	CreatedAt               time.Time  `json:"createdAt"`
	ResolvedAt              *time.Time `json:"resolvedAt,omitempty"`
}

// EscalationFilters contains filter options for listing escalations.
type EscalationFilters struct {
	WorkItemClass string
	WorkItemID    string
	Status        string
	Priority      string
	Limit         int
}

// ManualEscalationRequest contains parameters for a user-initiated escalation.
type ManualEscalationRequest struct {
	WorkItemClass string `json:"workItemClass"`
	WorkItemID    string `json:"workItemId"`
	Reason        string `json:"reason"`
	ActorID       string `json:"actorId"`
	TargetUser    string `json:"targetUser,omitempty"`
	TargetRole    string `json:"targetRole,omitempty"`
}

// ResolveEscalationRequest contains parameters for resolving an escalation.
type ResolveEscalationRequest struct {
	EscalationID string `json:"escalationId"`
	Resolution   string `json:"resolution"`
	ResolvedBy   string `json:"resolvedBy"`
}

// ActivityEntry is one audit trail entry.
type ActivityEntry struct {
	ActivityType string    `json:"activityType"`
	Description  string    `json:"description"`
	Actor        string    `json:"actor"`
	CreatedAt    time.Time `json:"createdAt"`
}

// EscalationStats is the read-only aggregate exposed to dashboards.
type EscalationStats struct {
	WindowDays            int     `json:"windowDays"`
	Total                 int     `json:"total"`
	Open                  int     `json:"open"`
	InProgress            int     `json:"inProgress"`
	CriticalOpen          int     `json:"criticalOpen"`
	Last24h               int     `json:"last24h"`
	MeanResolutionMinutes float64 `json:"meanResolutionMinutes"`
}
