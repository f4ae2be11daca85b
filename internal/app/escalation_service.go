package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/metrics"
	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/ports/secondary"
)

// errSuperseded aborts a transaction whose escalation was already moved on by
// another writer. It never leaves this package.
var errSuperseded = errors.New("escalation superseded")

// EscalationServiceImpl implements the EscalationService interface.
// It is the only writer of escalations, their activity log and notifications.
type EscalationServiceImpl struct {
	escalationRepo secondary.EscalationRepository
	activityRepo   secondary.ActivityLogRepository
	itemRepos      map[string]secondary.WorkItemRepository
	tx             secondary.Transactor
	resolver       *escalation.Resolver
	dispatcher     *NotificationDispatcher
	maxLevel       int
	log            *zap.SugaredLogger
	now            func() time.Time
}

// NewEscalationService creates a new EscalationService with injected dependencies.
// itemRepos are looked up by their Class(); clock may be nil.
func NewEscalationService(
	escalationRepo secondary.EscalationRepository,
	activityRepo secondary.ActivityLogRepository,
	itemRepos []secondary.WorkItemRepository,
	tx secondary.Transactor,
	resolver *escalation.Resolver,
	dispatcher *NotificationDispatcher,
	maxLevel int,
	log *zap.SugaredLogger,
	clock func() time.Time,
) *EscalationServiceImpl {
	byClass := make(map[string]secondary.WorkItemRepository, len(itemRepos))
	for _, r := range itemRepos {
		byClass[r.Class()] = r
	}
	if maxLevel <= 0 {
		maxLevel = escalation.DefaultMaxLevel
	}
	if clock == nil {
		clock = time.Now
	}
	return &EscalationServiceImpl{
		escalationRepo: escalationRepo,
		activityRepo:   activityRepo,
		itemRepos:      byClass,
		tx:             tx,
		resolver:       resolver,
		dispatcher:     dispatcher,
		maxLevel:       maxLevel,
		log:            log,
		now:            clock,
	}
}

// CreateEscalation opens a level 1 escalation for a breached work item.
func (s *EscalationServiceImpl) CreateEscalation(ctx context.Context, item *primary.WorkItem, reason string) (*primary.Escalation, error) {
	priority, err := escalation.ParsePriority(item.Priority)
	if err != nil {
		return nil, fmt.Errorf("work item %s: %w", item.ID, err)
	}
	if _, err := escalation.ParseItemClass(item.Class); err != nil {
		return nil, fmt.Errorf("work item %s: %w", item.ID, err)
	}

	target := s.resolver.Resolve(priority, 1)
	record := &secondary.EscalationRecord{
		ID:              newEscalationID(),
		WorkItemClass:   item.Class,
		WorkItemID:      item.ID,
		Level:           1,
		EscalatedToRole: target.Role,
		EscalatedToUser: target.User,
		Reason:          reason,
		Priority:        string(priority),
		Category:        item.Category,
		Status:          string(escalation.InitialStatus()),
		CreatedBy:       escalation.SystemActor,
		CreatedAt:       s.now().UTC(),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos secondary.TxRepositories) error {
		if err := repos.Escalations.Create(ctx, record); err != nil {
			return err
		}
		if err := s.appendActivity(ctx, repos.Activity, record.ID, escalation.ActivityCreated,
			fmt.Sprintf("Level 1 escalation to %s: %s", describeTarget(record), reason), escalation.SystemActor, record.CreatedAt); err != nil {
			return err
		}
		return s.dispatcher.Notify(ctx, repos.Notifications, record, escalation.ActionCreated)
	})
	if errors.Is(err, secondary.ErrActiveEscalationExists) {
		metrics.IdempotentCollisions.WithLabelValues("create").Inc()
		s.log.Debugw("work item already escalated", "workItem", item.ID, "class", item.Class)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to escalate %s %s: %w", item.Class, item.ID, err)
	}

	metrics.EscalationsCreated.WithLabelValues(record.WorkItemClass, "1", string(escalation.ActionCreated)).Inc()
	s.log.Infow("escalation created",
		"escalationID", record.ID,
		"workItem", item.ID,
		"class", item.Class,
		"priority", record.Priority,
		"role", record.EscalatedToRole)
	return recordToEscalation(record), nil
}

// EscalateToNextLevel raises an active escalation one level. The parent is
// closed conditionally, so a concurrent writer that got there first turns this
// call into a no-op returning (nil, nil).
func (s *EscalationServiceImpl) EscalateToNextLevel(ctx context.Context, escalationID, reason string) (*primary.Escalation, error) {
	var child *secondary.EscalationRecord

	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos secondary.TxRepositories) error {
		parent, err := repos.Escalations.GetByID(ctx, escalationID)
		if err != nil {
			return err
		}
		status, err := escalation.ParseStatus(parent.Status)
		if err != nil {
			return err
		}
		if !status.IsActive() {
			return errSuperseded
		}
		if err := escalation.CanAutoEscalate(escalation.AutoEscalateContext{
			EscalationID: parent.ID,
			Level:        parent.Level,
			MaxLevel:     s.maxLevel,
			Status:       status,
		}).Error(); err != nil {
			return err
		}

		priority, err := escalation.ParsePriority(parent.Priority)
		if err != nil {
			return err
		}
		level := escalation.NextLevel(parent.Level)
		target := s.resolver.Resolve(priority, level)
		now := s.now().UTC()
		child = &secondary.EscalationRecord{
			ID:                 newEscalationID(),
			WorkItemClass:      parent.WorkItemClass,
			WorkItemID:         parent.WorkItemID,
			Level:              level,
			EscalatedToRole:    target.Role,
			EscalatedToUser:    target.User,
			Reason:             reason,
			Priority:           parent.Priority,
			Category:           parent.Category,
			Status:             string(escalation.InitialStatus()),
			CreatedBy:          escalation.SystemActor,
			ParentEscalationID: parent.ID,
			CreatedAt:          now,
		}

		// Closing the parent first frees the item's active slot for the child
		if err := repos.Escalations.MarkEscalated(ctx, parent.ID, child.ID, now); err != nil {
			if errors.Is(err, secondary.ErrStaleTransition) {
				return errSuperseded
			}
			return err
		}
		if err := repos.Escalations.Create(ctx, child); err != nil {
			return err
		}
		if err := s.appendActivity(ctx, repos.Activity, parent.ID, escalation.ActivityEscalated,
			fmt.Sprintf("Escalated to level %d (%s)", level, child.ID), escalation.SystemActor, now); err != nil {
			return err
		}
		if err := s.appendActivity(ctx, repos.Activity, child.ID, escalation.ActivityCreated,
			fmt.Sprintf("Level %d escalation to %s: %s", level, describeTarget(child), reason), escalation.SystemActor, now); err != nil {
			return err
		}
		return s.dispatcher.Notify(ctx, repos.Notifications, child, escalation.ActionEscalated)
	})
	if errors.Is(err, errSuperseded) || errors.Is(err, secondary.ErrActiveEscalationExists) {
		metrics.IdempotentCollisions.WithLabelValues("reescalate").Inc()
		s.log.Debugw("escalation already superseded", "escalationID", escalationID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to re-escalate %s: %w", escalationID, err)
	}

	metrics.EscalationsCreated.WithLabelValues(child.WorkItemClass, strconv.Itoa(child.Level), string(escalation.ActionEscalated)).Inc()
	metrics.Reescalations.WithLabelValues(child.Priority).Inc()
	s.log.Infow("escalation raised",
		"escalationID", child.ID,
		"parentID", escalationID,
		"workItem", child.WorkItemID,
		"level", child.Level,
		"role", child.EscalatedToRole)
	return recordToEscalation(child), nil
}

// CreateManualEscalation escalates a work item on behalf of a user. The level
// is one above the highest ever recorded for the item, with no ceiling, and an
// active escalation (if any) becomes its parent.
func (s *EscalationServiceImpl) CreateManualEscalation(ctx context.Context, req primary.ManualEscalationRequest) (*primary.Escalation, error) {
	itemRepo, ok := s.itemRepos[req.WorkItemClass]
	if !ok {
		return nil, fmt.Errorf("unknown work item class %q", req.WorkItemClass)
	}

	item, err := itemRepo.GetByID(ctx, req.WorkItemID)
	if err != nil && !errors.Is(err, secondary.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up work item: %w", err)
	}
	if err := escalation.CanManuallyEscalate(escalation.ManualEscalateContext{
		WorkItemID: req.WorkItemID,
		ItemExists: item != nil,
		ActorID:    req.ActorID,
		Reason:     req.Reason,
	}).Error(); err != nil {
		return nil, err
	}
	priority, err := escalation.ParsePriority(item.Priority)
	if err != nil {
		return nil, fmt.Errorf("work item %s: %w", item.ID, err)
	}

	var record *secondary.EscalationRecord
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos secondary.TxRepositories) error {
		maxExisting, err := repos.Escalations.MaxLevelForItem(ctx, item.Class, item.ID)
		if err != nil {
			return err
		}
		active, err := repos.Escalations.GetActiveForItem(ctx, item.Class, item.ID)
		if err != nil {
			return err
		}

		level := escalation.ManualLevel(maxExisting)
		target := s.resolver.Resolve(priority, level)
		if req.TargetRole != "" {
			target.Role = req.TargetRole
		}
		if req.TargetUser != "" {
			target.User = req.TargetUser
		}

		now := s.now().UTC()
		record = &secondary.EscalationRecord{
			ID:              newEscalationID(),
			WorkItemClass:   item.Class,
			WorkItemID:      item.ID,
			Level:           level,
			EscalatedToRole: target.Role,
			EscalatedToUser: target.User,
			Reason:          req.Reason,
			Priority:        string(priority),
			Category:        item.Category,
			Status:          string(escalation.InitialStatus()),
			CreatedBy:       req.ActorID,
			Manual:          true,
			CreatedAt:       now,
		}

		if active != nil {
			record.ParentEscalationID = active.ID
			if err := repos.Escalations.MarkEscalated(ctx, active.ID, record.ID, now); err != nil {
				return err
			}
			if err := s.appendActivity(ctx, repos.Activity, active.ID, escalation.ActivityEscalated,
				fmt.Sprintf("Manually escalated to level %d (%s)", level, record.ID), req.ActorID, now); err != nil {
				return err
			}
		}
		if err := repos.Escalations.Create(ctx, record); err != nil {
			return err
		}
		if err := s.appendActivity(ctx, repos.Activity, record.ID, escalation.ActivityManualEscalation,
			fmt.Sprintf("Level %d manual escalation to %s: %s", level, describeTarget(record), req.Reason), req.ActorID, now); err != nil {
			return err
		}
		return s.dispatcher.Notify(ctx, repos.Notifications, record, escalation.ActionManual)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to escalate %s %s manually: %w", req.WorkItemClass, req.WorkItemID, err)
	}

	metrics.EscalationsCreated.WithLabelValues(record.WorkItemClass, strconv.Itoa(record.Level), string(escalation.ActionManual)).Inc()
	s.log.Infow("manual escalation created",
		"escalationID", record.ID,
		"workItem", record.WorkItemID,
		"level", record.Level,
		"actor", req.ActorID,
		"role", record.EscalatedToRole)
	return recordToEscalation(record), nil
}

// StartEscalation marks an open escalation in progress.
func (s *EscalationServiceImpl) StartEscalation(ctx context.Context, escalationID, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("starting escalation %s requires an actor", escalationID)
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context, repos secondary.TxRepositories) error {
		current, err := s.guardStatusChange(ctx, repos.Escalations, escalationID, escalation.StatusInProgress)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := repos.Escalations.UpdateStatus(ctx, escalationID, []string{string(current)}, string(escalation.StatusInProgress), now); err != nil {
			return err
		}
		return s.appendActivity(ctx, repos.Activity, escalationID, escalation.ActivityStatusChanged,
			fmt.Sprintf("Status changed from %s to %s", current, escalation.StatusInProgress), actorID, now)
	})
}

// ResolveEscalation resolves an active escalation.
func (s *EscalationServiceImpl) ResolveEscalation(ctx context.Context, req primary.ResolveEscalationRequest) error {
	if req.ResolvedBy == "" {
		return fmt.Errorf("resolving escalation %s requires an actor", req.EscalationID)
	}
	if req.Resolution == "" {
		return fmt.Errorf("resolving escalation %s requires a resolution", req.EscalationID)
	}

	var class string
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos secondary.TxRepositories) error {
		if _, err := s.guardStatusChange(ctx, repos.Escalations, req.EscalationID, escalation.StatusResolved); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := repos.Escalations.Resolve(ctx, req.EscalationID, req.Resolution, req.ResolvedBy, now); err != nil {
			return err
		}
		record, err := repos.Escalations.GetByID(ctx, req.EscalationID)
		if err != nil {
			return err
		}
		class = record.WorkItemClass
		return s.appendActivity(ctx, repos.Activity, req.EscalationID, escalation.ActivityResolved,
			fmt.Sprintf("Resolved: %s", req.Resolution), req.ResolvedBy, now)
	})
	if err != nil {
		return fmt.Errorf("failed to resolve escalation: %w", err)
	}

	metrics.EscalationsResolved.WithLabelValues(class).Inc()
	s.log.Infow("escalation resolved", "escalationID", req.EscalationID, "actor", req.ResolvedBy)
	return nil
}

// GetEscalation retrieves an escalation by ID.
func (s *EscalationServiceImpl) GetEscalation(ctx context.Context, escalationID string) (*primary.Escalation, error) {
	record, err := s.escalationRepo.GetByID(ctx, escalationID)
	if err != nil {
		return nil, err
	}
	return recordToEscalation(record), nil
}

// ListEscalations lists escalations with optional filters.
func (s *EscalationServiceImpl) ListEscalations(ctx context.Context, filters primary.EscalationFilters) ([]*primary.Escalation, error) {
	records, err := s.escalationRepo.List(ctx, secondary.EscalationFilters{
		WorkItemClass: filters.WorkItemClass,
		WorkItemID:    filters.WorkItemID,
		Status:        filters.Status,
		Priority:      filters.Priority,
		Limit:         filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}

	escalations := make([]*primary.Escalation, len(records))
	for i, r := range records {
		escalations[i] = recordToEscalation(r)
	}
	return escalations, nil
}

// GetChain walks parent links from an escalation to its root and returns the
// chain root first.
func (s *EscalationServiceImpl) GetChain(ctx context.Context, escalationID string) ([]*primary.Escalation, error) {
	var chain []*primary.Escalation
	seen := make(map[string]bool)

	for id := escalationID; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("escalation chain of %s contains a cycle at %s", escalationID, id)
		}
		seen[id] = true

		record, err := s.escalationRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, recordToEscalation(record))
		id = record.ParentEscalationID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ListActivity returns the audit trail of an escalation, oldest first.
func (s *EscalationServiceImpl) ListActivity(ctx context.Context, escalationID string) ([]*primary.ActivityEntry, error) {
	if _, err := s.escalationRepo.GetByID(ctx, escalationID); err != nil {
		return nil, err
	}
	records, err := s.activityRepo.ListByEscalation(ctx, escalationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}

	entries := make([]*primary.ActivityEntry, len(records))
	for i, r := range records {
		entries[i] = &primary.ActivityEntry{
			ActivityType: r.ActivityType,
			Description:  r.Description,
			Actor:        r.Actor,
			CreatedAt:    r.CreatedAt,
		}
	}
	return entries, nil
}

// GetStats aggregates escalations created in the last windowDays days.
func (s *EscalationServiceImpl) GetStats(ctx context.Context, windowDays int) (*primary.EscalationStats, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("windowDays must be positive, got %d", windowDays)
	}
	now := s.now().UTC()
	stats, err := s.escalationRepo.Stats(ctx, now.AddDate(0, 0, -windowDays), now)
	if err != nil {
		return nil, err
	}
	return &primary.EscalationStats{
		WindowDays:            windowDays,
		Total:                 stats.Total,
		Open:                  stats.Open,
		InProgress:            stats.InProgress,
		CriticalOpen:          stats.CriticalOpen,
		Last24h:               stats.Last24h,
		MeanResolutionMinutes: stats.MeanResolutionMinutes,
	}, nil
}

// Helper methods

func (s *EscalationServiceImpl) guardStatusChange(ctx context.Context, repo secondary.EscalationRepository, id string, target escalation.Status) (escalation.Status, error) {
	record, err := repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	current, err := escalation.ParseStatus(record.Status)
	if err != nil {
		return "", err
	}
	if err := escalation.CanChangeStatus(escalation.StatusChangeContext{
		EscalationID: id,
		Current:      current,
		Target:       target,
	}).Error(); err != nil {
		return "", err
	}
	return current, nil
}

func (s *EscalationServiceImpl) appendActivity(ctx context.Context, repo secondary.ActivityLogRepository, escalationID, activityType, description, actor string, at time.Time) error {
	return repo.Append(ctx, &secondary.ActivityRecord{
		ID:           "ACT-" + uuid.NewString(),
		EscalationID: escalationID,
		ActivityType: activityType,
		Description:  description,
		Actor:        actor,
		CreatedAt:    at,
	})
}

func newEscalationID() string {
	return "ESC-" + uuid.NewString()
}

func describeTarget(r *secondary.EscalationRecord) string {
	if r.EscalatedToUser != "" {
		return fmt.Sprintf("%s (%s)", r.EscalatedToRole, r.EscalatedToUser)
	}
	return r.EscalatedToRole
}

func recordToEscalation(r *secondary.EscalationRecord) *primary.Escalation {
	return &primary.Escalation{
		ID:                      r.ID,
		WorkItemClass:           r.WorkItemClass,
		WorkItemID:              r.WorkItemID,
		Level:                   r.Level,
		EscalatedToRole:         r.EscalatedToRole,
		EscalatedToUser:         r.EscalatedToUser,
		Reason:                  r.Reason,
		Priority:                r.Priority,
		Category:                r.Category,
		Status:                  r.Status,
		CreatedBy:               r.CreatedBy,
		Manual:                  r.Manual,
		ParentEscalationID:      r.ParentEscalationID,
		EscalatedToEscalationID: r.EscalatedToEscalationID,
		Resolution:              r.Resolution,
		ResolvedBy:              r.ResolvedBy,
		CreatedAt:               r.CreatedAt,
		ResolvedAt:              r.ResolvedAt,
	}
}

// Ensure EscalationServiceImpl implements the interface
var _ primary.EscalationService = (*EscalationServiceImpl)(nil)
