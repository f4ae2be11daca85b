package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/warden/internal/core/escalation"
	"github.com/example/warden/internal/metrics"
	"github.com/example/warden/internal/ports/primary"
	"github.com/example/warden/internal/ports/secondary"
)

// Scanner names, in the order a pass runs them.
const (
	ScannerFeedbackSLA       = "feedback_sla"
	ScannerAlertAck          = "alert_ack"
	ScannerEscalationTimeout = "escalation_timeout"
	ScannerWorkflowApproval  = "workflow_approval"
)

// Scanner is one breach check run during a monitor pass. A returned error
// fails the scanner as a whole; per-item failures are recorded on the result.
type Scanner struct {
	Name string
	Scan func(ctx context.Context, now time.Time) (*primary.ScanResult, error)
}

// ScannerService finds breached work items and timed-out escalations and hands
// them to the transition engine. It never writes escalations itself.
type ScannerService struct {
	feedbackRepo   secondary.WorkItemRepository
	alertRepo      secondary.WorkItemRepository
	approvalRepo   secondary.ApprovalRepository
	escalationRepo secondary.EscalationRepository
	engine         primary.EscalationService
	policy         *escalation.Policy
	maxLevel       int
	log            *zap.SugaredLogger
}

// NewScannerService creates a new ScannerService with injected dependencies.
func NewScannerService(
	feedbackRepo secondary.WorkItemRepository,
	alertRepo secondary.WorkItemRepository,
	approvalRepo secondary.ApprovalRepository,
	escalationRepo secondary.EscalationRepository,
	engine primary.EscalationService,
	policy *escalation.Policy,
	maxLevel int,
	log *zap.SugaredLogger,
) *ScannerService {
	if maxLevel <= 0 {
		maxLevel = escalation.DefaultMaxLevel
	}
	return &ScannerService{
		feedbackRepo:   feedbackRepo,
		alertRepo:      alertRepo,
		approvalRepo:   approvalRepo,
		escalationRepo: escalationRepo,
		engine:         engine,
		policy:         policy,
		maxLevel:       maxLevel,
		log:            log,
	}
}

// Scanners returns the scanners of one pass in execution order.
func (s *ScannerService) Scanners() []Scanner {
	return []Scanner{
		{Name: ScannerFeedbackSLA, Scan: s.ScanFeedback},
		{Name: ScannerAlertAck, Scan: s.ScanAlerts},
		{Name: ScannerEscalationTimeout, Scan: s.ScanEscalationTimeouts},
		{Name: ScannerWorkflowApproval, Scan: s.ScanWorkflowApprovals},
	}
}

// ScanFeedback escalates unresolved feedback tickets past their SLA.
func (s *ScannerService) ScanFeedback(ctx context.Context, now time.Time) (*primary.ScanResult, error) {
	result := &primary.ScanResult{Scanner: ScannerFeedbackSLA}
	return result, s.scanBudgets(ctx, result, s.feedbackRepo, now, nil)
}

// ScanAlerts escalates security alerts that were not acknowledged in time.
func (s *ScannerService) ScanAlerts(ctx context.Context, now time.Time) (*primary.ScanResult, error) {
	result := &primary.ScanResult{Scanner: ScannerAlertAck}
	return result, s.scanBudgets(ctx, result, s.alertRepo, now, nil)
}

// ScanWorkflowApprovals escalates pending approvals past their SLA or past an
// explicit due date. An item matched by both rules is escalated once.
func (s *ScannerService) ScanWorkflowApprovals(ctx context.Context, now time.Time) (*primary.ScanResult, error) {
	result := &primary.ScanResult{Scanner: ScannerWorkflowApproval}
	seen := make(map[string]bool)

	if err := s.scanBudgets(ctx, result, s.approvalRepo, now, seen); err != nil {
		return result, err
	}

	overdue, err := s.approvalRepo.ListOverdue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to list overdue approvals: %w", err)
	}
	for _, item := range overdue {
		if seen[item.ID] || !escalation.IsOverdue(now, item.DueAt) {
			continue
		}
		seen[item.ID] = true
		result.Candidates++
		s.escalateItem(ctx, result, item, escalation.DeadlineReason(*item.DueAt))
	}
	return result, nil
}

// ScanEscalationTimeouts raises active escalations that outlived their
// re-escalation budget, up to the automatic level ceiling.
func (s *ScannerService) ScanEscalationTimeouts(ctx context.Context, now time.Time) (*primary.ScanResult, error) {
	result := &primary.ScanResult{Scanner: ScannerEscalationTimeout}

	budgets := make(map[escalation.Priority]time.Duration, len(escalation.Priorities))
	for _, p := range escalation.Priorities {
		budget, err := s.policy.ReescalationBudget(p)
		if err != nil {
			return result, err
		}
		budgets[p] = budget
	}

	for _, p := range escalation.Priorities {
		budget := budgets[p]
		timedOut, err := s.escalationRepo.ListTimedOut(ctx, string(p), escalation.Cutoff(now, budget), s.maxLevel)
		if err != nil {
			return result, fmt.Errorf("failed to list timed-out %s escalations: %w", p, err)
		}

		for _, e := range timedOut {
			result.Candidates++
			reason := escalation.TimeoutReason(e.Level, now.Sub(e.CreatedAt), budget)
			child, err := s.engine.EscalateToNextLevel(ctx, e.ID, reason)
			if err != nil {
				s.recordItemError(result, e.ID, err)
				continue
			}
			if child == nil {
				result.Skipped++
				continue
			}
			result.Escalated++
		}
	}
	return result, nil
}

// scanBudgets checks every priority of the repository's class against the SLA
// table. All budgets are resolved before any item is touched so a missing
// entry fails the scanner without partial work. Candidates returned by the
// store are re-checked against the budget at now.
func (s *ScannerService) scanBudgets(ctx context.Context, result *primary.ScanResult, repo secondary.WorkItemRepository, now time.Time, seen map[string]bool) error {
	class := escalation.ItemClass(repo.Class())

	budgets := make(map[escalation.Priority]time.Duration, len(escalation.Priorities))
	for _, p := range escalation.Priorities {
		budget, err := s.policy.Budget(class, p)
		if err != nil {
			return err
		}
		budgets[p] = budget
	}

	for _, p := range escalation.Priorities {
		budget := budgets[p]
		items, err := repo.ListBreachCandidates(ctx, string(p), escalation.Cutoff(now, budget))
		if err != nil {
			return fmt.Errorf("failed to list %s %s candidates: %w", p, class, err)
		}

		for _, item := range items {
			if !escalation.IsBreached(now, item.CreatedAt, budget) {
				s.log.Debugw("skipping candidate within budget", "scanner", result.Scanner, "workItem", item.ID)
				continue
			}
			if seen != nil {
				seen[item.ID] = true
			}
			result.Candidates++
			s.escalateItem(ctx, result, item, escalation.BreachReason(class, p, now.Sub(item.CreatedAt), budget))
		}
	}
	return nil
}

func (s *ScannerService) escalateItem(ctx context.Context, result *primary.ScanResult, item *secondary.WorkItemRecord, reason string) {
	if item.WorkflowMissing {
		s.recordItemError(result, item.ID,
			fmt.Errorf("approval %s -> workflow %q: %w", item.ID, item.WorkflowID, secondary.ErrOrphanApproval))
		return
	}

	created, err := s.engine.CreateEscalation(ctx, recordToWorkItem(item), reason)
	if err != nil {
		s.recordItemError(result, item.ID, err)
		return
	}
	if created == nil {
		result.Skipped++
		return
	}
	result.Escalated++
}

func (s *ScannerService) recordItemError(result *primary.ScanResult, itemID string, err error) {
	metrics.ItemErrors.WithLabelValues(result.Scanner).Inc()
	s.log.Errorw("failed to process item", "scanner", result.Scanner, "workItem", itemID, "error", err)
	result.ItemErrors = append(result.ItemErrors, fmt.Sprintf("%s: %v", itemID, err))
}

func recordToWorkItem(r *secondary.WorkItemRecord) *primary.WorkItem {
	return &primary.WorkItem{
		Class:     r.Class,
		ID:        r.ID,
		Title:     r.Title,
		Priority:  r.Priority,
		Category:  r.Category,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		DueAt:     r.DueAt,
	}
}
