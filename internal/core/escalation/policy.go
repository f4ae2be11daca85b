package escalation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency of a work item.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every priority, most urgent first.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority converts user or stored input into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// ItemClass identifies which store a work item lives in.
type ItemClass string

const (
	ClassFeedback         ItemClass = "feedback"
	ClassAlert            ItemClass = "alert"
	ClassWorkflowApproval ItemClass = "workflow_approval"
)

// ItemClasses lists every work item class.
var ItemClasses = []ItemClass{ClassFeedback, ClassAlert, ClassWorkflowApproval}

// ParseItemClass converts user or stored input into an ItemClass.
func ParseItemClass(s string) (ItemClass, error) {
	c := ItemClass(strings.TrimSpace(strings.ToLower(s)))
	for _, known := range ItemClasses {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown work item class %q", s)
}

// ErrMissingPolicy is returned when no budget is configured for a class/priority pair.
var ErrMissingPolicy = errors.New("missing SLA policy entry")

// Policy is the immutable SLA table: per class and priority, the maximum age
// before an item breaches, plus the per-priority budget an open escalation gets
// before it is re-escalated.
type Policy struct {
	budgets      map[ItemClass]map[Priority]time.Duration
	reescalation map[Priority]time.Duration
}

// NewPolicy builds a Policy from the given tables. The maps are copied.
func NewPolicy(budgets map[ItemClass]map[Priority]time.Duration, reescalation map[Priority]time.Duration) *Policy {
	p := &Policy{
		budgets:      make(map[ItemClass]map[Priority]time.Duration, len(budgets)),
		reescalation: make(map[Priority]time.Duration, len(reescalation)),
	}
	for class, byPriority := range budgets {
		inner := make(map[Priority]time.Duration, len(byPriority))
		for prio, d := range byPriority {
			inner[prio] = d
		}
		p.budgets[class] = inner
	}
	for prio, d := range reescalation {
		p.reescalation[prio] = d
	}
	return p
}

// DefaultBudgets returns the built-in breach budgets.
func DefaultBudgets() map[ItemClass]map[Priority]time.Duration {
	return map[ItemClass]map[Priority]time.Duration{
		ClassFeedback: {
			PriorityCritical: 15 * time.Minute,
			PriorityHigh:     time.Hour,
			PriorityMedium:   4 * time.Hour,
			PriorityLow:      24 * time.Hour,
		},
		ClassAlert: {
			PriorityCritical: 5 * time.Minute,
			PriorityHigh:     15 * time.Minute,
			PriorityMedium:   time.Hour,
			PriorityLow:      4 * time.Hour,
		},
		ClassWorkflowApproval: {
			PriorityCritical: 4 * time.Hour,
			PriorityHigh:     24 * time.Hour,
			PriorityMedium:   72 * time.Hour,
			PriorityLow:      168 * time.Hour,
		},
	}
}

// DefaultReescalation returns the built-in re-escalation budgets.
func DefaultReescalation() map[Priority]time.Duration {
	return map[Priority]time.Duration{
		PriorityCritical: 30 * time.Minute,
		PriorityHigh:     2 * time.Hour,
		PriorityMedium:   8 * time.Hour,
		PriorityLow:      24 * time.Hour,
	}
}

// DefaultPolicy returns a Policy populated with the built-in budgets.
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultBudgets(), DefaultReescalation())
}

// Budget returns the breach budget for a class and priority.
func (p *Policy) Budget(class ItemClass, priority Priority) (time.Duration, error) {
	d, ok := p.budgets[class][priority]
	if !ok || d <= 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrMissingPolicy, class, priority)
	}
	return d, nil
}

// ReescalationBudget returns how long an escalation of the given priority may
// stay active before it is raised a level.
func (p *Policy) ReescalationBudget(priority Priority) (time.Duration, error) {
	d, ok := p.reescalation[priority]
	if !ok || d <= 0 {
		return 0, fmt.Errorf("%w: reescalation/%s", ErrMissingPolicy, priority)
	}
	return d, nil
}

// Validate checks that every class and priority has a budget.
func (p *Policy) Validate() error {
	var missing []string
	for _, class := range ItemClasses {
		for _, prio := range Priorities {
			if _, err := p.Budget(class, prio); err != nil {
				missing = append(missing, fmt.Sprintf("%s/%s", class, prio))
			}
		}
	}
	for _, prio := range Priorities {
		if _, err := p.ReescalationBudget(prio); err != nil {
			missing = append(missing, fmt.Sprintf("reescalation/%s", prio))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingPolicy, strings.Join(missing, ", "))
	}
	return nil
}
