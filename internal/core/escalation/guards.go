package escalation

import "fmt"

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// GuardError is a rejected precondition. Callers use errors.As to tell it
// apart from storage failures.
type GuardError struct {
	Reason string
}

func (e *GuardError) Error() string { return e.Reason }

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return &GuardError{Reason: r.Reason}
}

// AutoEscalateContext provides context for automatic re-escalation guards.
type AutoEscalateContext struct {
	EscalationID string
	Level        int
	MaxLevel     int
	Status       Status
}

// CanAutoEscalate evaluates whether the monitor may raise an escalation one level.
// Rule: only active escalations below the automatic ceiling can be re-escalated.
func CanAutoEscalate(ctx AutoEscalateContext) GuardResult {
	if !ctx.Status.IsActive() {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("escalation %s is not active (status: %s)", ctx.EscalationID, ctx.Status),
		}
	}
	if ctx.Level >= ctx.MaxLevel {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("escalation %s is already at level %d (automatic maximum %d); use a manual escalation", ctx.EscalationID, ctx.Level, ctx.MaxLevel),
		}
	}
	return GuardResult{Allowed: true}
}

// ManualEscalateContext provides context for manual escalation guards.
// Populated by the caller with the pre-fetched item lookup.
type ManualEscalateContext struct {
	WorkItemID string
	ItemExists bool
	ActorID    string
	Reason     string
}

// CanManuallyEscalate evaluates whether a human may escalate a work item.
// Rule: the item must exist, and a named actor and a reason are required.
// There is no level ceiling for manual escalation.
func CanManuallyEscalate(ctx ManualEscalateContext) GuardResult {
	if !ctx.ItemExists {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("work item %s not found", ctx.WorkItemID),
		}
	}
	if ctx.ActorID == "" || ctx.ActorID == SystemActor {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("manual escalation of %s requires a user actor", ctx.WorkItemID),
		}
	}
	if ctx.Reason == "" {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("manual escalation of %s requires a reason", ctx.WorkItemID),
		}
	}
	return GuardResult{Allowed: true}
}

// StatusChangeContext provides context for start/resolve guards.
type StatusChangeContext struct {
	EscalationID string
	Current      Status
	Target       Status
}

// CanChangeStatus evaluates a lifecycle change requested by an operator.
// Escalated is reserved for the transition engine and cannot be requested directly.
func CanChangeStatus(ctx StatusChangeContext) GuardResult {
	if ctx.Target == StatusEscalated {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("escalation %s can only be marked escalated by re-escalating it", ctx.EscalationID),
		}
	}
	if ctx.Current.IsTerminal() {
		return GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("escalation %s is already %s", ctx.EscalationID, ctx.Current),
		}
	}
	res := CanTransition(ctx.Current, ctx.Target)
	if !res.Allowed {
		res.Reason = fmt.Sprintf("escalation %s: %s", ctx.EscalationID, res.Reason)
	}
	return res
}

// NextLevel returns the level of the child created when re-escalating.
func NextLevel(current int) int {
	return current + 1
}

// ManualLevel returns the level for a manual escalation given the highest
// level already recorded for the item (0 when it has never been escalated).
func ManualLevel(maxExisting int) int {
	if maxExisting < 0 {
		maxExisting = 0
	}
	return maxExisting + 1
}
