package escalation

import (
	"fmt"
	"time"
)

// Cutoff returns the creation time at or before which an item has exhausted
// the given budget. Items created strictly before the cutoff are breached.
func Cutoff(now time.Time, budget time.Duration) time.Time {
	return now.Add(-budget)
}

// IsBreached reports whether something created at createdAt has outlived budget.
func IsBreached(now, createdAt time.Time, budget time.Duration) bool {
	return now.Sub(createdAt) > budget
}

// IsOverdue reports whether an explicit deadline has passed.
func IsOverdue(now time.Time, dueAt *time.Time) bool {
	return dueAt != nil && now.After(*dueAt)
}

// BreachReason builds the reason text recorded on an automatic escalation.
func BreachReason(class ItemClass, priority Priority, age, budget time.Duration) string {
	return fmt.Sprintf("%s %s SLA breached: open for %s (budget %s)",
		priority, class, age.Truncate(time.Second), budget)
}

// DeadlineReason builds the reason text for an approval that passed its due date.
func DeadlineReason(dueAt time.Time) string {
	return fmt.Sprintf("workflow approval deadline %s passed", dueAt.UTC().Format(time.RFC3339))
}

// TimeoutReason builds the reason text recorded when an escalation is raised a level.
func TimeoutReason(level int, age, budget time.Duration) string {
	return fmt.Sprintf("level %d escalation unresolved for %s (budget %s)",
		level, age.Truncate(time.Second), budget)
}
