// Package escalation contains the pure business logic for the escalation engine.
// This is part of the Functional Core - no I/O, only pure functions.
package escalation

import (
	"fmt"
	"strings"
)

// Status represents the possible states of an escalation.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusEscalated  Status = "escalated"
	StatusResolved   Status = "resolved"
)

// DefaultMaxLevel is the highest level the automatic engine will escalate to.
// Manual escalation is not bound by it.
const DefaultMaxLevel = 3

// SystemActor is the actor recorded for transitions made by the monitor.
const SystemActor = "system"

// allowedTransitions is the complete status transition table.
// Escalated and Resolved are terminal.
var allowedTransitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusEscalated, StatusResolved},
	StatusInProgress: {StatusEscalated, StatusResolved},
	StatusEscalated:  {},
	StatusResolved:   {},
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := allowedTransitions[st]; !ok {
		return "", fmt.Errorf("unknown escalation status %q", s)
	}
	return st, nil
}

// IsActive reports whether the status counts towards the one-active-escalation rule.
func (s Status) IsActive() bool {
	return s == StatusOpen || s == StatusInProgress
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusEscalated || s == StatusResolved
}

// ActiveStatuses returns the statuses considered active.
func ActiveStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress}
}

// CanTransition evaluates whether a status change is permitted by the transition table.
func CanTransition(from, to Status) GuardResult {
	targets, ok := allowedTransitions[from]
	if !ok {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown escalation status %q", from)}
	}
	for _, t := range targets {
		if t == to {
			return GuardResult{Allowed: true}
		}
	}
	return GuardResult{
		Allowed: false,
		Reason:  fmt.Sprintf("illegal escalation transition %s -> %s", from, to),
	}
}

// InitialStatus returns the status of a freshly created escalation.
func InitialStatus() Status {
	return StatusOpen
}

// Action names the transition that produced a notification.
type Action string

const (
	ActionCreated   Action = "created"
	ActionEscalated Action = "escalated"
	ActionManual    Action = "manual"
)

// ActivityType values recorded in the escalation activity log.
const (
	ActivityCreated          = "created"
	ActivityEscalated        = "escalated"
	ActivityManualEscalation = "manual_escalation"
	ActivityStatusChanged    = "status_changed"
	ActivityResolved         = "resolved"
)
