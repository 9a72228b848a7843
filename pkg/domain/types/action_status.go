package types

import "fmt"

// ActionStatus represents where an action is in its approval lifecycle
type ActionStatus string

const (
	ActionStatusPending  ActionStatus = "pending"
	ActionStatusApproved ActionStatus = "approved"
	ActionStatusRejected ActionStatus = "rejected"
	ActionStatusExecuted ActionStatus = "executed"
	ActionStatusFailed   ActionStatus = "failed"
)

// actionTransitions is the complete status graph. Any edge not listed here is illegal.
var actionTransitions = map[ActionStatus][]ActionStatus{
	ActionStatusPending:  {ActionStatusApproved, ActionStatusRejected},
	ActionStatusApproved: {ActionStatusExecuted, ActionStatusFailed},
}

// AllActionStatuses returns all valid action statuses
func AllActionStatuses() []ActionStatus {
	return []ActionStatus{
		ActionStatusPending,
		ActionStatusApproved,
		ActionStatusRejected,
		ActionStatusExecuted,
		ActionStatusFailed,
	}
}

// IsValid checks if the action status is valid
func (s ActionStatus) IsValid() bool {
	switch s {
	case ActionStatusPending,
		ActionStatusApproved,
		ActionStatusRejected,
		ActionStatusExecuted,
		ActionStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	for _, allowed := range actionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s ActionStatus) IsTerminal() bool {
	return len(actionTransitions[s]) == 0
}

// IsCleanable reports whether cleanup may remove an action in this status.
// Failed actions are kept so that the failure stays visible until resubmitted.
func (s ActionStatus) IsCleanable() bool {
	return s == ActionStatusExecuted || s == ActionStatusRejected
}

// String returns the string representation of the action status
func (s ActionStatus) String() string {
	return string(s)
}

// Emoji returns an emoji for status display in Slack messages
func (s ActionStatus) Emoji() string {
	switch s {
	case ActionStatusPending:
		return ":hourglass_flowing_sand:"
	case ActionStatusApproved:
		return ":white_check_mark:"
	case ActionStatusRejected:
		return ":no_entry_sign:"
	case ActionStatusExecuted:
		return ":rocket:"
	case ActionStatusFailed:
		return ":x:"
	default:
		return ""
	}
}

// ParseActionStatus parses a string into an ActionStatus
func ParseActionStatus(s string) (ActionStatus, error) {
	status := ActionStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid action status: %s", s)
	}
	return status, nil
}
