package domain

import (
	"fmt"
	"strings"
)

type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "pending"
	StatusProcessed InvoiceStatus = "processed"
	StatusApproved  InvoiceStatus = "approved"
	StatusPaid      InvoiceStatus = "paid"
	StatusRejected  InvoiceStatus = "rejected"
)

var AllStatuses = []InvoiceStatus{StatusPending, StatusProcessed, StatusApproved, StatusPaid, StatusRejected}

// InFlightStatuses are the statuses shown in the processing queue.
var InFlightStatuses = []InvoiceStatus{StatusPending, StatusProcessed}

func (s InvoiceStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s InvoiceStatus) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

func ParseStatus(raw string) (InvoiceStatus, error) {
	status := InvoiceStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", WrapError(ErrInvalidInput, "parse status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionMarkPaid Action = "mark_paid"
)

func (a Action) Label() string {
	switch a {
	case ActionApprove:
		return "Approve"
	case ActionReject:
		return "Reject"
	case ActionMarkPaid:
		return "Mark as Paid"
	default:
		return string(a)
	}
}

func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionReject, ActionMarkPaid:
		return a, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse action", fmt.Errorf("unknown action %q", raw))
	}
}

type transition struct {
	action Action
	to     InvoiceStatus
}

// Order matters: it is the order actions are offered in.
var transitions = map[InvoiceStatus][]transition{
	StatusPending:   {{ActionApprove, StatusApproved}, {ActionReject, StatusRejected}},
	StatusProcessed: {{ActionApprove, StatusApproved}, {ActionReject, StatusRejected}},
	StatusApproved:  {{ActionMarkPaid, StatusPaid}},
}

func AvailableActions(s InvoiceStatus) []Action {
	out := make([]Action, 0, len(transitions[s]))
	for _, t := range transitions[s] {
		out = append(out, t.action)
	}
	return out
}

func (s InvoiceStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Apply returns the status reached by performing action from s, or an
// ErrIllegalTransition error when the action is not offered for s.
func (s InvoiceStatus) Apply(action Action) (InvoiceStatus, error) {
	for _, t := range transitions[s] {
		if t.action == action {
			return t.to, nil
		}
	}
	return s, WrapError(
		ErrIllegalTransition,
		"apply action",
		fmt.Errorf("%s is not allowed from status %s", action, s),
	)
}

func CanTransition(from, to InvoiceStatus) bool {
	for _, t := range transitions[from] {
		if t.to == to {
			return true
		}
	}
	return false
}
