// Package workflow holds the claim status state machine and the requests
// that drive it. Everything here is pure: callers own the network calls.
package workflow

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/agchavez/interlace/internal/models"
)

// Action is an operator intent applied to a claim
type Action string

// Workflow actions
const (
	ActionTake    Action = "take"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionEdit    Action = "edit"
)

// Actions lists every action in the order the UI offers them
var Actions = []Action{ActionTake, ActionApprove, ActionReject, ActionEdit}

// ErrRejectedTransition matches any *RejectedTransition with errors.Is
var ErrRejectedTransition = errors.New("rejected transition")

// RejectedTransition is returned when an action is not allowed from the
// claim's current status.
type RejectedTransition struct {
	From   models.ClaimStatus
	Action Action
}

func (e *RejectedTransition) Error() string {
	return fmt.Sprintf("cannot %s a claim in status %s", e.Action, e.From)
}

// Is lets errors.Is(err, ErrRejectedTransition) match
func (e *RejectedTransition) Is(target error) bool {
	return target == ErrRejectedTransition
}

// Transition returns the status a claim moves to when action is applied from
// current. Edit keeps the status.
func Transition(current models.ClaimStatus, action Action) (models.ClaimStatus, error) {
	reject := &RejectedTransition{From: current, Action: action}

	switch current {
	case models.StatusPending:
		switch action {
		case ActionTake:
			return models.StatusInReview, nil
		case ActionEdit:
			return current, nil
		}
	case models.StatusInReview:
		switch action {
		case ActionApprove:
			return models.StatusApproved, nil
		case ActionReject:
			return models.StatusRejected, nil
		case ActionEdit:
			return current, nil
		}
	case models.StatusApproved, models.StatusRejected:
		// terminal
	}

	return current, reject
}

// Allowed reports whether action can be applied from status
func Allowed(status models.ClaimStatus, action Action) bool {
	_, err := Transition(status, action)
	return err == nil
}

// AvailableActions lists the actions allowed from status
func AvailableActions(status models.ClaimStatus) []Action {
	var out []Action
	for _, a := range Actions {
		if Allowed(status, a) {
			out = append(out, a)
		}
	}
	return out
}

// IsTerminal reports whether no further transitions exist from status
func IsTerminal(status models.ClaimStatus) bool {
	return status == models.StatusApproved || status == models.StatusRejected
}

// UploadsEnabled reports whether the edit form may offer file uploads
func UploadsEnabled(status models.ClaimStatus) bool {
	return Allowed(status, ActionEdit)
}

// ParseAction maps a route or flag value to an Action
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", errors.Errorf("unknown action %q", s)
}
