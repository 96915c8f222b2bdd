package services

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/pkg/errors"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/workflow"
)

// Operator facing fallbacks
const (
	MessageGeneric     = "Something went wrong. Please try again."
	MessageServerError = "The claims service failed to process the request. Please try again later."
	MessageNetwork     = "Could not reach the claims service. Check your connection and try again."
	MessageSession     = "Your session has expired. Please sign in again."
	MessageTimeout     = "The request took too long. Please try again."
)

// UserMessages turns an error into the notifications shown to the operator:
// one per field error when the claims API reported them, a single generic
// message otherwise.
func UserMessages(err error) []string {
	if err == nil {
		return nil
	}

	var rejected *workflow.RejectedTransition
	if errors.As(err, &rejected) {
		return []string{fmt.Sprintf("A claim in status %s cannot be %s.", rejected.From, pastTense(rejected.Action))}
	}

	var invalid *workflow.InvalidRequest
	if errors.As(err, &invalid) {
		return fieldMessages(invalid.Fields)
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Structured():
			fields := make(map[string][]string, len(apiErr.Fields))
			for name, list := range apiErr.Fields {
				for _, fe := range list {
					fields[name] = append(fields[name], fe.Message)
				}
			}
			return fieldMessages(fields)
		case apiErr.StatusCode == http.StatusUnauthorized:
			return []string{MessageSession}
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return []string{MessageServerError}
		case apiErr.Detail != "":
			return []string{apiErr.Detail}
		}
		return []string{MessageGeneric}
	}

	switch {
	case errors.Is(err, apiclient.ErrNetwork):
		return []string{MessageNetwork}
	case errors.Is(err, apiclient.ErrUnauthorized):
		return []string{MessageSession}
	case errors.Is(err, context.DeadlineExceeded):
		return []string{MessageTimeout}
	}
	return []string{MessageGeneric}
}

// SuccessMessage is shown after an accepted workflow action
func SuccessMessage(action workflow.Action, claimID int) string {
	return fmt.Sprintf("Claim %d %s.", claimID, pastTense(action))
}

func fieldMessages(fields map[string][]string) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		for _, msg := range fields[name] {
			if name == "non_field_errors" || name == "detail" {
				out = append(out, msg)
				continue
			}
			out = append(out, fmt.Sprintf("%s: %s", name, msg))
		}
	}
	if len(out) == 0 {
		return []string{MessageGeneric}
	}
	return out
}

func pastTense(a workflow.Action) string {
	switch a {
	case workflow.ActionTake:
		return "taken into review"
	case workflow.ActionApprove:
		return "approved"
	case workflow.ActionReject:
		return "rejected"
	case workflow.ActionEdit:
		return "updated"
	}
	return string(a)
}
