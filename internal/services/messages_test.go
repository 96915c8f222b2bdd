package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/workflow"
)

func TestUserMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"nil", nil, nil},
		{
			"rejected transition",
			&workflow.RejectedTransition{From: models.StatusPending, Action: workflow.ActionReject},
			[]string{"A claim in status PENDIENTE cannot be rejected."},
		},
		{
			"local validation",
			&workflow.InvalidRequest{Fields: map[string][]string{
				"reject_reason": {"This field is required."},
			}},
			[]string{"reject_reason: This field is required."},
		},
		{
			"one message per field error",
			errors.Wrap(&apiclient.APIError{StatusCode: 400, Fields: map[string][]apiclient.FieldError{
				"discard_doc":      {{Message: "Required."}, {Message: "Too long."}},
				"new_claim_number": {{Message: "Taken.", Code: "unique"}},
			}}, "failed to approve claim 1"),
			[]string{"discard_doc: Required.", "discard_doc: Too long.", "new_claim_number: Taken."},
		},
		{"server error", &apiclient.APIError{StatusCode: http.StatusInternalServerError}, []string{MessageServerError}},
		{"unauthorized", &apiclient.APIError{StatusCode: http.StatusUnauthorized}, []string{MessageSession}},
		{"detail", &apiclient.APIError{StatusCode: http.StatusNotFound, Detail: "Not found."}, []string{"Not found."}},
		{"bare status", &apiclient.APIError{StatusCode: http.StatusConflict}, []string{MessageGeneric}},
		{"network", errors.Wrap(apiclient.ErrNetwork, "GET /claim/"), []string{MessageNetwork}},
		{"no session", apiclient.ErrUnauthorized, []string{MessageSession}},
		{"timeout", errors.Wrap(context.DeadlineExceeded, "slow"), []string{MessageTimeout}},
		{"unknown", errors.New("weird"), []string{MessageGeneric}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessages(tt.err))
		})
	}
}
