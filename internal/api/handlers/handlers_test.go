package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/workflow"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rejected transition", &workflow.RejectedTransition{From: models.StatusApproved, Action: workflow.ActionTake}, http.StatusConflict},
		{"invalid request", &workflow.InvalidRequest{Fields: map[string][]string{"x": {"bad"}}}, http.StatusBadRequest},
		{"upstream 404", errors.Wrap(&apiclient.APIError{StatusCode: http.StatusNotFound}, "get"), http.StatusNotFound},
		{"upstream 503", &apiclient.APIError{StatusCode: http.StatusServiceUnavailable}, http.StatusBadGateway},
		{"no session", apiclient.ErrUnauthorized, http.StatusUnauthorized},
		{"network", errors.Wrap(apiclient.ErrNetwork, "dial"), http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"upload", &uploadError{status: http.StatusRequestEntityTooLarge, msg: "too big"}, http.StatusRequestEntityTooLarge},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3, 4", "", "9"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 9}, ids)

	_, err = parseIDs([]string{"3,x"})
	assert.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://console.local"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req), "same origin requests carry no Origin header")

	req.Header.Set("Origin", "http://console.local")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.local")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
