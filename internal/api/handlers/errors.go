package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/services"
	"github.com/agchavez/interlace/internal/workflow"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error         string   `json:"error"`
	Notifications []string `json:"notifications"`
	Status        string   `json:"status,omitempty"`
	Action        string   `json:"action,omitempty"`
}

// statusFor maps an error to the HTTP status returned to the browser
func statusFor(err error) int {
	var (
		rejected *workflow.RejectedTransition
		invalid  *workflow.InvalidRequest
		apiErr   *apiclient.APIError
		upload   *uploadError
	)
	switch {
	case errors.As(err, &upload):
		return upload.status
	case errors.As(err, &rejected):
		return http.StatusConflict
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= http.StatusInternalServerError {
			return http.StatusBadGateway
		}
		return apiErr.StatusCode
	case errors.Is(err, apiclient.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apiclient.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError writes err with the operator facing messages
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error:         err.Error(),
		Notifications: services.UserMessages(err),
	}

	var rejected *workflow.RejectedTransition
	if errors.As(err, &rejected) {
		resp.Status = string(rejected.From)
		resp.Action = string(rejected.Action)
	}
	var upload *uploadError
	if errors.As(err, &upload) {
		resp.Notifications = []string{upload.msg}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Request rejected")
	}
	c.AbortWithStatusJSON(status, resp)
}

// badRequest rejects input the handler could not parse
func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:         msg,
		Notifications: []string{msg},
	})
}

// paramID parses a positive integer path parameter
func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return n, true
}
