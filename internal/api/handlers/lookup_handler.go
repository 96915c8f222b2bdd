package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agchavez/interlace/internal/api/middleware"
	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
)

// LookupAPI serves the read only views around claims
type LookupAPI interface {
	Dashboard(ctx context.Context, ts apiclient.TokenSource, f models.DashboardFilter) (*models.Dashboard, error)
	ListTrackers(ctx context.Context, ts apiclient.TokenSource, search string, limit, offset int) (*models.Page[models.Tracker], error)
	GetTracker(ctx context.Context, ts apiclient.TokenSource, id int) (*models.Tracker, error)
}

// LookupHandler serves the dashboard and tracker lookups
type LookupHandler struct {
	api LookupAPI
}

// NewLookupHandler creates a new lookup handler
func NewLookupHandler(api LookupAPI) *LookupHandler {
	return &LookupHandler{api: api}
}

// HandleDashboard returns the claim counters
func (h *LookupHandler) HandleDashboard(c *gin.Context) {
	f := models.DashboardFilter{
		DateFrom:          c.Query("date_from"),
		DateTo:            c.Query("date_to"),
		DistributorCenter: c.Query("distributor_center"),
	}
	dash, err := h.api.Dashboard(c.Request.Context(), middleware.TokenSource(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}

// HandleTrackers searches trackers to attach claims to
func (h *LookupHandler) HandleTrackers(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return
	}

	page, err := h.api.ListTrackers(c.Request.Context(), middleware.TokenSource(c), c.Query("search"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleTracker returns one tracker
func (h *LookupHandler) HandleTracker(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tracker, err := h.api.GetTracker(c.Request.Context(), middleware.TokenSource(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracker)
}

// RegisterRoutes registers the handler's routes
func (h *LookupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.HandleDashboard)
	rg.GET("/trackers", h.HandleTrackers)
	rg.GET("/trackers/:id", h.HandleTracker)
}
