package handlers

import (
	"fmt"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/internal/api/middleware"
	"github.com/agchavez/interlace/internal/apiclient"
	"github.com/agchavez/interlace/internal/models"
	"github.com/agchavez/interlace/internal/services"
	"github.com/agchavez/interlace/internal/workflow"
)

// ClaimHandler handles claim queries and workflow actions
type ClaimHandler struct {
	claims *services.ClaimService
}

// NewClaimHandler creates a new claim handler
func NewClaimHandler(claims *services.ClaimService) *ClaimHandler {
	return &ClaimHandler{claims: claims}
}

// ActionResponse is returned after an accepted workflow action
type ActionResponse struct {
	Claim   *models.Claim `json:"claim"`
	Message string        `json:"message"`
	Form    workflow.Form `json:"form"`
}

// claimFilter reads the list query parameters
func claimFilter(c *gin.Context) (models.ClaimFilter, bool) {
	tracker, ok := queryInt(c, "tracker")
	if !ok {
		return models.ClaimFilter{}, false
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return models.ClaimFilter{}, false
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		return models.ClaimFilter{}, false
	}

	return models.ClaimFilter{
		Search:            c.Query("search"),
		Status:            models.ClaimStatus(c.Query("status")),
		ClaimType:         models.ClaimType(c.Query("claim_type")),
		Type:              models.ClaimKind(c.Query("type")),
		DistributorCenter: c.Query("distributor_center"),
		Tracker:           tracker,
		Limit:             limit,
		Offset:            offset,
	}, true
}

// HandleList returns a page of claims
func (h *ClaimHandler) HandleList(c *gin.Context) {
	filter, ok := claimFilter(c)
	if !ok {
		return
	}

	page, err := h.claims.List(c.Request.Context(), middleware.TokenSource(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleGet returns one claim
func (h *ClaimHandler) HandleGet(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	claim, err := h.claims.Get(c.Request.Context(), middleware.TokenSource(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, claim)
}

// HandleCreate files a new claim from a JSON body
func (h *ClaimHandler) HandleCreate(c *gin.Context) {
	var in models.CreateClaimInput
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Debug().Err(err).Msg("Invalid claim body")
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	claim, err := h.claims.Create(c.Request.Context(), middleware.TokenSource(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, claim)
}

// HandleForm returns the edit form state of a claim
func (h *ClaimHandler) HandleForm(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	form, err := h.claims.Form(c.Request.Context(), middleware.TokenSource(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// HandleTake moves a pending claim into review
func (h *ClaimHandler) HandleTake(c *gin.Context) {
	h.act(c, workflow.ActionTake, func(ts apiclient.TokenSource, claim *models.Claim) error {
		req, err := takeRequest(c, ts)
		if err != nil {
			return err
		}
		return h.claims.Take(c.Request.Context(), ts, claim, req)
	})
}

// HandleApprove approves a claim under review
func (h *ClaimHandler) HandleApprove(c *gin.Context) {
	h.act(c, workflow.ActionApprove, func(ts apiclient.TokenSource, claim *models.Claim) error {
		req, err := approveRequest(c, ts)
		if err != nil {
			return err
		}
		return h.claims.Approve(c.Request.Context(), ts, claim, req)
	})
}

// HandleReject rejects a claim under review
func (h *ClaimHandler) HandleReject(c *gin.Context) {
	h.act(c, workflow.ActionReject, func(ts apiclient.TokenSource, claim *models.Claim) error {
		req, err := rejectRequest(c, ts)
		if err != nil {
			return err
		}
		return h.claims.Reject(c.Request.Context(), ts, claim, req)
	})
}

// HandleEdit changes fields and attachments of a claim
func (h *ClaimHandler) HandleEdit(c *gin.Context) {
	h.act(c, workflow.ActionEdit, func(ts apiclient.TokenSource, claim *models.Claim) error {
		req, err := editRequest(c)
		if err != nil {
			return err
		}
		return h.claims.Edit(c.Request.Context(), ts, claim, req)
	})
}

// act loads the current claim bypassing the cache, so the action is
// guarded against the status the claims API holds right now.
func (h *ClaimHandler) act(c *gin.Context, action workflow.Action, run func(apiclient.TokenSource, *models.Claim) error) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ts := middleware.TokenSource(c)

	claim, err := h.claims.Fresh(c.Request.Context(), ts, id)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := run(ts, claim); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ActionResponse{
		Claim:   claim,
		Message: services.SuccessMessage(action, claim.ID),
		Form:    workflow.FormFor(claim),
	})
}

// HandleDownload streams a stored attachment
func (h *ClaimHandler) HandleDownload(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	filename := c.Query("filename")
	if filename == "" {
		badRequest(c, "filename is required")
		return
	}

	data, contentType, err := h.claims.Download(c.Request.Context(), middleware.TokenSource(c), id, filename)
	if err != nil {
		respondError(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(filename)))
	c.Data(http.StatusOK, contentType, data)
}

// RegisterRoutes registers the handler's routes
func (h *ClaimHandler) RegisterRoutes(rg *gin.RouterGroup) {
	claims := rg.Group("/claims")
	{
		claims.GET("", h.HandleList)
		claims.POST("", h.HandleCreate)
		claims.GET("/:id", h.HandleGet)
		claims.PATCH("/:id", h.HandleEdit)
		claims.GET("/:id/form", h.HandleForm)
		claims.GET("/:id/files", h.HandleDownload)
		claims.POST("/:id/take", h.HandleTake)
		claims.POST("/:id/approve", h.HandleApprove)
		claims.POST("/:id/reject", h.HandleReject)
	}
}
