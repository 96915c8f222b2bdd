package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agchavez/interlace/internal/api/middleware"
	"github.com/agchavez/interlace/internal/export"
	"github.com/agchavez/interlace/internal/services"
)

// ExportHandler serves claim list and report downloads
type ExportHandler struct {
	exports *services.ExportService
}

// NewExportHandler creates a new export handler
func NewExportHandler(exports *services.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// HandleClaims writes the filtered claim list as CSV or XLSX
func (h *ExportHandler) HandleClaims(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	filter, ok := claimFilter(c)
	if !ok {
		return
	}

	// Buffer so a failure halfway still gets a JSON error response.
	var buf bytes.Buffer
	rows, err := h.exports.Claims(c.Request.Context(), middleware.TokenSource(c), filter, format, &buf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "reclamos."+format.Extension()))
	c.Header("X-Total-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// HandleReport writes the PDF report of a claim. photos=false leaves the
// photos out.
func (h *ExportHandler) HandleReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	opts := export.ReportOptions{SkipPhotos: c.Query("photos") == "false"}

	var buf bytes.Buffer
	if err := h.exports.Report(c.Request.Context(), middleware.TokenSource(c), id, &buf, opts); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("reclamo-%d.pdf", id)))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// RegisterRoutes registers the handler's routes
func (h *ExportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	exports := rg.Group("/exports")
	{
		exports.GET("/claims", h.HandleClaims)
		exports.GET("/claims/:id/report", h.HandleReport)
	}
}
