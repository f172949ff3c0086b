package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

type incidentService interface {
	Create(ctx context.Context, req models.CreateIncidentRequest, evidence []string, actor *models.User, meta models.RequestMeta) (*models.Incident, error)
	Get(ctx context.Context, id string, actor *models.User, meta models.RequestMeta) (*models.Incident, error)
	List(ctx context.Context, filter models.IncidentFilter, actor *models.User) ([]models.Incident, models.Pagination, error)
	Update(ctx context.Context, id string, patch models.IncidentPatch, actor *models.User, meta models.RequestMeta) (*models.Incident, error)
	BulkResolve(ctx context.Context, req models.BulkResolveRequest, actor *models.User, meta models.RequestMeta) (*models.BulkResult, error)
	HardDelete(ctx context.Context, id string, actor *models.User, meta models.RequestMeta) error
	Stats(ctx context.Context) (*models.IncidentStats, bool, error)
	ExportCSV(ctx context.Context, filter models.IncidentFilter, actor *models.User) ([]byte, error)
	ExportPDF(ctx context.Context, filter models.IncidentFilter, actor *models.User) ([]byte, error)
}

type evidenceUploader interface {
	Store(files []*multipart.FileHeader) ([]string, error)
	Remove(paths []string)
}

// IncidentHandler exposes incident reporting and triage endpoints.
type IncidentHandler struct {
	incidents incidentService
	evidence  evidenceUploader
}

// NewIncidentHandler constructs an IncidentHandler.
func NewIncidentHandler(incidents incidentService, evidence evidenceUploader) *IncidentHandler {
	return &IncidentHandler{incidents: incidents, evidence: evidence}
}

type incidentForm struct {
	Title        string `form:"title" json:"title"`
	Description  string `form:"description" json:"description"`
	Category     string `form:"category" json:"category"`
	Priority     string `form:"priority" json:"priority"`
	IncidentDate string `form:"incidentDate" json:"incidentDate"`
}

func (f incidentForm) request() models.CreateIncidentRequest {
	req := models.CreateIncidentRequest{
		Title:       f.Title,
		Description: f.Description,
		Category:    models.IncidentCategory(f.Category),
		Priority:    models.IncidentPriority(f.Priority),
	}
	if ts, ok := models.ParseLooseTime(f.IncidentDate); ok {
		req.IncidentDate = ts
	}
	return req
}

// Create godoc
// @Summary Report incident
// @Tags Incidents
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param category formData string true "Category"
// @Param priority formData string true "Priority"
// @Param incidentDate formData string true "Incident date"
// @Param evidence formData file false "Evidence (up to 5 files)"
// @Success 201 {object} models.Incident
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /incidents [post]
func (h *IncidentHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var form incidentForm
	if !bindBody(c, &form) {
		return
	}

	var files []*multipart.FileHeader
	if mf, err := c.MultipartForm(); err == nil && mf != nil {
		files = mf.File["evidence"]
	}
	stored, err := h.evidence.Store(files)
	if err != nil {
		response.Error(c, err)
		return
	}

	incident, err := h.incidents.Create(c.Request.Context(), form.request(), stored, actor, middleware.Meta(c))
	if err != nil {
		h.evidence.Remove(stored)
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"incident": incident})
}

// List godoc
// @Summary List incidents
// @Description USER callers only see their own incidents
// @Tags Incidents
// @Produce json
// @Param status query string false "Status"
// @Param category query string false "Category"
// @Param priority query string false "Priority"
// @Param assignedTo query string false "Assignee ID"
// @Param createdBy query string false "Reporter ID (elevated roles only)"
// @Param search query string false "Title or description"
// @Param from query string false "Created at or after (YYYY-MM-DD or RFC3339)"
// @Param to query string false "Created at or before (YYYY-MM-DD or RFC3339)"
// @Param sort query string false "Sort field, '-' prefix for descending"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {array} models.Incident
// @Security BearerAuth
// @Router /incidents [get]
func (h *IncidentHandler) List(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var filter models.IncidentFilter
	if !bindQuery(c, &filter) {
		return
	}
	items, pagination, err := h.incidents.List(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, items, pagination)
}

// Get godoc
// @Summary Get incident
// @Tags Incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} models.Incident
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /incidents/{id} [get]
func (h *IncidentHandler) Get(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	incident, err := h.incidents.Get(c.Request.Context(), c.Param("id"), actor, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"incident": incident})
}

// Update godoc
// @Summary Update incident
// @Description Fields outside the caller's allow-list are ignored
// @Tags Incidents
// @Accept json
// @Produce json
// @Param id path string true "Incident ID"
// @Param payload body models.IncidentPatch true "Changes"
// @Success 200 {object} models.Incident
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /incidents/{id} [patch]
func (h *IncidentHandler) Update(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var patch models.IncidentPatch
	if !bindJSON(c, &patch, "invalid incident payload") {
		return
	}
	incident, err := h.incidents.Update(c.Request.Context(), c.Param("id"), patch, actor, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"incident": incident})
}

// BulkResolve godoc
// @Summary Resolve incidents in bulk
// @Tags Incidents
// @Accept json
// @Produce json
// @Param payload body models.BulkResolveRequest true "Incident IDs"
// @Success 200 {object} models.BulkResult
// @Security BearerAuth
// @Router /incidents/bulk/resolve [patch]
func (h *IncidentHandler) BulkResolve(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req models.BulkResolveRequest
	if !bindJSON(c, &req, "incidentIds array is required") {
		return
	}
	result, err := h.incidents.BulkResolve(c.Request.Context(), req, actor, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d incident(s) resolved", result.Modified),
		"matched":  result.Matched,
		"modified": result.Modified,
	})
}

// Delete godoc
// @Summary Delete incident permanently
// @Tags Incidents
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /incidents/{id} [delete]
func (h *IncidentHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	if err := h.incidents.HardDelete(c.Request.Context(), c.Param("id"), actor, middleware.Meta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Incident permanently deleted"})
}

// Stats godoc
// @Summary Dashboard statistics
// @Tags Incidents
// @Produce json
// @Success 200 {object} models.IncidentStats
// @Security BearerAuth
// @Router /incidents/stats [get]
func (h *IncidentHandler) Stats(c *gin.Context) {
	stats, cached, err := h.incidents.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheStatus(c, cached)
	response.JSON(c, http.StatusOK, gin.H{"stats": stats})
}

// ExportCSV godoc
// @Summary Export incidents as CSV
// @Tags Incidents
// @Produce text/csv
// @Success 200 {file} file
// @Security BearerAuth
// @Router /incidents/export/csv [get]
func (h *IncidentHandler) ExportCSV(c *gin.Context) {
	h.export(c, "csv", "text/csv; charset=utf-8", h.incidents.ExportCSV)
}

// ExportPDF godoc
// @Summary Export incidents as PDF
// @Tags Incidents
// @Produce application/pdf
// @Success 200 {file} file
// @Security BearerAuth
// @Router /incidents/export/pdf [get]
func (h *IncidentHandler) ExportPDF(c *gin.Context) {
	h.export(c, "pdf", "application/pdf", h.incidents.ExportPDF)
}

func (h *IncidentHandler) export(c *gin.Context, ext, contentType string, render func(context.Context, models.IncidentFilter, *models.User) ([]byte, error)) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var filter models.IncidentFilter
	if !bindQuery(c, &filter) {
		return
	}
	out, err := render(c.Request.Context(), filter, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	name := fmt.Sprintf("incidents-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, out)
}

func bindBody(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBind(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident payload"))
		return false
	}
	return true
}
