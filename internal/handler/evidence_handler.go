package handler

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/service"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

// EvidenceHandler issues and serves signed evidence downloads.
type EvidenceHandler struct {
	service *service.EvidenceService
	baseURL string
}

// NewEvidenceHandler constructs an EvidenceHandler. baseURL is the public
// prefix download links are built on, e.g. "/api/v1/evidence".
func NewEvidenceHandler(svc *service.EvidenceService, baseURL string) *EvidenceHandler {
	return &EvidenceHandler{service: svc, baseURL: baseURL}
}

// Link godoc
// @Summary Signed evidence link
// @Tags Evidence
// @Produce json
// @Param id path string true "Incident ID"
// @Param index path int true "Attachment index"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /incidents/{id}/evidence/{index} [get]
func (h *EvidenceHandler) Link(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "Evidence not found"))
		return
	}
	token, expires, err := h.service.SignURL(c.Request.Context(), c.Param("id"), index, actor, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"url": h.baseURL + "/" + token, "expiresAt": expires.UTC()})
}

// Download godoc
// @Summary Download evidence
// @Tags Evidence
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /evidence/{token} [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	file, name, err := h.service.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
		"Content-Disposition": "inline; filename=\"" + name + "\"",
		"Cache-Control":       "private, no-store",
	})
}
