package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/service"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

// AuditHandler serves the audit log viewer.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit logs
// @Tags Audit
// @Produce json
// @Param entity query string false "Entity"
// @Param action query string false "Action"
// @Param performedBy query string false "Actor ID"
// @Param userRole query string false "Actor role"
// @Param from query string false "Created at or after (YYYY-MM-DD or RFC3339)"
// @Param to query string false "Created at or before (YYYY-MM-DD or RFC3339)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {array} models.AuditLog
// @Security BearerAuth
// @Router /logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	if !bindQuery(c, &filter) {
		return
	}
	logs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	response.Paginated(c, logs, pagination)
}
