package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

// ServerErrorAudit records SERVER_ERROR for 5xx responses of authenticated
// requests. response.Error attaches the cause to the gin context.
func ServerErrorAudit(audit auditRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 500 {
			return
		}
		user := CurrentUser(c)
		if user == nil {
			return
		}
		cause := c.Errors.Last()
		var err error = errors.New("internal server error")
		if cause != nil {
			err = cause.Err
		}
		audit.Record(c.Request.Context(), models.AuditEntry{
			Action:      models.AuditActionServerError,
			Entity:      models.AuditEntitySystem,
			EntityID:    c.Request.Method + " " + c.Request.URL.Path,
			PerformedBy: user.ID,
			Err:         err,
		}, Meta(c))
	}
}
