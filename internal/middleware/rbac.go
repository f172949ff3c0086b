package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

// RequireRoles admits users whose role is one of roles. Every denial is
// audited as UNAUTHORIZED_ACCESS.
func RequireRoles(audit auditRecorder, roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "Not authorized, no token"))
			c.Abort()
			return
		}
		if _, ok := allowed[user.Role]; ok {
			c.Next()
			return
		}

		err := appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("User role %s is not authorized to access this route", user.Role))
		audit.Record(c.Request.Context(), models.AuditEntry{
			Action:      models.AuditActionUnauthorized,
			Entity:      models.AuditEntitySystem,
			EntityID:    c.Request.Method + " " + c.FullPath(),
			PerformedBy: user.ID,
			Err:         err,
		}, Meta(c))
		response.Error(c, err)
		c.Abort()
	}
}
