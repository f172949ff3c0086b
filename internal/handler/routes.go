package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/models"
)

type accessAuditor interface {
	Record(ctx context.Context, entry models.AuditEntry, meta models.RequestMeta)
}

// Routes bundles everything mounted under the API prefix. Realtime and the
// limiters are optional.
type Routes struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Incidents     *IncidentHandler
	Evidence      *EvidenceHandler
	Notifications *NotificationHandler
	Audit         *AuditHandler
	Realtime      *RealtimeHandler

	Authenticator *middleware.Authenticator
	Auditor       accessAuditor
	AuthLimiter   middleware.Limiter
	APILimiter    middleware.Limiter
	Logger        *zap.Logger
}

// Register mounts the API on group.
func (r Routes) Register(group *gin.RouterGroup) {
	if r.APILimiter != nil {
		group.Use(middleware.RateLimit(r.APILimiter, r.Logger))
	}

	elevated := middleware.RequireRoles(r.Auditor, models.RoleAdmin, models.RoleSuperAdmin)
	superOnly := middleware.RequireRoles(r.Auditor, models.RoleSuperAdmin)
	authn := middleware.JWT(r.Authenticator)

	auth := group.Group("/auth")
	{
		credentials := []gin.HandlerFunc{}
		if r.AuthLimiter != nil {
			credentials = append(credentials, middleware.RateLimit(r.AuthLimiter, r.Logger))
		}
		auth.POST("/register", append(credentials, r.Auth.Register)...)
		auth.POST("/login", append(credentials, r.Auth.Login)...)
		auth.POST("/refresh", r.Auth.Refresh)
		auth.POST("/logout", r.Auth.Logout)
	}

	group.GET("/evidence/:token", r.Evidence.Download)
	if r.Realtime != nil {
		group.GET("/ws", r.Realtime.Stream)
	}

	secured := group.Group("", authn)

	users := secured.Group("/users")
	{
		users.GET("/me", r.Users.Me)
		users.GET("/admins", elevated, r.Users.Admins)
		users.GET("", superOnly, r.Users.List)
		users.POST("", superOnly, r.Users.Create)
		users.PATCH("/:id", superOnly, r.Users.Update)
		users.DELETE("/:id", superOnly, r.Users.Delete)
	}

	incidents := secured.Group("/incidents")
	{
		incidents.GET("", r.Incidents.List)
		incidents.POST("", r.Incidents.Create)
		incidents.GET("/stats", elevated, r.Incidents.Stats)
		incidents.GET("/export/csv", elevated, r.Incidents.ExportCSV)
		incidents.GET("/export/pdf", elevated, r.Incidents.ExportPDF)
		incidents.PATCH("/bulk/resolve", elevated, r.Incidents.BulkResolve)
		incidents.GET("/:id", r.Incidents.Get)
		incidents.PATCH("/:id", r.Incidents.Update)
		incidents.DELETE("/:id", superOnly, r.Incidents.Delete)
		incidents.GET("/:id/evidence/:index", r.Evidence.Link)
	}

	notifications := secured.Group("/notifications")
	{
		notifications.GET("", r.Notifications.List)
		notifications.DELETE("", r.Notifications.DeleteAll)
		notifications.PATCH("/read-all", r.Notifications.MarkAllRead)
		notifications.PATCH("/:id/read", r.Notifications.MarkRead)
		notifications.DELETE("/:id", r.Notifications.Delete)
	}

	secured.GET("/logs", superOnly, r.Audit.List)
}
