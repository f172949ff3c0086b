package middleware

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/service"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated *models.User.
const ContextUserKey = "currentUser"

type tokenVerifier interface {
	Verify(token string, class service.SecretClass) (*models.TokenClaims, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry, meta models.RequestMeta)
}

// Authenticator resolves access tokens to live, unblocked users.
type Authenticator struct {
	tokens tokenVerifier
	users  userLoader
	audit  auditRecorder
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens tokenVerifier, users userLoader, audit auditRecorder) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, audit: audit}
}

// Authenticate verifies token and loads its user. A failed verification
// whose subject names an existing user is audited as AUTH_FAILED.
func (a *Authenticator) Authenticate(ctx context.Context, token string, meta models.RequestMeta) (*models.User, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Not authorized, no token")
	}

	claims, err := a.tokens.Verify(token, service.SecretAccess)
	if err != nil {
		if id := unverifiedSubject(token); id != "" {
			if user, lookupErr := a.users.FindByID(ctx, id); lookupErr == nil {
				a.audit.Record(ctx, models.AuditEntry{
					Action:      models.AuditActionAuthFailed,
					Entity:      models.AuditEntityAuth,
					EntityID:    user.ID,
					PerformedBy: user.ID,
					Err:         err,
				}, meta)
			}
		}
		return nil, appErrors.Clone(appErrors.FromError(err), "Not authorized, token failed")
	}

	user, err := a.users.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Not authorized, user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.IsBlocked {
		return nil, appErrors.ErrAccountBlocked
	}
	return user, nil
}

// JWT protects routes by requiring a valid bearer access token.
func JWT(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.Authenticate(c.Request.Context(), BearerToken(c), Meta(c))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentUser returns the authenticated user, or nil on public routes.
func CurrentUser(c *gin.Context) *models.User {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// Meta captures the caller address and agent for sessions and audit entries.
func Meta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{
		IP:        service.ClientIP(c.Request.Header, c.Request.RemoteAddr),
		UserAgent: c.Request.UserAgent(),
	}
}

func unverifiedSubject(token string) string {
	var claims models.TokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return ""
	}
	return claims.ID
}
