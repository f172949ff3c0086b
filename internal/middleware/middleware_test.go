package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/service"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

const (
	activeID  = "0b6f3c1e-2a4d-4f5e-8a9b-1c2d3e4f5a61"
	blockedID = "0b6f3c1e-2a4d-4f5e-8a9b-1c2d3e4f5a62"
)

type userTable map[string]*models.User

func (u userTable) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

type auditLog struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (a *auditLog) Record(ctx context.Context, entry models.AuditEntry, meta models.RequestMeta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *auditLog) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type authFixture struct {
	router *gin.Engine
	tokens *service.TokenService
	audit  *auditLog
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(service.TokenConfig{AccessSecret: "access", RefreshSecret: "refresh", AccessExpiry: time.Minute})
	users := userTable{
		activeID:  {ID: activeID, Email: "a@example.com", Role: models.RoleUser},
		blockedID: {ID: blockedID, Email: "b@example.com", Role: models.RoleUser, IsBlocked: true},
	}
	audit := &auditLog{}
	router := gin.New()
	router.Use(ServerErrorAudit(audit))
	protected := router.Group("/", JWT(NewAuthenticator(tokens, users, audit)))
	protected.GET("/me", func(c *gin.Context) {
		response.JSON(c, http.StatusOK, gin.H{"id": CurrentUser(c).ID})
	})
	protected.GET("/admin", RequireRoles(audit, models.RoleAdmin, models.RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	protected.GET("/boom", func(c *gin.Context) {
		response.Error(c, errors.New("db down"))
	})
	return &authFixture{router: router, tokens: tokens, audit: audit}
}

func (f *authFixture) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingToken(t *testing.T) {
	f := newAuthFixture(t)
	rec := f.get("/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not authorized, no token")
}

func TestJWTAcceptsValidToken(t *testing.T) {
	f := newAuthFixture(t)
	token, err := f.tokens.IssueAccessToken(activeID, models.RoleUser)
	require.NoError(t, err)

	rec := f.get("/me", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), activeID)
}

func TestJWTAuditsForgedTokenForKnownUser(t *testing.T) {
	f := newAuthFixture(t)
	forged := service.NewTokenService(service.TokenConfig{AccessSecret: "wrong", RefreshSecret: "x", AccessExpiry: time.Minute})
	token, err := forged.IssueAccessToken(activeID, models.RoleSuperAdmin)
	require.NoError(t, err)

	rec := f.get("/me", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not authorized, token failed")
	assert.Equal(t, []string{models.AuditActionAuthFailed}, f.audit.actions())
}

func TestJWTRejectsRefreshTokenAsAccess(t *testing.T) {
	f := newAuthFixture(t)
	token, _, err := f.tokens.IssueRefreshToken(activeID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.get("/me", token).Code)
}

func TestJWTRejectsBlockedAndUnknownUsers(t *testing.T) {
	f := newAuthFixture(t)
	blocked, _ := f.tokens.IssueAccessToken(blockedID, models.RoleUser)
	assert.Equal(t, http.StatusForbidden, f.get("/me", blocked).Code)

	ghost, _ := f.tokens.IssueAccessToken("0b6f3c1e-2a4d-4f5e-8a9b-1c2d3e4f5a69", models.RoleUser)
	rec := f.get("/me", ghost)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not authorized, user not found")
}

func TestRequireRolesDeniesAndAudits(t *testing.T) {
	f := newAuthFixture(t)
	token, _ := f.tokens.IssueAccessToken(activeID, models.RoleUser)

	rec := f.get("/admin", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "User role USER is not authorized to access this route")
	assert.Equal(t, []string{models.AuditActionUnauthorized}, f.audit.actions())
}

func TestServerErrorAudit(t *testing.T) {
	f := newAuthFixture(t)
	token, _ := f.tokens.IssueAccessToken(activeID, models.RoleUser)

	rec := f.get("/boom", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, []string{models.AuditActionServerError}, f.audit.actions())
	assert.EqualError(t, f.audit.entries[0].Err, "db down")
}

func limitedRouter(limiter Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/auth/login", RateLimit(limiter, nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func hit(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMemoryLimiterPerIP(t *testing.T) {
	router := limitedRouter(NewMemoryLimiter(2))

	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.1").Code)
	rec := hit(router, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, hit(router, "10.0.0.2").Code)
}

func TestRedisLimiterSharedBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first := limitedRouter(NewRedisLimiter(client, "rl:auth:", 1))
	second := limitedRouter(NewRedisLimiter(client, "rl:auth:", 1))

	assert.Equal(t, http.StatusOK, hit(first, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(second, "10.0.0.1").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	assert.Equal(t, http.StatusOK, hit(limitedRouter(brokenLimiter{}), "10.0.0.1").Code)
}

func TestSetCacheStatusHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Timing())
	router.GET("/hit", func(c *gin.Context) { SetCacheStatus(c, true); c.Status(http.StatusOK) })
	router.GET("/miss", func(c *gin.Context) { SetCacheStatus(c, false); c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hit", nil))
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.NotEmpty(t, w.Header().Get("X-Response-Time"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/miss", nil))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
}
