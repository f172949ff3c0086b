package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/service"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

// RefreshCookieName names the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

// CookieSettings scopes the refresh cookie.
type CookieSettings struct {
	Path   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

// AuthHandler wires HTTP endpoints to the auth service.
type AuthHandler struct {
	service *service.AuthService
	cookie  CookieSettings
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc *service.AuthService, cookie CookieSettings) *AuthHandler {
	return &AuthHandler{service: svc, cookie: cookie}
}

// Register godoc
// @Summary Register account
// @Description Create a USER account and start a session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Registration payload"
// @Success 201 {object} models.AuthResult
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req, "name, email and password are required") {
		return
	}
	res, err := h.service.Register(c.Request.Context(), req, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.setCookie(c, res.RefreshToken)
	response.Created(c, gin.H{"user": res.User, "accessToken": res.AccessToken})
}

// Login godoc
// @Summary Authenticate user
// @Description Authenticate user by email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} models.AuthResult
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req, "email and password are required") {
		return
	}
	res, err := h.service.Login(c.Request.Context(), req, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.setCookie(c, res.RefreshToken)
	response.JSON(c, http.StatusOK, gin.H{"user": res.User, "accessToken": res.AccessToken})
}

// Refresh godoc
// @Summary Refresh access token
// @Description Rotate the refresh cookie and mint a new access token
// @Tags Authentication
// @Produce json
// @Success 200 {object} models.RefreshResult
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, _ := c.Cookie(RefreshCookieName)
	res, err := h.service.Refresh(c.Request.Context(), token, middleware.Meta(c))
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Code == appErrors.ErrRefreshReuse.Code {
			h.clearCookie(c)
			response.Message(c, appErr.Status, appErr.Code, appErr.Message)
			return
		}
		if appErr.Status < http.StatusInternalServerError {
			h.clearCookie(c)
		}
		response.Error(c, err)
		return
	}
	h.setCookie(c, res.RefreshToken)
	response.JSON(c, http.StatusOK, gin.H{"accessToken": res.AccessToken})
}

// Logout godoc
// @Summary Logout current session
// @Description End the refresh session and clear the cookie; always succeeds
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(RefreshCookieName)
	h.service.Logout(c.Request.Context(), token, middleware.Meta(c))
	h.clearCookie(c)
	response.JSON(c, http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *AuthHandler) setCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, token, int(h.cookie.MaxAge.Seconds()), h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}

func (h *AuthHandler) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(RefreshCookieName, "", -1, h.cookie.Path, h.cookie.Domain, h.cookie.Secure, true)
}
