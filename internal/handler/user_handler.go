package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/service"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

// UserHandler exposes account administration endpoints.
type UserHandler struct {
	service *service.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{service: svc}
}

// Me godoc
// @Summary Current user
// @Tags Users
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /users/me [get]
func (h *UserHandler) Me(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"user": actor})
}

// Admins godoc
// @Summary Assignable administrators
// @Tags Users
// @Produce json
// @Success 200 {array} models.UserInfo
// @Security BearerAuth
// @Router /users/admins [get]
func (h *UserHandler) Admins(c *gin.Context) {
	admins, err := h.service.Admins(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"items": admins})
}

// List godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Param role query string false "Role"
// @Param isBlocked query bool false "Blocked flag"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	var filter models.UserFilter
	if !bindQuery(c, &filter) {
		return
	}
	users, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, users, pagination)
}

// Create godoc
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body models.CreateUserRequest true "User payload"
// @Success 201 {object} models.User
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /users [post]
func (h *UserHandler) Create(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req models.CreateUserRequest
	if !bindJSON(c, &req, "invalid create user payload") {
		return
	}
	user, err := h.service.Create(c.Request.Context(), req, actor, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"user": user})
}

// Update godoc
// @Summary Update user
// @Tags Users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.UpdateUserRequest true "Changes"
// @Success 200 {object} models.User
// @Security BearerAuth
// @Router /users/{id} [patch]
func (h *UserHandler) Update(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req models.UpdateUserRequest
	if !bindJSON(c, &req, "invalid update payload") {
		return
	}
	user, err := h.service.Update(c.Request.Context(), c.Param("id"), req, actor, middleware.Meta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"user": user})
}

// Delete godoc
// @Summary Delete user
// @Tags Users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actor, middleware.Meta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "User deleted"})
}
