package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/response"
)

// actorOrAbort returns the authenticated user or writes 401.
func actorOrAbort(c *gin.Context) (*models.User, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "Not authorized, no token"))
		return nil, false
	}
	return user, true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	return true
}
