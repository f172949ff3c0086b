package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

// Envelope represents the failure contract shared by every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// JSON sends a flat success payload: {"success": true, ...fields}.
func JSON(c *gin.Context, status int, fields gin.H) {
	noStore(c)
	body := gin.H{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, fields gin.H) {
	JSON(c, http.StatusCreated, fields)
}

// Paginated sends a list payload with its page metadata inlined.
func Paginated(c *gin.Context, items interface{}, pagination models.Pagination, extra ...gin.H) {
	fields := gin.H{
		"items": items,
		"page":  pagination.Page,
		"limit": pagination.Limit,
		"total": pagination.Total,
		"pages": pagination.Pages,
	}
	for _, e := range extra {
		for k, v := range e {
			fields[k] = v
		}
	}
	JSON(c, http.StatusOK, fields)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		// keep the original cause for the server error audit hook
		_ = c.Error(err)
	}
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr.Message, Code: appErr.Code})
}

// Message sends {"success": false, "message": ...}; used for terminal auth outcomes.
func Message(c *gin.Context, status int, code, message string) {
	noStore(c)
	c.JSON(status, Envelope{Message: message, Code: code})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
