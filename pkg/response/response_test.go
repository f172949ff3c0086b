package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestJSONFlattensFields(t *testing.T) {
	c, rec := newContext()
	JSON(c, http.StatusOK, gin.H{"accessToken": "abc"})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "abc", body["accessToken"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestPaginatedInlinesMeta(t *testing.T) {
	c, rec := newContext()
	Paginated(c, []string{"a"}, models.NewPagination(2, 10, 25), gin.H{"unreadCount": 3})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["page"])
	assert.EqualValues(t, 3, body["pages"])
	assert.EqualValues(t, 25, body["total"])
	assert.EqualValues(t, 3, body["unreadCount"])
}

func TestErrorUsesTaxonomy(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.Clone(appErrors.ErrConflict, "Email already registered"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Email already registered", body.Error)
	assert.Equal(t, "CONFLICT", body.Code)
}

func TestErrorUnclassifiedBecomesInternal(t *testing.T) {
	c, rec := newContext()
	Error(c, errors.New("db down"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Len(t, c.Errors, 1)
	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Error)
}
