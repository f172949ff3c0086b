package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-desk-api/internal/middleware"
	"github.com/noah-isme/incident-desk-api/internal/models"
)

var (
	reporter = &models.User{ID: "7d3f1c8e-2b44-4a7e-9d55-0f6c1a2b3c4d", Name: "Rina", Email: "rina@example.com", Role: models.RoleUser}
	admin    = &models.User{ID: "0b6e3c51-9e2d-4f0a-8a77-5d1e2c3b4a59", Name: "Ops", Email: "ops@example.com", Role: models.RoleAdmin}
)

// newRouter returns an engine that authenticates every request as user
// (nil leaves the request anonymous).
func newRouter(user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(middleware.ContextUserKey, user)
		}
		c.Next()
	})
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestReadyReportsDegradedDependency(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]Pinger{"postgres": pinger{}, "redis": pinger{err: errors.New("connection refused")}})
	router := newRouter(nil)
	router.GET("/ready", h.Ready)
	router.GET("/health", h.Health)
	router.GET("/metrics", h.Prometheus)

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"redis":"connection refused"`)
	assert.Contains(t, resp.Body.String(), `"postgres":"ok"`)

	resp = serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestReadyWithoutChecks(t *testing.T) {
	router := newRouter(nil)
	router.GET("/ready", NewMetricsHandler(nil, nil).Ready)

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ready"`)
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for name, content := range files {
		part, err := writer.CreateFormFile("evidence", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func jsonDecode(w *httptest.ResponseRecorder, dest interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), dest)
}
