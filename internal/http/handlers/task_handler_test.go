package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/taskbazaar-backend/internal/http/middleware"
	"github.com/ignatzorin/taskbazaar-backend/internal/models"
)

// injectAuth подставляет авторизованного актора в контекст запроса.
func injectAuth(userID uuid.UUID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
		c.Set(middleware.ContextRoleKey, role)
		c.Next()
	}
}

func newTaskForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		assert.NoError(t, writer.WriteField(key, value))
	}
	assert.NoError(t, writer.Close())

	return body, writer.FormDataContentType()
}

func TestTaskHandler_Create_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewTaskHandler(nil, nil)
	r.POST("/api/tasks", handler.Create)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTaskHandler_Create_BadBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewTaskHandler(nil, nil)
	r.POST("/api/tasks", injectAuth(uuid.New(), models.RoleUser), handler.Create)

	body, contentType := newTaskForm(t, map[string]string{
		"title":       "Починить кран",
		"description": "Течёт кран",
		"budget":      "пятьсот",
		"location":    `{"longitude":24.8,"latitude":67.0}`,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
	req.Header.Set("Content-Type", contentType)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "бюджет")
}

func TestTaskHandler_Create_BadLocation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewTaskHandler(nil, nil)
	r.POST("/api/tasks", injectAuth(uuid.New(), models.RoleUser), handler.Create)

	cases := []string{
		"not-json",
		`{"longitude":24.8}`,
		`{"latitude":67.0}`,
	}
	for _, location := range cases {
		body, contentType := newTaskForm(t, map[string]string{
			"title":       "Починить кран",
			"description": "Течёт кран",
			"budget":      "500",
			"location":    location,
		})

		req := httptest.NewRequest(http.MethodPost, "/api/tasks", body)
		req.Header.Set("Content-Type", contentType)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "location %q должна отклоняться", location)
	}
}

func TestTaskHandler_UpdateStatus_BadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewTaskHandler(nil, nil)
	r.PATCH("/api/tasks/:id/status", injectAuth(uuid.New(), models.RoleUser), handler.UpdateStatus)

	// Без целевого статуса.
	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/"+uuid.NewString()+"/status", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Невалидный provider_id.
	req = httptest.NewRequest(http.MethodPatch, "/api/tasks/"+uuid.NewString()+"/status",
		strings.NewReader(`{"status":"assigned","provider_id":"not-a-uuid"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "provider_id")
}

func TestTaskHandler_Accept_BadTaskID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewTaskHandler(nil, nil)
	r.POST("/api/tasks/:id/accept", injectAuth(uuid.New(), models.RoleProvider), handler.Accept)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/tasks/42/accept", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskHandler_Nearby_BadQueryParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewTaskHandler(nil, nil)
	r.GET("/api/tasks/nearby", injectAuth(uuid.New(), models.RoleProvider), handler.Nearby)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks/nearby?longitude=east", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks/nearby?radius=wide", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
