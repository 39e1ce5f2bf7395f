package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/taskbazaar-backend/internal/service"
	"github.com/ignatzorin/taskbazaar-backend/internal/storage"
	"github.com/ignatzorin/taskbazaar-backend/internal/validation"
)

var errTooManyImages = errors.New("слишком много изображений")

// TaskHandler обслуживает REST-операции лайфцикла задач.
type TaskHandler struct {
	tasks  *service.TaskService
	photos *storage.PhotoStorage
}

// NewTaskHandler создаёт новый хэндлер.
func NewTaskHandler(tasks *service.TaskService, photos *storage.PhotoStorage) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		photos: photos,
	}
}

// taskLocation — координаты задачи в multipart-поле location.
// Оба поля обязательны; частичная точка отклоняется.
type taskLocation struct {
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
}

// Create обрабатывает POST /api/tasks (multipart/form-data).
func (h *TaskHandler) Create(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return
	}

	title := c.PostForm("title")
	description := c.PostForm("description")

	budget, err := strconv.ParseFloat(c.PostForm("budget"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "бюджет должен быть числом"})
		return
	}

	var location taskLocation
	if err := json.Unmarshal([]byte(c.PostForm("location")), &location); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "поле location должно быть JSON с координатами"})
		return
	}
	if location.Longitude == nil || location.Latitude == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location должен содержать longitude и latitude"})
		return
	}

	images, err := h.saveImages(c, userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), userID, service.CreateTaskInput{
		Title:       title,
		Description: description,
		Longitude:   *location.Longitude,
		Latitude:    *location.Latitude,
		Budget:      budget,
		Images:      images,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

// saveImages сохраняет вложения multipart-запроса и возвращает их URL-пути.
func (h *TaskHandler) saveImages(c *gin.Context, ownerID uuid.UUID) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// Запрос без файлов допустим.
		return nil, nil
	}

	files := form.File["images"]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > validation.MaxTaskImages {
		return nil, errTooManyImages
	}

	var urls []string
	for _, file := range files {
		src, err := file.Open()
		if err != nil {
			return nil, err
		}

		relative, _, err := h.photos.SaveImage(c.Request.Context(), ownerID, file.Filename, src)
		src.Close()
		if err != nil {
			return nil, err
		}

		urls = append(urls, "/uploads/"+relative)
	}

	return urls, nil
}

// ListOpen обрабатывает GET /api/tasks.
func (h *TaskHandler) ListOpen(c *gin.Context) {
	tasks, err := h.tasks.ListOpenTasks(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// ListMy обрабатывает GET /api/tasks/my.
func (h *TaskHandler) ListMy(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return
	}

	tasks, err := h.tasks.ListPosterTasks(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// Nearby обрабатывает GET /api/tasks/nearby?longitude=&latitude=&radius=.
func (h *TaskHandler) Nearby(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return
	}
	role, err := currentUserRole(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return
	}

	var query service.NearbyQuery

	if raw := c.Query("longitude"); raw != "" {
		longitude, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "longitude должна быть числом"})
			return
		}
		query.Longitude = &longitude
	}
	if raw := c.Query("latitude"); raw != "" {
		latitude, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "latitude должна быть числом"})
			return
		}
		query.Latitude = &latitude
	}
	if raw := c.Query("radius"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius должен быть числом"})
			return
		}
		query.RadiusMeters = radius
	}

	tasks, err := h.tasks.FindNearby(c.Request.Context(), userID, role, query)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tasks)
}

// Accept обрабатывает POST /api/tasks/:id/accept.
func (h *TaskHandler) Accept(c *gin.Context) {
	userID, role, taskID, ok := h.actorAndTask(c)
	if !ok {
		return
	}

	task, emailSent, err := h.tasks.Accept(c.Request.Context(), userID, role, taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task":       task,
		"email_sent": emailSent,
	})
}

type updateStatusRequest struct {
	Status     string  `json:"status"`
	ProviderID *string `json:"provider_id"`
}

// UpdateStatus обрабатывает PUT /api/tasks/:id/status.
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	userID, role, taskID, ok := h.actorAndTask(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не указан целевой статус"})
		return
	}

	var providerID *uuid.UUID
	if req.ProviderID != nil {
		parsed, err := uuid.Parse(*req.ProviderID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provider_id должен быть валидным UUID"})
			return
		}
		providerID = &parsed
	}

	task, emailSent, err := h.tasks.UpdateStatus(c.Request.Context(), userID, role, taskID, req.Status, providerID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task":       task,
		"email_sent": emailSent,
	})
}

// Complete обрабатывает PUT /api/tasks/:id/complete.
func (h *TaskHandler) Complete(c *gin.Context) {
	userID, role, taskID, ok := h.actorAndTask(c)
	if !ok {
		return
	}

	task, settlement, emailSent, err := h.tasks.Complete(c.Request.Context(), userID, role, taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response := gin.H{
		"task":       task,
		"email_sent": emailSent,
	}
	if settlement != nil {
		response["settlement"] = settlement
	}

	c.JSON(http.StatusOK, response)
}

type rateRequest struct {
	Rating int `json:"rating"`
}

// Rate обрабатывает PUT /api/tasks/:id/rating.
func (h *TaskHandler) Rate(c *gin.Context) {
	userID, _, taskID, ok := h.actorAndTask(c)
	if !ok {
		return
	}

	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректное тело запроса"})
		return
	}

	task, err := h.tasks.Rate(c.Request.Context(), userID, taskID, req.Rating)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// Assigned обрабатывает GET /api/tasks/assigned.
func (h *TaskHandler) Assigned(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return
	}
	role, err := currentUserRole(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return
	}

	overview, err := h.tasks.GetAssignedTasks(c.Request.Context(), userID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// actorAndTask извлекает актора и идентификатор задачи из запроса.
func (h *TaskHandler) actorAndTask(c *gin.Context) (uuid.UUID, string, uuid.UUID, bool) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return uuid.Nil, "", uuid.Nil, false
	}

	role, err := currentUserRole(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return uuid.Nil, "", uuid.Nil, false
	}

	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный идентификатор задачи"})
		return uuid.Nil, "", uuid.Nil, false
	}

	return userID, role, taskID, true
}
