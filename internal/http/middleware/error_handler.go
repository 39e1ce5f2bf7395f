package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/taskbazaar-backend/internal/logger"
	"github.com/ignatzorin/taskbazaar-backend/internal/pkg/apperror"
	"github.com/ignatzorin/taskbazaar-backend/internal/repository"
)

// ErrorHandler обрабатывает ошибки централизованно. Внутренние ошибки
// маскируются, клиент получает сообщение и статус из AppError.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		statusCode := http.StatusInternalServerError
		message := "внутренняя ошибка сервера"

		var appErr *apperror.AppError
		switch {
		case errors.As(err, &appErr):
			statusCode = appErr.HTTPStatus
			message = appErr.Message
		case errors.Is(err, repository.ErrTaskNotFound):
			statusCode = http.StatusNotFound
			message = "задача не найдена"
		case errors.Is(err, repository.ErrChatNotFound):
			statusCode = http.StatusNotFound
			message = "чат не найден"
		case errors.Is(err, repository.ErrUserNotFound):
			statusCode = http.StatusNotFound
			message = "пользователь не найден"
		}

		if logger.Log != nil && statusCode >= http.StatusInternalServerError {
			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Error("Request error")
		}

		c.JSON(statusCode, gin.H{"error": message})
	}
}
