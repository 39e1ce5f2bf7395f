package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/taskbazaar-backend/internal/models"
	"github.com/ignatzorin/taskbazaar-backend/internal/service"
	"github.com/ignatzorin/taskbazaar-backend/internal/ws"
)

// ChatBroadcaster рассылает события чата подключённым клиентам.
type ChatBroadcaster interface {
	PublishMessage(chat *models.Chat, message *models.ChatMessage, except *ws.Client)
}

// ChatHandler обслуживает REST-операции чатов задач.
type ChatHandler struct {
	chats *service.ChatService
	hub   ChatBroadcaster
}

// NewChatHandler создаёт новый хэндлер.
func NewChatHandler(chats *service.ChatService, hub ChatBroadcaster) *ChatHandler {
	return &ChatHandler{
		chats: chats,
		hub:   hub,
	}
}

// GetOrCreate обрабатывает GET /api/chat/task/:taskId.
func (h *ChatHandler) GetOrCreate(c *gin.Context) {
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

	taskID, err := uuid.Parse(c.Param("taskId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный идентификатор задачи"})
		return
	}

	chat, err := h.chats.GetOrCreateChat(c.Request.Context(), userID, role, taskID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

// ListMy обрабатывает GET /api/chat/user-chats.
func (h *ChatHandler) ListMy(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return
	}

	chats, err := h.chats.ListUserChats(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, chats)
}

// ListMessages обрабатывает GET /api/chat/:chatId/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, chatID, ok := h.actorAndChat(c)
	if !ok {
		return
	}

	messages, err := h.chats.ListMessages(c.Request.Context(), userID, chatID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

// SendMessage обрабатывает POST /api/chat/:chatId/messages.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, chatID, ok := h.actorAndChat(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректное тело запроса"})
		return
	}

	message, err := h.chats.AppendMessage(c.Request.Context(), userID, chatID, req.Content, req.MessageType)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// Сообщение, отправленное через REST, доходит до подключённых участников
	// так же, как отправленное по вебсокету.
	if h.hub != nil {
		if chat, err := h.chats.GetChat(c.Request.Context(), userID, chatID); err == nil {
			h.hub.PublishMessage(chat, message, nil)
		}
	}

	c.JSON(http.StatusCreated, message)
}

// MarkRead обрабатывает PUT /api/chat/:chatId/read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, chatID, ok := h.actorAndChat(c)
	if !ok {
		return
	}

	chat, err := h.chats.MarkRead(c.Request.Context(), userID, chatID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, chat)
}

func (h *ChatHandler) actorAndChat(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
		return uuid.Nil, uuid.Nil, false
	}

	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректный идентификатор чата"})
		return uuid.Nil, uuid.Nil, false
	}

	return userID, chatID, true
}
