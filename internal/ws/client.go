package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/taskbazaar-backend/internal/logger"
	"github.com/ignatzorin/taskbazaar-backend/internal/models"
	"github.com/ignatzorin/taskbazaar-backend/internal/pkg/apperror"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxInboundBytes = 512 * 1024
)

// Входящие события клиента.
const (
	eventJoinTaskChat = "join-task-chat"
	eventSendMessage  = "send-message"
	eventTypingStart  = "typing-start"
	eventTypingStop   = "typing-stop"
	eventMarkRead     = "mark-read"
)

// Исходящие события сервера.
const (
	eventChatJoined     = "chat-joined"
	eventNewMessage     = "new-message"
	eventUserTyping     = "user-typing"
	eventUserStopTyping = "user-stop-typing"
	eventMessagesRead   = "messages-read"
	eventUnreadUpdate   = "unread-update"
	eventMessageError   = "message-error"
)

// ChatGateway описывает операции чатов, доступные через WebSocket.
type ChatGateway interface {
	GetOrCreateChat(ctx context.Context, actorID uuid.UUID, role string, taskID uuid.UUID) (*models.Chat, error)
	GetChat(ctx context.Context, actorID, chatID uuid.UUID) (*models.Chat, error)
	AppendMessage(ctx context.Context, actorID, chatID uuid.UUID, content, messageType string) (*models.ChatMessage, error)
	MarkRead(ctx context.Context, actorID, chatID uuid.UUID) (*models.Chat, error)
}

// Client представляет одно подключение WebSocket с привязанной сессией
// пользователя.
type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	chats  ChatGateway
	userID uuid.UUID
	role   string
	send   chan []byte

	// Комнаты клиента. Доступ только под мьютексом хаба.
	rooms map[uuid.UUID]struct{}
}

// NewClient создаёт нового клиента.
func NewClient(conn *websocket.Conn, hub *Hub, chats ChatGateway, userID uuid.UUID, role string) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		chats:  chats,
		userID: userID,
		role:   role,
		send:   make(chan []byte, 16),
		rooms:  make(map[uuid.UUID]struct{}),
	}
}

// Run запускает обработку входящих и исходящих сообщений.
func (c *Client) Run(ctx context.Context) {
	go c.writePumpSafe()
	c.readPump(ctx)
}

// Close закрывает соединение.
func (c *Client) Close() {
	c.hub.Unregister(c)
	c.conn.Close()
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("ws").Errorf("panic в readPump: %v", r)
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, raw, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.WithComponent("ws").Debugf("соединение %s закрыто: %v", c.userID, err)
				}
				return
			}

			var event inboundEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				c.sendError("некорректный формат события")
				continue
			}

			c.dispatch(ctx, event)
		}
	}
}

// dispatch обрабатывает одно входящее событие сессии.
func (c *Client) dispatch(ctx context.Context, event inboundEvent) {
	switch event.Type {
	case eventJoinTaskChat:
		c.handleJoinTaskChat(ctx, event.Data)
	case eventSendMessage:
		c.handleSendMessage(ctx, event.Data)
	case eventTypingStart:
		c.handleTyping(ctx, event.Data, eventUserTyping)
	case eventTypingStop:
		c.handleTyping(ctx, event.Data, eventUserStopTyping)
	case eventMarkRead:
		c.handleMarkRead(ctx, event.Data)
	default:
		c.sendError("неизвестный тип события")
	}
}

func (c *Client) handleJoinTaskChat(ctx context.Context, data json.RawMessage) {
	var payload struct {
		TaskID uuid.UUID `json:"task_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.TaskID == uuid.Nil {
		c.sendError("не указана задача")
		return
	}

	chat, err := c.chats.GetOrCreateChat(ctx, c.userID, c.role, payload.TaskID)
	if err != nil {
		c.sendError(userMessage(err))
		return
	}

	c.hub.JoinRoom(chat.ID, c)
	c.sendEvent(eventChatJoined, chat)
}

// handleSendMessage принимает сообщение, адресованное задачей: чат
// резолвится (и при необходимости создаётся) по task_id, как и при join.
func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var payload struct {
		TaskID      uuid.UUID `json:"task_id"`
		Content     string    `json:"content"`
		MessageType string    `json:"message_type"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.TaskID == uuid.Nil {
		c.sendError("не указана задача")
		return
	}

	chat, err := c.chats.GetOrCreateChat(ctx, c.userID, c.role, payload.TaskID)
	if err != nil {
		c.sendError(userMessage(err))
		return
	}

	message, err := c.chats.AppendMessage(ctx, c.userID, chat.ID, payload.Content, payload.MessageType)
	if err != nil {
		c.sendError(userMessage(err))
		return
	}

	// Отправитель получает сохранённое сообщение напрямую, остальные — через
	// комнату и обновление счётчиков непрочитанного.
	c.sendEvent(eventNewMessage, message)

	updated, err := c.chats.GetChat(ctx, c.userID, chat.ID)
	if err != nil {
		updated = chat
	}
	c.hub.PublishMessage(updated, message, c)
}

func (c *Client) handleTyping(ctx context.Context, data json.RawMessage, outEvent string) {
	var payload struct {
		TaskID uuid.UUID `json:"task_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.TaskID == uuid.Nil {
		c.sendError("не указана задача")
		return
	}

	chat, err := c.chats.GetOrCreateChat(ctx, c.userID, c.role, payload.TaskID)
	if err != nil {
		c.sendError(userMessage(err))
		return
	}

	_ = c.hub.BroadcastToRoom(chat.ID, outEvent, map[string]any{
		"task_id": payload.TaskID,
		"chat_id": chat.ID,
		"user_id": c.userID,
	}, c)
}

func (c *Client) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var payload struct {
		ChatID uuid.UUID `json:"chat_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == uuid.Nil {
		c.sendError("не указан чат")
		return
	}

	chat, err := c.chats.MarkRead(ctx, c.userID, payload.ChatID)
	if err != nil {
		c.sendError(userMessage(err))
		return
	}

	_ = c.hub.BroadcastToRoom(chat.ID, eventMessagesRead, map[string]any{
		"chat_id":   chat.ID,
		"reader_id": c.userID,
	}, c)

	for _, participant := range chat.Participants {
		_ = c.hub.BroadcastToUser(participant, eventUnreadUpdate, map[string]any{
			"chat_id":      chat.ID,
			"unread_count": chat.UnreadCount,
		})
	}
}

func (c *Client) sendEvent(event string, data any) {
	raw, err := marshalEvent(event, data)
	if err != nil {
		return
	}

	select {
	case c.send <- raw:
	default:
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(eventMessageError, map[string]string{"message": message})
}

// userMessage достаёт человекочитаемый текст ошибки для клиента.
func userMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "внутренняя ошибка"
}

func (c *Client) writePumpSafe() {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("ws").Errorf("panic в writePump: %v", r)
			c.Close()
		}
	}()
	c.writePump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
