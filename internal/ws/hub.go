package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/taskbazaar-backend/internal/goroutine"
	"github.com/ignatzorin/taskbazaar-backend/internal/logger"
	"github.com/ignatzorin/taskbazaar-backend/internal/models"
)

// Hub управляет WebSocket-клиентами и комнатами чатов. Комната соответствует
// одному чату задачи; клиент может состоять в нескольких комнатах.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	rooms   map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
}

type envelope struct {
	room    *uuid.UUID
	userID  uuid.UUID
	except  *Client
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 32),
	}
}

// Run запускает главный цикл хаба до отмены контекста.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case env := <-h.broadcast:
			h.send(env)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет клиента из всех комнат и закрывает его рассылку.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom подключает клиента к комнате чата.
func (h *Hub) JoinRoom(chatID uuid.UUID, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][client] = struct{}{}
	client.rooms[chatID] = struct{}{}
}

// BroadcastToRoom отправляет событие всем клиентам комнаты, кроме except.
func (h *Hub) BroadcastToRoom(chatID uuid.UUID, event string, data any, except *Client) error {
	raw, err := marshalEvent(event, data)
	if err != nil {
		return err
	}

	h.broadcast <- envelope{room: &chatID, except: except, payload: raw}
	return nil
}

// BroadcastToUser отправляет событие всем подключениям пользователя.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	raw, err := marshalEvent(event, data)
	if err != nil {
		return err
	}

	h.broadcast <- envelope{userID: userID, payload: raw}
	return nil
}

// PublishMessage рассылает сохранённое сообщение комнате чата и обновление
// счётчика непрочитанного остальным участникам. Сам отправитель исключается
// из обеих рассылок: except покрывает его соединение в комнате, а счётчик
// непрочитанного его не касается.
func (h *Hub) PublishMessage(chat *models.Chat, message *models.ChatMessage, except *Client) {
	_ = h.BroadcastToRoom(chat.ID, eventNewMessage, message, except)

	for _, participant := range chat.Participants {
		if participant == message.SenderID {
			continue
		}
		_ = h.BroadcastToUser(participant, eventUnreadUpdate, map[string]any{
			"chat_id":      chat.ID,
			"unread_count": chat.UnreadCount,
		})
	}
}

// Контракт сообщения: "type" — имя события, "data" — полезная нагрузка.
func marshalEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(map[string]any{
		"type": event,
		"data": data,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: не удалось сериализовать событие %s: %w", event, err)
	}
	return raw, nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for chatID := range client.rooms {
		if room, ok := h.rooms[chatID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, chatID)
			}
		}
	}

	if clients, ok := h.clients[client.userID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (h *Hub) send(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[*Client]struct{}
	if env.room != nil {
		targets = h.rooms[*env.room]
	} else {
		targets = h.clients[env.userID]
	}

	for client := range targets {
		if client == env.except {
			continue
		}
		select {
		case client.send <- env.payload:
		default:
			// Переполненный клиент отключается, чтобы не тормозить комнату.
			logger.WithComponent("ws").Warnf("очередь клиента %s переполнена, закрываем соединение", client.userID)
			goroutine.SafeGo(client.Close)
		}
	}
}
