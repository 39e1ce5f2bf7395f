package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat описывает переписку по одной задаче. Состав участников только растёт.
type Chat struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	TaskID       uuid.UUID   `db:"task_id" json:"task_id"`
	Participants []uuid.UUID `db:"-" json:"participants"`
	LastMessage  time.Time   `db:"last_message" json:"last_message"`
	UnreadCount  int         `db:"unread_count" json:"unread_count"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`

	// Производные поля для списка чатов.
	TaskTitle  *string `db:"task_title" json:"task_title,omitempty"`
	TaskStatus *string `db:"task_status" json:"task_status,omitempty"`
}

// HasParticipant проверяет членство пользователя в чате.
func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ChatMessage описывает сообщение в чате. Сообщения неизменяемы после создания.
type ChatMessage struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ChatID      uuid.UUID `db:"chat_id" json:"chat_id"`
	SenderID    uuid.UUID `db:"sender_id" json:"sender_id"`
	Content     string    `db:"content" json:"content"`
	MessageType string    `db:"message_type" json:"message_type"`
	Read        bool      `db:"read" json:"read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
