package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationIntent — запись outbox для email-уведомления о переходе статуса.
// Создаётся вместе с переходом, отправляется диспетчером асинхронно.
type NotificationIntent struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	TaskID         uuid.UUID  `db:"task_id" json:"task_id"`
	RecipientEmail string     `db:"recipient_email" json:"recipient_email"`
	Event          string     `db:"event" json:"event"`
	TaskTitle      string     `db:"task_title" json:"task_title"`
	ActorName      *string    `db:"actor_name" json:"actor_name,omitempty"`
	Attempts       int        `db:"attempts" json:"attempts"`
	SentAt         *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
