package models

import (
	"time"

	"github.com/google/uuid"
)

// Task описывает заявку на бытовую услугу с геопозицией и бюджетом.
type Task struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PosterID           uuid.UUID  `db:"poster_id" json:"poster_id"`
	Title              string     `db:"title" json:"title"`
	Description        string     `db:"description" json:"description"`
	Longitude          float64    `db:"longitude" json:"longitude"`
	Latitude           float64    `db:"latitude" json:"latitude"`
	Address            *string    `db:"address" json:"address,omitempty"`
	Budget             float64    `db:"budget" json:"budget"`
	Images             []string   `db:"-" json:"images,omitempty"`
	Rating             *int       `db:"rating" json:"rating,omitempty"`
	Status             string     `db:"status" json:"status"`
	ProviderID         *uuid.UUID `db:"provider_id" json:"provider_id,omitempty"`
	AssignedEmployeeID *uuid.UUID `db:"assigned_employee_id" json:"assigned_employee_id,omitempty"`
	PosterCompleted    bool       `db:"poster_completed" json:"poster_completed"`
	ProviderCompleted  bool       `db:"provider_completed" json:"provider_completed"`
	PaymentStatus      string     `db:"payment_status" json:"payment_status"`
	PaymentIntentID    *string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	// Производные поля, заполняются выборкой или сервисом.
	DistanceMeters    *float64 `db:"distance_meters" json:"distance_meters,omitempty"`
	ProviderAvgRating *float64 `db:"-" json:"provider_avg_rating,omitempty"`
}

// IsTerminal сообщает, достиг ли статус задачи конечного состояния.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

// AssignedTasksOverview агрегирует картину занятости для исполнителя.
type AssignedTasksOverview struct {
	Employees          []EmployeeStatus `json:"employees"`
	Tasks              []Task           `json:"tasks"`
	UserCompletedTasks []Task           `json:"userCompletedTasks"`
}

// Settlement фиксирует расчёт выплаты при двустороннем завершении.
type Settlement struct {
	TaskID     uuid.UUID `json:"task_id"`
	Amount     float64   `json:"amount"`
	Commission float64   `json:"commission"`
	IntentID   string    `json:"intent_id"`
}
