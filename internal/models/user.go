package models

import (
	"time"

	"github.com/google/uuid"
)

// User описывает пользователя площадки: заказчика, исполнителя или сотрудника исполнителя.
type User struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         string     `db:"role" json:"role"`
	Services     []string   `db:"-" json:"services,omitempty"`
	Longitude    *float64   `db:"longitude" json:"longitude,omitempty"`
	Latitude     *float64   `db:"latitude" json:"latitude,omitempty"`
	ProviderID   *uuid.UUID `db:"provider_id" json:"provider_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// HasLocation сообщает, задана ли у пользователя собственная геопозиция.
func (u *User) HasLocation() bool {
	return u.Longitude != nil && u.Latitude != nil
}

// EmployeeStatus описывает сотрудника исполнителя и его текущую занятость.
type EmployeeStatus struct {
	Employee User   `json:"employee"`
	Status   string `json:"status"`
}
