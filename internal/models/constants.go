package models

// Роли пользователей.
const (
	RoleUser             = "user"
	RoleProvider         = "provider"
	RoleProviderEmployee = "provider_employee"
)

// TaskStatus константы статусов задач.
const (
	TaskStatusOpen      = "open"
	TaskStatusAssigned  = "assigned"
	TaskStatusCompleted = "completed"
	TaskStatusCancelled = "cancelled"
)

// PaymentStatus константы статусов оплаты. Переходы только вперёд:
// pending -> initiated -> paid|failed.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusInitiated = "initiated"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
)

// MessageType константы типов сообщений в чате.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Занятость сотрудника исполнителя.
const (
	EmployeeStatusAtWork = "at-work"
	EmployeeStatusFree   = "free"
)

// События email-уведомлений.
const (
	NotificationTaskAssigned  = "task-assigned"
	NotificationTaskCompleted = "task-completed"
	NotificationTaskCancelled = "task-cancelled"
)

// ValidRoles список валидных ролей.
var ValidRoles = map[string]struct{}{
	RoleUser:             {},
	RoleProvider:         {},
	RoleProviderEmployee: {},
}

// ValidTaskStatuses список валидных статусов задач.
var ValidTaskStatuses = map[string]struct{}{
	TaskStatusOpen:      {},
	TaskStatusAssigned:  {},
	TaskStatusCompleted: {},
	TaskStatusCancelled: {},
}

// ValidMessageTypes список валидных типов сообщений.
var ValidMessageTypes = map[string]struct{}{
	MessageTypeText:  {},
	MessageTypeImage: {},
}

// IsProviderRole сообщает, действует ли роль от имени исполнителя.
func IsProviderRole(role string) bool {
	return role == RoleProvider || role == RoleProviderEmployee
}
