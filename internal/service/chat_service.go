package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/taskbazaar-backend/internal/models"
	"github.com/ignatzorin/taskbazaar-backend/internal/pkg/apperror"
	"github.com/ignatzorin/taskbazaar-backend/internal/repository"
	"github.com/ignatzorin/taskbazaar-backend/internal/validation"
)

// ChatStore описывает операции хранилища чатов.
type ChatStore interface {
	Create(ctx context.Context, chat *models.Chat) error
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Chat, error)
	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
	AddParticipant(ctx context.Context, chatID, userID uuid.UUID) error
	ListByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.ChatMessage, error)
	AppendMessage(ctx context.Context, message *models.ChatMessage) error
	MarkRead(ctx context.Context, chatID, readerID uuid.UUID) error
}

// ChatTaskStore описывает доступ к задачам для авторизации чата.
type ChatTaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// ChatUserStore описывает доступ к пользователям для авторизации чата.
type ChatUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ChatService управляет перепиской по задачам: один чат на задачу,
// монотонно растущий состав участников, append-only журнал сообщений.
type ChatService struct {
	chats ChatStore
	tasks ChatTaskStore
	users ChatUserStore
}

// NewChatService создаёт сервис чатов.
func NewChatService(chats ChatStore, tasks ChatTaskStore, users ChatUserStore) *ChatService {
	return &ChatService{
		chats: chats,
		tasks: tasks,
		users: users,
	}
}

// EnsureTaskChat создаёт чат задачи с указанным составом. Повторный вызов
// лишь дополняет участников.
func (s *ChatService) EnsureTaskChat(ctx context.Context, taskID uuid.UUID, participants ...uuid.UUID) error {
	chat := &models.Chat{
		TaskID:       taskID,
		Participants: participants,
	}
	return s.chats.Create(ctx, chat)
}

// GetOrCreateChat возвращает чат задачи, создавая его лениво. Авторизованный
// участник, которого ещё нет в составе, добавляется в чат.
func (s *ChatService) GetOrCreateChat(ctx context.Context, actorID uuid.UUID, role string, taskID uuid.UUID) (*models.Chat, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить задачу")
	}

	allowed, err := s.canAccessTaskChat(ctx, task, actorID, role)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(apperror.ErrCodeForbidden, "нет доступа к чату задачи")
	}

	chat, err := s.chats.GetByTaskID(ctx, taskID)
	if errors.Is(err, repository.ErrChatNotFound) {
		chat = &models.Chat{
			TaskID:       taskID,
			Participants: s.initialParticipants(task, actorID),
		}
		if err := s.chats.Create(ctx, chat); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось создать чат")
		}
		return s.chats.GetByID(ctx, chat.ID)
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить чат")
	}

	if !chat.HasParticipant(actorID) {
		if err := s.chats.AddParticipant(ctx, chat.ID, actorID); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось добавить участника")
		}
		chat.Participants = append(chat.Participants, actorID)
	}

	return chat, nil
}

// ListUserChats возвращает чаты пользователя, свежие переписки первыми.
func (s *ChatService) ListUserChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	chats, err := s.chats.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить список чатов")
	}
	return chats, nil
}

// ListMessages возвращает сообщения чата в порядке добавления.
func (s *ChatService) ListMessages(ctx context.Context, actorID, chatID uuid.UUID) ([]models.ChatMessage, error) {
	if _, err := s.requireParticipant(ctx, chatID, actorID); err != nil {
		return nil, err
	}

	messages, err := s.chats.ListMessages(ctx, chatID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить сообщения")
	}
	return messages, nil
}

// AppendMessage добавляет сообщение в журнал чата.
func (s *ChatService) AppendMessage(ctx context.Context, actorID, chatID uuid.UUID, content, messageType string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if err := validation.ValidateLength("сообщение", content, validation.MinMessageLength, validation.MaxMessageLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	if messageType == "" {
		messageType = models.MessageTypeText
	}
	if _, ok := models.ValidMessageTypes[messageType]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "недопустимый тип сообщения")
	}

	if _, err := s.requireParticipant(ctx, chatID, actorID); err != nil {
		return nil, err
	}

	message := &models.ChatMessage{
		ChatID:      chatID,
		SenderID:    actorID,
		Content:     content,
		MessageType: messageType,
	}

	if err := s.chats.AppendMessage(ctx, message); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось отправить сообщение")
	}

	return message, nil
}

// MarkRead помечает чужие сообщения прочитанными. Возвращает чат для
// рассылки обновлений счётчиков. Повторный вызов идемпотентен.
func (s *ChatService) MarkRead(ctx context.Context, actorID, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.requireParticipant(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.chats.MarkRead(ctx, chatID, actorID); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось отметить прочтение")
	}

	chat.UnreadCount = 0
	return chat, nil
}

// GetChat возвращает чат, доступный актору-участнику.
func (s *ChatService) GetChat(ctx context.Context, actorID, chatID uuid.UUID) (*models.Chat, error) {
	return s.requireParticipant(ctx, chatID, actorID)
}

// requireParticipant загружает чат и проверяет членство актора.
func (s *ChatService) requireParticipant(ctx context.Context, chatID, actorID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrChatNotFound) {
			return nil, apperror.ErrChatNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить чат")
	}

	if !chat.HasParticipant(actorID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "нет доступа к чату")
	}

	return chat, nil
}

// canAccessTaskChat проверяет право актора на чат задачи: стороны задачи
// всегда в доступе, любой исполнитель может открыть чат открытой задачи,
// сотрудник наследует доступ закреплённого исполнителя.
func (s *ChatService) canAccessTaskChat(ctx context.Context, task *models.Task, actorID uuid.UUID, role string) (bool, error) {
	if task.PosterID == actorID {
		return true, nil
	}
	if task.ProviderID != nil && *task.ProviderID == actorID {
		return true, nil
	}
	if task.AssignedEmployeeID != nil && *task.AssignedEmployeeID == actorID {
		return true, nil
	}

	if !models.IsProviderRole(role) {
		return false, nil
	}

	if task.Status == models.TaskStatusOpen {
		return true, nil
	}

	if role == models.RoleProviderEmployee && task.ProviderID != nil {
		actor, err := s.users.GetByID(ctx, actorID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return false, nil
			}
			return false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить пользователя")
		}
		if actor.ProviderID != nil && *actor.ProviderID == *task.ProviderID {
			return true, nil
		}
	}

	return false, nil
}

// initialParticipants собирает стартовый состав чата: заказчик и сторона
// исполнителя либо инициатор обращения.
func (s *ChatService) initialParticipants(task *models.Task, actorID uuid.UUID) []uuid.UUID {
	participants := []uuid.UUID{task.PosterID}
	if task.ProviderID != nil {
		participants = append(participants, *task.ProviderID)
	}
	if task.AssignedEmployeeID != nil {
		participants = append(participants, *task.AssignedEmployeeID)
	}

	seen := false
	for _, p := range participants {
		if p == actorID {
			seen = true
			break
		}
	}
	if !seen {
		participants = append(participants, actorID)
	}

	return participants
}
