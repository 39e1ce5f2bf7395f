package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/taskbazaar-backend/internal/email"
	"github.com/ignatzorin/taskbazaar-backend/internal/logger"
	"github.com/ignatzorin/taskbazaar-backend/internal/models"
)

// NotificationOutbox описывает хранилище намерений уведомлений.
type NotificationOutbox interface {
	Enqueue(ctx context.Context, intent *models.NotificationIntent) error
	ListPending(ctx context.Context, limit int) ([]models.NotificationIntent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// NotificationService реализует outbox уведомлений: переходы лайфцикла
// кладут намерение, фоновый диспетчер отправляет письма. Сбои отправки
// никогда не откатывают переход статуса.
type NotificationService struct {
	outbox NotificationOutbox
	sender email.Sender
	sweep  time.Duration
}

// NewNotificationService создаёт сервис уведомлений.
func NewNotificationService(outbox NotificationOutbox, sender email.Sender, sweep time.Duration) *NotificationService {
	if sweep <= 0 {
		sweep = 15 * time.Second
	}
	return &NotificationService{
		outbox: outbox,
		sender: sender,
		sweep:  sweep,
	}
}

// NotifyTransition кладёт намерение уведомления в outbox.
// Возвращает false при ошибке записи, не прерывая вызывающий переход.
func (s *NotificationService) NotifyTransition(ctx context.Context, task *models.Task, event, recipientEmail string, actorName *string) bool {
	intent := &models.NotificationIntent{
		TaskID:         task.ID,
		RecipientEmail: recipientEmail,
		Event:          event,
		TaskTitle:      task.Title,
		ActorName:      actorName,
	}

	if err := s.outbox.Enqueue(ctx, intent); err != nil {
		logger.WithComponent("notifications").Warnf("не удалось записать уведомление %s для задачи %s: %v", event, task.ID, err)
		return false
	}

	return true
}

// Run запускает фоновый диспетчер outbox до отмены контекста.
func (s *NotificationService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchPending(ctx)
		}
	}
}

// dispatchPending отправляет накопленные намерения. Неудачные попытки
// остаются в очереди до следующего прохода.
func (s *NotificationService) dispatchPending(ctx context.Context) {
	intents, err := s.outbox.ListPending(ctx, 20)
	if err != nil {
		logger.WithComponent("notifications").Warnf("не удалось прочитать outbox: %v", err)
		return
	}

	for _, intent := range intents {
		subject, body := renderNotification(intent)

		if err := s.sender.Send(intent.RecipientEmail, subject, body); err != nil {
			logger.WithComponent("notifications").Warnf("отправка %s не удалась: %v", intent.ID, err)
			if err := s.outbox.MarkFailed(ctx, intent.ID); err != nil {
				logger.WithComponent("notifications").Warnf("не удалось отметить попытку %s: %v", intent.ID, err)
			}
			continue
		}

		if err := s.outbox.MarkSent(ctx, intent.ID); err != nil {
			logger.WithComponent("notifications").Warnf("не удалось отметить отправку %s: %v", intent.ID, err)
		}
	}
}

// renderNotification собирает тему и текст письма по типу события.
func renderNotification(intent models.NotificationIntent) (string, string) {
	switch intent.Event {
	case models.NotificationTaskAssigned:
		actor := "исполнитель"
		if intent.ActorName != nil {
			actor = *intent.ActorName
		}
		return fmt.Sprintf("Задача назначена: %s", intent.TaskTitle),
			fmt.Sprintf("Ваша задача «%s» назначена исполнителю %s. Он свяжется с вами в чате задачи.", intent.TaskTitle, actor)
	case models.NotificationTaskCompleted:
		return fmt.Sprintf("Задача завершена: %s", intent.TaskTitle),
			fmt.Sprintf("Ваша задача «%s» отмечена как завершённая. Проверьте результат и оставьте оценку.", intent.TaskTitle)
	case models.NotificationTaskCancelled:
		return fmt.Sprintf("Задача отменена: %s", intent.TaskTitle),
			fmt.Sprintf("Ваша задача «%s» была отменена.", intent.TaskTitle)
	default:
		return fmt.Sprintf("TaskBazaar: %s", intent.TaskTitle),
			fmt.Sprintf("Обновление по задаче «%s».", intent.TaskTitle)
	}
}
