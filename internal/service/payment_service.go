package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ignatzorin/taskbazaar-backend/internal/logger"
	"github.com/ignatzorin/taskbazaar-backend/internal/models"
	"github.com/ignatzorin/taskbazaar-backend/internal/payment"
	"github.com/ignatzorin/taskbazaar-backend/internal/pkg/apperror"
	"github.com/ignatzorin/taskbazaar-backend/internal/repository"
)

// PaymentTaskRepository описывает зависимости платёжного сервиса от задач.
type PaymentTaskRepository interface {
	GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Task, error)
	SetPaymentStatusByIntent(ctx context.Context, intentID, status string) (bool, error)
}

// Типы событий вебхука платёжного процессора.
const (
	WebhookEventIntentSucceeded = "payment_intent.succeeded"
	WebhookEventIntentFailed    = "payment_intent.payment_failed"
)

// PaymentService обрабатывает вебхуки платёжного процессора.
type PaymentService struct {
	tasks     PaymentTaskRepository
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewPaymentService создаёт сервис платежей.
func NewPaymentService(tasks PaymentTaskRepository, webhookSecret string) *PaymentService {
	return &PaymentService{
		tasks:     tasks,
		secret:    webhookSecret,
		tolerance: payment.DefaultSignatureTolerance,
		now:       time.Now,
	}
}

// VerifySignature проверяет подпись тела вебхука. При ошибке запрос
// отклоняется целиком, без каких-либо мутаций задач.
func (s *PaymentService) VerifySignature(payload []byte, header string) error {
	if err := payment.VerifySignature(payload, header, s.secret, s.tolerance, s.now()); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeBadRequest, "подпись вебхука невалидна")
	}
	return nil
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HandleEvent применяет событие вебхука к задаче. Статус оплаты движется
// только вперёд: повторные и запоздавшие события игнорируются.
func (s *PaymentService) HandleEvent(ctx context.Context, payload []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeBadRequest, "тело вебхука невалидно")
	}
	if event.Data.ID == "" {
		return apperror.New(apperror.ErrCodeBadRequest, "в событии отсутствует идентификатор интента")
	}

	var target string
	switch event.Type {
	case WebhookEventIntentSucceeded:
		target = models.PaymentStatusPaid
	case WebhookEventIntentFailed:
		target = models.PaymentStatusFailed
	default:
		// Незнакомые события подтверждаем без обработки.
		logger.WithComponent("payments").Debugf("пропущено событие вебхука %q", event.Type)
		return nil
	}

	if _, err := s.tasks.GetByPaymentIntentID(ctx, event.Data.ID); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return apperror.New(apperror.ErrCodeNotFound, "задача для интента не найдена")
		}
		return err
	}

	applied, err := s.tasks.SetPaymentStatusByIntent(ctx, event.Data.ID, target)
	if err != nil {
		return err
	}
	if !applied {
		logger.WithComponent("payments").Infof("событие %s для интента %s не применено: статус уже не initiated", event.Type, event.Data.ID)
	}

	return nil
}
