package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/taskbazaar-backend/internal/models"
)

// OutboxRepository хранит намерения email-уведомлений до их отправки.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository создаёт экземпляр репозитория.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue кладёт намерение уведомления в outbox.
func (r *OutboxRepository) Enqueue(ctx context.Context, intent *models.NotificationIntent) error {
	query := `
		INSERT INTO notification_outbox (task_id, recipient_email, event, task_title, actor_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, attempts, created_at
	`

	if err := r.db.QueryRowxContext(ctx, query,
		intent.TaskID, intent.RecipientEmail, intent.Event, intent.TaskTitle, intent.ActorName,
	).Scan(&intent.ID, &intent.Attempts, &intent.CreatedAt); err != nil {
		return fmt.Errorf("outbox repository: enqueue %w", err)
	}

	return nil
}

// ListPending возвращает неотправленные намерения, старые первыми.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]models.NotificationIntent, error) {
	query := `
		SELECT id, task_id, recipient_email, event, task_title, actor_name, attempts, sent_at, created_at
		FROM notification_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`

	var intents []models.NotificationIntent
	if err := r.db.SelectContext(ctx, &intents, query, limit); err != nil {
		return nil, fmt.Errorf("outbox repository: list pending %w", err)
	}

	return intents, nil
}

// MarkSent фиксирует успешную отправку.
func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notification_outbox SET sent_at = NOW(), attempts = attempts + 1 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("outbox repository: mark sent %w", err)
	}
	return nil
}

// MarkFailed увеличивает счётчик попыток, намерение останется в очереди.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE notification_outbox SET attempts = attempts + 1 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("outbox repository: mark failed %w", err)
	}
	return nil
}
