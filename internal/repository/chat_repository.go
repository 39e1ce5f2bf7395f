package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/taskbazaar-backend/internal/models"
)

// ErrChatNotFound возвращается, когда чат не найден.
var ErrChatNotFound = errors.New("chat not found")

// ChatRepository отвечает за таблицы chats, chat_participants и chat_messages.
type ChatRepository struct {
	db *sqlx.DB
}

// NewChatRepository создаёт экземпляр репозитория.
func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create создаёт чат задачи вместе с начальным составом участников.
func (r *ChatRepository) Create(ctx context.Context, chat *models.Chat) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chat repository: create %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chats (task_id)
		VALUES ($1)
		ON CONFLICT (task_id) DO NOTHING
		RETURNING id, last_message, unread_count, created_at
	`

	err = tx.QueryRowxContext(ctx, query, chat.TaskID).
		Scan(&chat.ID, &chat.LastMessage, &chat.UnreadCount, &chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Конкурентное создание: чат уже есть, читаем его.
		if err := tx.QueryRowxContext(ctx,
			`SELECT id, last_message, unread_count, created_at FROM chats WHERE task_id = $1`, chat.TaskID).
			Scan(&chat.ID, &chat.LastMessage, &chat.UnreadCount, &chat.CreatedAt); err != nil {
			return fmt.Errorf("chat repository: create %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("chat repository: create %w", err)
	}

	for _, participant := range chat.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			chat.ID, participant); err != nil {
			return fmt.Errorf("chat repository: create participant %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chat repository: create %w", err)
	}

	return nil
}

// GetByTaskID возвращает чат задачи вместе с участниками.
func (r *ChatRepository) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	query := `SELECT id, task_id, last_message, unread_count, created_at FROM chats WHERE task_id = $1`

	if err := r.db.GetContext(ctx, &chat, query, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("chat repository: get by task %w", err)
	}

	if err := r.loadParticipants(ctx, &chat); err != nil {
		return nil, err
	}

	return &chat, nil
}

// GetByID возвращает чат по идентификатору вместе с участниками.
func (r *ChatRepository) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	query := `SELECT id, task_id, last_message, unread_count, created_at FROM chats WHERE id = $1`

	if err := r.db.GetContext(ctx, &chat, query, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("chat repository: get by id %w", err)
	}

	if err := r.loadParticipants(ctx, &chat); err != nil {
		return nil, err
	}

	return &chat, nil
}

// AddParticipant добавляет участника. Состав только растёт, повтор — no-op.
func (r *ChatRepository) AddParticipant(ctx context.Context, chatID, userID uuid.UUID) error {
	query := `INSERT INTO chat_participants (chat_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, chatID, userID); err != nil {
		return fmt.Errorf("chat repository: add participant %w", err)
	}
	return nil
}

// ListByParticipant возвращает чаты пользователя, свежие переписки первыми.
func (r *ChatRepository) ListByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	query := `
		SELECT c.id, c.task_id, c.last_message, c.unread_count, c.created_at,
			t.title AS task_title, t.status AS task_status
		FROM chats c
		JOIN chat_participants cp ON cp.chat_id = c.id
		JOIN tasks t ON t.id = c.task_id
		WHERE cp.user_id = $1
		ORDER BY c.last_message DESC
	`

	var chats []models.Chat
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, fmt.Errorf("chat repository: list by participant %w", err)
	}

	for i := range chats {
		if err := r.loadParticipants(ctx, &chats[i]); err != nil {
			return nil, err
		}
	}

	return chats, nil
}

// ListMessages возвращает сообщения чата в порядке добавления.
func (r *ChatRepository) ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.ChatMessage, error) {
	query := `
		SELECT id, chat_id, sender_id, content, message_type, read, created_at
		FROM chat_messages
		WHERE chat_id = $1
		ORDER BY created_at, id
	`

	var messages []models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, chatID); err != nil {
		return nil, fmt.Errorf("chat repository: list messages %w", err)
	}

	return messages, nil
}

// AppendMessage добавляет сообщение в журнал и обновляет счётчики чата.
// Журнал append-only: сообщения не редактируются и не удаляются.
func (r *ChatRepository) AppendMessage(ctx context.Context, message *models.ChatMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chat repository: append message %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chat_messages (chat_id, sender_id, content, message_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, read, created_at
	`

	if err := tx.QueryRowxContext(ctx, query,
		message.ChatID, message.SenderID, message.Content, message.MessageType,
	).Scan(&message.ID, &message.Read, &message.CreatedAt); err != nil {
		return fmt.Errorf("chat repository: append message %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET last_message = NOW(), unread_count = unread_count + 1 WHERE id = $1`,
		message.ChatID); err != nil {
		return fmt.Errorf("chat repository: append message %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chat repository: append message %w", err)
	}

	return nil
}

// MarkRead помечает чужие сообщения прочитанными и сбрасывает счётчик.
// Повторный вызов ничего не меняет.
func (r *ChatRepository) MarkRead(ctx context.Context, chatID, readerID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chat repository: mark read %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_messages SET read = TRUE WHERE chat_id = $1 AND sender_id <> $2 AND NOT read`,
		chatID, readerID); err != nil {
		return fmt.Errorf("chat repository: mark read %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET unread_count = 0 WHERE id = $1`, chatID); err != nil {
		return fmt.Errorf("chat repository: mark read %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chat repository: mark read %w", err)
	}

	return nil
}

func (r *ChatRepository) loadParticipants(ctx context.Context, chat *models.Chat) error {
	query := `SELECT user_id FROM chat_participants WHERE chat_id = $1 ORDER BY joined_at`

	var participants []uuid.UUID
	if err := r.db.SelectContext(ctx, &participants, query, chat.ID); err != nil {
		return fmt.Errorf("chat repository: load participants %w", err)
	}

	chat.Participants = participants
	return nil
}
