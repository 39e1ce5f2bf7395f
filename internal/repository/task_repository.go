package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/taskbazaar-backend/internal/models"
)

// ErrTaskNotFound возвращается, когда запись задачи не найдена.
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository отвечает за работу с таблицей tasks, включая геопоиск.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository создаёт экземпляр репозитория.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, poster_id, title, description, longitude, latitude, address, budget, images,
	rating, status, provider_id, assigned_employee_id, poster_completed, provider_completed,
	payment_status, payment_intent_id, created_at, updated_at`

// Create сохраняет новую задачу со статусом open и оплатой pending.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (poster_id, title, description, longitude, latitude, budget, images)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, status, payment_status, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		task.PosterID, task.Title, task.Description,
		task.Longitude, task.Latitude, task.Budget, pq.Array(task.Images),
	).Scan(&task.ID, &task.Status, &task.PaymentStatus, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return fmt.Errorf("task repository: create %w", err)
	}

	return nil
}

// GetByID возвращает задачу по идентификатору.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRowxContext(ctx, query, id), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task repository: get by id %w", err)
	}

	return task, nil
}

// GetByPaymentIntentID находит задачу по идентификатору платёжного интента.
func (r *TaskRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE payment_intent_id = $1`

	task, err := scanTask(r.db.QueryRowxContext(ctx, query, intentID), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task repository: get by intent %w", err)
	}

	return task, nil
}

// ListOpen возвращает все открытые задачи.
func (r *TaskRepository) ListOpen(ctx context.Context) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = 'open' ORDER BY created_at DESC`
	return r.list(ctx, query)
}

// ListByPoster возвращает задачи заказчика. Отменённые задачи скрываются,
// кроме отменённых после завершения со стороны исполнителя: их нужно видеть
// до закрытия расчёта.
func (r *TaskRepository) ListByPoster(ctx context.Context, posterID uuid.UUID) ([]models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE poster_id = $1 AND (status <> 'cancelled' OR provider_completed)
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, posterID)
}

// ListNearbyOpen возвращает открытые задачи в радиусе radiusMeters от точки,
// ближайшие первыми. Порядок задаёт геоиндекс earthdistance.
func (r *TaskRepository) ListNearbyOpen(ctx context.Context, longitude, latitude, radiusMeters float64) ([]models.Task, error) {
	query := `
		SELECT ` + taskColumns + `,
			earth_distance(ll_to_earth(latitude, longitude), ll_to_earth($1, $2)) AS distance_meters
		FROM tasks
		WHERE status = 'open'
		  AND earth_box(ll_to_earth($1, $2), $3) @> ll_to_earth(latitude, longitude)
		  AND earth_distance(ll_to_earth(latitude, longitude), ll_to_earth($1, $2)) <= $3
		ORDER BY distance_meters
	`

	rows, err := r.db.QueryxContext(ctx, query, latitude, longitude, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("task repository: list nearby %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows, true)
		if err != nil {
			return nil, fmt.Errorf("task repository: list nearby %w", err)
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

// AcceptOpen атомарно переводит открытую задачу в assigned.
// Возвращает false, если задача уже не open.
func (r *TaskRepository) AcceptOpen(ctx context.Context, taskID, providerID uuid.UUID, employeeID *uuid.UUID) (*models.Task, bool, error) {
	query := `
		UPDATE tasks
		SET status = 'assigned', provider_id = $2, assigned_employee_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING ` + taskColumns + `
	`

	task, err := scanTask(r.db.QueryRowxContext(ctx, query, taskID, providerID, employeeID), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("task repository: accept %w", err)
	}

	return task, true, nil
}

// Cancel атомарно отменяет задачу. Отмена запрещена после инициации оплаты,
// это жёсткий инвариант на уровне запроса, а не проверка с гонкой.
func (r *TaskRepository) Cancel(ctx context.Context, taskID uuid.UUID) (*models.Task, bool, error) {
	query := `
		UPDATE tasks
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('open', 'assigned') AND payment_status = 'pending'
		RETURNING ` + taskColumns + `
	`

	task, err := scanTask(r.db.QueryRowxContext(ctx, query, taskID), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("task repository: cancel %w", err)
	}

	return task, true, nil
}

// MarkCompleted переводит assigned-задачу в completed одношаговым путём,
// выставляя оба флага завершения.
func (r *TaskRepository) MarkCompleted(ctx context.Context, taskID uuid.UUID) (*models.Task, bool, error) {
	query := `
		UPDATE tasks
		SET status = 'completed', poster_completed = TRUE, provider_completed = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'assigned'
		RETURNING ` + taskColumns + `
	`

	task, err := scanTask(r.db.QueryRowxContext(ctx, query, taskID), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("task repository: mark completed %w", err)
	}

	return task, true, nil
}

// SetCompletionFlag идемпотентно выставляет флаг завершения одной из сторон.
// Когда подтверждены обе стороны, статус переходит в completed.
func (r *TaskRepository) SetCompletionFlag(ctx context.Context, taskID uuid.UUID, posterSide bool) (*models.Task, error) {
	var query string
	if posterSide {
		query = `
			UPDATE tasks
			SET poster_completed = TRUE,
				status = CASE WHEN provider_completed THEN 'completed' ELSE status END,
				updated_at = NOW()
			WHERE id = $1 AND status IN ('assigned', 'completed')
			RETURNING ` + taskColumns
	} else {
		query = `
			UPDATE tasks
			SET provider_completed = TRUE,
				status = CASE WHEN poster_completed THEN 'completed' ELSE status END,
				updated_at = NOW()
			WHERE id = $1 AND status IN ('assigned', 'completed')
			RETURNING ` + taskColumns
	}

	task, err := scanTask(r.db.QueryRowxContext(ctx, query, taskID), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("task repository: set completion flag %w", err)
	}

	return task, nil
}

// ClaimSettlement атомарно захватывает переход pending -> initiated.
// Ровно один вызов выигрывает независимо от порядка конкурентных завершений.
func (r *TaskRepository) ClaimSettlement(ctx context.Context, taskID uuid.UUID) (bool, error) {
	query := `
		UPDATE tasks
		SET payment_status = 'initiated', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending' AND poster_completed AND provider_completed
	`

	res, err := r.db.ExecContext(ctx, query, taskID)
	if err != nil {
		return false, fmt.Errorf("task repository: claim settlement %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("task repository: claim settlement %w", err)
	}

	return affected == 1, nil
}

// ReleaseSettlementClaim возвращает захват расчёта, если интент так и не был
// создан у внешнего процессора. Компенсация внутреннего сбоя, не часть
// внешней машины состояний.
func (r *TaskRepository) ReleaseSettlementClaim(ctx context.Context, taskID uuid.UUID) error {
	query := `
		UPDATE tasks
		SET payment_status = 'pending', updated_at = NOW()
		WHERE id = $1 AND payment_status = 'initiated' AND payment_intent_id IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, taskID); err != nil {
		return fmt.Errorf("task repository: release settlement claim %w", err)
	}
	return nil
}

// SetPaymentIntentID привязывает идентификатор интента внешнего процессора.
func (r *TaskRepository) SetPaymentIntentID(ctx context.Context, taskID uuid.UUID, intentID string) error {
	query := `UPDATE tasks SET payment_intent_id = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, taskID, intentID); err != nil {
		return fmt.Errorf("task repository: set payment intent %w", err)
	}
	return nil
}

// SetPaymentStatusByIntent переводит initiated -> paid|failed по вебхуку.
// Переход только вперёд: повторный вебхук не перезапишет состояние.
func (r *TaskRepository) SetPaymentStatusByIntent(ctx context.Context, intentID, status string) (bool, error) {
	query := `
		UPDATE tasks
		SET payment_status = $2, updated_at = NOW()
		WHERE payment_intent_id = $1 AND payment_status = 'initiated'
	`

	res, err := r.db.ExecContext(ctx, query, intentID, status)
	if err != nil {
		return false, fmt.Errorf("task repository: set payment status %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("task repository: set payment status %w", err)
	}

	return affected == 1, nil
}

// SetRating сохраняет оценку завершённой задачи.
func (r *TaskRepository) SetRating(ctx context.Context, taskID uuid.UUID, rating int) error {
	query := `UPDATE tasks SET rating = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, taskID, rating); err != nil {
		return fmt.Errorf("task repository: set rating %w", err)
	}
	return nil
}

// UpdateAddress кэширует результат обратного геокодирования.
func (r *TaskRepository) UpdateAddress(ctx context.Context, taskID uuid.UUID, address string) error {
	query := `UPDATE tasks SET address = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, taskID, address); err != nil {
		return fmt.Errorf("task repository: update address %w", err)
	}
	return nil
}

// ListAssignedScope возвращает задачи исполнителя и его сотрудников.
func (r *TaskRepository) ListAssignedScope(ctx context.Context, providerID uuid.UUID, employeeIDs []uuid.UUID) ([]models.Task, error) {
	ids := make([]string, 0, len(employeeIDs))
	for _, id := range employeeIDs {
		ids = append(ids, id.String())
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE provider_id = $1 OR assigned_employee_id = ANY($2)
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, providerID, pq.Array(ids))
}

// ListPosterCompleted возвращает задачи исполнителя, завершённые заказчиком,
// независимо от статуса: они ждут расчёта.
func (r *TaskRepository) ListPosterCompleted(ctx context.Context, providerID uuid.UUID) ([]models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE provider_id = $1 AND poster_completed
		ORDER BY updated_at DESC
	`
	return r.list(ctx, query, providerID)
}

// AvgProviderRating считает среднюю оценку исполнителя по завершённым задачам.
func (r *TaskRepository) AvgProviderRating(ctx context.Context, providerID uuid.UUID) (float64, int, error) {
	var avg sql.NullFloat64
	var count int
	query := `
		SELECT COALESCE(AVG(rating), 0), COUNT(rating)
		FROM tasks
		WHERE provider_id = $1 AND status = 'completed' AND rating IS NOT NULL
	`

	if err := r.db.QueryRowxContext(ctx, query, providerID).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("task repository: avg rating %w", err)
	}

	return avg.Float64, count, nil
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Task, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("task repository: list %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows, false)
		if err != nil {
			return nil, fmt.Errorf("task repository: list %w", err)
		}
		tasks = append(tasks, *task)
	}

	return tasks, rows.Err()
}

// scanTask читает строку tasks с массивом images и, опционально, дистанцией.
func scanTask(row rowScanner, withDistance bool) (*models.Task, error) {
	var task models.Task
	var images pq.StringArray

	dest := []interface{}{
		&task.ID, &task.PosterID, &task.Title, &task.Description,
		&task.Longitude, &task.Latitude, &task.Address, &task.Budget, &images,
		&task.Rating, &task.Status, &task.ProviderID, &task.AssignedEmployeeID,
		&task.PosterCompleted, &task.ProviderCompleted,
		&task.PaymentStatus, &task.PaymentIntentID, &task.CreatedAt, &task.UpdatedAt,
	}
	if withDistance {
		dest = append(dest, &task.DistanceMeters)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	task.Images = []string(images)
	return &task, nil
}
