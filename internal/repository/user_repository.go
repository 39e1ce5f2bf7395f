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

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// UserRepository отвечает за работу с таблицей users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, email, password_hash, role, services, longitude, latitude, provider_id, created_at, updated_at`

// Create создаёт нового пользователя.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role, services, longitude, latitude, provider_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	if err := r.db.QueryRowxContext(
		ctx, query,
		user.Name, user.Email, user.PasswordHash, user.Role,
		pq.Array(user.Services), user.Longitude, user.Latitude, user.ProviderID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("user repository: create %w", err)
	}

	return nil
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

// GetByID возвращает пользователя по идентификатору.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// ListEmployees возвращает всех сотрудников исполнителя.
func (r *UserRepository) ListEmployees(ctx context.Context, providerID uuid.UUID) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE provider_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryxContext(ctx, query, providerID)
	if err != nil {
		return nil, fmt.Errorf("user repository: list employees %w", err)
	}
	defer rows.Close()

	var employees []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("user repository: list employees %w", err)
		}
		employees = append(employees, *user)
	}

	return employees, rows.Err()
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	row := r.db.QueryRowxContext(ctx, query, arg)

	user, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get %w", err)
	}

	return user, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUser читает строку users с массивом services.
func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var services pq.StringArray

	if err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role,
		&services, &user.Longitude, &user.Latitude, &user.ProviderID,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	user.Services = []string(services)
	return &user, nil
}

func scanUserRow(row *sqlx.Row) (*models.User, error) {
	return scanUser(row)
}
