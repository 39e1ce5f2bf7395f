package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/taskbazaar-backend/internal/geo"
	"github.com/ignatzorin/taskbazaar-backend/internal/goroutine"
	"github.com/ignatzorin/taskbazaar-backend/internal/logger"
	"github.com/ignatzorin/taskbazaar-backend/internal/models"
	"github.com/ignatzorin/taskbazaar-backend/internal/payment"
	"github.com/ignatzorin/taskbazaar-backend/internal/pkg/apperror"
	"github.com/ignatzorin/taskbazaar-backend/internal/repository"
	"github.com/ignatzorin/taskbazaar-backend/internal/validation"
)

// DefaultSearchRadiusMeters — радиус геопоиска по умолчанию.
const DefaultSearchRadiusMeters = 5000.0

// SettlementCommissionRate — доля комиссии площадки при расчёте выплаты.
const SettlementCommissionRate = 0.10

// TaskStore описывает операции хранилища задач, нужные лайфциклу.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListOpen(ctx context.Context) ([]models.Task, error)
	ListByPoster(ctx context.Context, posterID uuid.UUID) ([]models.Task, error)
	ListNearbyOpen(ctx context.Context, longitude, latitude, radiusMeters float64) ([]models.Task, error)
	AcceptOpen(ctx context.Context, taskID, providerID uuid.UUID, employeeID *uuid.UUID) (*models.Task, bool, error)
	Cancel(ctx context.Context, taskID uuid.UUID) (*models.Task, bool, error)
	MarkCompleted(ctx context.Context, taskID uuid.UUID) (*models.Task, bool, error)
	SetCompletionFlag(ctx context.Context, taskID uuid.UUID, posterSide bool) (*models.Task, error)
	ClaimSettlement(ctx context.Context, taskID uuid.UUID) (bool, error)
	ReleaseSettlementClaim(ctx context.Context, taskID uuid.UUID) error
	SetPaymentIntentID(ctx context.Context, taskID uuid.UUID, intentID string) error
	SetRating(ctx context.Context, taskID uuid.UUID, rating int) error
	UpdateAddress(ctx context.Context, taskID uuid.UUID, address string) error
	ListAssignedScope(ctx context.Context, providerID uuid.UUID, employeeIDs []uuid.UUID) ([]models.Task, error)
	ListPosterCompleted(ctx context.Context, providerID uuid.UUID) ([]models.Task, error)
	AvgProviderRating(ctx context.Context, providerID uuid.UUID) (float64, int, error)
}

// TaskUserStore описывает операции хранилища пользователей, нужные лайфциклу.
type TaskUserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListEmployees(ctx context.Context, providerID uuid.UUID) ([]models.User, error)
}

// ChatCoordinator создаёт чат задачи при назначении исполнителя.
type ChatCoordinator interface {
	EnsureTaskChat(ctx context.Context, taskID uuid.UUID, participants ...uuid.UUID) error
}

// TransitionNotifier ставит email-уведомление о переходе лайфцикла.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, task *models.Task, event, recipientEmail string, actorName *string) bool
}

// TaskService управляет лайфциклом задач: создание, подбор, назначение,
// двустороннее завершение и расчёт выплаты.
type TaskService struct {
	tasks     TaskStore
	users     TaskUserStore
	chats     ChatCoordinator
	notifier  TransitionNotifier
	processor payment.Processor
	geocoder  geo.Geocoder
}

// NewTaskService создаёт сервис задач.
func NewTaskService(
	tasks TaskStore,
	users TaskUserStore,
	chats ChatCoordinator,
	notifier TransitionNotifier,
	processor payment.Processor,
	geocoder geo.Geocoder,
) *TaskService {
	return &TaskService{
		tasks:     tasks,
		users:     users,
		chats:     chats,
		notifier:  notifier,
		processor: processor,
		geocoder:  geocoder,
	}
}

// CreateTaskInput входные данные создания задачи.
type CreateTaskInput struct {
	Title       string
	Description string
	Longitude   float64
	Latitude    float64
	Budget      float64
	Images      []string
}

// CreateTask создаёт открытую задачу с оплатой pending.
func (s *TaskService) CreateTask(ctx context.Context, posterID uuid.UUID, in CreateTaskInput) (*models.Task, error) {
	if err := validation.ValidateLength("заголовок", in.Title, validation.MinTitleLength, validation.MaxTitleLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLength("описание", in.Description, validation.MinDescriptionLength, validation.MaxDescriptionLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateCoordinates(in.Longitude, in.Latitude); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateBudget(in.Budget); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}
	if len(in.Images) > validation.MaxTaskImages {
		return nil, apperror.New(apperror.ErrCodeValidation, "слишком много изображений")
	}

	task := &models.Task{
		PosterID:    posterID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Longitude:   in.Longitude,
		Latitude:    in.Latitude,
		Budget:      in.Budget,
		Images:      in.Images,
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось создать задачу")
	}

	return task, nil
}

// ListOpenTasks возвращает все открытые задачи.
func (s *TaskService) ListOpenTasks(ctx context.Context) ([]models.Task, error) {
	tasks, err := s.tasks.ListOpen(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить список задач")
	}
	return tasks, nil
}

// ListPosterTasks возвращает задачи заказчика, дополняя их адресом и средней
// оценкой назначенного исполнителя. Сбои обогащения не срывают запрос.
func (s *TaskService) ListPosterTasks(ctx context.Context, posterID uuid.UUID) ([]models.Task, error) {
	tasks, err := s.tasks.ListByPoster(ctx, posterID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось получить задачи заказчика")
	}

	avgCache := make(map[uuid.UUID]*float64)
	for i := range tasks {
		task := &tasks[i]
		s.ensureAddress(ctx, task)

		if task.ProviderID == nil {
			continue
		}
		if cached, ok := avgCache[*task.ProviderID]; ok {
			task.ProviderAvgRating = cached
			continue
		}

		avg, count, err := s.tasks.AvgProviderRating(ctx, *task.ProviderID)
		if err != nil {
			logger.WithComponent("tasks").Debugf("не удалось получить рейтинг исполнителя %s: %v", *task.ProviderID, err)
			avgCache[*task.ProviderID] = nil
			continue
		}

		var value *float64
		if count > 0 {
			rounded := math.Round(avg*10) / 10
			value = &rounded
		}
		avgCache[*task.ProviderID] = value
		task.ProviderAvgRating = value
	}

	return tasks, nil
}

// NearbyQuery параметры геопоиска. Координаты переопределяют сохранённую
// геопозицию исполнителя; сотрудники всегда наследуют геопозицию родителя.
type NearbyQuery struct {
	Longitude    *float64
	Latitude     *float64
	RadiusMeters float64
}

// FindNearby подбирает открытые задачи рядом с исполнителем, ближайшие первыми,
// с фильтром по ключевым словам услуг.
func (s *TaskService) FindNearby(ctx context.Context, actorID uuid.UUID, role string, query NearbyQuery) ([]models.Task, error) {
	if !models.IsProviderRole(role) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "геопоиск доступен только исполнителям")
	}

	profile, err := s.resolveMatchingProfile(ctx, actorID, role)
	if err != nil {
		return nil, err
	}

	longitude, latitude := profile.Longitude, profile.Latitude
	if role == models.RoleProvider && query.Longitude != nil && query.Latitude != nil {
		longitude, latitude = query.Longitude, query.Latitude
	}
	if longitude == nil || latitude == nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "у исполнителя не задана геопозиция")
	}
	if err := validation.ValidateCoordinates(*longitude, *latitude); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	radius := query.RadiusMeters
	if radius <= 0 {
		radius = DefaultSearchRadiusMeters
	}

	nearby, err := s.tasks.ListNearbyOpen(ctx, *longitude, *latitude, radius)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "геопоиск не удался")
	}

	tokens := serviceTokens(profile.Services)
	matched := make([]models.Task, 0, len(nearby))
	for _, task := range nearby {
		if matchesTokens(&task, tokens) {
			matched = append(matched, task)
		}
	}

	s.backfillAddresses(matched)

	return matched, nil
}

// resolveMatchingProfile возвращает профиль подбора: для сотрудника это
// геопозиция и услуги родительского исполнителя.
func (s *TaskService) resolveMatchingProfile(ctx context.Context, actorID uuid.UUID, role string) (*models.User, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.ErrUserNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить пользователя")
	}

	if role != models.RoleProviderEmployee {
		return actor, nil
	}

	if actor.ProviderID == nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "у сотрудника не указан исполнитель")
	}

	parent, err := s.users.GetByID(ctx, *actor.ProviderID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperror.New(apperror.ErrCodeValidation, "исполнитель сотрудника не найден")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить исполнителя")
	}

	return parent, nil
}

// Accept назначает открытую задачу исполнителю. Если принимает сотрудник,
// задача закрепляется за его родительским исполнителем, а сотрудник
// фиксируется как назначенный.
func (s *TaskService) Accept(ctx context.Context, actorID uuid.UUID, role string, taskID uuid.UUID) (*models.Task, bool, error) {
	if !models.IsProviderRole(role) {
		return nil, false, apperror.New(apperror.ErrCodeForbidden, "принимать задачи могут только исполнители")
	}

	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, false, apperror.ErrUserNotFound
		}
		return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить пользователя")
	}

	providerID := actorID
	var employeeID *uuid.UUID
	if role == models.RoleProviderEmployee {
		if actor.ProviderID == nil {
			return nil, false, apperror.New(apperror.ErrCodeValidation, "у сотрудника не указан исполнитель")
		}
		providerID = *actor.ProviderID
		employeeID = &actorID
	}

	task, ok, err := s.tasks.AcceptOpen(ctx, taskID, providerID, employeeID)
	if err != nil {
		return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось принять задачу")
	}
	if !ok {
		if _, err := s.tasks.GetByID(ctx, taskID); err != nil {
			if errors.Is(err, repository.ErrTaskNotFound) {
				return nil, false, apperror.ErrTaskNotFound
			}
			return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить задачу")
		}
		return nil, false, apperror.New(apperror.ErrCodeConflict, "задачу можно принять только в статусе open")
	}

	s.ensureChat(ctx, task)
	emailSent := s.notifyPoster(ctx, task, models.NotificationTaskAssigned, &actor.Name)

	return task, emailSent, nil
}

// UpdateStatus выполняет явный переход статуса: назначение выбранного
// исполнителя, одношаговое завершение или отмену.
func (s *TaskService) UpdateStatus(ctx context.Context, actorID uuid.UUID, role string, taskID uuid.UUID, status string, providerID *uuid.UUID) (*models.Task, bool, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, false, apperror.ErrTaskNotFound
		}
		return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить задачу")
	}

	switch status {
	case models.TaskStatusAssigned:
		return s.assignProvider(ctx, task, actorID, providerID)
	case models.TaskStatusCompleted:
		return s.completeDirect(ctx, task, actorID, role)
	case models.TaskStatusCancelled:
		return s.cancel(ctx, task, actorID, role)
	default:
		return nil, false, apperror.New(apperror.ErrCodeValidation, "недопустимый целевой статус")
	}
}

// assignProvider назначает выбранного заказчиком исполнителя на открытую задачу.
func (s *TaskService) assignProvider(ctx context.Context, task *models.Task, actorID uuid.UUID, providerID *uuid.UUID) (*models.Task, bool, error) {
	if task.PosterID != actorID {
		return nil, false, apperror.New(apperror.ErrCodeForbidden, "назначать исполнителя может только заказчик")
	}
	if providerID == nil {
		return nil, false, apperror.New(apperror.ErrCodeValidation, "не указан исполнитель")
	}

	provider, err := s.users.GetByID(ctx, *providerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, false, apperror.New(apperror.ErrCodeValidation, "исполнитель не найден")
		}
		return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить исполнителя")
	}
	if provider.Role != models.RoleProvider {
		return nil, false, apperror.New(apperror.ErrCodeValidation, "назначить можно только исполнителя")
	}

	updated, ok, err := s.tasks.AcceptOpen(ctx, task.ID, provider.ID, nil)
	if err != nil {
		return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось назначить исполнителя")
	}
	if !ok {
		return nil, false, apperror.New(apperror.ErrCodeConflict, "назначить исполнителя можно только на открытую задачу")
	}

	s.ensureChat(ctx, updated)
	emailSent := s.notifyPoster(ctx, updated, models.NotificationTaskAssigned, &provider.Name)

	return updated, emailSent, nil
}

// completeDirect одношагово завершает назначенную задачу, выставляя оба флага
// и запуская расчёт выплаты.
func (s *TaskService) completeDirect(ctx context.Context, task *models.Task, actorID uuid.UUID, role string) (*models.Task, bool, error) {
	if !s.canManage(task, actorID, role) {
		return nil, false, apperror.New(apperror.ErrCodeForbidden, "недостаточно прав для завершения задачи")
	}

	updated, ok, err := s.tasks.MarkCompleted(ctx, task.ID)
	if err != nil {
		return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось завершить задачу")
	}
	if !ok {
		return nil, false, apperror.New(apperror.ErrCodeConflict, "завершить можно только назначенную задачу")
	}

	s.settle(ctx, updated)
	emailSent := s.notifyPoster(ctx, updated, models.NotificationTaskCompleted, nil)

	return updated, emailSent, nil
}

// cancel отменяет задачу. Отмена после инициации выплаты запрещена.
func (s *TaskService) cancel(ctx context.Context, task *models.Task, actorID uuid.UUID, role string) (*models.Task, bool, error) {
	if !s.canManage(task, actorID, role) {
		return nil, false, apperror.New(apperror.ErrCodeForbidden, "недостаточно прав для отмены задачи")
	}

	updated, ok, err := s.tasks.Cancel(ctx, task.ID)
	if err != nil {
		return nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось отменить задачу")
	}
	if !ok {
		if task.PaymentStatus != models.PaymentStatusPending {
			return nil, false, apperror.New(apperror.ErrCodeConflict, "отмена недоступна после инициации выплаты")
		}
		return nil, false, apperror.New(apperror.ErrCodeConflict, "задача уже в конечном статусе")
	}

	emailSent := s.notifyPoster(ctx, updated, models.NotificationTaskCancelled, nil)

	return updated, emailSent, nil
}

// Complete подтверждает завершение со стороны актора. Когда подтверждены обе
// стороны, задача переходит в completed и запускается расчёт выплаты.
func (s *TaskService) Complete(ctx context.Context, actorID uuid.UUID, role string, taskID uuid.UUID) (*models.Task, *models.Settlement, bool, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, nil, false, apperror.ErrTaskNotFound
		}
		return nil, nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить задачу")
	}

	var posterSide bool
	switch {
	case task.PosterID == actorID:
		posterSide = true
	case s.providerSide(task, actorID, role):
		posterSide = false
	default:
		return nil, nil, false, apperror.New(apperror.ErrCodeForbidden, "подтверждать завершение могут только стороны задачи")
	}

	if task.Status != models.TaskStatusAssigned && task.Status != models.TaskStatusCompleted {
		return nil, nil, false, apperror.New(apperror.ErrCodeConflict, "подтверждать завершение можно только у назначенной задачи")
	}

	wasCompleted := task.Status == models.TaskStatusCompleted

	updated, err := s.tasks.SetCompletionFlag(ctx, taskID, posterSide)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, nil, false, apperror.New(apperror.ErrCodeConflict, "подтверждать завершение можно только у назначенной задачи")
		}
		return nil, nil, false, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось подтвердить завершение")
	}

	var settlement *models.Settlement
	var emailSent bool
	if updated.PosterCompleted && updated.ProviderCompleted {
		settlement = s.settle(ctx, updated)
		if !wasCompleted && updated.Status == models.TaskStatusCompleted {
			emailSent = s.notifyPoster(ctx, updated, models.NotificationTaskCompleted, nil)
		}
	}

	return updated, settlement, emailSent, nil
}

// Rate сохраняет оценку завершённой задачи. Оценить может только заказчик.
func (s *TaskService) Rate(ctx context.Context, actorID, taskID uuid.UUID, rating int) (*models.Task, error) {
	if err := validation.ValidateRating(rating); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, err.Error())
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, apperror.ErrTaskNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить задачу")
	}

	if task.PosterID != actorID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "оценивать задачу может только заказчик")
	}
	if task.Status != models.TaskStatusCompleted {
		return nil, apperror.New(apperror.ErrCodeConflict, "оценить можно только завершённую задачу")
	}

	if err := s.tasks.SetRating(ctx, taskID, rating); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось сохранить оценку")
	}

	task.Rating = &rating
	return task, nil
}

// GetAssignedTasks возвращает картину занятости исполнителя: сотрудников с их
// статусом, задачи в зоне ответственности и задачи, подтверждённые заказчиком.
func (s *TaskService) GetAssignedTasks(ctx context.Context, actorID uuid.UUID, role string) (*models.AssignedTasksOverview, error) {
	if role != models.RoleProvider {
		return nil, apperror.New(apperror.ErrCodeForbidden, "доступно только исполнителям")
	}

	employees, err := s.users.ListEmployees(ctx, actorID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить сотрудников")
	}

	employeeIDs := make([]uuid.UUID, 0, len(employees))
	for _, employee := range employees {
		employeeIDs = append(employeeIDs, employee.ID)
	}

	tasks, err := s.tasks.ListAssignedScope(ctx, actorID, employeeIDs)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить задачи")
	}

	completed, err := s.tasks.ListPosterCompleted(ctx, actorID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "не удалось загрузить завершённые задачи")
	}

	busy := make(map[uuid.UUID]bool)
	for _, task := range tasks {
		if task.Status == models.TaskStatusAssigned && task.AssignedEmployeeID != nil {
			busy[*task.AssignedEmployeeID] = true
		}
	}

	statuses := make([]models.EmployeeStatus, 0, len(employees))
	for _, employee := range employees {
		status := models.EmployeeStatusFree
		if busy[employee.ID] {
			status = models.EmployeeStatusAtWork
		}
		statuses = append(statuses, models.EmployeeStatus{Employee: employee, Status: status})
	}

	return &models.AssignedTasksOverview{
		Employees:          statuses,
		Tasks:              tasks,
		UserCompletedTasks: completed,
	}, nil
}

// canManage проверяет права на управляющие переходы: заказчик, закреплённый
// исполнитель или назначенный сотрудник.
func (s *TaskService) canManage(task *models.Task, actorID uuid.UUID, role string) bool {
	return task.PosterID == actorID || s.providerSide(task, actorID, role)
}

// providerSide сообщает, действует ли актор со стороны исполнителя задачи.
func (s *TaskService) providerSide(task *models.Task, actorID uuid.UUID, role string) bool {
	if task.ProviderID != nil && *task.ProviderID == actorID {
		return true
	}
	if role == models.RoleProviderEmployee && task.AssignedEmployeeID != nil && *task.AssignedEmployeeID == actorID {
		return true
	}
	return false
}

// settle выполняет расчёт выплаты ровно один раз: захватывает переход
// pending -> initiated и создаёт платёжный интент. При сбое процессора захват
// возвращается, чтобы следующее подтверждение повторило расчёт.
func (s *TaskService) settle(ctx context.Context, task *models.Task) *models.Settlement {
	claimed, err := s.tasks.ClaimSettlement(ctx, task.ID)
	if err != nil {
		logger.WithComponent("tasks").Errorf("не удалось захватить расчёт задачи %s: %v", task.ID, err)
		return nil
	}
	if !claimed {
		return nil
	}

	amount := task.Budget
	commission := math.Round(amount*SettlementCommissionRate*100) / 100

	intentID, err := s.processor.CreateIntent(ctx, task.ID, amount, commission)
	if err != nil {
		logger.WithComponent("tasks").Errorf("не удалось создать платёжный интент задачи %s: %v", task.ID, err)
		if releaseErr := s.tasks.ReleaseSettlementClaim(ctx, task.ID); releaseErr != nil {
			logger.WithComponent("tasks").Errorf("не удалось вернуть захват расчёта задачи %s: %v", task.ID, releaseErr)
		}
		return nil
	}

	if err := s.tasks.SetPaymentIntentID(ctx, task.ID, intentID); err != nil {
		// Без сохранённого id интент недостижим для вебхука: возвращаем
		// захват, чтобы следующее подтверждение повторило расчёт.
		logger.WithComponent("tasks").Errorf("не удалось сохранить интент задачи %s: %v", task.ID, err)
		if releaseErr := s.tasks.ReleaseSettlementClaim(ctx, task.ID); releaseErr != nil {
			logger.WithComponent("tasks").Errorf("не удалось вернуть захват расчёта задачи %s: %v", task.ID, releaseErr)
		}
		return nil
	}

	task.PaymentStatus = models.PaymentStatusInitiated
	task.PaymentIntentID = &intentID

	return &models.Settlement{
		TaskID:     task.ID,
		Amount:     amount,
		Commission: commission,
		IntentID:   intentID,
	}
}

// ensureChat создаёт чат задачи с её сторонами. Сбой логируется и не
// откатывает назначение.
func (s *TaskService) ensureChat(ctx context.Context, task *models.Task) {
	if s.chats == nil {
		return
	}

	participants := []uuid.UUID{task.PosterID}
	if task.ProviderID != nil {
		participants = append(participants, *task.ProviderID)
	}
	if task.AssignedEmployeeID != nil {
		participants = append(participants, *task.AssignedEmployeeID)
	}

	if err := s.chats.EnsureTaskChat(ctx, task.ID, participants...); err != nil {
		logger.WithComponent("tasks").Warnf("не удалось создать чат задачи %s: %v", task.ID, err)
	}
}

// notifyPoster ставит уведомление заказчику о переходе лайфцикла.
func (s *TaskService) notifyPoster(ctx context.Context, task *models.Task, event string, actorName *string) bool {
	if s.notifier == nil {
		return false
	}

	poster, err := s.users.GetByID(ctx, task.PosterID)
	if err != nil {
		logger.WithComponent("tasks").Warnf("не удалось загрузить заказчика задачи %s: %v", task.ID, err)
		return false
	}

	return s.notifier.NotifyTransition(ctx, task, event, poster.Email, actorName)
}

// ensureAddress лениво резолвит и кэширует адрес задачи. Сбой геокодера
// допустим: адрес останется пустым до следующей попытки.
func (s *TaskService) ensureAddress(ctx context.Context, task *models.Task) {
	if task.Address != nil || s.geocoder == nil {
		return
	}

	address, err := s.geocoder.Reverse(ctx, task.Latitude, task.Longitude)
	if err != nil {
		logger.WithComponent("tasks").Debugf("обратное геокодирование задачи %s не удалось: %v", task.ID, err)
		return
	}

	task.Address = &address
	if err := s.tasks.UpdateAddress(ctx, task.ID, address); err != nil {
		logger.WithComponent("tasks").Debugf("не удалось сохранить адрес задачи %s: %v", task.ID, err)
	}
}

// backfillAddresses дорезолвивает адреса найденных задач в фоне, не
// задерживая ответ геопоиска.
func (s *TaskService) backfillAddresses(tasks []models.Task) {
	if s.geocoder == nil {
		return
	}

	pending := make([]models.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Address == nil {
			pending = append(pending, task)
		}
	}
	if len(pending) == 0 {
		return
	}

	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(pending)+30)*time.Second)
		defer cancel()

		for i := range pending {
			s.ensureAddress(ctx, &pending[i])
		}
	})
}

// serviceTokens разбивает ключевые слова услуг на токены для подбора.
func serviceTokens(services []string) []string {
	var tokens []string
	for _, service := range services {
		tokens = append(tokens, strings.Fields(strings.ToLower(service))...)
	}
	return tokens
}

// matchesTokens проверяет пересечение токенов услуг с текстом задачи.
// Исполнитель без ключевых слов видит все задачи в радиусе.
func matchesTokens(task *models.Task, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}

	haystack := strings.ToLower(task.Title + " " + task.Description)
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}
