package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/taskbazaar-backend/internal/models"
	"github.com/ignatzorin/taskbazaar-backend/internal/pkg/apperror"
)

type mockTaskStore struct {
	mock.Mock
}

func (m *mockTaskStore) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *mockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskStore) ListOpen(ctx context.Context) ([]models.Task, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *mockTaskStore) ListByPoster(ctx context.Context, posterID uuid.UUID) ([]models.Task, error) {
	args := m.Called(ctx, posterID)
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *mockTaskStore) ListNearbyOpen(ctx context.Context, longitude, latitude, radiusMeters float64) ([]models.Task, error) {
	args := m.Called(ctx, longitude, latitude, radiusMeters)
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *mockTaskStore) AcceptOpen(ctx context.Context, taskID, providerID uuid.UUID, employeeID *uuid.UUID) (*models.Task, bool, error) {
	args := m.Called(ctx, taskID, providerID, employeeID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Task), args.Bool(1), args.Error(2)
}

func (m *mockTaskStore) Cancel(ctx context.Context, taskID uuid.UUID) (*models.Task, bool, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Task), args.Bool(1), args.Error(2)
}

func (m *mockTaskStore) MarkCompleted(ctx context.Context, taskID uuid.UUID) (*models.Task, bool, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Task), args.Bool(1), args.Error(2)
}

func (m *mockTaskStore) SetCompletionFlag(ctx context.Context, taskID uuid.UUID, posterSide bool) (*models.Task, error) {
	args := m.Called(ctx, taskID, posterSide)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *mockTaskStore) ClaimSettlement(ctx context.Context, taskID uuid.UUID) (bool, error) {
	args := m.Called(ctx, taskID)
	return args.Bool(0), args.Error(1)
}

func (m *mockTaskStore) ReleaseSettlementClaim(ctx context.Context, taskID uuid.UUID) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *mockTaskStore) SetPaymentIntentID(ctx context.Context, taskID uuid.UUID, intentID string) error {
	args := m.Called(ctx, taskID, intentID)
	return args.Error(0)
}

func (m *mockTaskStore) SetRating(ctx context.Context, taskID uuid.UUID, rating int) error {
	args := m.Called(ctx, taskID, rating)
	return args.Error(0)
}

func (m *mockTaskStore) UpdateAddress(ctx context.Context, taskID uuid.UUID, address string) error {
	args := m.Called(ctx, taskID, address)
	return args.Error(0)
}

func (m *mockTaskStore) ListAssignedScope(ctx context.Context, providerID uuid.UUID, employeeIDs []uuid.UUID) ([]models.Task, error) {
	args := m.Called(ctx, providerID, employeeIDs)
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *mockTaskStore) ListPosterCompleted(ctx context.Context, providerID uuid.UUID) ([]models.Task, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]models.Task), args.Error(1)
}

func (m *mockTaskStore) AvgProviderRating(ctx context.Context, providerID uuid.UUID) (float64, int, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).(float64), args.Int(1), args.Error(2)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) ListEmployees(ctx context.Context, providerID uuid.UUID) ([]models.User, error) {
	args := m.Called(ctx, providerID)
	return args.Get(0).([]models.User), args.Error(1)
}

// fakeChatCoordinator фиксирует вызовы создания чата.
type fakeChatCoordinator struct {
	taskID       uuid.UUID
	participants []uuid.UUID
	calls        int
}

func (f *fakeChatCoordinator) EnsureTaskChat(ctx context.Context, taskID uuid.UUID, participants ...uuid.UUID) error {
	f.taskID = taskID
	f.participants = participants
	f.calls++
	return nil
}

// fakeNotifier фиксирует поставленные уведомления.
type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) NotifyTransition(ctx context.Context, task *models.Task, event, recipientEmail string, actorName *string) bool {
	f.events = append(f.events, event)
	return true
}

// fakeProcessor возвращает фиксированный интент или ошибку.
type fakeProcessor struct {
	intentID   string
	err        error
	amount     float64
	commission float64
	calls      int
}

func (f *fakeProcessor) CreateIntent(ctx context.Context, taskID uuid.UUID, amount, commission float64) (string, error) {
	f.calls++
	f.amount = amount
	f.commission = commission
	if f.err != nil {
		return "", f.err
	}
	return f.intentID, nil
}

func ptrF(v float64) *float64 { return &v }

func TestTaskService_FindNearby_FiltersByServices(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	providerID := uuid.New()
	provider := &models.User{
		ID:        providerID,
		Role:      models.RoleProvider,
		Services:  []string{"сантехника", "электрика"},
		Longitude: ptrF(24.8),
		Latitude:  ptrF(67.0),
	}
	users.On("GetByID", ctx, providerID).Return(provider, nil)

	nearby := []models.Task{
		{ID: uuid.New(), Title: "Починить кран", Description: "Течёт кран на кухне, нужна сантехника"},
		{ID: uuid.New(), Title: "Выгулять собаку", Description: "Два раза в день"},
		{ID: uuid.New(), Title: "Электрика в ванной", Description: "Заменить проводку"},
	}
	tasks.On("ListNearbyOpen", ctx, 24.8, 67.0, DefaultSearchRadiusMeters).Return(nearby, nil)

	matched, err := svc.FindNearby(ctx, providerID, models.RoleProvider, NearbyQuery{})
	assert.NoError(t, err)
	assert.Len(t, matched, 2)
	assert.Equal(t, "Починить кран", matched[0].Title)
	assert.Equal(t, "Электрика в ванной", matched[1].Title)
	tasks.AssertExpectations(t)
}

func TestTaskService_FindNearby_EmployeeInheritsProviderProfile(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	providerID := uuid.New()
	employeeID := uuid.New()
	employee := &models.User{ID: employeeID, Role: models.RoleProviderEmployee, ProviderID: &providerID}
	provider := &models.User{
		ID:        providerID,
		Role:      models.RoleProvider,
		Services:  []string{"уборка"},
		Longitude: ptrF(30.3),
		Latitude:  ptrF(59.9),
	}
	users.On("GetByID", ctx, employeeID).Return(employee, nil)
	users.On("GetByID", ctx, providerID).Return(provider, nil)

	// Координаты в запросе для сотрудника игнорируются: ищем от родителя.
	override := NearbyQuery{Longitude: ptrF(0), Latitude: ptrF(0)}
	tasks.On("ListNearbyOpen", ctx, 30.3, 59.9, DefaultSearchRadiusMeters).
		Return([]models.Task{{ID: uuid.New(), Title: "Уборка квартиры", Description: "Двушка"}}, nil)

	matched, err := svc.FindNearby(ctx, employeeID, models.RoleProviderEmployee, override)
	assert.NoError(t, err)
	assert.Len(t, matched, 1)
	tasks.AssertExpectations(t)
}

func TestTaskService_FindNearby_RejectsNonProvider(t *testing.T) {
	svc := NewTaskService(new(mockTaskStore), new(mockUserStore), nil, nil, &fakeProcessor{}, nil)

	_, err := svc.FindNearby(context.Background(), uuid.New(), models.RoleUser, NearbyQuery{})
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestTaskService_FindNearby_RequiresLocation(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	providerID := uuid.New()
	users.On("GetByID", ctx, providerID).Return(&models.User{ID: providerID, Role: models.RoleProvider}, nil)

	_, err := svc.FindNearby(ctx, providerID, models.RoleProvider, NearbyQuery{})
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestTaskService_Accept_CreatesChatAndNotifies(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	chats := &fakeChatCoordinator{}
	notifier := &fakeNotifier{}
	svc := NewTaskService(tasks, users, chats, notifier, &fakeProcessor{}, nil)
	ctx := context.Background()

	posterID := uuid.New()
	providerID := uuid.New()
	taskID := uuid.New()

	users.On("GetByID", ctx, providerID).Return(&models.User{ID: providerID, Name: "Иван", Role: models.RoleProvider}, nil)
	users.On("GetByID", ctx, posterID).Return(&models.User{ID: posterID, Email: "poster@example.com"}, nil)

	assigned := &models.Task{ID: taskID, PosterID: posterID, ProviderID: &providerID, Status: models.TaskStatusAssigned}
	tasks.On("AcceptOpen", ctx, taskID, providerID, (*uuid.UUID)(nil)).Return(assigned, true, nil)

	task, emailSent, err := svc.Accept(ctx, providerID, models.RoleProvider, taskID)
	assert.NoError(t, err)
	assert.True(t, emailSent)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)
	assert.Nil(t, task.AssignedEmployeeID)

	assert.Equal(t, 1, chats.calls)
	assert.Equal(t, taskID, chats.taskID)
	assert.Equal(t, []uuid.UUID{posterID, providerID}, chats.participants)
	assert.Equal(t, []string{models.NotificationTaskAssigned}, notifier.events)
}

func TestTaskService_Accept_EmployeeBindsParentProvider(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	chats := &fakeChatCoordinator{}
	svc := NewTaskService(tasks, users, chats, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	posterID := uuid.New()
	providerID := uuid.New()
	employeeID := uuid.New()
	taskID := uuid.New()

	users.On("GetByID", ctx, employeeID).
		Return(&models.User{ID: employeeID, Role: models.RoleProviderEmployee, ProviderID: &providerID}, nil)

	assigned := &models.Task{
		ID:                 taskID,
		PosterID:           posterID,
		ProviderID:         &providerID,
		AssignedEmployeeID: &employeeID,
		Status:             models.TaskStatusAssigned,
	}
	tasks.On("AcceptOpen", ctx, taskID, providerID, &employeeID).Return(assigned, true, nil)

	task, _, err := svc.Accept(ctx, employeeID, models.RoleProviderEmployee, taskID)
	assert.NoError(t, err)
	assert.Equal(t, providerID, *task.ProviderID)
	assert.Equal(t, employeeID, *task.AssignedEmployeeID)
	assert.Equal(t, []uuid.UUID{posterID, providerID, employeeID}, chats.participants)
}

func TestTaskService_Accept_ConflictWhenNotOpen(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	providerID := uuid.New()
	taskID := uuid.New()

	users.On("GetByID", ctx, providerID).Return(&models.User{ID: providerID, Role: models.RoleProvider}, nil)
	tasks.On("AcceptOpen", ctx, taskID, providerID, (*uuid.UUID)(nil)).Return(nil, false, nil)
	tasks.On("GetByID", ctx, taskID).Return(&models.Task{ID: taskID, Status: models.TaskStatusAssigned}, nil)

	_, _, err := svc.Accept(ctx, providerID, models.RoleProvider, taskID)
	assert.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
}

func TestTaskService_Complete_DualConfirmationSettles(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	notifier := &fakeNotifier{}
	processor := &fakeProcessor{intentID: "pi_test_1"}
	svc := NewTaskService(tasks, users, nil, notifier, processor, nil)
	ctx := context.Background()

	posterID := uuid.New()
	providerID := uuid.New()
	taskID := uuid.New()

	current := &models.Task{
		ID:                taskID,
		PosterID:          posterID,
		ProviderID:        &providerID,
		Status:            models.TaskStatusAssigned,
		Budget:            500,
		ProviderCompleted: true,
		PaymentStatus:     models.PaymentStatusPending,
	}
	tasks.On("GetByID", ctx, taskID).Return(current, nil)

	both := &models.Task{
		ID:                taskID,
		PosterID:          posterID,
		ProviderID:        &providerID,
		Status:            models.TaskStatusCompleted,
		Budget:            500,
		PosterCompleted:   true,
		ProviderCompleted: true,
		PaymentStatus:     models.PaymentStatusPending,
	}
	tasks.On("SetCompletionFlag", ctx, taskID, true).Return(both, nil)
	tasks.On("ClaimSettlement", ctx, taskID).Return(true, nil)
	tasks.On("SetPaymentIntentID", ctx, taskID, "pi_test_1").Return(nil)
	users.On("GetByID", ctx, posterID).Return(&models.User{ID: posterID, Email: "poster@example.com"}, nil)

	task, settlement, emailSent, err := svc.Complete(ctx, posterID, models.RoleUser, taskID)
	assert.NoError(t, err)
	assert.True(t, emailSent)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)

	assert.NotNil(t, settlement)
	assert.Equal(t, 500.0, settlement.Amount)
	assert.Equal(t, 50.0, settlement.Commission)
	assert.Equal(t, "pi_test_1", settlement.IntentID)
	assert.Equal(t, models.PaymentStatusInitiated, task.PaymentStatus)
	tasks.AssertExpectations(t)
}

func TestTaskService_Complete_SingleSideDoesNotSettle(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	processor := &fakeProcessor{intentID: "pi_never"}
	svc := NewTaskService(tasks, users, nil, nil, processor, nil)
	ctx := context.Background()

	posterID := uuid.New()
	providerID := uuid.New()
	taskID := uuid.New()

	current := &models.Task{ID: taskID, PosterID: posterID, ProviderID: &providerID, Status: models.TaskStatusAssigned}
	tasks.On("GetByID", ctx, taskID).Return(current, nil)

	oneSide := &models.Task{
		ID: taskID, PosterID: posterID, ProviderID: &providerID,
		Status: models.TaskStatusAssigned, ProviderCompleted: true,
	}
	tasks.On("SetCompletionFlag", ctx, taskID, false).Return(oneSide, nil)

	task, settlement, emailSent, err := svc.Complete(ctx, providerID, models.RoleProvider, taskID)
	assert.NoError(t, err)
	assert.Nil(t, settlement)
	assert.False(t, emailSent)
	assert.Equal(t, models.TaskStatusAssigned, task.Status)
	assert.Equal(t, 0, processor.calls)
}

func TestTaskService_Complete_SecondSettleLosesClaim(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	processor := &fakeProcessor{intentID: "pi_dup"}
	svc := NewTaskService(tasks, users, nil, nil, processor, nil)
	ctx := context.Background()

	posterID := uuid.New()
	providerID := uuid.New()
	taskID := uuid.New()

	current := &models.Task{
		ID: taskID, PosterID: posterID, ProviderID: &providerID,
		Status: models.TaskStatusCompleted, PosterCompleted: true, ProviderCompleted: true,
		PaymentStatus: models.PaymentStatusInitiated,
	}
	tasks.On("GetByID", ctx, taskID).Return(current, nil)
	tasks.On("SetCompletionFlag", ctx, taskID, true).Return(current, nil)
	tasks.On("ClaimSettlement", ctx, taskID).Return(false, nil)

	_, settlement, _, err := svc.Complete(ctx, posterID, models.RoleUser, taskID)
	assert.NoError(t, err)
	assert.Nil(t, settlement)
	assert.Equal(t, 0, processor.calls)
}

func TestTaskService_Complete_ProcessorFailureReleasesClaim(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	processor := &fakeProcessor{err: errors.New("processor down")}
	svc := NewTaskService(tasks, users, nil, nil, processor, nil)
	ctx := context.Background()

	posterID := uuid.New()
	providerID := uuid.New()
	taskID := uuid.New()

	current := &models.Task{ID: taskID, PosterID: posterID, ProviderID: &providerID, Status: models.TaskStatusAssigned, Budget: 100}
	tasks.On("GetByID", ctx, taskID).Return(current, nil)

	both := &models.Task{
		ID: taskID, PosterID: posterID, ProviderID: &providerID, Budget: 100,
		Status: models.TaskStatusCompleted, PosterCompleted: true, ProviderCompleted: true,
		PaymentStatus: models.PaymentStatusPending,
	}
	tasks.On("SetCompletionFlag", ctx, taskID, true).Return(both, nil)
	tasks.On("ClaimSettlement", ctx, taskID).Return(true, nil)
	tasks.On("ReleaseSettlementClaim", ctx, taskID).Return(nil)

	_, settlement, _, err := svc.Complete(ctx, posterID, models.RoleUser, taskID)
	assert.NoError(t, err)
	assert.Nil(t, settlement)
	tasks.AssertCalled(t, "ReleaseSettlementClaim", ctx, taskID)
}

func TestTaskService_Complete_IntentWriteFailureReleasesClaim(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	processor := &fakeProcessor{intentID: "pi_orphan"}
	svc := NewTaskService(tasks, users, nil, nil, processor, nil)
	ctx := context.Background()

	posterID := uuid.New()
	providerID := uuid.New()
	taskID := uuid.New()

	current := &models.Task{ID: taskID, PosterID: posterID, ProviderID: &providerID, Status: models.TaskStatusAssigned, Budget: 200}
	tasks.On("GetByID", ctx, taskID).Return(current, nil)

	both := &models.Task{
		ID: taskID, PosterID: posterID, ProviderID: &providerID, Budget: 200,
		Status: models.TaskStatusCompleted, PosterCompleted: true, ProviderCompleted: true,
		PaymentStatus: models.PaymentStatusPending,
	}
	tasks.On("SetCompletionFlag", ctx, taskID, true).Return(both, nil)
	tasks.On("ClaimSettlement", ctx, taskID).Return(true, nil)
	tasks.On("SetPaymentIntentID", ctx, taskID, "pi_orphan").Return(errors.New("db down"))
	// Интент без сохранённого id недостижим для вебхука: захват возвращается.
	tasks.On("ReleaseSettlementClaim", ctx, taskID).Return(nil)

	_, settlement, _, err := svc.Complete(ctx, posterID, models.RoleUser, taskID)
	assert.NoError(t, err)
	assert.Nil(t, settlement)
	assert.Equal(t, models.PaymentStatusPending, both.PaymentStatus)
	tasks.AssertCalled(t, "ReleaseSettlementClaim", ctx, taskID)
}

func TestTaskService_Complete_ForbiddenForOutsider(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	taskID := uuid.New()
	providerID := uuid.New()
	tasks.On("GetByID", ctx, taskID).
		Return(&models.Task{ID: taskID, PosterID: uuid.New(), ProviderID: &providerID, Status: models.TaskStatusAssigned}, nil)

	_, _, _, err := svc.Complete(ctx, uuid.New(), models.RoleProvider, taskID)
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestTaskService_UpdateStatus_CancelAfterInitiationRejected(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	posterID := uuid.New()
	taskID := uuid.New()

	current := &models.Task{
		ID: taskID, PosterID: posterID,
		Status: models.TaskStatusAssigned, PaymentStatus: models.PaymentStatusInitiated,
	}
	tasks.On("GetByID", ctx, taskID).Return(current, nil)
	tasks.On("Cancel", ctx, taskID).Return(nil, false, nil)

	_, _, err := svc.UpdateStatus(ctx, posterID, models.RoleUser, taskID, models.TaskStatusCancelled, nil)
	assert.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	assert.Contains(t, err.Error(), "инициации")
}

func TestTaskService_UpdateStatus_RejectsUnknownTarget(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	posterID := uuid.New()
	taskID := uuid.New()
	tasks.On("GetByID", ctx, taskID).Return(&models.Task{ID: taskID, PosterID: posterID, Status: models.TaskStatusOpen}, nil)

	_, _, err := svc.UpdateStatus(ctx, posterID, models.RoleUser, taskID, "archived", nil)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestTaskService_Rate_Validation(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	_, err := svc.Rate(ctx, uuid.New(), uuid.New(), 6)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Rate(ctx, uuid.New(), uuid.New(), 0)
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestTaskService_Rate_OnlyPosterOfCompletedTask(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	posterID := uuid.New()
	taskID := uuid.New()

	completed := &models.Task{ID: taskID, PosterID: posterID, Status: models.TaskStatusCompleted}
	tasks.On("GetByID", ctx, taskID).Return(completed, nil)

	_, err := svc.Rate(ctx, uuid.New(), taskID, 5)
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))

	tasks.On("SetRating", ctx, taskID, 5).Return(nil)
	task, err := svc.Rate(ctx, posterID, taskID, 5)
	assert.NoError(t, err)
	assert.Equal(t, 5, *task.Rating)
}

func TestTaskService_Rate_ConflictWhenNotCompleted(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	posterID := uuid.New()
	taskID := uuid.New()
	tasks.On("GetByID", ctx, taskID).Return(&models.Task{ID: taskID, PosterID: posterID, Status: models.TaskStatusAssigned}, nil)

	_, err := svc.Rate(ctx, posterID, taskID, 4)
	assert.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
}

func TestTaskService_GetAssignedTasks_DerivesEmployeeStatus(t *testing.T) {
	tasks := new(mockTaskStore)
	users := new(mockUserStore)
	svc := NewTaskService(tasks, users, nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()

	providerID := uuid.New()
	busyID := uuid.New()
	freeID := uuid.New()

	employees := []models.User{
		{ID: busyID, Name: "Занятый"},
		{ID: freeID, Name: "Свободный"},
	}
	users.On("ListEmployees", ctx, providerID).Return(employees, nil)

	scope := []models.Task{
		{ID: uuid.New(), Status: models.TaskStatusAssigned, ProviderID: &providerID, AssignedEmployeeID: &busyID},
		{ID: uuid.New(), Status: models.TaskStatusCompleted, ProviderID: &providerID, AssignedEmployeeID: &freeID},
	}
	tasks.On("ListAssignedScope", ctx, providerID, []uuid.UUID{busyID, freeID}).Return(scope, nil)
	tasks.On("ListPosterCompleted", ctx, providerID).Return([]models.Task{}, nil)

	overview, err := svc.GetAssignedTasks(ctx, providerID, models.RoleProvider)
	assert.NoError(t, err)
	assert.Len(t, overview.Employees, 2)
	assert.Equal(t, models.EmployeeStatusAtWork, overview.Employees[0].Status)
	assert.Equal(t, models.EmployeeStatusFree, overview.Employees[1].Status)
}

func TestTaskService_GetAssignedTasks_ProviderOnly(t *testing.T) {
	svc := NewTaskService(new(mockTaskStore), new(mockUserStore), nil, nil, &fakeProcessor{}, nil)

	_, err := svc.GetAssignedTasks(context.Background(), uuid.New(), models.RoleUser)
	assert.Error(t, err)
	assert.True(t, apperror.IsForbidden(err))
}

func TestTaskService_CreateTask_Validation(t *testing.T) {
	tasks := new(mockTaskStore)
	svc := NewTaskService(tasks, new(mockUserStore), nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()
	posterID := uuid.New()

	_, err := svc.CreateTask(ctx, posterID, CreateTaskInput{Title: "ок", Description: "достаточно длинно", Budget: 100})
	assert.True(t, apperror.IsValidation(err), "короткий заголовок должен отклоняться")

	_, err = svc.CreateTask(ctx, posterID, CreateTaskInput{Title: "Починить кран", Description: "Течёт", Longitude: 200, Latitude: 0, Budget: 100})
	assert.True(t, apperror.IsValidation(err), "долгота вне диапазона должна отклоняться")

	_, err = svc.CreateTask(ctx, posterID, CreateTaskInput{Title: "Починить кран", Description: "Течёт", Longitude: 24.8, Latitude: 67.0, Budget: -5})
	assert.True(t, apperror.IsValidation(err), "отрицательный бюджет должен отклоняться")
}

func TestTaskService_CreateTask_Success(t *testing.T) {
	tasks := new(mockTaskStore)
	svc := NewTaskService(tasks, new(mockUserStore), nil, nil, &fakeProcessor{}, nil)
	ctx := context.Background()
	posterID := uuid.New()

	tasks.On("Create", ctx, mock.MatchedBy(func(task *models.Task) bool {
		return task.PosterID == posterID && task.Title == "Починить кран" && task.Budget == 500.0
	})).Return(nil)

	_, err := svc.CreateTask(ctx, posterID, CreateTaskInput{
		Title:       "Починить кран",
		Description: "Течёт кран на кухне",
		Longitude:   24.8,
		Latitude:    67.0,
		Budget:      500,
	})
	assert.NoError(t, err)
	tasks.AssertExpectations(t)
}
