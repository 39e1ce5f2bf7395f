package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/taskbazaar-backend/internal/models"
	"github.com/ignatzorin/taskbazaar-backend/internal/pkg/apperror"
	"github.com/ignatzorin/taskbazaar-backend/internal/repository"
)

type mockAuthRepo struct {
	mock.Mock
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func newAuthServiceWithMock() (*AuthService, *mockAuthRepo) {
	repo := new(mockAuthRepo)
	tokens := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
	return NewAuthService(repo, tokens), repo
}

func TestAuthService_Register_Success(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ivan@example.com").Return(nil, repository.ErrUserNotFound)
	repo.On("Create", ctx, mock.MatchedBy(func(user *models.User) bool {
		return user.Email == "ivan@example.com" &&
			user.Role == models.RoleUser &&
			user.PasswordHash != "" &&
			user.PasswordHash != "Password123!"
	})).Return(nil)

	result, err := svc.Register(ctx, RegisterInput{
		Name:     "Иван",
		Email:    "Ivan@Example.com",
		Password: "Password123!",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, result.TokenPair.AccessToken)
	assert.NotEmpty(t, result.TokenPair.RefreshToken)
	repo.AssertExpectations(t)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	existing := &models.User{ID: uuid.New(), Email: "ivan@example.com"}
	repo.On("GetByEmail", ctx, "ivan@example.com").Return(existing, nil)

	_, err := svc.Register(ctx, RegisterInput{
		Name:     "Иван",
		Email:    "ivan@example.com",
		Password: "Password123!",
	})
	assert.Error(t, err)
	assert.True(t, apperror.IsConflict(err))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthService_Register_EmployeeRequiresProvider(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "emp@example.com").Return(nil, repository.ErrUserNotFound)

	_, err := svc.Register(ctx, RegisterInput{
		Name:     "Сотрудник",
		Email:    "emp@example.com",
		Password: "Password123!",
		Role:     models.RoleProviderEmployee,
	})
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
	assert.Contains(t, err.Error(), "provider_id")
}

func TestAuthService_Register_EmployeeParentMustBeProvider(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	parentID := uuid.New()
	repo.On("GetByEmail", ctx, "emp@example.com").Return(nil, repository.ErrUserNotFound)
	repo.On("GetByID", ctx, parentID).Return(&models.User{ID: parentID, Role: models.RoleUser}, nil)

	_, err := svc.Register(ctx, RegisterInput{
		Name:       "Сотрудник",
		Email:      "emp@example.com",
		Password:   "Password123!",
		Role:       models.RoleProviderEmployee,
		ProviderID: &parentID,
	})
	assert.Error(t, err)
	assert.True(t, apperror.IsValidation(err))
}

func TestAuthService_Register_ProviderWithLocationAndServices(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	longitude, latitude := 24.8, 67.0
	repo.On("GetByEmail", ctx, "master@example.com").Return(nil, repository.ErrUserNotFound)
	repo.On("Create", ctx, mock.MatchedBy(func(user *models.User) bool {
		return user.Role == models.RoleProvider &&
			len(user.Services) == 2 &&
			user.Longitude != nil && *user.Longitude == longitude &&
			user.Latitude != nil && *user.Latitude == latitude
	})).Return(nil)

	_, err := svc.Register(ctx, RegisterInput{
		Name:      "Мастер",
		Email:     "master@example.com",
		Password:  "Password123!",
		Role:      models.RoleProvider,
		Services:  []string{"сантехника", "электрика"},
		Longitude: &longitude,
		Latitude:  &latitude,
	})
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestAuthService_Login(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("Password123!"), bcrypt.MinCost)
	assert.NoError(t, err)

	user := &models.User{ID: uuid.New(), Email: "ivan@example.com", Role: models.RoleUser, PasswordHash: string(hash)}
	repo.On("GetByEmail", ctx, "ivan@example.com").Return(user, nil)

	result, err := svc.Login(ctx, LoginInput{Email: "Ivan@example.com ", Password: "Password123!"})
	assert.NoError(t, err)
	assert.NotEmpty(t, result.TokenPair.AccessToken)

	_, err = svc.Login(ctx, LoginInput{Email: "ivan@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, repository.ErrUserNotFound)

	_, err := svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "Password123!"})
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestAuthService_Refresh(t *testing.T) {
	svc, repo := newAuthServiceWithMock()
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), Email: "ivan@example.com", Role: models.RoleUser}
	pair, err := svc.tokenManager.GeneratePair(user)
	assert.NoError(t, err)

	repo.On("GetByID", ctx, user.ID).Return(user, nil)

	result, err := svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
	assert.NotEmpty(t, result.TokenPair.AccessToken)

	_, err = svc.Refresh(ctx, "not-a-token")
	assert.Error(t, err)
}

func TestTokenManager_AccessRoundTrip(t *testing.T) {
	tokens := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleProvider}

	pair, err := tokens.GeneratePair(user)
	assert.NoError(t, err)

	userID, role, err := tokens.ParseAccess(pair.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, models.RoleProvider, role)

	// Refresh токен подписан другим секретом и не проходит как access.
	_, _, err = tokens.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
}
