package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dualsign/attendance-api/internal/models"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
)

type mockUserRepo struct {
	byUsername    *models.User
	byUsernameErr error
	byID          *models.User
	byIDErr       error
	created       *models.User
	updated       *models.User
	passwordHash  string
	deletedID     string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.byIDErr != nil {
		return nil, m.byIDErr
	}
	return m.byID, nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.byUsernameErr != nil {
		return nil, m.byUsernameErr
	}
	return m.byUsername, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = "u-new"
	m.created = user
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	m.updated = user
	return nil
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordHash = passwordHash
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.deletedID = id
	return nil
}

func validCreateUserRequest() CreateUserRequest {
	return CreateUserRequest{
		Username: "zhang",
		Email:    "Zhang@Example.com",
		Password: "secret1",
		FullName: "Zhang San",
		Role:     models.RoleStudent,
		Active:   true,
	}
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := &mockUserRepo{byUsernameErr: sql.ErrNoRows}
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Create(context.Background(), validCreateUserRequest())
	require.NoError(t, err)
	assert.Equal(t, "zhang@example.com", user.Email)
	assert.NotEqual(t, "secret1", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret1")))
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	repo := &mockUserRepo{byUsername: &models.User{ID: "u1", Username: "zhang"}}
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Create(context.Background(), validCreateUserRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestCreateUserInvalidPayload(t *testing.T) {
	repo := &mockUserRepo{byUsernameErr: sql.ErrNoRows}
	svc := NewUserService(repo, nil, nil)

	req := validCreateUserRequest()
	req.Password = "ab"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGetUserMissing(t *testing.T) {
	repo := &mockUserRepo{byIDErr: sql.ErrNoRows}
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestResetPassword(t *testing.T) {
	repo := &mockUserRepo{byID: &models.User{ID: "u1"}}
	svc := NewUserService(repo, nil, nil)

	err := svc.ResetPassword(context.Background(), "u1", "newsecret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwordHash), []byte("newsecret")))
}

func TestResetPasswordTooShort(t *testing.T) {
	repo := &mockUserRepo{byID: &models.User{ID: "u1"}}
	svc := NewUserService(repo, nil, nil)

	err := svc.ResetPassword(context.Background(), "u1", "abc")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.passwordHash)
}

func TestDeleteUserSoftDeletes(t *testing.T) {
	repo := &mockUserRepo{byID: &models.User{ID: "u1"}}
	svc := NewUserService(repo, nil, nil)

	err := svc.Delete(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", repo.deletedID)
}
