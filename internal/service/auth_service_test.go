package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualsign/attendance-api/internal/models"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
)

type mockAuthRepo struct {
	user          *models.User
	byUsernameErr error
	byIDErr       error
}

func (m *mockAuthRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.byUsernameErr != nil {
		return nil, m.byUsernameErr
	}
	return m.user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.byIDErr != nil {
		return nil, m.byIDErr
	}
	return m.user, nil
}

func newAuthFixture(t *testing.T, user *models.User) (*AuthService, *mockAuthRepo) {
	repo := &mockAuthRepo{user: user}
	svc := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "attendance-api",
	})
	return svc, repo
}

func TestLoginSuccess(t *testing.T) {
	user := &models.User{
		ID:           "u1",
		Username:     "zhang",
		PasswordHash: hashPassword(t, "secret"),
		FullName:     "Zhang San",
		Role:         models.RoleStudent,
		Active:       true,
	}
	svc, _ := newAuthFixture(t, user)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "zhang", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "u1", resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "attendance-api", claims.Issuer)
}

func TestLoginWrongPassword(t *testing.T) {
	user := &models.User{ID: "u1", Username: "zhang", PasswordHash: hashPassword(t, "secret"), Active: true}
	svc, _ := newAuthFixture(t, user)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "zhang", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, repo := newAuthFixture(t, nil)
	repo.byUsernameErr = sql.ErrNoRows

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "secret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := &models.User{ID: "u1", Username: "zhang", PasswordHash: hashPassword(t, "secret"), Active: false}
	svc, _ := newAuthFixture(t, user)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "zhang", Password: "secret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestVerifyPassword(t *testing.T) {
	user := &models.User{ID: "u1", PasswordHash: hashPassword(t, "secret"), Active: true}
	svc, _ := newAuthFixture(t, user)

	resp, err := svc.VerifyPassword(context.Background(), "u1", models.PasswordVerifyRequest{Password: "secret"})
	require.NoError(t, err)
	assert.True(t, resp.Valid)

	resp, err = svc.VerifyPassword(context.Background(), "u1", models.PasswordVerifyRequest{Password: "wrong"})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
}

func TestValidateTokenRejectsTampered(t *testing.T) {
	user := &models.User{ID: "u1", Username: "zhang", PasswordHash: hashPassword(t, "secret"), Active: true}
	svc, _ := newAuthFixture(t, user)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "zhang", Password: "secret"})
	require.NoError(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "other-secret", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
