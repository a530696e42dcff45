package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studyhub/studyhub-backend/internal/config"
	"github.com/studyhub/studyhub-backend/internal/dto"
	"github.com/studyhub/studyhub-backend/internal/models"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: 168 * time.Hour,
	}
	return NewAuthService(newTestDB(t), cfg)
}

func TestRegisterCreatesUserWithEntitlement(t *testing.T) {
	svc := newAuthService(t)

	resp, err := svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1@example.com", resp.User.Email)

	// Sign-up provisions the free-tier entitlement row in the same
	// transaction as the user.
	var record models.Entitlement
	require.NoError(t, svc.db.First(&record, "user_id = ?", resp.User.ID).Error)
	assert.False(t, record.IsPremium)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newAuthService(t)

	_, err := svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "password2"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := newAuthService(t)

	_, err := svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "short"})
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	svc := newAuthService(t)
	_, err := svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "password1"})
	require.NoError(t, err)

	resp, err := svc.Login(&dto.LoginRequest{Email: "u1@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	_, err = svc.Login(&dto.LoginRequest{Email: "u1@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(&dto.LoginRequest{Email: "nobody@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAccessTokenCarriesSubject(t *testing.T) {
	svc := newAuthService(t)
	resp, err := svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "password1"})
	require.NoError(t, err)

	token, err := jwt.Parse(resp.AccessToken, func(tok *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, resp.User.ID.String(), claims["sub"])
	assert.Equal(t, "u1@example.com", claims["email"])
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newAuthService(t)
	reg, err := svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "password1"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(&dto.RefreshRequest{RefreshToken: reg.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken, refreshed.RefreshToken)

	// The consumed token is revoked; replaying it must fail.
	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: reg.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidToken)

	// The rotated token still works.
	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: refreshed.RefreshToken})
	assert.NoError(t, err)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc := newAuthService(t)
	reg, err := svc.Register(&dto.RegisterRequest{Email: "u1@example.com", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(&dto.LogoutRequest{RefreshToken: reg.RefreshToken}))

	_, err = svc.Refresh(&dto.RefreshRequest{RefreshToken: reg.RefreshToken})
	assert.ErrorIs(t, err, ErrInvalidToken)
}
