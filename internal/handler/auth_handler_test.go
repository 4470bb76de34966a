package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-approval-api/internal/middleware"
	"github.com/noah-isme/attendance-approval-api/internal/models"
	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
)

type authServiceMock struct {
	login       models.LoginRequest
	loginErr    error
	registered  models.RegisterStudentRequest
	registerErr error
	loggedOut   string
	changed     *models.ChangePasswordRequest
}

func (m *authServiceMock) RegisterStudent(ctx context.Context, req models.RegisterStudentRequest) (*models.AccountInfo, error) {
	m.registered = req
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &models.AccountInfo{ID: "s1", Email: req.Email, Name: req.Name, Role: models.RoleStudent}, nil
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.login = req
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600}, nil
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (m *authServiceMock) Logout(ctx context.Context, actor *models.JWTClaims, refreshToken, ip, userAgent string) error {
	m.loggedOut = refreshToken
	return nil
}

func (m *authServiceMock) ChangePassword(ctx context.Context, actor *models.JWTClaims, req models.ChangePasswordRequest) error {
	m.changed = &req
	return nil
}

func (m *authServiceMock) Profile(ctx context.Context, actor *models.JWTClaims) (*models.AccountInfo, error) {
	return &models.AccountInfo{ID: actor.AccountID, Role: actor.Role, Name: actor.Name}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	payload, _ := json.Marshal(map[string]string{"email": "dewi@example.edu", "password": "password", "role": "coordinator"})
	c, w := newGinContext(http.MethodPost, "/auth/login", payload)
	c.Request.Header.Set("User-Agent", "handler-test")

	h.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleCoordinator, svc.login.Role)
	assert.Equal(t, "handler-test", svc.login.UserAgent)
	assert.Contains(t, w.Body.String(), `"access_token":"access"`)
}

func TestAuthHandlerLoginFailure(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{loginErr: appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email, password or role")})
	payload, _ := json.Marshal(map[string]string{"email": "x@example.edu", "password": "nope", "role": "hod"})
	c, w := newGinContext(http.MethodPost, "/auth/login", payload)

	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLoginMalformedBody(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})
	c, w := newGinContext(http.MethodPost, "/auth/login", []byte("{"))

	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerRegister(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)
	payload, _ := json.Marshal(models.RegisterStudentRequest{Name: "Siti", Department: "Informatics", Contact: "0812", Email: "siti@example.edu", Password: "secret1"})
	c, w := newGinContext(http.MethodPost, "/auth/register", payload)

	h.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "secret1", svc.registered.Password)

	svc.registerErr = appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	c, w = newGinContext(http.MethodPost, "/auth/register", payload)
	h.Register(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandlerLogoutAndChangePassword(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, w := newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"rt"}`))
	c.Set(middleware.ContextUserKey, studentClaims)
	h.Logout(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "rt", svc.loggedOut)

	c, w = newGinContext(http.MethodPost, "/auth/logout", []byte(`{}`))
	c.Set(middleware.ContextUserKey, studentClaims)
	h.Logout(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/change-password", []byte(`{"old_password":"a","new_password":"bbbbbb"}`))
	c.Set(middleware.ContextUserKey, studentClaims)
	h.ChangePassword(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "bbbbbb", svc.changed.NewPassword)
}

func TestAuthHandlerLogoutThroughEngine(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	r := gin.New()
	r.POST("/auth/logout", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, studentClaims)
		c.Next()
	}, h.Logout)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"rt-2"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "rt-2", svc.loggedOut)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	c.Set(middleware.ContextUserKey, coordinatorClaims)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"coordinator"`)
}
