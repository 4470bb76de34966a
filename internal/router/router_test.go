package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-approval-api/internal/dto"
	"github.com/noah-isme/attendance-approval-api/internal/handler"
	"github.com/noah-isme/attendance-approval-api/internal/models"
	"github.com/noah-isme/attendance-approval-api/internal/service"
	"github.com/noah-isme/attendance-approval-api/pkg/config"
	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tokenStub map[string]*models.JWTClaims

func (t tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type requestsStub struct {
	listed     bool
	openedWith *models.JWTClaims
}

func (s *requestsStub) Submit(ctx context.Context, actor *models.JWTClaims, req dto.SubmitRequest, attachment *dto.AttachmentUpload) (*models.Request, error) {
	return &models.Request{ID: 1, StudentID: actor.AccountID, Status: models.RequestStatusPending}, nil
}

func (s *requestsStub) Decide(ctx context.Context, actor *models.JWTClaims, id int64, req dto.DecisionRequest) (*dto.DecisionResult, error) {
	return &dto.DecisionResult{Request: models.Request{ID: id}}, nil
}

func (s *requestsStub) List(ctx context.Context, actor *models.JWTClaims, query dto.RequestQuery) (*dto.RequestListResponse, bool, error) {
	s.listed = true
	return &dto.RequestListResponse{Items: []models.Request{}, Filter: "all"}, false, nil
}

func (s *requestsStub) Get(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.RequestDetail, error) {
	return nil, appErrors.ErrNotFound
}

func (s *requestsStub) Queue(ctx context.Context, actor *models.JWTClaims) ([]models.Request, error) {
	return []models.Request{}, nil
}

func (s *requestsStub) AttachmentURL(ctx context.Context, actor *models.JWTClaims, id int64) (*dto.AttachmentLink, error) {
	return nil, appErrors.ErrNotFound
}

func (s *requestsStub) OpenAttachment(ctx context.Context, actor *models.JWTClaims, id int64, token string) (*dto.AttachmentFile, error) {
	s.openedWith = actor
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired attachment token")
}

func newTestRouter(t *testing.T, env string) (*gin.Engine, *requestsStub) {
	t.Helper()
	cfg := &config.Config{Env: env, APIPrefix: "/api/v1"}
	tokens := tokenStub{
		"student-token": {AccountID: "S1", Role: models.RoleStudent, Name: "Siti Rahma"},
		"hod-token":     {AccountID: "H1", Role: models.RoleHOD, Name: "Dr. Hartono"},
	}
	requests := &requestsStub{}
	metrics := service.NewMetricsService()
	h := &Handlers{
		Auth:     handler.NewAuthHandler(nil),
		Requests: handler.NewRequestHandler(requests, nil),
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"database": func(context.Context) error { return nil },
		}),
	}
	return New(cfg, nil, tokens, metrics, h), requests
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterProbes(t *testing.T) {
	r, _ := newTestRouter(t, config.EnvDevelopment)

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRouterRequiresToken(t *testing.T) {
	r, requests := newTestRouter(t, config.EnvDevelopment)

	w := serve(r, http.MethodGet, "/api/v1/requests", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, requests.listed)

	w = serve(r, http.MethodGet, "/api/v1/requests", "forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/requests", "student-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, requests.listed)

	var body struct {
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body.Meta["cache_hit"])
}

func TestRouterRoleGuards(t *testing.T) {
	r, _ := newTestRouter(t, config.EnvDevelopment)

	w := serve(r, http.MethodPost, "/api/v1/requests/1/decision", "student-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, http.MethodPost, "/api/v1/requests", "hod-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/metrics/summary", "student-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/metrics/summary", "hod-token")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterAttachmentDownloadIsTokenOptional(t *testing.T) {
	r, requests := newTestRouter(t, config.EnvDevelopment)

	w := serve(r, http.MethodGet, "/api/v1/requests/3/attachment?token=bogus", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, requests.openedWith)

	serve(r, http.MethodGet, "/api/v1/requests/3/attachment?token=bogus", "student-token")
	require.NotNil(t, requests.openedWith)
	assert.Equal(t, "S1", requests.openedWith.AccountID)
}

func TestRouterDocsHiddenInProduction(t *testing.T) {
	r, _ := newTestRouter(t, config.EnvProduction)
	gin.SetMode(gin.TestMode)

	w := serve(r, http.MethodGet, "/docs/index.html", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
