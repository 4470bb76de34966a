package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-approval-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	metrics := NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/api/v1/requests", http.StatusOK, 10*time.Millisecond)
	metrics.ObserveHTTPRequest(http.MethodPost, "/api/v1/requests", http.StatusCreated, 30*time.Millisecond)
	metrics.RecordSubmission(true)
	metrics.RecordDecision(models.RoleCoordinator, models.DecisionApproved, DecisionOutcomeApplied)
	metrics.RecordDecision(models.RoleHOD, models.DecisionApproved, "INVALID_TRANSITION")
	metrics.RecordSweep(2)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(2), snapshot.RequestsTotal)
	assert.InDelta(t, 20.0, snapshot.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(1), snapshot.Submissions)
	assert.Equal(t, uint64(1), snapshot.DecisionsApplied)
	assert.Equal(t, uint64(1), snapshot.DecisionsRefused)
	assert.Positive(t, snapshot.Goroutines)
}

func TestMetricsServiceHandlerExposesWorkflowCounters(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordDecision(models.RoleCoordinator, models.DecisionRejected, DecisionOutcomeApplied)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `attendance_decisions_total{decision="rejected",outcome="applied",role="coordinator"} 1`)
}

func TestMetricsServiceNilReceiver(t *testing.T) {
	var metrics *MetricsService
	metrics.RecordSubmission(false)
	metrics.RecordSweep(1)
	assert.Equal(t, models.SystemMetrics{}, metrics.Snapshot())

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
