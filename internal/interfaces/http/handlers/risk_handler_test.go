package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/service/mocks"
	"github.com/aimstors/sentinel/internal/interfaces/http/handlers"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

type stubAdaptive struct {
	mock.Mock
}

func (m *stubAdaptive) RunInference(ctx context.Context, state models.SystemState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *stubAdaptive) RecordReward(ctx context.Context, experienceID string, reward float64) error {
	args := m.Called(ctx, experienceID, reward)
	return args.Error(0)
}

type handlerFixture struct {
	tenantRiskRepo *mocks.MockTenantRiskRepository
	snapshotRepo   *mocks.MockSnapshotRepository
	clusterRepo    *mocks.MockClusterRepository
	riskEventRepo  *mocks.MockRiskEventRepository
	adaptive       *stubAdaptive
	router         *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		tenantRiskRepo: new(mocks.MockTenantRiskRepository),
		snapshotRepo:   new(mocks.MockSnapshotRepository),
		clusterRepo:    new(mocks.MockClusterRepository),
		riskEventRepo:  new(mocks.MockRiskEventRepository),
		adaptive:       new(stubAdaptive),
	}
	h := handlers.NewRiskHandler(f.tenantRiskRepo, f.snapshotRepo, f.clusterRepo,
		f.riskEventRepo, f.adaptive, logger.NewNoopLogger())

	f.router = gin.New()
	f.router.GET("/api/v1/risk/platform", h.PlatformSnapshots)
	f.router.GET("/api/v1/risk/tenants", h.Tenants)
	f.router.GET("/api/v1/risk/tenants/:id", h.Tenant)
	f.router.GET("/api/v1/risk/clusters", h.Clusters)
	f.router.GET("/api/v1/risk/keys/:id/events", h.KeyEvents)
	f.router.POST("/api/v1/risk/experiences/:id/reward", h.RecordReward)
	return f
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPlatformSnapshots(t *testing.T) {
	f := newHandlerFixture(t)
	f.snapshotRepo.On("Recent", mock.Anything, 5).Return([]*models.PlatformRiskSnapshot{
		{OverallScore: 42.5},
	}, nil)

	w := f.do(http.MethodGet, "/api/v1/risk/platform?limit=5", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Snapshots []models.PlatformRiskSnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Snapshots, 1)
	assert.Equal(t, 42.5, body.Snapshots[0].OverallScore)
}

func TestPlatformSnapshots_InvalidLimit(t *testing.T) {
	f := newHandlerFixture(t)

	for _, limit := range []string{"abc", "0", "1001", "-5"} {
		w := f.do(http.MethodGet, "/api/v1/risk/platform?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit %q", limit)
	}
	f.snapshotRepo.AssertNotCalled(t, "Recent", mock.Anything, mock.Anything)
}

func TestTenant(t *testing.T) {
	f := newHandlerFixture(t)
	f.tenantRiskRepo.On("Get", mock.Anything, "tenant-1").Return(&models.TenantRiskScore{
		TenantID:     "tenant-1",
		CurrentScore: 65,
		Status:       constants.RiskStatusHighRisk,
	}, nil)

	w := f.do(http.MethodGet, "/api/v1/risk/tenants/tenant-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	var score models.TenantRiskScore
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &score))
	assert.Equal(t, 65.0, score.CurrentScore)
}

func TestTenant_NotFound(t *testing.T) {
	f := newHandlerFixture(t)
	f.tenantRiskRepo.On("Get", mock.Anything, "ghost").Return(nil, nil)

	w := f.do(http.MethodGet, "/api/v1/risk/tenants/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenants_RepositoryError(t *testing.T) {
	f := newHandlerFixture(t)
	f.tenantRiskRepo.On("List", mock.Anything).Return(nil, assert.AnError)

	w := f.do(http.MethodGet, "/api/v1/risk/tenants", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestKeyEvents(t *testing.T) {
	f := newHandlerFixture(t)
	f.riskEventRepo.On("RecentForKey", mock.Anything, "key-1", mock.Anything).
		Return([]*models.ApiKeyRiskEvent{
			{ApiKeyID: "key-1", RiskType: constants.RiskTypeRateSpike, Score: 30},
		}, nil)

	w := f.do(http.MethodGet, "/api/v1/risk/keys/key-1/events", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events []models.ApiKeyRiskEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, constants.RiskTypeRateSpike, body.Events[0].RiskType)

	// The default window reaches 24 hours back.
	since := f.riskEventRepo.Calls[0].Arguments.Get(2).(time.Time)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), since, time.Minute)
}

func TestKeyEvents_InvalidHours(t *testing.T) {
	f := newHandlerFixture(t)

	for _, hours := range []string{"abc", "0", "169", "-1"} {
		w := f.do(http.MethodGet, "/api/v1/risk/keys/key-1/events?hours="+hours, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "hours %q", hours)
	}
	f.riskEventRepo.AssertNotCalled(t, "RecentForKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordReward(t *testing.T) {
	f := newHandlerFixture(t)
	f.adaptive.On("RecordReward", mock.Anything, "exp-1", 0.8).Return(nil)

	w := f.do(http.MethodPost, "/api/v1/risk/experiences/exp-1/reward", `{"reward": 0.8}`)

	assert.Equal(t, http.StatusOK, w.Code)
	f.adaptive.AssertExpectations(t)
}

func TestRecordReward_ZeroRewardAccepted(t *testing.T) {
	f := newHandlerFixture(t)
	f.adaptive.On("RecordReward", mock.Anything, "exp-1", 0.0).Return(nil)

	w := f.do(http.MethodPost, "/api/v1/risk/experiences/exp-1/reward", `{"reward": 0}`)

	assert.Equal(t, http.StatusOK, w.Code)
	f.adaptive.AssertExpectations(t)
}

func TestRecordReward_MissingBody(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(http.MethodPost, "/api/v1/risk/experiences/exp-1/reward", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.adaptive.AssertNotCalled(t, "RecordReward", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecordReward_UnknownExperience(t *testing.T) {
	f := newHandlerFixture(t)
	f.adaptive.On("RecordReward", mock.Anything, "ghost", 1.0).Return(errors.ErrNotFound)

	w := f.do(http.MethodPost, "/api/v1/risk/experiences/ghost/reward", `{"reward": 1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
