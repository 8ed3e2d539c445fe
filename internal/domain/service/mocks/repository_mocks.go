package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	"github.com/aimstors/sentinel/pkg/constants"
)

// MockCredentialRepository is a mock implementation of repository.CredentialRepository.
type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) GetByID(ctx context.Context, id string) (*models.ApiCredential, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApiCredential), args.Error(1)
}

func (m *MockCredentialRepository) AddRiskScore(ctx context.Context, id string, delta float64) (float64, error) {
	args := m.Called(ctx, id, delta)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockCredentialRepository) MarkSuspended(ctx context.Context, id, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockCredentialRepository) MarkRestored(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCredentialRepository) DecayScores(ctx context.Context, factor float64) error {
	args := m.Called(ctx, factor)
	return args.Error(0)
}

func (m *MockCredentialRepository) ListSuspended(ctx context.Context) ([]*models.ApiCredential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ApiCredential), args.Error(1)
}

func (m *MockCredentialRepository) CountSuspended(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockTenantRepository is a mock implementation of repository.TenantRepository.
type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) Suspend(ctx context.Context, tenantID string) (bool, error) {
	args := m.Called(ctx, tenantID)
	return args.Bool(0), args.Error(1)
}

// MockRiskEventRepository is a mock implementation of repository.RiskEventRepository.
type MockRiskEventRepository struct {
	mock.Mock
}

func (m *MockRiskEventRepository) Append(ctx context.Context, event *models.ApiKeyRiskEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockRiskEventRepository) CategoriesSince(ctx context.Context, apiKeyID string, since time.Time) (map[constants.RiskType]struct{}, error) {
	args := m.Called(ctx, apiKeyID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[constants.RiskType]struct{}), args.Error(1)
}

func (m *MockRiskEventRepository) RecentForKey(ctx context.Context, apiKeyID string, since time.Time) ([]*models.ApiKeyRiskEvent, error) {
	args := m.Called(ctx, apiKeyID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ApiKeyRiskEvent), args.Error(1)
}

// MockTenantRiskRepository is a mock implementation of repository.TenantRiskRepository.
type MockTenantRiskRepository struct {
	mock.Mock
}

func (m *MockTenantRiskRepository) Get(ctx context.Context, tenantID string) (*models.TenantRiskScore, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TenantRiskScore), args.Error(1)
}

func (m *MockTenantRiskRepository) Upsert(ctx context.Context, score *models.TenantRiskScore) error {
	args := m.Called(ctx, score)
	return args.Error(0)
}

func (m *MockTenantRiskRepository) List(ctx context.Context) ([]*models.TenantRiskScore, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TenantRiskScore), args.Error(1)
}

func (m *MockTenantRiskRepository) AverageScore(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockTenantRiskRepository) CountByStatus(ctx context.Context, statuses ...constants.RiskStatus) (int, error) {
	args := m.Called(ctx, statuses)
	return args.Int(0), args.Error(1)
}

func (m *MockTenantRiskRepository) ResellerRollup(ctx context.Context, resellerID string) (float64, int, error) {
	args := m.Called(ctx, resellerID)
	return args.Get(0).(float64), args.Int(1), args.Error(2)
}

// MockResellerRiskRepository is a mock implementation of repository.ResellerRiskRepository.
type MockResellerRiskRepository struct {
	mock.Mock
}

func (m *MockResellerRiskRepository) List(ctx context.Context) ([]*models.ResellerRiskScore, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ResellerRiskScore), args.Error(1)
}

func (m *MockResellerRiskRepository) Upsert(ctx context.Context, score *models.ResellerRiskScore) error {
	args := m.Called(ctx, score)
	return args.Error(0)
}

// MockSnapshotRepository is a mock implementation of repository.SnapshotRepository.
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Append(ctx context.Context, snapshot *models.PlatformRiskSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockSnapshotRepository) Recent(ctx context.Context, limit int) ([]*models.PlatformRiskSnapshot, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PlatformRiskSnapshot), args.Error(1)
}

// MockClusterRepository is a mock implementation of repository.ClusterRepository.
type MockClusterRepository struct {
	mock.Mock
}

func (m *MockClusterRepository) Append(ctx context.Context, cluster *models.PlatformAnomalyCluster) error {
	args := m.Called(ctx, cluster)
	return args.Error(0)
}

func (m *MockClusterRepository) Recent(ctx context.Context, limit int) ([]*models.PlatformAnomalyCluster, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PlatformAnomalyCluster), args.Error(1)
}

// MockHourlyMetricRepository is a mock implementation of repository.HourlyMetricRepository.
type MockHourlyMetricRepository struct {
	mock.Mock
}

func (m *MockHourlyMetricRepository) Upsert(ctx context.Context, metric *models.TenantHourlyMetric) error {
	args := m.Called(ctx, metric)
	return args.Error(0)
}

func (m *MockHourlyMetricRepository) ForHour(ctx context.Context, bucket time.Time) ([]*models.TenantHourlyMetric, error) {
	args := m.Called(ctx, bucket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TenantHourlyMetric), args.Error(1)
}

func (m *MockHourlyMetricRepository) Baseline(ctx context.Context, bucket time.Time) (float64, float64, error) {
	args := m.Called(ctx, bucket)
	return args.Get(0).(float64), args.Get(1).(float64), args.Error(2)
}

// MockPolicyRepository is a mock implementation of repository.PolicyRepository.
type MockPolicyRepository struct {
	mock.Mock
}

func (m *MockPolicyRepository) GetOrCreatePolicy(ctx context.Context, name string, defaults models.RLPolicy) (*models.RLPolicy, error) {
	args := m.Called(ctx, name, defaults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RLPolicy), args.Error(1)
}

func (m *MockPolicyRepository) SavePolicy(ctx context.Context, policy *models.RLPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) AppendExperience(ctx context.Context, exp *models.RLExperience) error {
	args := m.Called(ctx, exp)
	return args.Error(0)
}

func (m *MockPolicyRepository) AssignReward(ctx context.Context, experienceID string, reward float64) error {
	args := m.Called(ctx, experienceID, reward)
	return args.Error(0)
}

// MockUsageMetricsSource is a mock implementation of repository.UsageMetricsSource.
type MockUsageMetricsSource struct {
	mock.Mock
}

func (m *MockUsageMetricsSource) HourlyStats(ctx context.Context, start, end time.Time) ([]repository.HourlyStat, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.HourlyStat), args.Error(1)
}
