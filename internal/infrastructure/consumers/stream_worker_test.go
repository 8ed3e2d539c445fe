package consumers_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aimstors/sentinel/internal/application/service"
	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/domain/service/mocks"
	"github.com/aimstors/sentinel/internal/infrastructure/consumers"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/internal/infrastructure/persistence/redis"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// mockKillSwitch stands in for the kill-switch service in worker tests.
type mockKillSwitch struct {
	mock.Mock
}

func (m *mockKillSwitch) AddRiskSignal(ctx context.Context, signal service.RiskSignal) error {
	args := m.Called(ctx, signal)
	return args.Error(0)
}

func (m *mockKillSwitch) DecaySweep(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// mockAggregator stands in for the risk aggregator in worker tests.
type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) Aggregate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockAggregator) UpdateTenantRiskScore(ctx context.Context, tenantID string, delta float64) error {
	args := m.Called(ctx, tenantID, delta)
	return args.Error(0)
}

func kafkaTestConfig() config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:         []string{"localhost:9092"},
		UsageTopic:      "usage.events",
		SecurityTopic:   "security.events",
		MLResultsTopic:  "anomaly.results",
		AlertsTopic:     "anomaly.alerts",
		ClusterTopic:    "platform.cluster.events",
		EngineGroup:     "engine-test",
		MLResultsGroup:  "ml-test",
		MitigationGroup: "mitigation-test",
	}
}

type streamFixture struct {
	mr         *miniredis.Miniredis
	store      *redis.CounterStore
	producer   *mocks.MockEventBus
	killSwitch *mockKillSwitch
	aggregator *mockAggregator
	oracle     *mocks.MockScoreOracle
	worker     *consumers.StreamWorker
}

func newStreamFixture(t *testing.T, riskCfg config.RiskConfig) *streamFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &streamFixture{
		mr:         mr,
		store:      redis.NewCounterStore(client, logger.NewNoopLogger()),
		producer:   new(mocks.MockEventBus),
		killSwitch: new(mockKillSwitch),
		aggregator: new(mockAggregator),
		oracle:     new(mocks.MockScoreOracle),
	}
	scorer := domainService.NewRiskScorer(f.oracle,
		monitoring.NewMetrics(prometheus.NewRegistry()), logger.NewNoopLogger())
	f.worker = consumers.NewStreamWorker(
		kafkaTestConfig(), riskCfg, f.store, f.producer,
		f.killSwitch, f.aggregator, scorer, logger.NewNoopLogger())
	return f
}

func usageEvent(tenantID, apiKeyID string, seq int) *models.UsageEvent {
	event := &models.UsageEvent{
		EventID:  fmt.Sprintf("evt-%s-%d", tenantID, seq),
		TenantID: tenantID,
		Metric:   "messages_sent",
		Amount:   1,
	}
	if apiKeyID != "" {
		event.Metadata = map[string]interface{}{"apiKeyId": apiKeyID}
	}
	return event
}

func TestStreamWorker_RateSpikeRaisesSignal(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{
		RateSpikePerMinute:  5,
		AlertSpikePerMinute: 100,
		PlatformSpikeFloor:  100,
	})
	ctx := context.Background()

	// Metadata is present, so the scorer runs; keep it in the normal band.
	f.oracle.On("Score", mock.Anything, mock.Anything).Return(0.1, nil)
	f.killSwitch.On("AddRiskSignal", mock.Anything, mock.Anything).Return(nil)
	f.aggregator.On("UpdateTenantRiskScore", mock.Anything, "tenant-1", 10.0).Return(nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.worker.HandleUsage(ctx, usageEvent("tenant-1", "key-1", i)))
	}
	f.killSwitch.AssertNotCalled(t, "AddRiskSignal", mock.Anything, mock.Anything)

	// The sixth event pushes the window over the threshold.
	require.NoError(t, f.worker.HandleUsage(ctx, usageEvent("tenant-1", "key-1", 5)))

	f.killSwitch.AssertNumberOfCalls(t, "AddRiskSignal", 1)
	signal := f.killSwitch.Calls[0].Arguments.Get(1).(service.RiskSignal)
	assert.Equal(t, "key-1", signal.ApiKeyID)
	assert.Equal(t, constants.RiskTypeRateSpike, signal.RiskType)
	assert.Nil(t, signal.ScoreOverride)
	f.aggregator.AssertExpectations(t)
}

func TestStreamWorker_CriticalAnomalyScoreRaisesSignal(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{
		RateSpikePerMinute:  1000,
		AlertSpikePerMinute: 1000,
		PlatformSpikeFloor:  1000,
	})
	ctx := context.Background()

	f.oracle.On("Score", mock.Anything, mock.Anything).Return(0.95, nil)
	f.killSwitch.On("AddRiskSignal", mock.Anything, mock.Anything).Return(nil)

	event := usageEvent("tenant-1", "key-1", 0)
	event.Metadata["failureRate"] = 0.8
	require.NoError(t, f.worker.HandleUsage(ctx, event))

	f.killSwitch.AssertNumberOfCalls(t, "AddRiskSignal", 1)
	signal := f.killSwitch.Calls[0].Arguments.Get(1).(service.RiskSignal)
	assert.Equal(t, constants.RiskTypeFailureSpike, signal.RiskType)
	assert.InDelta(t, 0.95, signal.Metadata["anomalyScore"].(float64), 1e-9)
}

func TestStreamWorker_TenantAlertEmitted(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{
		RateSpikePerMinute:  100,
		AlertSpikePerMinute: 3,
		PlatformSpikeFloor:  100,
	})
	ctx := context.Background()

	f.producer.On("Emit", mock.Anything, "anomaly.alerts", mock.Anything).Return(nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, f.worker.HandleUsage(ctx, usageEvent("tenant-1", "", i)))
	}

	f.producer.AssertNumberOfCalls(t, "Emit", 1)
	alert := f.producer.Calls[0].Arguments.Get(2).(models.AnomalyAlert)
	assert.Equal(t, models.AlertTypeTenantAnomaly, alert.Type)
	assert.Equal(t, "tenant-1", alert.TenantID)
	assert.Equal(t, int64(4), alert.Magnitude)
}

func TestStreamWorker_ConcurrentSpikesRaisePlatformAlert(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{
		RateSpikePerMinute:  100,
		AlertSpikePerMinute: 100,
		PlatformSpikeFloor:  1,
		PlatformClusterSize: 5,
	})
	ctx := context.Background()

	f.producer.On("Emit", mock.Anything, "anomaly.alerts", mock.Anything).Return(nil)

	// Four tenants spiking stays below the cluster size.
	for i := 0; i < 4; i++ {
		tenant := "tenant-" + strconv.Itoa(i)
		require.NoError(t, f.worker.HandleUsage(ctx, usageEvent(tenant, "", 0)))
		require.NoError(t, f.worker.HandleUsage(ctx, usageEvent(tenant, "", 1)))
	}
	f.producer.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything)

	// The fifth concurrent tenant crosses it.
	require.NoError(t, f.worker.HandleUsage(ctx, usageEvent("tenant-4", "", 0)))
	require.NoError(t, f.worker.HandleUsage(ctx, usageEvent("tenant-4", "", 1)))

	f.producer.AssertNumberOfCalls(t, "Emit", 1)
	alert := f.producer.Calls[0].Arguments.Get(2).(models.AnomalyAlert)
	assert.Equal(t, models.AlertTypePlatformCluster, alert.Type)
	assert.Equal(t, int64(5), alert.AffectedTenants)
}

func TestStreamWorker_UsageEventMissingTenantSkipped(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{RateSpikePerMinute: 1})
	require.NoError(t, f.worker.HandleUsage(context.Background(), &models.UsageEvent{Metric: "messages_sent"}))
	assert.Empty(t, f.mr.Keys())
}

func TestStreamWorker_AuthSpamOverridesScore(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{
		AuthSpamFailures:   3,
		BruteForceFailures: 100,
	})
	ctx := context.Background()

	f.killSwitch.On("AddRiskSignal", mock.Anything, mock.Anything).Return(nil)
	f.aggregator.On("UpdateTenantRiskScore", mock.Anything, "tenant-1", 25.0).Return(nil)

	event := &models.SecurityEvent{
		TenantID:   "tenant-1",
		Action:     models.ActionApiKeyAuthFailed,
		ResourceID: "key-1",
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, f.worker.HandleSecurity(ctx, event))
	}

	f.killSwitch.AssertNumberOfCalls(t, "AddRiskSignal", 1)
	signal := f.killSwitch.Calls[0].Arguments.Get(1).(service.RiskSignal)
	assert.Equal(t, constants.RiskTypeAuthSpam, signal.RiskType)
	assert.Equal(t, "key-1", signal.ApiKeyID)
	require.NotNil(t, signal.ScoreOverride)
	assert.Equal(t, 50.0, *signal.ScoreOverride)
	f.aggregator.AssertExpectations(t)
}

func TestStreamWorker_BruteForceEmitsAnomalyAlert(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{
		AuthSpamFailures:   100,
		BruteForceFailures: 2,
	})
	ctx := context.Background()

	f.producer.On("Emit", mock.Anything, "anomaly.alerts", mock.Anything).Return(nil)

	event := &models.SecurityEvent{
		TenantID: "tenant-1",
		Action:   models.ActionLoginFailed,
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, f.worker.HandleSecurity(ctx, event))
	}

	// The third failure crosses the brute-force tier and raises an alert
	// on the bus, without touching the kill switch or tenant score.
	f.producer.AssertNumberOfCalls(t, "Emit", 1)
	alert := f.producer.Calls[0].Arguments.Get(2).(models.AnomalyAlert)
	assert.Equal(t, models.AlertTypeTenantAnomaly, alert.Type)
	assert.Equal(t, "tenant-1", alert.TenantID)
	assert.Equal(t, int64(3), alert.Magnitude)
	f.killSwitch.AssertNotCalled(t, "AddRiskSignal", mock.Anything, mock.Anything)
	f.aggregator.AssertNotCalled(t, "UpdateTenantRiskScore", mock.Anything, mock.Anything, mock.Anything)
}

func TestStreamWorker_CredentiallessFailureFloodStillAlerts(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{
		AuthSpamFailures:   2,
		BruteForceFailures: 4,
	})
	ctx := context.Background()

	f.producer.On("Emit", mock.Anything, "anomaly.alerts", mock.Anything).Return(nil)

	// No resource id means no credential to signal against.
	event := &models.SecurityEvent{
		TenantID: "tenant-1",
		Action:   models.ActionApiKeyAuthFailed,
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, f.worker.HandleSecurity(ctx, event))
	}

	f.killSwitch.AssertNotCalled(t, "AddRiskSignal", mock.Anything, mock.Anything)
	f.aggregator.AssertNotCalled(t, "UpdateTenantRiskScore", mock.Anything, mock.Anything, mock.Anything)

	f.producer.AssertNumberOfCalls(t, "Emit", 1)
	alert := f.producer.Calls[0].Arguments.Get(2).(models.AnomalyAlert)
	assert.Equal(t, models.AlertTypeTenantAnomaly, alert.Type)
	assert.Equal(t, int64(5), alert.Magnitude)
}

func TestStreamWorker_IrrelevantSecurityActionIgnored(t *testing.T) {
	f := newStreamFixture(t, config.RiskConfig{AuthSpamFailures: 1})

	event := &models.SecurityEvent{TenantID: "tenant-1", Action: "USER_CREATED"}
	require.NoError(t, f.worker.HandleSecurity(context.Background(), event))

	assert.Empty(t, f.mr.Keys())
}
