package consumers_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/service/mocks"
	"github.com/aimstors/sentinel/internal/infrastructure/consumers"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

type clusterFixture struct {
	clusterRepo  *mocks.MockClusterRepository
	aggregator   *mockAggregator
	counterStore *mocks.MockCounterStore
	worker       *consumers.ClusterWorker
}

func newClusterFixture(t *testing.T) *clusterFixture {
	t.Helper()
	f := &clusterFixture{
		clusterRepo:  new(mocks.MockClusterRepository),
		aggregator:   new(mockAggregator),
		counterStore: new(mocks.MockCounterStore),
	}
	riskCfg := config.RiskConfig{ClusterTenantEscalat: 8}
	f.worker = consumers.NewClusterWorker(
		kafkaTestConfig(), riskCfg, f.clusterRepo, f.aggregator, f.counterStore,
		monitoring.NewMetrics(prometheus.NewRegistry()), logger.NewNoopLogger())
	return f
}

func clusterEvent(score float64, tenants ...string) *models.ClusterEvent {
	return &models.ClusterEvent{
		Event:     "CLUSTER_DETECTED",
		Type:      "BEHAVIORAL_CORRELATION",
		Tenants:   tenants,
		RiskScore: score,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestClusterWorker_MitigatesCriticalCluster(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	f.clusterRepo.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.aggregator.On("UpdateTenantRiskScore", mock.Anything, mock.Anything, 8.0).Return(nil)
	f.counterStore.On("Publish", mock.Anything, constants.ChannelSecurityAlerts, mock.Anything).Return(nil)

	require.NoError(t, f.worker.HandleCluster(ctx, clusterEvent(50, "t1", "t2", "t3")))

	cluster := f.clusterRepo.Calls[0].Arguments.Get(1).(*models.PlatformAnomalyCluster)
	assert.Equal(t, constants.ClusterRiskCritical, cluster.RiskLevel)
	assert.Equal(t, 3, cluster.AffectedTenantCount)
	assert.Contains(t, cluster.ClusterSignature, "BEHAVIORAL_CORRELATION_")

	// Every member tenant is escalated.
	f.aggregator.AssertNumberOfCalls(t, "UpdateTenantRiskScore", 3)

	alert := f.counterStore.Calls[0].Arguments.Get(2).(models.SecurityAlert)
	assert.Equal(t, "CLUSTER_DETECTED", alert.Type)
	assert.Equal(t, string(constants.RiskSeverityCritical), alert.Severity)
}

func TestClusterWorker_RiskLevelMapping(t *testing.T) {
	testCases := []struct {
		score float64
		level constants.ClusterRiskLevel
	}{
		{50, constants.ClusterRiskCritical},
		{60, constants.ClusterRiskCritical},
		{25, constants.ClusterRiskHigh},
		{49.9, constants.ClusterRiskHigh},
		{10, constants.ClusterRiskWarning},
	}

	for _, tc := range testCases {
		f := newClusterFixture(t)
		f.clusterRepo.On("Append", mock.Anything, mock.Anything).Return(nil)
		f.aggregator.On("UpdateTenantRiskScore", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.counterStore.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, f.worker.HandleCluster(context.Background(), clusterEvent(tc.score, "t1")))

		cluster := f.clusterRepo.Calls[0].Arguments.Get(1).(*models.PlatformAnomalyCluster)
		assert.Equal(t, tc.level, cluster.RiskLevel, "score %v", tc.score)
	}
}

func TestClusterWorker_RecordedClusterNotPersistedTwice(t *testing.T) {
	f := newClusterFixture(t)
	ctx := context.Background()

	f.aggregator.On("UpdateTenantRiskScore", mock.Anything, mock.Anything, 8.0).Return(nil)
	f.counterStore.On("Publish", mock.Anything, constants.ChannelSecurityAlerts, mock.Anything).Return(nil)

	// The detector already wrote this cluster and stamped the event.
	event := clusterEvent(50, "t1", "t2")
	event.Signature = "pattern_a1b2c3d4"
	require.NoError(t, f.worker.HandleCluster(ctx, event))

	f.clusterRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	f.aggregator.AssertNumberOfCalls(t, "UpdateTenantRiskScore", 2)

	alert := f.counterStore.Calls[0].Arguments.Get(2).(models.SecurityAlert)
	assert.Equal(t, "pattern_a1b2c3d4", alert.Metadata["signature"])
}

func TestClusterWorker_EmptyClusterIgnored(t *testing.T) {
	f := newClusterFixture(t)

	require.NoError(t, f.worker.HandleCluster(context.Background(), clusterEvent(50)))

	f.clusterRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	f.counterStore.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestClusterWorker_PersistFailureLeavesMessageUncommitted(t *testing.T) {
	f := newClusterFixture(t)

	f.clusterRepo.On("Append", mock.Anything, mock.Anything).Return(assert.AnError)

	err := f.worker.HandleCluster(context.Background(), clusterEvent(30, "t1"))
	require.Error(t, err)

	f.aggregator.AssertNotCalled(t, "UpdateTenantRiskScore", mock.Anything, mock.Anything, mock.Anything)
}
