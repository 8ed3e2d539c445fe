package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// GlobalAnomalyService runs the batch side of cross-tenant detection: the
// hourly behavior rollup and the baseline-plus-similarity cluster pass.
type GlobalAnomalyService interface {
	// AggregateHourlyMetrics rolls the prior UTC hour of usage events into
	// per-tenant behavior buckets. Reruns are idempotent.
	AggregateHourlyMetrics(ctx context.Context) error

	// DetectClusters flags tenants deviating from the hourly baseline,
	// groups them by behavior similarity, persists qualifying clusters, and
	// emits them for mitigation.
	DetectClusters(ctx context.Context) error
}

type globalAnomalyServiceImpl struct {
	usageSource  repository.UsageMetricsSource
	hourlyRepo   repository.HourlyMetricRepository
	clusterRepo  repository.ClusterRepository
	bus          domainService.EventBus
	metrics      *monitoring.Metrics
	riskCfg      config.RiskConfig
	clusterTopic string
	log          logger.Logger
}

// NewGlobalAnomalyService creates a new GlobalAnomalyService.
func NewGlobalAnomalyService(
	usageSource repository.UsageMetricsSource,
	hourlyRepo repository.HourlyMetricRepository,
	clusterRepo repository.ClusterRepository,
	bus domainService.EventBus,
	metrics *monitoring.Metrics,
	riskCfg config.RiskConfig,
	clusterTopic string,
	log logger.Logger,
) GlobalAnomalyService {
	return &globalAnomalyServiceImpl{
		usageSource:  usageSource,
		hourlyRepo:   hourlyRepo,
		clusterRepo:  clusterRepo,
		bus:          bus,
		metrics:      metrics,
		riskCfg:      riskCfg,
		clusterTopic: clusterTopic,
		log:          log.WithComponent("GlobalAnomalyService"),
	}
}

func (s *globalAnomalyServiceImpl) AggregateHourlyMetrics(ctx context.Context) error {
	hourEnd := time.Now().UTC().Truncate(time.Hour)
	hourStart := hourEnd.Add(-time.Hour)

	stats, err := s.usageSource.HourlyStats(ctx, hourStart, hourEnd)
	if err != nil {
		return err
	}

	for _, stat := range stats {
		failedRatio := 0.0
		if stat.MessagesSent > 0 {
			failedRatio = float64(stat.MessagesFailed) / float64(stat.MessagesSent) * 100
		}
		metric := &models.TenantHourlyMetric{
			TenantID:       stat.TenantID,
			HourBucket:     hourStart,
			MessagesSent:   stat.MessagesSent,
			MessagesFailed: stat.MessagesFailed,
			ApiCalls:       stat.ApiCalls,
			DistinctIPs:    stat.DistinctIPs,
			FailedRatio:    failedRatio,
		}
		if err := s.hourlyRepo.Upsert(ctx, metric); err != nil {
			s.log.Error(ctx, "failed to upsert hourly metric", err,
				logger.String("tenant_id", stat.TenantID))
		}
	}

	s.log.Info(ctx, "hourly rollup completed",
		logger.Time("hour_bucket", hourStart),
		logger.Int("tenants", len(stats)))
	return nil
}

func (s *globalAnomalyServiceImpl) DetectClusters(ctx context.Context) error {
	bucket := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)

	tenantMetrics, err := s.hourlyRepo.ForHour(ctx, bucket)
	if err != nil {
		return err
	}
	if len(tenantMetrics) == 0 {
		return nil
	}

	avgMessages, avgFailedRatio, err := s.hourlyRepo.Baseline(ctx, bucket)
	if err != nil {
		return err
	}

	var outliers []*models.TenantHourlyMetric
	for _, metric := range tenantMetrics {
		messageSpike := avgMessages > 0 && float64(metric.MessagesSent) > avgMessages*s.riskCfg.BaselineMsgFactor
		failureSpike := avgFailedRatio > 0 && metric.FailedRatio > avgFailedRatio*s.riskCfg.BaselineFailFactor
		if messageSpike || failureSpike {
			outliers = append(outliers, metric)
		}
	}
	if len(outliers) == 0 {
		return nil
	}

	clusters := s.groupBySimilarity(outliers)

	for _, members := range clusters {
		if len(members) < s.riskCfg.MinClusterSize {
			continue
		}

		riskLevel := constants.ClusterRiskHigh
		riskScore := 30.0
		if len(members) > 15 {
			riskLevel = constants.ClusterRiskCritical
			riskScore = 50.0
		}

		tenants := make([]string, 0, len(members))
		for _, m := range members {
			tenants = append(tenants, m.TenantID)
		}

		cluster := &models.PlatformAnomalyCluster{
			ClusterSignature:    "pattern_" + uuid.NewString()[:8],
			AffectedTenantCount: len(members),
			RiskLevel:           riskLevel,
			Metadata: map[string]interface{}{
				"tenants":        tenants,
				"hourBucket":     bucket.Format(time.RFC3339),
				"avgMessages":    avgMessages,
				"avgFailedRatio": avgFailedRatio,
			},
		}
		if err := s.clusterRepo.Append(ctx, cluster); err != nil {
			s.log.Error(ctx, "failed to persist cluster", err)
			continue
		}
		s.metrics.RecordCluster(string(riskLevel))

		event := models.ClusterEvent{
			Event:     "CLUSTER_DETECTED",
			Type:      "BEHAVIORAL_CORRELATION",
			Tenants:   tenants,
			RiskScore: riskScore,
			Signature: cluster.ClusterSignature,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.bus.Emit(ctx, s.clusterTopic, event); err != nil {
			s.log.Error(ctx, "failed to emit cluster event", err)
		}

		s.log.Warn(ctx, "cross-tenant anomaly cluster detected",
			logger.String("signature", cluster.ClusterSignature),
			logger.Int("members", len(members)),
			logger.String("risk_level", string(riskLevel)))
	}
	return nil
}

// groupBySimilarity assigns each outlier to the first cluster whose seed
// vector is cosine-similar above the threshold, else seeds a new cluster.
// Greedy and order-dependent, which is acceptable at hourly granularity.
func (s *globalAnomalyServiceImpl) groupBySimilarity(outliers []*models.TenantHourlyMetric) [][]*models.TenantHourlyMetric {
	var clusters [][]*models.TenantHourlyMetric
	for _, metric := range outliers {
		placed := false
		for i, cluster := range clusters {
			seed := cluster[0].BehaviorVector()
			if domainService.CosineSimilarity(seed, metric.BehaviorVector()) > s.riskCfg.ClusterSimilarity {
				clusters[i] = append(clusters[i], metric)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []*models.TenantHourlyMetric{metric})
		}
	}
	return clusters
}
