package service

import (
	"context"
	"time"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// RiskAggregatorService maintains the tenant, reseller, and platform level
// risk aggregates and drives the adaptive controller with live telemetry.
type RiskAggregatorService interface {
	// Aggregate runs one platform rollup tick: snapshot, reseller pass,
	// adaptive inference, dashboard publish.
	Aggregate(ctx context.Context) error

	// UpdateTenantRiskScore is the sole write path for tenant risk scores.
	// The resulting score is clamped to [0,100] and the status re-derived.
	UpdateTenantRiskScore(ctx context.Context, tenantID string, delta float64) error
}

type riskAggregatorServiceImpl struct {
	tenantRiskRepo   repository.TenantRiskRepository
	resellerRiskRepo repository.ResellerRiskRepository
	snapshotRepo     repository.SnapshotRepository
	clusterRepo      repository.ClusterRepository
	credentialRepo   repository.CredentialRepository
	counterStore     domainService.CounterStore
	adaptive         AdaptiveThresholdService
	metrics          *monitoring.Metrics
	log              logger.Logger
}

// NewRiskAggregatorService creates a new RiskAggregatorService.
func NewRiskAggregatorService(
	tenantRiskRepo repository.TenantRiskRepository,
	resellerRiskRepo repository.ResellerRiskRepository,
	snapshotRepo repository.SnapshotRepository,
	clusterRepo repository.ClusterRepository,
	credentialRepo repository.CredentialRepository,
	counterStore domainService.CounterStore,
	adaptive AdaptiveThresholdService,
	metrics *monitoring.Metrics,
	log logger.Logger,
) RiskAggregatorService {
	return &riskAggregatorServiceImpl{
		tenantRiskRepo:   tenantRiskRepo,
		resellerRiskRepo: resellerRiskRepo,
		snapshotRepo:     snapshotRepo,
		clusterRepo:      clusterRepo,
		credentialRepo:   credentialRepo,
		counterStore:     counterStore,
		adaptive:         adaptive,
		metrics:          metrics,
		log:              log.WithComponent("RiskAggregatorService"),
	}
}

func (s *riskAggregatorServiceImpl) Aggregate(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	}()

	scores, err := s.tenantRiskRepo.List(ctx)
	if err != nil {
		return err
	}
	avgRisk, err := s.tenantRiskRepo.AverageScore(ctx)
	if err != nil {
		return err
	}
	highRisk, err := s.tenantRiskRepo.CountByStatus(ctx,
		constants.RiskStatusHighRisk, constants.RiskStatusCritical)
	if err != nil {
		return err
	}
	warningPlus, err := s.tenantRiskRepo.CountByStatus(ctx,
		constants.RiskStatusWarning, constants.RiskStatusHighRisk, constants.RiskStatusCritical)
	if err != nil {
		return err
	}

	suspended, err := s.credentialRepo.CountSuspended(ctx)
	if err != nil {
		return err
	}

	platformScore := avgRisk*0.5 + float64(suspended)*5
	if platformScore > 100 {
		platformScore = 100
	}

	spikeVelocity, err := s.counterStore.WindowSize(ctx, constants.KeyPlatformSpikes, time.Now(), constants.SlidingWindow)
	if err != nil {
		s.log.Error(ctx, "failed to read platform spike set", err)
		spikeVelocity = 0
	}

	snapshot := &models.PlatformRiskSnapshot{
		OverallScore:     platformScore,
		HighRiskTenants:  highRisk,
		SuspendedApiKeys: suspended,
		AnomalyClusters:  s.clustersLastHour(ctx),
		AttackIntensity:  float64(spikeVelocity),
	}
	if err := s.snapshotRepo.Append(ctx, snapshot); err != nil {
		return err
	}
	s.metrics.PlatformRiskScore.Set(platformScore)
	s.metrics.SuspendedApiKeys.Set(float64(suspended))

	failureRate := 0.0
	if len(scores) > 0 {
		failureRate = float64(warningPlus) / float64(len(scores))
	}
	state := models.SystemState{
		AvgRisk:         avgRisk,
		SpikeVelocity:   float64(spikeVelocity),
		FailureRate:     failureRate,
		SuspensionCount: suspended,
	}
	if err := s.adaptive.RunInference(ctx, state); err != nil {
		s.log.Error(ctx, "adaptive inference failed", err)
	}

	threshold, ok, err := s.counterStore.Threshold(ctx)
	if err != nil || !ok {
		threshold = constants.SuspensionThreshold
	}
	update := models.PlatformRiskUpdate{
		OverallScore:     platformScore,
		HighRiskTenants:  highRisk,
		SuspendedApiKeys: suspended,
		DynamicThreshold: threshold,
		Timestamp:        time.Now().UTC(),
	}
	if err := s.counterStore.Publish(ctx, constants.ChannelPlatformUpdate, update); err != nil {
		s.log.Error(ctx, "failed to publish platform update", err)
	}

	if err := s.rollupResellers(ctx); err != nil {
		s.log.Error(ctx, "reseller rollup failed", err)
	}

	s.log.Debug(ctx, "aggregation tick completed",
		logger.Float64("platform_score", platformScore),
		logger.Int("tenants", len(scores)),
		logger.Int("suspended", suspended),
		logger.Duration("took", time.Since(start)))
	return nil
}

// clustersLastHour counts clusters persisted within the trailing hour.
func (s *riskAggregatorServiceImpl) clustersLastHour(ctx context.Context) int {
	clusters, err := s.clusterRepo.Recent(ctx, 100)
	if err != nil {
		s.log.Error(ctx, "failed to list recent clusters", err)
		return 0
	}
	cutoff := time.Now().Add(-time.Hour)
	count := 0
	for _, cluster := range clusters {
		if cluster.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count
}

// rollupResellers refreshes every existing reseller aggregate.
func (s *riskAggregatorServiceImpl) rollupResellers(ctx context.Context) error {
	resellers, err := s.resellerRiskRepo.List(ctx)
	if err != nil {
		return err
	}
	for _, reseller := range resellers {
		avg, highRisk, err := s.tenantRiskRepo.ResellerRollup(ctx, reseller.ResellerID)
		if err != nil {
			s.log.Error(ctx, "failed to roll up reseller", err,
				logger.String("reseller_id", reseller.ResellerID))
			continue
		}
		updated := &models.ResellerRiskScore{
			ResellerID:      reseller.ResellerID,
			AggregatedRisk:  avg,
			HighRiskTenants: highRisk,
			RiskLevel:       models.StatusForScore(avg),
		}
		if err := s.resellerRiskRepo.Upsert(ctx, updated); err != nil {
			s.log.Error(ctx, "failed to upsert reseller rollup", err,
				logger.String("reseller_id", reseller.ResellerID))
			continue
		}
		if err := s.counterStore.Publish(ctx, constants.ChannelPlatformUpdate, map[string]interface{}{
			"resellerId":      updated.ResellerID,
			"aggregatedRisk":  updated.AggregatedRisk,
			"highRiskTenants": updated.HighRiskTenants,
			"riskLevel":       string(updated.RiskLevel),
		}); err != nil {
			s.log.Error(ctx, "failed to publish reseller update", err)
		}
	}
	return nil
}

func (s *riskAggregatorServiceImpl) UpdateTenantRiskScore(ctx context.Context, tenantID string, delta float64) error {
	existing, err := s.tenantRiskRepo.Get(ctx, tenantID)
	if err != nil {
		return err
	}

	current := 0.0
	anomalies := 0
	if existing != nil {
		current = existing.CurrentScore
		anomalies = existing.AnomalyCountLastHour
	}

	newScore := current + delta
	if newScore < 0 {
		newScore = 0
	}
	if newScore > 100 {
		newScore = 100
	}

	score := &models.TenantRiskScore{
		TenantID:             tenantID,
		CurrentScore:         newScore,
		Status:               models.StatusForScore(newScore),
		LastIncidentAt:       time.Now().UTC(),
		AnomalyCountLastHour: anomalies,
	}
	if delta > 0 {
		score.AnomalyCountLastHour++
	}

	if err := s.tenantRiskRepo.Upsert(ctx, score); err != nil {
		return err
	}

	update := models.TenantRiskUpdate{
		TenantID:  tenantID,
		RiskScore: newScore,
		RiskLevel: string(score.Status),
	}
	if err := s.counterStore.Publish(ctx, constants.ChannelTenantUpdate, update); err != nil {
		s.log.Error(ctx, "failed to publish tenant update", err)
	}
	return nil
}
