package service

import (
	"context"
	"math/rand"
	"time"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// ActionSource supplies the controller's randomness. Tests inject a
// deterministic source so decisions are replayable.
type ActionSource interface {
	// Float64 returns a uniform value in [0,1).
	Float64() float64
	// Intn returns a uniform value in [0,n).
	Intn(n int) int
}

type mathRandSource struct{ r *rand.Rand }

// NewMathRandSource returns a time-seeded ActionSource.
func NewMathRandSource() ActionSource {
	return &mathRandSource{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (s *mathRandSource) Float64() float64 { return s.r.Float64() }
func (s *mathRandSource) Intn(n int) int   { return s.r.Intn(n) }

// AdaptiveThresholdService tunes the global suspension threshold with an
// epsilon-greedy controller and keeps the decision audit trail.
type AdaptiveThresholdService interface {
	// RunInference decides keep/tighten/loosen on the system state, logs the
	// experience, applies the clamped adjustment, and mirrors the threshold
	// to the counter store.
	RunInference(ctx context.Context, state models.SystemState) error

	// RecordReward labels a past decision for offline evaluation.
	RecordReward(ctx context.Context, experienceID string, reward float64) error
}

type adaptiveThresholdServiceImpl struct {
	policyRepo   repository.PolicyRepository
	counterStore domainService.CounterStore
	actions      ActionSource
	metrics      *monitoring.Metrics
	riskCfg      config.RiskConfig
	log          logger.Logger
}

// NewAdaptiveThresholdService creates a new AdaptiveThresholdService.
func NewAdaptiveThresholdService(
	policyRepo repository.PolicyRepository,
	counterStore domainService.CounterStore,
	actions ActionSource,
	metrics *monitoring.Metrics,
	riskCfg config.RiskConfig,
	log logger.Logger,
) AdaptiveThresholdService {
	return &adaptiveThresholdServiceImpl{
		policyRepo:   policyRepo,
		counterStore: counterStore,
		actions:      actions,
		metrics:      metrics,
		riskCfg:      riskCfg,
		log:          log.WithComponent("AdaptiveThresholdService"),
	}
}

func (s *adaptiveThresholdServiceImpl) RunInference(ctx context.Context, state models.SystemState) error {
	defaults := models.RLPolicy{
		CurrentThreshold: constants.SuspensionThreshold,
		ExplorationRate:  s.riskCfg.ExplorationRate,
		LearningRate:     constants.DefaultLearningRate,
	}
	policy, err := s.policyRepo.GetOrCreatePolicy(ctx, constants.PolicyGlobalKillSwitch, defaults)
	if err != nil {
		return err
	}

	action := s.decide(policy.ExplorationRate, state)

	// The experience logs first so the audit trail survives even when the
	// apply step fails.
	exp := &models.RLExperience{State: state, Action: action}
	if err := s.policyRepo.AppendExperience(ctx, exp); err != nil {
		return err
	}

	threshold := policy.CurrentThreshold
	switch action {
	case constants.ActionTighten:
		threshold -= constants.AdaptiveStep
	case constants.ActionLoosen:
		threshold += constants.AdaptiveStep
	}
	if threshold < constants.MinAdaptiveThreshold {
		threshold = constants.MinAdaptiveThreshold
	}
	if threshold > constants.MaxAdaptiveThreshold {
		threshold = constants.MaxAdaptiveThreshold
	}

	if threshold != policy.CurrentThreshold {
		policy.CurrentThreshold = threshold
		if err := s.policyRepo.SavePolicy(ctx, policy); err != nil {
			return err
		}
		s.log.Info(ctx, "adaptive threshold adjusted",
			logger.Int("action", action),
			logger.Float64("threshold", threshold),
			logger.Float64("avg_risk", state.AvgRisk),
			logger.Float64("spike_velocity", state.SpikeVelocity))
	}

	if err := s.counterStore.SetThreshold(ctx, threshold, constants.ThresholdCacheTTL); err != nil {
		s.log.Error(ctx, "failed to mirror threshold to counter store", err)
	}
	s.metrics.DynamicThreshold.Set(threshold)
	return nil
}

// decide picks the action: explore uniformly with probability epsilon,
// otherwise exploit the load heuristic.
func (s *adaptiveThresholdServiceImpl) decide(epsilon float64, state models.SystemState) int {
	if s.actions.Float64() < epsilon {
		return s.actions.Intn(3)
	}
	if state.SpikeVelocity > 5 || state.FailureRate > 0.4 {
		return constants.ActionTighten
	}
	if state.AvgRisk < 10 && state.SuspensionCount == 0 {
		return constants.ActionLoosen
	}
	return constants.ActionKeep
}

func (s *adaptiveThresholdServiceImpl) RecordReward(ctx context.Context, experienceID string, reward float64) error {
	return s.policyRepo.AssignReward(ctx, experienceID, reward)
}
