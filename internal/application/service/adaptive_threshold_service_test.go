package service_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aimstors/sentinel/internal/application/service"
	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/service/mocks"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// stubActionSource replays scripted randomness so decisions are deterministic.
type stubActionSource struct {
	floats []float64
	ints   []int
}

func (s *stubActionSource) Float64() float64 {
	v := s.floats[0]
	if len(s.floats) > 1 {
		s.floats = s.floats[1:]
	}
	return v
}

func (s *stubActionSource) Intn(n int) int {
	v := s.ints[0]
	if len(s.ints) > 1 {
		s.ints = s.ints[1:]
	}
	return v % n
}

type adaptiveFixture struct {
	policyRepo   *mocks.MockPolicyRepository
	counterStore *mocks.MockCounterStore
	svc          service.AdaptiveThresholdService
}

func newAdaptiveFixture(t *testing.T, source service.ActionSource) *adaptiveFixture {
	t.Helper()
	f := &adaptiveFixture{
		policyRepo:   new(mocks.MockPolicyRepository),
		counterStore: new(mocks.MockCounterStore),
	}
	f.svc = service.NewAdaptiveThresholdService(
		f.policyRepo, f.counterStore, source,
		monitoring.NewMetrics(prometheus.NewRegistry()),
		config.RiskConfig{ExplorationRate: 0.1},
		logger.NewNoopLogger())
	return f
}

func policyAt(threshold float64) *models.RLPolicy {
	return &models.RLPolicy{
		Name:             constants.PolicyGlobalKillSwitch,
		CurrentThreshold: threshold,
		ExplorationRate:  0.1,
		LearningRate:     constants.DefaultLearningRate,
	}
}

func TestAdaptiveThreshold_ExploitTightensUnderAttack(t *testing.T) {
	// Float64 0.99 >= epsilon: exploit. Spike velocity above 5 tightens.
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.99}, ints: []int{0}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, constants.PolicyGlobalKillSwitch, mock.Anything).
		Return(policyAt(80), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(nil)
	f.policyRepo.On("SavePolicy", mock.Anything, mock.Anything).Return(nil)
	f.counterStore.On("SetThreshold", mock.Anything, 75.0, constants.ThresholdCacheTTL).Return(nil)

	state := models.SystemState{AvgRisk: 20, SpikeVelocity: 7, FailureRate: 0.1, SuspensionCount: 1}
	require.NoError(t, f.svc.RunInference(context.Background(), state))

	exp := f.policyRepo.Calls[1].Arguments.Get(1).(*models.RLExperience)
	assert.Equal(t, constants.ActionTighten, exp.Action)
	assert.Equal(t, state, exp.State)

	saved := f.policyRepo.Calls[2].Arguments.Get(1).(*models.RLPolicy)
	assert.Equal(t, 75.0, saved.CurrentThreshold)
}

func TestAdaptiveThreshold_ExploitTightensOnFailureRate(t *testing.T) {
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.5}, ints: []int{0}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, mock.Anything, mock.Anything).Return(policyAt(100), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(nil)
	f.policyRepo.On("SavePolicy", mock.Anything, mock.Anything).Return(nil)
	f.counterStore.On("SetThreshold", mock.Anything, 95.0, constants.ThresholdCacheTTL).Return(nil)

	state := models.SystemState{AvgRisk: 30, SpikeVelocity: 1, FailureRate: 0.5, SuspensionCount: 3}
	require.NoError(t, f.svc.RunInference(context.Background(), state))

	f.counterStore.AssertCalled(t, "SetThreshold", mock.Anything, 95.0, constants.ThresholdCacheTTL)
}

func TestAdaptiveThreshold_ExploitLoosensWhenQuiet(t *testing.T) {
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.99}, ints: []int{0}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, mock.Anything, mock.Anything).Return(policyAt(80), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(nil)
	f.policyRepo.On("SavePolicy", mock.Anything, mock.Anything).Return(nil)
	f.counterStore.On("SetThreshold", mock.Anything, 85.0, constants.ThresholdCacheTTL).Return(nil)

	state := models.SystemState{AvgRisk: 5, SpikeVelocity: 0, FailureRate: 0, SuspensionCount: 0}
	require.NoError(t, f.svc.RunInference(context.Background(), state))

	exp := f.policyRepo.Calls[1].Arguments.Get(1).(*models.RLExperience)
	assert.Equal(t, constants.ActionLoosen, exp.Action)
}

func TestAdaptiveThreshold_ExploitKeepsInBetween(t *testing.T) {
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.99}, ints: []int{0}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, mock.Anything, mock.Anything).Return(policyAt(80), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(nil)
	f.counterStore.On("SetThreshold", mock.Anything, 80.0, constants.ThresholdCacheTTL).Return(nil)

	state := models.SystemState{AvgRisk: 25, SpikeVelocity: 2, FailureRate: 0.2, SuspensionCount: 1}
	require.NoError(t, f.svc.RunInference(context.Background(), state))

	// Keep means no persisted change, only the cache mirror refreshes.
	f.policyRepo.AssertNotCalled(t, "SavePolicy", mock.Anything, mock.Anything)
}

func TestAdaptiveThreshold_ExploreOverridesHeuristic(t *testing.T) {
	// Float64 0.05 < epsilon 0.1: explore, Intn picks loosen even though the
	// state screams tighten.
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.05}, ints: []int{constants.ActionLoosen}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, mock.Anything, mock.Anything).Return(policyAt(80), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(nil)
	f.policyRepo.On("SavePolicy", mock.Anything, mock.Anything).Return(nil)
	f.counterStore.On("SetThreshold", mock.Anything, 85.0, constants.ThresholdCacheTTL).Return(nil)

	state := models.SystemState{AvgRisk: 90, SpikeVelocity: 50, FailureRate: 0.9, SuspensionCount: 10}
	require.NoError(t, f.svc.RunInference(context.Background(), state))

	exp := f.policyRepo.Calls[1].Arguments.Get(1).(*models.RLExperience)
	assert.Equal(t, constants.ActionLoosen, exp.Action)
}

func TestAdaptiveThreshold_ClampAtFloor(t *testing.T) {
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.99}, ints: []int{0}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, mock.Anything, mock.Anything).Return(policyAt(40), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(nil)
	f.counterStore.On("SetThreshold", mock.Anything, 40.0, constants.ThresholdCacheTTL).Return(nil)

	state := models.SystemState{SpikeVelocity: 10}
	require.NoError(t, f.svc.RunInference(context.Background(), state))

	// Tighten from the floor clamps back to the floor: no change, no save.
	f.policyRepo.AssertNotCalled(t, "SavePolicy", mock.Anything, mock.Anything)
}

func TestAdaptiveThreshold_ClampAtCeiling(t *testing.T) {
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.99}, ints: []int{0}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, mock.Anything, mock.Anything).Return(policyAt(120), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(nil)
	f.counterStore.On("SetThreshold", mock.Anything, 120.0, constants.ThresholdCacheTTL).Return(nil)

	state := models.SystemState{AvgRisk: 0, SuspensionCount: 0}
	require.NoError(t, f.svc.RunInference(context.Background(), state))

	f.policyRepo.AssertNotCalled(t, "SavePolicy", mock.Anything, mock.Anything)
}

func TestAdaptiveThreshold_ExperienceLoggedBeforeApply(t *testing.T) {
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.99}, ints: []int{0}})
	f.policyRepo.On("GetOrCreatePolicy", mock.Anything, mock.Anything, mock.Anything).Return(policyAt(80), nil)
	f.policyRepo.On("AppendExperience", mock.Anything, mock.Anything).Return(assert.AnError)

	state := models.SystemState{SpikeVelocity: 10}
	err := f.svc.RunInference(context.Background(), state)
	require.Error(t, err)

	// The apply step never runs when the audit write fails.
	f.policyRepo.AssertNotCalled(t, "SavePolicy", mock.Anything, mock.Anything)
	f.counterStore.AssertNotCalled(t, "SetThreshold", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdaptiveThreshold_RecordReward(t *testing.T) {
	f := newAdaptiveFixture(t, &stubActionSource{floats: []float64{0.99}, ints: []int{0}})
	f.policyRepo.On("AssignReward", mock.Anything, "exp-1", 2.5).Return(nil)

	require.NoError(t, f.svc.RecordReward(context.Background(), "exp-1", 2.5))
	f.policyRepo.AssertExpectations(t)
}
