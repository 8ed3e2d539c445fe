// Package service contains the application-level control loops that
// orchestrate the domain services, repositories, and infrastructure.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// RiskSignal is one inbound risk observation on a credential.
type RiskSignal struct {
	ApiKeyID string
	TenantID string
	RiskType constants.RiskType

	// ScoreOverride replaces the fixed category weight when set. Cluster
	// mitigation and ML shadow results use it.
	ScoreOverride *float64

	Metadata map[string]interface{}
}

// KillSwitchService accumulates risk signals on credentials and owns the
// kill-switch lifecycle: activation, tenant freeze cascade, periodic decay,
// and auto-recovery.
type KillSwitchService interface {
	// AddRiskSignal records a signal, accumulates the score, and runs the
	// suspension policy. A signal naming an unknown credential is dropped.
	AddRiskSignal(ctx context.Context, signal RiskSignal) error

	// DecaySweep applies the multiplicative decay to all positive scores and
	// auto-restores suspended credentials that have cooled below the floor.
	DecaySweep(ctx context.Context) error
}

type killSwitchServiceImpl struct {
	credentialRepo repository.CredentialRepository
	tenantRepo     repository.TenantRepository
	riskEventRepo  repository.RiskEventRepository
	policy         *domainService.SuspensionPolicy
	counterStore   domainService.CounterStore
	bus            domainService.EventBus
	notifier       domainService.Notifier
	metrics        *monitoring.Metrics
	riskCfg        config.RiskConfig
	securityTopic  string
	log            logger.Logger

	// keyLocks serializes evaluate+activate per credential within this
	// process. The score increment itself is already atomic in SQL.
	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewKillSwitchService creates a new KillSwitchService.
func NewKillSwitchService(
	credentialRepo repository.CredentialRepository,
	tenantRepo repository.TenantRepository,
	riskEventRepo repository.RiskEventRepository,
	policy *domainService.SuspensionPolicy,
	counterStore domainService.CounterStore,
	bus domainService.EventBus,
	notifier domainService.Notifier,
	metrics *monitoring.Metrics,
	riskCfg config.RiskConfig,
	securityTopic string,
	log logger.Logger,
) KillSwitchService {
	return &killSwitchServiceImpl{
		credentialRepo: credentialRepo,
		tenantRepo:     tenantRepo,
		riskEventRepo:  riskEventRepo,
		policy:         policy,
		counterStore:   counterStore,
		bus:            bus,
		notifier:       notifier,
		metrics:        metrics,
		riskCfg:        riskCfg,
		securityTopic:  securityTopic,
		log:            log.WithComponent("KillSwitchService"),
		keyLocks:       make(map[string]*sync.Mutex),
	}
}

func (s *killSwitchServiceImpl) lockFor(apiKeyID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.keyLocks[apiKeyID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.keyLocks[apiKeyID] = l
	return l
}

// AddRiskSignal is the single entry point for credential-level risk signals.
func (s *killSwitchServiceImpl) AddRiskSignal(ctx context.Context, signal RiskSignal) error {
	credential, err := s.credentialRepo.GetByID(ctx, signal.ApiKeyID)
	if err != nil {
		return err
	}
	if credential == nil {
		s.log.Warn(ctx, "risk signal for unknown credential, dropping",
			logger.String("api_key_id", signal.ApiKeyID),
			logger.String("risk_type", string(signal.RiskType)))
		s.metrics.RecordSignal(string(signal.RiskType), "dropped")
		return errors.ErrInvalidSignal
	}

	weight := domainService.WeightForSignal(signal.RiskType)
	if signal.ScoreOverride != nil {
		weight = *signal.ScoreOverride
	}

	event := &models.ApiKeyRiskEvent{
		ApiKeyID: signal.ApiKeyID,
		TenantID: signal.TenantID,
		RiskType: signal.RiskType,
		Severity: domainService.SeverityForScore(weight),
		Score:    weight,
		Metadata: signal.Metadata,
	}
	if err := s.riskEventRepo.Append(ctx, event); err != nil {
		return err
	}

	newScore, err := s.credentialRepo.AddRiskScore(ctx, signal.ApiKeyID, weight)
	if err != nil {
		return err
	}
	s.metrics.RecordSignal(string(signal.RiskType), "accumulated")

	lock := s.lockFor(signal.ApiKeyID)
	lock.Lock()
	defer lock.Unlock()

	categories, err := s.riskEventRepo.CategoriesSince(ctx, signal.ApiKeyID, time.Now().Add(-constants.CategoryWindow))
	if err != nil {
		return err
	}

	decision := s.policy.Evaluate(newScore, categories)
	switch {
	case decision.ShouldSuspend && !credential.KillSwitchActive:
		if err := s.activate(ctx, credential, signal.TenantID, newScore, decision.Reason); err != nil {
			return err
		}
	case decision.ShouldWarn:
		s.log.Warn(ctx, "credential entering warning mode",
			logger.String("api_key_id", signal.ApiKeyID),
			logger.String("tenant_id", signal.TenantID),
			logger.Float64("risk_score", newScore))
	}

	if newScore >= s.riskCfg.TenantFreezeScore {
		if err := s.freezeTenant(ctx, signal.TenantID, signal.ApiKeyID, newScore); err != nil {
			return err
		}
	}
	return nil
}

// activate flips the kill switch: the fast-path block flag goes in first so
// enforcement begins even if the durable write races a crash.
func (s *killSwitchServiceImpl) activate(ctx context.Context, credential *models.ApiCredential, tenantID string, score float64, reason string) error {
	if err := s.counterStore.SetBlockFlag(ctx, credential.ID, constants.BlockFlagTTL); err != nil {
		s.log.Error(ctx, "failed to set block flag", err, logger.String("api_key_id", credential.ID))
	}

	flipped, err := s.credentialRepo.MarkSuspended(ctx, credential.ID, reason)
	if err != nil {
		return err
	}
	if !flipped {
		// A concurrent signal won the race; its activation already alerted.
		s.log.Debug(ctx, "kill switch already active, skipping",
			logger.String("api_key_id", credential.ID))
		return nil
	}
	s.metrics.RecordKillSwitch("activate")

	s.log.Warn(ctx, "kill switch activated",
		logger.String("api_key_id", credential.ID),
		logger.String("tenant_id", tenantID),
		logger.Float64("risk_score", score),
		logger.String("reason", reason))

	alert := models.SecurityAlert{
		Type:     "KILL_SWITCH_ACTIVATED",
		Message:  reason,
		Severity: string(constants.RiskSeverityCritical),
		Metadata: map[string]interface{}{
			"apiKeyId":  credential.ID,
			"tenantId":  tenantID,
			"riskScore": score,
		},
	}
	if err := s.counterStore.Publish(ctx, constants.ChannelSecurityAlerts, alert); err != nil {
		s.log.Error(ctx, "failed to publish security alert", err)
	}
	if err := s.notifier.SendSecurityAlert(ctx, alert); err != nil {
		s.log.Error(ctx, "failed to notify security alert", err)
	}

	out := models.SecurityOutEvent{
		Action:    models.ActionApiKeySuspended,
		ApiKeyID:  credential.ID,
		TenantID:  tenantID,
		Reason:    reason,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.bus.Emit(ctx, s.securityTopic, out); err != nil {
		s.log.Error(ctx, "failed to emit suspension event", err)
	}
	return nil
}

// freezeTenant cascades a runaway credential into a tenant-wide suspension.
// The status-guarded update makes repeat triggers no-ops.
func (s *killSwitchServiceImpl) freezeTenant(ctx context.Context, tenantID, apiKeyID string, score float64) error {
	frozen, err := s.tenantRepo.Suspend(ctx, tenantID)
	if err != nil {
		return err
	}
	if !frozen {
		return nil
	}
	s.metrics.TenantFreezes.Inc()

	s.log.Error(ctx, "tenant frozen by risk cascade", nil,
		logger.String("tenant_id", tenantID),
		logger.String("api_key_id", apiKeyID),
		logger.Float64("risk_score", score))

	alert := models.SecurityAlert{
		Type:     "TENANT_FROZEN",
		Message:  "Tenant frozen after credential risk exceeded the freeze threshold",
		Severity: string(constants.RiskSeverityCritical),
		Metadata: map[string]interface{}{
			"tenantId":  tenantID,
			"apiKeyId":  apiKeyID,
			"riskScore": score,
		},
	}
	if err := s.counterStore.Publish(ctx, constants.ChannelSecurityAlerts, alert); err != nil {
		s.log.Error(ctx, "failed to publish freeze alert", err)
	}
	if err := s.notifier.SendSecurityAlert(ctx, alert); err != nil {
		s.log.Error(ctx, "failed to notify freeze alert", err)
	}

	out := models.SecurityOutEvent{
		Action:    models.ActionTenantSuspended,
		TenantID:  tenantID,
		Reason:    "Risk cascade from credential " + apiKeyID,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.bus.Emit(ctx, s.securityTopic, out); err != nil {
		s.log.Error(ctx, "failed to emit tenant suspension event", err)
	}
	return nil
}

// DecaySweep runs the periodic cool-down and auto-recovery pass.
func (s *killSwitchServiceImpl) DecaySweep(ctx context.Context) error {
	start := time.Now()
	defer func() {
		s.metrics.DecayDuration.Observe(time.Since(start).Seconds())
	}()

	if err := s.credentialRepo.DecayScores(ctx, s.riskCfg.DecayFactor); err != nil {
		return err
	}

	suspended, err := s.credentialRepo.ListSuspended(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, credential := range suspended {
		if credential.RiskScore >= s.riskCfg.RecoveryFloor {
			continue
		}
		// Durable restore commits before the fast-path flag clears; a crash
		// in between leaves an over-blocked key that the TTL resolves.
		if err := s.credentialRepo.MarkRestored(ctx, credential.ID); err != nil {
			s.log.Error(ctx, "failed to restore credential", err, logger.String("api_key_id", credential.ID))
			continue
		}
		if err := s.counterStore.ClearBlockFlag(ctx, credential.ID); err != nil {
			s.log.Error(ctx, "failed to clear block flag", err, logger.String("api_key_id", credential.ID))
		}
		s.metrics.RecordKillSwitch("restore")
		restored++
		s.log.Info(ctx, "credential auto-restored",
			logger.String("api_key_id", credential.ID),
			logger.Float64("risk_score", credential.RiskScore))
	}

	s.log.Debug(ctx, "decay sweep completed",
		logger.Int("suspended", len(suspended)),
		logger.Int("restored", restored),
		logger.Duration("took", time.Since(start)))
	return nil
}
