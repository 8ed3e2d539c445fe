package consumers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aimstors/sentinel/internal/application/service"
	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/infrastructure/bus"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// ClusterWorker consumes cluster events and runs mitigation: persist the
// cluster, escalate every member tenant, broadcast the alert.
type ClusterWorker struct {
	loop         *bus.ConsumerLoop
	clusterRepo  repository.ClusterRepository
	aggregator   service.RiskAggregatorService
	counterStore domainService.CounterStore
	metrics      *monitoring.Metrics
	escalation   float64
	log          logger.Logger
}

// NewClusterWorker creates a new ClusterWorker.
func NewClusterWorker(
	cfg config.KafkaConfig,
	riskCfg config.RiskConfig,
	clusterRepo repository.ClusterRepository,
	aggregator service.RiskAggregatorService,
	counterStore domainService.CounterStore,
	metrics *monitoring.Metrics,
	log logger.Logger,
) *ClusterWorker {
	return &ClusterWorker{
		loop:         bus.NewConsumerLoop(cfg, cfg.ClusterTopic, cfg.MitigationGroup, log),
		clusterRepo:  clusterRepo,
		aggregator:   aggregator,
		counterStore: counterStore,
		metrics:      metrics,
		escalation:   riskCfg.ClusterTenantEscalat,
		log:          log.WithComponent("ClusterWorker"),
	}
}

// Start runs the consumer loop until the context is canceled.
func (w *ClusterWorker) Start(ctx context.Context) {
	w.loop.Run(ctx, w.handle)
}

// Stop shuts the loop down.
func (w *ClusterWorker) Stop() {
	w.loop.Stop()
}

// HandleCluster mitigates one announced cluster.
func (w *ClusterWorker) HandleCluster(ctx context.Context, event *models.ClusterEvent) error {
	if len(event.Tenants) == 0 {
		return nil
	}

	riskLevel := constants.ClusterRiskWarning
	switch {
	case event.RiskScore >= 50:
		riskLevel = constants.ClusterRiskCritical
	case event.RiskScore >= 25:
		riskLevel = constants.ClusterRiskHigh
	}

	// Clusters the batch detector persisted arrive with their signature;
	// only externally produced events need a row written here.
	signature := event.Signature
	if signature == "" {
		cluster := &models.PlatformAnomalyCluster{
			ClusterSignature:    event.Type + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10),
			AffectedTenantCount: len(event.Tenants),
			RiskLevel:           riskLevel,
			Metadata: map[string]interface{}{
				"event":     event.Event,
				"tenants":   event.Tenants,
				"riskScore": event.RiskScore,
				"timestamp": event.Timestamp,
			},
		}
		if err := w.clusterRepo.Append(ctx, cluster); err != nil {
			return err
		}
		w.metrics.RecordCluster(string(riskLevel))
		signature = cluster.ClusterSignature
	}

	for _, tenantID := range event.Tenants {
		if err := w.aggregator.UpdateTenantRiskScore(ctx, tenantID, w.escalation); err != nil {
			w.log.Error(ctx, "failed to escalate cluster member", err,
				logger.String("tenant_id", tenantID))
		}
	}

	alert := models.SecurityAlert{
		Type:     "CLUSTER_DETECTED",
		Message:  "Cross-tenant anomaly cluster under mitigation",
		Severity: string(constants.RiskSeverityCritical),
		Metadata: map[string]interface{}{
			"signature":       signature,
			"affectedTenants": len(event.Tenants),
			"riskLevel":       string(riskLevel),
		},
	}
	if err := w.counterStore.Publish(ctx, constants.ChannelSecurityAlerts, alert); err != nil {
		w.log.Error(ctx, "failed to publish cluster alert", err)
	}

	w.log.Warn(ctx, "cluster mitigation applied",
		logger.String("signature", signature),
		logger.Int("members", len(event.Tenants)),
		logger.String("risk_level", string(riskLevel)))
	return nil
}

func (w *ClusterWorker) handle(ctx context.Context, value []byte) error {
	var event models.ClusterEvent
	if err := json.Unmarshal(value, &event); err != nil {
		w.log.Warn(ctx, "malformed cluster event, committing as poison pill",
			logger.String("payload", string(value)))
		return nil
	}
	return w.HandleCluster(ctx, &event)
}
