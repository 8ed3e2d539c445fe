package consumers

import (
	"context"
	"encoding/json"

	"github.com/aimstors/sentinel/internal/application/service"
	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/infrastructure/bus"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// MLResultWorker consumes shadow-mode scoring results from the external ML
// pipeline and feeds them in as AI_ML_SIGNAL risk signals.
type MLResultWorker struct {
	loop       *bus.ConsumerLoop
	killSwitch service.KillSwitchService
	aggregator service.RiskAggregatorService
	log        logger.Logger
}

// NewMLResultWorker creates a new MLResultWorker.
func NewMLResultWorker(
	cfg config.KafkaConfig,
	killSwitch service.KillSwitchService,
	aggregator service.RiskAggregatorService,
	log logger.Logger,
) *MLResultWorker {
	return &MLResultWorker{
		loop:       bus.NewConsumerLoop(cfg, cfg.MLResultsTopic, cfg.MLResultsGroup, log),
		killSwitch: killSwitch,
		aggregator: aggregator,
		log:        log.WithComponent("MLResultWorker"),
	}
}

// Start runs the consumer loop until the context is canceled.
func (w *MLResultWorker) Start(ctx context.Context) {
	w.loop.Run(ctx, w.handle)
}

// Stop shuts the loop down.
func (w *MLResultWorker) Stop() {
	w.loop.Stop()
}

// HandleResult applies one shadow result. Results missing either id carry no
// enforceable target and are skipped.
func (w *MLResultWorker) HandleResult(ctx context.Context, result *models.MLResult) error {
	if result.TenantID == "" || result.ApiKeyID == "" {
		w.log.Debug(ctx, "ml result missing tenant or credential, skipping")
		return nil
	}

	override := 20.0
	signal := service.RiskSignal{
		ApiKeyID:      result.ApiKeyID,
		TenantID:      result.TenantID,
		RiskType:      constants.RiskTypeAIMLSignal,
		ScoreOverride: &override,
		Metadata: map[string]interface{}{
			"mlScore": result.Score,
			"model":   result.Model,
		},
	}
	if err := w.killSwitch.AddRiskSignal(ctx, signal); err != nil {
		w.log.Error(ctx, "failed to add ml signal", err,
			logger.String("api_key_id", result.ApiKeyID))
	}

	if err := w.aggregator.UpdateTenantRiskScore(ctx, result.TenantID, 5); err != nil {
		w.log.Error(ctx, "failed to bump tenant score", err,
			logger.String("tenant_id", result.TenantID))
	}
	return nil
}

func (w *MLResultWorker) handle(ctx context.Context, value []byte) error {
	var result models.MLResult
	if err := json.Unmarshal(value, &result); err != nil {
		w.log.Warn(ctx, "malformed ml result, committing as poison pill",
			logger.String("payload", string(value)))
		return nil
	}
	return w.HandleResult(ctx, &result)
}
