// Package consumers contains the Kafka stream workers feeding the risk
// engine: usage/security signals, ML shadow results, cluster mitigation.
package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aimstors/sentinel/internal/application/service"
	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/models"
	domainService "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/infrastructure/bus"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// StreamWorker consumes the usage and security topics and turns raw events
// into risk signals, alerts, and platform spike tracking. Offsets commit
// after local processing; downstream fan-out failures only log.
type StreamWorker struct {
	usageLoop    *bus.ConsumerLoop
	securityLoop *bus.ConsumerLoop
	counterStore domainService.CounterStore
	producer     domainService.EventBus
	killSwitch   service.KillSwitchService
	aggregator   service.RiskAggregatorService
	scorer       *domainService.RiskScorer
	riskCfg      config.RiskConfig
	alertsTopic  string
	log          logger.Logger
}

// NewStreamWorker creates the worker with its two consumer-group readers.
func NewStreamWorker(
	cfg config.KafkaConfig,
	riskCfg config.RiskConfig,
	counterStore domainService.CounterStore,
	producer domainService.EventBus,
	killSwitch service.KillSwitchService,
	aggregator service.RiskAggregatorService,
	scorer *domainService.RiskScorer,
	log logger.Logger,
) *StreamWorker {
	return &StreamWorker{
		usageLoop:    bus.NewConsumerLoop(cfg, cfg.UsageTopic, cfg.EngineGroup, log),
		securityLoop: bus.NewConsumerLoop(cfg, cfg.SecurityTopic, cfg.EngineGroup, log),
		counterStore: counterStore,
		producer:     producer,
		killSwitch:   killSwitch,
		aggregator:   aggregator,
		scorer:       scorer,
		riskCfg:      riskCfg,
		alertsTopic:  cfg.AlertsTopic,
		log:          log.WithComponent("StreamWorker"),
	}
}

// Start runs both consumer loops until the context is canceled.
func (w *StreamWorker) Start(ctx context.Context) {
	go w.usageLoop.Run(ctx, w.handleUsage)
	w.securityLoop.Run(ctx, w.handleSecurity)
}

// Stop shuts both loops down.
func (w *StreamWorker) Stop() {
	w.usageLoop.Stop()
	w.securityLoop.Stop()
}

// HandleUsage processes one usage event. Exported through the loop handler
// so scenario tests can drive it directly.
func (w *StreamWorker) HandleUsage(ctx context.Context, event *models.UsageEvent) error {
	if event.TenantID == "" || event.Metric == "" {
		w.log.Debug(ctx, "usage event missing tenant or metric, skipping")
		return nil
	}

	now := time.Now()
	key := fmt.Sprintf(constants.KeyWindowFmt, event.TenantID, event.Metric)
	member := event.EventID
	if member == "" {
		member = strconv.FormatInt(now.UnixNano(), 10)
	}

	rate, err := w.counterStore.SlideWindow(ctx, key, member, now, constants.SlidingWindow)
	if err != nil {
		return err
	}

	if rate > w.riskCfg.RateSpikePerMinute {
		if apiKeyID := event.ApiKeyID(); apiKeyID != "" {
			signal := service.RiskSignal{
				ApiKeyID: apiKeyID,
				TenantID: event.TenantID,
				RiskType: constants.RiskTypeRateSpike,
				Metadata: map[string]interface{}{
					"metric":     event.Metric,
					"ratePerMin": rate,
				},
			}
			if err := w.killSwitch.AddRiskSignal(ctx, signal); err != nil {
				w.log.Error(ctx, "failed to add rate spike signal", err,
					logger.String("api_key_id", apiKeyID))
			}
		}
		if err := w.aggregator.UpdateTenantRiskScore(ctx, event.TenantID, 10); err != nil {
			w.log.Error(ctx, "failed to bump tenant score", err,
				logger.String("tenant_id", event.TenantID))
		}
	}

	if len(event.Metadata) > 0 {
		score := w.scorer.Evaluate(ctx, event)
		band := domainService.Classify(score)
		if band == constants.BandCritical || band == constants.BandHigh {
			w.log.Warn(ctx, "anomalous usage pattern",
				logger.String("tenant_id", event.TenantID),
				logger.Float64("anomaly_score", score),
				logger.String("band", string(band)))
		}
		if band == constants.BandCritical {
			if apiKeyID := event.ApiKeyID(); apiKeyID != "" {
				signal := service.RiskSignal{
					ApiKeyID: apiKeyID,
					TenantID: event.TenantID,
					RiskType: constants.RiskTypeFailureSpike,
					Metadata: map[string]interface{}{
						"anomalyScore": score,
						"metric":       event.Metric,
					},
				}
				if err := w.killSwitch.AddRiskSignal(ctx, signal); err != nil {
					w.log.Error(ctx, "failed to add anomaly signal", err,
						logger.String("api_key_id", apiKeyID))
				}
			}
		}
	}

	if rate > w.riskCfg.AlertSpikePerMinute {
		alert := models.AnomalyAlert{
			Type:      models.AlertTypeTenantAnomaly,
			TenantID:  event.TenantID,
			Reason:    "Usage rate spike on metric " + event.Metric,
			Magnitude: rate,
			Timestamp: now.UnixMilli(),
		}
		if err := w.producer.Emit(ctx, w.alertsTopic, alert); err != nil {
			w.log.Error(ctx, "failed to emit tenant anomaly alert", err)
		}
	}

	if rate > w.riskCfg.PlatformSpikeFloor {
		spiking, err := w.counterStore.SlideWindow(ctx, constants.KeyPlatformSpikes, event.TenantID, now, constants.SlidingWindow)
		if err != nil {
			w.log.Error(ctx, "failed to track platform spike set", err)
			return nil
		}
		if spiking >= w.riskCfg.PlatformClusterSize {
			alert := models.AnomalyAlert{
				Type:            models.AlertTypePlatformCluster,
				AffectedTenants: spiking,
				Reason:          "Concurrent usage spikes across tenants",
				Timestamp:       now.UnixMilli(),
			}
			if err := w.producer.Emit(ctx, w.alertsTopic, alert); err != nil {
				w.log.Error(ctx, "failed to emit platform cluster alert", err)
			}
		}
	}
	return nil
}

// HandleSecurity processes one security event.
func (w *StreamWorker) HandleSecurity(ctx context.Context, event *models.SecurityEvent) error {
	if event.Action != models.ActionApiKeyAuthFailed && event.Action != models.ActionLoginFailed {
		return nil
	}
	if event.TenantID == "" {
		return nil
	}

	key := fmt.Sprintf(constants.KeySecurityFailsFmt, event.TenantID)
	fails, err := w.counterStore.IncrWithTTL(ctx, key, constants.FailureWindow)
	if err != nil {
		return err
	}

	if fails > w.riskCfg.AuthSpamFailures {
		if apiKeyID := event.ApiKeyID(); apiKeyID != "" {
			override := 50.0
			signal := service.RiskSignal{
				ApiKeyID:      apiKeyID,
				TenantID:      event.TenantID,
				RiskType:      constants.RiskTypeAuthSpam,
				ScoreOverride: &override,
				Metadata: map[string]interface{}{
					"failures": fails,
					"action":   event.Action,
				},
			}
			if err := w.killSwitch.AddRiskSignal(ctx, signal); err != nil {
				w.log.Error(ctx, "failed to add auth spam signal", err,
					logger.String("api_key_id", apiKeyID))
			}
			if err := w.aggregator.UpdateTenantRiskScore(ctx, event.TenantID, 25); err != nil {
				w.log.Error(ctx, "failed to bump tenant score", err,
					logger.String("tenant_id", event.TenantID))
			}
		}
	}

	// The brute-force alert stands on its own so credential-less failure
	// floods still surface once the spam tier is passed.
	if fails > w.riskCfg.BruteForceFailures {
		alert := models.AnomalyAlert{
			Type:      models.AlertTypeTenantAnomaly,
			TenantID:  event.TenantID,
			Reason:    "Elevated authentication failures suggest brute force",
			Magnitude: fails,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := w.producer.Emit(ctx, w.alertsTopic, alert); err != nil {
			w.log.Error(ctx, "failed to emit brute force alert", err)
		}
	}
	return nil
}

func (w *StreamWorker) handleUsage(ctx context.Context, value []byte) error {
	var event models.UsageEvent
	if err := json.Unmarshal(value, &event); err != nil {
		w.log.Warn(ctx, "malformed usage event, committing as poison pill",
			logger.String("payload", string(value)))
		return nil
	}
	return w.HandleUsage(ctx, &event)
}

func (w *StreamWorker) handleSecurity(ctx context.Context, value []byte) error {
	var event models.SecurityEvent
	if err := json.Unmarshal(value, &event); err != nil {
		w.log.Warn(ctx, "malformed security event, committing as poison pill",
			logger.String("payload", string(value)))
		return nil
	}
	return w.HandleSecurity(ctx, &event)
}
