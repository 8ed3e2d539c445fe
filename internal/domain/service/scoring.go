package service

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

// RiskScorer evaluates raw events into anomaly scores. It calls the external
// scoring oracle and degrades to a local heuristic when the oracle is
// unavailable, so the pipeline never stalls on scoring.
type RiskScorer struct {
	oracle   ScoreOracle
	observer OracleObserver
	cache    *gocache.Cache
	log      logger.Logger
}

// NewRiskScorer creates a scorer backed by the given oracle.
func NewRiskScorer(oracle ScoreOracle, observer OracleObserver, log logger.Logger) *RiskScorer {
	return &RiskScorer{
		oracle:   oracle,
		observer: observer,
		cache:    gocache.New(constants.OracleScoreCacheTTL, 2*constants.OracleScoreCacheTTL),
		log:      log.WithComponent("RiskScorer"),
	}
}

// Extract maps a raw event into the fixed-shape feature record. It coerces
// numeric metadata and zero-defaults anything missing; it never fails.
func Extract(event *models.UsageEvent) models.FeatureVector {
	fv := models.FeatureVector{}
	if event == nil {
		return fv
	}

	fv.TenantID = event.TenantID
	fv.ApiKeyID = event.ApiKeyID()
	fv.MsgRate1m = metaFloat(event.Metadata, "message_rate_1m")
	fv.MsgRate5m = metaFloat(event.Metadata, "message_rate_5m")
	fv.FailureRate = metaFloat(event.Metadata, "failure_rate")
	fv.DistinctIPs = metaFloat(event.Metadata, "unique_ips")
	fv.GeoEntropy = metaFloat(event.Metadata, "geo_entropy")
	fv.AvgResponseMs = metaFloat(event.Metadata, "avg_response_time")
	return fv
}

// Evaluate scores an event in [0,1]. Oracle results are memoized briefly per
// credential to bound oracle QPS; on oracle failure the heuristic applies.
func (s *RiskScorer) Evaluate(ctx context.Context, event *models.UsageEvent) float64 {
	features := Extract(event)

	cacheKey := features.TenantID + ":" + features.ApiKeyID
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(float64)
	}

	start := time.Now()
	score, err := s.oracle.Score(ctx, features)
	s.observer.RecordOracleCall(time.Since(start), err != nil)
	if err != nil {
		score = Heuristic(features)
		s.log.Warn(ctx, "scoring oracle unavailable, using heuristic",
			logger.String("tenant_id", features.TenantID),
			logger.Float64("heuristic_score", score),
			logger.String("cause", err.Error()))
		return score
	}

	s.cache.Set(cacheKey, score, gocache.DefaultExpiration)
	return score
}

// Heuristic is the local fallback score: failure rate dominates, with a flat
// bump for an ongoing rate spike.
func Heuristic(features models.FeatureVector) float64 {
	score := 0.5 * features.FailureRate
	if features.MsgRate1m > constants.RateSpikePerMinute {
		score += 0.5
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Classify maps a continuous score to its discrete band. Fixed breakpoints,
// no hysteresis; a borderline score can flap between bands.
func Classify(score float64) constants.AnomalyBand {
	switch {
	case score > constants.BandCriticalAbove:
		return constants.BandCritical
	case score > constants.BandHighAbove:
		return constants.BandHigh
	case score > constants.BandWarningAbove:
		return constants.BandWarning
	default:
		return constants.BandNormal
	}
}

func metaFloat(meta map[string]interface{}, key string) float64 {
	if meta == nil {
		return 0
	}
	switch v := meta[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
