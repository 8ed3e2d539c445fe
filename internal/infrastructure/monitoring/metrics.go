package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics for the risk engine.
type Metrics struct {
	SignalsProcessed    *prometheus.CounterVec
	KillSwitchActions   *prometheus.CounterVec
	TenantFreezes       prometheus.Counter
	DecayDuration       prometheus.Histogram
	OracleLatency       prometheus.Histogram
	OracleFallbacks     prometheus.Counter
	DynamicThreshold    prometheus.Gauge
	PlatformRiskScore   prometheus.Gauge
	SuspendedApiKeys    prometheus.Gauge
	ClustersDetected    *prometheus.CounterVec
	ConsumerLag         *prometheus.GaugeVec
	AggregationDuration prometheus.Histogram
}

// NewMetrics creates the Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SignalsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_signals_processed_total",
				Help: "Total risk signals processed, by type and outcome.",
			},
			[]string{"risk_type", "outcome"},
		),
		KillSwitchActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_killswitch_actions_total",
				Help: "Kill-switch activations and restores.",
			},
			[]string{"action"},
		),
		TenantFreezes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_tenant_freezes_total",
				Help: "Total tenant-wide freeze cascades.",
			},
		),
		DecayDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_decay_sweep_duration_seconds",
				Help:    "Duration of the periodic score decay sweep.",
				Buckets: prometheus.DefBuckets,
			},
		),
		OracleLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_oracle_latency_seconds",
				Help:    "Latency of ML scoring calls.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		OracleFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinel_oracle_fallbacks_total",
				Help: "Evaluations that fell back to the local heuristic.",
			},
		),
		DynamicThreshold: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_dynamic_threshold",
				Help: "Current adaptive suspension threshold.",
			},
		),
		PlatformRiskScore: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_platform_risk_score",
				Help: "Latest platform-wide risk score in [0,100].",
			},
		),
		SuspendedApiKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_suspended_api_keys",
				Help: "Number of currently suspended credentials.",
			},
		),
		ClustersDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_clusters_detected_total",
				Help: "Cross-tenant anomaly clusters detected, by risk level.",
			},
			[]string{"risk_level"},
		),
		ConsumerLag: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_consumer_lag_messages",
				Help: "Approximate consumer lag per topic.",
			},
			[]string{"topic"},
		),
		AggregationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_aggregation_duration_seconds",
				Help:    "Duration of a platform risk aggregation tick.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordSignal records one processed risk signal.
func (m *Metrics) RecordSignal(riskType, outcome string) {
	m.SignalsProcessed.WithLabelValues(riskType, outcome).Inc()
}

// RecordKillSwitch records a kill-switch state change.
func (m *Metrics) RecordKillSwitch(action string) {
	m.KillSwitchActions.WithLabelValues(action).Inc()
}

// RecordOracleCall records one scoring round trip.
func (m *Metrics) RecordOracleCall(duration time.Duration, fellBack bool) {
	m.OracleLatency.Observe(duration.Seconds())
	if fellBack {
		m.OracleFallbacks.Inc()
	}
}

// RecordCluster records one detected cluster.
func (m *Metrics) RecordCluster(riskLevel string) {
	m.ClustersDetected.WithLabelValues(riskLevel).Inc()
}
