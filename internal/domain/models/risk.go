// Package models contains the domain entities of the Sentinel risk engine.
package models

import (
	"time"

	"github.com/aimstors/sentinel/pkg/constants"
)

// ApiKeyRiskEvent is one detected signal on a credential. Rows are append-only
// and form the forensic trail behind every suspension decision.
type ApiKeyRiskEvent struct {
	ID        string                 `json:"id"`
	ApiKeyID  string                 `json:"api_key_id"`
	TenantID  string                 `json:"tenant_id"`
	RiskType  constants.RiskType     `json:"risk_type"`
	Severity  constants.RiskSeverity `json:"severity"`
	Score     float64                `json:"score"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// TenantRiskScore is the per-tenant risk aggregate, upserted by tenant id.
// Status is a pure function of CurrentScore via the fixed breakpoints.
type TenantRiskScore struct {
	TenantID             string               `json:"tenant_id"`
	CurrentScore         float64              `json:"current_score"`
	Status               constants.RiskStatus `json:"status"`
	LastIncidentAt       time.Time            `json:"last_incident_at"`
	AnomalyCountLastHour int                  `json:"anomaly_count_last_hour"`
}

// StatusForScore derives the discrete risk status from a clamped [0,100]
// score. The breakpoints are fixed; status is never set independently.
func StatusForScore(score float64) constants.RiskStatus {
	switch {
	case score >= constants.TenantStatusCriticalAt:
		return constants.RiskStatusCritical
	case score >= constants.TenantStatusHighRiskAt:
		return constants.RiskStatusHighRisk
	case score >= constants.TenantStatusWarningAt:
		return constants.RiskStatusWarning
	default:
		return constants.RiskStatusNormal
	}
}

// ResellerRiskScore rolls a reseller's sub-tenant risk up into one row.
// Written only by the risk aggregator.
type ResellerRiskScore struct {
	ResellerID      string               `json:"reseller_id"`
	AggregatedRisk  float64              `json:"aggregated_risk"`
	HighRiskTenants int                  `json:"high_risk_tenants"`
	RiskLevel       constants.RiskStatus `json:"risk_level"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// PlatformRiskSnapshot is an append-only time-series row, one per
// aggregation tick, read by dashboards and trend charts.
type PlatformRiskSnapshot struct {
	ID               string    `json:"id"`
	OverallScore     float64   `json:"overall_score"`
	HighRiskTenants  int       `json:"high_risk_tenants"`
	SuspendedApiKeys int       `json:"suspended_api_keys"`
	AnomalyClusters  int       `json:"anomaly_clusters"`
	AttackIntensity  float64   `json:"attack_intensity"`
	CreatedAt        time.Time `json:"created_at"`
}

// PlatformAnomalyCluster records a group of tenants whose behavior was both
// anomalous against baseline and mutually similar. Append-only.
type PlatformAnomalyCluster struct {
	ID                  string                     `json:"id"`
	ClusterSignature    string                     `json:"cluster_signature"`
	AffectedTenantCount int                        `json:"affected_tenant_count"`
	RiskLevel           constants.ClusterRiskLevel `json:"risk_level"`
	Metadata            map[string]interface{}     `json:"metadata,omitempty"`
	CreatedAt           time.Time                  `json:"created_at"`
}

// TenantHourlyMetric is one row per tenant per UTC hour, upserted on conflict
// so reruns of the rollup stay idempotent. Substrate for baseline computation
// and clustering.
type TenantHourlyMetric struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	HourBucket     time.Time `json:"hour_bucket"`
	MessagesSent   int64     `json:"messages_sent"`
	MessagesFailed int64     `json:"messages_failed"`
	ApiCalls       int64     `json:"api_calls"`
	DistinctIPs    int64     `json:"distinct_ips"`
	FailedRatio    float64   `json:"failed_ratio"`
}

// BehaviorVector is the 3-feature vector clustering compares.
func (m *TenantHourlyMetric) BehaviorVector() []float64 {
	return []float64{float64(m.MessagesSent), m.FailedRatio, float64(m.ApiCalls)}
}

// RLPolicy is a singleton named adaptive policy row.
type RLPolicy struct {
	Name             string    `json:"name"`
	CurrentThreshold float64   `json:"current_threshold"`
	ExplorationRate  float64   `json:"exploration_rate"`
	LearningRate     float64   `json:"learning_rate"`
	LastUpdated      time.Time `json:"last_updated"`
}

// SystemState is the feature snapshot the adaptive controller decides on.
type SystemState struct {
	AvgRisk         float64 `json:"avg_risk"`
	SpikeVelocity   float64 `json:"spike_velocity"`
	FailureRate     float64 `json:"failure_rate"`
	SuspensionCount int     `json:"suspension_count"`
}

// RLExperience is the append-only audit trail of threshold decisions.
// Reward stays nil until a later process labels the outcome.
type RLExperience struct {
	ID          string      `json:"id"`
	State       SystemState `json:"state"`
	Action      int         `json:"action"`
	Reward      *float64    `json:"reward,omitempty"`
	IsProcessed bool        `json:"is_processed"`
	CreatedAt   time.Time   `json:"created_at"`
}
