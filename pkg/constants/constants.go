// Package constants defines system-wide constants for the Sentinel risk engine.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Risk Signal Constants
// ================================================================================

// RiskType identifies the category of a detected risk signal on a credential.
type RiskType string

const (
	RiskTypeRateSpike          RiskType = "RATE_SPIKE"
	RiskTypeFailureSpike       RiskType = "FAILURE_SPIKE"
	RiskTypeAuthSpam           RiskType = "AUTH_SPAM"
	RiskTypeIPRotation         RiskType = "IP_ROTATION"
	RiskTypeAIMLSignal         RiskType = "AI_ML_SIGNAL"
	RiskTypeGeoAnomaly         RiskType = "GEO_ANOMALY"
	RiskTypeMaliciousIP        RiskType = "MALICIOUS_IP"
	RiskTypeCrossTenantCluster RiskType = "CROSS_TENANT_CLUSTER"
)

// RiskSeverity grades a single risk event.
type RiskSeverity string

const (
	RiskSeverityLow      RiskSeverity = "low"
	RiskSeverityMedium   RiskSeverity = "medium"
	RiskSeverityHigh     RiskSeverity = "high"
	RiskSeverityCritical RiskSeverity = "critical"
)

// RiskStatus is the discrete band of a tenant's accumulated risk score.
// It is always derived from the score via the fixed breakpoints below.
type RiskStatus string

const (
	RiskStatusNormal   RiskStatus = "normal"
	RiskStatusWarning  RiskStatus = "warning"
	RiskStatusHighRisk RiskStatus = "high_risk"
	RiskStatusCritical RiskStatus = "critical"
)

// ClusterRiskLevel grades a detected cross-tenant anomaly cluster.
type ClusterRiskLevel string

const (
	ClusterRiskWarning  ClusterRiskLevel = "warning"
	ClusterRiskHigh     ClusterRiskLevel = "high"
	ClusterRiskCritical ClusterRiskLevel = "critical"
)

// AnomalyBand is the classification band for a continuous [0,1] anomaly score.
type AnomalyBand string

const (
	BandNormal   AnomalyBand = "normal"
	BandWarning  AnomalyBand = "warning"
	BandHigh     AnomalyBand = "high"
	BandCritical AnomalyBand = "critical"
)

// ================================================================================
// Fixed Business Thresholds
// ================================================================================

// These breakpoints are deliberate business constants. They are surfaced
// through configuration defaults and must not be silently re-derived.
const (
	// SuspensionThreshold is the accumulated credential score at which the
	// suspension policy may fire (together with multi-signal corroboration).
	SuspensionThreshold = 80.0

	// WarningThreshold is the credential score at which warning mode begins.
	WarningThreshold = 50.0

	// TenantFreezeThreshold is the credential score that cascades into a
	// full tenant freeze.
	TenantFreezeThreshold = 120.0

	// DecayFactor is the multiplicative risk decay applied every sweep.
	DecayFactor = 0.9

	// RecoveryFloor is the score below which a suspended credential is
	// auto-restored by the decay sweep.
	RecoveryFloor = 40.0

	// UnknownSignalWeight is the default weight for unrecognized risk types.
	UnknownSignalWeight = 10.0

	// Tenant risk status breakpoints (score is clamped to [0,100]).
	TenantStatusWarningAt  = 30.0
	TenantStatusHighRiskAt = 60.0
	TenantStatusCriticalAt = 80.0

	// Anomaly score classification breakpoints.
	BandCriticalAbove = 0.85
	BandHighAbove     = 0.75
	BandWarningAbove  = 0.6

	// Adaptive threshold clamp range and step.
	MinAdaptiveThreshold = 40.0
	MaxAdaptiveThreshold = 120.0
	AdaptiveStep         = 5.0

	// ClusterSimilarityThreshold is the minimum cosine similarity for two
	// tenant behavior vectors to land in the same cluster.
	ClusterSimilarityThreshold = 0.9

	// MinClusterSize is the minimum member count for a persisted cluster.
	MinClusterSize = 5
)

// ================================================================================
// Stream Window Constants
// ================================================================================

const (
	// SlidingWindow is the length of the per-tenant rate window.
	SlidingWindow = 60 * time.Second

	// FailureWindow is the length of the auth-failure counter window.
	FailureWindow = 5 * time.Minute

	// CategoryWindow is the trailing window of risk event categories the
	// suspension policy corroborates against.
	CategoryWindow = 5 * time.Minute

	// RateSpikePerMinute triggers a RATE_SPIKE signal on a credential.
	RateSpikePerMinute = 1000

	// AlertSpikePerMinute triggers a tenant anomaly alert.
	AlertSpikePerMinute = 500

	// PlatformSpikePerMinute adds a tenant to the platform active-spike set.
	PlatformSpikePerMinute = 100

	// PlatformClusterMinTenants is the concurrent spike count that flags a
	// platform-wide cluster.
	PlatformClusterMinTenants = 5

	// AuthSpamFailures triggers an AUTH_SPAM signal on a credential.
	AuthSpamFailures = 50

	// BruteForceFailures raises a generic brute-force alert.
	BruteForceFailures = 20
)

// ================================================================================
// Cache Key & Channel Constants
// ================================================================================

const (
	// KeyWindowFmt is the per-tenant-per-metric sliding window zset.
	KeyWindowFmt = "anomaly:window:%s:%s"

	// KeyPlatformSpikes is the platform-wide set of currently spiking tenants.
	KeyPlatformSpikes = "anomaly:platform:active_spikes"

	// KeySecurityFailsFmt is the 5-minute auth-failure counter per tenant.
	KeySecurityFailsFmt = "anomaly:security:fails:%s"

	// KeyBlockFmt is the fast-path block flag the authorization hot path checks.
	KeyBlockFmt = "api_key_block:%s"

	// KeyDynamicThreshold mirrors the adaptive threshold for low-latency reads.
	KeyDynamicThreshold = "config:security:threshold"

	// BlockFlagTTL bounds how long a fast-path block outlives its durable flag.
	BlockFlagTTL = time.Hour

	// ThresholdCacheTTL bounds the threshold mirror.
	ThresholdCacheTTL = time.Hour

	// OracleScoreCacheTTL bounds per-credential memoization of oracle scores.
	OracleScoreCacheTTL = 30 * time.Second

	// ChannelTenantUpdate carries per-tenant live risk updates to dashboards.
	ChannelTenantUpdate = "risk_tenant_update"

	// ChannelPlatformUpdate carries platform-wide live risk updates.
	ChannelPlatformUpdate = "risk_platform_update"

	// ChannelSecurityAlerts carries critical security alerts to the admin bridge.
	ChannelSecurityAlerts = "security_alerts"
)

// ================================================================================
// Scheduling Constants
// ================================================================================

const (
	// AggregationInterval is the platform risk rollup cadence.
	AggregationInterval = 30 * time.Second

	// DecayInterval is the risk decay sweep cadence.
	DecayInterval = 5 * time.Minute

	// HourlyRollupMinute is the minute-of-hour the hourly metric rollup runs.
	HourlyRollupMinute = 5

	// ClusterDetectMinute is the minute-of-hour cluster detection runs.
	ClusterDetectMinute = 10
)

// ================================================================================
// Adaptive Policy Constants
// ================================================================================

const (
	// PolicyGlobalKillSwitch is the singleton adaptive policy name.
	PolicyGlobalKillSwitch = "global_kill_switch_threshold"

	// DefaultExplorationRate is the epsilon of the epsilon-greedy controller.
	DefaultExplorationRate = 0.1

	// DefaultLearningRate is stored on the policy row for offline trainers.
	DefaultLearningRate = 0.1
)

// Adaptive threshold actions. Recorded verbatim in the experience log.
const (
	ActionKeep    = 0
	ActionTighten = 1
	ActionLoosen  = 2
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents logging severity levels
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ContextKey is the type for context value keys.
type ContextKey string

const (
	// ContextKeyRequestID carries the request correlation id.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTenantID carries the tenant id being processed.
	ContextKeyTenantID ContextKey = "tenant_id"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string
