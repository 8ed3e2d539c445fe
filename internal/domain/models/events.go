package models

import "time"

// UsageEvent is the ephemeral usage signal collaborators put on the bus.
type UsageEvent struct {
	EventID   string                 `json:"eventId"`
	TenantID  string                 `json:"tenantId"`
	Metric    string                 `json:"metric"`
	Amount    float64                `json:"amount"`
	Timestamp int64                  `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ApiKeyID returns the credential id carried in metadata, if any.
func (e *UsageEvent) ApiKeyID() string {
	if e.Metadata == nil {
		return ""
	}
	if v, ok := e.Metadata["apiKeyId"].(string); ok {
		return v
	}
	return ""
}

// SecurityEvent is the ephemeral security signal collaborators put on the bus.
type SecurityEvent struct {
	TenantID   string                 `json:"tenantId"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resourceId,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Security actions the stream worker reacts to.
const (
	ActionApiKeyAuthFailed = "API_KEY_AUTH_FAILED"
	ActionLoginFailed      = "LOGIN_FAILED"
)

// ApiKeyID resolves the credential reference, falling back to the resource id.
func (e *SecurityEvent) ApiKeyID() string {
	if e.Metadata != nil {
		if v, ok := e.Metadata["apiKeyId"].(string); ok && v != "" {
			return v
		}
	}
	return e.ResourceID
}

// MLResult is a shadow-mode scoring result from the external ML pipeline.
type MLResult struct {
	TenantID string  `json:"tenant_id"`
	ApiKeyID string  `json:"api_key_id"`
	Score    float64 `json:"score"`
	Model    string  `json:"model"`
}

// ClusterEvent announces a detected cross-tenant cluster on the bus.
// Signature is set when the producer already persisted the cluster, so the
// mitigation worker escalates without writing a duplicate row.
type ClusterEvent struct {
	Event     string   `json:"event"`
	Type      string   `json:"type"`
	Tenants   []string `json:"tenants"`
	RiskScore float64  `json:"risk_score"`
	Signature string   `json:"signature,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// AnomalyAlert is the outbound alert payload for the anomaly-alerts topic.
type AnomalyAlert struct {
	Type            string `json:"type"`
	TenantID        string `json:"tenantId,omitempty"`
	AffectedTenants int64  `json:"affectedTenants,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Magnitude       int64  `json:"magnitude,omitempty"`
	Timestamp       int64  `json:"timestamp"`
}

// Outbound alert types.
const (
	AlertTypeTenantAnomaly   = "TENANT_ANOMALY"
	AlertTypePlatformCluster = "PLATFORM_CLUSTER"
)

// SecurityAction is the outbound security-event action for collaborators.
const (
	ActionApiKeySuspended = "API_KEY_SUSPENDED"
	ActionTenantSuspended = "TENANT_SUSPENDED"
)

// SecurityOutEvent tells downstream collaborators about an enforcement action.
type SecurityOutEvent struct {
	Action    string `json:"action"`
	ApiKeyID  string `json:"apiKeyId,omitempty"`
	TenantID  string `json:"tenantId"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// SecurityAlert is published to the admin dashboard bridge channel.
type SecurityAlert struct {
	Type     string                 `json:"type"`
	Message  string                 `json:"message"`
	Severity string                 `json:"severity"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// FeatureVector is the fixed-shape numeric record the scorer consumes.
// Extraction zero-defaults missing fields and never fails.
type FeatureVector struct {
	TenantID      string  `json:"tenant_id"`
	ApiKeyID      string  `json:"api_key_id"`
	MsgRate1m     float64 `json:"message_rate_1m"`
	MsgRate5m     float64 `json:"message_rate_5m"`
	FailureRate   float64 `json:"failure_rate"`
	DistinctIPs   float64 `json:"unique_ips"`
	GeoEntropy    float64 `json:"geo_entropy"`
	AvgResponseMs float64 `json:"avg_response_time"`
}

// TenantRiskUpdate is the per-tenant live dashboard payload.
type TenantRiskUpdate struct {
	TenantID  string  `json:"tenantId"`
	RiskScore float64 `json:"riskScore"`
	RiskLevel string  `json:"riskLevel"`
}

// PlatformRiskUpdate is the platform-wide live dashboard payload.
type PlatformRiskUpdate struct {
	OverallScore     float64   `json:"overallScore"`
	HighRiskTenants  int       `json:"highRiskTenants"`
	SuspendedApiKeys int       `json:"suspendedApiKeys"`
	DynamicThreshold float64   `json:"dynamicThreshold"`
	Timestamp        time.Time `json:"timestamp"`
}
