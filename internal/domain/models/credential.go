package models

import "time"

// TenantStatus mirrors the lifecycle field on the tenant master record.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// ApiCredential is the credential master record owned by the billing
// subsystem. The engine only mutates the risk fields and the documented
// status transitions: KillSwitchActive flips false→true through the
// suspension policy and true→false through the decay sweep's auto-recovery.
type ApiCredential struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	Name             string     `json:"name"`
	RiskScore        float64    `json:"risk_score"`
	KillSwitchActive bool       `json:"kill_switch_active"`
	KillReason       string     `json:"kill_reason,omitempty"`
	LastRiskEvent    *time.Time `json:"last_risk_event,omitempty"`
}

// Tenant is the slice of the tenant master record the engine touches.
type Tenant struct {
	ID         string       `json:"id"`
	ResellerID string       `json:"reseller_id,omitempty"`
	Status     TenantStatus `json:"status"`
}
