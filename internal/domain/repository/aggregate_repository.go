package repository

import (
	"context"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/pkg/constants"
)

// TenantRiskRepository owns the per-tenant risk aggregate rows.
type TenantRiskRepository interface {
	// Get retrieves a tenant's risk row. Returns (nil, nil) when absent.
	Get(ctx context.Context, tenantID string) (*models.TenantRiskScore, error)

	// Upsert writes a tenant risk row keyed by tenant id.
	Upsert(ctx context.Context, score *models.TenantRiskScore) error

	// List returns all tenant risk rows.
	List(ctx context.Context) ([]*models.TenantRiskScore, error)

	// AverageScore returns the mean current score across all tenants,
	// zero when no rows exist.
	AverageScore(ctx context.Context) (float64, error)

	// CountByStatus counts tenants in any of the given statuses.
	CountByStatus(ctx context.Context, statuses ...constants.RiskStatus) (int, error)

	// ResellerRollup computes the average score and high-risk count over a
	// reseller's member tenants via a join on the tenant master table.
	ResellerRollup(ctx context.Context, resellerID string) (avg float64, highRisk int, err error)
}

// ResellerRiskRepository owns the reseller rollup rows. Written only by the
// risk aggregator.
type ResellerRiskRepository interface {
	List(ctx context.Context) ([]*models.ResellerRiskScore, error)
	Upsert(ctx context.Context, score *models.ResellerRiskScore) error
}

// SnapshotRepository appends platform risk snapshots.
type SnapshotRepository interface {
	Append(ctx context.Context, snapshot *models.PlatformRiskSnapshot) error

	// Recent returns the newest snapshots, newest first.
	Recent(ctx context.Context, limit int) ([]*models.PlatformRiskSnapshot, error)
}
