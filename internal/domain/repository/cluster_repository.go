package repository

import (
	"context"
	"time"

	"github.com/aimstors/sentinel/internal/domain/models"
)

// ClusterRepository appends detected cross-tenant anomaly clusters.
type ClusterRepository interface {
	Append(ctx context.Context, cluster *models.PlatformAnomalyCluster) error
	Recent(ctx context.Context, limit int) ([]*models.PlatformAnomalyCluster, error)
}

// HourlyMetricRepository owns the per-tenant hourly behavior buckets.
type HourlyMetricRepository interface {
	// Upsert writes a bucket keyed by (tenant_id, hour_bucket) so rollup
	// reruns stay idempotent.
	Upsert(ctx context.Context, metric *models.TenantHourlyMetric) error

	// ForHour lists every tenant's bucket for the given hour.
	ForHour(ctx context.Context, bucket time.Time) ([]*models.TenantHourlyMetric, error)

	// Baseline computes the platform mean messages and mean failed ratio
	// for the given hour.
	Baseline(ctx context.Context, bucket time.Time) (avgMessages, avgFailedRatio float64, err error)
}

// HourlyStat is one grouped row from the collaborator-owned usage_events
// table, produced by the analytics read path.
type HourlyStat struct {
	TenantID       string
	MessagesSent   int64
	MessagesFailed int64
	ApiCalls       int64
	DistinctIPs    int64
}

// UsageMetricsSource reads usage events for batch aggregation. Backed by a
// read-only connection to the collaborator-owned store.
type UsageMetricsSource interface {
	// HourlyStats groups usage events per tenant over [start, end).
	HourlyStats(ctx context.Context, start, end time.Time) ([]HourlyStat, error)
}
