package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// platformAnomalyClusterDBM is the database model for platform_anomaly_clusters.
type platformAnomalyClusterDBM struct {
	ID                  string `gorm:"primaryKey"`
	ClusterSignature    string
	AffectedTenantCount int
	RiskLevel           string
	Metadata            json.RawMessage
	CreatedAt           time.Time `gorm:"index"`
}

func (platformAnomalyClusterDBM) TableName() string {
	return "platform_anomaly_clusters"
}

// ClusterRepository is the PostgreSQL implementation of repository.ClusterRepository.
type ClusterRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewClusterRepository creates a new ClusterRepository.
func NewClusterRepository(db *gorm.DB, log logger.Logger) repository.ClusterRepository {
	return &ClusterRepository{db: db, log: log.WithComponent("ClusterRepository")}
}

// Append inserts one cluster row.
func (r *ClusterRepository) Append(ctx context.Context, cluster *models.PlatformAnomalyCluster) error {
	if cluster.ID == "" {
		cluster.ID = uuid.NewString()
	}
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = time.Now().UTC()
	}

	dbm := platformAnomalyClusterDBM{
		ID:                  cluster.ID,
		ClusterSignature:    cluster.ClusterSignature,
		AffectedTenantCount: cluster.AffectedTenantCount,
		RiskLevel:           string(cluster.RiskLevel),
		CreatedAt:           cluster.CreatedAt,
	}
	if cluster.Metadata != nil {
		if raw, err := json.Marshal(cluster.Metadata); err == nil {
			dbm.Metadata = raw
		}
	}

	if err := r.db.WithContext(ctx).Create(&dbm).Error; err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// Recent returns the newest clusters, newest first.
func (r *ClusterRepository) Recent(ctx context.Context, limit int) ([]*models.PlatformAnomalyCluster, error) {
	var dbms []platformAnomalyClusterDBM
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&dbms).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	clusters := make([]*models.PlatformAnomalyCluster, 0, len(dbms))
	for i := range dbms {
		cluster := &models.PlatformAnomalyCluster{
			ID:                  dbms[i].ID,
			ClusterSignature:    dbms[i].ClusterSignature,
			AffectedTenantCount: dbms[i].AffectedTenantCount,
			RiskLevel:           constants.ClusterRiskLevel(dbms[i].RiskLevel),
			CreatedAt:           dbms[i].CreatedAt,
		}
		if len(dbms[i].Metadata) > 0 {
			_ = json.Unmarshal(dbms[i].Metadata, &cluster.Metadata)
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// tenantHourlyMetricDBM is the database model for tenant_hourly_metrics.
type tenantHourlyMetricDBM struct {
	ID             string    `gorm:"primaryKey"`
	TenantID       string    `gorm:"uniqueIndex:idx_tenant_hour"`
	HourBucket     time.Time `gorm:"uniqueIndex:idx_tenant_hour"`
	MessagesSent   int64
	MessagesFailed int64
	ApiCalls       int64
	DistinctIPs    int64 `gorm:"column:distinct_ips"`
	FailedRatio    float64
}

func (tenantHourlyMetricDBM) TableName() string {
	return "tenant_hourly_metrics"
}

func (dbm *tenantHourlyMetricDBM) toDomain() *models.TenantHourlyMetric {
	return &models.TenantHourlyMetric{
		ID:             dbm.ID,
		TenantID:       dbm.TenantID,
		HourBucket:     dbm.HourBucket,
		MessagesSent:   dbm.MessagesSent,
		MessagesFailed: dbm.MessagesFailed,
		ApiCalls:       dbm.ApiCalls,
		DistinctIPs:    dbm.DistinctIPs,
		FailedRatio:    dbm.FailedRatio,
	}
}

// HourlyMetricRepository is the PostgreSQL implementation of
// repository.HourlyMetricRepository.
type HourlyMetricRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewHourlyMetricRepository creates a new HourlyMetricRepository.
func NewHourlyMetricRepository(db *gorm.DB, log logger.Logger) repository.HourlyMetricRepository {
	return &HourlyMetricRepository{db: db, log: log.WithComponent("HourlyMetricRepository")}
}

// Upsert writes a bucket keyed by (tenant_id, hour_bucket) so rollup reruns
// produce identical rows instead of duplicates.
func (r *HourlyMetricRepository) Upsert(ctx context.Context, metric *models.TenantHourlyMetric) error {
	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	dbm := tenantHourlyMetricDBM{
		ID:             metric.ID,
		TenantID:       metric.TenantID,
		HourBucket:     metric.HourBucket.UTC(),
		MessagesSent:   metric.MessagesSent,
		MessagesFailed: metric.MessagesFailed,
		ApiCalls:       metric.ApiCalls,
		DistinctIPs:    metric.DistinctIPs,
		FailedRatio:    metric.FailedRatio,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "hour_bucket"}},
		DoUpdates: clause.AssignmentColumns([]string{"messages_sent", "messages_failed", "api_calls", "distinct_ips", "failed_ratio"}),
	}).Create(&dbm).Error
	if err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// ForHour lists every tenant's bucket for the given hour.
func (r *HourlyMetricRepository) ForHour(ctx context.Context, bucket time.Time) ([]*models.TenantHourlyMetric, error) {
	var dbms []tenantHourlyMetricDBM
	err := r.db.WithContext(ctx).Where("hour_bucket = ?", bucket.UTC()).Find(&dbms).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	metrics := make([]*models.TenantHourlyMetric, 0, len(dbms))
	for i := range dbms {
		metrics = append(metrics, dbms[i].toDomain())
	}
	return metrics, nil
}

// Baseline computes the platform mean messages and mean failed ratio for the
// given hour. Zeros when no rows exist.
func (r *HourlyMetricRepository) Baseline(ctx context.Context, bucket time.Time) (float64, float64, error) {
	var result struct {
		AvgMessages    *float64
		AvgFailedRatio *float64
	}
	err := r.db.WithContext(ctx).Model(&tenantHourlyMetricDBM{}).
		Select("AVG(messages_sent) AS avg_messages, AVG(failed_ratio) AS avg_failed_ratio").
		Where("hour_bucket = ?", bucket.UTC()).
		Scan(&result).Error
	if err != nil {
		return 0, 0, errors.ErrDatabase.WithError(err)
	}

	avgMessages, avgFailedRatio := 0.0, 0.0
	if result.AvgMessages != nil {
		avgMessages = *result.AvgMessages
	}
	if result.AvgFailedRatio != nil {
		avgFailedRatio = *result.AvgFailedRatio
	}
	return avgMessages, avgFailedRatio, nil
}
