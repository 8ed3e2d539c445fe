package postgres

import (
	"context"
	goerrors "errors"
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

// tenantRiskScoreDBM is the database model for the tenant_risk_scores table.
type tenantRiskScoreDBM struct {
	TenantID             string `gorm:"primaryKey"`
	CurrentScore         float64
	Status               string
	LastIncidentAt       time.Time
	AnomalyCountLastHour int
}

func (tenantRiskScoreDBM) TableName() string {
	return "tenant_risk_scores"
}

func (dbm *tenantRiskScoreDBM) toDomain() *models.TenantRiskScore {
	return &models.TenantRiskScore{
		TenantID:             dbm.TenantID,
		CurrentScore:         dbm.CurrentScore,
		Status:               constants.RiskStatus(dbm.Status),
		LastIncidentAt:       dbm.LastIncidentAt,
		AnomalyCountLastHour: dbm.AnomalyCountLastHour,
	}
}

// TenantRiskRepository is the PostgreSQL implementation of
// repository.TenantRiskRepository.
type TenantRiskRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewTenantRiskRepository creates a new TenantRiskRepository.
func NewTenantRiskRepository(db *gorm.DB, log logger.Logger) repository.TenantRiskRepository {
	return &TenantRiskRepository{db: db, log: log.WithComponent("TenantRiskRepository")}
}

// Get retrieves a tenant's risk row; (nil, nil) when absent.
func (r *TenantRiskRepository) Get(ctx context.Context, tenantID string) (*models.TenantRiskScore, error) {
	var dbm tenantRiskScoreDBM
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&dbm).Error; err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return dbm.toDomain(), nil
}

// Upsert writes a tenant risk row keyed by tenant id.
func (r *TenantRiskRepository) Upsert(ctx context.Context, score *models.TenantRiskScore) error {
	dbm := tenantRiskScoreDBM{
		TenantID:             score.TenantID,
		CurrentScore:         score.CurrentScore,
		Status:               string(score.Status),
		LastIncidentAt:       score.LastIncidentAt,
		AnomalyCountLastHour: score.AnomalyCountLastHour,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_score", "status", "last_incident_at", "anomaly_count_last_hour"}),
	}).Create(&dbm).Error
	if err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// List returns all tenant risk rows.
func (r *TenantRiskRepository) List(ctx context.Context) ([]*models.TenantRiskScore, error) {
	var dbms []tenantRiskScoreDBM
	if err := r.db.WithContext(ctx).Find(&dbms).Error; err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	scores := make([]*models.TenantRiskScore, 0, len(dbms))
	for i := range dbms {
		scores = append(scores, dbms[i].toDomain())
	}
	return scores, nil
}

// AverageScore returns the mean current score, zero when no rows exist.
func (r *TenantRiskRepository) AverageScore(ctx context.Context) (float64, error) {
	var avg *float64
	err := r.db.WithContext(ctx).Model(&tenantRiskScoreDBM{}).
		Select("AVG(current_score)").Scan(&avg).Error
	if err != nil {
		return 0, errors.ErrDatabase.WithError(err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// CountByStatus counts tenants in any of the given statuses.
func (r *TenantRiskRepository) CountByStatus(ctx context.Context, statuses ...constants.RiskStatus) (int, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&tenantRiskScoreDBM{}).
		Where("status IN ?", values).Count(&count).Error
	if err != nil {
		return 0, errors.ErrDatabase.WithError(err)
	}
	return int(count), nil
}

// ResellerRollup joins the tenant master table to aggregate a reseller's
// member tenants in one query.
func (r *TenantRiskRepository) ResellerRollup(ctx context.Context, resellerID string) (float64, int, error) {
	var result struct {
		AvgScore      *float64
		HighRiskCount int
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT AVG(trs.current_score) AS avg_score,
		        COUNT(*) FILTER (WHERE trs.status IN ('high_risk', 'critical')) AS high_risk_count
		   FROM tenant_risk_scores trs
		   JOIN tenants t ON trs.tenant_id = t.id
		  WHERE t.reseller_id = ?`,
		resellerID,
	).Scan(&result).Error
	if err != nil {
		return 0, 0, errors.ErrDatabase.WithError(err)
	}
	avg := 0.0
	if result.AvgScore != nil {
		avg = *result.AvgScore
	}
	return avg, result.HighRiskCount, nil
}

// resellerRiskScoreDBM is the database model for the reseller_risk_scores table.
type resellerRiskScoreDBM struct {
	ResellerID      string `gorm:"primaryKey"`
	AggregatedRisk  float64
	HighRiskTenants int
	RiskLevel       string
	UpdatedAt       time.Time
}

func (resellerRiskScoreDBM) TableName() string {
	return "reseller_risk_scores"
}

// ResellerRiskRepository is the PostgreSQL implementation of
// repository.ResellerRiskRepository.
type ResellerRiskRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewResellerRiskRepository creates a new ResellerRiskRepository.
func NewResellerRiskRepository(db *gorm.DB, log logger.Logger) repository.ResellerRiskRepository {
	return &ResellerRiskRepository{db: db, log: log.WithComponent("ResellerRiskRepository")}
}

// List returns all reseller rollup rows.
func (r *ResellerRiskRepository) List(ctx context.Context) ([]*models.ResellerRiskScore, error) {
	var dbms []resellerRiskScoreDBM
	if err := r.db.WithContext(ctx).Find(&dbms).Error; err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	scores := make([]*models.ResellerRiskScore, 0, len(dbms))
	for i := range dbms {
		scores = append(scores, &models.ResellerRiskScore{
			ResellerID:      dbms[i].ResellerID,
			AggregatedRisk:  dbms[i].AggregatedRisk,
			HighRiskTenants: dbms[i].HighRiskTenants,
			RiskLevel:       constants.RiskStatus(dbms[i].RiskLevel),
			UpdatedAt:       dbms[i].UpdatedAt,
		})
	}
	return scores, nil
}

// Upsert writes a reseller rollup row keyed by reseller id.
func (r *ResellerRiskRepository) Upsert(ctx context.Context, score *models.ResellerRiskScore) error {
	dbm := resellerRiskScoreDBM{
		ResellerID:      score.ResellerID,
		AggregatedRisk:  score.AggregatedRisk,
		HighRiskTenants: score.HighRiskTenants,
		RiskLevel:       string(score.RiskLevel),
		UpdatedAt:       time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reseller_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"aggregated_risk", "high_risk_tenants", "risk_level", "updated_at"}),
	}).Create(&dbm).Error
	if err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// platformRiskSnapshotDBM is the database model for platform_risk_snapshots.
type platformRiskSnapshotDBM struct {
	ID               string `gorm:"primaryKey"`
	OverallScore     float64
	HighRiskTenants  int
	SuspendedApiKeys int
	AnomalyClusters  int
	AttackIntensity  float64
	CreatedAt        time.Time `gorm:"index"`
}

func (platformRiskSnapshotDBM) TableName() string {
	return "platform_risk_snapshots"
}

// SnapshotRepository is the PostgreSQL implementation of
// repository.SnapshotRepository.
type SnapshotRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *gorm.DB, log logger.Logger) repository.SnapshotRepository {
	return &SnapshotRepository{db: db, log: log.WithComponent("SnapshotRepository")}
}

// Append inserts one snapshot row.
func (r *SnapshotRepository) Append(ctx context.Context, snapshot *models.PlatformRiskSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	dbm := platformRiskSnapshotDBM{
		ID:               snapshot.ID,
		OverallScore:     snapshot.OverallScore,
		HighRiskTenants:  snapshot.HighRiskTenants,
		SuspendedApiKeys: snapshot.SuspendedApiKeys,
		AnomalyClusters:  snapshot.AnomalyClusters,
		AttackIntensity:  snapshot.AttackIntensity,
		CreatedAt:        snapshot.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&dbm).Error; err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// Recent returns the newest snapshots, newest first.
func (r *SnapshotRepository) Recent(ctx context.Context, limit int) ([]*models.PlatformRiskSnapshot, error) {
	var dbms []platformRiskSnapshotDBM
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&dbms).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	snapshots := make([]*models.PlatformRiskSnapshot, 0, len(dbms))
	for i := range dbms {
		snapshots = append(snapshots, &models.PlatformRiskSnapshot{
			ID:               dbms[i].ID,
			OverallScore:     dbms[i].OverallScore,
			HighRiskTenants:  dbms[i].HighRiskTenants,
			SuspendedApiKeys: dbms[i].SuspendedApiKeys,
			AnomalyClusters:  dbms[i].AnomalyClusters,
			AttackIntensity:  dbms[i].AttackIntensity,
			CreatedAt:        dbms[i].CreatedAt,
		})
	}
	return snapshots, nil
}
