package postgres

import (
	"context"
	goerrors "errors"
	"time"

	"gorm.io/gorm"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// apiCredentialDBM maps the slice of the collaborator-owned api_credentials
// table the engine is allowed to touch.
type apiCredentialDBM struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string
	Name             string
	RiskScore        float64
	KillSwitchActive bool
	KillReason       *string
	LastRiskEvent    *time.Time
}

func (apiCredentialDBM) TableName() string {
	return "api_credentials"
}

func (dbm *apiCredentialDBM) toDomain() *models.ApiCredential {
	cred := &models.ApiCredential{
		ID:               dbm.ID,
		TenantID:         dbm.TenantID,
		Name:             dbm.Name,
		RiskScore:        dbm.RiskScore,
		KillSwitchActive: dbm.KillSwitchActive,
		LastRiskEvent:    dbm.LastRiskEvent,
	}
	if dbm.KillReason != nil {
		cred.KillReason = *dbm.KillReason
	}
	return cred
}

// CredentialRepository is the PostgreSQL implementation of
// repository.CredentialRepository.
type CredentialRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *gorm.DB, log logger.Logger) repository.CredentialRepository {
	return &CredentialRepository{db: db, log: log.WithComponent("CredentialRepository")}
}

// GetByID retrieves a credential; (nil, nil) when absent.
func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.ApiCredential, error) {
	var dbm apiCredentialDBM
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&dbm).Error; err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.ErrDatabase.WithError(err)
	}
	return dbm.toDomain(), nil
}

// AddRiskScore increments the score atomically in SQL so concurrent signals
// for the same credential from different engine instances never lose an
// update. RETURNING hands back the post-increment score.
func (r *CredentialRepository) AddRiskScore(ctx context.Context, id string, delta float64) (float64, error) {
	var score float64
	row := r.db.WithContext(ctx).Raw(
		`UPDATE api_credentials
		    SET risk_score = risk_score + ?, last_risk_event = ?
		  WHERE id = ?
		  RETURNING risk_score`,
		delta, time.Now().UTC(), id,
	).Row()
	if err := row.Scan(&score); err != nil {
		return 0, errors.ErrDatabase.WithError(err)
	}
	return score, nil
}

// MarkSuspended flips the kill switch on. The flag guard in the WHERE clause
// makes concurrent activations race-safe: only one caller matches the row.
func (r *CredentialRepository) MarkSuspended(ctx context.Context, id, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&apiCredentialDBM{}).
		Where("id = ? AND kill_switch_active = ?", id, false).
		Updates(map[string]interface{}{
			"kill_switch_active": true,
			"kill_reason":        reason,
		})
	if res.Error != nil {
		return false, errors.ErrDatabase.WithError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkRestored clears the kill switch.
func (r *CredentialRepository) MarkRestored(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&apiCredentialDBM{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"kill_switch_active": false,
			"kill_reason":        nil,
		}).Error
	if err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// DecayScores applies the multiplicative decay in one bulk statement.
func (r *CredentialRepository) DecayScores(ctx context.Context, factor float64) error {
	err := r.db.WithContext(ctx).Exec(
		`UPDATE api_credentials SET risk_score = risk_score * ? WHERE risk_score > 0`,
		factor,
	).Error
	if err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// ListSuspended returns all credentials with the kill switch active.
func (r *CredentialRepository) ListSuspended(ctx context.Context) ([]*models.ApiCredential, error) {
	var dbms []apiCredentialDBM
	if err := r.db.WithContext(ctx).Where("kill_switch_active = ?", true).Find(&dbms).Error; err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	result := make([]*models.ApiCredential, 0, len(dbms))
	for i := range dbms {
		result = append(result, dbms[i].toDomain())
	}
	return result, nil
}

// CountSuspended counts credentials with the kill switch active.
func (r *CredentialRepository) CountSuspended(ctx context.Context) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&apiCredentialDBM{}).
		Where("kill_switch_active = ?", true).Count(&count).Error; err != nil {
		return 0, errors.ErrDatabase.WithError(err)
	}
	return int(count), nil
}

// tenantDBM maps the slice of the collaborator-owned tenants table.
type tenantDBM struct {
	ID         string `gorm:"primaryKey"`
	ResellerID *string
	Status     string
}

func (tenantDBM) TableName() string {
	return "tenants"
}

// TenantRepository is the PostgreSQL implementation of repository.TenantRepository.
type TenantRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *gorm.DB, log logger.Logger) repository.TenantRepository {
	return &TenantRepository{db: db, log: log.WithComponent("TenantRepository")}
}

// Suspend flips the tenant to suspended. The status guard in the WHERE clause
// makes the cascade idempotent: a second freeze matches zero rows.
func (r *TenantRepository) Suspend(ctx context.Context, tenantID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&tenantDBM{}).
		Where("id = ? AND status <> ?", tenantID, string(models.TenantStatusSuspended)).
		Update("status", string(models.TenantStatusSuspended))
	if res.Error != nil {
		return false, errors.ErrDatabase.WithError(res.Error)
	}
	return res.RowsAffected > 0, nil
}
