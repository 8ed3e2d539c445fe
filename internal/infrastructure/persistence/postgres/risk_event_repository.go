package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// apiKeyRiskEventDBM is the database model for the api_key_risk_events table.
type apiKeyRiskEventDBM struct {
	ID        string `gorm:"primaryKey"`
	ApiKeyID  string `gorm:"index:idx_risk_events_key_time"`
	TenantID  string `gorm:"index"`
	RiskType  string
	Severity  string
	Score     float64
	Metadata  json.RawMessage
	CreatedAt time.Time `gorm:"index:idx_risk_events_key_time"`
}

func (apiKeyRiskEventDBM) TableName() string {
	return "api_key_risk_events"
}

func (dbm *apiKeyRiskEventDBM) toDomain() *models.ApiKeyRiskEvent {
	event := &models.ApiKeyRiskEvent{
		ID:        dbm.ID,
		ApiKeyID:  dbm.ApiKeyID,
		TenantID:  dbm.TenantID,
		RiskType:  constants.RiskType(dbm.RiskType),
		Severity:  constants.RiskSeverity(dbm.Severity),
		Score:     dbm.Score,
		CreatedAt: dbm.CreatedAt,
	}
	if len(dbm.Metadata) > 0 {
		_ = json.Unmarshal(dbm.Metadata, &event.Metadata)
	}
	return event
}

// RiskEventRepository is the PostgreSQL implementation of
// repository.RiskEventRepository.
type RiskEventRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewRiskEventRepository creates a new RiskEventRepository.
func NewRiskEventRepository(db *gorm.DB, log logger.Logger) repository.RiskEventRepository {
	return &RiskEventRepository{db: db, log: log.WithComponent("RiskEventRepository")}
}

// Append inserts one risk event. The id and timestamp are assigned here when
// the caller left them empty.
func (r *RiskEventRepository) Append(ctx context.Context, event *models.ApiKeyRiskEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	dbm := apiKeyRiskEventDBM{
		ID:        event.ID,
		ApiKeyID:  event.ApiKeyID,
		TenantID:  event.TenantID,
		RiskType:  string(event.RiskType),
		Severity:  string(event.Severity),
		Score:     event.Score,
		CreatedAt: event.CreatedAt,
	}
	if event.Metadata != nil {
		raw, err := json.Marshal(event.Metadata)
		if err == nil {
			dbm.Metadata = raw
		}
	}

	if err := r.db.WithContext(ctx).Create(&dbm).Error; err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// CategoriesSince returns the distinct risk types on a credential since the
// given time.
func (r *RiskEventRepository) CategoriesSince(ctx context.Context, apiKeyID string, since time.Time) (map[constants.RiskType]struct{}, error) {
	var types []string
	err := r.db.WithContext(ctx).Model(&apiKeyRiskEventDBM{}).
		Distinct("risk_type").
		Where("api_key_id = ? AND created_at > ?", apiKeyID, since).
		Pluck("risk_type", &types).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	categories := make(map[constants.RiskType]struct{}, len(types))
	for _, t := range types {
		categories[constants.RiskType(t)] = struct{}{}
	}
	return categories, nil
}

// RecentForKey lists a credential's events since the given time, newest first.
func (r *RiskEventRepository) RecentForKey(ctx context.Context, apiKeyID string, since time.Time) ([]*models.ApiKeyRiskEvent, error) {
	var dbms []apiKeyRiskEventDBM
	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND created_at > ?", apiKeyID, since).
		Order("created_at DESC").
		Find(&dbms).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	events := make([]*models.ApiKeyRiskEvent, 0, len(dbms))
	for i := range dbms {
		events = append(events, dbms[i].toDomain())
	}
	return events, nil
}
