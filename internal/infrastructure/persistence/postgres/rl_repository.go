package postgres

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/internal/domain/repository"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// rlPolicyDBM is the database model for the rl_policies table.
type rlPolicyDBM struct {
	Name             string `gorm:"primaryKey"`
	CurrentThreshold float64
	ExplorationRate  float64
	LearningRate     float64
	LastUpdated      time.Time
}

func (rlPolicyDBM) TableName() string {
	return "rl_policies"
}

func (dbm *rlPolicyDBM) toDomain() *models.RLPolicy {
	return &models.RLPolicy{
		Name:             dbm.Name,
		CurrentThreshold: dbm.CurrentThreshold,
		ExplorationRate:  dbm.ExplorationRate,
		LearningRate:     dbm.LearningRate,
		LastUpdated:      dbm.LastUpdated,
	}
}

// rlExperienceDBM is the database model for the rl_experiences table.
type rlExperienceDBM struct {
	ID          string          `gorm:"primaryKey"`
	State       json.RawMessage `gorm:"type:jsonb"`
	Action      int
	Reward      *float64
	IsProcessed bool
	CreatedAt   time.Time `gorm:"index"`
}

func (rlExperienceDBM) TableName() string {
	return "rl_experiences"
}

// PolicyRepository is the PostgreSQL implementation of
// repository.PolicyRepository.
type PolicyRepository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(db *gorm.DB, log logger.Logger) repository.PolicyRepository {
	return &PolicyRepository{db: db, log: log.WithComponent("PolicyRepository")}
}

// GetOrCreatePolicy loads the named policy row, inserting the defaults when
// no row exists yet. Concurrent creators race harmlessly against the
// do-nothing conflict clause.
func (r *PolicyRepository) GetOrCreatePolicy(ctx context.Context, name string, defaults models.RLPolicy) (*models.RLPolicy, error) {
	var dbm rlPolicyDBM
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&dbm).Error
	if err == nil {
		return dbm.toDomain(), nil
	}
	if !goerrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrDatabase.WithError(err)
	}

	dbm = rlPolicyDBM{
		Name:             name,
		CurrentThreshold: defaults.CurrentThreshold,
		ExplorationRate:  defaults.ExplorationRate,
		LearningRate:     defaults.LearningRate,
		LastUpdated:      time.Now().UTC(),
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&dbm).Error
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	// Re-read so a concurrent winner's row is returned instead of ours.
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&dbm).Error; err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	r.log.Info(ctx, "created adaptive policy", logger.String("name", name),
		logger.Float64("threshold", dbm.CurrentThreshold))
	return dbm.toDomain(), nil
}

// SavePolicy upserts the policy row keyed by name.
func (r *PolicyRepository) SavePolicy(ctx context.Context, policy *models.RLPolicy) error {
	dbm := rlPolicyDBM{
		Name:             policy.Name,
		CurrentThreshold: policy.CurrentThreshold,
		ExplorationRate:  policy.ExplorationRate,
		LearningRate:     policy.LearningRate,
		LastUpdated:      time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_threshold", "exploration_rate", "learning_rate", "last_updated"}),
	}).Create(&dbm).Error
	if err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// AppendExperience records one threshold decision.
func (r *PolicyRepository) AppendExperience(ctx context.Context, exp *models.RLExperience) error {
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now().UTC()
	}
	state, err := json.Marshal(exp.State)
	if err != nil {
		return errors.ErrInternal.WithError(err)
	}
	dbm := rlExperienceDBM{
		ID:          exp.ID,
		State:       state,
		Action:      exp.Action,
		Reward:      exp.Reward,
		IsProcessed: exp.IsProcessed,
		CreatedAt:   exp.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&dbm).Error; err != nil {
		return errors.ErrDatabase.WithError(err)
	}
	return nil
}

// AssignReward labels a past decision and marks it processed.
func (r *PolicyRepository) AssignReward(ctx context.Context, experienceID string, reward float64) error {
	result := r.db.WithContext(ctx).Model(&rlExperienceDBM{}).
		Where("id = ?", experienceID).
		Updates(map[string]interface{}{"reward": reward, "is_processed": true})
	if result.Error != nil {
		return errors.ErrDatabase.WithError(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}
