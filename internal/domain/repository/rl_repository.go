package repository

import (
	"context"

	"github.com/aimstors/sentinel/internal/domain/models"
)

// PolicyRepository owns the adaptive threshold state machine's rows: the
// singleton policy per name and its append-only experience log.
type PolicyRepository interface {
	// GetOrCreatePolicy loads the named policy, creating it with the given
	// defaults when absent.
	GetOrCreatePolicy(ctx context.Context, name string, defaults models.RLPolicy) (*models.RLPolicy, error)

	// SavePolicy upserts the policy row keyed by name.
	SavePolicy(ctx context.Context, policy *models.RLPolicy) error

	// AppendExperience records a decision before it is applied.
	AppendExperience(ctx context.Context, exp *models.RLExperience) error

	// AssignReward labels a past decision. Returns ErrNotFound when the
	// experience does not exist.
	AssignReward(ctx context.Context, experienceID string, reward float64) error
}
