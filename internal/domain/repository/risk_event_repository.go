package repository

import (
	"context"
	"time"

	"github.com/aimstors/sentinel/internal/domain/models"
	"github.com/aimstors/sentinel/pkg/constants"
)

// RiskEventRepository stores the append-only forensic trail of risk signals.
type RiskEventRepository interface {
	// Append inserts one risk event. Rows are never mutated afterwards.
	Append(ctx context.Context, event *models.ApiKeyRiskEvent) error

	// CategoriesSince returns the distinct risk types observed on a
	// credential since the given time. The suspension policy corroborates
	// against this set.
	CategoriesSince(ctx context.Context, apiKeyID string, since time.Time) (map[constants.RiskType]struct{}, error)

	// RecentForKey lists a credential's events since the given time,
	// newest first.
	RecentForKey(ctx context.Context, apiKeyID string, since time.Time) ([]*models.ApiKeyRiskEvent, error)
}
