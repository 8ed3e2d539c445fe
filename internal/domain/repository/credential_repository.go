// Package repository defines the persistence interfaces of the risk engine.
package repository

import (
	"context"

	"github.com/aimstors/sentinel/internal/domain/models"
)

// CredentialRepository mutates the risk fields on the credential master
// records. All score changes are atomic SQL increments; the engine never
// performs a read-modify-write on risk_score.
type CredentialRepository interface {
	// GetByID retrieves a credential. Returns (nil, nil) when absent so the
	// caller can drop the signal instead of failing the consumer.
	GetByID(ctx context.Context, id string) (*models.ApiCredential, error)

	// AddRiskScore atomically increments the credential's risk score and
	// stamps last_risk_event. Returns the resulting score.
	AddRiskScore(ctx context.Context, id string, delta float64) (float64, error)

	// MarkSuspended flips the kill switch on. Returns false when the switch
	// was already active, so concurrent activations collapse to one. Only
	// the suspension policy decision path calls this.
	MarkSuspended(ctx context.Context, id, reason string) (bool, error)

	// MarkRestored clears the kill switch. Only the decay sweep's
	// auto-recovery calls this.
	MarkRestored(ctx context.Context, id string) error

	// DecayScores applies score = score * factor to every credential with a
	// positive score, in a single bulk statement.
	DecayScores(ctx context.Context, factor float64) error

	// ListSuspended returns all credentials with the kill switch active.
	ListSuspended(ctx context.Context) ([]*models.ApiCredential, error)

	// CountSuspended counts credentials with the kill switch active.
	CountSuspended(ctx context.Context) (int, error)
}

// TenantRepository mutates tenant status, the engine's only write into the
// tenant master table.
type TenantRepository interface {
	// Suspend flips the tenant to suspended. Returns false when the tenant
	// was already suspended so cascades stay idempotent.
	Suspend(ctx context.Context, tenantID string) (bool, error)
}
