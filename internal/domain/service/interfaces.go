// Package service contains the pure domain services of the risk engine and
// the interfaces its control loops depend on.
package service

import (
	"context"
	"time"

	"github.com/aimstors/sentinel/internal/domain/models"
)

// CounterStore is the low-latency shared counter/score store the engine uses
// for sub-second rate tracking and cross-process signal sharing. All windows
// live here, never in process-local maps, so horizontally scaled engine
// instances stay consistent.
type CounterStore interface {
	// SlideWindow adds a member to the time-ordered set at key, evicts
	// entries older than the window, and returns the resulting cardinality.
	SlideWindow(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error)

	// WindowSize evicts entries older than the window and returns the
	// cardinality without adding a member.
	WindowSize(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// IncrWithTTL atomically increments a counter and refreshes its TTL,
	// returning the new value.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetBlockFlag writes the fast-path block flag for a credential.
	SetBlockFlag(ctx context.Context, apiKeyID string, ttl time.Duration) error

	// ClearBlockFlag removes the fast-path block flag.
	ClearBlockFlag(ctx context.Context, apiKeyID string) error

	// IsBlocked reports whether the fast-path block flag is present.
	IsBlocked(ctx context.Context, apiKeyID string) (bool, error)

	// SetThreshold mirrors the adaptive threshold for the enforcement path.
	SetThreshold(ctx context.Context, value float64, ttl time.Duration) error

	// Threshold reads the mirrored threshold; ok is false when unset.
	Threshold(ctx context.Context) (value float64, ok bool, err error)

	// Publish sends a JSON payload on a pub/sub channel. Fire-and-forget
	// relative to the caller's transaction.
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// EventBus produces engine events onto the message bus.
type EventBus interface {
	Emit(ctx context.Context, topic string, payload interface{}) error
}

// Notifier delivers security alerts to operators. Delivery channels are a
// collaborator concern; the default implementation logs.
type Notifier interface {
	SendSecurityAlert(ctx context.Context, alert models.SecurityAlert) error
}

// ScoreOracle is the external ML scoring service. Evaluate wraps it with the
// heuristic fallback; callers never see oracle failures.
type ScoreOracle interface {
	// Score returns an anomaly score in [0,1] for the extracted features.
	Score(ctx context.Context, features models.FeatureVector) (float64, error)
}

// OracleObserver receives scoring round-trip telemetry from the scorer.
type OracleObserver interface {
	// RecordOracleCall records one oracle round trip and whether the
	// heuristic fallback was taken.
	RecordOracleCall(duration time.Duration, fellBack bool)
}
