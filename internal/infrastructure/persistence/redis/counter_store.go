package redis

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

var _ service.CounterStore = (*CounterStore)(nil)

// CounterStore implements service.CounterStore on Redis. Sliding windows are
// sorted sets scored by event timestamp in milliseconds.
type CounterStore struct {
	client redis.UniversalClient
	log    logger.Logger
}

// NewCounterStore creates a new CounterStore.
func NewCounterStore(client redis.UniversalClient, log logger.Logger) *CounterStore {
	return &CounterStore{client: client, log: log.WithComponent("CounterStore")}
}

// SlideWindow adds the member, evicts entries older than the window, and
// returns the surviving cardinality. The three commands run in one pipeline
// round trip; the key expires shortly after the window so idle keys vanish.
func (s *CounterStore) SlideWindow(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, error) {
	nowMs := now.UnixMilli()
	cutoff := now.Add(-window).UnixMilli()

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.ErrCache.WithError(err)
	}
	return card.Val(), nil
}

// WindowSize trims the window and returns the surviving cardinality.
func (s *CounterStore) WindowSize(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	cutoff := now.Add(-window).UnixMilli()

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.ErrCache.WithError(err)
	}
	return card.Val(), nil
}

// IncrWithTTL increments the counter and refreshes its TTL atomically enough
// for rate counting; both commands ride one pipeline.
func (s *CounterStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.ErrCache.WithError(err)
	}
	return incr.Val(), nil
}

// SetBlockFlag writes the fast-path block flag gateways consult before any
// database lookup.
func (s *CounterStore) SetBlockFlag(ctx context.Context, apiKeyID string, ttl time.Duration) error {
	key := fmt.Sprintf(constants.KeyBlockFmt, apiKeyID)
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return errors.ErrCache.WithError(err)
	}
	return nil
}

// ClearBlockFlag removes the fast-path block flag.
func (s *CounterStore) ClearBlockFlag(ctx context.Context, apiKeyID string) error {
	key := fmt.Sprintf(constants.KeyBlockFmt, apiKeyID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.ErrCache.WithError(err)
	}
	return nil
}

// IsBlocked reports whether the block flag is present.
func (s *CounterStore) IsBlocked(ctx context.Context, apiKeyID string) (bool, error) {
	key := fmt.Sprintf(constants.KeyBlockFmt, apiKeyID)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.ErrCache.WithError(err)
	}
	return n > 0, nil
}

// SetThreshold mirrors the adaptive threshold for the enforcement path.
func (s *CounterStore) SetThreshold(ctx context.Context, value float64, ttl time.Duration) error {
	err := s.client.Set(ctx, constants.KeyDynamicThreshold,
		strconv.FormatFloat(value, 'f', -1, 64), ttl).Err()
	if err != nil {
		return errors.ErrCache.WithError(err)
	}
	return nil
}

// Threshold reads the mirrored threshold; ok is false when the key is unset
// or unparsable.
func (s *CounterStore) Threshold(ctx context.Context) (float64, bool, error) {
	raw, err := s.client.Get(ctx, constants.KeyDynamicThreshold).Result()
	if goerrors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.ErrCache.WithError(err)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.log.Warn(ctx, "unparsable threshold value in cache", logger.String("raw", raw))
		return 0, false, nil
	}
	return value, true, nil
}

// Publish marshals the payload to JSON and fans it out on the channel.
func (s *CounterStore) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.ErrInternal.WithError(err)
	}
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		return errors.ErrCache.WithError(err)
	}
	return nil
}
