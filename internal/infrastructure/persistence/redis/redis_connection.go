// Package redis provides the Redis-backed counter store used for sliding
// windows, fast-path block flags, and pub/sub fan-out.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// NewRedisClient opens a universal client. A single address yields a
// standalone client; several yield a cluster client.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig, log logger.Logger) (redis.UniversalClient, error) {
	if cfg == nil || len(cfg.Addresses) == 0 {
		return nil, errors.ErrInvalidConfig
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addresses,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.ErrCache.WithError(err)
	}

	log.Info(ctx, "connected to redis", logger.Any("addresses", cfg.Addresses))
	return client, nil
}
