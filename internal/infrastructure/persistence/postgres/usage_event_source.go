package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/internal/domain/repository"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// NewPgxPool opens a pgx connection pool for the high-volume analytics read
// path. The GORM connection handles the engine-owned tables; raw usage_events
// scans go through pgx.
func NewPgxPool(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidConfig
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.ErrDatabase.WithError(err)
	}

	log.Info(ctx, "connected pgx pool for usage analytics",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))
	return pool, nil
}

// UsageEventSource reads aggregated usage statistics from the usage_events
// table owned by the ingestion pipeline. Read-only.
type UsageEventSource struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

// NewUsageEventSource creates a new UsageEventSource.
func NewUsageEventSource(pool *pgxpool.Pool, log logger.Logger) repository.UsageMetricsSource {
	return &UsageEventSource{pool: pool, log: log.WithComponent("UsageEventSource")}
}

// HourlyStats aggregates per-tenant usage counters over [start, end) in one
// grouped scan.
func (s *UsageEventSource) HourlyStats(ctx context.Context, start, end time.Time) ([]repository.HourlyStat, error) {
	query := `
		SELECT tenant_id,
		       COUNT(*) FILTER (WHERE metric = 'messages_sent')   AS messages_sent,
		       COUNT(*) FILTER (WHERE metric = 'messages_failed') AS messages_failed,
		       COUNT(*) FILTER (WHERE metric = 'api_call')        AS api_calls,
		       COUNT(DISTINCT metadata->>'ip')                    AS distinct_ips
		  FROM usage_events
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY tenant_id
	`
	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	defer rows.Close()

	var stats []repository.HourlyStat
	for rows.Next() {
		var stat repository.HourlyStat
		err := rows.Scan(&stat.TenantID, &stat.MessagesSent, &stat.MessagesFailed,
			&stat.ApiCalls, &stat.DistinctIPs)
		if err != nil {
			return nil, errors.ErrDatabase.WithError(err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	return stats, nil
}
