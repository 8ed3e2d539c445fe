// Package postgres provides the PostgreSQL implementations of the repository
// interfaces, using GORM for the engine-owned tables.
package postgres

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimstors/sentinel/internal/config"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// NewDBConnection opens a GORM connection pool against PostgreSQL and
// verifies it with a ping.
func NewDBConnection(cfg *config.DatabaseConfig, log logger.Logger) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidConfig
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MinConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxConnLifetime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, errors.ErrDatabase.WithError(err)
	}

	log.Info(context.Background(), "connected to postgres",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))

	return db, nil
}

// Migrate creates the engine-owned tables. The credential and tenant master
// tables are owned by collaborators and are not migrated here.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&apiKeyRiskEventDBM{},
		&tenantRiskScoreDBM{},
		&resellerRiskScoreDBM{},
		&platformRiskSnapshotDBM{},
		&platformAnomalyClusterDBM{},
		&tenantHourlyMetricDBM{},
		&rlPolicyDBM{},
		&rlExperienceDBM{},
	)
}
