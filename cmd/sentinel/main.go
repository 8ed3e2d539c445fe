package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	appservice "github.com/aimstors/sentinel/internal/application/service"
	"github.com/aimstors/sentinel/internal/config"
	domainservice "github.com/aimstors/sentinel/internal/domain/service"
	"github.com/aimstors/sentinel/internal/infrastructure/bus"
	"github.com/aimstors/sentinel/internal/infrastructure/consumers"
	"github.com/aimstors/sentinel/internal/infrastructure/monitoring"
	"github.com/aimstors/sentinel/internal/infrastructure/oracle"
	"github.com/aimstors/sentinel/internal/infrastructure/persistence/postgres"
	sentinelredis "github.com/aimstors/sentinel/internal/infrastructure/persistence/redis"
	httpiface "github.com/aimstors/sentinel/internal/interfaces/http"
	"github.com/aimstors/sentinel/internal/interfaces/http/handlers"
	"github.com/aimstors/sentinel/internal/scheduler"
	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/logger"
)

func main() {
	startupLogger, _ := monitoring.NewZapLogger(&config.LogConfig{Level: "info"})

	cfg, err := config.LoadConfig(startupLogger)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize tracing", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	db, err := postgres.NewDBConnection(&cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to database", err)
	}
	if err := postgres.Migrate(db); err != nil {
		appLogger.Fatal(ctx, "failed to migrate database", err)
	}

	pgxPool, err := postgres.NewPgxPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to create pgx pool", err)
	}
	defer pgxPool.Close()

	redisClient, err := sentinelredis.NewRedisClient(ctx, &cfg.Redis, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to redis", err)
	}
	defer redisClient.Close()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	counterStore := sentinelredis.NewCounterStore(redisClient, appLogger)
	producer := bus.NewKafkaProducer(cfg.Kafka, appLogger)
	defer producer.Close()
	scoreOracle := oracle.NewHTTPOracle(cfg.Oracle, appLogger)
	scorer := domainservice.NewRiskScorer(scoreOracle, metrics, appLogger)
	notifier := appservice.NewLogNotifier(appLogger)

	credentialRepo := postgres.NewCredentialRepository(db, appLogger)
	tenantRepo := postgres.NewTenantRepository(db, appLogger)
	riskEventRepo := postgres.NewRiskEventRepository(db, appLogger)
	tenantRiskRepo := postgres.NewTenantRiskRepository(db, appLogger)
	resellerRiskRepo := postgres.NewResellerRiskRepository(db, appLogger)
	snapshotRepo := postgres.NewSnapshotRepository(db, appLogger)
	clusterRepo := postgres.NewClusterRepository(db, appLogger)
	hourlyRepo := postgres.NewHourlyMetricRepository(db, appLogger)
	policyRepo := postgres.NewPolicyRepository(db, appLogger)
	usageSource := postgres.NewUsageEventSource(pgxPool, appLogger)

	policy := domainservice.NewSuspensionPolicy(cfg.Risk.SuspendThreshold, cfg.Risk.WarnThreshold)
	killSwitch := appservice.NewKillSwitchService(
		credentialRepo, tenantRepo, riskEventRepo, policy,
		counterStore, producer, notifier, metrics,
		cfg.Risk, cfg.Kafka.SecurityEventsTopic, appLogger)
	adaptive := appservice.NewAdaptiveThresholdService(
		policyRepo, counterStore, appservice.NewMathRandSource(), metrics, cfg.Risk, appLogger)
	aggregator := appservice.NewRiskAggregatorService(
		tenantRiskRepo, resellerRiskRepo, snapshotRepo, clusterRepo,
		credentialRepo, counterStore, adaptive, metrics, appLogger)
	globalAnomaly := appservice.NewGlobalAnomalyService(
		usageSource, hourlyRepo, clusterRepo, producer, metrics,
		cfg.Risk, cfg.Kafka.ClusterTopic, appLogger)

	config.Watch(appLogger, func(riskCfg config.RiskConfig) {
		appLogger.Info(ctx, "risk configuration reloaded",
			logger.Float64("suspend_threshold", riskCfg.SuspendThreshold),
			logger.Float64("warn_threshold", riskCfg.WarnThreshold))
	})

	streamWorker := consumers.NewStreamWorker(
		cfg.Kafka, cfg.Risk, counterStore, producer, killSwitch, aggregator, scorer, appLogger)
	mlWorker := consumers.NewMLResultWorker(cfg.Kafka, killSwitch, aggregator, appLogger)
	clusterWorker := consumers.NewClusterWorker(
		cfg.Kafka, cfg.Risk, clusterRepo, aggregator, counterStore, metrics, appLogger)

	jobs := scheduler.NewScheduler(appLogger)
	jobs.Every(constants.AggregationInterval, "platform_aggregation", aggregator.Aggregate)
	jobs.Every(constants.DecayInterval, "risk_decay", killSwitch.DecaySweep)
	jobs.HourlyAt(constants.HourlyRollupMinute, "hourly_rollup", globalAnomaly.AggregateHourlyMetrics)
	jobs.HourlyAt(constants.ClusterDetectMinute, "cluster_detection", globalAnomaly.DetectClusters)

	healthHandler := handlers.NewHealthHandler(db, redisClient, appLogger)
	riskHandler := handlers.NewRiskHandler(tenantRiskRepo, snapshotRepo, clusterRepo, riskEventRepo, adaptive, appLogger)
	router := httpiface.NewRouter(cfg, appLogger, healthHandler, riskHandler)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		streamWorker.Start(ctx)
		return nil
	})
	g.Go(func() error {
		mlWorker.Start(ctx)
		return nil
	})
	g.Go(func() error {
		clusterWorker.Start(ctx)
		return nil
	})
	g.Go(func() error {
		return jobs.Run(ctx)
	})
	g.Go(func() error {
		return router.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		streamWorker.Stop()
		mlWorker.Stop()
		clusterWorker.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return router.Stop(shutdownCtx)
	})

	appLogger.Info(ctx, "sentinel risk engine started")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		appLogger.Fatal(context.Background(), "engine terminated", err)
	}
	appLogger.Info(context.Background(), "sentinel risk engine stopped")
}
