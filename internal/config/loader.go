package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/aimstors/sentinel/pkg/constants"
	"github.com/aimstors/sentinel/pkg/errors"
	"github.com/aimstors/sentinel/pkg/logger"
)

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(log logger.Logger) (*Config, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Warn(context.Background(), "no config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidConfig.WithError(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.ErrInvalidConfig.WithError(err)
	}

	return &cfg, nil
}

// Watch re-reads the risk tunables when the config file changes and hands the
// fresh RiskConfig to onChange. Only the tunable block is hot-swapped; store
// and broker addresses require a restart.
func Watch(log logger.Logger, onChange func(RiskConfig)) {
	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			log.Error(context.Background(), "failed to reload config", err, logger.String("file", e.Name))
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Error(context.Background(), "reloaded config failed validation, keeping previous", err)
			return
		}
		log.Info(context.Background(), "risk tunables reloaded", logger.String("file", e.Name))
		onChange(cfg.Risk)
	})
	v.WatchConfig()
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.usage_topic", "aimstors.usage.events")
	v.SetDefault("kafka.security_topic", "aimstors.security.events")
	v.SetDefault("kafka.ml_results_topic", "aimstors.anomaly.results")
	v.SetDefault("kafka.alerts_topic", "aimstors.anomaly.alerts")
	v.SetDefault("kafka.cluster_topic", "aimstors.platform.cluster.events")
	v.SetDefault("kafka.security_events_topic", "aimstors.security.events.out")
	v.SetDefault("kafka.engine_group", "sentinel-anomaly-engine")
	v.SetDefault("kafka.ml_results_group", "sentinel-ml-results")
	v.SetDefault("kafka.mitigation_group", "sentinel-cluster-mitigation")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.read_timeout", "10s")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("kafka.required_acks", -1)

	v.SetDefault("oracle.timeout", "2s")

	v.SetDefault("risk.suspend_threshold", constants.SuspensionThreshold)
	v.SetDefault("risk.warn_threshold", constants.WarningThreshold)
	v.SetDefault("risk.tenant_freeze_score", constants.TenantFreezeThreshold)
	v.SetDefault("risk.decay_factor", constants.DecayFactor)
	v.SetDefault("risk.recovery_floor", constants.RecoveryFloor)
	v.SetDefault("risk.rate_spike_per_minute", constants.RateSpikePerMinute)
	v.SetDefault("risk.alert_spike_per_minute", constants.AlertSpikePerMinute)
	v.SetDefault("risk.platform_spike_floor", constants.PlatformSpikePerMinute)
	v.SetDefault("risk.platform_cluster_size", constants.PlatformClusterMinTenants)
	v.SetDefault("risk.auth_spam_failures", constants.AuthSpamFailures)
	v.SetDefault("risk.brute_force_failures", constants.BruteForceFailures)
	v.SetDefault("risk.exploration_rate", constants.DefaultExplorationRate)
	v.SetDefault("risk.baseline_msg_factor", 3.0)
	v.SetDefault("risk.baseline_fail_factor", 2.0)
	v.SetDefault("risk.cluster_similarity", constants.ClusterSimilarityThreshold)
	v.SetDefault("risk.min_cluster_size", constants.MinClusterSize)
	v.SetDefault("risk.cluster_tenant_escalation", 15.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "sentinel")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/sentinel/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}
