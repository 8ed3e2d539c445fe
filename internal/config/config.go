package config

import (
	"fmt"
	"time"
)

// Config holds the engine's configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Environment  string `mapstructure:"environment"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"` // in minutes
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`

	UsageTopic          string `mapstructure:"usage_topic"`
	SecurityTopic       string `mapstructure:"security_topic"`
	MLResultsTopic      string `mapstructure:"ml_results_topic"`
	AlertsTopic         string `mapstructure:"alerts_topic"`
	ClusterTopic        string `mapstructure:"cluster_topic"`
	SecurityEventsTopic string `mapstructure:"security_events_topic"`

	EngineGroup     string `mapstructure:"engine_group"`
	MLResultsGroup  string `mapstructure:"ml_results_group"`
	MitigationGroup string `mapstructure:"mitigation_group"`

	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

type OracleConfig struct {
	// Endpoint is the ML scoring service URL. Empty disables the oracle and
	// every evaluation uses the local heuristic.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds a single scoring call. The heuristic fallback exists
	// precisely so this can stay aggressive.
	Timeout time.Duration `mapstructure:"timeout"`
}

// RiskConfig carries the tunable business thresholds. Defaults mirror the
// documented fixed breakpoints; changing them changes enforcement behavior.
type RiskConfig struct {
	SuspendThreshold     float64 `mapstructure:"suspend_threshold"`
	WarnThreshold        float64 `mapstructure:"warn_threshold"`
	TenantFreezeScore    float64 `mapstructure:"tenant_freeze_score"`
	DecayFactor          float64 `mapstructure:"decay_factor"`
	RecoveryFloor        float64 `mapstructure:"recovery_floor"`
	RateSpikePerMinute   int64   `mapstructure:"rate_spike_per_minute"`
	AlertSpikePerMinute  int64   `mapstructure:"alert_spike_per_minute"`
	PlatformSpikeFloor   int64   `mapstructure:"platform_spike_floor"`
	PlatformClusterSize  int64   `mapstructure:"platform_cluster_size"`
	AuthSpamFailures     int64   `mapstructure:"auth_spam_failures"`
	BruteForceFailures   int64   `mapstructure:"brute_force_failures"`
	ExplorationRate      float64 `mapstructure:"exploration_rate"`
	BaselineMsgFactor    float64 `mapstructure:"baseline_msg_factor"`
	BaselineFailFactor   float64 `mapstructure:"baseline_fail_factor"`
	ClusterSimilarity    float64 `mapstructure:"cluster_similarity"`
	MinClusterSize       int     `mapstructure:"min_cluster_size"`
	ClusterTenantEscalat float64 `mapstructure:"cluster_tenant_escalation"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka: at least one broker is required")
	}
	if c.Risk.DecayFactor <= 0 || c.Risk.DecayFactor >= 1 {
		return fmt.Errorf("risk: decay_factor must be in (0,1), got %v", c.Risk.DecayFactor)
	}
	if c.Risk.SuspendThreshold < c.Risk.WarnThreshold {
		return fmt.Errorf("risk: suspend_threshold must be >= warn_threshold")
	}
	if c.Risk.ExplorationRate < 0 || c.Risk.ExplorationRate > 1 {
		return fmt.Errorf("risk: exploration_rate must be in [0,1]")
	}
	return nil
}
