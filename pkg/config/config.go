// Package config loads TOML configuration with environment variable override
// and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the payments core.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	Limits  LimitsConfig  `mapstructure:"limits"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Review  ReviewConfig  `mapstructure:"review"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Gateway GatewayConfig `mapstructure:"gateway"`
}

type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"`
	LogEnabled         bool   `mapstructure:"log_enabled"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	EventTopic   string   `mapstructure:"event_topic"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LimitTier holds the ceilings for one operation type: maximum operation
// count in the rolling window plus cumulative and single-operation amounts,
// keyed by currency.
type LimitTier struct {
	MaxCount          int               `mapstructure:"max_count"`
	HourlyAmount      map[string]string `mapstructure:"hourly_amount"`
	DailyAmount       map[string]string `mapstructure:"daily_amount"`
	MonthlyAmount     map[string]string `mapstructure:"monthly_amount"`
	SingleTransaction map[string]string `mapstructure:"single_transaction"`
}

type LimitsConfig struct {
	WindowMinutes    int                  `mapstructure:"window_minutes"`
	Subject          map[string]LimitTier `mapstructure:"subject"`
	Origin           map[string]LimitTier `mapstructure:"origin"`
	MonitoringPeriod int                  `mapstructure:"monitoring_period_minutes"`
}

type RiskConfig struct {
	MonitorThreshold     int  `mapstructure:"monitor_threshold"`
	ReviewThreshold      int  `mapstructure:"review_threshold"`
	BlockThreshold       int  `mapstructure:"block_threshold"`
	AutoBlockScore       int  `mapstructure:"auto_block_score"`
	SuspiciousBlockCount int  `mapstructure:"suspicious_block_count"`
	FailClosed           bool `mapstructure:"fail_closed"`
	BaselineDays         int  `mapstructure:"baseline_days"`
	RecomputeMinutes     int  `mapstructure:"recompute_minutes"`
}

type ReviewConfig struct {
	MaxConcurrentReviews int      `mapstructure:"max_concurrent_reviews"`
	MonitorSeconds       int      `mapstructure:"monitor_seconds"`
	Reviewers            []string `mapstructure:"reviewers"`
}

type WebhookProviderConfig struct {
	Secret       string `mapstructure:"secret"`
	ReplaySecs   int    `mapstructure:"replay_window_seconds"`
	OriginRate   int    `mapstructure:"origin_rate_per_minute"`
	OriginBurst  int    `mapstructure:"origin_burst"`
	MaxSigFails  int    `mapstructure:"max_signature_failures"`
	BlockMinutes int    `mapstructure:"block_minutes"`
}

type WebhookConfig struct {
	Providers map[string]WebhookProviderConfig `mapstructure:"providers"`
}

type GatewayConfig struct {
	Paystack GatewayEndpointConfig `mapstructure:"paystack"`
	Stripe   GatewayEndpointConfig `mapstructure:"stripe"`
}

type GatewayEndpointConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	SecretKey      string `mapstructure:"secret_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load reads a TOML file, applies APP_ prefixed env overrides and validates.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks required fields and port ranges.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.event_topic", "payments.events")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("limits.window_minutes", 60)
	v.SetDefault("limits.monitoring_period_minutes", 60)

	v.SetDefault("risk.monitor_threshold", 31)
	v.SetDefault("risk.review_threshold", 61)
	v.SetDefault("risk.block_threshold", 81)
	v.SetDefault("risk.auto_block_score", 90)
	v.SetDefault("risk.suspicious_block_count", 5)
	v.SetDefault("risk.fail_closed", false)
	v.SetDefault("risk.baseline_days", 7)
	v.SetDefault("risk.recompute_minutes", 60)

	v.SetDefault("review.max_concurrent_reviews", 5)
	v.SetDefault("review.monitor_seconds", 60)
}

// GetEnv returns an environment variable or the provided default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
