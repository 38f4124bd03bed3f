// Package config loads the orchestrator's configuration via viper: a
// single mapstructure-tagged Config unmarshalled from file and
// environment, with defaults set before read and validated after.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration value threaded through
// BatchManager construction as an explicit value rather than a
// process-wide singleton.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Batch         BatchConfig         `mapstructure:"batch"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
}

// ServerConfig holds the introspection HTTP/gRPC surface configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnableGRPC      bool          `mapstructure:"enable_grpc"`
	GRPCPort        int           `mapstructure:"grpc_port"`
}

// BatchConfig holds every key recognized under `BatchQueue.*`, plus
// the StickyFailure toggle governing terminal-state transitions.
type BatchConfig struct {
	Storage string `mapstructure:"storage"` // "sql" | "redis" | "memory"

	SQL struct {
		Driver     string `mapstructure:"driver"` // postgres | sqlite
		Connection string `mapstructure:"connection"`
	} `mapstructure:"sql"`

	Redis struct {
		Host         string        `mapstructure:"host"`
		Port         int           `mapstructure:"port"`
		Database     int           `mapstructure:"database"`
		Password     string        `mapstructure:"password"`
		Persistent   bool          `mapstructure:"persistent"`
		Timeout      time.Duration `mapstructure:"timeout"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		Prefix       string        `mapstructure:"prefix"`
		TTL          time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`

	QueueName string `mapstructure:"queue_name"`

	Transport struct {
		Driver  string `mapstructure:"driver"` // memory | redis | nats
		NATSUrl string `mapstructure:"nats_url"`
		Workers int    `mapstructure:"workers"`
	} `mapstructure:"transport"`

	Cache struct {
		Type string        `mapstructure:"type"` // memory | redis | multilevel
		TTL  time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	Defaults struct {
		FailOnFirstError bool          `mapstructure:"fail_on_first_error"`
		MaxRetries       int           `mapstructure:"max_retries"`
		Timeout          time.Duration `mapstructure:"timeout"`
	} `mapstructure:"defaults"`

	Cleanup struct {
		Enabled       bool          `mapstructure:"enabled"`
		OlderThanDays int           `mapstructure:"older_than_days"`
		RunInterval   time.Duration `mapstructure:"run_interval"`
	} `mapstructure:"cleanup"`

	Queues struct {
		Default struct {
			Parallel   string `mapstructure:"parallel"`
			Sequential string `mapstructure:"sequential"`
		} `mapstructure:"default"`
		Named map[string]NamedQueueConfig `mapstructure:"named"`
		Types map[string]NamedQueueConfig `mapstructure:"types"`
	} `mapstructure:"queues"`

	// StickyFailure: once a batch transitions to failed, later
	// completions never flip it back to completed. Set false to let
	// whichever terminal condition is observed first win.
	StickyFailure bool `mapstructure:"sticky_failure"`
}

// NamedQueueConfig is one entry of BatchQueue.queues.named.<name> or
// BatchQueue.queues.types.<type>.
type NamedQueueConfig struct {
	QueueConfig string `mapstructure:"queue_config"`
	Processor   string `mapstructure:"processor"`
}

// ObservabilityConfig mirrors its observability block.
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"` // json, text
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPort    int    `mapstructure:"metrics_port"`
}

// AuthConfig configures the bearer-token auth on the read-only
// introspection HTTP surface.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
}

// Load loads configuration from file and environment variables under
// the BATCHQUEUE_ prefix.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BATCHQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.enable_grpc", false)
	v.SetDefault("server.grpc_port", 9090)

	v.SetDefault("batch.storage", "memory")
	v.SetDefault("batch.sql.driver", "sqlite")
	v.SetDefault("batch.sql.connection", "batchqueue.db")
	v.SetDefault("batch.redis.host", "localhost")
	v.SetDefault("batch.redis.port", 6379)
	v.SetDefault("batch.redis.database", 0)
	v.SetDefault("batch.redis.timeout", "5s")
	v.SetDefault("batch.redis.read_timeout", "3s")
	v.SetDefault("batch.redis.prefix", "batch:")
	v.SetDefault("batch.redis.ttl", "24h")
	v.SetDefault("batch.queue_name", "")
	v.SetDefault("batch.transport.driver", "memory")
	v.SetDefault("batch.transport.nats_url", "nats://localhost:4222")
	v.SetDefault("batch.transport.workers", 5)
	v.SetDefault("batch.cache.type", "memory")
	v.SetDefault("batch.cache.ttl", 10*time.Second)
	v.SetDefault("batch.defaults.fail_on_first_error", false)
	v.SetDefault("batch.defaults.max_retries", 3)
	v.SetDefault("batch.defaults.timeout", "5m")
	v.SetDefault("batch.cleanup.enabled", true)
	v.SetDefault("batch.cleanup.older_than_days", 30)
	v.SetDefault("batch.cleanup.run_interval", "1h")
	v.SetDefault("batch.queues.default.parallel", "batchjob")
	v.SetDefault("batch.queues.default.sequential", "chainedjobs")
	v.SetDefault("batch.sticky_failure", true)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.metrics_port", 9091)

	v.SetDefault("auth.jwt_expiration", "24h")
	v.SetDefault("auth.jwt_secret", "")
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	validStorage := map[string]bool{"sql": true, "redis": true, "memory": true}
	if !validStorage[cfg.Batch.Storage] {
		return fmt.Errorf("invalid batch storage driver: %s", cfg.Batch.Storage)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[cfg.Observability.LogLevel] {
		return fmt.Errorf("invalid log level: %s", cfg.Observability.LogLevel)
	}

	return nil
}
