package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-bulkpush-service/internal/engine"
)

const (
	GatewayFCM  = "fcm"
	GatewayAPNS = "apns"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	RoleTTL  time.Duration
}

type APNSConfig struct {
	KeyID       string
	TeamID      string
	BundleID    string
	P8KeyPath   string
	Development bool
}

// DispatchConfig tunes the engine.
type DispatchConfig struct {
	BatchSize         int
	BatchConcurrency  int
	LookupChunkSize   int
	LookupConcurrency int
	Timeout           time.Duration
	AndroidChannelID  string
	ClickAction       string
}

type CleanupConfig struct {
	Mode      engine.CleanupMode
	Workers   int
	QueueSize int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	IdentityURL            string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig

	Gateway  string
	APNS     APNSConfig
	Dispatch DispatchConfig
	Cleanup  CleanupConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// EngineOptions maps the dispatch and cleanup settings onto engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		BatchSize:         c.Dispatch.BatchSize,
		BatchConcurrency:  c.Dispatch.BatchConcurrency,
		LookupChunkSize:   c.Dispatch.LookupChunkSize,
		LookupConcurrency: c.Dispatch.LookupConcurrency,
		CleanupMode:       c.Cleanup.Mode,
		DispatchTimeout:   c.Dispatch.Timeout,
		AndroidChannelID:  c.Dispatch.AndroidChannelID,
		ClickAction:       c.Dispatch.ClickAction,
	}
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("IDENTITY_SERVICE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_SERVICE_URL", "source", "env")
		cfg.IdentityURL = val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// Gateway Overrides
	if val := os.Getenv("PUSH_GATEWAY"); val != "" {
		logger.Debug("Overriding config value", "key", "PUSH_GATEWAY", "source", "env")
		cfg.Gateway = strings.ToLower(strings.TrimSpace(val))
	}
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY_PATH"); val != "" {
		cfg.APNS.P8KeyPath = val
	}
	if val := os.Getenv("APNS_DEVELOPMENT"); val != "" {
		dev, _ := strconv.ParseBool(val)
		cfg.APNS.Development = dev
	}

	// Dispatch Overrides
	if val := os.Getenv("DISPATCH_BATCH_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			logger.Debug("Overriding config value", "key", "DISPATCH_BATCH_SIZE", "source", "env")
			cfg.Dispatch.BatchSize = size
		}
	}
	if val := os.Getenv("DISPATCH_BATCH_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			logger.Debug("Overriding config value", "key", "DISPATCH_BATCH_CONCURRENCY", "source", "env")
			cfg.Dispatch.BatchConcurrency = n
		}
	}
	if val := os.Getenv("DISPATCH_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPATCH_TIMEOUT %q: %w", val, err)
		}
		cfg.Dispatch.Timeout = d
	}
	if val := os.Getenv("ANDROID_CHANNEL_ID"); val != "" {
		cfg.Dispatch.AndroidChannelID = val
	}

	// Cleanup Overrides
	if val := os.Getenv("CLEANUP_MODE"); val != "" {
		logger.Debug("Overriding config value", "key", "CLEANUP_MODE", "source", "env")
		cfg.Cleanup.Mode = engine.CleanupMode(strings.ToLower(strings.TrimSpace(val)))
	}
	if val := os.Getenv("CLEANUP_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.Cleanup.Workers = n
		}
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = "http://localhost:3000"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}

	switch cfg.Gateway {
	case "":
		cfg.Gateway = GatewayFCM
	case GatewayFCM:
	case GatewayAPNS:
		if cfg.APNS.KeyID == "" || cfg.APNS.TeamID == "" || cfg.APNS.BundleID == "" || cfg.APNS.P8KeyPath == "" {
			return nil, fmt.Errorf("apns gateway requires key id, team id, bundle id and p8 key path")
		}
	default:
		return nil, fmt.Errorf("unknown push gateway %q (want %q or %q)", cfg.Gateway, GatewayFCM, GatewayAPNS)
	}

	mode, err := engine.ParseCleanupMode(string(cfg.Cleanup.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Cleanup.Mode = mode
	if cfg.Cleanup.Workers <= 0 {
		cfg.Cleanup.Workers = 2
	}
	if cfg.Cleanup.QueueSize <= 0 {
		cfg.Cleanup.QueueSize = 256
	}

	if cfg.Dispatch.BatchSize <= 0 || cfg.Dispatch.BatchSize > engine.MaxMulticastTokens {
		cfg.Dispatch.BatchSize = engine.MaxMulticastTokens
	}
	if cfg.Dispatch.Timeout < 0 {
		return nil, fmt.Errorf("dispatch timeout must not be negative")
	}
	if cfg.Redis.Enabled && cfg.Redis.RoleTTL <= 0 {
		cfg.Redis.RoleTTL = 10 * time.Minute
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
