package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-bulkpush-service/internal/engine"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	RoleTTL  string `yaml:"role_ttl"`
}

type YamlAPNSConfig struct {
	KeyID       string `yaml:"key_id"`
	TeamID      string `yaml:"team_id"`
	BundleID    string `yaml:"bundle_id"`
	P8KeyPath   string `yaml:"p8_key_path"`
	Development bool   `yaml:"development"`
}

type YamlDispatchConfig struct {
	BatchSize         int    `yaml:"batch_size"`
	BatchConcurrency  int    `yaml:"batch_concurrency"`
	LookupChunkSize   int    `yaml:"lookup_chunk_size"`
	LookupConcurrency int    `yaml:"lookup_concurrency"`
	Timeout           string `yaml:"timeout"`
	AndroidChannelID  string `yaml:"android_channel_id"`
	ClickAction       string `yaml:"click_action"`
}

type YamlCleanupConfig struct {
	Mode      string `yaml:"mode"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string             `yaml:"project_id"`
	ListenAddr             string             `yaml:"listen_addr"`
	IdentityURL            string             `yaml:"identity_url"`
	TopicID                string             `yaml:"topic_id"`
	SubscriptionID         string             `yaml:"subscription_id"`
	SubscriptionDLQTopicID string             `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig     `yaml:"cors"`
	RedisConfig            YamlRedisConfig    `yaml:"redis"`
	Gateway                string             `yaml:"gateway"`
	APNSConfig             YamlAPNSConfig     `yaml:"apns"`
	DispatchConfig         YamlDispatchConfig `yaml:"dispatch"`
	CleanupConfig          YamlCleanupConfig  `yaml:"cleanup"`
	NumPipelineWorkers     int                `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	roleTTL, err := parseDuration("redis.role_ttl", baseCfg.RedisConfig.RoleTTL)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("dispatch.timeout", baseCfg.DispatchConfig.Timeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		IdentityURL:    baseCfg.IdentityURL,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			RoleTTL:  roleTTL,
		},
		Gateway: baseCfg.Gateway,
		APNS: APNSConfig{
			KeyID:       baseCfg.APNSConfig.KeyID,
			TeamID:      baseCfg.APNSConfig.TeamID,
			BundleID:    baseCfg.APNSConfig.BundleID,
			P8KeyPath:   baseCfg.APNSConfig.P8KeyPath,
			Development: baseCfg.APNSConfig.Development,
		},
		Dispatch: DispatchConfig{
			BatchSize:         baseCfg.DispatchConfig.BatchSize,
			BatchConcurrency:  baseCfg.DispatchConfig.BatchConcurrency,
			LookupChunkSize:   baseCfg.DispatchConfig.LookupChunkSize,
			LookupConcurrency: baseCfg.DispatchConfig.LookupConcurrency,
			Timeout:           timeout,
			AndroidChannelID:  baseCfg.DispatchConfig.AndroidChannelID,
			ClickAction:       baseCfg.DispatchConfig.ClickAction,
		},
		Cleanup: CleanupConfig{
			Mode:      engine.CleanupMode(baseCfg.CleanupConfig.Mode),
			Workers:   baseCfg.CleanupConfig.Workers,
			QueueSize: baseCfg.CleanupConfig.QueueSize,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"gateway", cfg.Gateway,
	)

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
