package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-bulkpush-service/bulkpushservice"
	"github.com/tinywideclouds/go-bulkpush-service/bulkpushservice/config"
	"github.com/tinywideclouds/go-bulkpush-service/internal/engine"
	"github.com/tinywideclouds/go-bulkpush-service/internal/metrics"
	"github.com/tinywideclouds/go-bulkpush-service/internal/platform/apns"
	"github.com/tinywideclouds/go-bulkpush-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-bulkpush-service/internal/platform/tracing"
	"github.com/tinywideclouds/go-bulkpush-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-bulkpush-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-bulkpush-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	directory := fsStore.NewDirectoryStore(fsClient)
	auditLog := fsStore.NewAuditLog(fsClient)

	// --- Role Store (Decorated) ---
	var roleStore dispatch.RoleStore = fsStore.NewRoleStore(fsClient)
	logger.Info("RoleStore initialized", "type", "firestore")

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		roleStore = cache.NewCachedRoleStore(roleStore, redisClient, cfg.Redis.RoleTTL, logger)
		logger.Info("RoleStore upgraded", "type", "redis_cached_firestore", "ttl", cfg.Redis.RoleTTL)
	}

	// --- Auth ---
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(cfg.IdentityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT discovery failed", "identity_url", cfg.IdentityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Failed to create auth middleware", "err", err)
		os.Exit(1)
	}

	// --- Gateway ---
	gateway, err := newGateway(ctx, cfg, logger)
	if err != nil {
		logger.Error("Push gateway initialization failed", "gateway", cfg.Gateway, "err", err)
		os.Exit(1)
	}

	// --- Engine ---
	m := metrics.New()
	opts := cfg.EngineOptions()

	var cleaner *engine.Cleaner
	if cfg.Cleanup.Mode != engine.CleanupDisabled {
		cleaner = engine.NewCleaner(directory, opts.CleanupLookupLimit, cfg.Cleanup.QueueSize, cfg.Cleanup.Workers, m, logger)
	}

	eng, err := engine.New(engine.Deps{
		Directory: directory,
		Roles:     roleStore,
		Gateway:   gateway,
		Audit:     auditLog,
		Cleaner:   cleaner,
		Metrics:   m,
		Logger:    logger,
	}, opts)
	if err != nil {
		logger.Error("Engine creation failed", "err", err)
		os.Exit(1)
	}

	// --- Consumer (optional) ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PubsubConsumerConfig != nil {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Queued dispatch consumer failed", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Info("No subscription configured; queued dispatch disabled")
	}

	// Only the async cleanup mode needs the background workers.
	var workers *engine.Cleaner
	if cfg.Cleanup.Mode == engine.CleanupAsync {
		workers = cleaner
	}

	service, err := bulkpushservice.New(cfg, consumer, eng, workers, m, authMiddleware, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown failed", "err", err)
		}
	}()

	logger.Info("Starting service...", "gateway", cfg.Gateway, "cleanup_mode", cfg.Cleanup.Mode)
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Gateway, error) {
	switch cfg.Gateway {
	case config.GatewayAPNS:
		keyBytes, err := os.ReadFile(cfg.APNS.P8KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read APNs key: %w", err)
		}
		gw, err := apns.NewGateway(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: string(keyBytes),
			Development:  cfg.APNS.Development,
		}, logger)
		if err != nil {
			return nil, err
		}
		return tracing.NewGateway(gw, config.GatewayAPNS, nil), nil
	default:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase App: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		return tracing.NewGateway(fcm.NewGateway(fcmMessaging, logger), config.GatewayFCM, nil), nil
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    60,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
