package main

import (
	"context"
	"log"
	"time"

	"uniforme-api/config"
	"uniforme-api/internal/events"
	"uniforme-api/internal/handler"
	"uniforme-api/internal/metrics"
	"uniforme-api/internal/redis"
	"uniforme-api/internal/repository"
	"uniforme-api/internal/server"
	"uniforme-api/internal/services"
	"uniforme-api/internal/storage"
	"uniforme-api/pkg/database"
	"uniforme-api/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.NewWithFile(mode, cfg.LogFile)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Failed to migrate attachment schema: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTracing, err := metrics.InitTracing(ctx, l, metrics.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.AppMode,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		l.Logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownTracing(flushCtx)
	}()

	store, err := storage.NewClient(ctx, storage.S3Config{
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Endpoint:  cfg.Storage.Endpoint,
	})
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redis.Ping(ctx, redisClient); err != nil {
		// Rate limiting fails open and events are best effort, so keep serving.
		l.Logger.Warn("redis unreachable at startup", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewPrometheusObserver("uniforme", registry)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	attachmentService := services.NewAttachmentService(
		repository.NewOrderItemRepository(db),
		repository.NewAttachmentRepository(db),
		store,
		cfg.Attachment,
		services.WithNotifier(events.NewAttachmentNotifier(redis.NewPublisher(redisClient))),
		services.WithObserver(observer),
		services.WithLogger(l),
	)

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Attachment: handler.NewAttachmentHandler(attachmentService, l, cfg.Attachment.MaxBytes),
	}, server.Deps{
		Auth: services.NewJWTAuthenticator(cfg.JWTSecret),
		Limiter: redis.NewRateLimiter(redisClient, redis.RateLimitConfig{
			UploadLimit:  cfg.RateLimit.UploadLimit,
			UploadWindow: cfg.RateLimit.UploadWindow,
		}),
		Gatherer:    registry,
		HealthCheck: database.HealthCheck,
	})

	if err := srv.Start(); err != nil {
		l.Errorf("server stopped with error: %s", err)
	}
}
