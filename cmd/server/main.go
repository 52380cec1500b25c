package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/permitcourse/course-backend/internal/cache"
	"github.com/permitcourse/course-backend/internal/config"
	"github.com/permitcourse/course-backend/internal/consumer"
	"github.com/permitcourse/course-backend/internal/handlers"
	"github.com/permitcourse/course-backend/internal/logger"
	"github.com/permitcourse/course-backend/internal/middleware"
	"github.com/permitcourse/course-backend/internal/mq"
	"github.com/permitcourse/course-backend/internal/observability"
	"github.com/permitcourse/course-backend/internal/repository"
	"github.com/permitcourse/course-backend/internal/service"
	"github.com/permitcourse/course-backend/internal/storage"
	"github.com/permitcourse/course-backend/internal/submission"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	appLog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLog); err != nil {
		appLog.Fatal("server stopped", "error", err)
	}
}

func run(ctx context.Context, cfg config.App, appLog *logger.Logger) error {
	shutdownTracer, err := observability.InitTracer(ctx, appLog, observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		appLog.Warn("tracing disabled", "error", err)
	}
	defer func() {
		if shutdownTracer == nil {
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	// Initialize database connection
	db, err := repository.InitDB(cfg.DatabaseDSN())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	defer sqlDB.Close()

	// Redis is best-effort; the caches fall through to the database without it.
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisCache.Ping(pingCtx); err != nil {
		appLog.Warn("redis unavailable, running without cache", "addr", cfg.RedisAddr, "error", err)
		_ = redisCache.Close()
		redisCache = nil
	} else {
		appLog.Info("redis cache connected", "addr", cfg.RedisAddr)
		defer redisCache.Close()
	}
	cancel()

	// Receipt archive (best-effort; admin receipt downloads return 503 if missing)
	var receiptStore *storage.S3Storage
	s3cfg := storage.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
	}
	if st, err := storage.NewS3Storage(s3cfg); errors.Is(err, storage.ErrNotConfigured) {
		appLog.Info("receipt archive disabled", "reason", err)
	} else if err != nil {
		appLog.Warn("receipt storage unavailable", "error", err)
	} else if err := st.EnsureBucket(ctx, cfg.S3Region); err != nil {
		appLog.Warn("receipt bucket unavailable", "bucket", cfg.S3Bucket, "error", err)
	} else {
		receiptStore = st
		appLog.Info("receipt storage initialized", "bucket", cfg.S3Bucket)
	}

	var publisher *mq.Publisher
	if cfg.AMQPURL != "" {
		if publisher, err = mq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
			appLog.Warn("event publisher unavailable", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	// Repositories
	contentRepo := repository.NewContentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	statusRepo := repository.NewCourseStatusRepository(db)

	// Services. Nil sinks must stay untyped nil so the dispatcher skips them.
	var (
		eventSink   submission.EventPublisher
		receiptSink submission.ReceiptStore
		receipts    handlers.ReceiptReader
	)
	if publisher != nil {
		eventSink = publisher
	}
	if receiptStore != nil {
		receiptSink = receiptStore
		receipts = receiptStore
	}
	dispatcher := submission.NewDispatcher(eventSink, receiptSink, appLog)

	progressService := service.NewProgressService(contentRepo, progressRepo, cache.NewContentCache(redisCache), cfg.CourseRequiredSeconds)
	statusService := service.NewCourseStatusService(statusRepo, progressService, dispatcher, cache.NewStatusCache(redisCache), appLog)
	navigationService := service.NewNavigationService(contentRepo, progressRepo, statusRepo)

	app := fiber.New(fiber.Config{
		AppName:               "Permit Course Backend",
		BodyLimit:             64 * 1024,
		DisableStartupMessage: cfg.IsProduction(),
	})
	app.Use(requestid.New())
	app.Use(middleware.Observe(appLog))
	corsCfg := cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}
	if origins := cfg.CORSOrigins(); origins != "" {
		corsCfg.AllowOrigins = origins
	}
	app.Use(cors.New(corsCfg))

	handlers.Routes{
		Progress:       handlers.NewProgressHandler(progressService, appLog),
		Course:         handlers.NewCourseHandler(statusService, navigationService, appLog),
		Payment:        handlers.NewPaymentHandler(statusService, cfg.WebhookSecret, appLog),
		Admin:          handlers.NewAdminHandler(statusService, receipts, appLog),
		Health:         handlers.NewHealthHandler(sqlDB.PingContext),
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
	}.Mount(app)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(sctx)
	})

	if cfg.AMQPURL != "" {
		payments, err := mq.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.PaymentQueue, []string{mq.EventPaymentPaid}, cfg.PaymentPrefetch)
		if err != nil {
			appLog.Warn("payment consumer unavailable", "error", err)
		} else {
			defer payments.Close()
			g.Go(func() error {
				deliveries, err := payments.Deliveries(gctx)
				if err != nil {
					return fmt.Errorf("consume payments: %w", err)
				}
				appLog.Info("payment consumer started", "queue", cfg.PaymentQueue)
				return consumer.NewPaymentConsumer(statusService, appLog).Run(gctx, deliveries)
			})
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	appLog.Info("server stopped")
	return nil
}
