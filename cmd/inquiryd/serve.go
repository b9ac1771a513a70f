package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/inquirydesk/inquiry-service/internal/api/http"
	"github.com/inquirydesk/inquiry-service/internal/api/http/handlers"
	"github.com/inquirydesk/inquiry-service/internal/auth"
	"github.com/inquirydesk/inquiry-service/internal/clock"
	"github.com/inquirydesk/inquiry-service/internal/directory"
	"github.com/inquirydesk/inquiry-service/internal/events"
	"github.com/inquirydesk/inquiry-service/internal/live"
	"github.com/inquirydesk/inquiry-service/internal/notification"
	"github.com/inquirydesk/inquiry-service/internal/observability"
	"github.com/inquirydesk/inquiry-service/internal/persistence"
	"github.com/inquirydesk/inquiry-service/internal/repository"
	"github.com/inquirydesk/inquiry-service/internal/repository/memory"
	"github.com/inquirydesk/inquiry-service/internal/service"
	"github.com/inquirydesk/inquiry-service/internal/worker"
	"github.com/inquirydesk/inquiry-service/migrations"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect postgres", zap.Error(err))
		return err
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.FS, logger); err != nil {
			logger.Error("failed to run migrations", zap.Error(err))
			return err
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		store repository.Store
		dir   directory.Directory
	)
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
		dir = directory.NewPostgresDirectory(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not set; using in-memory store")
		store = memory.NewStore()
		dir = directory.NewStatic()
	}

	var (
		guard  notification.Guard
		broker live.Broker
	)
	if redis.Enabled() {
		guard = notification.NewRedisGuard(redis.Client, cfg.Notification.IdempotencyTTL, logger)
		broker = live.NewRedisBroker(redis.Client, logger)
	} else {
		guard = notification.NewMemoryGuard(cfg.Notification.IdempotencyTTL, clock.Real())
	}
	sink := notification.SelectSink(cfg.Notification.WebhookURL, cfg.Notification.StreamKey,
		cfg.Notification.DeliverTimeout, redis.Client, logger)

	notifier := worker.NewNotificationWorker(worker.NotificationWorkerConfig{
		Workers:        cfg.Notification.Workers,
		QueueSize:      cfg.Notification.QueueSize,
		MaxAttempts:    cfg.Notification.MaxAttempts,
		RetryBackoff:   cfg.Notification.RetryBackoff,
		DeliverTimeout: cfg.Notification.DeliverTimeout,
	}, sink, guard, logger)
	notifier.Start(ctx)

	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, notifier, cfg.Tickets.SupportQueueID, logger).RegisterHandlers()

	hub := live.NewHub(broker, live.DefaultBuffer, logger)
	live.RegisterHandlers(dispatcher, hub)
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.Error("live broker stopped", zap.Error(err))
		}
	}()

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Directory:  dir,
		Clock:      clock.Real(),
		Config:     cfg.Tickets,
		Logger:     logger,
	})
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}, logger),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Stream:         handlers.NewStreamHandler(ticketService, hub, 0, logger),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		RateLimiter:    httptransport.NewActorRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		logger.Error("fiber listen", zap.Error(err))
		return err
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := notifier.Stop(drainCtx); err != nil {
		logger.Warn("notification drain incomplete", zap.Error(err))
	}
	cancel()
	return nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
