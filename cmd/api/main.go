package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/api/http/handlers"
	httptransport "github.com/spec-kit/helpdesk-intake/internal/api/http"
	"github.com/spec-kit/helpdesk-intake/internal/app"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer a.Close()

	if _, err := a.Staff.SyncDepartments(ctx); err != nil {
		logger.Fatal("failed to sync departments", zap.Error(err))
	}

	worker.StartNotificationWorker(a.Notifications)

	scheduler := worker.NewScheduler(logger.Named("scheduler"))
	if err := worker.RegisterDefaultJobs(ctx, scheduler, *cfg, a.Ingestion, a.Lifecycle); err != nil {
		logger.Fatal("failed to register jobs", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	fiberApp := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(fiberApp, logger, a.Metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(fiberApp, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": a.Postgres,
			"redis":    a.Redis,
		}, a.MetricsHandler),
		Auth:           handlers.NewAuthHandler(a.Auth),
		Tickets:        handlers.NewTicketsHandler(a.Tickets, a.Lifecycle),
		StaffTickets:   handlers.NewStaffTicketsHandler(a.Lifecycle, a.Assignment, a.Merges),
		Staff:          handlers.NewStaffHandler(a.Staff, a.Reports),
		AuthMiddleware: a.AuthMiddleware,
	})

	go func() {
		if err := fiberApp.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = fiberApp.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
