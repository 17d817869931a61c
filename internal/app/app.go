// Package app assembles the services shared by the HTTP server and the command line.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-intake/internal/ai"
	"github.com/spec-kit/helpdesk-intake/internal/auth"
	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/events"
	"github.com/spec-kit/helpdesk-intake/internal/inbound"
	"github.com/spec-kit/helpdesk-intake/internal/notify"
	"github.com/spec-kit/helpdesk-intake/internal/observability"
	"github.com/spec-kit/helpdesk-intake/internal/persistence"
	"github.com/spec-kit/helpdesk-intake/internal/repository"
	"github.com/spec-kit/helpdesk-intake/internal/service"
	"github.com/spec-kit/helpdesk-intake/internal/spam"
	"github.com/spec-kit/helpdesk-intake/internal/storage"
)

// App holds every long-lived dependency.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// MetricsHandler serves the private Prometheus registry.
	MetricsHandler http.Handler

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Repos    repository.Repositories

	Dispatcher     events.Dispatcher
	AuthMiddleware *auth.AuthMiddleware

	Auth          *service.AuthService
	Staff         *service.StaffService
	Tickets       *service.TicketService
	Lifecycle     *service.LifecycleService
	Assignment    *service.AssignmentService
	Merges        *service.MergeService
	Reports       *service.ReportService
	Ingestion     *service.IngestionService
	Notifications *service.NotificationService
}

// Build connects to Postgres and Redis, runs migrations when enabled, and wires the services.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	redis := persistence.NewRedis(cfg.Redis, logger)

	pool := pg.PoolHandle()
	repos := repository.New(pool)
	tx := repository.NewTransactor(pool)

	completer := ai.NewOpenAI(cfg.AI, &http.Client{Timeout: cfg.AI.Timeout + 5*time.Second})
	classifier := ai.NewCachedClassifier(ai.NewLLMClassifier(completer), redis.Client, cfg.AI.CacheTTL, logger.Named("ai"))

	dispatcher := events.NewInMemoryDispatcher(logger.Named("events"))
	sender := notify.NewSender(cfg.Notification, logger.Named("notify"))
	store := storage.New(ctx, cfg.Storage, logger.Named("storage"))

	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo: repos.Users,
		Logger:   logger.Named("auth"),
	})
	staffService := service.NewStaffService(cfg.Auth, service.OrgDependencies{
		DepartmentRepo: repos.Departments,
		UserRepo:       repos.Users,
		Logger:         logger.Named("staff"),
	})
	duplicates := service.NewDuplicateDetector(service.DuplicateDependencies{
		TicketRepo:   repos.Tickets,
		ActivityRepo: repos.Activities,
		Sender:       sender,
		Logger:       logger.Named("duplicates"),
	})
	enricher := service.NewEnrichmentService(service.EnrichmentDependencies{
		AIRepo:     repos.AI,
		Classifier: classifier,
		Metrics:    metrics,
		Logger:     logger.Named("enrichment"),
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Repos:      repos,
		Transactor: tx,
		Duplicates: duplicates,
		Rules:      service.DefaultKeywordRules(),
		Enricher:   enricher,
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.Named("tickets"),
	})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Repos:      repos,
		Transactor: tx,
		Classifier: classifier,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.Named("lifecycle"),
	})
	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		Repos:      repos,
		Classifier: classifier,
		Lifecycle:  lifecycle,
		Metrics:    metrics,
		Logger:     logger.Named("assignment"),
	})
	merges := service.NewMergeService(service.MergeDependencies{
		Repos:      repos,
		Transactor: tx,
		Classifier: classifier,
		Lifecycle:  lifecycle,
		Metrics:    metrics,
		Logger:     logger.Named("merge"),
	})
	ingestion := service.NewIngestionService(service.IngestionDependencies{
		Mailbox:    inbound.NewIMAPMailbox(cfg.Mailbox),
		Locker:     redis,
		LockTTL:    cfg.Ingestion.LockTTL,
		Accounts:   authService,
		Spam:       newSpamClient(cfg.Spam, logger, metrics),
		Duplicates: duplicates,
		Tickets:    tickets,
		Metrics:    metrics,
		Logger:     logger.Named("ingestion"),
	})

	return &App{
		Config:         cfg,
		Logger:         logger,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Postgres:       pg,
		Redis:          redis,
		Repos:          repos,
		Dispatcher:     dispatcher,
		AuthMiddleware: auth.NewAuthMiddleware(authService.Tokens(), repos.Users),
		Auth:           authService,
		Staff:          staffService,
		Tickets:        tickets,
		Lifecycle:      lifecycle,
		Assignment:     assignment,
		Merges:         merges,
		Reports:        service.NewReportService(repos.Reports),
		Ingestion:      ingestion,
		Notifications:  service.NewNotificationService(dispatcher, sender, logger.Named("notifications")),
	}, nil
}

// Close releases connections.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.Redis.Close()
	a.Postgres.Close()
}

// newSpamClient wires the moderation client to the logger and the adapter fallback counter.
func newSpamClient(cfg config.SpamConfig, logger *zap.Logger, metrics *observability.Metrics) *spam.Client {
	return spam.NewClient(cfg,
		spam.WithLogger(logger.Named("spam")),
		spam.WithFallbackHook(func() { metrics.RecordFallback("spam") }),
	)
}
