package worker

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-intake/internal/config"
	"github.com/spec-kit/helpdesk-intake/internal/service"
)

// StartNotificationWorker subscribes the email notifier to ticket events.
func StartNotificationWorker(notifications *service.NotificationService) {
	if notifications == nil {
		return
	}
	notifications.RegisterHandlers()
}

// IngestionJob polls the mailbox on the configured schedule.
func IngestionJob(ingestion *service.IngestionService, cfg config.IngestionConfig) Job {
	timeout := cfg.LockTTL
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return Job{
		Name:     "mailbox-ingestion",
		Schedule: cfg.Schedule,
		Timeout:  timeout,
		Run: func(ctx context.Context) error {
			_, err := ingestion.Run(ctx)
			return err
		},
	}
}

// SweepJob closes and escalates inactive tickets.
func SweepJob(lifecycle *service.LifecycleService, cfg config.SweepConfig) Job {
	return Job{
		Name:     "inactivity-sweep",
		Schedule: cfg.Schedule,
		Timeout:  30 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := lifecycle.Sweep(ctx, cfg)
			return err
		},
	}
}

// RegisterDefaultJobs wires ingestion, and the sweep when enabled.
func RegisterDefaultJobs(ctx context.Context, s *Scheduler, cfg config.Config, ingestion *service.IngestionService, lifecycle *service.LifecycleService) error {
	if err := s.Register(ctx, IngestionJob(ingestion, cfg.Ingestion)); err != nil {
		return err
	}
	if cfg.Sweep.Enabled {
		if err := s.Register(ctx, SweepJob(lifecycle, cfg.Sweep)); err != nil {
			return err
		}
	}
	return nil
}
