package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules. A job never overlaps with itself.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler using standard five-field specs and descriptors such as "@every 5m".
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		logger: logger,
	}
}

// Register adds a job. ctx is the parent of every run.
func (s *Scheduler) Register(ctx context.Context, job Job) error {
	if job.Schedule == "" {
		return fmt.Errorf("job %s has no schedule", job.Name)
	}
	_, err := s.cron.AddFunc(job.Schedule, func() {
		s.execute(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", job.Name, err)
	}
	s.logger.Info("job registered", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
	return nil
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	s.wg.Add(1)
	defer s.wg.Done()

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(runCtx)
	fields := []zap.Field{zap.String("job", job.Name), zap.Duration("duration", time.Since(start))}
	if err != nil {
		s.logger.Error("job failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("job finished", fields...)
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
