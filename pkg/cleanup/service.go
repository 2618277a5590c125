// Package cleanup provides scheduled data retention sweeps.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
)

// Service runs the retention sweeps on a cron schedule:
//   - old completed and cancelled jobs
//   - old failed jobs (kept longer so failures stay inspectable)
//   - old AI call audit rows
//
// Job logs disappear with their jobs via FK cascade. Every sweep is
// idempotent; a failing sweep is logged and does not affect the next run.
type Service struct {
	config *config.RetentionConfig
	jobs   *services.JobService
	aiLogs *services.AILogService
	logger *slog.Logger

	cron *cron.Cron
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, jobs *services.JobService, aiLogs *services.AILogService, logger *slog.Logger) *Service {
	return &Service{
		config: cfg,
		jobs:   jobs,
		aiLogs: aiLogs,
		logger: logger.With("component", "cleanup"),
	}
}

// Start schedules the sweeps and launches the cron runner.
func (s *Service) Start() error {
	if s.cron != nil {
		return nil
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.config.Schedule, s.RunAll); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}
	s.cron.Start()

	s.logger.Info("cleanup service started",
		"schedule", s.config.Schedule,
		"job_retention_days", s.config.JobRetentionDays,
		"failed_job_retention_days", s.config.FailedJobRetentionDays,
		"ai_log_retention_days", s.config.AILogRetentionDays)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("cleanup service stopped")
}

// RunAll executes every retention sweep once. Exposed so operators can
// trigger a sweep outside the schedule.
func (s *Service) RunAll() {
	ctx := context.Background()
	s.sweepTerminalJobs(ctx)
	s.sweepFailedJobs(ctx)
	s.sweepAILogs(ctx)
}

func (s *Service) sweepTerminalJobs(ctx context.Context) {
	cutoff := daysAgo(s.config.JobRetentionDays)
	count, err := s.jobs.DeleteOldJobs(ctx, cutoff, []models.JobStatus{
		models.JobStatusCompleted, models.JobStatusCancelled,
	})
	if err != nil {
		s.logger.Error("retention: job sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: removed old jobs", "count", count, "cutoff", cutoff)
	}
}

func (s *Service) sweepFailedJobs(ctx context.Context) {
	cutoff := daysAgo(s.config.FailedJobRetentionDays)
	count, err := s.jobs.DeleteOldJobs(ctx, cutoff, []models.JobStatus{models.JobStatusFailed})
	if err != nil {
		s.logger.Error("retention: failed-job sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: removed old failed jobs", "count", count, "cutoff", cutoff)
	}
}

func (s *Service) sweepAILogs(ctx context.Context) {
	cutoff := daysAgo(s.config.AILogRetentionDays)
	count, err := s.aiLogs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention: ai log sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("retention: removed old ai logs", "count", count, "cutoff", cutoff)
	}
}

func daysAgo(days int) time.Time {
	return time.Now().AddDate(0, 0, -days)
}
