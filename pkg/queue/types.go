// Package queue provides the durable job worker engine: a pool of polling
// workers that claim queued jobs, dispatch them to registered handlers, keep
// heartbeats alive, observe cooperative cancellation, and record terminal
// outcomes.
package queue

import (
	"context"
	"time"

	"github.com/garethmul/newsmill/pkg/joblog"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
)

// HandlerFunc processes one claimed job. The context is cancelled on job
// timeout, cooperative cancellation, or shutdown. Returning nil completes
// the job; returning an llm.RetriableError requeues it while retries remain;
// any other error fails it.
type HandlerFunc func(ctx context.Context, run *JobRun) error

// JobRun is everything a handler needs to process one job: the job row, a
// job-scoped persistent logger, and a progress reporter.
type JobRun struct {
	Job *models.Job
	Log *joblog.Logger

	jobs    *services.JobService
	summary string
}

// AccountID returns the owning account of the job.
func (r *JobRun) AccountID() string { return r.Job.AccountID }

// Progress reports handler progress. Values are clamped to [0,100] by the
// store and regressions are ignored there, so handlers can report phase
// checkpoints without coordinating. Failures never abort the handler.
func (r *JobRun) Progress(ctx context.Context, pct int, detail string) {
	if err := r.jobs.UpdateProgress(ctx, r.Job.JobID, pct, detail); err != nil {
		r.Log.Warn(ctx, "failed to update progress", nil)
	}
}

// SetSummary records the completion detail written when the job completes,
// e.g. "analyzed 8, failed 2".
func (r *JobRun) SetSummary(detail string) { r.summary = detail }

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	DBReachable    bool           `json:"db_reachable"`
	DBError        string         `json:"db_error,omitempty"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	QueueDepth     int            `json:"queue_depth"`
	ProcessingJobs int            `json:"processing_jobs"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
}
