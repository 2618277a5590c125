package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/joblog"
	"github.com/garethmul/newsmill/pkg/services"
)

// jobRegistry is the subset of WorkerPool used by Worker for job
// registration, so an API cancel can reach the running job's context.
type jobRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// Worker is a single queue worker that polls for and processes jobs.
type Worker struct {
	id       string
	jobs     *services.JobService
	config   *config.QueueConfig
	registry *Registry
	pool     jobRegistry
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id string, jobs *services.JobService, cfg *config.QueueConfig, registry *Registry, pool jobRegistry, logger *slog.Logger) *Worker {
	return &Worker{
		id:           id,
		jobs:         jobs,
		config:       cfg,
		registry:     registry,
		pool:         pool,
		logger:       logger.With("worker_id", id),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// job. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("worker started")
	for {
		select {
		case <-w.stopCh:
			w.logger.Info("worker shutting down")
			return
		case <-ctx.Done():
			w.logger.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				switch {
				case errors.Is(err, services.ErrNoJobsAvailable):
					w.sleep(w.pollInterval())
				case errors.Is(err, services.ErrJobNotClaimable):
					// Lost the claim race, try the next job immediately.
				default:
					w.logger.Error("error processing job", "error", err)
					w.sleep(time.Second)
				}
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next queued job and runs it to a terminal state.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	next, err := w.jobs.NextQueuedJob(ctx)
	if err != nil {
		return err
	}

	job, err := w.jobs.ClaimJob(ctx, next.JobID, w.id)
	if err != nil {
		return err
	}

	log := w.logger.With("job_id", job.JobID, "job_type", job.JobType)
	log.Info("job claimed", "account_id", job.AccountID, "retry_count", job.RetryCount)

	w.setStatus(WorkerStatusWorking, job.JobID)
	defer w.setStatus(WorkerStatusIdle, "")

	run := &JobRun{
		Job:  job,
		Log:  joblog.New(job.JobID, w.jobs, w.logger),
		jobs: w.jobs,
	}

	handler := w.registry.Handler(job.JobType)
	if handler == nil {
		msg := fmt.Sprintf("no handler registered for job type %q", job.JobType)
		log.Error(msg)
		if _, err := w.jobs.FailJob(context.Background(), job.JobID, msg); err != nil {
			return fmt.Errorf("failed to fail handlerless job: %w", err)
		}
		return nil
	}

	// Per-job context: cancellable by the cancel watcher and by
	// API-triggered in-process cancellation. There is no in-process
	// deadline; a job that outlives its worker is caught by the boot
	// reclaim sweep.
	jobCtx, cancelJob := context.WithCancel(ctx)
	defer cancelJob()

	w.pool.RegisterJob(job.JobID, cancelJob)
	defer w.pool.UnregisterJob(job.JobID)

	watchCtx, stopWatchers := context.WithCancel(jobCtx)
	defer stopWatchers()
	go w.runHeartbeat(watchCtx, job.JobID)

	var cancelRequested atomic.Bool
	go w.watchCancellation(watchCtx, job.JobID, &cancelRequested, cancelJob)

	handlerErr := w.runHandler(jobCtx, handler, run)
	stopWatchers()

	// Terminal updates use a background context — the job outcome must be
	// recorded even when the per-job context is dead.
	return w.finalize(context.Background(), run, log, handlerErr, cancelRequested.Load())
}

// runHandler invokes the handler with panic isolation: a panicking handler
// fails its job, not the worker.
func (w *Worker) runHandler(ctx context.Context, handler HandlerFunc, run *JobRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("handler panicked",
				"job_id", run.Job.JobID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, run)
}

// finalize records the job's terminal state based on how the handler ended.
// A failed handler fails the job outright; re-running is an explicit retry
// by an operator, never automatic.
func (w *Worker) finalize(ctx context.Context, run *JobRun, log *slog.Logger, handlerErr error, cancelRequested bool) error {
	jobID := run.Job.JobID

	switch {
	// A handler that finished cleanly despite a late cancel request keeps
	// its completed outcome; cancellation only wins when it stopped work.
	case cancelRequested && handlerErr != nil:
		if _, err := w.jobs.CancelFinalize(ctx, jobID); err != nil {
			return fmt.Errorf("failed to finalize cancelled job: %w", err)
		}
		log.Info("job cancelled")

	case handlerErr == nil:
		if _, err := w.jobs.CompleteJob(ctx, jobID, run.summary); err != nil {
			return fmt.Errorf("failed to complete job: %w", err)
		}
		log.Info("job completed", "detail", run.summary)

	default:
		if _, err := w.jobs.FailJob(ctx, jobID, handlerErr.Error()); err != nil {
			return fmt.Errorf("failed to fail job: %w", err)
		}
		log.Warn("job failed", "error", handlerErr)
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	return nil
}

// runHeartbeat touches the running job's updated_at so it is not mistaken
// for an abandoned job.
func (w *Worker) runHeartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.jobs.Heartbeat(ctx, jobID); err != nil {
				w.logger.Warn("heartbeat update failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// watchCancellation polls the job's cancel_requested flag and cancels the
// job context when an operator asked for cancellation.
func (w *Worker) watchCancellation(ctx context.Context, jobID string, requested *atomic.Bool, cancelJob context.CancelFunc) {
	ticker := time.NewTicker(w.config.CancelCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancel, err := w.jobs.CancelRequested(ctx, jobID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					w.logger.Warn("cancel check failed", "job_id", jobID, "error", err)
				}
				continue
			}
			if cancel {
				w.logger.Info("cancellation requested, stopping job", "job_id", jobID)
				requested.Store(true)
				cancelJob()
				return
			}
		}
	}
}

// pollInterval returns the poll duration with jitter, so workers started
// together do not hit the queue in lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
