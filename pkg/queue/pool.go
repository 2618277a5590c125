package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/garethmul/newsmill/pkg/config"
	"github.com/garethmul/newsmill/pkg/models"
	"github.com/garethmul/newsmill/pkg/services"
)

// WorkerPool manages a pool of queue workers and the in-process job cancel
// registry.
type WorkerPool struct {
	jobs     *services.JobService
	config   *config.QueueConfig
	registry *Registry
	logger   *slog.Logger
	workers  []*Worker

	// Job cancel registry: job_id → cancel function for jobs running on
	// this process.
	activeJobs map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool
}

// NewWorkerPool creates a new worker pool with an empty handler registry.
func NewWorkerPool(jobs *services.JobService, cfg *config.QueueConfig, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{
		jobs:       jobs,
		config:     cfg,
		registry:   NewRegistry(),
		logger:     logger.With("component", "worker_pool"),
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Register binds a handler to a job type. Call before Start.
func (p *WorkerPool) Register(jobType models.JobType, handler HandlerFunc) {
	p.registry.Register(jobType, handler)
}

// Start reclaims jobs abandoned by a previous process, then spawns the
// worker goroutines. It is safe to call multiple times; subsequent calls are
// no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		p.logger.Warn("worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	if err := p.reclaimAbandoned(ctx); err != nil {
		return err
	}

	p.logger.Info("starting worker pool",
		"worker_count", p.config.WorkerCount,
		"job_types", p.registry.Types())

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		worker := NewWorker(workerID, p.jobs, p.config, p.registry, p, p.logger)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.logger.Info("worker pool started")
	return nil
}

// reclaimAbandoned fails every processing job left behind by a dead worker.
// Nothing can legitimately be processing before our own workers start, so
// the cutoff is zero. Reclaimed jobs keep their progress and retry budget
// and wait for an explicit operator retry.
func (p *WorkerPool) reclaimAbandoned(ctx context.Context) error {
	ids, err := p.jobs.ReclaimStaleJobs(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to reclaim abandoned jobs: %w", err)
	}
	for _, id := range ids {
		p.logger.Warn("reclaimed abandoned job", "job_id", id, "error_message", services.StaleJobErrorMessage)
	}
	if len(ids) > 0 {
		p.logger.Info("boot reclaim swept abandoned jobs", "count", len(ids))
	}
	return nil
}

// Stop signals all workers and waits for in-flight jobs up to the graceful
// shutdown timeout. Jobs still running at the deadline stay processing and
// are reclaimed on the next boot.
func (p *WorkerPool) Stop(ctx context.Context) {
	p.logger.Info("stopping worker pool")

	active := p.activeJobIDs()
	if len(active) > 0 {
		p.logger.Info("waiting for in-flight jobs", "count", len(active), "job_ids", active)
	}

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("shutdown timeout reached, abandoning in-flight jobs",
			"job_ids", p.activeJobIDs())
	case <-ctx.Done():
		p.logger.Warn("shutdown context cancelled, abandoning in-flight jobs",
			"job_ids", p.activeJobIDs())
	}
}

// RegisterJob stores a cancel function for in-process cancellation.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob cancels the job's context when it runs on this process. The
// durable cancel_requested flag remains the source of truth; this just
// short-cuts the watcher's next poll. Returns true when the job was found.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeJobs[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	queued, processing, err := p.jobs.QueueDepths(ctx)
	if err != nil {
		p.logger.Error("failed to query queue depths for health check", "error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	health := &PoolHealth{
		IsHealthy:      len(p.workers) > 0 && err == nil,
		DBReachable:    err == nil,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		QueueDepth:     queued,
		ProcessingJobs: processing,
		WorkerStats:    workerStats,
	}
	if err != nil {
		health.DBError = err.Error()
	}
	return health
}

func (p *WorkerPool) activeJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		ids = append(ids, id)
	}
	return ids
}
