package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garethmul/newsmill/pkg/database"
	"github.com/garethmul/newsmill/pkg/models"
)

// StaleJobErrorMessage is written to jobs abandoned by a dead worker.
const StaleJobErrorMessage = "worker restart"

const jobColumns = `job_id, account_id, job_type, status, priority, payload,
	progress_pct, progress_detail, worker_id, error_message, retry_count,
	max_retries, cancel_requested, created_at, started_at, completed_at, updated_at`

// JobService manages the durable job queue: creation, claiming, progress,
// terminal transitions, retries, and job-scoped logs.
type JobService struct {
	client            *database.Client
	defaultMaxRetries int
}

// NewJobService creates a new JobService.
func NewJobService(client *database.Client, defaultMaxRetries int) *JobService {
	return &JobService{client: client, defaultMaxRetries: defaultMaxRetries}
}

// CreateJob validates and enqueues a job for the account.
func (s *JobService) CreateJob(ctx context.Context, accountID string, req models.CreateJobRequest) (*models.Job, error) {
	if accountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if !req.JobType.Valid() {
		return nil, NewValidationError("job_type", fmt.Sprintf("unknown job type %q", req.JobType))
	}
	if _, err := models.ValidateJobPayload(req.JobType, req.Payload); err != nil {
		return nil, NewValidationError("payload", err.Error())
	}

	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	row := s.client.DB().QueryRowContext(ctx, `
		INSERT INTO jobs (job_id, account_id, job_type, status, priority, payload, max_retries)
		VALUES ($1, $2, $3, 'queued', $4, $5, $6)
		RETURNING `+jobColumns,
		uuid.New().String(), accountID, string(req.JobType), req.Priority, []byte(payload), maxRetries)

	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob returns the job scoped to the account.
func (s *JobService) GetJob(ctx context.Context, accountID, jobID string) (*models.Job, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1 AND account_id = $2`,
		jobID, accountID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetJobByID returns the job without account scoping. Worker-internal; the
// API always goes through GetJob.
func (s *JobService) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	row := s.client.DB().QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// NextQueuedJob returns the next job to run: highest priority first, then
// oldest. Returns ErrNoJobsAvailable when the queue is empty.
func (s *JobService) NextQueuedJob(ctx context.Context) (*models.Job, error) {
	row := s.client.DB().QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'queued'
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query next job: %w", err)
	}
	return job, nil
}

// ClaimJob atomically moves a queued job to processing for the given worker.
// The conditional UPDATE guarantees exactly one winner when several workers
// race for the same job; losers get ErrJobNotClaimable.
func (s *JobService) ClaimJob(ctx context.Context, jobID, workerID string) (*models.Job, error) {
	row := s.client.DB().QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'processing', worker_id = $2, started_at = now(), updated_at = now()
		WHERE job_id = $1 AND status = 'queued'
		RETURNING `+jobColumns,
		jobID, workerID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotClaimable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// UpdateProgress records progress on a processing job. Values are clamped to
// [0, 99] — 100 is reserved for completion — and never decrease. Updates on
// non-processing jobs are ignored.
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, pct int, detail string) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	_, err := s.client.DB().ExecContext(ctx, `
		UPDATE jobs
		SET progress_pct = GREATEST(progress_pct, $2), progress_detail = $3, updated_at = now()
		WHERE job_id = $1 AND status = 'processing'`,
		jobID, pct, detail)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// Heartbeat touches a processing job so stale detection knows its worker is
// alive.
func (s *JobService) Heartbeat(ctx context.Context, jobID string) error {
	_, err := s.client.DB().ExecContext(ctx,
		`UPDATE jobs SET updated_at = now() WHERE job_id = $1 AND status = 'processing'`, jobID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat job: %w", err)
	}
	return nil
}

// CompleteJob marks a processing job completed and sets progress to 100. A
// non-empty detail (e.g. "analyzed 8, failed 2") replaces the progress
// detail; empty keeps the last value. Completing an already-terminal job is
// a no-op returning the current row.
func (s *JobService) CompleteJob(ctx context.Context, jobID, detail string) (*models.Job, error) {
	return s.finishJob(ctx, jobID, `
		UPDATE jobs
		SET status = 'completed', progress_pct = 100,
		    progress_detail = COALESCE(NULLIF($2, ''), progress_detail),
		    completed_at = now(), updated_at = now()
		WHERE job_id = $1 AND status = 'processing'
		RETURNING `+jobColumns, detail)
}

// FailJob marks a processing job failed with the given error message.
// Progress keeps its last value. Failing an already-terminal job is a no-op.
func (s *JobService) FailJob(ctx context.Context, jobID, errMsg string) (*models.Job, error) {
	return s.finishJob(ctx, jobID, `
		UPDATE jobs
		SET status = 'failed', error_message = $2, completed_at = now(), updated_at = now()
		WHERE job_id = $1 AND status = 'processing'
		RETURNING `+jobColumns, errMsg)
}

// CancelFinalize marks a processing job cancelled after its handler observed
// the cancellation request. Idempotent like the other terminal transitions.
func (s *JobService) CancelFinalize(ctx context.Context, jobID string) (*models.Job, error) {
	return s.finishJob(ctx, jobID, `
		UPDATE jobs
		SET status = 'cancelled', error_message = NULLIF($2, ''), completed_at = now(), updated_at = now()
		WHERE job_id = $1 AND status = 'processing'
		RETURNING `+jobColumns, "")
}

// finishJob runs a conditional terminal UPDATE. When the job already left the
// processing state the transition is treated as idempotent: terminal rows are
// returned unchanged, anything else is an invalid transition.
func (s *JobService) finishJob(ctx context.Context, jobID, query, arg string) (*models.Job, error) {
	row := s.client.DB().QueryRowContext(ctx, query, jobID, arg)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to finish job: %w", err)
	}

	current, getErr := s.GetJobByID(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.Terminal() {
		return current, nil
	}
	return nil, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, jobID, current.Status)
}

// CancelJob cancels a job for the account. Queued jobs are cancelled
// directly; processing jobs get a cooperative cancellation request that the
// worker finalises. Terminal jobs return ErrJobNotCancellable.
func (s *JobService) CancelJob(ctx context.Context, accountID, jobID string) (*models.Job, error) {
	row := s.client.DB().QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'cancelled', completed_at = now(), updated_at = now()
		WHERE job_id = $1 AND account_id = $2 AND status = 'queued'
		RETURNING `+jobColumns,
		jobID, accountID)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	row = s.client.DB().QueryRowContext(ctx, `
		UPDATE jobs
		SET cancel_requested = TRUE, updated_at = now()
		WHERE job_id = $1 AND account_id = $2 AND status = 'processing'
		RETURNING `+jobColumns,
		jobID, accountID)
	job, err = scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to request job cancellation: %w", err)
	}

	current, getErr := s.GetJob(ctx, accountID, jobID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotCancellable, jobID, current.Status)
}

// CancelRequested reports whether cooperative cancellation has been requested
// for the job.
func (s *JobService) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested bool
	err := s.client.DB().QueryRowContext(ctx,
		`SELECT cancel_requested FROM jobs WHERE job_id = $1`, jobID).Scan(&requested)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// RetryJob re-queues a failed job at the account's request. Only failed jobs
// with retries left are eligible.
func (s *JobService) RetryJob(ctx context.Context, accountID, jobID string) (*models.Job, error) {
	row := s.client.DB().QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'queued', retry_count = retry_count + 1, error_message = NULL,
		    worker_id = NULL, progress_pct = 0, progress_detail = '',
		    started_at = NULL, completed_at = NULL, cancel_requested = FALSE, updated_at = now()
		WHERE job_id = $1 AND account_id = $2 AND status = 'failed' AND retry_count < max_retries
		RETURNING `+jobColumns,
		jobID, accountID)
	job, err := scanJob(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to retry job: %w", err)
	}

	current, getErr := s.GetJob(ctx, accountID, jobID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status != models.JobStatusFailed {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotRetryable, jobID, current.Status)
	}
	return nil, fmt.Errorf("%w: %d of %d retries used", ErrRetryExhausted, current.RetryCount, current.MaxRetries)
}

// ReclaimStaleJobs fails processing jobs untouched for longer than olderThan.
// Run with zero at boot — nothing can legitimately be processing before the
// workers start. Reclaimed jobs keep their progress and retry_count and are
// not re-queued automatically.
func (s *JobService) ReclaimStaleJobs(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := s.client.DB().QueryContext(ctx, `
		UPDATE jobs
		SET status = 'failed', error_message = $2, worker_id = NULL,
		    completed_at = now(), updated_at = now()
		WHERE status = 'processing' AND updated_at < $1
		RETURNING job_id`,
		cutoff, StaleJobErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reclaimed job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reclaimed jobs: %w", err)
	}
	return ids, nil
}

// ListJobs returns a page of the account's jobs, newest first, optionally
// filtered by status and type.
func (s *JobService) ListJobs(ctx context.Context, params models.ListJobsParams) (*models.JobList, error) {
	if params.AccountID == "" {
		return nil, NewValidationError("account_id", "required")
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 25
	}

	where := `WHERE account_id = $1`
	args := []any{params.AccountID}
	if params.Status != "" {
		if !params.Status.Valid() {
			return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", params.Status))
		}
		args = append(args, string(params.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if params.JobType != "" {
		if !params.JobType.Valid() {
			return nil, NewValidationError("job_type", fmt.Sprintf("unknown job type %q", params.JobType))
		}
		args = append(args, string(params.JobType))
		where += fmt.Sprintf(" AND job_type = $%d", len(args))
	}

	var total int
	if err := s.client.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT `+jobColumns+` FROM jobs %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0, params.PageSize)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return &models.JobList{Jobs: jobs, Total: total, Page: params.Page, PageSize: params.PageSize}, nil
}

// JobStats returns per-status and per-type counts plus the average duration
// of completed jobs for the account, over the trailing 24 hours.
func (s *JobService) JobStats(ctx context.Context, accountID string) (*models.JobStats, error) {
	stats := &models.JobStats{ByType: map[models.JobType]int{}}
	err := s.client.DB().QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at)) * 1000)
				FILTER (WHERE status = 'completed' AND started_at IS NOT NULL), 0)
		FROM jobs
		WHERE account_id = $1 AND created_at > now() - interval '24 hours'`, accountID).
		Scan(&stats.Total, &stats.Queued, &stats.Processing, &stats.Completed,
			&stats.Failed, &stats.Cancelled, &stats.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query job stats: %w", err)
	}

	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT job_type, COUNT(*)
		FROM jobs
		WHERE account_id = $1 AND created_at > now() - interval '24 hours'
		GROUP BY job_type`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job type stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jobType models.JobType
		var count int
		if err := rows.Scan(&jobType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job type stats: %w", err)
		}
		stats.ByType[jobType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job type stats: %w", err)
	}
	return stats, nil
}

// QueueDepths returns the global queued and processing counts across all
// accounts. Used by the worker pool health check.
func (s *JobService) QueueDepths(ctx context.Context) (queued, processing int, err error) {
	err = s.client.DB().QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'processing')
		FROM jobs`).
		Scan(&queued, &processing)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query queue depths: %w", err)
	}
	return queued, processing, nil
}

// DeleteOldJobs removes terminal jobs whose completion is older than the
// cutoff. Job logs go with them via FK cascade. Returns the number removed.
func (s *JobService) DeleteOldJobs(ctx context.Context, cutoff time.Time, statuses []models.JobStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	names := make([]string, len(statuses))
	for i, st := range statuses {
		if !st.Terminal() {
			return 0, NewValidationError("statuses", fmt.Sprintf("status %q is not terminal", st))
		}
		names[i] = string(st)
	}

	res, err := s.client.DB().ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status = ANY($1) AND completed_at IS NOT NULL AND completed_at < $2`,
		names, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n, nil
}

// AppendJobLog persists one job-scoped log line.
func (s *JobService) AppendJobLog(ctx context.Context, jobID string, level models.LogLevel, message string, detail json.RawMessage) error {
	if !level.Valid() {
		return NewValidationError("level", fmt.Sprintf("unknown level %q", level))
	}
	var detailArg any
	if len(detail) > 0 {
		detailArg = []byte(detail)
	}
	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO job_logs (job_id, level, message, detail)
		VALUES ($1, $2, $3, $4)`,
		jobID, string(level), message, detailArg)
	if err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	return nil
}

// ListJobLogs returns a job's log lines in insertion order.
func (s *JobService) ListJobLogs(ctx context.Context, jobID string) ([]*models.JobLog, error) {
	rows, err := s.client.DB().QueryContext(ctx, `
		SELECT id, job_id, level, message, detail, created_at
		FROM job_logs
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.JobLog
	for rows.Next() {
		entry := &models.JobLog{}
		var level string
		var detail []byte
		if err := rows.Scan(&entry.ID, &entry.JobID, &level, &entry.Message, &detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job log: %w", err)
		}
		entry.Level = models.LogLevel(level)
		if len(detail) > 0 {
			entry.Detail = json.RawMessage(detail)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job logs: %w", err)
	}
	return logs, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	var (
		jobType, status string
		payload         []byte
	)
	err := row.Scan(
		&job.JobID, &job.AccountID, &jobType, &status, &job.Priority, &payload,
		&job.ProgressPct, &job.ProgressDetail, &job.WorkerID, &job.ErrorMessage,
		&job.RetryCount, &job.MaxRetries, &job.CancelRequested,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.JobType = models.JobType(jobType)
	job.Status = models.JobStatus(status)
	job.Payload = json.RawMessage(payload)
	return job, nil
}
