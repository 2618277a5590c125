package models

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

// Job status constants.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status is final. Terminal jobs never change
// status again, except failed → queued via an explicit retry.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobType identifies which pipeline handler processes a job.
type JobType string

// Job type constants, one per pipeline handler.
const (
	JobTypeNewsAggregation   JobType = "news_aggregation"
	JobTypeAIAnalysis        JobType = "ai_analysis"
	JobTypeURLAnalysis       JobType = "url_analysis"
	JobTypeContentGeneration JobType = "content_generation"
	JobTypeFullCycle         JobType = "full_cycle"
)

// Valid reports whether the job type is one of the known values.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeNewsAggregation, JobTypeAIAnalysis, JobTypeURLAnalysis,
		JobTypeContentGeneration, JobTypeFullCycle:
		return true
	}
	return false
}

// Job is one unit of queued work. Claimed atomically by a single worker;
// progress and outcome are written back as the handler runs.
type Job struct {
	JobID           string          `json:"job_id"`
	AccountID       string          `json:"account_id"`
	JobType         JobType         `json:"job_type"`
	Status          JobStatus       `json:"status"`
	Priority        int             `json:"priority"`
	Payload         json.RawMessage `json:"payload"`
	ProgressPct     int             `json:"progress_pct"`
	ProgressDetail  string          `json:"progress_detail"`
	WorkerID        *string         `json:"worker_id,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	RetryCount      int             `json:"retry_count"`
	MaxRetries      int             `json:"max_retries"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// LogLevel is the severity of a job log entry.
type LogLevel string

// Job log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Valid reports whether the level is one of the known values.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// JobLog is one persisted log line scoped to a job.
type JobLog struct {
	ID        int64           `json:"id"`
	JobID     string          `json:"job_id"`
	Level     LogLevel        `json:"level"`
	Message   string          `json:"message"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateJobRequest contains fields for enqueueing a job.
type CreateJobRequest struct {
	JobType    JobType         `json:"job_type" validate:"required"`
	Payload    json.RawMessage `json:"payload"`
	Priority   int             `json:"priority"`
	MaxRetries *int            `json:"max_retries,omitempty" validate:"omitempty,min=0,max=10"`
}

// ListJobsParams filters and paginates job listings. Zero-value filters are
// ignored.
type ListJobsParams struct {
	AccountID string
	Status    JobStatus
	JobType   JobType
	Page      int
	PageSize  int
}

// JobList is a page of jobs plus the total match count.
type JobList struct {
	Jobs     []*Job `json:"jobs"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// JobStats summarises an account's jobs over the trailing 24 hours:
// per-status counts, per-type counts, and the average duration of completed
// jobs.
type JobStats struct {
	Total         int             `json:"total"`
	Queued        int             `json:"queued"`
	Processing    int             `json:"processing"`
	Completed     int             `json:"completed"`
	Failed        int             `json:"failed"`
	Cancelled     int             `json:"cancelled"`
	ByType        map[JobType]int `json:"by_type"`
	AvgDurationMs float64         `json:"avg_duration_ms"`
}
