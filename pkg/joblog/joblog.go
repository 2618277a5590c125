// Package joblog provides a job-scoped logger that writes every record both
// to the process logger and to the job's persistent log trail.
package joblog

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/garethmul/newsmill/pkg/models"
)

// Sink persists one job log row. services.JobService satisfies this.
type Sink interface {
	AppendJobLog(ctx context.Context, jobID string, level models.LogLevel, message string, detail json.RawMessage) error
}

// Logger dual-writes job-scoped records: once to the process logger with a
// job_id attribute, once to the sink. Sink failures are warn-logged and
// swallowed so a logging hiccup never fails the job itself.
type Logger struct {
	jobID  string
	sink   Sink
	logger *slog.Logger
}

// New creates a logger scoped to one job. sink may be nil, which degrades to
// process-only logging.
func New(jobID string, sink Sink, logger *slog.Logger) *Logger {
	return &Logger{
		jobID:  jobID,
		sink:   sink,
		logger: logger.With("job_id", jobID),
	}
}

// Debug records a debug-level entry.
func (l *Logger) Debug(ctx context.Context, message string, detail json.RawMessage) {
	l.logger.Debug(message)
	l.persist(ctx, models.LogLevelDebug, message, detail)
}

// Info records an info-level entry.
func (l *Logger) Info(ctx context.Context, message string, detail json.RawMessage) {
	l.logger.Info(message)
	l.persist(ctx, models.LogLevelInfo, message, detail)
}

// Warn records a warn-level entry.
func (l *Logger) Warn(ctx context.Context, message string, detail json.RawMessage) {
	l.logger.Warn(message)
	l.persist(ctx, models.LogLevelWarn, message, detail)
}

// Error records an error-level entry.
func (l *Logger) Error(ctx context.Context, message string, detail json.RawMessage) {
	l.logger.Error(message)
	l.persist(ctx, models.LogLevelError, message, detail)
}

func (l *Logger) persist(ctx context.Context, level models.LogLevel, message string, detail json.RawMessage) {
	if l.sink == nil {
		return
	}
	if err := l.sink.AppendJobLog(ctx, l.jobID, level, message, detail); err != nil {
		l.logger.Warn("failed to persist job log entry", "error", err)
	}
}
