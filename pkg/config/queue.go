package config

import "time"

// QueueConfig controls how jobs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines.
	WorkerCount int `validate:"min=1,max=64"`

	// PollInterval is the base interval for checking queued jobs.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// GracefulShutdownTimeout is the max time to wait for in-flight jobs
	// during shutdown.
	GracefulShutdownTimeout time.Duration

	// HeartbeatInterval is how often a worker touches a running job's
	// updated_at.
	HeartbeatInterval time.Duration

	// StaleThreshold is how long a processing job may go untouched before
	// the boot sweep considers it abandoned by a dead worker.
	StaleThreshold time.Duration

	// CancelCheckInterval is how often a worker polls the cancel_requested
	// flag of its running job.
	CancelCheckInterval time.Duration

	// DefaultMaxRetries is applied to jobs created without an explicit
	// max_retries.
	DefaultMaxRetries int `validate:"min=0,max=10"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             2,
		PollInterval:            2 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		GracefulShutdownTimeout: 30 * time.Second,
		HeartbeatInterval:       30 * time.Second,
		StaleThreshold:          5 * time.Minute,
		CancelCheckInterval:     2 * time.Second,
		DefaultMaxRetries:       3,
	}
}

// LoadQueueConfig returns the queue defaults overridden from the environment.
func LoadQueueConfig() *QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.WorkerCount = getEnvInt("QUEUE_WORKER_COUNT", cfg.WorkerCount)
	cfg.PollInterval = getEnvDuration("QUEUE_POLL_INTERVAL", cfg.PollInterval)
	cfg.PollIntervalJitter = getEnvDuration("QUEUE_POLL_JITTER", cfg.PollIntervalJitter)
	cfg.GracefulShutdownTimeout = getEnvDuration("QUEUE_SHUTDOWN_TIMEOUT", cfg.GracefulShutdownTimeout)
	cfg.HeartbeatInterval = getEnvDuration("QUEUE_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.StaleThreshold = getEnvDuration("QUEUE_STALE_THRESHOLD", cfg.StaleThreshold)
	cfg.CancelCheckInterval = getEnvDuration("QUEUE_CANCEL_CHECK_INTERVAL", cfg.CancelCheckInterval)
	cfg.DefaultMaxRetries = getEnvInt("QUEUE_DEFAULT_MAX_RETRIES", cfg.DefaultMaxRetries)
	return cfg
}
