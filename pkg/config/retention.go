package config

// RetentionConfig controls data retention and cleanup scheduling.
type RetentionConfig struct {
	// JobRetentionDays is how long completed and cancelled jobs are kept.
	JobRetentionDays int `validate:"min=1"`

	// FailedJobRetentionDays is how long failed jobs are kept. Longer than
	// JobRetentionDays so failures stay inspectable.
	FailedJobRetentionDays int `validate:"min=1"`

	// AILogRetentionDays is how long AI call audit rows are kept.
	AILogRetentionDays int `validate:"min=1"`

	// Schedule is the cron expression for cleanup runs.
	Schedule string
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		JobRetentionDays:       30,
		FailedJobRetentionDays: 90,
		AILogRetentionDays:     180,
		Schedule:               "0 3 * * *",
	}
}

// LoadRetentionConfig returns the retention defaults overridden from the
// environment.
func LoadRetentionConfig() *RetentionConfig {
	cfg := DefaultRetentionConfig()
	cfg.JobRetentionDays = getEnvInt("RETENTION_JOB_DAYS", cfg.JobRetentionDays)
	cfg.FailedJobRetentionDays = getEnvInt("RETENTION_FAILED_JOB_DAYS", cfg.FailedJobRetentionDays)
	cfg.AILogRetentionDays = getEnvInt("RETENTION_AI_LOG_DAYS", cfg.AILogRetentionDays)
	cfg.Schedule = getEnv("RETENTION_SCHEDULE", cfg.Schedule)
	return cfg
}
