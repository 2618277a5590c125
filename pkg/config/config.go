// Package config loads service configuration from environment variables.
// Every subsystem gets a struct with compiled-in defaults; Load overrides
// them from the environment and validates the result.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config aggregates all subsystem configuration.
type Config struct {
	Queue     *QueueConfig
	LLM       *LLMConfig
	Fetcher   *FetcherConfig
	Analysis  *AnalysisConfig
	Retention *RetentionConfig
}

var validate = validator.New()

// Load builds the full configuration from the environment on top of the
// built-in defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Queue:     LoadQueueConfig(),
		LLM:       LoadLLMConfig(),
		Fetcher:   LoadFetcherConfig(),
		Analysis:  LoadAnalysisConfig(),
		Retention: LoadRetentionConfig(),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// getEnv returns the environment value for key, or defaultVal when unset.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt parses an integer environment variable, falling back to the
// default (with a warning) on malformed values.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			"key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

// getEnvFloat parses a float environment variable, falling back to the
// default (with a warning) on malformed values.
func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("Invalid float in environment, using default",
			"key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return f
}

// getEnvDuration parses a duration environment variable (Go syntax, e.g.
// "30s"), falling back to the default (with a warning) on malformed values.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default",
			"key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}
