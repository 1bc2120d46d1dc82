package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "coordinator.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateCoordinator()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateRules()...)
	errors = append(errors, c.validateThreshold()...)
	errors = append(errors, c.validateBus()...)
	errors = append(errors, c.validateScaling()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateArchive()...)
	errors = append(errors, c.validateAPI()...)
	errors = append(errors, c.validateWorkers()...)

	return errors
}

// positiveDuration appends an error when d is not strictly positive.
func positiveDuration(errors []ValidationError, field string, d time.Duration) []ValidationError {
	if d <= 0 {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   d,
			Message: "must be positive",
		})
	}
	return errors
}

// validateCoordinator validates the CoordinatorConfig
func (c *Config) validateCoordinator() []ValidationError {
	var errors []ValidationError

	// At least one attempt is required for a task to run at all
	if c.Coordinator.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.max_retries",
			Value:   c.Coordinator.MaxRetries,
			Message: "must be at least 1",
		})
	}

	if c.Coordinator.RetryDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.retry_delay",
			Value:   c.Coordinator.RetryDelay,
			Message: "must be non-negative",
		})
	}

	if c.Coordinator.TaskTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.task_timeout",
			Value:   c.Coordinator.TaskTimeout,
			Message: "must be non-negative (0 disables the timeout)",
		})
	}

	for band, limit := range c.Coordinator.MaxConcurrent {
		field := "coordinator.max_concurrent." + band
		if !slices.Contains(ValidPriorities(), strings.ToLower(band)) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   band,
				Message: fmt.Sprintf("unknown priority, must be one of: %s", strings.Join(ValidPriorities(), ", ")),
			})
		}
		if limit < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   limit,
				Message: "must be non-negative (0 = unlimited)",
			})
		}
	}

	if c.Coordinator.HistoryLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "coordinator.history_limit",
			Value:   c.Coordinator.HistoryLimit,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	errors = positiveDuration(errors, "scheduler.tick_interval", c.Scheduler.TickInterval)

	tz := c.Scheduler.Timezone
	if tz != "" && !strings.EqualFold(tz, "local") {
		if _, err := time.LoadLocation(tz); err != nil {
			errors = append(errors, ValidationError{
				Field:   "scheduler.timezone",
				Value:   tz,
				Message: "unknown time zone",
			})
		}
	}

	return errors
}

// validateRules validates the RulesConfig
func (c *Config) validateRules() []ValidationError {
	var errors []ValidationError

	errors = positiveDuration(errors, "rules.tick_interval", c.Rules.TickInterval)

	if c.Rules.EventHistory < 0 {
		errors = append(errors, ValidationError{
			Field:   "rules.event_history",
			Value:   c.Rules.EventHistory,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateThreshold validates the ThresholdConfig
func (c *Config) validateThreshold() []ValidationError {
	var errors []ValidationError

	errors = positiveDuration(errors, "threshold.tick_interval", c.Threshold.TickInterval)
	errors = positiveDuration(errors, "threshold.evaluation_window", c.Threshold.EvaluationWindow)
	errors = positiveDuration(errors, "threshold.retention", c.Threshold.Retention)

	// Points older than the retention window are pruned, so a longer
	// evaluation window could never be filled
	if c.Threshold.Retention > 0 && c.Threshold.EvaluationWindow > c.Threshold.Retention {
		errors = append(errors, ValidationError{
			Field:   "threshold.evaluation_window",
			Value:   c.Threshold.EvaluationWindow,
			Message: fmt.Sprintf("must not exceed threshold.retention (%s)", c.Threshold.Retention),
		})
	}

	return errors
}

// validateBus validates the BusConfig
func (c *Config) validateBus() []ValidationError {
	var errors []ValidationError

	errors = positiveDuration(errors, "bus.handoff_ttl", c.Bus.HandoffTTL)
	errors = positiveDuration(errors, "bus.share_ttl", c.Bus.ShareTTL)
	errors = positiveDuration(errors, "bus.sweep_interval", c.Bus.SweepInterval)

	if c.Bus.HistoryLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "bus.history_limit",
			Value:   c.Bus.HistoryLimit,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateScaling validates the ScalingConfig
func (c *Config) validateScaling() []ValidationError {
	var errors []ValidationError

	errors = positiveDuration(errors, "scaling.tick_interval", c.Scaling.TickInterval)

	if c.Scaling.MinWorkers < 0 {
		errors = append(errors, ValidationError{
			Field:   "scaling.min_workers",
			Value:   c.Scaling.MinWorkers,
			Message: "must be non-negative",
		})
	}
	if c.Scaling.MaxWorkers < 1 {
		errors = append(errors, ValidationError{
			Field:   "scaling.max_workers",
			Value:   c.Scaling.MaxWorkers,
			Message: "must be at least 1",
		})
	} else if c.Scaling.MinWorkers > c.Scaling.MaxWorkers {
		errors = append(errors, ValidationError{
			Field:   "scaling.min_workers",
			Value:   c.Scaling.MinWorkers,
			Message: fmt.Sprintf("must not exceed scaling.max_workers (%d)", c.Scaling.MaxWorkers),
		})
	}
	if c.Scaling.ScaleUpThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "scaling.scale_up_threshold",
			Value:   c.Scaling.ScaleUpThreshold,
			Message: "must be non-negative",
		})
	}
	if c.Scaling.ScaleDownThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "scaling.scale_down_threshold",
			Value:   c.Scaling.ScaleDownThreshold,
			Message: "must be non-negative",
		})
	}
	if c.Scaling.Cooldown < 0 {
		errors = append(errors, ValidationError{
			Field:   "scaling.cooldown",
			Value:   c.Scaling.Cooldown,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxAgeDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_age_days",
			Value:   c.Logging.MaxAgeDays,
			Message: "must be non-negative",
		})
	}

	if strings.ContainsRune(c.Logging.File, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.file",
			Value:   c.Logging.File,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// validateArchive validates the ArchiveConfig
func (c *Config) validateArchive() []ValidationError {
	var errors []ValidationError

	driver := c.Archive.Driver
	if driver != "" && !slices.Contains(ValidArchiveDrivers(), driver) {
		errors = append(errors, ValidationError{
			Field:   "archive.driver",
			Value:   driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidArchiveDrivers(), ", ")),
		})
	}

	switch driver {
	case "redis":
		if c.Archive.Redis.Addr == "" {
			errors = append(errors, ValidationError{
				Field:   "archive.redis.addr",
				Value:   c.Archive.Redis.Addr,
				Message: "is required when archive.driver is redis",
			})
		}
		if c.Archive.Redis.MaxEntries < 0 {
			errors = append(errors, ValidationError{
				Field:   "archive.redis.max_entries",
				Value:   c.Archive.Redis.MaxEntries,
				Message: "must be non-negative (0 = unbounded)",
			})
		}
	case "postgres":
		if c.Archive.Postgres.DSN == "" {
			errors = append(errors, ValidationError{
				Field:   "archive.postgres.dsn",
				Value:   c.Archive.Postgres.DSN,
				Message: "is required when archive.driver is postgres",
			})
		}
		if c.Archive.Postgres.MaxConns < 0 {
			errors = append(errors, ValidationError{
				Field:   "archive.postgres.max_conns",
				Value:   c.Archive.Postgres.MaxConns,
				Message: "must be non-negative",
			})
		}
	}

	return errors
}

// validateAPI validates the APIConfig
func (c *Config) validateAPI() []ValidationError {
	var errors []ValidationError

	if c.API.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "api.addr",
			Value:   c.API.Addr,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateWorkers validates the declared worker list
func (c *Config) validateWorkers() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, w := range c.Workers {
		prefix := fmt.Sprintf("workers[%d]", i)

		if w.ID == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".id",
				Value:   w.ID,
				Message: "must not be empty",
			})
		} else if seen[w.ID] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".id",
				Value:   w.ID,
				Message: "duplicate worker id",
			})
		}
		seen[w.ID] = true

		if !slices.Contains(ValidWorkerTypes(), w.Type) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".type",
				Value:   w.Type,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidWorkerTypes(), ", ")),
			})
		}

		if w.Backend != "" && !slices.Contains(ValidBackends(), w.Backend) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".backend",
				Value:   w.Backend,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
			})
		}
	}

	return errors
}
