package config

import (
	"strings"
	"testing"
	"time"
)

func hasFieldError(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero max_retries", func(c *Config) { c.Coordinator.MaxRetries = 0 }, "coordinator.max_retries"},
		{"negative retry_delay", func(c *Config) { c.Coordinator.RetryDelay = -time.Second }, "coordinator.retry_delay"},
		{"negative task_timeout", func(c *Config) { c.Coordinator.TaskTimeout = -time.Second }, "coordinator.task_timeout"},
		{"unknown priority band", func(c *Config) { c.Coordinator.MaxConcurrent = map[string]int{"urgent": 2} }, "coordinator.max_concurrent.urgent"},
		{"negative band limit", func(c *Config) { c.Coordinator.MaxConcurrent = map[string]int{"high": -1} }, "coordinator.max_concurrent.high"},
		{"negative history", func(c *Config) { c.Coordinator.HistoryLimit = -1 }, "coordinator.history_limit"},
		{"zero scheduler tick", func(c *Config) { c.Scheduler.TickInterval = 0 }, "scheduler.tick_interval"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"zero rules tick", func(c *Config) { c.Rules.TickInterval = 0 }, "rules.tick_interval"},
		{"negative event history", func(c *Config) { c.Rules.EventHistory = -5 }, "rules.event_history"},
		{"zero threshold tick", func(c *Config) { c.Threshold.TickInterval = 0 }, "threshold.tick_interval"},
		{"window exceeds retention", func(c *Config) { c.Threshold.EvaluationWindow = 200 * time.Hour }, "threshold.evaluation_window"},
		{"zero handoff ttl", func(c *Config) { c.Bus.HandoffTTL = 0 }, "bus.handoff_ttl"},
		{"zero share ttl", func(c *Config) { c.Bus.ShareTTL = 0 }, "bus.share_ttl"},
		{"zero scaling tick", func(c *Config) { c.Scaling.TickInterval = 0 }, "scaling.tick_interval"},
		{"zero max workers", func(c *Config) { c.Scaling.MaxWorkers = 0 }, "scaling.max_workers"},
		{"min above max workers", func(c *Config) { c.Scaling.MinWorkers = 9 }, "scaling.min_workers"},
		{"negative scaling cooldown", func(c *Config) { c.Scaling.Cooldown = -time.Second }, "scaling.cooldown"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"zero log size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, "logging.max_size_mb"},
		{"huge log size", func(c *Config) { c.Logging.MaxSizeMB = 5000 }, "logging.max_size_mb"},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
		{"null byte log file", func(c *Config) { c.Logging.File = "a\x00b" }, "logging.file"},
		{"unknown archive driver", func(c *Config) { c.Archive.Driver = "s3" }, "archive.driver"},
		{"redis without addr", func(c *Config) {
			c.Archive.Driver = "redis"
			c.Archive.Redis.Addr = ""
		}, "archive.redis.addr"},
		{"postgres without dsn", func(c *Config) { c.Archive.Driver = "postgres" }, "archive.postgres.dsn"},
		{"empty api addr", func(c *Config) { c.API.Addr = "" }, "api.addr"},
		{"worker without id", func(c *Config) {
			c.Workers = []WorkerConfig{{Type: "content"}}
		}, "workers[0].id"},
		{"duplicate worker id", func(c *Config) {
			c.Workers = []WorkerConfig{{ID: "w", Type: "content"}, {ID: "w", Type: "content"}}
		}, "workers[1].id"},
		{"unknown worker type", func(c *Config) {
			c.Workers = []WorkerConfig{{ID: "w", Type: "janitor"}}
		}, "workers[0].type"},
		{"unknown backend", func(c *Config) {
			c.Workers = []WorkerConfig{{ID: "w", Type: "content", Backend: "gpt"}}
		}, "workers[0].backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.field) {
				t.Errorf("expected error for %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestConfig_Validate_ValidVariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"disabled archive", func(c *Config) { c.Archive.Driver = "none" }},
		{"postgres with dsn", func(c *Config) {
			c.Archive.Driver = "postgres"
			c.Archive.Postgres.DSN = "postgres://localhost/conductor"
		}},
		{"priority limits", func(c *Config) {
			c.Coordinator.MaxConcurrent = map[string]int{"critical": 8, "low": 0}
		}},
		{"utc timezone", func(c *Config) { c.Scheduler.Timezone = "UTC" }},
		{"declared workers", func(c *Config) {
			c.Workers = []WorkerConfig{
				{ID: "strat-1", Type: "strategy"},
				{ID: "writer-1", Type: "content", Backend: "claude", Capabilities: []string{"long_form"}},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if errs := cfg.Validate(); len(errs) != 0 {
				t.Errorf("expected valid config, got %v", errs)
			}
		})
	}
}
